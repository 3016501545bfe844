package reauth

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"slavebanker/internal/account"
	"slavebanker/internal/money"
	"slavebanker/internal/transport"
)

type fakeApp struct {
	requestFn func(ctx context.Context, verb, path string, query map[string]string, body []byte, onDone func(transport.RawResponse, error))
}

func (f *fakeApp) AddAccount(ctx context.Context, key account.Key, onDone func(error)) { onDone(nil) }
func (f *fakeApp) TopupTransfer(ctx context.Context, key account.Key, kind transport.TransferType, amount money.Pool, onDone func(error)) {
	onDone(nil)
}
func (f *fakeApp) SetBudget(ctx context.Context, topLevel string, amount money.Pool, onDone func(error)) {
	onDone(nil)
}
func (f *fakeApp) GetAccountSummary(ctx context.Context, key account.Key, depth int, onDone func(account.Summary, error)) {
	onDone(account.Summary{}, nil)
}
func (f *fakeApp) GetAccount(ctx context.Context, key account.Key, onDone func(account.Account, error)) {
	onDone(account.Account{}, nil)
}
func (f *fakeApp) AddSpendAccount(ctx context.Context, shadowName string, onDone func(account.Account, error)) {
	onDone(account.Account{}, nil)
}
func (f *fakeApp) SyncAccount(ctx context.Context, local account.ShadowAccount, shadowName string, onDone func(account.Account, error)) {
	onDone(account.Account{}, nil)
}
func (f *fakeApp) Request(ctx context.Context, verb, path string, query map[string]string, body []byte, onDone func(transport.RawResponse, error)) {
	f.requestFn(ctx, verb, path, query, body, onDone)
}

func newInitializedStore(keys ...account.Key) *account.Store {
	store := account.NewStore(nil, zerolog.Nop())
	for _, k := range keys {
		store.CreateAccountAtomic(k)
		store.InitializeAndMergeState(k, account.Account{Authorized: money.NewPool(money.USD(10))})
	}
	return store
}

func TestReauthorizeCompletesAndIncrementsCounter(t *testing.T) {
	keys := []account.Key{account.NewKey("campaign", "a"), account.NewKey("campaign", "b")}
	store := newInitializedStore(keys...)

	app := &fakeApp{requestFn: func(ctx context.Context, verb, path string, query map[string]string, body []byte, onDone func(transport.RawResponse, error)) {
		acc := account.Account{Authorized: money.NewPool(money.USD(10.10)), Commitments: money.Pool{}}
		data, _ := json.Marshal(acc)
		onDone(transport.RawResponse{StatusCode: 200, Body: data}, nil)
	}}
	e := New(store, app, "r1", money.NewPool(money.USD(0.10)), zerolog.Nop())

	e.Reauthorize(context.Background())

	deadline := time.After(time.Second)
	for e.Reauthorizing() {
		select {
		case <-deadline:
			t.Fatal("reauthorize pass never completed")
		case <-time.After(time.Millisecond):
		}
	}
	if e.NumReauthorized() != 1 {
		t.Fatalf("numReauthorized = %d, want 1", e.NumReauthorized())
	}
	if e.AccountsLeft() != 0 {
		t.Fatalf("accountsLeft = %d, want 0", e.AccountsLeft())
	}
}

func TestReauthorizeSkipsOverlappingTick(t *testing.T) {
	key := account.NewKey("campaign", "a")
	store := newInitializedStore(key)

	release := make(chan struct{})
	calls := 0
	app := &fakeApp{requestFn: func(ctx context.Context, verb, path string, query map[string]string, body []byte, onDone func(transport.RawResponse, error)) {
		calls++
		go func() {
			<-release
			acc := account.Account{Authorized: money.NewPool(money.USD(10))}
			data, _ := json.Marshal(acc)
			onDone(transport.RawResponse{StatusCode: 200, Body: data}, nil)
		}()
	}}
	e := New(store, app, "r1", money.NewPool(money.USD(0.10)), zerolog.Nop())

	e.Reauthorize(context.Background())
	e.Reauthorize(context.Background()) // should be skipped, pass already in flight
	close(release)

	deadline := time.After(time.Second)
	for e.Reauthorizing() {
		select {
		case <-deadline:
			t.Fatal("reauthorize pass never completed")
		case <-time.After(time.Millisecond):
		}
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 request issued across overlapping ticks, got %d", calls)
	}
	if e.NumReauthorized() != 1 {
		t.Fatalf("numReauthorized = %d, want 1", e.NumReauthorized())
	}
}

func TestReauthorizeEmptySetDoesNotSetFlag(t *testing.T) {
	store := account.NewStore(nil, zerolog.Nop())
	app := &fakeApp{requestFn: func(ctx context.Context, verb, path string, query map[string]string, body []byte, onDone func(transport.RawResponse, error)) {
		t.Fatal("no request should be issued for an empty initialized set")
	}}
	e := New(store, app, "r1", money.NewPool(money.USD(0.10)), zerolog.Nop())

	e.Reauthorize(context.Background())

	if e.Reauthorizing() {
		t.Fatal("expected reauthorizing to stay false for an empty pass")
	}
}

func TestWaitReauthorizedReturnsWhenFlagClears(t *testing.T) {
	key := account.NewKey("campaign", "a")
	store := newInitializedStore(key)

	app := &fakeApp{requestFn: func(ctx context.Context, verb, path string, query map[string]string, body []byte, onDone func(transport.RawResponse, error)) {
		acc := account.Account{Authorized: money.NewPool(money.USD(10))}
		data, _ := json.Marshal(acc)
		onDone(transport.RawResponse{StatusCode: 200, Body: data}, nil)
	}}
	e := New(store, app, "r1", money.NewPool(money.USD(0.10)), zerolog.Nop())
	e.Reauthorize(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := e.WaitReauthorized(ctx); err != nil {
		t.Fatalf("WaitReauthorized: %v", err)
	}
}
