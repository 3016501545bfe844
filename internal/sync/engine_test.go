package sync

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"slavebanker/internal/account"
	"slavebanker/internal/money"
	"slavebanker/internal/transport"
)

// fakeApp is a minimal in-process ApplicationLayer stub for exercising
// the reconciliation core without a real transport.
type fakeApp struct {
	syncAccountFn func(ctx context.Context, local account.ShadowAccount, shadowName string, onDone func(account.Account, error))
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
	f.syncAccountFn(ctx, local, shadowName, onDone)
}
func (f *fakeApp) Request(ctx context.Context, verb, path string, query map[string]string, body []byte, onDone func(transport.RawResponse, error)) {
	onDone(transport.RawResponse{StatusCode: 200}, nil)
}

func TestSyncAllEmptySetAdvancesLastSync(t *testing.T) {
	store := account.NewStore(nil, zerolog.Nop())
	app := &fakeApp{}
	e := New(store, app, "r1", time.Second, zerolog.Nop())

	before := e.LastSync()
	done := make(chan error, 1)
	e.syncAll(context.Background(), func(err error) { done <- err })

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("syncAll did not complete for empty set")
	}
	if !e.LastSync().After(before) {
		t.Fatal("expected lastSync to advance on empty set")
	}
}

func TestSyncAllAggregatesAcrossAccounts(t *testing.T) {
	store := account.NewStore(nil, zerolog.Nop())
	keys := []account.Key{account.NewKey("campaign", "a"), account.NewKey("campaign", "b")}
	for _, k := range keys {
		store.CreateAccountAtomic(k)
		store.InitializeAndMergeState(k, account.Account{Authorized: money.NewPool(money.USD(10))})
	}

	app := &fakeApp{syncAccountFn: func(ctx context.Context, local account.ShadowAccount, shadowName string, onDone func(account.Account, error)) {
		onDone(account.Account{Authorized: money.NewPool(money.USD(10))}, nil)
	}}
	e := New(store, app, "r1", time.Second, zerolog.Nop())

	before := e.LastSync()
	done := make(chan error, 1)
	e.syncAll(context.Background(), func(err error) { done <- err })

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("syncAll did not complete")
	}
	if !e.LastSync().After(before) {
		t.Fatal("expected lastSync to advance after successful pass")
	}
}

func TestSyncAllCapturesFirstFailureOnly(t *testing.T) {
	store := account.NewStore(nil, zerolog.Nop())
	keys := []account.Key{account.NewKey("campaign", "a"), account.NewKey("campaign", "b")}
	for _, k := range keys {
		store.CreateAccountAtomic(k)
		store.InitializeAndMergeState(k, account.Account{Authorized: money.NewPool(money.USD(10))})
	}

	app := &fakeApp{syncAccountFn: func(ctx context.Context, local account.ShadowAccount, shadowName string, onDone func(account.Account, error)) {
		onDone(account.Account{}, transport.NewTransportFailure(context.DeadlineExceeded))
	}}
	e := New(store, app, "r1", time.Second, zerolog.Nop())

	before := e.LastSync()
	done := make(chan error, 1)
	e.syncAll(context.Background(), func(err error) { done <- err })

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected aggregated failure")
		}
	case <-time.After(time.Second):
		t.Fatal("syncAll did not complete")
	}
	if e.LastSync().After(before) {
		t.Fatal("lastSync must not advance when the pass has any failure")
	}
}
