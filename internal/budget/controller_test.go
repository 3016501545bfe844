package budget

import (
	"context"
	"testing"

	"slavebanker/internal/account"
	"slavebanker/internal/money"
	"slavebanker/internal/transport"
)

type recordingApp struct {
	transferKind     transport.TransferType
	addAccountCalled bool
}

func (r *recordingApp) AddAccount(ctx context.Context, key account.Key, onDone func(error)) {
	r.addAccountCalled = true
	onDone(nil)
}
func (r *recordingApp) TopupTransfer(ctx context.Context, key account.Key, kind transport.TransferType, amount money.Pool, onDone func(error)) {
	r.transferKind = kind
	onDone(nil)
}
func (r *recordingApp) SetBudget(ctx context.Context, topLevel string, amount money.Pool, onDone func(error)) {
	onDone(nil)
}
func (r *recordingApp) GetAccountSummary(ctx context.Context, key account.Key, depth int, onDone func(account.Summary, error)) {
	onDone(account.Summary{}, nil)
}
func (r *recordingApp) GetAccount(ctx context.Context, key account.Key, onDone func(account.Account, error)) {
	onDone(account.Account{}, nil)
}
func (r *recordingApp) AddSpendAccount(ctx context.Context, shadowName string, onDone func(account.Account, error)) {
	onDone(account.Account{}, nil)
}
func (r *recordingApp) SyncAccount(ctx context.Context, local account.ShadowAccount, shadowName string, onDone func(account.Account, error)) {
	onDone(account.Account{}, nil)
}
func (r *recordingApp) Request(ctx context.Context, verb, path string, query map[string]string, body []byte, onDone func(transport.RawResponse, error)) {
	onDone(transport.RawResponse{}, nil)
}

func TestTopupTransferAlwaysTypedAsBudget(t *testing.T) {
	app := &recordingApp{}
	c := New(app)
	c.TopupTransfer(context.Background(), account.NewKey("campaign", "a"), money.NewPool(money.USD(1)), func(error) {})
	if app.transferKind != transport.TransferBudget {
		t.Fatalf("transferKind = %v, want %v", app.transferKind, transport.TransferBudget)
	}
}

func TestAddBudgetFailsWithoutContactingMaster(t *testing.T) {
	app := &recordingApp{}
	c := New(app)

	var gotErr error
	c.AddBudget(context.Background(), "top", money.NewPool(money.USD(1)), func(err error) { gotErr = err })

	if gotErr == nil {
		t.Fatal("expected AddBudget to fail")
	}
	if app.addAccountCalled {
		t.Fatal("AddBudget must not contact the master")
	}
}

func TestGetAccountListFails(t *testing.T) {
	c := New(&recordingApp{})
	var gotErr error
	c.GetAccountList(context.Background(), func(_ []account.Key, err error) { gotErr = err })
	if gotErr == nil {
		t.Fatal("expected GetAccountList to fail")
	}
}
