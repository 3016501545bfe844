// Package budget provides the thin operator-facing facade over the
// application layer: account admin operations with no reconciliation
// logic of their own.
package budget

import (
	"context"
	"fmt"

	"slavebanker/internal/account"
	"slavebanker/internal/money"
	"slavebanker/internal/transport"
)

// Controller forwards admin operations directly to the application
// layer. The two legacy operations, AddBudget and GetAccountList, are
// kept as methods only to reject calls: each fails with
// ErrUnsupportedOperation without contacting the master.
type Controller struct {
	app transport.ApplicationLayer
}

// New builds a budget controller over app.
func New(app transport.ApplicationLayer) *Controller {
	return &Controller{app: app}
}

func (c *Controller) AddAccount(ctx context.Context, key account.Key, onDone func(error)) {
	c.app.AddAccount(ctx, key, onDone)
}

// TopupTransfer always tags the transfer as a budget transfer — the
// controller never issues a spend-type transfer, that's the
// reauthorize engine's job.
func (c *Controller) TopupTransfer(ctx context.Context, key account.Key, amount money.Pool, onDone func(error)) {
	c.app.TopupTransfer(ctx, key, transport.TransferBudget, amount, onDone)
}

func (c *Controller) SetBudget(ctx context.Context, topLevel string, amount money.Pool, onDone func(error)) {
	c.app.SetBudget(ctx, topLevel, amount, onDone)
}

func (c *Controller) GetAccountSummary(ctx context.Context, key account.Key, depth int, onDone func(account.Summary, error)) {
	c.app.GetAccountSummary(ctx, key, depth, onDone)
}

func (c *Controller) GetAccount(ctx context.Context, key account.Key, onDone func(account.Account, error)) {
	c.app.GetAccount(ctx, key, onDone)
}

// ErrUnsupportedOperation is returned by the two legacy operations this
// controller refuses to perform. It's a configuration/programming
// error, never a runtime condition — callers should treat it as a bug
// in the caller, not something to retry.
type ErrUnsupportedOperation struct {
	Operation    string
	SupersededBy string
}

func (e *ErrUnsupportedOperation) Error() string {
	return fmt.Sprintf("%s is no longer supported, use %s instead", e.Operation, e.SupersededBy)
}

// AddBudget is superseded by TopupTransfer and always fails without
// contacting the master.
func (c *Controller) AddBudget(ctx context.Context, topLevel string, amount money.Pool, onDone func(error)) {
	onDone(&ErrUnsupportedOperation{Operation: "addBudget", SupersededBy: "topupTransfer"})
}

// GetAccountList is superseded by GetAccountSummary (the master now
// returns lists via summaries) and always fails without contacting the
// master.
func (c *Controller) GetAccountList(ctx context.Context, onDone func([]account.Key, error)) {
	onDone(nil, &ErrUnsupportedOperation{Operation: "getAccountList", SupersededBy: "getAccountSummary"})
}
