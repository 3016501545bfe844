// Package transport defines the abstract application layer the
// reconciliation core talks to the master banker through, and the two
// concrete pluggable variants: HTTP and NATS request/reply.
package transport

import (
	"context"

	"slavebanker/internal/account"
	"slavebanker/internal/money"
)

// FailureKind classifies why an ApplicationLayer operation failed, so
// callers can decide "log and retry" from "this is a bug" without
// string-matching an error.
type FailureKind int

const (
	// KindTransport covers timeouts, connection refusal, and non-2xx
	// responses from the master. The sync and reauthorize loops issue
	// their requests again on the next tick; other operations are not
	// retried.
	KindTransport FailureKind = iota
	// KindMergeInvariant means the master's snapshot was inconsistent
	// with local commits; a bug in either side of the protocol. No
	// operation in this repository constructs it: the store reports merge
	// violations as plain errors.
	KindMergeInvariant
	// KindConfiguration means the caller asked for something that is
	// never valid. No operation in this repository constructs it: the
	// budget controller's unsupported operations return
	// budget.ErrUnsupportedOperation.
	KindConfiguration
)

// Failure is the typed error every ApplicationLayer operation reports on
// the non-success path.
type Failure struct {
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string { return f.Err.Error() }
func (f *Failure) Unwrap() error { return f.Err }

// NewTransportFailure wraps err as a transport-kind Failure.
func NewTransportFailure(err error) *Failure { return &Failure{Kind: KindTransport, Err: err} }

// TransferType tags a topupTransfer call with its accounting purpose.
type TransferType string

const (
	TransferBudget TransferType = "budget"
	TransferSpend  TransferType = "spend"
)

// RawResponse is the result of a transport-neutral HTTP-shaped call.
type RawResponse struct {
	StatusCode int
	Body       []byte
}

// ApplicationLayer is the abstract transport to the master banker. Every
// operation completes asynchronously via its onDone callback; the core
// never depends on parallel dispatch within a single operation. A
// SlaveBanker calls one implementation from several goroutines at once
// (the report-spend ticker, the reauthorize ticker and the creation
// bridge), so implementations must be safe for concurrent use; HTTPLayer
// and BusLayer run each call on its own goroutine and report through
// onDone.
type ApplicationLayer interface {
	AddAccount(ctx context.Context, key account.Key, onDone func(error))
	TopupTransfer(ctx context.Context, key account.Key, kind TransferType, amount money.Pool, onDone func(error))
	SetBudget(ctx context.Context, topLevel string, amount money.Pool, onDone func(error))
	GetAccountSummary(ctx context.Context, key account.Key, depth int, onDone func(account.Summary, error))
	GetAccount(ctx context.Context, key account.Key, onDone func(account.Account, error))
	AddSpendAccount(ctx context.Context, shadowName string, onDone func(account.Account, error))
	SyncAccount(ctx context.Context, local account.ShadowAccount, shadowName string, onDone func(account.Account, error))
	Request(ctx context.Context, verb, path string, query map[string]string, body []byte, onDone func(RawResponse, error))
}
