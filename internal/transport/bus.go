package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"slavebanker/internal/account"
	"slavebanker/internal/money"
	"slavebanker/internal/observability"
)

// Subjects the message-bus application layer issues request/reply calls
// on, mirroring the HTTP routes of §6 one-for-one so either transport
// speaks the same master protocol.
const (
	SubjectAddAccount        = "slavebanker.accounts.create"
	SubjectTopupTransfer     = "slavebanker.accounts.balance"
	SubjectSetBudget         = "slavebanker.accounts.budget"
	SubjectGetAccountSummary = "slavebanker.accounts.summary"
	SubjectGetAccount        = "slavebanker.accounts.get"
	SubjectAddSpendAccount   = "slavebanker.accounts.shadow"
	SubjectSyncAccount       = "slavebanker.accounts.sync"
)

// BusLayer implements ApplicationLayer as NATS request/reply calls,
// using plain request/reply (nats.Conn.RequestMsgWithContext) since
// this transport is synchronous RPC, not a durable event stream: every
// call here is a request that expects exactly one reply, unlike a
// fire-and-forget publish onto a durable stream. Each request carries
// an X-Request-Id header, the bus analogue of the HTTP layer's
// correlation ID.
type BusLayer struct {
	conn    *nats.Conn
	log     zerolog.Logger
	metrics *observability.Metrics
}

// NewBusLayer builds a message-bus application layer over an already
// connected NATS client.
func NewBusLayer(conn *nats.Conn, log zerolog.Logger) *BusLayer {
	return &BusLayer{conn: conn, log: log}
}

// SetMetrics attaches the process-wide metrics registry. Nil leaves the
// layer silently uninstrumented.
func (b *BusLayer) SetMetrics(m *observability.Metrics) {
	b.metrics = m
}

func (b *BusLayer) request(ctx context.Context, subject string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request for %s: %w", subject, err)
	}

	req := nats.NewMsg(subject)
	req.Data = data
	req.Header = nats.Header{"X-Request-Id": []string{uuid.NewString()}}

	msg, err := b.conn.RequestMsgWithContext(ctx, req)
	if err != nil {
		b.log.Warn().Err(err).Str("subject", subject).Msg("master bus request failed")
		if b.metrics != nil {
			b.metrics.TransportFailures.WithLabelValues(subject).Inc()
		}
		return nil, NewTransportFailure(err)
	}
	if msg.Header.Get("Status") == "error" {
		if b.metrics != nil {
			b.metrics.TransportFailures.WithLabelValues(subject).Inc()
		}
		return nil, NewTransportFailure(fmt.Errorf("master replied with error on %s: %s", subject, msg.Data))
	}
	return msg.Data, nil
}

func (b *BusLayer) AddAccount(ctx context.Context, key account.Key, onDone func(error)) {
	go func() {
		_, err := b.request(ctx, SubjectAddAccount, map[string]string{"key": key.String()})
		onDone(err)
	}()
}

func (b *BusLayer) TopupTransfer(ctx context.Context, key account.Key, kind TransferType, amount money.Pool, onDone func(error)) {
	go func() {
		_, err := b.request(ctx, SubjectTopupTransfer, topupRequest{
			Key: key.String(), AccountType: kind, Amount: amount,
		})
		onDone(err)
	}()
}

func (b *BusLayer) SetBudget(ctx context.Context, topLevel string, amount money.Pool, onDone func(error)) {
	go func() {
		_, err := b.request(ctx, SubjectSetBudget, setBudgetRequest{TopLevel: topLevel, Amount: amount})
		onDone(err)
	}()
}

func (b *BusLayer) GetAccountSummary(ctx context.Context, key account.Key, depth int, onDone func(account.Summary, error)) {
	go func() {
		data, err := b.request(ctx, SubjectGetAccountSummary, summaryRequest{Key: key.String(), Depth: depth})
		if err != nil {
			onDone(account.Summary{}, err)
			return
		}
		var summary account.Summary
		if jerr := json.Unmarshal(data, &summary); jerr != nil {
			onDone(account.Summary{}, NewTransportFailure(fmt.Errorf("decode summary: %w", jerr)))
			return
		}
		onDone(summary, nil)
	}()
}

func (b *BusLayer) GetAccount(ctx context.Context, key account.Key, onDone func(account.Account, error)) {
	go func() {
		b.requestAccount(ctx, SubjectGetAccount, map[string]string{"key": key.String()}, onDone)
	}()
}

func (b *BusLayer) AddSpendAccount(ctx context.Context, shadowName string, onDone func(account.Account, error)) {
	go func() {
		b.requestAccount(ctx, SubjectAddSpendAccount, map[string]string{"shadowName": shadowName}, onDone)
	}()
}

func (b *BusLayer) SyncAccount(ctx context.Context, local account.ShadowAccount, shadowName string, onDone func(account.Account, error)) {
	go func() {
		b.requestAccount(ctx, SubjectSyncAccount, syncRequestBody{
			Committed:  local.Committed,
			Authorized: local.Authorized,
		}, onDone)
	}()
}

// Request adapts the HTTP-shaped escape hatch (§6, used by the
// reauthorize engine) onto the bus: verb+path become the subject,
// mirroring the HTTP route one-for-one via pathToSubject.
func (b *BusLayer) Request(ctx context.Context, verb, path string, query map[string]string, body []byte, onDone func(RawResponse, error)) {
	go func() {
		data, err := b.request(ctx, pathToSubject(verb, path, query), json.RawMessage(body))
		if err != nil {
			onDone(RawResponse{}, err)
			return
		}
		onDone(RawResponse{StatusCode: 200, Body: data}, nil)
	}()
}

func (b *BusLayer) requestAccount(ctx context.Context, subject string, payload any, onDone func(account.Account, error)) {
	data, err := b.request(ctx, subject, payload)
	if err != nil {
		onDone(account.Account{}, err)
		return
	}
	var acc account.Account
	if jerr := json.Unmarshal(data, &acc); jerr != nil {
		onDone(account.Account{}, NewTransportFailure(fmt.Errorf("decode account: %w", jerr)))
		return
	}
	onDone(acc, nil)
}

type topupRequest struct {
	Key         string       `json:"key"`
	AccountType TransferType `json:"accountType"`
	Amount      money.Pool   `json:"amount"`
}

type setBudgetRequest struct {
	TopLevel string     `json:"topLevel"`
	Amount   money.Pool `json:"amount"`
}

type summaryRequest struct {
	Key   string `json:"key"`
	Depth int    `json:"depth"`
}

// pathToSubject turns the reauthorize engine's HTTP-shaped call (the
// only caller of Request in this codebase) into a bus subject of the
// form "slavebanker.raw.<verb><path>?<query>". This is a separate
// subject from SubjectTopupTransfer.
func pathToSubject(verb, path string, query map[string]string) string {
	u := url.URL{Path: path}
	if len(query) > 0 {
		q := u.Query()
		for k, v := range query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return fmt.Sprintf("slavebanker.raw.%s%s?%s", verb, u.Path, u.RawQuery)
}
