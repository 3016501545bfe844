package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"slavebanker/internal/account"
	"slavebanker/internal/money"
	"slavebanker/internal/observability"
)

// HTTPLayer implements ApplicationLayer as request/response calls against
// the master's HTTP-flavored protocol (§6). Each call runs on its own
// goroutine so the caller never blocks; onDone is invoked exactly once,
// on that goroutine, when the round trip completes.
type HTTPLayer struct {
	client  *http.Client
	baseURL string
	log     zerolog.Logger
	metrics *observability.Metrics
}

// NewHTTPLayer builds an HTTP application layer against the master at
// baseURL (e.g. "http://master-banker:9000").
func NewHTTPLayer(baseURL string, client *http.Client, log zerolog.Logger) *HTTPLayer {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPLayer{client: client, baseURL: baseURL, log: log}
}

// SetMetrics attaches the process-wide metrics registry. Nil leaves the
// layer silently uninstrumented.
func (h *HTTPLayer) SetMetrics(m *observability.Metrics) {
	h.metrics = m
}

func (h *HTTPLayer) do(ctx context.Context, verb, path string, query map[string]string, body []byte) (RawResponse, error) {
	u, err := url.Parse(h.baseURL + path)
	if err != nil {
		return RawResponse{}, fmt.Errorf("build request url: %w", err)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, v := range query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, verb, u.String(), bytes.NewReader(body))
	if err != nil {
		return RawResponse{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := h.client.Do(req)
	if err != nil {
		return RawResponse{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return RawResponse{}, fmt.Errorf("read response: %w", err)
	}

	return RawResponse{StatusCode: resp.StatusCode, Body: respBody}, nil
}

// Request is the raw HTTP-shaped escape hatch the reauthorize engine
// uses directly (§4.4, §6).
func (h *HTTPLayer) Request(ctx context.Context, verb, path string, query map[string]string, body []byte, onDone func(RawResponse, error)) {
	go func() {
		resp, err := h.do(ctx, verb, path, query, body)
		if f := h.successOrFailure(resp, err, verb, path); f != nil {
			onDone(resp, f)
			return
		}
		onDone(resp, nil)
	}()
}

func (h *HTTPLayer) AddAccount(ctx context.Context, key account.Key, onDone func(error)) {
	go func() {
		body, _ := json.Marshal(map[string]string{"key": key.String()})
		resp, err := h.do(ctx, "POST", "/v1/accounts", nil, body)
		onDone(h.successOrFailure(resp, err, "POST", "/v1/accounts"))
	}()
}

func (h *HTTPLayer) TopupTransfer(ctx context.Context, key account.Key, kind TransferType, amount money.Pool, onDone func(error)) {
	go func() {
		body, _ := json.Marshal(amount)
		path := fmt.Sprintf("/v1/accounts/%s/balance", url.PathEscape(key.String()))
		query := map[string]string{"accountType": string(kind)}
		resp, err := h.do(ctx, "POST", path, query, body)
		onDone(h.successOrFailure(resp, err, "POST", path))
	}()
}

func (h *HTTPLayer) SetBudget(ctx context.Context, topLevel string, amount money.Pool, onDone func(error)) {
	go func() {
		body, _ := json.Marshal(amount)
		path := fmt.Sprintf("/v1/accounts/%s/budget", url.PathEscape(topLevel))
		resp, err := h.do(ctx, "POST", path, nil, body)
		onDone(h.successOrFailure(resp, err, "POST", path))
	}()
}

func (h *HTTPLayer) GetAccountSummary(ctx context.Context, key account.Key, depth int, onDone func(account.Summary, error)) {
	go func() {
		path := fmt.Sprintf("/v1/accounts/%s/summary", url.PathEscape(key.String()))
		resp, err := h.do(ctx, "GET", path, map[string]string{"depth": strconv.Itoa(depth)}, nil)
		if f := h.successOrFailure(resp, err, "GET", path); f != nil {
			onDone(account.Summary{}, f)
			return
		}
		var summary account.Summary
		if err := json.Unmarshal(resp.Body, &summary); err != nil {
			onDone(account.Summary{}, NewTransportFailure(fmt.Errorf("decode summary: %w", err)))
			return
		}
		onDone(summary, nil)
	}()
}

func (h *HTTPLayer) GetAccount(ctx context.Context, key account.Key, onDone func(account.Account, error)) {
	go func() {
		path := fmt.Sprintf("/v1/accounts/%s", url.PathEscape(key.String()))
		resp, err := h.do(ctx, "GET", path, nil, nil)
		h.decodeAccount(resp, err, "GET", path, onDone)
	}()
}

func (h *HTTPLayer) AddSpendAccount(ctx context.Context, shadowName string, onDone func(account.Account, error)) {
	go func() {
		path := fmt.Sprintf("/v1/accounts/%s/shadow", url.PathEscape(shadowName))
		resp, err := h.do(ctx, "POST", path, nil, nil)
		h.decodeAccount(resp, err, "POST", path, onDone)
	}()
}

func (h *HTTPLayer) SyncAccount(ctx context.Context, local account.ShadowAccount, shadowName string, onDone func(account.Account, error)) {
	go func() {
		body, _ := json.Marshal(syncRequestBody{
			Committed:  local.Committed,
			Authorized: local.Authorized,
		})
		path := fmt.Sprintf("/v1/accounts/%s", url.PathEscape(shadowName))
		resp, err := h.do(ctx, "POST", path, nil, body)
		h.decodeAccount(resp, err, "POST", path, onDone)
	}()
}

type syncRequestBody struct {
	Committed  money.Pool `json:"committed"`
	Authorized money.Pool `json:"authorized"`
}

func (h *HTTPLayer) decodeAccount(resp RawResponse, err error, verb, path string, onDone func(account.Account, error)) {
	if f := h.successOrFailure(resp, err, verb, path); f != nil {
		onDone(account.Account{}, f)
		return
	}
	var acc account.Account
	if err := json.Unmarshal(resp.Body, &acc); err != nil {
		onDone(account.Account{}, NewTransportFailure(fmt.Errorf("decode account: %w", err)))
		return
	}
	onDone(acc, nil)
}

func (h *HTTPLayer) successOrFailure(resp RawResponse, err error, verb, path string) error {
	if err != nil {
		h.log.Warn().Err(err).Str("verb", verb).Str("path", path).Msg("master request failed")
		h.countFailure(verb)
		return NewTransportFailure(err)
	}
	if resp.StatusCode/100 != 2 {
		h.countFailure(verb)
		return NewTransportFailure(fmt.Errorf("master returned status %d for %s %s", resp.StatusCode, verb, path))
	}
	return nil
}

func (h *HTTPLayer) countFailure(operation string) {
	if h.metrics != nil {
		h.metrics.TransportFailures.WithLabelValues(operation).Inc()
	}
}
