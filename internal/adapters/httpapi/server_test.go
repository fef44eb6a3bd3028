package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/oddspool/internal/adapters/access"
	"github.com/alejandrodnm/oddspool/internal/adapters/asset"
	"github.com/alejandrodnm/oddspool/internal/adapters/httpapi"
	"github.com/alejandrodnm/oddspool/internal/adapters/metrics"
	"github.com/alejandrodnm/oddspool/internal/adapters/notify"
	"github.com/alejandrodnm/oddspool/internal/adapters/receipt"
	"github.com/alejandrodnm/oddspool/internal/adapters/storage"
	"github.com/alejandrodnm/oddspool/internal/application/pool"
	"github.com/alejandrodnm/oddspool/internal/domain"
	"github.com/alejandrodnm/oddspool/internal/ports"
)

var (
	poolAccount = common.HexToAddress("0x0000000000000000000000000000000000000900")
	admin       = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	oracle      = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	maintainer  = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	depositor   = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	alice       = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob         = common.HexToAddress("0x0000000000000000000000000000000000000b0b")

	start = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
)

type env struct {
	handler http.Handler
	now     *time.Time
	token   *stallingToken
}

// stallingToken leaves every transfer pending while stall is set.
type stallingToken struct {
	*asset.Token
	stall atomic.Bool
	n     atomic.Int32
}

func (s *stallingToken) Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) error {
	if s.stall.Load() {
		ref := fmt.Sprintf("0xfeed%d", s.n.Add(1))
		return &ports.PendingTransferError{Ref: ref, Err: errors.New("no receipt yet")}
	}
	return s.Token.Transfer(ctx, from, to, amount)
}

func unitsDec(n uint64) string {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1_000_000_000)).Dec()
}

func newEnv(t *testing.T, opts ...func(*httpapi.Options)) *env {
	t.Helper()
	now := start
	clock := ports.ClockFunc(func() time.Time { return now })

	token := &stallingToken{Token: asset.NewToken("USDC")}
	for _, a := range []common.Address{depositor, alice, bob} {
		token.Mint(a, uint256.MustFromDecimal(unitsDec(100_000)))
	}
	receipts := receipt.NewRegistry()
	roles := access.NewRoles(map[domain.Role][]common.Address{
		domain.RoleAdmin:      {admin},
		domain.RoleOracle:     {oracle},
		domain.RoleMaintainer: {maintainer},
	})
	journal, err := storage.NewSQLiteJournal(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg, 9, 9)

	cfg := pool.DefaultConfig()
	cfg.Account = poolAccount
	p := pool.New(cfg, token, receipts, roles, clock, notify.Multi{journal, collector})
	metrics.RegisterPool(reg, p, 9)

	o := httpapi.Options{
		Pool:              p,
		Receipts:          receipts,
		Roles:             roles,
		Journal:           journal,
		Gatherer:          reg,
		RequestsPerSecond: 1000,
		Burst:             1000,
	}
	for _, f := range opts {
		f(&o)
	}
	return &env{handler: httpapi.NewServer(o).Handler(), now: &now, token: token}
}

func (e *env) do(t *testing.T, method, path string, caller *common.Address, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if caller != nil {
		req.Header.Set(httpapi.AccountHeader, caller.Hex())
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func (e *env) seed(t *testing.T) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/v1/liquidity", &depositor, map[string]string{"amount": unitsDec(50_000)})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = e.do(t, http.MethodPost, "/v1/conditions", &oracle, map[string]any{
		"id":       1,
		"weights":  []uint64{1, 1},
		"outcomes": []uint64{1, 2},
		"deadline": start.Add(24 * time.Hour),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (e *env) placeBet(t *testing.T, who common.Address, units uint64, outcome uint64) map[string]any {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/v1/bets", &who, map[string]any{
		"condition_id":   1,
		"amount":         unitsDec(units),
		"outcome":        outcome,
		"deadline_limit": e.now.Add(time.Hour),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out map[string]any
	decodeJSON(t, rec, &out)
	return out
}

func TestServer_Health(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_BetLifecycle(t *testing.T) {
	e := newEnv(t)
	e.seed(t)

	rec := e.do(t, http.MethodGet, "/v1/conditions/1/quote?amount="+unitsDec(100)+"&outcome=1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var quote map[string]any
	decodeJSON(t, rec, &quote)
	assert.Equal(t, "1904761904", quote["odds"])

	bet := e.placeBet(t, alice, 100, 1)
	assert.Equal(t, "1904761904", bet["odds"])
	e.placeBet(t, bob, 100, 2)

	rec = e.do(t, http.MethodGet, "/v1/bets/1/payout", nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"category":"settlement"`)

	rec = e.do(t, http.MethodPost, "/v1/conditions/1/resolve", &oracle, map[string]uint64{"outcome": 1})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"category":"timing"`)

	*e.now = start.Add(24 * time.Hour)
	rec = e.do(t, http.MethodPost, "/v1/conditions/1/resolve", &oracle, map[string]uint64{"outcome": 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(t, http.MethodPost, "/v1/bets/1/withdraw", &bob, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(t, http.MethodPost, "/v1/bets/1/withdraw", &alice, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var paid map[string]any
	decodeJSON(t, rec, &paid)
	assert.Equal(t, "190476190400", paid["amount"])

	rec = e.do(t, http.MethodPost, "/v1/bets/2/withdraw", &bob, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), domain.ErrNoWinNoPrize.Error())

	rec = e.do(t, http.MethodGet, "/v1/bets/1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var info map[string]any
	decodeJSON(t, rec, &info)
	assert.Equal(t, true, info["settled"])

	rec = e.do(t, http.MethodGet, "/v1/events?kind=bet_placed", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var events []map[string]any
	decodeJSON(t, rec, &events)
	assert.Len(t, events, 2)
}

func TestServer_ReceiptTransferMovesPayoutRight(t *testing.T) {
	e := newEnv(t)
	e.seed(t)
	e.placeBet(t, alice, 50, 2)

	rec := e.do(t, http.MethodPost, "/v1/receipts/1/transfer", &alice, map[string]string{"to": bob.Hex()})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = e.do(t, http.MethodPost, "/v1/receipts/1/transfer", &alice, map[string]string{"to": alice.Hex()})
	assert.Equal(t, http.StatusConflict, rec.Code)

	*e.now = start.Add(24 * time.Hour)
	rec = e.do(t, http.MethodPost, "/v1/conditions/1/cancel", &maintainer, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(t, http.MethodPost, "/v1/bets/1/withdraw", &alice, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = e.do(t, http.MethodPost, "/v1/bets/1/withdraw", &bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), unitsDec(50))
}

func TestServer_StatusMapping(t *testing.T) {
	e := newEnv(t)
	e.seed(t)

	tests := []struct {
		name   string
		method string
		path   string
		caller *common.Address
		body   any
		want   int
	}{
		{"missing account", http.MethodPost, "/v1/bets", nil, map[string]any{}, http.StatusUnauthorized},
		{"not oracle", http.MethodPost, "/v1/conditions", &alice, map[string]any{
			"id": 2, "weights": []uint64{1, 1}, "outcomes": []uint64{1, 2}, "deadline": start.Add(time.Hour),
		}, http.StatusForbidden},
		{"unknown condition", http.MethodGet, "/v1/conditions/99", nil, nil, http.StatusNotFound},
		{"unknown bet", http.MethodGet, "/v1/bets/99", nil, nil, http.StatusNotFound},
		{"bad id", http.MethodGet, "/v1/conditions/abc", nil, nil, http.StatusBadRequest},
		{"bad amount", http.MethodPost, "/v1/bets", &alice, map[string]any{"condition_id": 1, "amount": "1.5"}, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/v1/liquidity", &alice, map[string]any{"amount": "1", "extra": 1}, http.StatusBadRequest},
		{"bet too small", http.MethodPost, "/v1/bets", &alice, map[string]any{
			"condition_id": 1, "amount": "1000", "outcome": 1, "deadline_limit": start.Add(time.Hour),
		}, http.StatusBadRequest},
		{"odds slippage", http.MethodPost, "/v1/bets", &alice, map[string]any{
			"condition_id": 1, "amount": unitsDec(10), "outcome": 1, "deadline_limit": start.Add(time.Hour),
			"min_odds": "5000000000",
		}, http.StatusUnprocessableEntity},
		{"no funds", http.MethodPost, "/v1/liquidity", &maintainer, map[string]any{"amount": unitsDec(1)}, http.StatusPaymentRequired},
		{"withdraw too early", http.MethodPost, "/v1/liquidity/withdraw", &depositor, map[string]any{"shares": unitsDec(1)}, http.StatusConflict},
		{"unknown role", http.MethodGet, "/v1/roles/king", nil, nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(t, tt.method, tt.path, tt.caller, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestServer_LiquidityRequests(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodPost, "/v1/liquidity", &depositor, map[string]string{"amount": unitsDec(100)})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = e.do(t, http.MethodPost, "/v1/liquidity/requests", &depositor, map[string]string{"shares": unitsDec(40)})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var req map[string]string
	decodeJSON(t, rec, &req)
	assert.Equal(t, start.Add(7*24*time.Hour).Format(time.RFC3339), req["matures_at"])

	rec = e.do(t, http.MethodGet, "/v1/liquidity/"+depositor.Hex(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var acct struct {
		Shares   string              `json:"shares"`
		Requests []map[string]string `json:"requests"`
	}
	decodeJSON(t, rec, &acct)
	assert.Equal(t, unitsDec(100), acct.Shares)
	assert.Len(t, acct.Requests, 1)

	*e.now = start.Add(7 * 24 * time.Hour)
	rec = e.do(t, http.MethodPost, "/v1/liquidity/withdraw", &depositor, map[string]string{"shares": unitsDec(40)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), unitsDec(40))

	rec = e.do(t, http.MethodGet, "/v1/pool", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var snap map[string]any
	decodeJSON(t, rec, &snap)
	assert.Equal(t, unitsDec(60), snap["liquidity"])
	assert.Equal(t, float64(1), snap["depositors"])
}

func TestServer_Roles(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/v1/roles/oracle", &alice, map[string]any{"account": bob.Hex(), "grant": true})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodPost, "/v1/roles/oracle", &admin, map[string]any{"account": bob.Hex(), "grant": true})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = e.do(t, http.MethodGet, "/v1/roles/oracle", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, strings.ToLower(rec.Body.String()), strings.ToLower(bob.Hex()))
}

func TestServer_Metrics(t *testing.T) {
	e := newEnv(t)
	e.seed(t)
	e.placeBet(t, alice, 10, 1)

	rec := e.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `oddspool_events_total{kind="bet_placed"} 1`)
	assert.Contains(t, body, "oddspool_pool_open_conditions 1")
}

func TestServer_RateLimit(t *testing.T) {
	e := newEnv(t, func(o *httpapi.Options) {
		o.RequestsPerSecond = 0.001
		o.Burst = 2
	})

	codes := make([]int, 0, 3)
	for range 3 {
		codes = append(codes, e.do(t, http.MethodGet, "/v1/pool", nil, nil).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// Health stays outside the limiter.
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/health", nil, nil).Code)
}

func TestServer_UnconfirmedTransfers(t *testing.T) {
	e := newEnv(t)
	e.seed(t)
	e.placeBet(t, alice, 100, 1)
	*e.now = start.Add(24 * time.Hour)
	rec := e.do(t, http.MethodPost, "/v1/conditions/1/resolve", &oracle, map[string]uint64{"outcome": 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	e.token.stall.Store(true)
	rec = e.do(t, http.MethodPost, "/v1/bets/1/withdraw", &alice, nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var paid map[string]any
	decodeJSON(t, rec, &paid)
	assert.Equal(t, "190476190400", paid["amount"])
	assert.Equal(t, "0xfeed1", paid["pending"])

	rec = e.do(t, http.MethodPost, "/v1/bets/1/withdraw", &alice, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), domain.ErrAlreadySettled.Error())

	// A deposit left pending mints no shares.
	rec = e.do(t, http.MethodPost, "/v1/liquidity", &bob, map[string]string{"amount": unitsDec(10)})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"pending":"0xfeed2"`)
	assert.Contains(t, rec.Body.String(), `"category":"settlement"`)

	rec = e.do(t, http.MethodGet, "/v1/transfers/pending", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pending []map[string]any
	decodeJSON(t, rec, &pending)
	require.Len(t, pending, 2)
	assert.Equal(t, "payout", pending[0]["kind"])
	assert.Equal(t, float64(1), pending[0]["bet_id"])
	assert.Equal(t, "deposit", pending[1]["kind"])
}
