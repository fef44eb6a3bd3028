package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var caller = common.HexToAddress("0x0000000000000000000000000000000000000a11")

func newTestClient(srv *httptest.Server) *Client {
	c := NewClient(srv.URL, caller)
	c.retryWait = time.Millisecond
	return c
}

func TestClient_Quote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/conditions/7/quote", r.URL.Path)
		assert.Equal(t, "100000000000", r.URL.Query().Get("amount"))
		assert.Equal(t, "2", r.URL.Query().Get("outcome"))
		assert.Equal(t, caller.Hex(), r.Header.Get("X-Account"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"condition_id":7,"outcome":2,"amount":"100000000000","odds":"1904761904","payout":"190476190400"}`))
	}))
	defer srv.Close()

	q, err := newTestClient(srv).Quote(context.Background(), 7, "100000000000", 2)
	require.NoError(t, err)
	assert.Equal(t, "1904761904", q.Odds)
	assert.Equal(t, "190476190400", q.Payout)
}

func TestClient_BetPostsParams(t *testing.T) {
	limit := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/bets", r.URL.Path)
		var p BetParams
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		assert.Equal(t, uint64(3), p.ConditionID)
		assert.Equal(t, "5000000000", p.Amount)
		assert.True(t, limit.Equal(p.DeadlineLimit))

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":12,"condition_id":3,"outcome":1,"amount":"5000000000","odds":"1900000000"}`))
	}))
	defer srv.Close()

	b, err := newTestClient(srv).Bet(context.Background(), BetParams{
		ConditionID: 3, Amount: "5000000000", Outcome: 1, DeadlineLimit: limit,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(12), b.ID)
	assert.Equal(t, "1900000000", b.Odds)
}

func TestClient_ReadsRetryServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"liquidity":"10","open_conditions":2}`))
	}))
	defer srv.Close()

	s, err := newTestClient(srv).Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "10", s.Liquidity)
	assert.Equal(t, 2, s.OpenConditions)
}

func TestClient_WritesDoNotRetryServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"internal error"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).WithdrawPayout(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
}

func TestClient_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"win":true,"amount":"42"}`))
	}))
	defer srv.Close()

	p, err := newTestClient(srv).WithdrawPayout(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "42", p.Amount)
}

func TestClient_DecodesRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"odds below requested minimum","category":"pricing"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Bet(context.Background(), BetParams{ConditionID: 1, Amount: "1"})
	require.Error(t, err)
	assert.True(t, IsCategory(err, "pricing"))
	assert.False(t, IsCategory(err, "timing"))
	assert.Contains(t, err.Error(), "odds below requested minimum")
}

func TestClient_PlainTextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).ViewPayout(context.Background(), 9)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Contains(t, apiErr.Message, "gone")
}

func TestClient_ConditionAndDeposit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/conditions/4":
			w.Write([]byte(`{"id":4,"state":"open","outcomes":[10,20],"reserves":["1","2"]}`))
		case "/v1/liquidity":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "4100", body["amount"])
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"shares":"4000"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := newTestClient(srv)
	cond, err := c.Condition(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, [2]uint64{10, 20}, cond.Outcomes)
	assert.Equal(t, "open", cond.State)

	shares, err := c.AddLiquidity(context.Background(), "4100")
	require.NoError(t, err)
	assert.Equal(t, "4000", shares)
}
