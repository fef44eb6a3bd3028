// Package apiclient talks to a running oddspool server.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"
)

const (
	defaultBase = "http://127.0.0.1:8080"

	ratePerSec    = 10
	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status   int
	Message  string `json:"error"`
	Category string `json:"category"`
}

func (e *APIError) Error() string {
	if e.Category != "" {
		return fmt.Sprintf("api %d (%s): %s", e.Status, e.Category, e.Message)
	}
	return fmt.Sprintf("api %d: %s", e.Status, e.Message)
}

// Client is an HTTP client for the oddspool API with rate limiting and
// retries. Retries on server errors only happen for reads.
type Client struct {
	http      *http.Client
	base      string
	account   common.Address
	limiter   *rate.Limiter
	retryWait time.Duration
}

// NewClient acts as account against base. An empty base means the local
// default.
func NewClient(base string, account common.Address) *Client {
	if base == "" {
		base = defaultBase
	}
	return &Client{
		http:      &http.Client{Timeout: 30 * time.Second},
		base:      base,
		account:   account,
		limiter:   rate.NewLimiter(ratePerSec, 5),
		retryWait: baseRetryWait,
	}
}

// --- calls ---

type Condition struct {
	ID             uint64    `json:"id"`
	State          string    `json:"state"`
	Outcomes       [2]uint64 `json:"outcomes"`
	Reserves       [2]string `json:"reserves"`
	Deadline       time.Time `json:"deadline"`
	WinningOutcome uint64    `json:"winning_outcome"`
}

func (c *Client) Condition(ctx context.Context, id uint64) (Condition, error) {
	var out Condition
	err := c.get(ctx, fmt.Sprintf("/v1/conditions/%d", id), &out)
	return out, err
}

type Quote struct {
	ConditionID uint64 `json:"condition_id"`
	Outcome     uint64 `json:"outcome"`
	Amount      string `json:"amount"`
	Odds        string `json:"odds"`
	Payout      string `json:"payout"`
}

func (c *Client) Quote(ctx context.Context, conditionID uint64, amount string, outcome uint64) (Quote, error) {
	q := url.Values{}
	q.Set("amount", amount)
	q.Set("outcome", strconv.FormatUint(outcome, 10))
	var out Quote
	err := c.get(ctx, fmt.Sprintf("/v1/conditions/%d/quote?%s", conditionID, q.Encode()), &out)
	return out, err
}

type BetParams struct {
	ConditionID   uint64         `json:"condition_id"`
	Amount        string         `json:"amount"`
	Outcome       uint64         `json:"outcome"`
	DeadlineLimit time.Time      `json:"deadline_limit"`
	MinOdds       string         `json:"min_odds,omitempty"`
	Affiliate     common.Address `json:"affiliate"`
}

type Bet struct {
	ID          uint64         `json:"id"`
	ConditionID uint64         `json:"condition_id"`
	Outcome     uint64         `json:"outcome"`
	Amount      string         `json:"amount"`
	Odds        string         `json:"odds"`
	Settled     bool           `json:"settled"`
	Affiliate   common.Address `json:"affiliate"`
	CreatedAt   time.Time      `json:"created_at"`
}

func (c *Client) Bet(ctx context.Context, p BetParams) (Bet, error) {
	var out Bet
	err := c.post(ctx, "/v1/bets", p, &out)
	return out, err
}

type Payout struct {
	Win     bool   `json:"win"`
	Amount  string `json:"amount"`
	Pending string `json:"pending,omitempty"` // set while the transfer is unconfirmed
}

func (c *Client) ViewPayout(ctx context.Context, betID uint64) (Payout, error) {
	var out Payout
	err := c.get(ctx, fmt.Sprintf("/v1/bets/%d/payout", betID), &out)
	return out, err
}

func (c *Client) WithdrawPayout(ctx context.Context, betID uint64) (Payout, error) {
	var out Payout
	err := c.post(ctx, fmt.Sprintf("/v1/bets/%d/withdraw", betID), nil, &out)
	return out, err
}

// AddLiquidity deposits amount and returns the minted shares.
func (c *Client) AddLiquidity(ctx context.Context, amount string) (string, error) {
	var out struct {
		Shares string `json:"shares"`
	}
	err := c.post(ctx, "/v1/liquidity", map[string]string{"amount": amount}, &out)
	return out.Shares, err
}

type Snapshot struct {
	Liquidity      string `json:"liquidity"`
	Locked         string `json:"locked"`
	Free           string `json:"free"`
	Escrow         string `json:"escrow"`
	PayoutReserve  string `json:"payout_reserve"`
	TotalShares    string `json:"total_shares"`
	OpenConditions int    `json:"open_conditions"`
	Depositors     int    `json:"depositors"`
}

func (c *Client) Snapshot(ctx context.Context) (Snapshot, error) {
	var out Snapshot
	err := c.get(ctx, "/v1/pool", &out)
	return out, err
}

// --- transport ---

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.doWithRetry(ctx, true, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
		if err != nil {
			return nil, err
		}
		c.headers(req)
		return c.http.Do(req)
	}, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	var b []byte
	if body != nil {
		var err error
		if b, err = json.Marshal(body); err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
	}
	return c.doWithRetry(ctx, false, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		c.headers(req)
		req.Header.Set("Content-Type", "application/json")
		return c.http.Do(req)
	}, out)
}

func (c *Client) headers(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Account", c.account.Hex())
}

// doWithRetry runs fn with exponential backoff. A 429 is always retried;
// transport failures and 5xx only when idempotent is set.
func (c *Client) doWithRetry(ctx context.Context, idempotent bool, fn func() (*http.Response, error), out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			if !idempotent || attempt == maxRetries {
				return fmt.Errorf("request failed: %w", err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			slog.Warn("apiclient: rate limited", "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 500 && idempotent && attempt < maxRetries {
			resp.Body.Close()
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			return decodeError(resp)
		}

		defer resp.Body.Close()
		if out == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

func decodeError(resp *http.Response) error {
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	apiErr := &APIError{Status: resp.StatusCode}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = string(body)
	}
	return apiErr
}

// sleep waits with exponential backoff, honoring ctx.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * c.retryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}

// IsCategory reports whether err is an API rejection of the given category.
func IsCategory(err error, category string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Category == category
}
