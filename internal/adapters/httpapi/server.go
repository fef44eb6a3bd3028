// Package httpapi serves the pool over JSON/HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alejandrodnm/oddspool/internal/adapters/asset"
	"github.com/alejandrodnm/oddspool/internal/application/ledger"
	"github.com/alejandrodnm/oddspool/internal/application/pool"
	"github.com/alejandrodnm/oddspool/internal/domain"
	"github.com/alejandrodnm/oddspool/internal/ports"
)

// RoleAdmin manages role membership.
type RoleAdmin interface {
	Grant(caller common.Address, role domain.Role, account common.Address) error
	Revoke(caller common.Address, role domain.Role, account common.Address) error
	Members(role domain.Role) []common.Address
}

// Options wires the server's collaborators. Journal, Roles and Gatherer are
// optional; their routes are only mounted when set.
type Options struct {
	Pool     *pool.Pool
	Receipts ports.ReceiptRegistry
	Roles    RoleAdmin
	Journal  ports.EventJournal
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger

	RequestsPerSecond float64
	Burst             int
	RequestTimeout    time.Duration
}

// Server is the HTTP front of a pool.
type Server struct {
	opts    Options
	limiter *clientLimiter
}

func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 20
	}
	if opts.Burst <= 0 {
		opts.Burst = 40
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 90 * time.Second
	}
	return &Server{
		opts:    opts,
		limiter: newClientLimiter(opts.RequestsPerSecond, opts.Burst),
	}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.opts.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.opts.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.limiter.rateLimit)

		// Reads.
		r.Get("/pool", s.handleSnapshot)
		r.Get("/conditions", s.handleListConditions)
		r.Get("/conditions/{id}", s.handleGetCondition)
		r.Get("/conditions/{id}/quote", s.handleQuote)
		r.Get("/bets/{id}", s.handleGetBet)
		r.Get("/bets/{id}/payout", s.handleViewPayout)
		r.Get("/liquidity/{account}", s.handleAccount)
		r.Get("/transfers/pending", s.handlePendingTransfers)
		if s.opts.Journal != nil {
			r.Get("/events", s.handleEvents)
		}
		if s.opts.Roles != nil {
			r.Get("/roles/{role}", s.handleRoleMembers)
		}

		// Writes need a caller.
		r.Group(func(r chi.Router) {
			r.Use(requireAccount)

			r.Post("/conditions", s.handleCreateCondition)
			r.Post("/conditions/{id}/resolve", s.handleResolve)
			r.Post("/conditions/{id}/cancel", s.handleCancel)
			r.Post("/bets", s.handleBet)
			r.Post("/bets/{id}/withdraw", s.handleWithdrawPayout)
			r.Post("/receipts/{id}/transfer", s.handleTransferReceipt)
			r.Post("/liquidity", s.handleAddLiquidity)
			r.Post("/liquidity/requests", s.handleRequestLiquidity)
			r.Post("/liquidity/withdraw", s.handleWithdrawLiquidity)
			if s.opts.Roles != nil {
				r.Post("/roles/{role}", s.handleSetRole)
			}
		})
	})

	return r
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps err to a status code by its category.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := map[string]string{"error": err.Error()}
	if c := domain.CategoryOf(err); c != "" {
		body["category"] = string(c)
	}
	if ref := pendingRef(err); ref != "" {
		body["pending"] = ref
	}
	if status >= http.StatusInternalServerError {
		s.opts.Logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "err", err)
		body = map[string]string{"error": "internal error"}
	}
	writeJSON(w, status, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrConditionNotFound),
		errors.Is(err, domain.ErrBetNotFound),
		errors.Is(err, domain.ErrReceiptNotFound):
		return http.StatusNotFound
	case errors.Is(err, asset.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	}
	switch domain.CategoryOf(err) {
	case domain.CategoryAuthorization:
		return http.StatusForbidden
	case domain.CategoryValidation:
		return http.StatusBadRequest
	case domain.CategoryPricing:
		return http.StatusUnprocessableEntity
	case domain.CategoryTiming, domain.CategoryLiquidity, domain.CategorySettlement:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// pendingRef returns the reference of the transfer err left pending, if any.
func pendingRef(err error) string {
	var pe *ports.PendingTransferError
	if errors.As(err, &pe) {
		return pe.Ref
	}
	return ""
}

// pushStatus is 202 for a payout or withdrawal whose transfer is still
// unconfirmed. The books already reflect it.
func pushStatus(err error) int {
	if err != nil {
		return http.StatusAccepted
	}
	return http.StatusOK
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return false
	}
	return true
}

// uintParam reads a numeric path parameter, writing a 400 when malformed.
func uintParam(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	v, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return v, true
}

func toNewCondition(req createConditionRequest) ledger.NewCondition {
	return ledger.NewCondition{
		ID:       req.ID,
		Weights:  req.Weights,
		Outcomes: req.Outcomes,
		Deadline: req.Deadline,
		Metadata: req.Metadata,
	}
}
