package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/alejandrodnm/oddspool/internal/application/ledger"
	"github.com/alejandrodnm/oddspool/internal/domain"
	"github.com/alejandrodnm/oddspool/internal/ports"
)

// --- conditions ---

func (s *Server) handleCreateCondition(w http.ResponseWriter, r *http.Request) {
	var req createConditionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := s.opts.Pool.CreateCondition(r.Context(), callerFrom(r.Context()), toNewCondition(req))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toConditionResponse(c))
}

func (s *Server) handleListConditions(w http.ResponseWriter, _ *http.Request) {
	conds := s.opts.Pool.Conditions()
	out := make([]conditionResponse, 0, len(conds))
	for _, c := range conds {
		out = append(out, toConditionResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetCondition(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	c, err := s.opts.Pool.Condition(id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toConditionResponse(c))
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	q := r.URL.Query()
	amount, err := parseAmount("amount", q.Get("amount"), false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	outcome, err := strconv.ParseUint(q.Get("outcome"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid outcome")
		return
	}

	odds, err := s.opts.Pool.Quote(r.Context(), id, amount, outcome)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	scale := s.opts.Pool.Config().Ledger.Scale
	writeJSON(w, http.StatusOK, quoteResponse{
		ConditionID: id,
		Outcome:     outcome,
		Amount:      amount.Dec(),
		Odds:        odds.Dec(),
		Payout:      domain.Payout(amount, &odds, &scale).Dec(),
	})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	var req resolveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := s.opts.Pool.ResolveCondition(r.Context(), callerFrom(r.Context()), id, req.Outcome)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toConditionResponse(c))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	c, err := s.opts.Pool.CancelCondition(r.Context(), callerFrom(r.Context()), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toConditionResponse(c))
}

// --- bets ---

func (s *Server) handleBet(w http.ResponseWriter, r *http.Request) {
	var req betRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := parseAmount("amount", req.Amount, false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	minOdds, err := parseAmount("min_odds", req.MinOdds, true)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	b, err := s.opts.Pool.Bet(r.Context(), callerFrom(r.Context()), ledger.BetRequest{
		ConditionID:   req.ConditionID,
		Amount:        *amount,
		Outcome:       req.Outcome,
		DeadlineLimit: req.DeadlineLimit,
		MinOdds:       *minOdds,
		Affiliate:     req.Affiliate,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBetResponse(b))
}

func (s *Server) handleGetBet(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	b, err := s.opts.Pool.BetInfo(id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBetResponse(b))
}

func (s *Server) handleViewPayout(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	win, amount, err := s.opts.Pool.ViewPayout(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payoutResponse{Win: win, Amount: amount.Dec()})
}

func (s *Server) handleWithdrawPayout(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	amount, err := s.opts.Pool.WithdrawPayout(r.Context(), callerFrom(r.Context()), id)
	if err != nil && !errors.Is(err, ports.ErrTransferPending) {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, pushStatus(err), payoutResponse{Win: true, Amount: amount.Dec(), Pending: pendingRef(err)})
}

func (s *Server) handleTransferReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	var req transferRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.opts.Receipts.Transfer(r.Context(), callerFrom(r.Context()), req.To, id); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- liquidity ---

func (s *Server) handleAddLiquidity(w http.ResponseWriter, r *http.Request) {
	var req amountBody
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := parseAmount("amount", req.Amount, false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	shares, err := s.opts.Pool.AddLiquidity(r.Context(), callerFrom(r.Context()), amount)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sharesBody{Shares: shares.Dec()})
}

func (s *Server) handleRequestLiquidity(w http.ResponseWriter, r *http.Request) {
	var req sharesBody
	if !decodeBody(w, r, &req) {
		return
	}
	shares, err := parseAmount("shares", req.Shares, false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	wr, err := s.opts.Pool.RequestLiquidity(r.Context(), callerFrom(r.Context()), shares)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestResponse(wr, s.opts.Pool.Config()))
}

func (s *Server) handleWithdrawLiquidity(w http.ResponseWriter, r *http.Request) {
	var req sharesBody
	if !decodeBody(w, r, &req) {
		return
	}
	shares, err := parseAmount("shares", req.Shares, false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	value, err := s.opts.Pool.WithdrawLiquidity(r.Context(), callerFrom(r.Context()), shares)
	if err != nil && !errors.Is(err, ports.ErrTransferPending) {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, pushStatus(err), withdrawalResponse{Amount: value.Dec(), Pending: pendingRef(err)})
}

func (s *Server) handlePendingTransfers(w http.ResponseWriter, _ *http.Request) {
	out := []pendingTransferResponse{}
	for _, t := range s.opts.Pool.PendingTransfers() {
		out = append(out, toPendingTransferResponse(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "account")
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, "invalid account")
		return
	}
	account := common.HexToAddress(raw)
	shares := s.opts.Pool.SharesOf(account)
	cfg := s.opts.Pool.Config()

	resp := accountResponse{Account: account, Shares: shares.Dec(), Requests: []requestResponse{}}
	for _, req := range s.opts.Pool.PendingRequests(account) {
		resp.Requests = append(resp.Requests, toRequestResponse(req, cfg))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toSnapshotResponse(s.opts.Pool.Snapshot()))
}

// --- journal ---

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := ports.EventFilter{Kind: domain.EventKind(q.Get("kind")), Limit: 100}
	if v := q.Get("condition"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid condition")
			return
		}
		f.ConditionID = id
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		f.Limit = min(n, 1000)
	}
	for name, dst := range map[string]*time.Time{"from": &f.From, "to": &f.To} {
		if v := q.Get(name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid "+name)
				return
			}
			*dst = t
		}
	}

	events, err := s.opts.Journal.List(r.Context(), f)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	out := make([]eventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, toEventResponse(ev))
	}
	writeJSON(w, http.StatusOK, out)
}

// --- roles ---

func (s *Server) handleRoleMembers(w http.ResponseWriter, r *http.Request) {
	role, err := domain.ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Roles.Members(role))
}

func (s *Server) handleSetRole(w http.ResponseWriter, r *http.Request) {
	role, err := domain.ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	var req roleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller := callerFrom(r.Context())
	if req.Grant {
		err = s.opts.Roles.Grant(caller, role, req.Account)
	} else {
		err = s.opts.Roles.Revoke(caller, role, req.Account)
	}
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
