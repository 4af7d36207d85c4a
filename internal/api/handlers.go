package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"memecoin-prediction-market/internal/domain"
	"memecoin-prediction-market/internal/ledger"
	"memecoin-prediction-market/internal/settlement"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 16

type handlers struct {
	svc      *ledger.Service
	log      logrus.FieldLogger
	decimals int32
}

// GET /health
func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// POST /markets
func (h *handlers) createMarket(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req createMarketRequest
	if !decodeBody(w, r, &req) {
		return
	}

	m, err := h.svc.CreateMarket(r.Context(), ledger.CreateMarketRequest{
		Name:            req.Name,
		ExpiryTimestamp: req.ExpiryTimestamp,
		Creator:         caller,
	})
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMarketResponse(m))
}

// GET /markets[?creator=<pubkey>]
func (h *handlers) listMarkets(w http.ResponseWriter, r *http.Request) {
	var (
		markets []*domain.Market
		err     error
	)
	if c := r.URL.Query().Get("creator"); c != "" {
		creator, perr := domain.ParsePubkey(c)
		if perr != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid creator: " + perr.Error()})
			return
		}
		markets, err = h.svc.ListMarketsByCreator(r.Context(), creator)
	} else {
		markets, err = h.svc.ListMarkets(r.Context())
	}
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	out := make([]marketResponse, 0, len(markets))
	for _, m := range markets {
		out = append(out, toMarketResponse(m))
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /markets/{name}
func (h *handlers) getMarket(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.GetMarket(r.Context(), r.PathValue("name"))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMarketResponse(m))
}

// GET /markets/{name}/quote
func (h *handlers) quote(w http.ResponseWriter, r *http.Request) {
	m, q, err := h.svc.Quote(r.Context(), r.PathValue("name"))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toQuoteResponse(m, q, h.decimals))
}

// GET /markets/{name}/activity
func (h *handlers) activity(w http.ResponseWriter, r *http.Request) {
	evts, err := h.svc.Activity(r.Context(), r.PathValue("name"))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	if evts == nil {
		evts = []*domain.LedgerEvent{}
	}
	writeJSON(w, http.StatusOK, evts)
}

// GET /activity?from=<unix>&to=<unix>
func (h *handlers) activityRange(w http.ResponseWriter, r *http.Request) {
	from, err := parseInt64(r, "from", 0)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid from: " + err.Error()})
		return
	}
	to, err := parseInt64(r, "to", math.MaxInt64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid to: " + err.Error()})
		return
	}

	evts, err := h.svc.ActivityBetween(r.Context(), from, to)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	if evts == nil {
		evts = []*domain.LedgerEvent{}
	}
	writeJSON(w, http.StatusOK, evts)
}

// GET /markets/{name}/bets
func (h *handlers) listBets(w http.ResponseWriter, r *http.Request) {
	bets, err := h.svc.ListBets(r.Context(), r.PathValue("name"))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBetResponses(bets))
}

// GET /markets/{name}/bets/{user}
func (h *handlers) getBet(w http.ResponseWriter, r *http.Request) {
	user, err := domain.ParsePubkey(r.PathValue("user"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid user: " + err.Error()})
		return
	}
	name := r.PathValue("name")

	b, err := h.svc.GetBet(r.Context(), name, user)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	resp := betDetailResponse{betResponse: toBetResponse(b)}
	if payout, err := h.svc.PendingPayout(r.Context(), name, user); err == nil {
		resp.PendingPayout = &payout
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /users/{user}/bets
func (h *handlers) userBets(w http.ResponseWriter, r *http.Request) {
	user, err := domain.ParsePubkey(r.PathValue("user"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid user: " + err.Error()})
		return
	}
	bets, err := h.svc.ListBetsByUser(r.Context(), user)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBetResponses(bets))
}

// POST /markets/{name}/bets
func (h *handlers) placeBet(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req placeBetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Prediction == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "prediction is required"})
		return
	}

	b, err := h.svc.PlaceBet(r.Context(), ledger.PlaceBetRequest{
		Market:     r.PathValue("name"),
		User:       caller,
		Amount:     req.Amount,
		Prediction: *req.Prediction,
	})
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBetResponse(b))
}

// POST /markets/{name}/settle
func (h *handlers) settle(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req settleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Outcome == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "outcome is required"})
		return
	}

	m, err := h.svc.Settle(r.Context(), ledger.SettleRequest{
		Market:  r.PathValue("name"),
		Outcome: *req.Outcome,
		Caller:  caller,
	})
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMarketResponse(m))
}

// POST /markets/{name}/claim
func (h *handlers) claim(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	// The body is optional; chunked requests carry no Content-Length to tell.
	var req claimRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}

	res, err := h.svc.Claim(r.Context(), ledger.ClaimRequest{
		Market: r.PathValue("name"),
		Caller: caller,
		Bet:    req.Bet,
	})
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, claimResponse{
		Bet:      toBetResponse(res.Bet),
		Payout:   res.Payout,
		PayoutUI: settlement.FormatTokenAmount(res.Payout, h.decimals),
	})
}

// caller extracts the verified caller identity, answering 401 when absent.
func (h *handlers) caller(w http.ResponseWriter, r *http.Request) (domain.Pubkey, bool) {
	raw := r.Header.Get(CallerHeader)
	if raw == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing " + CallerHeader})
		return domain.Pubkey{}, false
	}
	pk, err := domain.ParsePubkey(raw)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid " + CallerHeader + ": " + err.Error()})
		return domain.Pubkey{}, false
	}
	return pk, true
}

// decodeBody parses a JSON body into v, answering 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	return decode(w, r, v, false)
}

// decodeOptionalBody is decodeBody for requests where an empty body leaves v untouched.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, v any) bool {
	return decode(w, r, v, true)
}

func decode(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		msg := err.Error()
		if errors.Is(err, io.EOF) {
			msg = "empty body"
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid request body: %s", msg)})
		return false
	}
	return true
}

// parseInt64 reads an optional integer query parameter.
func parseInt64(r *http.Request, key string, def int64) (int64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.ParseInt(v, 10, 64)
}
