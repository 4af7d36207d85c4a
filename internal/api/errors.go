package api

import (
	"errors"
	"net/http"

	"memecoin-prediction-market/internal/domain"
	"memecoin-prediction-market/internal/ledger"
	"memecoin-prediction-market/internal/lock"
	"memecoin-prediction-market/internal/storage"
)

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Code  domain.ErrorCode `json:"code,omitempty"`
	Name  string           `json:"name,omitempty"`
	Error string           `json:"error"`
}

// statusOf maps a ledger error code to its HTTP status class.
func statusOf(code domain.ErrorCode) int {
	switch code {
	case domain.CodeDuplicateMarket, domain.CodeDuplicateBet,
		domain.CodeAlreadySettled, domain.CodeMarketAlreadySettled, domain.CodeAlreadyClaimed:
		return http.StatusConflict
	case domain.CodeUnauthorized:
		return http.StatusForbidden
	case domain.CodeMarketNotFound, domain.CodeBetNotFound:
		return http.StatusNotFound
	case domain.CodeTransfer:
		return http.StatusBadGateway
	case domain.CodeInvalidExpiry, domain.CodeAmountOverflow, domain.CodeMarketExpired,
		domain.CodeZeroAmount, domain.CodeNotYetExpired, domain.CodeMarketNotSettled,
		domain.CodeNotAWinner, domain.CodeNoWinningPool, domain.CodeInvalidName:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeLedgerError renders err with its ledger code. Errors without a code
// are not exposed beyond a generic message.
func (h *handlers) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, lock.ErrNotAcquired):
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "record busy, retry later"})
		return
	case errors.Is(err, ledger.ErrActivityDisabled):
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: err.Error()})
		return
	case errors.Is(err, storage.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	code := domain.CodeOf(err)
	if code == domain.CodeUnknown {
		h.log.WithError(err).WithField("path", r.URL.Path).Error("api: internal error")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, statusOf(code), errorResponse{Code: code, Name: code.Name(), Error: err.Error()})
}
