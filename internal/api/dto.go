package api

import (
	"encoding/json"
	"net/http"

	"memecoin-prediction-market/internal/domain"
	"memecoin-prediction-market/internal/settlement"
)

type createMarketRequest struct {
	Name            string `json:"name"`
	ExpiryTimestamp int64  `json:"expiry_timestamp"`
}

type placeBetRequest struct {
	Amount     uint64 `json:"amount"`
	Prediction *bool  `json:"prediction"`
}

type settleRequest struct {
	Outcome *bool `json:"outcome"`
}

type claimRequest struct {
	// Bet optionally names the bet record; defaults to the caller's own bet.
	Bet *domain.Pubkey `json:"bet,omitempty"`
}

type marketResponse struct {
	Address         domain.Pubkey `json:"address"`
	Name            string        `json:"name"`
	Creator         domain.Pubkey `json:"creator"`
	ExpiryTimestamp int64         `json:"expiry_timestamp"`
	YesAmount       uint64        `json:"yes_amount"`
	NoAmount        uint64        `json:"no_amount"`
	Settled         bool          `json:"settled"`
	Outcome         *domain.Side  `json:"outcome,omitempty"`
	Bump            uint8         `json:"bump"`
	CreatedAt       int64         `json:"created_at"`
}

func toMarketResponse(m *domain.Market) marketResponse {
	resp := marketResponse{
		Address:         m.Address,
		Name:            m.Name,
		Creator:         m.Creator,
		ExpiryTimestamp: m.ExpiryTimestamp,
		YesAmount:       m.YesAmount,
		NoAmount:        m.NoAmount,
		Settled:         m.Settled,
		Bump:            m.Bump,
		CreatedAt:       m.CreatedAt,
	}
	if m.Settled {
		side := domain.SideOf(m.Outcome)
		resp.Outcome = &side
	}
	return resp
}

type betResponse struct {
	Address    domain.Pubkey `json:"address"`
	Market     domain.Pubkey `json:"market"`
	User       domain.Pubkey `json:"user"`
	Amount     uint64        `json:"amount"`
	Prediction bool          `json:"prediction"`
	Side       domain.Side   `json:"side"`
	Claimed    bool          `json:"claimed"`
	Bump       uint8         `json:"bump"`
	PlacedAt   int64         `json:"placed_at"`
	ClaimedAt  int64         `json:"claimed_at,omitempty"`
}

func toBetResponse(b *domain.Bet) betResponse {
	return betResponse{
		Address:    b.Address,
		Market:     b.Market,
		User:       b.User,
		Amount:     b.Amount,
		Prediction: b.Prediction,
		Side:       b.Side(),
		Claimed:    b.Claimed,
		Bump:       b.Bump,
		PlacedAt:   b.PlacedAt,
		ClaimedAt:  b.ClaimedAt,
	}
}

func toBetResponses(bets []*domain.Bet) []betResponse {
	out := make([]betResponse, 0, len(bets))
	for _, b := range bets {
		out = append(out, toBetResponse(b))
	}
	return out
}

type quoteResponse struct {
	Market        string `json:"market"`
	Settled       bool   `json:"settled"`
	YesAmount     uint64 `json:"yes_amount"`
	NoAmount      uint64 `json:"no_amount"`
	YesAmountUI   string `json:"yes_amount_ui"`
	NoAmountUI    string `json:"no_amount_ui"`
	YesShare      string `json:"yes_share"`
	NoShare       string `json:"no_share"`
	YesMultiplier string `json:"yes_multiplier"`
	NoMultiplier  string `json:"no_multiplier"`
}

func toQuoteResponse(m *domain.Market, q settlement.Quote, decimals int32) quoteResponse {
	return quoteResponse{
		Market:        m.Name,
		Settled:       m.Settled,
		YesAmount:     q.YesAmount,
		NoAmount:      q.NoAmount,
		YesAmountUI:   settlement.FormatTokenAmount(q.YesAmount, decimals),
		NoAmountUI:    settlement.FormatTokenAmount(q.NoAmount, decimals),
		YesShare:      q.YesShare.String(),
		NoShare:       q.NoShare.String(),
		YesMultiplier: q.YesMultiplier.String(),
		NoMultiplier:  q.NoMultiplier.String(),
	}
}

type claimResponse struct {
	Bet      betResponse `json:"bet"`
	Payout   uint64      `json:"payout"`
	PayoutUI string      `json:"payout_ui"`
}

type betDetailResponse struct {
	betResponse
	// PendingPayout is what a claim would pay now; absent when nothing is claimable.
	PendingPayout *uint64 `json:"pending_payout,omitempty"`
}

// writeJSON marshals v and writes it with status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
