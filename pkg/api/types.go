package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/p2pswap/swapd/pkg/swap"
)

// CreateOrderRequest carries the maker's intent. Amounts are base-unit
// integers as decimal strings; decimal/human conversion stays outside the
// coordinator.
type CreateOrderRequest struct {
	TokenToSell  string `json:"token_to_sell"`
	TokenToBuy   string `json:"token_to_buy"`
	AmountToSell string `json:"amount_to_sell"`
	AmountToBuy  string `json:"amount_to_buy"`
}

type CreateOrderResponse struct {
	OrderID uint64 `json:"order_id"`
}

type OrderResponse struct {
	OrderID      uint64 `json:"order_id"`
	Maker        string `json:"maker"`
	TokenToSell  string `json:"token_to_sell"`
	TokenToBuy   string `json:"token_to_buy"`
	AmountToSell string `json:"amount_to_sell"`
	AmountToBuy  string `json:"amount_to_buy"`
	IsActive     bool   `json:"is_active"`
}

type ReceiptResponse struct {
	Tx string `json:"tx"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	// Steps is present on flow failures so clients can show partial
	// progress (e.g. approval confirmed, action failed).
	Steps []StepStatusResponse `json:"steps,omitempty"`
}

type StepStatusResponse struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// OrderUpdate is pushed to WebSocket clients after a confirmed flow.
type OrderUpdate struct {
	Channel string        `json:"channel"`
	Order   OrderResponse `json:"order"`
}

func toOrderResponse(o *swap.Order) OrderResponse {
	return OrderResponse{
		OrderID:      uint64(o.ID),
		Maker:        o.Maker.Hex(),
		TokenToSell:  o.TokenToSell.Hex(),
		TokenToBuy:   o.TokenToBuy.Hex(),
		AmountToSell: o.AmountToSell.String(),
		AmountToBuy:  o.AmountToBuy.String(),
		IsActive:     o.IsActive,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: err.Error()}

	var ferr *swap.FlowError
	if errors.As(err, &ferr) {
		resp.Kind = string(ferr.Kind)
		for _, s := range ferr.Steps {
			resp.Steps = append(resp.Steps, StepStatusResponse{
				Name:   s.Name,
				Status: s.Status.String(),
				Detail: s.Detail,
			})
		}
	}

	writeJSON(w, statusForError(err), resp)
}

func statusForError(err error) int {
	var vErr *swap.ValidationError
	switch {
	case errors.As(err, &vErr):
		return http.StatusBadRequest
	case errors.Is(err, swap.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, swap.ErrOrderAlreadySettled),
		errors.Is(err, swap.ErrFlowInFlight):
		return http.StatusConflict
	case errors.Is(err, swap.ErrTimedOut):
		// The operation's outcome is unknown; the client must not blindly
		// retry.
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
