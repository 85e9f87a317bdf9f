package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/promo-quoter/internal/domain/customer"
	"github.com/xenking/promo-quoter/internal/domain/order"
)

type orderItemResponse struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	TotalPrice  decimal.Decimal `json:"totalPrice"`
}

type orderResponse struct {
	ID                string                     `json:"id"`
	IdempotencyKey    string                     `json:"idempotencyKey,omitempty"`
	CustomerSegment   customer.Segment           `json:"customerSegment"`
	Items             []orderItemResponse        `json:"items"`
	AppliedPromotions []appliedPromotionResponse `json:"appliedPromotions"`
	Total             decimal.Decimal            `json:"total"`
	CreatedAt         time.Time                  `json:"createdAt"`
}

func toOrderResponse(o *order.Order) orderResponse {
	resp := orderResponse{
		ID:                o.ID,
		IdempotencyKey:    o.IdempotencyKey,
		CustomerSegment:   o.Segment,
		Items:             make([]orderItemResponse, len(o.Items)),
		AppliedPromotions: make([]appliedPromotionResponse, len(o.Promotions)),
		Total:             o.Total,
		CreatedAt:         o.CreatedAt,
	}
	for i, it := range o.Items {
		resp.Items[i] = orderItemResponse{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			TotalPrice:  it.TotalPrice,
		}
	}
	for i, a := range o.Promotions {
		resp.AppliedPromotions[i] = appliedPromotionResponse{
			PromotionID: a.PromotionID,
			Type:        a.Type,
			Description: a.Description,
			Amount:      a.Amount,
		}
	}
	return resp
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}
