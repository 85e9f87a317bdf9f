package handler

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/xenking/promo-quoter/internal/domain/cart"
	"github.com/xenking/promo-quoter/internal/domain/customer"
	"github.com/xenking/promo-quoter/internal/domain/promotion"
)

const (
	// HeaderIdempotencyKey makes a confirmation safe to retry.
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderIdempotentReplayed is set to "true" on replayed confirmations.
	HeaderIdempotentReplayed = "Idempotent-Replayed"
)

type cartItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type cartRequest struct {
	Items           []cartItemRequest `json:"items"`
	CustomerSegment string            `json:"customerSegment"`
}

type lineResponse struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Discount    decimal.Decimal `json:"discount"`
	FinalPrice  decimal.Decimal `json:"finalPrice"`
}

type appliedPromotionResponse struct {
	PromotionID string          `json:"promotionId"`
	Type        promotion.Type  `json:"type"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

type quoteResponse struct {
	Items             []lineResponse             `json:"items"`
	AppliedPromotions []appliedPromotionResponse `json:"appliedPromotions"`
	Subtotal          decimal.Decimal            `json:"subtotal"`
	TotalDiscount     decimal.Decimal            `json:"totalDiscount"`
	FinalTotal        decimal.Decimal            `json:"finalTotal"`
}

type confirmResponse struct {
	OrderID string `json:"orderId"`
	quoteResponse
}

func (req cartRequest) toDomain() (cart.Request, error) {
	segment, err := customer.ParseSegment(req.CustomerSegment)
	if err != nil {
		return cart.Request{}, err
	}
	items := make([]cart.Item, len(req.Items))
	for i, it := range req.Items {
		items[i] = cart.Item{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	return cart.Request{Items: items, Segment: segment}, nil
}

func toQuoteResponse(q cart.Quote) quoteResponse {
	resp := quoteResponse{
		Items:             make([]lineResponse, len(q.Lines)),
		AppliedPromotions: make([]appliedPromotionResponse, len(q.Applied)),
		Subtotal:          q.Subtotal,
		TotalDiscount:     q.TotalDiscount,
		FinalTotal:        q.FinalTotal,
	}
	for i, l := range q.Lines {
		resp.Items[i] = lineResponse{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			Subtotal:    l.Subtotal,
			Discount:    l.Discount,
			FinalPrice:  l.FinalPrice,
		}
	}
	for i, a := range q.Applied {
		resp.AppliedPromotions[i] = appliedPromotionResponse{
			PromotionID: a.PromotionID,
			Type:        a.Type,
			Description: a.Description,
			Amount:      a.Amount,
		}
	}
	return resp
}

func (h *Handler) decodeCart(w http.ResponseWriter, r *http.Request) (cart.Request, error) {
	var body cartRequest
	if err := decodeJSON(w, r, &body); err != nil {
		return cart.Request{}, err
	}
	return body.toDomain()
}

func (h *Handler) quote(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeCart(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	q, err := h.cart.Quote(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toQuoteResponse(*q))
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeCart(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	c, err := h.cart.Confirm(r.Context(), req, r.Header.Get(HeaderIdempotencyKey))
	if err != nil {
		writeError(w, r, err)
		return
	}

	// Replays answer with the original status and body.
	if c.Replayed {
		w.Header().Set(HeaderIdempotentReplayed, "true")
	}
	writeJSON(w, http.StatusCreated, confirmResponse{OrderID: c.OrderID, quoteResponse: toQuoteResponse(c.Quote)})
}
