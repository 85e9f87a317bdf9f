package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/promo-quoter/internal/domain/product"
	"github.com/xenking/promo-quoter/internal/domain/promotion"
)

type promotionBody struct {
	ID               string              `json:"id"`
	Type             promotion.Type      `json:"type"`
	TargetCategory   product.Category    `json:"targetCategory,omitempty"`
	DiscountFraction decimal.NullDecimal `json:"discountFraction"`
	TargetProductID  string              `json:"targetProductId,omitempty"`
	BuyQuantity      int                 `json:"buyQuantity,omitempty"`
	GetQuantity      int                 `json:"getQuantity,omitempty"`
	Priority         *int                `json:"priority,omitempty"`
	Active           *bool               `json:"active,omitempty"`
	CreatedAt        *time.Time          `json:"createdAt,omitempty"`
}

type setActiveRequest struct {
	Active *bool `json:"active"`
}

func toPromotionBody(p promotion.Promotion) promotionBody {
	priority, active, created := p.Priority, p.Active, p.CreatedAt
	return promotionBody{
		ID:               p.ID,
		Type:             p.Type,
		TargetCategory:   p.TargetCategory,
		DiscountFraction: p.DiscountFraction,
		TargetProductID:  p.TargetProductID,
		BuyQuantity:      p.BuyQuantity,
		GetQuantity:      p.GetQuantity,
		Priority:         &priority,
		Active:           &active,
		CreatedAt:        &created,
	}
}

func (b promotionBody) toDomain() promotion.Promotion {
	p := promotion.Promotion{
		ID:               b.ID,
		Type:             b.Type,
		TargetCategory:   b.TargetCategory,
		DiscountFraction: b.DiscountFraction,
		TargetProductID:  b.TargetProductID,
		BuyQuantity:      b.BuyQuantity,
		GetQuantity:      b.GetQuantity,
		Priority:         promotion.DefaultPriority,
		Active:           true,
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if b.Priority != nil {
		p.Priority = *b.Priority
	}
	if b.Active != nil {
		p.Active = *b.Active
	}
	return p
}

func (h *Handler) listPromotions(w http.ResponseWriter, r *http.Request) {
	promos, err := h.promotions.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]promotionBody, len(promos))
	for i, p := range promos {
		out[i] = toPromotionBody(p)
	}
	writeJSON(w, http.StatusOK, out)
}

// createPromotions accepts one promotion or an array. Each is validated for
// its type before anything is stored.
func (h *Handler) createPromotions(w http.ResponseWriter, r *http.Request) {
	bodies, err := decodeOneOrMany[promotionBody](w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	promos := make([]promotion.Promotion, len(bodies))
	for i, b := range bodies {
		p := b.toDomain()
		if err := p.Validate(); err != nil {
			writeError(w, r, err)
			return
		}
		promos[i] = p
	}

	if err := h.promotions.Create(r.Context(), promos); err != nil {
		writeError(w, r, err)
		return
	}

	// Re-read so the response carries the stored creation time.
	stored, err := h.promotions.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	created := make(map[string]struct{}, len(promos))
	for _, p := range promos {
		created[p.ID] = struct{}{}
	}
	out := make([]promotionBody, 0, len(promos))
	for _, p := range stored {
		if _, ok := created[p.ID]; ok {
			out = append(out, toPromotionBody(p))
		}
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *Handler) setPromotionActive(w http.ResponseWriter, r *http.Request) {
	var req setActiveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Active == nil {
		writeError(w, r, &badRequestError{err: errActiveRequired})
		return
	}

	if err := h.promotions.SetActive(r.Context(), chi.URLParam(r, "id"), *req.Active); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
