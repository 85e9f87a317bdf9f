package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/promo-quoter/internal/domain/product"
)

type productResponse struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Category product.Category `json:"category"`
	Price    decimal.Decimal  `json:"price"`
	Stock    int              `json:"stock"`
	Version  int64            `json:"version"`
}

type productRequest struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Category product.Category `json:"category"`
	Price    decimal.Decimal  `json:"price"`
	Stock    int              `json:"stock"`
}

type productUpdateRequest struct {
	Name     string           `json:"name"`
	Category product.Category `json:"category"`
	Price    decimal.Decimal  `json:"price"`
	Stock    int              `json:"stock"`
	// Version must match the stored product.
	Version int64 `json:"version"`
}

func toProductResponse(p product.Product) productResponse {
	return productResponse{
		ID:       p.ID,
		Name:     p.Name,
		Category: p.Category,
		Price:    p.Price,
		Stock:    p.Stock,
		Version:  p.Version,
	}
}

func toProductResponses(ps []product.Product) []productResponse {
	out := make([]productResponse, len(ps))
	for i, p := range ps {
		out[i] = toProductResponse(p)
	}
	return out
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	ps, err := h.products.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponses(ps))
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(*p))
}

// createProducts accepts one product or an array. Missing IDs are generated.
// Either every product is created or none is.
func (h *Handler) createProducts(w http.ResponseWriter, r *http.Request) {
	reqs, err := decodeOneOrMany[productRequest](w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ps := make([]product.Product, len(reqs))
	for i, req := range reqs {
		p := product.Product{
			ID:       req.ID,
			Name:     req.Name,
			Category: req.Category,
			Price:    req.Price,
			Stock:    req.Stock,
		}
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if err := p.Validate(); err != nil {
			writeError(w, r, err)
			return
		}
		ps[i] = p
	}

	if err := h.products.Create(r.Context(), ps); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductResponses(ps))
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var req productUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	p := product.Product{
		ID:       chi.URLParam(r, "id"),
		Name:     req.Name,
		Category: req.Category,
		Price:    req.Price,
		Stock:    req.Stock,
		Version:  req.Version,
	}
	if err := p.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.products.Update(r.Context(), &p); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(p))
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.products.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
