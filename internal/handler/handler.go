// Package handler exposes the cart, catalog and promotion operations over
// HTTP.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/promo-quoter/internal/domain/auth"
	"github.com/xenking/promo-quoter/internal/domain/cart"
	"github.com/xenking/promo-quoter/internal/domain/order"
	"github.com/xenking/promo-quoter/internal/domain/product"
	"github.com/xenking/promo-quoter/internal/domain/promotion"
	"github.com/xenking/promo-quoter/pkg/httpmiddleware"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// APIKeyPepper is the HMAC key API keys are hashed with.
	APIKeyPepper []byte
	// ConfirmLimit, when set, guards cart confirmation.
	ConfirmLimit httpmiddleware.Middleware
}

// Handler serves the /api routes.
type Handler struct {
	cart       *cart.Service
	products   product.Repository
	promotions promotion.Repository
	orders     order.Repository
	security   *SecurityHandler

	confirmLimit httpmiddleware.Middleware
}

// New constructs a Handler with the required domain dependencies.
func New(
	cfg Config,
	cartService *cart.Service,
	products product.Repository,
	promotions promotion.Repository,
	orders order.Repository,
	apikeys auth.Repository,
) *Handler {
	return &Handler{
		cart:         cartService,
		products:     products,
		promotions:   promotions,
		orders:       orders,
		security:     NewSecurityHandler(apikeys, cfg.APIKeyPepper),
		confirmLimit: cfg.ConfirmLimit,
	}
}

// Router returns the routes mounted under /api.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, errRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, errMethodNotAllowed)
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/cart", func(r chi.Router) {
			r.Post("/quote", h.quote)
			r.With(h.limitConfirm).Post("/confirm", h.confirm)
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.listProducts)
			r.Get("/{id}", h.getProduct)

			r.Group(func(r chi.Router) {
				r.Use(h.security.Require(auth.ScopeManageCatalog))
				r.Post("/", h.createProducts)
				r.Put("/{id}", h.updateProduct)
				r.Delete("/{id}", h.deleteProduct)
			})
		})

		r.Route("/promotions", func(r chi.Router) {
			r.Use(h.security.Require(auth.ScopeManagePromotions))
			r.Get("/", h.listPromotions)
			r.Post("/", h.createPromotions)
			r.Put("/{id}/active", h.setPromotionActive)
		})

		r.Get("/orders/{id}", h.getOrder)
	})
	return r
}

func (h *Handler) limitConfirm(next http.Handler) http.Handler {
	if h.confirmLimit == nil {
		return next
	}
	return h.confirmLimit(next)
}
