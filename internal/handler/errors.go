package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/promo-quoter/internal/domain/cart"
	"github.com/xenking/promo-quoter/internal/domain/customer"
	"github.com/xenking/promo-quoter/internal/domain/order"
	"github.com/xenking/promo-quoter/internal/domain/product"
	"github.com/xenking/promo-quoter/internal/domain/promotion"
)

var (
	errRouteNotFound    = errors.New("route not found")
	errMethodNotAllowed = errors.New("method not allowed")
	errActiveRequired   = errors.New("active is required")
)

// badRequestError marks malformed input caught by the transport layer.
type badRequestError struct {
	err error
}

func (e *badRequestError) Error() string { return "invalid request: " + e.err.Error() }
func (e *badRequestError) Unwrap() error { return e.err }

type errorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// writeError maps err to a status and JSON body. Unexpected errors are logged
// and reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := mapError(err)
	if status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, status, resp)
}

func mapError(err error) (int, errorResponse) {
	var (
		badReq     *badRequestError
		notFound   *cart.ProductsNotFoundError
		stock      *cart.InsufficientStockError
		quantity   *cart.InvalidQuantityError
		duplicate  *cart.DuplicateProductError
		invalid    *promotion.InvalidPromotionError
		productVal *product.ValidationError
		promoVal   *promotion.ValidationError
	)

	switch {
	case errors.As(err, &badReq):
		return http.StatusBadRequest, errorResponse{Code: "BAD_REQUEST", Message: badReq.Error()}

	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized, errorResponse{Code: "UNAUTHORIZED", Message: "missing or invalid api key"}
	case errors.Is(err, errForbidden):
		return http.StatusForbidden, errorResponse{Code: "FORBIDDEN", Message: "api key lacks the required scope"}
	case errors.Is(err, errRouteNotFound):
		return http.StatusNotFound, errorResponse{Code: "NOT_FOUND", Message: err.Error()}
	case errors.Is(err, errMethodNotAllowed):
		return http.StatusMethodNotAllowed, errorResponse{Code: "METHOD_NOT_ALLOWED", Message: err.Error()}

	case errors.As(err, &notFound):
		return http.StatusNotFound, errorResponse{
			Code:    "PRODUCTS_NOT_FOUND",
			Message: notFound.Error(),
			Details: map[string]any{"missingProductIds": notFound.ProductIDs},
		}
	case errors.Is(err, product.ErrNotFound),
		errors.Is(err, promotion.ErrNotFound),
		errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound, errorResponse{Code: "NOT_FOUND", Message: err.Error()}

	case errors.As(err, &stock):
		return http.StatusConflict, errorResponse{
			Code:    "INSUFFICIENT_STOCK",
			Message: stock.Error(),
			Details: map[string]any{
				"productId": stock.ProductID,
				"available": stock.Available,
				"requested": stock.Requested,
			},
		}
	case errors.Is(err, order.ErrDuplicateIdempotencyKey):
		return http.StatusConflict, errorResponse{Code: "IDEMPOTENCY_CONFLICT", Message: "a request with this idempotency key is already being processed"}
	case errors.Is(err, product.ErrVersionConflict):
		return http.StatusConflict, errorResponse{Code: "VERSION_CONFLICT", Message: err.Error()}
	case errors.Is(err, product.ErrAlreadyExists), errors.Is(err, promotion.ErrAlreadyExists):
		return http.StatusConflict, errorResponse{Code: "ALREADY_EXISTS", Message: err.Error()}

	// Checked before promotion.ValidationError, which it may wrap.
	case errors.As(err, &invalid):
		return http.StatusInternalServerError, errorResponse{
			Code:    "INVALID_PROMOTION",
			Message: "an active promotion is misconfigured",
			Details: map[string]any{"promotionId": invalid.PromotionID},
		}

	case errors.As(err, &quantity):
		return http.StatusBadRequest, errorResponse{
			Code:    "VALIDATION_ERROR",
			Message: quantity.Error(),
			Details: map[string]any{"productId": quantity.ProductID},
		}
	case errors.As(err, &duplicate):
		return http.StatusBadRequest, errorResponse{
			Code:    "VALIDATION_ERROR",
			Message: duplicate.Error(),
			Details: map[string]any{"productId": duplicate.ProductID},
		}
	case errors.As(err, &productVal):
		return http.StatusBadRequest, errorResponse{
			Code:    "VALIDATION_ERROR",
			Message: productVal.Error(),
			Details: map[string]any{"problems": productVal.Problems},
		}
	case errors.As(err, &promoVal):
		return http.StatusBadRequest, errorResponse{
			Code:    "VALIDATION_ERROR",
			Message: promoVal.Error(),
			Details: map[string]any{"problems": promoVal.Problems},
		}
	case errors.Is(err, cart.ErrEmptyItems),
		errors.Is(err, cart.ErrMissingProductID),
		errors.Is(err, cart.ErrIdempotencyKeyLen),
		errors.Is(err, customer.ErrInvalidSegment):
		return http.StatusBadRequest, errorResponse{Code: "VALIDATION_ERROR", Message: err.Error()}
	}

	return http.StatusInternalServerError, errorResponse{Code: "INTERNAL", Message: "internal server error"}
}
