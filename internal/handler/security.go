package handler

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/promo-quoter/internal/domain/auth"
)

// HeaderAPIKey carries the management API key.
const HeaderAPIKey = "api_key"

var (
	errUnauthorized = errors.New("unauthorized")
	errForbidden    = errors.New("forbidden")
)

type apiKeyCtxKey struct{}

// APIKeyFromContext returns the key that authenticated the request, if any.
func APIKeyFromContext(ctx context.Context) (*auth.APIKeyInfo, bool) {
	info, ok := ctx.Value(apiKeyCtxKey{}).(*auth.APIKeyInfo)
	return info, ok
}

// SecurityHandler authenticates management requests via HMAC-SHA256 hashed
// API keys.
type SecurityHandler struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewSecurityHandler creates a SecurityHandler with the given API key
// repository and HMAC pepper.
func NewSecurityHandler(apikeys auth.Repository, pepper []byte) *SecurityHandler {
	return &SecurityHandler{
		apikeys: apikeys,
		pepper:  pepper,
	}
}

// Authenticate resolves a raw API key. The stored hash is compared in
// constant time against the computed one.
func (s *SecurityHandler) Authenticate(ctx context.Context, key string) (*auth.APIKeyInfo, error) {
	if key == "" {
		return nil, errUnauthorized
	}
	hash := auth.HashKey(key, s.pepper)

	info, err := s.apikeys.FindByHash(ctx, hash)
	if errors.Is(err, auth.ErrKeyNotFound) {
		return nil, errUnauthorized
	}
	if err != nil {
		return nil, errors.Wrap(err, "find api key")
	}
	if subtle.ConstantTimeCompare([]byte(hash), []byte(info.KeyHash)) != 1 {
		return nil, errUnauthorized
	}
	return info, nil
}

// Require returns a middleware admitting only keys granted scope.
func (s *SecurityHandler) Require(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, err := s.Authenticate(r.Context(), r.Header.Get(HeaderAPIKey))
			if err != nil {
				writeError(w, r, err)
				return
			}
			if !info.HasScope(scope) {
				writeError(w, r, errForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), apiKeyCtxKey{}, info)
			ctx = zctx.With(ctx, zap.String("api_key_id", info.ID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
