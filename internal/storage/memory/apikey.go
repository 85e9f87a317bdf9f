package memory

import (
	"context"

	"github.com/xenking/promo-quoter/internal/domain/auth"
)

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository implements auth.Repository on a Store.
type APIKeyRepository struct {
	s *Store
}

// Put registers an API key.
func (r *APIKeyRepository) Put(info auth.APIKeyInfo) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.apiKeys[info.KeyHash] = info
}

// FindByHash looks up an API key by its HMAC hash.
func (r *APIKeyRepository) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	info, ok := r.s.apiKeys[hash]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	return &info, nil
}
