package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ligun0805/token-launchpad/internal/domain"
	"github.com/ligun0805/token-launchpad/internal/storage"
)

// TokenStore is an in-memory implementation of storage.TokenStore.
type TokenStore struct {
	mu        sync.RWMutex
	byAddress map[string]*domain.TokenRecord // keyed by lowercase address
	now       func() time.Time
}

// NewTokenStore creates a new in-memory token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		byAddress: make(map[string]*domain.TokenRecord),
		now:       time.Now,
	}
}

// Upsert inserts or replaces a token, preserving CreatedAt and the settlement
// flags of an existing row.
func (s *TokenStore) Upsert(_ context.Context, t *domain.TokenRecord) error {
	if t == nil || t.Address == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := domain.NormalizeAddress(t.Address)
	now := s.now().UnixMilli()

	rec := *t
	rec.Address = key
	rec.CreatorAddress = domain.NormalizeAddress(t.CreatorAddress)
	rec.CreatedAt = now
	if prev, exists := s.byAddress[key]; exists {
		rec.CreatedAt = prev.CreatedAt
		rec.AutoApproved = rec.AutoApproved || prev.AutoApproved
		rec.Distributed = rec.Distributed || prev.Distributed
	}
	rec.UpdatedAt = now
	s.byAddress[key] = &rec

	t.Address = rec.Address
	t.CreatorAddress = rec.CreatorAddress
	t.CreatedAt = rec.CreatedAt
	t.UpdatedAt = rec.UpdatedAt
	t.AutoApproved = rec.AutoApproved
	t.Distributed = rec.Distributed
	return nil
}

// GetByAddress retrieves a token by address. Returns ErrNotFound if not exists.
func (s *TokenStore) GetByAddress(_ context.Context, address string) (*domain.TokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.byAddress[domain.NormalizeAddress(address)]
	if !exists {
		return nil, storage.ErrNotFound
	}

	tokenCopy := *t
	return &tokenCopy, nil
}

// ListByCreator retrieves a creator's tokens ordered by CreatedAt ASC.
func (s *TokenStore) ListByCreator(_ context.Context, creator string) ([]*domain.TokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	creator = domain.NormalizeAddress(creator)
	var result []*domain.TokenRecord
	for _, t := range s.byAddress {
		if t.CreatorAddress == creator {
			tokenCopy := *t
			result = append(result, &tokenCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].Address < result[j].Address
	})
	return result, nil
}

var _ storage.TokenStore = (*TokenStore)(nil)
