package storage

import (
	"context"

	"github.com/ligun0805/token-launchpad/internal/domain"
)

// TokenStore provides access to tokens storage.
type TokenStore interface {
	// Upsert inserts or replaces a token keyed by its lowercased address.
	// CreatedAt of an existing row is preserved and its AutoApproved and
	// Distributed flags are never reset to false. The stored timestamps and
	// flags are written back into t.
	Upsert(ctx context.Context, t *domain.TokenRecord) error

	// GetByAddress retrieves a token. Returns ErrNotFound if not exists.
	GetByAddress(ctx context.Context, address string) (*domain.TokenRecord, error)

	// ListByCreator retrieves a creator's tokens, ordered by created_at ASC.
	ListByCreator(ctx context.Context, creator string) ([]*domain.TokenRecord, error)
}

// Pinger is implemented by stores backed by a remote database.
type Pinger interface {
	Ping(ctx context.Context) error
}
