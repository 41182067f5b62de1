package launch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ligun0805/token-launchpad/internal/domain"
	"github.com/ligun0805/token-launchpad/internal/storage"
)

// Persister upserts token records. Failures become warnings: the token
// already exists on-chain and can be reconciled later.
type Persister struct {
	store   storage.TokenStore
	timeout time.Duration
	logger  *zap.Logger
}

// NewPersister creates a Persister.
func NewPersister(store storage.TokenStore, logger *zap.Logger) *Persister {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Persister{store: store, timeout: 10 * time.Second, logger: logger.Named("persister")}
}

// Persist upserts rec and returns a warning on failure.
func (p *Persister) Persist(ctx context.Context, rec *domain.TokenRecord) *Warning {
	if p == nil || p.store == nil {
		return &Warning{Step: StepPersistence, Message: "token store not configured"}
	}
	writeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.store.Upsert(writeCtx, rec); err != nil {
		p.logger.Error("persist token failed",
			zap.String("token", rec.Address),
			zap.String("tx", rec.TxHash),
			zap.Error(err))
		return &Warning{Step: StepPersistence, Message: err.Error()}
	}
	return nil
}

// Existing returns the stored record for address, or nil.
func (p *Persister) Existing(ctx context.Context, address string) *domain.TokenRecord {
	if p == nil || p.store == nil {
		return nil
	}
	rec, err := p.store.GetByAddress(ctx, address)
	if err != nil {
		return nil
	}
	return rec
}
