package launch

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/ligun0805/token-launchpad/internal/chain"
	"github.com/ligun0805/token-launchpad/internal/domain"
)

// PairResolver looks up the DEX pair of a token against wrapped native.
type PairResolver struct {
	backend       chain.Backend
	dexFactory    common.Address
	wrappedNative common.Address
	timeout       time.Duration
	logger        *zap.Logger
}

// NewPairResolver creates a PairResolver. A zero dexFactory or wrappedNative
// leaves the resolver unconfigured.
func NewPairResolver(b chain.Backend, dexFactory, wrappedNative common.Address, logger *zap.Logger) *PairResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PairResolver{
		backend:       b,
		dexFactory:    dexFactory,
		wrappedNative: wrappedNative,
		timeout:       10 * time.Second,
		logger:        logger.Named("pair-resolver"),
	}
}

func (r *PairResolver) configured() bool {
	return r != nil && r.dexFactory != (common.Address{}) && r.wrappedNative != (common.Address{})
}

// Resolve never fails. A zero pair is not_found when no liquidity was
// requested and pending otherwise, since the pool may not be indexed yet.
// Lookup errors degrade to pending with a failed outcome.
func (r *PairResolver) Resolve(ctx context.Context, token common.Address, liquidityAdded bool) (domain.PairRef, StepOutcome) {
	if !r.configured() {
		return domain.PendingPair(), StepOutcome{Step: StepPairLookup, Status: StatusSkippedUnconfigured, Reason: "dex factory or wrapped native not configured"}
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	pair, err := chain.GetPair(lookupCtx, r.backend, r.dexFactory, token, r.wrappedNative)
	if err != nil {
		r.logger.Warn("pair lookup failed",
			zap.String("token", token.Hex()),
			zap.String("dex_factory", r.dexFactory.Hex()),
			zap.Error(err))
		return domain.PendingPair(), StepOutcome{Step: StepPairLookup, Status: StatusFailed, Error: err.Error()}
	}
	if pair == (common.Address{}) {
		ref := domain.NotFoundPair()
		if liquidityAdded {
			ref = domain.PendingPair()
		}
		return ref, StepOutcome{Step: StepPairLookup, Status: StatusDone, Reason: "no pair yet"}
	}
	ref := domain.ResolvedPair(pair)
	return ref, StepOutcome{Step: StepPairLookup, Status: StatusDone, Detail: ref.Address}
}
