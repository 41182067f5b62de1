package launch

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/ligun0805/token-launchpad/internal/amount"
	"github.com/ligun0805/token-launchpad/internal/chain"
	"github.com/ligun0805/token-launchpad/internal/observability"
)

// Gas budgets used when estimation fails, e.g. because the creator is not
// funded yet.
const (
	FallbackGasCreate       uint64 = 3_000_000
	FallbackGasCreateWithLP uint64 = 5_000_000
)

// FeeSource tells where a tier fee came from.
type FeeSource string

const (
	FeeFromContract FeeSource = "contract"
	FeeFromFallback FeeSource = "fallback"
)

// PreparerConfig configures transaction preparation.
type PreparerConfig struct {
	Factory       common.Address
	ChainID       *big.Int
	LPCreationFee amount.ScaledAmount
	FallbackFees  map[string]amount.ScaledAmount // by tier
	GasBufferPct  int64
	FeeTimeout    time.Duration // per fee lookup; 0 means 5s
}

// PreparedTransaction is an unsigned creation transaction for the creator to sign.
type PreparedTransaction struct {
	To            common.Address
	Data          []byte
	Value         amount.ScaledAmount
	Gas           uint64
	ChainID       *big.Int
	Method        string
	TierFee       amount.ScaledAmount
	TierFeeSource FeeSource
	LPCreationFee amount.ScaledAmount // zero without liquidity
}

// FeeQuote is the value breakdown of a creation transaction.
type FeeQuote struct {
	Tier          string
	TierFee       amount.ScaledAmount
	Source        FeeSource
	LPCreationFee amount.ScaledAmount
	PoolFunding   amount.ScaledAmount
	Total         amount.ScaledAmount
}

// Preparer builds unsigned factory calls.
type Preparer struct {
	backend chain.Backend
	cfg     PreparerConfig
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewPreparer creates a Preparer.
func NewPreparer(b chain.Backend, cfg PreparerConfig, logger *zap.Logger, metrics *observability.Metrics) *Preparer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FeeTimeout <= 0 {
		cfg.FeeTimeout = 5 * time.Second
	}
	return &Preparer{backend: b, cfg: cfg, logger: logger.Named("preparer"), metrics: metrics}
}

// TierFee reads the tier fee from the factory and falls back to the
// configured table on any lookup failure.
func (p *Preparer) TierFee(ctx context.Context, tier string) (amount.ScaledAmount, FeeSource, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, p.cfg.FeeTimeout)
	defer cancel()

	fee, err := chain.TierFee(lookupCtx, p.backend, p.cfg.Factory, tier)
	if err == nil {
		scaled, serr := amount.NewScaled(fee)
		if serr == nil {
			return scaled, FeeFromContract, nil
		}
		err = serr
	}

	fallback, ok := p.cfg.FallbackFees[tier]
	if !ok {
		return amount.ScaledAmount{}, "", invalid("tier", "no fee available for tier %q", tier)
	}
	p.logger.Warn("tier fee lookup failed, using fallback",
		zap.String("tier", tier),
		zap.String("fallback_wei", fallback.String()),
		zap.Error(err))
	p.metrics.RecordFeeFallback(tier)
	return fallback, FeeFromFallback, nil
}

// Quote computes the value a creation transaction must carry.
func (p *Preparer) Quote(ctx context.Context, tier string, liquidity *LiquidityRequest) (*FeeQuote, error) {
	if !knownTier(tier) {
		return nil, invalid("tier", "unknown tier %q", tier)
	}
	fee, src, err := p.TierFee(ctx, tier)
	if err != nil {
		return nil, err
	}
	q := &FeeQuote{Tier: tier, TierFee: fee, Source: src, Total: fee}
	if liquidity != nil {
		q.LPCreationFee = p.cfg.LPCreationFee
		q.PoolFunding = liquidity.NativeAmount
		q.Total = fee.Add(q.LPCreationFee).Add(q.PoolFunding)
	}
	return q, nil
}

// Prepare validates req and returns the unsigned factory call. Supply and
// pool token amounts are encoded unscaled.
func (p *Preparer) Prepare(ctx context.Context, req CreationRequest) (*PreparedTransaction, error) {
	n, err := req.normalize()
	if err != nil {
		return nil, err
	}
	return p.prepare(ctx, n)
}

func (p *Preparer) prepare(ctx context.Context, n *normalized) (*PreparedTransaction, error) {
	q, err := p.Quote(ctx, n.Tier, n.Liquidity)
	if err != nil {
		return nil, err
	}

	args := n.createArgs()
	data, err := chain.PackCreateToken(args)
	if err != nil {
		return nil, &EncodingError{Method: args.Method(), Err: err}
	}

	tx := &PreparedTransaction{
		To:            p.cfg.Factory,
		Data:          data,
		Value:         q.Total,
		ChainID:       p.cfg.ChainID,
		Method:        args.Method(),
		TierFee:       q.TierFee,
		TierFeeSource: q.Source,
		LPCreationFee: q.LPCreationFee,
	}
	tx.Gas = p.estimateGas(ctx, n.Creator, tx)

	p.metrics.RecordPrepared(tx.Method)
	p.logger.Info("prepared creation tx",
		zap.String("method", tx.Method),
		zap.String("creator", n.Creator.Hex()),
		zap.String("symbol", n.Symbol),
		zap.String("value_wei", tx.Value.String()),
		zap.String("fee_source", string(tx.TierFeeSource)),
		zap.Uint64("gas", tx.Gas))
	return tx, nil
}

func (p *Preparer) estimateGas(ctx context.Context, from common.Address, tx *PreparedTransaction) uint64 {
	fallback := FallbackGasCreate
	if tx.Method == chain.MethodCreateTokenWithLP {
		fallback = FallbackGasCreateWithLP
	}
	to := tx.To
	est, err := chain.EstimateGasWithRetry(ctx, p.backend, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Value: tx.Value.BigInt(),
		Data:  tx.Data,
	})
	if err != nil || est == 0 {
		p.logger.Debug("estimateGas failed, using fallback", zap.Uint64("gas", fallback), zap.Error(err))
		return fallback
	}
	return chain.WithBuffer(est, p.cfg.GasBufferPct)
}
