// Package launch implements the token creation pipeline: prepare the factory
// call, confirm the creator-signed transaction, resolve the liquidity pair,
// settle the creator's share from the platform wallet and persist the token.
package launch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/ligun0805/token-launchpad/internal/amount"
	"github.com/ligun0805/token-launchpad/internal/chain"
	"github.com/ligun0805/token-launchpad/internal/domain"
	"github.com/ligun0805/token-launchpad/internal/logging"
	"github.com/ligun0805/token-launchpad/internal/observability"
)

// Completion results for metrics.
const (
	ResultSuccess    = "success"
	ResultValidation = "validation_error"
	ResultTimeout    = "timeout"
	ResultReverted   = "reverted"
	ResultUnresolved = "unresolved"
	ResultError      = "error"
)

// CompletionRequest identifies a submitted creation transaction.
type CompletionRequest struct {
	CreationRequest
	TxHash        string
	Confirmations uint64 // 0 means the pipeline default
	// SkipSettlement keeps the settlement flags of an existing record instead
	// of sending platform transactions again.
	SkipSettlement bool
}

// Result is the outcome of a completed creation. Success is true exactly when
// the token address was resolved.
type Result struct {
	Success      bool
	TokenAddress common.Address
	TxHash       common.Hash
	BlockNumber  uint64
	Strategy     string
	Pair         domain.PairRef
	Warnings     []Warning
	Settlement   []StepOutcome
	Record       *domain.TokenRecord
}

// Pipeline wires the creation steps together.
type Pipeline struct {
	Preparer  *Preparer
	Watcher   *Watcher
	Pairs     *PairResolver
	Settler   *Settler
	Persister *Persister

	Confirmations     uint64
	SettlementTimeout time.Duration

	Logger  *zap.Logger
	Metrics *observability.Metrics

	settling sync.Map // token address -> struct{} while Settle runs
}

// Prepare builds the unsigned creation transaction.
func (p *Pipeline) Prepare(ctx context.Context, req CreationRequest) (*PreparedTransaction, error) {
	return p.Preparer.Prepare(ctx, req)
}

// Complete confirms the creation transaction and runs the post-creation
// steps. Errors are returned only before the token address is known; later
// failures are reported as warnings on a successful Result.
func (p *Pipeline) Complete(ctx context.Context, req CompletionRequest) (*Result, error) {
	res, err := p.complete(ctx, req)
	p.Metrics.RecordCompleted(resultLabel(err))
	return res, err
}

func (p *Pipeline) complete(ctx context.Context, req CompletionRequest) (*Result, error) {
	logger := logging.FromContext(ctx, p.Logger)

	n, err := req.normalize()
	if err != nil {
		return nil, err
	}
	txHash := strings.TrimSpace(req.TxHash)
	if !chain.IsTxHash(txHash) {
		return nil, invalid("txHash", "%q is not a 0x-prefixed 32-byte hex hash", txHash)
	}
	confirmations := req.Confirmations
	if confirmations == 0 {
		confirmations = p.Confirmations
	}

	conf, err := p.Watcher.Confirm(ctx, common.HexToHash(txHash), n.Creator, confirmations)
	if err != nil {
		logger.Warn("creation not confirmed", zap.String("tx", txHash), zap.Error(err))
		return nil, err
	}

	res := &Result{
		Success:      true,
		TokenAddress: conf.TokenAddress,
		TxHash:       conf.TxHash,
		BlockNumber:  conf.BlockNumber,
		Strategy:     conf.Strategy,
	}

	// on-chain state exists from here on; the caller's cancellation must not
	// abandon settlement halfway
	postCtx := context.WithoutCancel(ctx)

	pair, pairOutcome := p.Pairs.Resolve(postCtx, conf.TokenAddress, n.LiquidityWant)
	res.Pair = pair
	res.Settlement = append(res.Settlement, pairOutcome)

	rec := p.record(n, conf, pair)
	rec.TierFeeWei = p.paidTierFee(postCtx, n, conf.TxHash)

	owned := !req.SkipSettlement && p.beginSettlement(conf.TokenAddress)
	if owned {
		defer p.endSettlement(conf.TokenAddress)
	}
	prev := p.Persister.Existing(postCtx, rec.Address)
	if prev != nil {
		rec.AutoApproved = prev.AutoApproved
		rec.Distributed = prev.Distributed
		rec.Liquidity.ApproveTxHash = prev.Liquidity.ApproveTxHash
		rec.Liquidity.DistributeTxHash = prev.Liquidity.DistributeTxHash
		rec.Liquidity.UserShare = prev.Liquidity.UserShare
	}

	switch {
	case req.SkipSettlement:
		res.Settlement = append(res.Settlement,
			StepOutcome{Step: StepApproval, Status: StatusSkipped, Reason: "settlement not requested"},
			StepOutcome{Step: StepDistribution, Status: StatusSkipped, Reason: "settlement not requested"})
	case !owned:
		logger.Warn("settlement already running", zap.String("token", conf.TokenAddress.Hex()))
		res.Settlement = append(res.Settlement,
			StepOutcome{Step: StepApproval, Status: StatusSkipped, Reason: "settlement in progress"},
			StepOutcome{Step: StepDistribution, Status: StatusSkipped, Reason: "settlement in progress"})
	default:
		settleCtx, cancel := context.WithTimeout(postCtx, p.settlementTimeout())
		rep := p.Settler.Settle(settleCtx, SettlementInput{
			Token:              conf.TokenAddress,
			Creator:            n.Creator,
			Supply:             n.Supply,
			LPTokenAmount:      n.LPTokenAmount(),
			Decimals:           n.Decimals,
			AlreadyApproved:    rec.AutoApproved,
			AlreadyDistributed: rec.Distributed,
		})
		cancel()
		res.Settlement = append(res.Settlement, rep.Outcomes...)
		rec.AutoApproved = rec.AutoApproved || rep.AutoApproved
		rec.Distributed = rec.Distributed || rep.Distributed
		if rep.ApproveTx != "" {
			rec.Liquidity.ApproveTxHash = rep.ApproveTx
		}
		if rep.DistributeTx != "" {
			rec.Liquidity.DistributeTxHash = rep.DistributeTx
		}
		if !rep.UserShare.IsZero() {
			rec.Liquidity.UserShare = rep.UserShare.String()
		}
	}

	for _, o := range res.Settlement {
		if o.Failed() {
			res.Warnings = append(res.Warnings, Warning{Step: o.Step, Message: o.Error})
		}
	}

	if w := p.Persister.Persist(postCtx, rec); w != nil {
		res.Warnings = append(res.Warnings, *w)
	} else {
		res.Record = rec
	}

	logger.Info("creation completed",
		zap.String("tx", txHash),
		zap.String("token", conf.TokenAddress.Hex()),
		zap.Uint64("block", conf.BlockNumber),
		zap.String("pair", pair.String()),
		zap.Int("warnings", len(res.Warnings)))
	return res, nil
}

// beginSettlement claims token for one settlement run.
func (p *Pipeline) beginSettlement(token common.Address) bool {
	_, running := p.settling.LoadOrStore(token, struct{}{})
	return !running
}

func (p *Pipeline) endSettlement(token common.Address) {
	p.settling.Delete(token)
}

func (p *Pipeline) record(n *normalized, conf *Confirmation, pair domain.PairRef) *domain.TokenRecord {
	rec := &domain.TokenRecord{
		Address:        domain.NormalizeAddress(conf.TokenAddress.Hex()),
		Name:           n.Name,
		Symbol:         n.Symbol,
		TotalSupply:    n.Supply.String(),
		Decimals:       int(n.Decimals),
		Tier:           n.Tier,
		CreatorAddress: domain.NormalizeAddress(n.Creator.Hex()),
		TxHash:         strings.ToLower(conf.TxHash.Hex()),
		BlockNumber:    conf.BlockNumber,
		Pair:           pair,
		LiquidityAdded: n.LiquidityWant,
	}
	if n.Liquidity != nil {
		rec.Liquidity.TokenAmount = n.Liquidity.TokenAmount.String()
		rec.Liquidity.NativeAmount = amount.FormatNative(n.Liquidity.NativeAmount)
	}
	if n.LiquidityWant && p.Preparer != nil {
		rec.Liquidity.LPCreationFeeWei = p.Preparer.cfg.LPCreationFee.String()
	}
	return rec
}

// paidTierFee derives the tier fee from the value the creator actually sent.
// Empty when the transaction cannot be read.
func (p *Pipeline) paidTierFee(ctx context.Context, n *normalized, hash common.Hash) string {
	if p.Watcher == nil {
		return ""
	}
	tx, _, err := p.Watcher.backend.TransactionByHash(ctx, hash)
	if err != nil || tx == nil {
		return ""
	}
	fee := tx.Value()
	if n.LiquidityWant && p.Preparer != nil {
		fee.Sub(fee, p.Preparer.cfg.LPCreationFee.BigInt())
		fee.Sub(fee, n.Liquidity.NativeAmount.BigInt())
	}
	if fee.Sign() < 0 {
		return "0"
	}
	return fee.String()
}

func (p *Pipeline) settlementTimeout() time.Duration {
	if p.SettlementTimeout > 0 {
		return p.SettlementTimeout
	}
	return DefaultSettlementTimeout
}

func resultLabel(err error) string {
	var (
		verr *ValidationError
		terr *TimeoutError
		rerr *RevertedError
		uerr *TokenAddressUnresolvedError
	)
	switch {
	case err == nil:
		return ResultSuccess
	case errors.As(err, &verr):
		return ResultValidation
	case errors.As(err, &terr):
		return ResultTimeout
	case errors.As(err, &rerr):
		return ResultReverted
	case errors.As(err, &uerr):
		return ResultUnresolved
	default:
		return ResultError
	}
}
