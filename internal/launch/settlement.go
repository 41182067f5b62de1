package launch

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/ligun0805/token-launchpad/internal/amount"
	"github.com/ligun0805/token-launchpad/internal/chain"
	"github.com/ligun0805/token-launchpad/internal/observability"
)

// StepStatus is the outcome of one post-creation step.
type StepStatus string

const (
	StatusDone                StepStatus = "done"
	StatusSkipped             StepStatus = "skipped"
	StatusSkippedUnconfigured StepStatus = "skipped_unconfigured"
	StatusFailed              StepStatus = "failed"
)

// StepOutcome records one settlement sub-step. Failed outcomes keep the error
// text for diagnostics.
type StepOutcome struct {
	Step   string     `json:"step"`
	Status StepStatus `json:"status"`
	TxHash string     `json:"txHash,omitempty"`
	Detail string     `json:"detail,omitempty"`
	Reason string     `json:"reason,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// Failed reports whether the step failed non-fatally.
func (o StepOutcome) Failed() bool { return o.Status == StatusFailed }

// PlatformTransactor sends transactions from the platform wallet.
// *chain.PlatformSigner implements it.
type PlatformTransactor interface {
	Address() common.Address
	Transact(ctx context.Context, to common.Address, data []byte) (*types.Receipt, error)
}

var _ PlatformTransactor = (*chain.PlatformSigner)(nil)

// SettlementInput describes a confirmed creation to settle.
type SettlementInput struct {
	Token         common.Address
	Creator       common.Address
	Supply        amount.HumanAmount
	LPTokenAmount amount.HumanAmount // zero without liquidity
	Decimals      uint8

	// Steps already recorded as mined for this token are not sent again.
	AlreadyApproved    bool
	AlreadyDistributed bool
}

// SettlementReport aggregates the sub-step outcomes.
type SettlementReport struct {
	Outcomes     []StepOutcome
	AutoApproved bool
	Distributed  bool
	UserShare    amount.ScaledAmount
	ApproveTx    string
	DistributeTx string
}

// Settler performs platform-signed approval and distribution.
type Settler struct {
	signer  PlatformTransactor // nil when no platform key is configured
	backend chain.Backend
	spender common.Address
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewSettler creates a Settler. signer may be nil; spender may be zero.
func NewSettler(signer PlatformTransactor, b chain.Backend, spender common.Address, logger *zap.Logger, metrics *observability.Metrics) *Settler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Settler{signer: signer, backend: b, spender: spender, logger: logger.Named("settlement"), metrics: metrics}
}

// Settle runs approval then distribution. Each step is isolated: a failure or
// panic in one is recorded and the next still runs. Steps flagged as already
// done in the input are skipped and stay set in the report.
func (s *Settler) Settle(ctx context.Context, in SettlementInput) SettlementReport {
	var rep SettlementReport

	approval := s.isolate(StepApproval, in, func() StepOutcome {
		if in.AlreadyApproved {
			return alreadySettled(StepApproval)
		}
		return s.approve(ctx, in)
	})
	if approval.Status == StatusDone {
		rep.ApproveTx = approval.TxHash
	}
	rep.AutoApproved = approval.Status == StatusDone || in.AlreadyApproved
	rep.Outcomes = append(rep.Outcomes, approval)

	distribution := s.isolate(StepDistribution, in, func() StepOutcome {
		if in.AlreadyDistributed {
			return alreadySettled(StepDistribution)
		}
		return s.distribute(ctx, in, &rep)
	})
	if distribution.Status == StatusDone {
		rep.DistributeTx = distribution.TxHash
	}
	rep.Distributed = distribution.Status == StatusDone || in.AlreadyDistributed
	rep.Outcomes = append(rep.Outcomes, distribution)

	return rep
}

func alreadySettled(step string) StepOutcome {
	return StepOutcome{Step: step, Status: StatusSkipped, Reason: "already settled"}
}

func (s *Settler) isolate(step string, in SettlementInput, fn func() StepOutcome) (out StepOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = StepOutcome{Step: step, Status: StatusFailed, Error: fmt.Sprintf("panic: %v", r)}
		}
		s.metrics.RecordSettlementStep(step, string(out.Status))
		if out.Status == StatusFailed {
			s.logger.Error("settlement step failed",
				zap.String("step", step),
				zap.String("token", in.Token.Hex()),
				zap.String("creator", in.Creator.Hex()),
				zap.String("spender", s.spender.Hex()),
				zap.String("error", out.Error))
		}
	}()
	return fn()
}

func (s *Settler) approve(ctx context.Context, in SettlementInput) StepOutcome {
	out := StepOutcome{Step: StepApproval}
	switch {
	case s.signer == nil:
		out.Status, out.Reason = StatusSkippedUnconfigured, "platform key not configured"
		return out
	case s.spender == (common.Address{}):
		out.Status, out.Reason = StatusSkippedUnconfigured, "auto-approve spender not configured"
		return out
	}

	data, err := chain.FuncApprove.EncodeArgs(s.spender, amount.MaxAllowance().BigInt())
	if err != nil {
		out.Status, out.Error = StatusFailed, fmt.Sprintf("encode approve: %v", err)
		return out
	}
	rcpt, err := s.signer.Transact(ctx, in.Token, data)
	if rcpt != nil {
		out.TxHash = rcpt.TxHash.Hex()
	}
	if err != nil {
		out.Status, out.Error = StatusFailed, err.Error()
		return out
	}
	out.Status = StatusDone
	out.Detail = s.spender.Hex()
	s.logger.Info("platform approval mined",
		zap.String("token", in.Token.Hex()),
		zap.String("spender", s.spender.Hex()),
		zap.String("tx", out.TxHash))
	return out
}

func (s *Settler) distribute(ctx context.Context, in SettlementInput, rep *SettlementReport) StepOutcome {
	out := StepOutcome{Step: StepDistribution}
	if s.signer == nil {
		out.Status, out.Reason = StatusSkippedUnconfigured, "platform key not configured"
		return out
	}

	share := in.Supply.Sub(in.LPTokenAmount)
	if share.Sign() <= 0 {
		out.Status = StatusSkipped
		out.Reason = fmt.Sprintf("user share %s is not positive (supply %s, pool %s)", share, in.Supply, in.LPTokenAmount)
		s.logger.Info("distribution skipped", zap.String("token", in.Token.Hex()), zap.String("reason", out.Reason))
		return out
	}
	scaled, err := share.Scale(in.Decimals)
	if err != nil {
		out.Status, out.Error = StatusFailed, fmt.Sprintf("scale user share: %v", err)
		return out
	}
	rep.UserShare = scaled
	out.Detail = scaled.String()

	platform := s.signer.Address()
	bal, err := chain.BalanceOf(ctx, s.backend, in.Token, platform)
	switch {
	case err != nil:
		s.logger.Warn("platform balance check failed", zap.String("token", in.Token.Hex()), zap.Error(err))
	case bal.Cmp(scaled.BigInt()) < 0:
		out.Status = StatusFailed
		out.Error = fmt.Sprintf("platform balance %s below user share %s", bal, scaled)
		return out
	}

	data, err := chain.FuncTransfer.EncodeArgs(in.Creator, scaled.BigInt())
	if err != nil {
		out.Status, out.Error = StatusFailed, fmt.Sprintf("encode transfer: %v", err)
		return out
	}
	rcpt, err := s.signer.Transact(ctx, in.Token, data)
	if rcpt != nil {
		out.TxHash = rcpt.TxHash.Hex()
	}
	if err != nil {
		out.Status, out.Error = StatusFailed, err.Error()
		return out
	}
	out.Status = StatusDone
	s.logger.Info("creator share distributed",
		zap.String("token", in.Token.Hex()),
		zap.String("creator", in.Creator.Hex()),
		zap.String("amount", scaled.String()),
		zap.String("tx", out.TxHash))
	return out
}

// DefaultSettlementTimeout bounds all settlement transactions of one creation.
const DefaultSettlementTimeout = 90 * time.Second
