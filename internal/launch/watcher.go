package launch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/ligun0805/token-launchpad/internal/chain"
	"github.com/ligun0805/token-launchpad/internal/observability"
)

// DefaultReceiptTimeout bounds the wait for a creation receipt.
const DefaultReceiptTimeout = 60 * time.Second

// AddressStrategy extracts the created token address from a successful
// receipt. ok is false when the strategy found nothing.
type AddressStrategy interface {
	Name() string
	Extract(ctx context.Context, rcpt *types.Receipt, creator common.Address) (addr common.Address, ok bool, err error)
}

// eventStrategy reads topic 1 of the first factory log with a given topic 0.
type eventStrategy struct {
	name    string
	factory common.Address
	topic0  common.Hash
}

func (s eventStrategy) Name() string { return s.name }

func (s eventStrategy) Extract(_ context.Context, rcpt *types.Receipt, _ common.Address) (common.Address, bool, error) {
	for _, lg := range rcpt.Logs {
		if lg == nil || lg.Address != s.factory || len(lg.Topics) < 2 || lg.Topics[0] != s.topic0 {
			continue
		}
		addr := common.BytesToAddress(lg.Topics[1].Bytes())
		if addr != (common.Address{}) {
			return addr, true, nil
		}
	}
	return common.Address{}, false, nil
}

// userTokensStrategy takes the last entry of getUserTokens(creator) as of the
// receipt block.
type userTokensStrategy struct {
	backend chain.Backend
	factory common.Address
}

func (s userTokensStrategy) Name() string { return "get_user_tokens" }

func (s userTokensStrategy) Extract(ctx context.Context, rcpt *types.Receipt, creator common.Address) (common.Address, bool, error) {
	list, err := chain.UserTokensAt(ctx, s.backend, s.factory, creator, rcpt.BlockNumber)
	if err != nil {
		return common.Address{}, false, err
	}
	if len(list) == 0 {
		return common.Address{}, false, nil
	}
	last := list[len(list)-1]
	if last == (common.Address{}) {
		return common.Address{}, false, nil
	}
	return last, true, nil
}

// DefaultStrategies is the extraction order: the LP creation event, the
// legacy creation event, then the factory's per-creator token list.
func DefaultStrategies(b chain.Backend, factory common.Address) []AddressStrategy {
	return []AddressStrategy{
		eventStrategy{name: "token_created_with_lp_event", factory: factory, topic0: chain.EventTokenCreatedWithLP.Topic0},
		eventStrategy{name: "token_created_event", factory: factory, topic0: chain.EventTokenCreated.Topic0},
		userTokensStrategy{backend: b, factory: factory},
	}
}

// WatcherConfig configures confirmation waiting.
type WatcherConfig struct {
	Timeout      time.Duration
	PollInterval time.Duration
}

// Confirmation is a mined, successful creation with its token address.
type Confirmation struct {
	TxHash       common.Hash
	BlockNumber  uint64
	GasUsed      uint64
	TokenAddress common.Address
	Strategy     string
	Receipt      *types.Receipt
}

// Watcher waits for creation receipts and resolves token addresses.
type Watcher struct {
	backend    chain.Backend
	strategies []AddressStrategy
	cfg        WatcherConfig
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewWatcher creates a Watcher trying strategies in order.
func NewWatcher(b chain.Backend, strategies []AddressStrategy, cfg WatcherConfig, logger *zap.Logger, metrics *observability.Metrics) *Watcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultReceiptTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = chain.DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{backend: b, strategies: strategies, cfg: cfg, logger: logger.Named("watcher"), metrics: metrics}
}

// Confirm waits for txHash to be mined with at least confirmations blocks,
// classifies the receipt and resolves the token address. It never returns a
// nil error without a token address.
func (w *Watcher) Confirm(ctx context.Context, txHash common.Hash, creator common.Address, confirmations uint64) (*Confirmation, error) {
	waitCtx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()

	start := time.Now()
	rcpt, err := chain.WaitMined(waitCtx, w.backend, txHash, w.cfg.PollInterval)
	w.metrics.ObserveReceiptWait(time.Since(start).Seconds())
	if err != nil {
		return nil, w.waitError(ctx, txHash, err)
	}

	block := uint64(0)
	if rcpt.BlockNumber != nil {
		block = rcpt.BlockNumber.Uint64()
	}
	if rcpt.Status != types.ReceiptStatusSuccessful {
		return nil, &RevertedError{TxHash: txHash.Hex(), BlockNumber: block, GasUsed: rcpt.GasUsed}
	}

	if err := chain.WaitConfirmations(waitCtx, w.backend, block, confirmations, w.cfg.PollInterval); err != nil {
		return nil, w.waitError(ctx, txHash, err)
	}

	if err := w.verifyCreator(ctx, txHash, rcpt, creator); err != nil {
		w.logger.Warn("creator mismatch", zap.String("tx", txHash.Hex()), zap.String("creator", creator.Hex()), zap.Error(err))
		return nil, err
	}

	conf := &Confirmation{TxHash: txHash, BlockNumber: block, GasUsed: rcpt.GasUsed, Receipt: rcpt}
	var attempts []StrategyAttempt
	for _, s := range w.strategies {
		addr, ok, err := s.Extract(ctx, rcpt, creator)
		switch {
		case err != nil:
			attempts = append(attempts, StrategyAttempt{Strategy: s.Name(), Reason: err.Error()})
			w.logger.Warn("address strategy failed", zap.String("strategy", s.Name()), zap.String("tx", txHash.Hex()), zap.Error(err))
		case !ok:
			attempts = append(attempts, StrategyAttempt{Strategy: s.Name(), Reason: "no match"})
		default:
			conf.TokenAddress = addr
			conf.Strategy = s.Name()
			w.logger.Info("token address resolved",
				zap.String("tx", txHash.Hex()),
				zap.String("token", addr.Hex()),
				zap.String("strategy", s.Name()),
				zap.Uint64("block", block))
			return conf, nil
		}
	}
	return nil, &TokenAddressUnresolvedError{TxHash: txHash.Hex(), BlockNumber: block, Attempts: attempts}
}

// verifyCreator rejects a confirmation whose claimed creator is not the
// transaction sender or the creator indexed in the factory creation event.
// Either source alone is sufficient; a receipt with neither is accepted.
func (w *Watcher) verifyCreator(ctx context.Context, txHash common.Hash, rcpt *types.Receipt, creator common.Address) error {
	if tx, _, err := w.backend.TransactionByHash(ctx, txHash); err == nil && tx != nil {
		from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
		if err != nil {
			return fmt.Errorf("recover sender of %s: %w", txHash.Hex(), err)
		}
		if from != creator {
			return invalid("creatorAddress", "%s does not match transaction sender %s", creator.Hex(), from.Hex())
		}
	}
	for _, s := range w.strategies {
		es, ok := s.(eventStrategy)
		if !ok {
			continue
		}
		for _, lg := range rcpt.Logs {
			if lg == nil || lg.Address != es.factory || len(lg.Topics) < 3 || lg.Topics[0] != es.topic0 {
				continue
			}
			emitted := common.BytesToAddress(lg.Topics[2].Bytes())
			if emitted != (common.Address{}) && emitted != creator {
				return invalid("creatorAddress", "%s does not match event creator %s", creator.Hex(), emitted.Hex())
			}
		}
	}
	return nil
}

// waitError maps an expired wait budget to TimeoutError. Cancellation of the
// caller's context is passed through.
func (w *Watcher) waitError(parent context.Context, txHash common.Hash, err error) error {
	if errors.Is(parent.Err(), context.Canceled) {
		return fmt.Errorf("wait %s: %w", txHash.Hex(), parent.Err())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{TxHash: txHash.Hex(), After: w.cfg.Timeout, Err: err}
	}
	return fmt.Errorf("wait %s: %w", txHash.Hex(), err)
}
