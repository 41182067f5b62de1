package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// ErrTxReverted is returned by Transact when the mined receipt has status 0.
var ErrTxReverted = errors.New("transaction reverted")

// SignerOptions tunes platform transaction submission.
type SignerOptions struct {
	GasBufferPct int64
	FallbackGas  uint64
	PollInterval time.Duration
	WaitTimeout  time.Duration
}

// PlatformSigner owns the platform key. It is the only sender from the
// platform wallet, so it can hand out nonces under a mutex instead of
// trusting eth_getTransactionCount(pending) between concurrent settlements.
type PlatformSigner struct {
	backend Backend
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	opts    SignerOptions
	logger  *zap.Logger

	mu         sync.Mutex
	nextNonce  uint64
	nonceKnown bool
}

// NewPlatformSigner parses keyHex and binds it to chainID.
func NewPlatformSigner(b Backend, keyHex string, chainID *big.Int, opts SignerOptions, logger *zap.Logger) (*PlatformSigner, error) {
	if chainID == nil {
		return nil, errors.New("chainID is nil")
	}
	key, err := ParsePrivateKey(keyHex)
	if err != nil {
		return nil, fmt.Errorf("platform key: %w", err)
	}
	if opts.FallbackGas == 0 {
		opts.FallbackGas = 120_000
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 90 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlatformSigner{
		backend: b,
		key:     key,
		address: gethcrypto.PubkeyToAddress(key.PublicKey),
		chainID: new(big.Int).Set(chainID),
		opts:    opts,
		logger:  logger.Named("platform-signer"),
	}, nil
}

// Address is the platform wallet.
func (s *PlatformSigner) Address() common.Address { return s.address }

// Submit signs and broadcasts a zero-value call from the platform wallet.
// Gas and fees are resolved before the nonce lock; the lock covers nonce
// selection, signing and broadcast only.
func (s *PlatformSigner) Submit(ctx context.Context, to common.Address, data []byte) (*types.Transaction, error) {
	gas := s.opts.FallbackGas
	est, err := EstimateGasWithRetry(ctx, s.backend, ethereum.CallMsg{From: s.address, To: &to, Data: data})
	switch {
	case err == nil && est > 0:
		gas = WithBuffer(est, s.opts.GasBufferPct)
	case err != nil && strings.Contains(err.Error(), "execution reverted"):
		return nil, fmt.Errorf("estimate gas: %s", RevertReason(err))
	default:
		s.logger.Warn("estimateGas failed, using fallback gas", zap.Error(err), zap.Uint64("gas", gas))
	}

	tip, feeCap, err := SuggestFees(ctx, s.backend)
	if err != nil {
		return nil, fmt.Errorf("fees: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nonce, err := s.reserveNonceLocked(ctx)
	if err != nil {
		return nil, err
	}
	signed, err := signTx(buildDynamicTx(s.chainID, nonce, &to, nil, gas, tip, feeCap, data), s.chainID, s.key)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}
	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		// the node's view of the nonce is authoritative again after a failed send
		s.nonceKnown = false
		return nil, fmt.Errorf("send tx (nonce %d): %w", nonce, err)
	}
	s.nextNonce = nonce + 1
	s.nonceKnown = true
	s.logger.Debug("platform tx sent",
		zap.String("hash", signed.Hash().Hex()),
		zap.Uint64("nonce", nonce),
		zap.String("to", to.Hex()),
		zap.Uint64("gas", gas))
	return signed, nil
}

func (s *PlatformSigner) reserveNonceLocked(ctx context.Context) (uint64, error) {
	pending, err := s.backend.PendingNonceAt(ctx, s.address)
	if err != nil {
		if s.nonceKnown {
			return s.nextNonce, nil
		}
		return 0, fmt.Errorf("nonce(platform): %w", err)
	}
	if s.nonceKnown && s.nextNonce > pending {
		return s.nextNonce, nil
	}
	return pending, nil
}

// Transact submits and waits for the receipt. Once broadcast the transaction
// is never cancelled; a wait timeout only stops this caller from watching it.
func (s *PlatformSigner) Transact(ctx context.Context, to common.Address, data []byte) (*types.Receipt, error) {
	tx, err := s.Submit(ctx, to, data)
	if err != nil {
		return nil, err
	}
	waitCtx, cancel := context.WithTimeout(ctx, s.opts.WaitTimeout)
	defer cancel()
	rcpt, err := WaitMined(waitCtx, s.backend, tx.Hash(), s.opts.PollInterval)
	if err != nil {
		return nil, fmt.Errorf("wait %s: %w", tx.Hash().Hex(), err)
	}
	if rcpt.Status != types.ReceiptStatusSuccessful {
		return rcpt, fmt.Errorf("%w: %s in block %s", ErrTxReverted, tx.Hash().Hex(), rcpt.BlockNumber)
	}
	return rcpt, nil
}
