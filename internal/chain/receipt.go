package chain

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// DefaultPollInterval is the receipt polling period.
const DefaultPollInterval = time.Second

// WaitMined polls for a receipt until one is available or ctx is done.
// Not-found and transient RPC errors keep polling; the last RPC error is
// joined to ctx.Err() on expiry.
func WaitMined(ctx context.Context, b Backend, hash common.Hash, poll time.Duration) (*types.Receipt, error) {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	var lastErr error
	for {
		rcpt, err := b.TransactionReceipt(ctx, hash)
		if err == nil && rcpt != nil {
			return rcpt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			lastErr = err
		}
		if err := sleepCtx(ctx, poll); err != nil {
			if lastErr != nil {
				return nil, errors.Join(err, lastErr)
			}
			return nil, err
		}
	}
}

// WaitConfirmations blocks until the head is at least confirmations-1 blocks
// past block. confirmations <= 1 returns immediately.
func WaitConfirmations(ctx context.Context, b Backend, block uint64, confirmations uint64, poll time.Duration) error {
	if confirmations <= 1 {
		return nil
	}
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	target := block + confirmations - 1
	for {
		head, err := b.BlockNumber(ctx)
		if err == nil && head >= target {
			return nil
		}
		if err := sleepCtx(ctx, poll); err != nil {
			return err
		}
	}
}
