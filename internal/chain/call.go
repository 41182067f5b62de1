package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ErrEmptyResult is returned when a view call yields no data, typically
// because there is no contract at the target address.
var ErrEmptyResult = errors.New("empty call result")

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "Too Many Requests") || strings.Contains(s, "-32005")
}

// RevertReason trims an RPC error down to the "execution reverted" part.
func RevertReason(err error) string {
	s := err.Error()
	if i := strings.Index(s, "execution reverted"); i >= 0 {
		return s[i:]
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// CallWithRetry performs eth_call against the latest block with a small
// exponential backoff. Reverts are not retried.
func CallWithRetry(ctx context.Context, b Backend, msg ethereum.CallMsg) ([]byte, error) {
	return CallAtWithRetry(ctx, b, msg, nil)
}

// CallAtWithRetry is CallWithRetry pinned to block; nil means latest.
func CallAtWithRetry(ctx context.Context, b Backend, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	const maxAttempts = 3
	backoff := 200 * time.Millisecond
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ret, err := b.CallContract(ctx, msg, block)
		if err == nil {
			return ret, nil
		}
		lastErr = err
		if strings.Contains(err.Error(), "execution reverted") {
			break
		}
		if attempt < maxAttempts {
			if err := sleepCtx(ctx, backoff); err != nil {
				return nil, err
			}
			if isRateLimitError(err) {
				backoff *= 2
			}
		}
	}
	return nil, lastErr
}

// EstimateGasWithRetry mirrors CallWithRetry for eth_estimateGas.
func EstimateGasWithRetry(ctx context.Context, b Backend, msg ethereum.CallMsg) (uint64, error) {
	const maxAttempts = 3
	backoff := 200 * time.Millisecond
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		g, err := b.EstimateGas(ctx, msg)
		if err == nil {
			return g, nil
		}
		lastErr = err
		if strings.Contains(err.Error(), "execution reverted") {
			break
		}
		if attempt < maxAttempts {
			if err := sleepCtx(ctx, backoff); err != nil {
				return 0, err
			}
			if isRateLimitError(err) {
				backoff *= 2
			}
		}
	}
	return 0, lastErr
}

// TierFee reads getTierFee(tier) from the factory, in wei.
func TierFee(ctx context.Context, b Backend, factory common.Address, tier string) (*big.Int, error) {
	data, err := FactoryABI.Pack(MethodGetTierFee, tier)
	if err != nil {
		return nil, err
	}
	out, err := CallWithRetry(ctx, b, ethereum.CallMsg{To: &factory, Data: data})
	if err != nil {
		return nil, fmt.Errorf("getTierFee(%s): %w", tier, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("getTierFee(%s): %w", tier, ErrEmptyResult)
	}
	vals, err := FactoryABI.Unpack(MethodGetTierFee, out)
	if err != nil {
		return nil, fmt.Errorf("getTierFee(%s): decode: %w", tier, err)
	}
	return *abi.ConvertType(vals[0], new(*big.Int)).(**big.Int), nil
}

// UserTokens reads getUserTokens(creator) in creation order.
func UserTokens(ctx context.Context, b Backend, factory, creator common.Address) ([]common.Address, error) {
	return UserTokensAt(ctx, b, factory, creator, nil)
}

// UserTokensAt reads getUserTokens(creator) as of block; nil means latest.
func UserTokensAt(ctx context.Context, b Backend, factory, creator common.Address, block *big.Int) ([]common.Address, error) {
	data, err := FactoryABI.Pack(MethodGetUserTokens, creator)
	if err != nil {
		return nil, err
	}
	out, err := CallAtWithRetry(ctx, b, ethereum.CallMsg{To: &factory, Data: data}, block)
	if err != nil {
		return nil, fmt.Errorf("getUserTokens(%s): %w", creator.Hex(), err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("getUserTokens(%s): %w", creator.Hex(), ErrEmptyResult)
	}
	vals, err := FactoryABI.Unpack(MethodGetUserTokens, out)
	if err != nil {
		return nil, fmt.Errorf("getUserTokens(%s): decode: %w", creator.Hex(), err)
	}
	return *abi.ConvertType(vals[0], new([]common.Address)).(*[]common.Address), nil
}

// GetPair reads getPair(tokenA, tokenB) from a Uniswap-V2-style factory.
// The zero address means no pair exists yet.
func GetPair(ctx context.Context, b Backend, dexFactory, tokenA, tokenB common.Address) (common.Address, error) {
	data, err := FuncGetPair.EncodeArgs(tokenA, tokenB)
	if err != nil {
		return common.Address{}, err
	}
	out, err := CallWithRetry(ctx, b, ethereum.CallMsg{To: &dexFactory, Data: data})
	if err != nil {
		return common.Address{}, fmt.Errorf("getPair: %w", err)
	}
	if len(out) == 0 {
		return common.Address{}, fmt.Errorf("getPair: %w", ErrEmptyResult)
	}
	var pair common.Address
	if err := FuncGetPair.DecodeReturns(out, &pair); err != nil {
		return common.Address{}, fmt.Errorf("getPair: decode: %w", err)
	}
	return pair, nil
}

// BalanceOf reads an ERC-20 balance in base units.
func BalanceOf(ctx context.Context, b Backend, token, owner common.Address) (*big.Int, error) {
	data, err := FuncBalanceOf.EncodeArgs(owner)
	if err != nil {
		return nil, err
	}
	out, err := CallWithRetry(ctx, b, ethereum.CallMsg{To: &token, Data: data})
	if err != nil {
		return nil, fmt.Errorf("balanceOf: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("balanceOf: %w", ErrEmptyResult)
	}
	bal := new(big.Int)
	if err := FuncBalanceOf.DecodeReturns(out, &bal); err != nil {
		return nil, fmt.Errorf("balanceOf: decode: %w", err)
	}
	return bal, nil
}
