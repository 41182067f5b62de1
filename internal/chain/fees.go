package chain

import (
	"context"
	"math/big"
)

// DefaultTipWei is used when the node cannot suggest a priority fee.
var DefaultTipWei = big.NewInt(2_000_000_000)

// SuggestFees returns tip and fee cap for an EIP-1559 transaction:
// tip from eth_maxPriorityFeePerGas (default 2 gwei), cap = 2*baseFee + tip.
func SuggestFees(ctx context.Context, b Backend) (tip, feeCap *big.Int, err error) {
	h, err := b.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	tip, err = b.SuggestGasTipCap(ctx)
	if err != nil || tip == nil || tip.Sign() == 0 {
		tip = new(big.Int).Set(DefaultTipWei)
	}
	base := new(big.Int)
	if h.BaseFee != nil {
		base.Set(h.BaseFee)
	}
	feeCap = new(big.Int).Add(new(big.Int).Mul(base, big.NewInt(2)), tip)
	if t2 := new(big.Int).Mul(tip, big.NewInt(2)); t2.Cmp(feeCap) > 0 {
		feeCap = t2
	}
	return tip, feeCap, nil
}

// WithBuffer adds pct percent to a gas estimate.
func WithBuffer(gas uint64, pct int64) uint64 {
	if pct <= 0 {
		return gas
	}
	return gas + gas*uint64(pct)/100
}
