package launch

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligun0805/token-launchpad/internal/amount"
	"github.com/ligun0805/token-launchpad/internal/chain"
	"github.com/ligun0805/token-launchpad/internal/chain/stub"
)

func TestPrepare_ValueEqualsTierFeeWithoutLiquidity(t *testing.T) {
	f := newFixture(t)

	tx, err := f.pipeline.Prepare(context.Background(), plainRequest())
	require.NoError(t, err)

	assert.Equal(t, factoryAddr, tx.To)
	assert.Equal(t, chain.MethodCreateToken, tx.Method)
	assert.Equal(t, tierFeeWei.String(), tx.Value.String())
	assert.Equal(t, tx.TierFee.String(), tx.Value.String())
	assert.Equal(t, FeeFromContract, tx.TierFeeSource)
	assert.True(t, tx.LPCreationFee.IsZero())
	assert.Equal(t, uint64(60_000), tx.Gas) // 50k estimate + 20%
	assert.Equal(t, f.backend.Chain, tx.ChainID)
}

func TestPrepare_ScenarioWithLiquidity(t *testing.T) {
	f := newFixture(t)

	tx, err := f.pipeline.Prepare(context.Background(), scenarioRequest())
	require.NoError(t, err)

	want := new(big.Int).Add(tierFeeWei, amount.MustNative("0.001").BigInt())
	want.Add(want, lpFee.BigInt())
	assert.Equal(t, want.String(), tx.Value.String())
	assert.Equal(t, chain.MethodCreateTokenWithLP, tx.Method)
	assert.Equal(t, lpFee.String(), tx.LPCreationFee.String())

	args, err := chain.UnpackCreateToken(tx.Data)
	require.NoError(t, err)
	// unscaled: the factory applies 10^decimals itself
	assert.Equal(t, "1000000", args.InitialSupply.String())
	assert.Equal(t, "500000", args.LPTokenAmount.String())
	assert.Equal(t, uint8(18), args.Decimals)
	assert.Equal(t, "Pepe Coin", args.Name)
	assert.Equal(t, "PEPE", args.Symbol)
	assert.Equal(t, "basic", args.Tier)
}

func TestPrepare_DefaultDecimals(t *testing.T) {
	f := newFixture(t)
	req := plainRequest()
	req.Decimals = 0

	tx, err := f.pipeline.Prepare(context.Background(), req)
	require.NoError(t, err)
	args, err := chain.UnpackCreateToken(tx.Data)
	require.NoError(t, err)
	assert.Equal(t, DefaultDecimals, args.Decimals)
}

func TestPrepare_TierFeeFallback(t *testing.T) {
	f := newFixture(t)
	f.backend.HandleCall(factoryAddr, chain.Selector(chain.MethodGetTierFee), stub.Fail(errors.New("execution reverted")))

	tx, err := f.pipeline.Prepare(context.Background(), plainRequest())
	require.NoError(t, err)
	assert.Equal(t, FeeFromFallback, tx.TierFeeSource)
	assert.Equal(t, amount.MustNative("0.002").String(), tx.Value.String())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.FeeFallbacks.WithLabelValues("basic")))
}

func TestPrepare_GasFallback(t *testing.T) {
	f := newFixture(t)
	f.backend.EstimateErr = errors.New("execution reverted: insufficient funds")

	tx, err := f.pipeline.Prepare(context.Background(), scenarioRequest())
	require.NoError(t, err)
	assert.Equal(t, FallbackGasCreateWithLP, tx.Gas)

	tx, err = f.pipeline.Prepare(context.Background(), plainRequest())
	require.NoError(t, err)
	assert.Equal(t, FallbackGasCreate, tx.Gas)
}

func TestPrepare_Validation(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(r *CreationRequest)
		field string
	}{
		{"missing name", func(r *CreationRequest) { r.Name = "  " }, "name"},
		{"missing symbol", func(r *CreationRequest) { r.Symbol = "" }, "symbol"},
		{"zero supply", func(r *CreationRequest) { r.InitialSupply = amount.HumanAmount{} }, "initialSupply"},
		{"fractional supply", func(r *CreationRequest) { r.InitialSupply = amount.MustHuman("10.5") }, "initialSupply"},
		{"supply overflows when scaled", func(r *CreationRequest) {
			r.InitialSupply = amount.MustHuman("1" + strings.Repeat("0", 62))
		}, "initialSupply"},
		{"missing creator", func(r *CreationRequest) { r.Creator = "" }, "creatorAddress"},
		{"creator without 0x", func(r *CreationRequest) { r.Creator = creatorAddr.Hex()[2:] }, "creatorAddress"},
		{"short creator", func(r *CreationRequest) { r.Creator = "0x1234" }, "creatorAddress"},
		{"unknown tier", func(r *CreationRequest) { r.Tier = "gold" }, "tier"},
		{"pool exceeds supply", func(r *CreationRequest) { r.Liquidity.TokenAmount = amount.MustHuman("2000000") }, "liquidity.tokenAmount"},
		{"zero pool tokens", func(r *CreationRequest) { r.Liquidity.TokenAmount = amount.HumanAmount{} }, "liquidity.tokenAmount"},
		{"zero pool funding", func(r *CreationRequest) { r.Liquidity.NativeAmount = amount.ScaledAmount{} }, "liquidity.nativeAmount"},
	}

	f := newFixture(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := scenarioRequest()
			tt.edit(&req)

			_, err := f.pipeline.Prepare(context.Background(), req)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
	assert.Empty(t, f.backend.SentTxs())
}

func TestQuote(t *testing.T) {
	f := newFixture(t)

	q, err := f.pipeline.Preparer.Quote(context.Background(), TierBasic, nil)
	require.NoError(t, err)
	assert.Equal(t, q.TierFee.String(), q.Total.String())

	q, err = f.pipeline.Preparer.Quote(context.Background(), TierBasic, &LiquidityRequest{NativeAmount: amount.MustNative("1")})
	require.NoError(t, err)
	want := new(big.Int).Add(tierFeeWei, lpFee.BigInt())
	want.Add(want, amount.MustNative("1").BigInt())
	assert.Equal(t, want.String(), q.Total.String())

	_, err = f.pipeline.Preparer.Quote(context.Background(), "gold", nil)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}
