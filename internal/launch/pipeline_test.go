package launch

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligun0805/token-launchpad/internal/chain"
	"github.com/ligun0805/token-launchpad/internal/chain/stub"
	"github.com/ligun0805/token-launchpad/internal/domain"
	"github.com/ligun0805/token-launchpad/internal/storage"
)

func TestComplete_Scenario(t *testing.T) {
	f := newFixture(t)
	f.mine(creationHash, types.ReceiptStatusSuccessful, lpEvent(tokenAddr))

	res, err := f.pipeline.Complete(context.Background(), completion(scenarioRequest()))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, tokenAddr, res.TokenAddress)
	assert.Equal(t, creationHash, res.TxHash)
	assert.Empty(t, res.Warnings)
	assert.True(t, res.Pair.IsResolved())

	rec, err := f.store.GetByAddress(context.Background(), tokenAddr.Hex())
	require.NoError(t, err)
	assert.Equal(t, "1000000", rec.TotalSupply)
	assert.Equal(t, 18, rec.Decimals)
	assert.Equal(t, "Pepe Coin", rec.Name)
	assert.Equal(t, "PEPE", rec.Symbol)
	assert.Equal(t, "basic", rec.Tier)
	assert.Equal(t, domain.NormalizeAddress(creatorAddr.Hex()), rec.CreatorAddress)
	assert.Equal(t, domain.NormalizeAddress(pairAddr.Hex()), rec.Pair.Address)
	assert.True(t, rec.LiquidityAdded)
	assert.Equal(t, "500000", rec.Liquidity.TokenAmount)
	assert.Equal(t, "0.001", rec.Liquidity.NativeAmount)
	assert.True(t, rec.AutoApproved)
	assert.True(t, rec.Distributed)
	assert.Equal(t, res.BlockNumber, rec.BlockNumber)

	transfers := sentTo(f.backend, chain.FuncTransfer.Selector[:])
	require.Len(t, transfers, 1)
	_, amt := transferArgs(t, transfers[0].Data())
	want := new(big.Int).Mul(big.NewInt(500_000), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	assert.Equal(t, want, amt)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Completed.WithLabelValues(ResultSuccess)))
}

func TestComplete_DistributionFailureIsWarning(t *testing.T) {
	f := newFixture(t)
	f.mine(creationHash, types.ReceiptStatusSuccessful, lpEvent(tokenAddr))
	f.backend.MineStatus = func(tx *types.Transaction) uint64 {
		if stub.IsSelector(tx.Data(), chain.FuncTransfer.Selector[:]) {
			return types.ReceiptStatusFailed
		}
		return types.ReceiptStatusSuccessful
	}

	res, err := f.pipeline.Complete(context.Background(), completion(scenarioRequest()))
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, StepDistribution, res.Warnings[0].Step)

	// pair lookup was still attempted
	assert.Equal(t, 1, f.backend.CallCount(dexFactory, chain.FuncGetPair.Selector[:]))
	assert.Equal(t, StatusDone, outcome(t, res.Settlement, StepPairLookup).Status)

	rec, err := f.store.GetByAddress(context.Background(), tokenAddr.Hex())
	require.NoError(t, err)
	assert.True(t, rec.AutoApproved)
	assert.False(t, rec.Distributed)
}

func TestComplete_PairLookupFailureIsWarning(t *testing.T) {
	f := newFixture(t)
	f.backend.HandleCall(dexFactory, chain.FuncGetPair.Selector[:], stub.Fail(fmt.Errorf("execution reverted")))
	f.mine(creationHash, types.ReceiptStatusSuccessful, legacyEvent(tokenAddr))

	res, err := f.pipeline.Complete(context.Background(), completion(plainRequest()))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, domain.PairPending, res.Pair.State)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, StepPairLookup, res.Warnings[0].Step)
	assert.True(t, res.Record.Distributed)
}

func TestComplete_RevertedPersistsNothing(t *testing.T) {
	f := newFixture(t)
	f.mine(creationHash, types.ReceiptStatusFailed)

	_, err := f.pipeline.Complete(context.Background(), completion(scenarioRequest()))
	var rerr *RevertedError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, f.backend.Head, rerr.BlockNumber)

	_, err = f.store.GetByAddress(context.Background(), tokenAddr.Hex())
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Empty(t, f.backend.SentTxs())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Completed.WithLabelValues(ResultReverted)))
}

func TestComplete_UnresolvedPersistsNothing(t *testing.T) {
	f := newFixture(t)
	f.backend.HandleCall(factoryAddr, chain.Selector(chain.MethodGetUserTokens), stub.Return(stub.Addresses()))
	f.mine(creationHash, types.ReceiptStatusSuccessful)

	res, err := f.pipeline.Complete(context.Background(), completion(scenarioRequest()))
	assert.Nil(t, res)
	var uerr *TokenAddressUnresolvedError
	require.ErrorAs(t, err, &uerr)

	list, err := f.store.ListByCreator(context.Background(), creatorAddr.Hex())
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, f.backend.SentTxs())
}

func TestComplete_PersistenceFailureIsWarning(t *testing.T) {
	f := newFixture(t, withStore(failingStore{}))
	f.mine(creationHash, types.ReceiptStatusSuccessful, lpEvent(tokenAddr))

	res, err := f.pipeline.Complete(context.Background(), completion(scenarioRequest()))
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, StepPersistence, res.Warnings[0].Step)
	assert.Contains(t, res.Warnings[0].Message, "connection refused")
	assert.Nil(t, res.Record)
}

func TestComplete_InvalidTxHash(t *testing.T) {
	f := newFixture(t)
	req := completion(plainRequest())
	req.TxHash = "0x1234"

	_, err := f.pipeline.Complete(context.Background(), req)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "txHash", verr.Field)
}

func TestComplete_SkipSettlementKeepsFlags(t *testing.T) {
	f := newFixture(t)
	f.mine(creationHash, types.ReceiptStatusSuccessful, lpEvent(tokenAddr))

	_, err := f.pipeline.Complete(context.Background(), completion(scenarioRequest()))
	require.NoError(t, err)
	sent := len(f.backend.SentTxs())

	req := completion(scenarioRequest())
	req.SkipSettlement = true
	res, err := f.pipeline.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, outcome(t, res.Settlement, StepDistribution).Status)
	assert.Len(t, f.backend.SentTxs(), sent)

	rec, err := f.store.GetByAddress(context.Background(), tokenAddr.Hex())
	require.NoError(t, err)
	assert.True(t, rec.Distributed)
	assert.True(t, rec.AutoApproved)
	assert.NotEmpty(t, rec.Liquidity.DistributeTxHash)
}

func TestComplete_ConcurrentSettlementsUseDistinctNonces(t *testing.T) {
	f := newFixture(t)

	const n = 6
	hashes := make([]common.Hash, n)
	tokens := make([]common.Address, n)
	for i := 0; i < n; i++ {
		hashes[i] = common.BigToHash(big.NewInt(int64(1000 + i)))
		tokens[i] = common.BigToAddress(big.NewInt(int64(0x7000 + i)))
		f.backend.HandleCall(tokens[i], chain.FuncBalanceOf.Selector[:], stub.Return(stub.Uint256(new(big.Int).Lsh(big.NewInt(1), 200))))
		f.mine(hashes[i], types.ReceiptStatusSuccessful, lpEvent(tokens[i]))
	}

	var wg sync.WaitGroup
	results := make([]*Result, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := completion(scenarioRequest())
			req.TxHash = hashes[i].Hex()
			results[i], errs[i] = f.pipeline.Complete(context.Background(), req)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, tokens[i], results[i].TokenAddress)
		assert.Empty(t, results[i].Warnings)
	}

	seen := make(map[uint64]bool)
	for _, tx := range f.backend.SentTxs() {
		assert.False(t, seen[tx.Nonce()], "nonce %d reused", tx.Nonce())
		seen[tx.Nonce()] = true
	}
	assert.Len(t, seen, 2*n)
}

func TestRecoverRequest(t *testing.T) {
	f := newFixture(t)
	req := scenarioRequest()
	n, err := req.normalize()
	require.NoError(t, err)
	data, err := chain.PackCreateToken(n.createArgs())
	require.NoError(t, err)

	value := new(big.Int).Add(tierFeeWei, lpFee.BigInt())
	value.Add(value, req.Liquidity.NativeAmount.BigInt())
	key, err := chain.ParsePrivateKey(creatorKey)
	require.NoError(t, err)
	tx, err := types.SignNewTx(key, types.LatestSignerForChainID(f.backend.Chain), &types.DynamicFeeTx{
		ChainID:   f.backend.Chain,
		Gas:       FallbackGasCreateWithLP,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		To:        &factoryAddr,
		Value:     value,
		Data:      data,
	})
	require.NoError(t, err)
	f.backend.AddTx(tx)

	got, err := f.pipeline.RecoverRequest(context.Background(), tx.Hash().Hex())
	require.NoError(t, err)
	assert.Equal(t, "Pepe Coin", got.Name)
	assert.Equal(t, "PEPE", got.Symbol)
	assert.Equal(t, "1000000", got.InitialSupply.String())
	assert.Equal(t, "basic", got.Tier)
	require.NotNil(t, got.Liquidity)
	assert.Equal(t, "500000", got.Liquidity.TokenAmount.String())
	assert.Equal(t, req.Liquidity.NativeAmount.String(), got.Liquidity.NativeAmount.String())

	from, err := types.Sender(types.LatestSignerForChainID(f.backend.Chain), tx)
	require.NoError(t, err)
	assert.Equal(t, from.Hex(), got.Creator)
}

func TestRecoverRequest_NotFactoryCall(t *testing.T) {
	f := newFixture(t)
	tx, _ := signCreatorTx(t, f, tokenAddr, nil)
	f.backend.AddTx(tx)

	_, err := f.pipeline.RecoverRequest(context.Background(), tx.Hash().Hex())
	assert.ErrorIs(t, err, ErrNotCreationTx)

	// a factory call with another selector is not a creation either
	data, err := chain.FactoryABI.Pack(chain.MethodGetUserTokens, creatorAddr)
	require.NoError(t, err)
	tx, _ = signCreatorTx(t, f, factoryAddr, data)
	f.backend.AddTx(tx)

	assert.NotPanics(t, func() {
		_, err = f.pipeline.RecoverRequest(context.Background(), tx.Hash().Hex())
	})
	assert.ErrorIs(t, err, ErrNotCreationTx)
	assert.ErrorIs(t, err, chain.ErrNotCreateCall)
}

func TestComplete_RejectsCreatorNotInEvent(t *testing.T) {
	f := newFixture(t)
	f.mine(creationHash, types.ReceiptStatusSuccessful, lpEvent(tokenAddr))

	req := completion(scenarioRequest())
	req.Creator = "0x000000000000000000000000000000000000bad1"
	_, err := f.pipeline.Complete(context.Background(), req)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "creatorAddress", verr.Field)
	assert.Empty(t, f.backend.SentTxs())
	_, err = f.store.GetByAddress(context.Background(), tokenAddr.Hex())
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Completed.WithLabelValues(ResultValidation)))
}

func TestComplete_RejectsCreatorNotSender(t *testing.T) {
	f := newFixture(t)
	n, err := plainRequest().normalize()
	require.NoError(t, err)
	data, err := chain.PackCreateToken(n.createArgs())
	require.NoError(t, err)
	tx, from := signCreatorTx(t, f, factoryAddr, data)
	f.backend.AddTx(tx)
	// the event names the claimed creator, the signature does not
	f.mine(tx.Hash(), types.ReceiptStatusSuccessful, lpEvent(tokenAddr))

	req := completion(plainRequest())
	req.TxHash = tx.Hash().Hex()
	_, err = f.pipeline.Complete(context.Background(), req)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "creatorAddress", verr.Field)
	assert.Contains(t, verr.Reason, from.Hex())
	assert.Empty(t, f.backend.SentTxs())
}

func TestComplete_AcceptsSenderAsCreator(t *testing.T) {
	f := newFixture(t)
	n, err := plainRequest().normalize()
	require.NoError(t, err)
	data, err := chain.PackCreateToken(n.createArgs())
	require.NoError(t, err)
	tx, from := signCreatorTx(t, f, factoryAddr, data)
	f.backend.AddTx(tx)
	f.mine(tx.Hash(), types.ReceiptStatusSuccessful, &types.Log{
		Address: factoryAddr,
		Topics: []common.Hash{
			chain.EventTokenCreated.Topic0,
			common.BytesToHash(tokenAddr.Bytes()),
			common.BytesToHash(from.Bytes()),
		},
	})

	req := completion(plainRequest())
	req.Creator = from.Hex()
	req.TxHash = tx.Hash().Hex()
	res, err := f.pipeline.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, tokenAddr, res.TokenAddress)

	transfers := sentTo(f.backend, chain.FuncTransfer.Selector[:])
	require.Len(t, transfers, 1)
	to, _ := transferArgs(t, transfers[0].Data())
	assert.Equal(t, from, to)
}

func TestComplete_RerunDoesNotResettle(t *testing.T) {
	f := newFixture(t)
	f.mine(creationHash, types.ReceiptStatusSuccessful, lpEvent(tokenAddr))

	_, err := f.pipeline.Complete(context.Background(), completion(scenarioRequest()))
	require.NoError(t, err)
	first, err := f.store.GetByAddress(context.Background(), tokenAddr.Hex())
	require.NoError(t, err)
	sent := len(f.backend.SentTxs())

	// the share already left the platform wallet
	f.backend.HandleCall(tokenAddr, chain.FuncBalanceOf.Selector[:], stub.Return(stub.Uint256(big.NewInt(0))))

	res, err := f.pipeline.Complete(context.Background(), completion(scenarioRequest()))
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
	assert.Len(t, f.backend.SentTxs(), sent)
	for _, step := range []string{StepApproval, StepDistribution} {
		o := outcome(t, res.Settlement, step)
		assert.Equal(t, StatusSkipped, o.Status, step)
		assert.Equal(t, "already settled", o.Reason, step)
	}

	rec, err := f.store.GetByAddress(context.Background(), tokenAddr.Hex())
	require.NoError(t, err)
	assert.True(t, rec.AutoApproved)
	assert.True(t, rec.Distributed)
	assert.Equal(t, first.Liquidity.ApproveTxHash, rec.Liquidity.ApproveTxHash)
	assert.Equal(t, first.Liquidity.DistributeTxHash, rec.Liquidity.DistributeTxHash)
	assert.Equal(t, first.Liquidity.UserShare, rec.Liquidity.UserShare)
}

func TestComplete_RerunRetriesOnlyFailedStep(t *testing.T) {
	f := newFixture(t)
	f.mine(creationHash, types.ReceiptStatusSuccessful, lpEvent(tokenAddr))
	f.backend.MineStatus = func(tx *types.Transaction) uint64 {
		if stub.IsSelector(tx.Data(), chain.FuncTransfer.Selector[:]) {
			return types.ReceiptStatusFailed
		}
		return types.ReceiptStatusSuccessful
	}

	_, err := f.pipeline.Complete(context.Background(), completion(scenarioRequest()))
	require.NoError(t, err)
	require.Len(t, sentTo(f.backend, chain.FuncApprove.Selector[:]), 1)

	f.backend.MineStatus = nil
	res, err := f.pipeline.Complete(context.Background(), completion(scenarioRequest()))
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, StatusSkipped, outcome(t, res.Settlement, StepApproval).Status)
	assert.Equal(t, StatusDone, outcome(t, res.Settlement, StepDistribution).Status)
	assert.Len(t, sentTo(f.backend, chain.FuncApprove.Selector[:]), 1)
	assert.Len(t, sentTo(f.backend, chain.FuncTransfer.Selector[:]), 2)

	rec, err := f.store.GetByAddress(context.Background(), tokenAddr.Hex())
	require.NoError(t, err)
	assert.True(t, rec.AutoApproved)
	assert.True(t, rec.Distributed)
	assert.NotEmpty(t, rec.Liquidity.ApproveTxHash)
}

func TestComplete_SettlementInProgressIsSkipped(t *testing.T) {
	f := newFixture(t)
	f.mine(creationHash, types.ReceiptStatusSuccessful, lpEvent(tokenAddr))
	require.True(t, f.pipeline.beginSettlement(tokenAddr))

	res, err := f.pipeline.Complete(context.Background(), completion(scenarioRequest()))
	require.NoError(t, err)
	assert.Empty(t, f.backend.SentTxs())
	for _, step := range []string{StepApproval, StepDistribution} {
		assert.Equal(t, "settlement in progress", outcome(t, res.Settlement, step).Reason, step)
	}
	// the other run still holds the token
	assert.False(t, f.pipeline.beginSettlement(tokenAddr))

	f.pipeline.endSettlement(tokenAddr)
	_, err = f.pipeline.Complete(context.Background(), completion(scenarioRequest()))
	require.NoError(t, err)
	assert.Len(t, sentTo(f.backend, chain.FuncTransfer.Selector[:]), 1)
	assert.True(t, f.pipeline.beginSettlement(tokenAddr))
}

// signCreatorTx signs a transaction from creatorKey and returns its sender.
func signCreatorTx(t *testing.T, f *fixture, to common.Address, data []byte) (*types.Transaction, common.Address) {
	t.Helper()
	key, err := chain.ParsePrivateKey(creatorKey)
	require.NoError(t, err)
	signer := types.LatestSignerForChainID(f.backend.Chain)
	tx, err := types.SignNewTx(key, signer, &types.DynamicFeeTx{
		ChainID:   f.backend.Chain,
		Gas:       FallbackGasCreate,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		To:        &to,
		Data:      data,
	})
	require.NoError(t, err)
	from, err := types.Sender(signer, tx)
	require.NoError(t, err)
	return tx, from
}
