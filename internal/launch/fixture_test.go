package launch

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ligun0805/token-launchpad/internal/amount"
	"github.com/ligun0805/token-launchpad/internal/chain"
	"github.com/ligun0805/token-launchpad/internal/chain/stub"
	"github.com/ligun0805/token-launchpad/internal/domain"
	"github.com/ligun0805/token-launchpad/internal/observability"
	"github.com/ligun0805/token-launchpad/internal/storage"
	"github.com/ligun0805/token-launchpad/internal/storage/memory"
)

const (
	platformKey = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"
	creatorKey  = "8a1f9a8f95be41cd7ccb6168179afb4504aefe388d1e14474d32c45c72ce7b7a"
)

var (
	factoryAddr = common.HexToAddress("0x00000000000000000000000000000000000FAC70")
	dexFactory  = common.HexToAddress("0x00000000000000000000000000000000000D3F00")
	wrapped     = common.HexToAddress("0x00000000000000000000000000000000000E7400")
	spender     = common.HexToAddress("0x0000000000000000000000000000000000005BE0")
	creatorAddr = common.HexToAddress("0x00000000000000000000000000000000000C0FFE")
	tokenAddr   = common.HexToAddress("0x000000000000000000000000000000000000700C")
	pairAddr    = common.HexToAddress("0x00000000000000000000000000000000000000A1")

	creationHash = common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111111")

	tierFeeWei = big.NewInt(1_000_000_000_000_000) // 0.001
	lpFee      = amount.MustNative("0.0005")
)

type fixture struct {
	backend  *stub.Backend
	signer   *chain.PlatformSigner
	store    *memory.TokenStore
	metrics  *observability.Metrics
	pipeline *Pipeline
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	noSigner  bool
	noSpender bool
	noDex     bool
	store     storage.TokenStore
}

func withoutSigner() fixtureOption  { return func(c *fixtureConfig) { c.noSigner = true } }
func withoutSpender() fixtureOption { return func(c *fixtureConfig) { c.noSpender = true } }
func withoutDex() fixtureOption     { return func(c *fixtureConfig) { c.noDex = true } }
func withStore(s storage.TokenStore) fixtureOption {
	return func(c *fixtureConfig) { c.store = s }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	var cfg fixtureConfig
	for _, o := range opts {
		o(&cfg)
	}

	logger := zaptest.NewLogger(t)
	b := stub.New()
	b.AutoMine = true
	b.HandleCall(factoryAddr, chain.Selector(chain.MethodGetTierFee), stub.Return(stub.Uint256(tierFeeWei)))
	b.HandleCall(dexFactory, chain.FuncGetPair.Selector[:], stub.Return(stub.Address(pairAddr)))
	b.HandleCall(tokenAddr, chain.FuncBalanceOf.Selector[:], stub.Return(stub.Uint256(new(big.Int).Lsh(big.NewInt(1), 200))))

	f := &fixture{
		backend: b,
		store:   memory.NewTokenStore(),
		metrics: observability.NewMetrics(prometheus.NewRegistry(), ""),
	}

	var transactor PlatformTransactor
	if !cfg.noSigner {
		s, err := chain.NewPlatformSigner(b, platformKey, b.Chain, chain.SignerOptions{
			GasBufferPct: 20,
			PollInterval: time.Millisecond,
			WaitTimeout:  time.Second,
		}, logger)
		require.NoError(t, err)
		f.signer = s
		transactor = s
	}
	sp := spender
	if cfg.noSpender {
		sp = common.Address{}
	}
	dex := dexFactory
	if cfg.noDex {
		dex = common.Address{}
	}
	var store storage.TokenStore = f.store
	if cfg.store != nil {
		store = cfg.store
	}

	f.pipeline = &Pipeline{
		Preparer: NewPreparer(b, PreparerConfig{
			Factory:       factoryAddr,
			ChainID:       b.Chain,
			LPCreationFee: lpFee,
			FallbackFees: map[string]amount.ScaledAmount{
				TierBasic:    amount.MustNative("0.002"),
				TierStandard: amount.MustNative("0.005"),
				TierPremium:  amount.MustNative("0.01"),
			},
			GasBufferPct: 20,
		}, logger, f.metrics),
		Watcher: NewWatcher(b, DefaultStrategies(b, factoryAddr), WatcherConfig{
			Timeout:      200 * time.Millisecond,
			PollInterval: time.Millisecond,
		}, logger, f.metrics),
		Pairs:             NewPairResolver(b, dex, wrapped, logger),
		Settler:           NewSettler(transactor, b, sp, logger, f.metrics),
		Persister:         NewPersister(store, logger),
		Confirmations:     1,
		SettlementTimeout: 5 * time.Second,
		Logger:            logger,
		Metrics:           f.metrics,
	}
	return f
}

func (f *fixture) mine(hash common.Hash, status uint64, logs ...*types.Log) {
	f.backend.SetReceipt(&types.Receipt{
		TxHash:      hash,
		Status:      status,
		BlockNumber: big.NewInt(int64(f.backend.Head)),
		GasUsed:     2_345_678,
		Logs:        logs,
	})
}

func eventLog(emitter common.Address, topic0 common.Hash, token common.Address) *types.Log {
	return &types.Log{
		Address: emitter,
		Topics: []common.Hash{
			topic0,
			common.BytesToHash(token.Bytes()),
			common.BytesToHash(creatorAddr.Bytes()),
		},
	}
}

func lpEvent(token common.Address) *types.Log {
	return eventLog(factoryAddr, chain.EventTokenCreatedWithLP.Topic0, token)
}

func legacyEvent(token common.Address) *types.Log {
	return eventLog(factoryAddr, chain.EventTokenCreated.Topic0, token)
}

func scenarioRequest() CreationRequest {
	return CreationRequest{
		Name:          "  Pepe Coin ",
		Symbol:        "pepe",
		InitialSupply: amount.MustHuman("1000000"),
		Decimals:      18,
		Tier:          "Basic",
		Creator:       creatorAddr.Hex(),
		Liquidity: &LiquidityRequest{
			TokenAmount:  amount.MustHuman("500000"),
			NativeAmount: amount.MustNative("0.001"),
		},
	}
}

func plainRequest() CreationRequest {
	req := scenarioRequest()
	req.Liquidity = nil
	return req
}

func completion(req CreationRequest) CompletionRequest {
	return CompletionRequest{CreationRequest: req, TxHash: creationHash.Hex()}
}

// sentTo returns platform transactions whose calldata starts with selector.
func sentTo(b *stub.Backend, selector []byte) []*types.Transaction {
	var out []*types.Transaction
	for _, tx := range b.SentTxs() {
		if stub.IsSelector(tx.Data(), selector) {
			out = append(out, tx)
		}
	}
	return out
}

// transferArgs decodes transfer(address,uint256) calldata.
func transferArgs(t *testing.T, data []byte) (common.Address, *big.Int) {
	t.Helper()
	require.Len(t, data, 4+64)
	return common.BytesToAddress(data[4:36]), new(big.Int).SetBytes(data[36:68])
}

func outcome(t *testing.T, outcomes []StepOutcome, step string) StepOutcome {
	t.Helper()
	for _, o := range outcomes {
		if o.Step == step {
			return o
		}
	}
	t.Fatalf("no outcome for step %s in %+v", step, outcomes)
	return StepOutcome{}
}

// failingStore rejects every write.
type failingStore struct{}

var errStoreDown = errors.New("connection refused")

func (failingStore) Upsert(context.Context, *domain.TokenRecord) error { return errStoreDown }
func (failingStore) GetByAddress(context.Context, string) (*domain.TokenRecord, error) {
	return nil, errStoreDown
}
func (failingStore) ListByCreator(context.Context, string) ([]*domain.TokenRecord, error) {
	return nil, errStoreDown
}
