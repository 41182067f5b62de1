// Package app wires settings into a running pipeline: RPC client, platform
// signer, token store, metrics and the launch components.
package app

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/ligun0805/token-launchpad/internal/amount"
	"github.com/ligun0805/token-launchpad/internal/chain"
	"github.com/ligun0805/token-launchpad/internal/config"
	"github.com/ligun0805/token-launchpad/internal/launch"
	"github.com/ligun0805/token-launchpad/internal/observability"
	"github.com/ligun0805/token-launchpad/internal/storage"
	"github.com/ligun0805/token-launchpad/internal/storage/memory"
	"github.com/ligun0805/token-launchpad/internal/storage/migrations"
	"github.com/ligun0805/token-launchpad/internal/storage/postgres"
)

// App holds the wired components.
type App struct {
	Backend  chain.Backend
	ChainID  *big.Int
	Signer   *chain.PlatformSigner // nil without PLATFORM_PRIVATE_KEY
	Store    storage.TokenStore
	Pipeline *launch.Pipeline
	Registry *prometheus.Registry
	Logger   *zap.Logger

	closers []func()
}

// Open dials the RPC endpoint, opens the token store (Postgres when
// DATABASE_URL is set, memory otherwise) and builds the pipeline.
func Open(ctx context.Context, st config.Settings, logger *zap.Logger) (*App, error) {
	client, err := chain.Dial(ctx, st.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	store, closeStore, err := openStore(ctx, st.DatabaseURL, logger)
	if err != nil {
		client.Close()
		return nil, err
	}

	a, err := New(ctx, st, client, store, logger)
	if err != nil {
		closeStore()
		client.Close()
		return nil, err
	}
	a.closers = append(a.closers, closeStore, client.Close)
	return a, nil
}

func openStore(ctx context.Context, dsn string, logger *zap.Logger) (storage.TokenStore, func(), error) {
	if dsn == "" {
		logger.Warn("DATABASE_URL not set, using in-memory token store")
		return memory.NewTokenStore(), func() {}, nil
	}
	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return postgres.NewTokenStore(pool), pool.Close, nil
}

// New builds the pipeline on an existing backend and store.
func New(ctx context.Context, st config.Settings, b chain.Backend, store storage.TokenStore, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	chainID, err := resolveChainID(ctx, st.ChainID, b)
	if err != nil {
		return nil, err
	}
	lpFee, tierFees, err := feeSchedule(st)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg, "")

	a := &App{Backend: b, ChainID: chainID, Store: store, Registry: reg, Logger: logger}

	var transactor launch.PlatformTransactor
	if key := strings.TrimSpace(st.PlatformPrivateKey); key != "" {
		signer, err := chain.NewPlatformSigner(b, key, chainID, chain.SignerOptions{
			GasBufferPct: st.GasBufferPct,
			PollInterval: st.ReceiptPollInterval,
			WaitTimeout:  st.SettlementTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		a.Signer = signer
		transactor = signer
		logger.Info("platform signer ready", zap.String("address", signer.Address().Hex()))
	} else {
		logger.Warn("PLATFORM_PRIVATE_KEY not set, settlement steps will be skipped")
	}

	factory := config.Address(st.FactoryAddress)
	a.Pipeline = &launch.Pipeline{
		Preparer: launch.NewPreparer(b, launch.PreparerConfig{
			Factory:       factory,
			ChainID:       chainID,
			LPCreationFee: lpFee,
			FallbackFees:  tierFees,
			GasBufferPct:  st.GasBufferPct,
		}, logger, metrics),
		Watcher: launch.NewWatcher(b, launch.DefaultStrategies(b, factory), launch.WatcherConfig{
			Timeout:      st.ReceiptTimeout,
			PollInterval: st.ReceiptPollInterval,
		}, logger, metrics),
		Pairs:             launch.NewPairResolver(b, config.Address(st.DexFactoryAddress), config.Address(st.WrappedNativeAddress), logger),
		Settler:           launch.NewSettler(transactor, b, config.Address(st.AutoApproveSpender), logger, metrics),
		Persister:         launch.NewPersister(store, logger),
		Confirmations:     uint64(st.Confirmations),
		SettlementTimeout: st.SettlementTimeout,
		Logger:            logger,
		Metrics:           metrics,
	}
	return a, nil
}

// Close releases the store and RPC connections.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func resolveChainID(ctx context.Context, configured string, b chain.Backend) (*big.Int, error) {
	remote, rerr := b.ChainID(ctx)
	if configured == "" {
		if rerr != nil {
			return nil, fmt.Errorf("chain id: %w", rerr)
		}
		return remote, nil
	}
	want, ok := new(big.Int).SetString(configured, 10)
	if !ok {
		return nil, fmt.Errorf("CHAIN_ID: %q is not a number", configured)
	}
	if rerr == nil && remote.Cmp(want) != 0 {
		return nil, fmt.Errorf("CHAIN_ID %s does not match node chain id %s", want, remote)
	}
	return want, nil
}

func feeSchedule(st config.Settings) (amount.ScaledAmount, map[string]amount.ScaledAmount, error) {
	var errs []error
	lpFee, err := amount.ParseNative(st.LPCreationFee)
	if err != nil {
		errs = append(errs, fmt.Errorf("LP_CREATION_FEE %q: %w", st.LPCreationFee, err))
	}
	fees := make(map[string]amount.ScaledAmount, len(st.TierFees))
	for tier, raw := range st.TierFees {
		fee, err := amount.ParseNative(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("tier fee %s %q: %w", tier, raw, err))
			continue
		}
		fees[tier] = fee
	}
	return lpFee, fees, errors.Join(errs...)
}
