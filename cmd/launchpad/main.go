// Command launchpad serves the token creation API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ligun0805/token-launchpad/internal/app"
	"github.com/ligun0805/token-launchpad/internal/config"
	"github.com/ligun0805/token-launchpad/internal/httpapi"
	"github.com/ligun0805/token-launchpad/internal/logging"
)

func main() {
	_ = godotenv.Load()
	_ = godotenv.Overload(".env.local")

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "launchpad:", err)
		os.Exit(1)
	}
}

func run() error {
	st, err := config.Load()
	if err != nil {
		return err
	}
	if err := st.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger, err := logging.New(st.LogLevel, st.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, st, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info("launchpad starting",
		zap.String("addr", st.HTTPAddr),
		zap.String("chain_id", a.ChainID.String()),
		zap.String("factory", st.FactoryAddress),
		zap.Bool("settlement", a.Signer != nil),
		zap.Int64("confirmations", st.Confirmations))

	srv := &http.Server{
		Addr: st.HTTPAddr,
		Handler: httpapi.New(httpapi.Options{
			Pipeline: a.Pipeline,
			Store:    a.Store,
			Backend:  a.Backend,
			Gatherer: a.Registry,
			Logger:   logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		// completion waits for the receipt and settlement
		WriteTimeout: st.ReceiptTimeout + st.SettlementTimeout + 30*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
