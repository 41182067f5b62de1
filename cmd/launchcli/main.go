// Command launchcli quotes, prepares and reconciles token creations from the
// command line using the same configuration as the launchpad service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ligun0805/token-launchpad/internal/amount"
	"github.com/ligun0805/token-launchpad/internal/app"
	"github.com/ligun0805/token-launchpad/internal/config"
	"github.com/ligun0805/token-launchpad/internal/launch"
	"github.com/ligun0805/token-launchpad/internal/logging"
)

const usage = `usage: launchcli <command> [flags]

commands:
  config    print the effective configuration
  quote     show the value a creation transaction must carry
  prepare   build an unsigned creation transaction
  confirm   confirm a submitted creation and persist the token
`

func main() {
	_ = godotenv.Load()
	_ = godotenv.Overload(".env.local")

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	st, err := config.Load()
	must(err, "config")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "config":
		printConfig(st)
	case "quote":
		runQuote(ctx, st, args)
	case "prepare":
		runPrepare(ctx, st, args)
	case "confirm":
		runConfirm(ctx, st, args)
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
}

func open(ctx context.Context, st config.Settings) *app.App {
	must(st.Validate(), "config")
	logger, err := logging.New(st.LogLevel, "console")
	must(err, "logger")
	a, err := app.Open(ctx, st, logger)
	must(err, "startup")
	return a
}

func runQuote(ctx context.Context, st config.Settings, args []string) {
	fs := flag.NewFlagSet("quote", flag.ExitOnError)
	tier := fs.String("tier", launch.TierBasic, "creation tier")
	native := fs.String("native", "", "pool funding in native units; empty quotes without liquidity")
	_ = fs.Parse(args)

	var liquidity *launch.LiquidityRequest
	if *native != "" {
		v, err := amount.ParseNative(*native)
		must(err, "native")
		liquidity = &launch.LiquidityRequest{NativeAmount: v}
	}

	a := open(ctx, st)
	defer a.Close()

	q, err := a.Pipeline.Preparer.Quote(ctx, strings.ToLower(*tier), liquidity)
	must(err, "quote")
	printQuote(q)
}

func runPrepare(ctx context.Context, st config.Settings, args []string) {
	fs := flag.NewFlagSet("prepare", flag.ExitOnError)
	req := creationFlags(fs)
	_ = fs.Parse(args)

	cr, err := req.request()
	must(err, "request")

	a := open(ctx, st)
	defer a.Close()

	tx, err := a.Pipeline.Prepare(ctx, cr)
	must(err, "prepare")
	printPrepared(tx)
}

func runConfirm(ctx context.Context, st config.Settings, args []string) {
	fs := flag.NewFlagSet("confirm", flag.ExitOnError)
	txHash := fs.String("tx", "", "creation transaction hash")
	settle := fs.Bool("settle", false, "run approval and distribution from the platform wallet")
	confirmations := fs.Uint64("confirmations", 0, "blocks to wait after the receipt (0: configured default)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*txHash) == "" {
		die("-tx is required")
	}
	if *settle && strings.TrimSpace(st.PlatformPrivateKey) == "" {
		st.PlatformPrivateKey = readPassword("Platform private key: ")
	}

	a := open(ctx, st)
	defer a.Close()

	req, err := a.Pipeline.RecoverRequest(ctx, *txHash)
	must(err, "recover request")
	a.Logger.Info("recovered creation request",
		zap.String("name", req.Name),
		zap.String("symbol", req.Symbol),
		zap.String("creator", req.Creator),
		zap.Bool("liquidity", req.Liquidity != nil))

	res, err := a.Pipeline.Complete(ctx, launch.CompletionRequest{
		CreationRequest: *req,
		TxHash:          *txHash,
		Confirmations:   *confirmations,
		SkipSettlement:  !*settle,
	})
	must(err, "confirm")
	printResult(res)
}

type creationArgs struct {
	name, symbol, supply, tier, creator *string
	decimals                            *uint
	lpTokens, lpNative                  *string
}

func creationFlags(fs *flag.FlagSet) creationArgs {
	return creationArgs{
		name:     fs.String("name", "", "token name"),
		symbol:   fs.String("symbol", "", "token symbol"),
		supply:   fs.String("supply", "", "initial supply in whole tokens"),
		decimals: fs.Uint("decimals", 18, "token decimals"),
		tier:     fs.String("tier", launch.TierBasic, "creation tier"),
		creator:  fs.String("creator", "", "creator address"),
		lpTokens: fs.String("lp-tokens", "", "whole tokens to seed the pool with"),
		lpNative: fs.String("lp-native", "", "native units to seed the pool with"),
	}
}

func (c creationArgs) request() (launch.CreationRequest, error) {
	supply, err := amount.ParseHuman(*c.supply)
	if err != nil {
		return launch.CreationRequest{}, fmt.Errorf("supply: %w", err)
	}
	if *c.decimals > 255 {
		return launch.CreationRequest{}, fmt.Errorf("decimals: %d out of range", *c.decimals)
	}
	req := launch.CreationRequest{
		Name:          *c.name,
		Symbol:        *c.symbol,
		InitialSupply: supply,
		Decimals:      uint8(*c.decimals),
		Tier:          *c.tier,
		Creator:       *c.creator,
	}
	if *c.lpTokens != "" || *c.lpNative != "" {
		tokens, err := amount.ParseHuman(*c.lpTokens)
		if err != nil {
			return req, fmt.Errorf("lp-tokens: %w", err)
		}
		native, err := amount.ParseNative(*c.lpNative)
		if err != nil {
			return req, fmt.Errorf("lp-native: %w", err)
		}
		req.Liquidity = &launch.LiquidityRequest{TokenAmount: tokens, NativeAmount: native}
	}
	return req, nil
}
