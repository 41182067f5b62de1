package launch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ligun0805/token-launchpad/internal/amount"
	"github.com/ligun0805/token-launchpad/internal/chain"
)

// ErrNotCreationTx is returned when a transaction is not a factory creation call.
var ErrNotCreationTx = errors.New("not a factory creation transaction")

// RecoverRequest rebuilds the CreationRequest of a submitted creation
// transaction from its calldata and sender. The pool funding amount is the
// attached value minus the current tier fee and LP creation fee.
func (p *Pipeline) RecoverRequest(ctx context.Context, txHash string) (*CreationRequest, error) {
	txHash = strings.TrimSpace(txHash)
	if !chain.IsTxHash(txHash) {
		return nil, invalid("txHash", "%q is not a 0x-prefixed 32-byte hex hash", txHash)
	}
	tx, _, err := p.Watcher.backend.TransactionByHash(ctx, common.HexToHash(txHash))
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", txHash, err)
	}
	if tx.To() == nil || *tx.To() != p.Preparer.cfg.Factory {
		return nil, fmt.Errorf("%w: %s", ErrNotCreationTx, txHash)
	}
	args, err := chain.UnpackCreateToken(tx.Data())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotCreationTx, err)
	}
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return nil, fmt.Errorf("recover sender: %w", err)
	}

	req := &CreationRequest{
		Name:          args.Name,
		Symbol:        args.Symbol,
		InitialSupply: amount.HumanFromBigInt(args.InitialSupply),
		Decimals:      args.Decimals,
		Tier:          args.Tier,
		Creator:       from.Hex(),
	}
	if args.LPTokenAmount != nil {
		funding := tx.Value()
		if fee, _, ferr := p.Preparer.TierFee(ctx, strings.ToLower(args.Tier)); ferr == nil {
			funding.Sub(funding, fee.BigInt())
		}
		funding.Sub(funding, p.Preparer.cfg.LPCreationFee.BigInt())
		if funding.Sign() <= 0 {
			// fee schedule changed since submission; keep the whole value
			funding = tx.Value()
		}
		native, err := amount.NewScaled(funding)
		if err != nil {
			return nil, fmt.Errorf("pool funding: %w", err)
		}
		req.Liquidity = &LiquidityRequest{
			TokenAmount:  amount.HumanFromBigInt(args.LPTokenAmount),
			NativeAmount: native,
		}
	}
	return req, nil
}
