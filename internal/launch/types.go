package launch

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ligun0805/token-launchpad/internal/amount"
	"github.com/ligun0805/token-launchpad/internal/chain"
)

// DefaultDecimals applies when a request leaves decimals unset (zero).
const DefaultDecimals uint8 = 18

// Tiers accepted by the factory.
const (
	TierBasic    = "basic"
	TierStandard = "standard"
	TierPremium  = "premium"
)

// Tiers lists the known tiers in fee order.
var Tiers = []string{TierBasic, TierStandard, TierPremium}

// Settlement and warning step names.
const (
	StepPairLookup   = "pair_lookup"
	StepApproval     = "approval"
	StepDistribution = "distribution"
	StepPersistence  = "persistence"
)

// CreationRequest is a strongly typed token creation request.
type CreationRequest struct {
	Name          string
	Symbol        string
	InitialSupply amount.HumanAmount
	Decimals      uint8 // 0 selects DefaultDecimals
	Tier          string
	Creator       string // 0x-prefixed hex address
	Liquidity     *LiquidityRequest
}

// LiquidityRequest asks the factory to seed a pool with TokenAmount whole
// tokens paired against NativeAmount of the native currency.
type LiquidityRequest struct {
	TokenAmount  amount.HumanAmount
	NativeAmount amount.ScaledAmount // wei
}

// normalized is a validated CreationRequest.
type normalized struct {
	Name          string
	Symbol        string
	Supply        amount.HumanAmount
	SupplyUnits   *big.Int // unscaled, for the factory
	Decimals      uint8
	Tier          string
	Creator       common.Address
	Liquidity     *LiquidityRequest
	LPTokenUnits  *big.Int // unscaled, nil without liquidity
	ScaledSupply  amount.ScaledAmount
	LiquidityWant bool
}

// normalize trims, cases and validates the request.
func (r CreationRequest) normalize() (*normalized, error) {
	n := &normalized{
		Name:     strings.TrimSpace(r.Name),
		Symbol:   strings.ToUpper(strings.TrimSpace(r.Symbol)),
		Supply:   r.InitialSupply,
		Decimals: r.Decimals,
		Tier:     strings.ToLower(strings.TrimSpace(r.Tier)),
	}
	if n.Name == "" {
		return nil, invalid("name", "required")
	}
	if n.Symbol == "" {
		return nil, invalid("symbol", "required")
	}
	if n.Decimals == 0 {
		n.Decimals = DefaultDecimals
	}
	if n.Tier == "" {
		n.Tier = TierBasic
	}
	if !knownTier(n.Tier) {
		return nil, invalid("tier", "unknown tier %q (want one of %s)", n.Tier, strings.Join(Tiers, ", "))
	}

	creator := strings.TrimSpace(r.Creator)
	if creator == "" {
		return nil, invalid("creatorAddress", "required")
	}
	if !chain.IsHexAddress(creator) {
		return nil, invalid("creatorAddress", "%q is not a 0x-prefixed 20-byte hex address", creator)
	}
	n.Creator = common.HexToAddress(creator)

	if r.InitialSupply.Sign() <= 0 {
		return nil, invalid("initialSupply", "must be greater than zero")
	}
	units, err := r.InitialSupply.Integer()
	if err != nil {
		return nil, invalid("initialSupply", "%v", err)
	}
	n.SupplyUnits = units
	// the factory mints supply*10^decimals, which must fit a uint256
	if n.ScaledSupply, err = r.InitialSupply.Scale(n.Decimals); err != nil {
		return nil, invalid("initialSupply", "%v at %d decimals", err, n.Decimals)
	}

	if r.Liquidity != nil {
		lp := r.Liquidity
		if lp.TokenAmount.Sign() <= 0 {
			return nil, invalid("liquidity.tokenAmount", "must be greater than zero")
		}
		if lp.TokenAmount.Cmp(r.InitialSupply) > 0 {
			return nil, invalid("liquidity.tokenAmount", "%s exceeds initial supply %s", lp.TokenAmount, r.InitialSupply)
		}
		if n.LPTokenUnits, err = lp.TokenAmount.Integer(); err != nil {
			return nil, invalid("liquidity.tokenAmount", "%v", err)
		}
		if lp.NativeAmount.IsZero() {
			return nil, invalid("liquidity.nativeAmount", "must be greater than zero")
		}
		n.Liquidity = lp
		n.LiquidityWant = true
	}
	return n, nil
}

func knownTier(t string) bool {
	for _, k := range Tiers {
		if k == t {
			return true
		}
	}
	return false
}

// LPTokenAmount is the requested pool token amount, zero without liquidity.
func (n *normalized) LPTokenAmount() amount.HumanAmount {
	if n.Liquidity == nil {
		return amount.HumanAmount{}
	}
	return n.Liquidity.TokenAmount
}

func (n *normalized) createArgs() chain.CreateTokenArgs {
	return chain.CreateTokenArgs{
		Name:          n.Name,
		Symbol:        n.Symbol,
		InitialSupply: n.SupplyUnits,
		Decimals:      n.Decimals,
		Tier:          n.Tier,
		LPTokenAmount: n.LPTokenUnits,
	}
}
