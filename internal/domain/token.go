package domain

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// TokenRecord is a launched token as persisted after its creation tx confirmed.
// Corresponds to the tokens table in PostgreSQL.
type TokenRecord struct {
	Address        string  // PK, lowercase 0x hex
	Name           string  // trimmed
	Symbol         string  // uppercased
	TotalSupply    string  // human units, unscaled decimal string
	Decimals       int     // token decimals
	Tier           string  // lowercased tier id
	CreatorAddress string  // lowercase 0x hex
	TxHash         string  // creation transaction
	BlockNumber    uint64  // block of the creation receipt
	Pair           PairRef // DEX pair against wrapped native
	LiquidityAdded bool
	Liquidity      LiquidityMetadata
	TierFeeWei     string // fee attached to the creation tx, base units
	AutoApproved   bool   // platform approval to the configured spender mined
	Distributed    bool   // creator share transfer mined
	CreatedAt      int64  // record creation timestamp (ms)
	UpdatedAt      int64  // last upsert (ms)
}

// LiquidityMetadata is free-form pool funding data stored as JSONB.
type LiquidityMetadata struct {
	TokenAmount      string `json:"tokenAmount,omitempty"`
	NativeAmount     string `json:"nativeAmount,omitempty"`
	LPCreationFeeWei string `json:"lpCreationFeeWei,omitempty"`
	ApproveTxHash    string `json:"approveTxHash,omitempty"`
	DistributeTxHash string `json:"distributeTxHash,omitempty"`
	UserShare        string `json:"userShare,omitempty"`
}

// NormalizeAddress lowercases a hex address for use as a key.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// PairState is the resolution state of a token's liquidity pair.
type PairState string

const (
	PairResolved PairState = "resolved"
	PairNotFound PairState = "not_found"
	PairPending  PairState = "pending"
)

// Stored sentinels for the unresolved states.
const (
	PairNotFoundSentinel = "not_found"
	PairPendingSentinel  = "pending"
)

var ErrInvalidPairRef = errors.New("invalid pair reference")

// PairRef is a tri-state pair reference: a concrete address, "no pair yet"
// or "lookup still pending".
type PairRef struct {
	State   PairState
	Address string // lowercase, set only when State == PairResolved
}

// ResolvedPair references a concrete pair.
func ResolvedPair(addr common.Address) PairRef {
	return PairRef{State: PairResolved, Address: NormalizeAddress(addr.Hex())}
}

// NotFoundPair records that the DEX factory reported no pair.
func NotFoundPair() PairRef { return PairRef{State: PairNotFound} }

// PendingPair records that the lookup has not produced an answer yet.
func PendingPair() PairRef { return PairRef{State: PairPending} }

// IsResolved reports whether the reference holds an address.
func (p PairRef) IsResolved() bool { return p.State == PairResolved && p.Address != "" }

// String returns the stored form: the address or a sentinel. The zero value
// is pending.
func (p PairRef) String() string {
	switch p.State {
	case PairResolved:
		return p.Address
	case PairNotFound:
		return PairNotFoundSentinel
	default:
		return PairPendingSentinel
	}
}

// ParsePairRef parses the stored form. Empty input is pending.
func ParsePairRef(s string) (PairRef, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", PairPendingSentinel:
		return PendingPair(), nil
	case PairNotFoundSentinel:
		return NotFoundPair(), nil
	}
	if !strings.HasPrefix(s, "0x") || !common.IsHexAddress(s) {
		return PairRef{}, ErrInvalidPairRef
	}
	addr := common.HexToAddress(s)
	if addr == (common.Address{}) {
		return NotFoundPair(), nil
	}
	return ResolvedPair(addr), nil
}
