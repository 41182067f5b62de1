// Package amount separates human-entered quantities from on-chain base units.
//
// The factory contract multiplies initial supply and pool token amounts by
// 10^decimals itself, so those arguments travel as HumanAmount. Everything
// the backend sends to a token contract directly (transfers, allowances,
// native value) travels as ScaledAmount. The two types do not convert
// implicitly.
package amount

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// NativeDecimals is the decimals of the chain's native currency (wei).
const NativeDecimals = 18

var (
	ErrEmpty      = errors.New("empty amount")
	ErrNegative   = errors.New("amount is negative")
	ErrFractional = errors.New("amount has more fractional digits than allowed")
	ErrOverflow   = errors.New("amount does not fit in uint256")
)

// HumanAmount is a non-negative quantity in display units, e.g. "1000000" or "0.001".
type HumanAmount struct {
	d decimal.Decimal
}

// ParseHuman parses a decimal string. Surrounding whitespace is ignored.
func ParseHuman(s string) (HumanAmount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return HumanAmount{}, ErrEmpty
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return HumanAmount{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if d.Sign() < 0 {
		return HumanAmount{}, ErrNegative
	}
	return HumanAmount{d: d}, nil
}

// MustHuman is ParseHuman for constants and tests.
func MustHuman(s string) HumanAmount {
	h, err := ParseHuman(s)
	if err != nil {
		panic(err)
	}
	return h
}

// HumanFromInt64 builds a whole-unit amount.
func HumanFromInt64(n int64) HumanAmount { return HumanAmount{d: decimal.NewFromInt(n)} }

// HumanFromBigInt builds a whole-unit amount from an unscaled integer.
func HumanFromBigInt(n *big.Int) HumanAmount {
	if n == nil {
		return HumanAmount{}
	}
	return HumanAmount{d: decimal.NewFromBigInt(n, 0)}
}

func (h HumanAmount) IsZero() bool { return h.d.IsZero() }
func (h HumanAmount) Sign() int    { return h.d.Sign() }

// Cmp compares h and o, returning -1, 0 or +1.
func (h HumanAmount) Cmp(o HumanAmount) int { return h.d.Cmp(o.d) }

func (h HumanAmount) Add(o HumanAmount) HumanAmount { return HumanAmount{d: h.d.Add(o.d)} }

// Sub may produce a negative result; callers check Sign before scaling.
func (h HumanAmount) Sub(o HumanAmount) HumanAmount { return HumanAmount{d: h.d.Sub(o.d)} }

// IsInteger reports whether h has no fractional part.
func (h HumanAmount) IsInteger() bool { return h.d.IsInteger() }

// Integer returns h as an unscaled integer, the form the factory contract expects.
func (h HumanAmount) Integer() (*big.Int, error) {
	if !h.d.IsInteger() {
		return nil, ErrFractional
	}
	v := h.d.BigInt()
	if _, overflow := uint256.FromBig(v); overflow {
		return nil, ErrOverflow
	}
	return v, nil
}

// Scale converts h to base units. It fails rather than rounds when h carries
// more fractional digits than decimals.
func (h HumanAmount) Scale(decimals uint8) (ScaledAmount, error) {
	if h.d.Sign() < 0 {
		return ScaledAmount{}, ErrNegative
	}
	shifted := h.d.Shift(int32(decimals))
	if !shifted.IsInteger() {
		return ScaledAmount{}, fmt.Errorf("%w: %s with %d decimals", ErrFractional, h.d.String(), decimals)
	}
	return NewScaled(shifted.BigInt())
}

// String renders h without exponent and without trailing zeros.
func (h HumanAmount) String() string { return h.d.String() }

func (h HumanAmount) MarshalJSON() ([]byte, error) { return json.Marshal(h.d.String()) }

// UnmarshalJSON accepts both JSON numbers and decimal strings.
func (h *HumanAmount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*h = HumanAmount{}
		return nil
	}
	s := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	}
	v, err := ParseHuman(s)
	if err != nil {
		return err
	}
	*h = v
	return nil
}

// ScaledAmount is a non-negative integer in base units bounded by uint256.
type ScaledAmount struct {
	v *big.Int
}

// NewScaled validates v against the uint256 range. v is copied.
func NewScaled(v *big.Int) (ScaledAmount, error) {
	if v == nil {
		return ScaledAmount{}, nil
	}
	if v.Sign() < 0 {
		return ScaledAmount{}, ErrNegative
	}
	if _, overflow := uint256.FromBig(v); overflow {
		return ScaledAmount{}, ErrOverflow
	}
	return ScaledAmount{v: new(big.Int).Set(v)}, nil
}

// ScaledFromUint64 builds a base-unit amount from a small constant.
func ScaledFromUint64(n uint64) ScaledAmount { return ScaledAmount{v: new(big.Int).SetUint64(n)} }

// BigInt returns a copy; the zero value yields 0.
func (s ScaledAmount) BigInt() *big.Int {
	if s.v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(s.v)
}

// Uint256 returns s as a 256-bit word.
func (s ScaledAmount) Uint256() *uint256.Int {
	u, _ := uint256.FromBig(s.BigInt())
	return u
}

func (s ScaledAmount) IsZero() bool { return s.v == nil || s.v.Sign() == 0 }

func (s ScaledAmount) Cmp(o ScaledAmount) int { return s.BigInt().Cmp(o.BigInt()) }

// Add sums two amounts. The result is not re-checked against uint256;
// fee sums are far below the bound.
func (s ScaledAmount) Add(o ScaledAmount) ScaledAmount {
	return ScaledAmount{v: new(big.Int).Add(s.BigInt(), o.BigInt())}
}

// Unscale converts base units back to display units.
func (s ScaledAmount) Unscale(decimals uint8) HumanAmount {
	return HumanAmount{d: decimal.NewFromBigInt(s.BigInt(), -int32(decimals))}
}

// String renders the base-unit integer.
func (s ScaledAmount) String() string { return s.BigInt().String() }

func (s ScaledAmount) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

// MaxAllowance is 2^256-1, the conventional unlimited ERC-20 allowance.
func MaxAllowance() ScaledAmount {
	return ScaledAmount{v: new(uint256.Int).SetAllOne().ToBig()}
}

// ParseNative parses a native-currency amount ("0.001") into wei.
func ParseNative(s string) (ScaledAmount, error) {
	h, err := ParseHuman(s)
	if err != nil {
		return ScaledAmount{}, err
	}
	return h.Scale(NativeDecimals)
}

// MustNative is ParseNative for constants and tests.
func MustNative(s string) ScaledAmount {
	v, err := ParseNative(s)
	if err != nil {
		panic(err)
	}
	return v
}

// FormatNative renders wei as native units ("0.0015").
func FormatNative(s ScaledAmount) string { return s.Unscale(NativeDecimals).String() }
