package chain

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	w3 "github.com/lmittmann/w3"
)

// Factory ABI. Supply and pool token amounts are whole, unscaled units; the
// factory multiplies them by 10^decimals.
const factoryABIJSON = `[
  {"type":"function","stateMutability":"payable","name":"createToken",
   "inputs":[{"name":"name","type":"string"},{"name":"symbol","type":"string"},
             {"name":"initialSupply","type":"uint256"},{"name":"decimals","type":"uint8"},
             {"name":"tier","type":"string"}],
   "outputs":[{"name":"","type":"address"}]},
  {"type":"function","stateMutability":"payable","name":"createTokenWithLP",
   "inputs":[{"name":"name","type":"string"},{"name":"symbol","type":"string"},
             {"name":"initialSupply","type":"uint256"},{"name":"decimals","type":"uint8"},
             {"name":"tier","type":"string"},{"name":"lpTokenAmount","type":"uint256"}],
   "outputs":[{"name":"","type":"address"}]},
  {"type":"function","stateMutability":"view","name":"getTierFee",
   "inputs":[{"name":"tier","type":"string"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","stateMutability":"view","name":"getUserTokens",
   "inputs":[{"name":"user","type":"address"}],
   "outputs":[{"name":"","type":"address[]"}]}
]`

const (
	MethodCreateToken       = "createToken"
	MethodCreateTokenWithLP = "createTokenWithLP"
	MethodGetTierFee        = "getTierFee"
	MethodGetUserTokens     = "getUserTokens"
)

// Canonical event signatures as hashed into topic 0.
const (
	TokenCreatedSig       = "TokenCreated(address,address,string,string,uint256,string)"
	TokenCreatedWithLPSig = "TokenCreatedWithLP(address,address,uint256,uint256,uint256)"
)

// FactoryABI is the parsed factory interface.
var FactoryABI abi.ABI

var (
	// EventTokenCreated is the legacy creation event; topic 1 is the token.
	EventTokenCreated = w3.MustNewEvent("TokenCreated(address indexed tokenAddress, address indexed creator, string name, string symbol, uint256 initialSupply, string tier)")
	// EventTokenCreatedWithLP is emitted by createTokenWithLP; topic 1 is the token.
	EventTokenCreatedWithLP = w3.MustNewEvent("TokenCreatedWithLP(address indexed tokenAddress, address indexed creator, uint256 initialSupply, uint256 lpTokenAmount, uint256 lpEthAmount)")

	FuncBalanceOf = w3.MustNewFunc("balanceOf(address)", "uint256")
	FuncTransfer  = w3.MustNewFunc("transfer(address,uint256)", "bool")
	FuncApprove   = w3.MustNewFunc("approve(address,uint256)", "bool")
	FuncGetPair   = w3.MustNewFunc("getPair(address,address)", "address")
)

func init() {
	parsed, err := abi.JSON(strings.NewReader(factoryABIJSON))
	if err != nil {
		panic(fmt.Sprintf("factory abi: %v", err))
	}
	FactoryABI = parsed
}

// CreateTokenArgs are the unscaled factory call arguments.
type CreateTokenArgs struct {
	Name          string
	Symbol        string
	InitialSupply *big.Int // whole units
	Decimals      uint8
	Tier          string
	LPTokenAmount *big.Int // whole units; nil selects createToken
}

// Method returns the factory method the args encode to.
func (a CreateTokenArgs) Method() string {
	if a.LPTokenAmount != nil {
		return MethodCreateTokenWithLP
	}
	return MethodCreateToken
}

// PackCreateToken ABI-encodes the creation call.
func PackCreateToken(a CreateTokenArgs) ([]byte, error) {
	if a.LPTokenAmount != nil {
		return FactoryABI.Pack(MethodCreateTokenWithLP, a.Name, a.Symbol, a.InitialSupply, a.Decimals, a.Tier, a.LPTokenAmount)
	}
	return FactoryABI.Pack(MethodCreateToken, a.Name, a.Symbol, a.InitialSupply, a.Decimals, a.Tier)
}

// ErrNotCreateCall is returned by UnpackCreateToken for calldata that is not
// a createToken or createTokenWithLP call.
var ErrNotCreateCall = errors.New("not a token creation call")

// UnpackCreateToken decodes calldata produced by PackCreateToken.
func UnpackCreateToken(data []byte) (CreateTokenArgs, error) {
	if len(data) < 4 {
		return CreateTokenArgs{}, fmt.Errorf("%w: calldata too short: %d bytes", ErrNotCreateCall, len(data))
	}
	m, err := FactoryABI.MethodById(data[:4])
	if err != nil {
		return CreateTokenArgs{}, fmt.Errorf("%w: %v", ErrNotCreateCall, err)
	}
	want := 5
	switch m.Name {
	case MethodCreateToken:
	case MethodCreateTokenWithLP:
		want = 6
	default:
		return CreateTokenArgs{}, fmt.Errorf("%w: selector is %s", ErrNotCreateCall, m.Name)
	}
	vals, err := m.Inputs.Unpack(data[4:])
	if err != nil {
		return CreateTokenArgs{}, err
	}
	if len(vals) != want {
		return CreateTokenArgs{}, fmt.Errorf("%s: got %d arguments, want %d", m.Name, len(vals), want)
	}
	var (
		out CreateTokenArgs
		ok  [6]bool
	)
	out.Name, ok[0] = vals[0].(string)
	out.Symbol, ok[1] = vals[1].(string)
	out.InitialSupply, ok[2] = vals[2].(*big.Int)
	out.Decimals, ok[3] = vals[3].(uint8)
	out.Tier, ok[4] = vals[4].(string)
	ok[5] = true
	if want == 6 {
		out.LPTokenAmount, ok[5] = vals[5].(*big.Int)
	}
	for i, good := range ok {
		if !good {
			return CreateTokenArgs{}, fmt.Errorf("%s: argument %d has unexpected type %T", m.Name, i, vals[i])
		}
	}
	return out, nil
}

// Selector returns the 4-byte selector of a factory method.
func Selector(method string) []byte {
	return common.CopyBytes(FactoryABI.Methods[method].ID)
}
