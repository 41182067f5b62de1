package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ligun0805/token-launchpad/internal/amount"
	"github.com/ligun0805/token-launchpad/internal/launch"
)

// creationBody is the JSON form of a creation request. Amounts accept JSON
// numbers or decimal strings.
type creationBody struct {
	Name           string             `json:"name"`
	Symbol         string             `json:"symbol"`
	InitialSupply  amount.HumanAmount `json:"initialSupply"`
	Decimals       uint8              `json:"decimals"`
	Tier           string             `json:"tier"`
	CreatorAddress string             `json:"creatorAddress"`
	Liquidity      *liquidityBody     `json:"liquidity"`
}

// liquidityBody carries whole pool tokens and the native currency amount in
// ether units ("0.5").
type liquidityBody struct {
	TokenAmount  amount.HumanAmount `json:"tokenAmount"`
	NativeAmount amount.HumanAmount `json:"nativeAmount"`
}

type completeBody struct {
	creationBody
	TxHash         string `json:"txHash"`
	Confirmations  uint64 `json:"confirmations"`
	SkipSettlement bool   `json:"skipSettlement"`
}

func (b creationBody) toRequest() (launch.CreationRequest, error) {
	req := launch.CreationRequest{
		Name:          b.Name,
		Symbol:        b.Symbol,
		InitialSupply: b.InitialSupply,
		Decimals:      b.Decimals,
		Tier:          b.Tier,
		Creator:       b.CreatorAddress,
	}
	if b.Liquidity != nil {
		native, err := b.Liquidity.NativeAmount.Scale(amount.NativeDecimals)
		if err != nil {
			return req, &launch.ValidationError{Field: "liquidity.nativeAmount", Reason: err.Error()}
		}
		req.Liquidity = &launch.LiquidityRequest{
			TokenAmount:  b.Liquidity.TokenAmount,
			NativeAmount: native,
		}
	}
	return req, nil
}

// decodeStrict decodes exactly one JSON object into dst, rejecting unknown
// fields and trailing data.
func decodeStrict(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &launch.ValidationError{Field: "body", Reason: "empty request body"}
		}
		return &launch.ValidationError{Field: "body", Reason: err.Error()}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return &launch.ValidationError{Field: "body", Reason: "unexpected data after JSON object"}
	}
	return nil
}
