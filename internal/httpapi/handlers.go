package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"github.com/ligun0805/token-launchpad/internal/amount"
	"github.com/ligun0805/token-launchpad/internal/chain"
	"github.com/ligun0805/token-launchpad/internal/domain"
	"github.com/ligun0805/token-launchpad/internal/launch"
	"github.com/ligun0805/token-launchpad/internal/logging"
	"github.com/ligun0805/token-launchpad/internal/storage"
)

// PrepareResponse is a wallet-ready unsigned transaction. Value is a hex
// quantity; the fee fields are in ether units.
type PrepareResponse struct {
	To            string `json:"to"`
	Data          string `json:"data"`
	Value         string `json:"value"`
	ValueWei      string `json:"valueWei"`
	Gas           uint64 `json:"gas"`
	ChainID       uint64 `json:"chainId"`
	Method        string `json:"method"`
	TierFee       string `json:"tierFee"`
	TierFeeSource string `json:"tierFeeSource"`
	LPCreationFee string `json:"lpCreationFee"`
}

// CompleteResponse reports a confirmed creation.
type CompleteResponse struct {
	Success      bool                 `json:"success"`
	TokenAddress string               `json:"tokenAddress"`
	TxHash       string               `json:"txHash"`
	BlockNumber  uint64               `json:"blockNumber"`
	PairAddress  string               `json:"pairAddress"`
	Strategy     string               `json:"strategy"`
	Persisted    bool                 `json:"persisted"`
	Warnings     []launch.Warning     `json:"warnings"`
	Settlement   []launch.StepOutcome `json:"settlement"`
}

// QuoteResponse is the value breakdown for a tier.
type QuoteResponse struct {
	Tier          string `json:"tier"`
	TierFee       string `json:"tierFee"`
	TierFeeSource string `json:"tierFeeSource"`
	LPCreationFee string `json:"lpCreationFee"`
	PoolFunding   string `json:"poolFunding"`
	Total         string `json:"total"`
	TotalWei      string `json:"totalWei"`
}

// TokenResponse is the public view of a persisted token.
type TokenResponse struct {
	Address        string                   `json:"address"`
	Name           string                   `json:"name"`
	Symbol         string                   `json:"symbol"`
	TotalSupply    string                   `json:"totalSupply"`
	Decimals       int                      `json:"decimals"`
	Tier           string                   `json:"tier"`
	CreatorAddress string                   `json:"creatorAddress"`
	TxHash         string                   `json:"txHash"`
	BlockNumber    uint64                   `json:"blockNumber"`
	PairAddress    string                   `json:"pairAddress"`
	LiquidityAdded bool                     `json:"liquidityAdded"`
	Liquidity      domain.LiquidityMetadata `json:"liquidity"`
	TierFeeWei     string                   `json:"tierFeeWei,omitempty"`
	AutoApproved   bool                     `json:"autoApproved"`
	Distributed    bool                     `json:"distributed"`
	CreatedAt      int64                    `json:"createdAt"`
	UpdatedAt      int64                    `json:"updatedAt"`
}

func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	return logging.FromContext(r.Context(), s.logger)
}

func (s *Server) handlePrepare(w http.ResponseWriter, r *http.Request) {
	var body creationBody
	if err := decodeStrict(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	req, err := body.toRequest()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	tx, err := s.pipeline.Prepare(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := PrepareResponse{
		To:            tx.To.Hex(),
		Data:          hexutil.Encode(tx.Data),
		Value:         hexutil.EncodeBig(tx.Value.BigInt()),
		ValueWei:      tx.Value.String(),
		Gas:           tx.Gas,
		Method:        tx.Method,
		TierFee:       amount.FormatNative(tx.TierFee),
		TierFeeSource: string(tx.TierFeeSource),
		LPCreationFee: amount.FormatNative(tx.LPCreationFee),
	}
	if tx.ChainID != nil {
		resp.ChainID = tx.ChainID.Uint64()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var body completeBody
	if err := decodeStrict(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	req, err := body.toRequest()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, _ := logging.WithAttrs(r.Context(), zap.String("tx", strings.TrimSpace(body.TxHash)))
	res, err := s.pipeline.Complete(ctx, launch.CompletionRequest{
		CreationRequest: req,
		TxHash:          body.TxHash,
		Confirmations:   body.Confirmations,
		SkipSettlement:  body.SkipSettlement,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := CompleteResponse{
		Success:      res.Success,
		TokenAddress: res.TokenAddress.Hex(),
		TxHash:       res.TxHash.Hex(),
		BlockNumber:  res.BlockNumber,
		PairAddress:  res.Pair.String(),
		Strategy:     res.Strategy,
		Persisted:    res.Record != nil,
		Warnings:     res.Warnings,
		Settlement:   res.Settlement,
	}
	if resp.Warnings == nil {
		resp.Warnings = []launch.Warning{}
	}
	if resp.Settlement == nil {
		resp.Settlement = []launch.StepOutcome{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	tier := strings.ToLower(strings.TrimSpace(r.PathValue("tier")))
	q := r.URL.Query()

	var liquidity *launch.LiquidityRequest
	if raw := q.Get("nativeAmount"); raw != "" {
		native, err := amount.ParseNative(raw)
		if err != nil {
			s.writeError(w, r, &launch.ValidationError{Field: "nativeAmount", Reason: err.Error()})
			return
		}
		liquidity = &launch.LiquidityRequest{NativeAmount: native}
	}
	if raw := q.Get("liquidity"); raw != "" {
		want, err := strconv.ParseBool(raw)
		if err != nil {
			s.writeError(w, r, &launch.ValidationError{Field: "liquidity", Reason: "must be a boolean"})
			return
		}
		switch {
		case !want:
			liquidity = nil
		case liquidity == nil:
			liquidity = &launch.LiquidityRequest{}
		}
	}

	quote, err := s.pipeline.Preparer.Quote(r.Context(), tier, liquidity)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, QuoteResponse{
		Tier:          quote.Tier,
		TierFee:       amount.FormatNative(quote.TierFee),
		TierFeeSource: string(quote.Source),
		LPCreationFee: amount.FormatNative(quote.LPCreationFee),
		PoolFunding:   amount.FormatNative(quote.PoolFunding),
		Total:         amount.FormatNative(quote.Total),
		TotalWei:      quote.Total.String(),
	})
}

func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.pathAddress(w, r)
	if !ok {
		return
	}
	rec, err := s.store.GetByAddress(r.Context(), addr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse(rec))
}

func (s *Server) handleCreatorTokens(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.pathAddress(w, r)
	if !ok {
		return
	}
	recs, err := s.store.ListByCreator(r.Context(), addr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tokens := make([]TokenResponse, 0, len(recs))
	for _, rec := range recs {
		tokens = append(tokens, tokenResponse(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"creator": addr, "tokens": tokens})
}

// pathAddress validates the {address} path value. It writes the error
// response itself and reports whether the handler may continue.
func (s *Server) pathAddress(w http.ResponseWriter, r *http.Request) (string, bool) {
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "token store not configured", Code: "unavailable"})
		return "", false
	}
	raw := strings.TrimSpace(r.PathValue("address"))
	if !chain.IsHexAddress(raw) {
		s.writeError(w, r, &launch.ValidationError{Field: "address", Reason: "not a 0x-prefixed hex address"})
		return "", false
	}
	return domain.NormalizeAddress(raw), true
}

func tokenResponse(rec *domain.TokenRecord) TokenResponse {
	return TokenResponse{
		Address:        rec.Address,
		Name:           rec.Name,
		Symbol:         rec.Symbol,
		TotalSupply:    rec.TotalSupply,
		Decimals:       rec.Decimals,
		Tier:           rec.Tier,
		CreatorAddress: rec.CreatorAddress,
		TxHash:         rec.TxHash,
		BlockNumber:    rec.BlockNumber,
		PairAddress:    rec.Pair.String(),
		LiquidityAdded: rec.LiquidityAdded,
		Liquidity:      rec.Liquidity,
		TierFeeWei:     rec.TierFeeWei,
		AutoApproved:   rec.AutoApproved,
		Distributed:    rec.Distributed,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
}

type healthResponse struct {
	Status string `json:"status"`
	Head   uint64 `json:"head,omitempty"`
	RPC    string `json:"rpc"`
	Store  string `json:"store"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", RPC: "ok", Store: "none"}
	status := http.StatusOK

	if s.backend != nil {
		head, err := s.backend.BlockNumber(ctx)
		if err != nil {
			s.requestLogger(r).Warn("health: rpc unreachable", zap.Error(err))
			resp.RPC, resp.Status, status = "unreachable", "degraded", http.StatusServiceUnavailable
		} else {
			resp.Head = head
		}
	}

	switch st := s.store.(type) {
	case nil:
	case storage.Pinger:
		if err := st.Ping(ctx); err != nil {
			s.requestLogger(r).Warn("health: store unreachable", zap.Error(err))
			resp.Store, resp.Status, status = "unreachable", "degraded", http.StatusServiceUnavailable
		} else {
			resp.Store = "ok"
		}
	default:
		resp.Store = "memory"
	}
	writeJSON(w, status, resp)
}
