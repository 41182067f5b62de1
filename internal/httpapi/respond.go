package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ligun0805/token-launchpad/internal/launch"
	"github.com/ligun0805/token-launchpad/internal/storage"
)

// errorBody is the JSON error envelope.
type errorBody struct {
	Error       string                   `json:"error"`
	Code        string                   `json:"code"`
	Field       string                   `json:"field,omitempty"`
	TxHash      string                   `json:"txHash,omitempty"`
	BlockNumber uint64                   `json:"blockNumber,omitempty"`
	Retryable   bool                     `json:"retryable"`
	Attempts    []launch.StrategyAttempt `json:"attempts,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorStatus maps pipeline and storage errors to a status and body.
func errorStatus(err error) (int, errorBody) {
	var (
		verr *launch.ValidationError
		eerr *launch.EncodingError
		terr *launch.TimeoutError
		rerr *launch.RevertedError
		uerr *launch.TokenAddressUnresolvedError
	)
	body := errorBody{Error: err.Error()}
	switch {
	case errors.As(err, &verr):
		body.Code, body.Field = "validation_error", verr.Field
		return http.StatusBadRequest, body
	case errors.As(err, &rerr):
		body.Code, body.TxHash, body.BlockNumber = "reverted", rerr.TxHash, rerr.BlockNumber
		return http.StatusUnprocessableEntity, body
	case errors.As(err, &terr):
		body.Code, body.TxHash, body.Retryable = "timeout", terr.TxHash, terr.Retryable()
		return http.StatusGatewayTimeout, body
	case errors.As(err, &uerr):
		body.Code, body.TxHash, body.BlockNumber, body.Attempts = "token_address_unresolved", uerr.TxHash, uerr.BlockNumber, uerr.Attempts
		return http.StatusBadGateway, body
	case errors.As(err, &eerr):
		body.Code = "encoding_error"
		return http.StatusInternalServerError, body
	case errors.Is(err, launch.ErrNotCreationTx):
		body.Code = "not_creation_tx"
		return http.StatusBadRequest, body
	case errors.Is(err, storage.ErrNotFound):
		body.Code = "not_found"
		return http.StatusNotFound, body
	case errors.Is(err, storage.ErrInvalidInput):
		body.Code = "validation_error"
		return http.StatusBadRequest, body
	default:
		body.Code = "internal"
		return http.StatusInternalServerError, body
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.requestLogger(r).Error("request error", zap.Int("status", status), zap.String("code", body.Code), zap.Error(err))
	}
	writeJSON(w, status, body)
}
