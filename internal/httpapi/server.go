// Package httpapi exposes the launch pipeline over HTTP.
package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ligun0805/token-launchpad/internal/chain"
	"github.com/ligun0805/token-launchpad/internal/launch"
	"github.com/ligun0805/token-launchpad/internal/logging"
	"github.com/ligun0805/token-launchpad/internal/observability"
	"github.com/ligun0805/token-launchpad/internal/storage"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Options wires a Server.
type Options struct {
	Pipeline *launch.Pipeline
	Store    storage.TokenStore  // nil disables the token lookups
	Backend  chain.Backend       // health checks
	Gatherer prometheus.Gatherer // nil disables /metrics
	Logger   *zap.Logger
}

// Server routes the launchpad API.
type Server struct {
	pipeline *launch.Pipeline
	store    storage.TokenStore
	backend  chain.Backend
	logger   *zap.Logger
	mux      *http.ServeMux
}

// New builds the router.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		pipeline: opts.Pipeline,
		store:    opts.Store,
		backend:  opts.Backend,
		logger:   logger.Named("http"),
		mux:      http.NewServeMux(),
	}

	s.mux.HandleFunc("POST /api/tokens/prepare", s.handlePrepare)
	s.mux.HandleFunc("POST /api/tokens/complete", s.handleComplete)
	s.mux.HandleFunc("GET /api/tiers/{tier}/quote", s.handleQuote)
	s.mux.HandleFunc("GET /api/tokens/{address}", s.handleGetToken)
	s.mux.HandleFunc("GET /api/creators/{address}/tokens", s.handleCreatorTokens)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	if opts.Gatherer != nil {
		s.mux.Handle("GET /metrics", observability.Handler(opts.Gatherer))
	}
	return s
}

// ServeHTTP attaches a request id and a request-scoped logger, then routes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" || len(requestID) > 128 {
		requestID = uuid.New().String()
	}
	w.Header().Set("X-Request-ID", requestID)

	logger := s.logger.With(
		zap.String("request_id", requestID),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	)
	ctx := logging.Inject(r.Context(), logger)
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

	defer func() {
		if p := recover(); p != nil {
			logger.Error("handler panic", zap.Any("panic", p), zap.Stack("stack"))
			if !rec.wrote {
				writeJSON(rec, http.StatusInternalServerError, errorBody{Error: "internal error", Code: "internal"})
			}
		}
		fields := []zap.Field{zap.Int("status", rec.status), zap.Duration("duration", time.Since(start))}
		if rec.status >= http.StatusInternalServerError {
			logger.Warn("request failed", fields...)
		} else {
			logger.Debug("request served", fields...)
		}
	}()

	s.mux.ServeHTTP(rec, r.WithContext(ctx))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wrote {
		r.status = code
		r.wrote = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wrote = true
	return r.ResponseWriter.Write(b)
}
