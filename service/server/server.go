package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/reclaim/service/config"
	"github.com/brojonat/reclaim/service/metrics"
	"github.com/brojonat/reclaim/service/nats"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents the HTTP server for the redemption service.
type Server struct {
	addr      string
	cfg       *config.Config
	redeemer  Redeemer
	publisher nats.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	server    *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The publisher is optional - if nil, redemption events are not published.
// The metrics is optional - if nil, metrics endpoints won't be available.
func New(addr string, cfg *config.Config, redeemer Redeemer, publisher nats.Publisher, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:      addr,
		cfg:       cfg,
		redeemer:  redeemer,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Redemption routes
	mux.Handle("POST /get-token-accounts", s.instrument("get_token_accounts", handleGetTokenAccounts(s.redeemer, s.logger)))
	mux.Handle("POST /redeem", s.instrument("redeem", handleRedeem(s.redeemer, s.publisher, s.logger)))
	mux.Handle("POST /submit-transaction", s.instrument("submit_transaction", handleSubmitTransaction(s.redeemer, s.publisher, s.logger)))

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return requestIDMiddleware(corsMiddleware(mux))
}

func (s *Server) instrument(name string, h http.Handler) http.Handler {
	if s.metrics == nil {
		return h
	}
	return metrics.HTTPMetricsMiddleware(s.metrics, name)(h)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	// Submissions block until finality, so the write deadline has to outlast the wait.
	writeTimeout := 15 * time.Second
	if s.cfg != nil && s.cfg.ConfirmTimeout+15*time.Second > writeTimeout {
		writeTimeout = s.cfg.ConfirmTimeout + 15*time.Second
	}

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	if s.metrics != nil {
		s.logger.Info("Prometheus metrics endpoint enabled")
	}
	if s.publisher == nil {
		s.logger.Warn("NATS publisher not configured, redemption events disabled")
	}

	s.logger.Info("starting HTTP server", "addr", s.addr, "write_timeout", writeTimeout.String())
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return err
		}
	}

	// Close the publisher after in-flight submissions have reported
	if s.publisher != nil {
		return s.publisher.Close()
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Set CORS headers for all requests
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-Id")
		w.Header().Set("Access-Control-Expose-Headers", "X-Request-Id")
		w.Header().Set("Access-Control-Max-Age", "3600")

		// Handle preflight OPTIONS requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		// Pass through to next handler
		next.ServeHTTP(w, r)
	})
}

type contextKey int

const requestIDKey contextKey = 0

// requestIDMiddleware tags each request with an id, taken from X-Request-Id when the
// caller supplies one.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func requestLogger(r *http.Request, logger *slog.Logger) *slog.Logger {
	if id := requestIDFrom(r.Context()); id != "" {
		return logger.With("request_id", id)
	}
	return logger
}
