// Package api exposes the ledger service over HTTP and streams ledger events
// over websocket.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"memecoin-prediction-market/internal/ledger"
	"memecoin-prediction-market/internal/observability"
)

// CallerHeader carries the verified caller identity (base58 pubkey).
const CallerHeader = "X-Caller-Pubkey"

// Config holds the HTTP server configuration.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// RateLimit is requests per second per caller; zero disables limiting.
	RateLimit float64
	RateBurst int
	// TokenDecimals renders UI amounts next to base-unit amounts.
	TokenDecimals int32
}

// Server is the HTTP + websocket API server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	log        logrus.FieldLogger
}

// NewServer creates a Server with all routes registered. hub may be nil, in
// which case /ws is not served.
func NewServer(cfg Config, svc *ledger.Service, hub *Hub, logger logrus.FieldLogger, metrics *observability.Metrics) *Server {
	if metrics == nil {
		metrics = observability.DefaultMetrics
	}
	h := &handlers{svc: svc, log: logger, decimals: cfg.TokenDecimals}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.health)
	mux.Handle("GET /metrics", observability.Handler())

	mux.HandleFunc("POST /markets", h.createMarket)
	mux.HandleFunc("GET /markets", h.listMarkets)
	mux.HandleFunc("GET /markets/{name}", h.getMarket)
	mux.HandleFunc("GET /markets/{name}/quote", h.quote)
	mux.HandleFunc("GET /markets/{name}/activity", h.activity)
	mux.HandleFunc("GET /markets/{name}/bets", h.listBets)
	mux.HandleFunc("GET /markets/{name}/bets/{user}", h.getBet)
	mux.HandleFunc("POST /markets/{name}/bets", h.placeBet)
	mux.HandleFunc("POST /markets/{name}/settle", h.settle)
	mux.HandleFunc("POST /markets/{name}/claim", h.claim)
	mux.HandleFunc("GET /users/{user}/bets", h.userBets)
	mux.HandleFunc("GET /activity", h.activityRange)

	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	var handler http.Handler = mux
	if cfg.RateLimit > 0 {
		handler = rateLimit(newLimiterSet(cfg.RateLimit, cfg.RateBurst), metrics)(handler)
	}
	handler = requestLogging(logger, metrics)(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		},
		handler: handler,
		log:     logger,
	}
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.log.WithField("addr", s.httpServer.Addr).Info("api: listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("api: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	return nil
}
