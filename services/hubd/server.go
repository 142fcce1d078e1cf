package hubd

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gorm.io/gorm"

	"stablecore/integrations/eventlog"
)

// Config wires a Server.
type Config struct {
	Runtime     *Runtime
	Broadcaster *Broadcaster
	Journal     *eventlog.Sink
	DB          *gorm.DB
	Auth        AuthConfig
	RateLimit   RateLimit
	Logger      *slog.Logger
}

// Server exposes the protocol over HTTP.
type Server struct {
	runtime     *Runtime
	broadcaster *Broadcaster
	journal     *eventlog.Sink
	auth        *Authenticator
	limiter     *RateLimiter
	idempotency *idempotency
	logger      *slog.Logger
	router      chi.Router
}

// New constructs the HTTP server.
func New(cfg Config) (*Server, error) {
	if cfg.Runtime == nil {
		return nil, errors.New("hubd: runtime required")
	}
	if cfg.Auth.HMACSecret == "" {
		return nil, errors.New("hubd: auth secret required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	broadcaster := cfg.Broadcaster
	if broadcaster == nil {
		broadcaster = NewBroadcaster()
	}
	s := &Server{
		runtime:     cfg.Runtime,
		broadcaster: broadcaster,
		journal:     cfg.Journal,
		auth:        NewAuthenticator(cfg.Auth, logger),
		limiter:     NewRateLimiter(cfg.RateLimit),
		idempotency: newIdempotency(cfg.DB, logger),
		logger:      logger.With("component", "hubd"),
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "hubd")
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(observe(s.logger))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.limiter.Middleware)

		r.Get("/positions/{addr}", s.handleGetPosition)
		r.Get("/positions/{addr}/expired-price", s.handleExpiredPrice)
		r.Get("/challenges/{id}", s.handleGetChallenge)
		r.Get("/pending/{collateral}/{owner}", s.handlePendingReturns)
		r.Get("/ledger", s.handleLedger)
		r.Get("/ledger/{addr}", s.handleAccount)
		r.Get("/leadrate", s.handleLeadRate)
		r.Get("/events", s.handleListEvents)
		r.Get("/events/export", s.handleExportEvents)
		r.Get("/events/ws", s.handleEventStream)

		r.Group(func(w chi.Router) {
			w.Use(s.auth.Middleware(ScopeWrite))
			w.Use(s.idempotency.Middleware)

			w.Post("/positions", s.handleOpen)
			w.Post("/positions/{addr}/clone", s.handleClone)
			w.Post("/positions/{addr}/mint", s.handleMint)
			w.Post("/positions/{addr}/repay", s.handleRepay)
			w.Post("/positions/{addr}/repay-full", s.handleRepayFull)
			w.Post("/positions/{addr}/adjust", s.handleAdjust)
			w.Post("/positions/{addr}/price", s.handleAdjustPrice)
			w.Post("/positions/{addr}/withdraw", s.handleWithdraw)
			w.Post("/positions/{addr}/deposit", s.handleDeposit)
			w.Post("/positions/{addr}/deny", s.handleDeny)
			w.Post("/positions/{addr}/transfer", s.handleTransfer)
			w.Post("/positions/{addr}/buy-expired", s.handleBuyExpired)
			w.Post("/challenges", s.handleChallenge)
			w.Post("/challenges/{id}/bid", s.handleBid)
			w.Post("/pending/return", s.handleReturnPending)
			w.Post("/roll", s.handleRoll)
			w.Post("/roll/native", s.handleRollNative)
			w.Post("/leadrate/propose", s.handleProposeRate)
			w.Post("/leadrate/apply", s.handleApplyRate)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"time":        s.runtime.Now(),
		"subscribers": s.broadcaster.Subscribers(),
	})
}
