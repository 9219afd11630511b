// Package server wires the HTTP API: middleware pipeline, route table
// and process lifecycle.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mediplex/mediplex/internal/apierr"
	"github.com/mediplex/mediplex/internal/billing"
	"github.com/mediplex/mediplex/internal/config"
	"github.com/mediplex/mediplex/internal/health"
	"github.com/mediplex/mediplex/internal/identity"
	"github.com/mediplex/mediplex/internal/logging"
	"github.com/mediplex/mediplex/internal/metrics"
	"github.com/mediplex/mediplex/internal/org"
	"github.com/mediplex/mediplex/internal/patients"
	"github.com/mediplex/mediplex/internal/ratelimit"
	"github.com/mediplex/mediplex/internal/rbac"
	"github.com/mediplex/mediplex/internal/registration"
	"github.com/mediplex/mediplex/internal/storage"
	"github.com/mediplex/mediplex/internal/traces"
)

// sweepInterval is how often the subscription lifecycle sweep runs.
const sweepInterval = 24 * time.Hour

// Server wraps the HTTP server and its dependencies.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	db           *sql.DB // nil when using in-memory stores
	orgs         org.Store
	users        identity.Store
	roles        rbac.Store
	billingStore billing.Store
	patientStore patients.Store
	memBootstrap *registration.MemoryBootstrapper // nil under Postgres

	tokens        *identity.TokenManager
	authorizer    *rbac.Authorizer
	enforcer      *billing.Enforcer
	usage         *billing.Usage
	subscriptions *billing.Service
	regService    *registration.Service
	mailer        registration.Mailer

	sweeper     *billing.Sweeper
	rateLimiter *ratelimit.Limiter
	checks      *health.Registry
	stopTraces  func(context.Context) error

	router       *gin.Engine
	httpSrv      *http.Server
	cancelRunCtx context.CancelFunc

	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMailer sets a custom mailer (for testing).
func WithMailer(m registration.Mailer) Option {
	return func(s *Server) { s.mailer = m }
}

// New creates a server instance.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
		checks: health.NewRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	// Storage: Postgres when DATABASE_URL is set, in-memory otherwise.
	if cfg.DatabaseURL != "" {
		if err := s.initPostgres(ctx); err != nil {
			return nil, err
		}
	} else {
		s.initMemory()
		s.logger.Info("using in-memory storage")
	}

	if err := s.billingStore.SeedCatalog(ctx, billing.DefaultPlans(), billing.DefaultLimits()); err != nil {
		return nil, fmt.Errorf("seed billing catalog: %w", err)
	}

	s.tokens = identity.NewTokenManager(cfg.JWTSecret, time.Duration(cfg.TokenTTLMinutes)*time.Minute)
	s.authorizer = rbac.NewAuthorizer(s.roles)
	s.enforcer = billing.NewEnforcer(s.billingStore)
	s.usage = billing.NewUsage(s.billingStore)
	s.subscriptions = billing.NewService(s.billingStore, s.orgs)
	s.sweeper = billing.NewSweeper(s.billingStore, sweepInterval)

	if s.mailer == nil {
		s.mailer = &registration.LogMailer{BaseURL: "http://localhost:" + cfg.Port}
	}
	var bootstrapper registration.Bootstrapper
	if s.db != nil {
		bootstrapper = registration.NewPostgresBootstrapper(s.db)
	} else {
		bootstrapper = s.memBootstrap
	}
	s.regService = registration.NewService(bootstrapper, s.billingStore, s.mailer, int(cfg.TrialDays))

	shutdown, err := traces.Init(ctx, cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("tracing disabled", "error", err)
	} else {
		s.stopTraces = shutdown
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)
	return s, nil
}

func (s *Server) initPostgres(ctx context.Context) error {
	db, err := storage.Open(s.cfg.DatabaseURL)
	if err != nil {
		return err
	}
	s.db = db
	s.logger.Info("using PostgreSQL storage", "url", storage.MaskDSN(s.cfg.DatabaseURL))

	orgStore := org.NewPostgresStore(db)
	userStore := identity.NewPostgresStore(db)
	roleStore := rbac.NewPostgresStore(db)
	billingStore := billing.NewPostgresStore(db)
	patientStore := patients.NewPostgresStore(db)

	// Migration order follows foreign keys.
	migrations := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"organizations", orgStore.Migrate},
		{"users", userStore.Migrate},
		{"roles", roleStore.Migrate},
		{"billing", billingStore.Migrate},
		{"patients", patientStore.Migrate},
	}
	for _, m := range migrations {
		if err := m.fn(ctx); err != nil {
			return fmt.Errorf("migrate %s: %w", m.name, err)
		}
	}

	s.orgs = orgStore
	s.users = userStore
	s.roles = roleStore
	s.billingStore = billingStore
	s.patientStore = patientStore

	s.checks.Register("database", func(ctx context.Context) health.Status {
		st := health.Status{Name: "database", Healthy: true}
		if err := db.PingContext(ctx); err != nil {
			st.Healthy = false
			st.Detail = err.Error()
		}
		return st
	})
	return nil
}

func (s *Server) initMemory() {
	orgStore := org.NewMemoryStore()
	userStore := identity.NewMemoryStore()
	roleStore := rbac.NewMemoryStore()
	billingStore := billing.NewMemoryStore()

	// Mirror trial expiry onto the organization, matching the single
	// transaction the SQL implementation uses.
	billingStore.OnExpireOrganization(func(orgID string) {
		if err := orgStore.UpdateStatus(context.Background(), orgID, org.StatusExpired); err != nil {
			s.logger.Error("failed to expire organization", "organization_id", orgID, "error", err)
		}
	})

	s.orgs = orgStore
	s.users = userStore
	s.roles = roleStore
	s.billingStore = billingStore
	s.patientStore = patients.NewMemoryStore()
	s.memBootstrap = registration.NewMemoryBootstrapper(orgStore, userStore, roleStore, billingStore)
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with the standard error envelope.
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		apierr.Abort(c, errors.New("panic"))
	}))

	s.router.Use(securityMiddleware()...)

	s.rateLimiter = ratelimit.New(ratelimit.Config{
		RequestsPerMinute: s.cfg.RateLimitRPM,
		BurstSize:         s.cfg.RateLimitRPM / 6,
	})
	s.router.Use(s.rateLimiter.Middleware())

	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())

	// Identity and tenancy run on every route. Authentication sets
	// claims, tenant resolution derives the organization from them,
	// and the mismatch check rejects contradicting untrusted input.
	s.router.Use(identity.Authenticate(s.tokens))
	s.router.Use(org.ResolveTenant())
	s.router.Use(org.RejectMismatch())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())
		args := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency_ms", latency.Milliseconds(),
		}
		switch {
		case status >= 500:
			logger.Error("request completed", append(args, "client_ip", c.ClientIP())...)
		case status >= 400:
			logger.Warn("request completed", args...)
		default:
			logger.Info("request completed", args...)
		}
	}
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	s.sweeper.Start(runCtx)
	s.checks.Register("sweeper", func(context.Context) health.Status {
		st := health.Status{Name: "sweeper", Healthy: s.sweeper.Running()}
		if !st.Healthy {
			st.Detail = "sweep loop not running"
		}
		return st
	})

	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	s.sweeper.Stop()
	s.rateLimiter.Stop()

	if s.stopTraces != nil {
		if err := s.stopTraces(ctx); err != nil {
			s.logger.Warn("trace exporter shutdown failed", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Warn("database close failed", "error", err)
		}
	}

	s.logger.Info("shutdown complete")
	return nil
}

// Router exposes the gin engine for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
