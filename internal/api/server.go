package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/authgate/internal/audit"
	"github.com/nerrad567/authgate/internal/auth"
	"github.com/nerrad567/authgate/internal/infrastructure/config"
	"github.com/nerrad567/authgate/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// rateLimitWindow is the window of both the per-IP and the per-identifier limiter.
const rateLimitWindow = time.Minute

// HealthCheckFunc reports the health of one dependency.
type HealthCheckFunc func(ctx context.Context) error

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Service *auth.Service
	Gate    *auth.Gate
	Policy  *auth.Policy

	// RequestLimiter throttles /api/v1/auth/* per client IP. Nil disables it.
	RequestLimiter auth.Limiter

	// Audit serves GET /api/admin/audit. Nil answers 503.
	Audit audit.Repository

	// HealthChecks are run by GET /api/v1/health, keyed by component name.
	HealthChecks map[string]HealthCheckFunc

	Version string
}

// Server is the authgate HTTP server.
//
// It is created with New() and started with Start().
type Server struct {
	cfg          config.APIConfig
	logger       *logging.Logger
	service      *auth.Service
	gate         *auth.Gate
	policy       *auth.Policy
	limiter      auth.Limiter
	auditRepo    audit.Repository
	healthChecks map[string]HealthCheckFunc
	version      string
	server       *http.Server
}

// New creates a new API server with the given dependencies.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Service == nil {
		return nil, fmt.Errorf("auth service is required")
	}
	if deps.Gate == nil {
		return nil, fmt.Errorf("authentication gate is required")
	}
	if deps.Policy == nil {
		return nil, fmt.Errorf("route policy is required")
	}

	limiter := deps.RequestLimiter
	if limiter == nil {
		limiter = auth.NoLimit{}
	}

	return &Server{
		cfg:          deps.Config,
		logger:       deps.Logger,
		service:      deps.Service,
		gate:         deps.Gate,
		policy:       deps.Policy,
		limiter:      limiter,
		auditRepo:    deps.Audit,
		healthChecks: deps.HealthChecks,
		version:      deps.Version,
	}, nil
}

// Handler returns the fully wired router. Start uses it; tests call it directly.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
