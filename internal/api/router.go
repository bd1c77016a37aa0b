package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds each dependency health check.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
// Access control is decided by the route policy, not by route grouping.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)
	r.Use(s.rateLimitMiddleware)
	r.Use(s.gateMiddleware)
	r.Use(s.policyMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", s.handleSignup)
			r.Post("/login", s.handleLogin)
			r.Post("/refresh", s.handleRefresh)
		})

		r.Route("/me", func(r chi.Router) {
			r.Get("/", s.handleMe)
			r.Post("/logout-all", s.handleLogoutEverywhere)
			r.Post("/password", s.handleChangePassword)
		})
	})

	r.Route("/api/manager", func(r chi.Router) {
		r.Get("/users/{id}", s.handleGetUser)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Get("/users", s.handleListUsers)
		r.Route("/users/{id}", func(r chi.Router) {
			r.Post("/disable", s.handleSetEnabled(false))
			r.Post("/enable", s.handleSetEnabled(true))
			r.Post("/unlock", s.handleUnlock)
			r.Post("/revoke", s.handleRevokeTokens)
			r.Put("/role", s.handleSetRole)
		})
		r.Get("/audit", s.handleListAudit)
	})

	return r
}

// handleHealth runs every registered dependency check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	checks := make(map[string]string, len(s.healthChecks))

	for name, check := range s.healthChecks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := check(ctx)
		cancel()
		if err != nil {
			status = http.StatusServiceUnavailable
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status":  overall,
		"version": s.version,
		"checks":  checks,
	})
}
