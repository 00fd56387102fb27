// Package core provides the API chassis for the Scout Pup backend: a chi
// router with the cross-cutting middleware chain (recovery, request IDs,
// structured logging, metrics, authentication) applied before requests reach
// domain handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"scoutpup/internal/config"
	"scoutpup/internal/types"
)

// MetricsCollector defines the interface for recording API telemetry.
type MetricsCollector interface {
	// RecordRequest records request latency and count for one completed
	// HTTP request.
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// Authenticator resolves a bearer token into the authenticated Actor.
// Implemented by auth.TokenService; injected for testability.
type Authenticator interface {
	Resolve(ctx context.Context, token string) (*types.Actor, error)
}

// Server encapsulates all dependencies for the Scout Pup API, allowing for
// easy injection during testing and distinct configuration for different
// environments.
type Server struct {
	Config        *config.Config
	Logger        *slog.Logger
	Validator     *Validator
	Metrics       MetricsCollector
	Authenticator Authenticator
	HealthProbes  []HealthProbe

	// RouteRegistrars are populated by the application entry point before
	// MountRoutes is called. The indirection avoids import cycles between
	// core and handler packages.
	RouteRegistrars []func(chi.Router)

	router *chi.Mux
}

// NewServer initializes dependencies and prepares the server for route
// mounting. The caller mounts routes via MountRoutes after construction;
// this separation lets tests customize route registration.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler interface for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}
