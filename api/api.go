package api

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/papercomputeco/plans/api/auth"
	"github.com/papercomputeco/plans/pkg/planservice"
)

// PlanService is the set of plan operations the API serves.
type PlanService interface {
	Create(ctx context.Context, raw []byte) (string, error)
	Get(ctx context.Context, id string) (*planservice.Versioned, error)
	Patch(ctx context.Context, id, ifMatch string, patch []byte) (*planservice.Versioned, error)
	Delete(ctx context.Context, id string) error
}

// Server is the API server for the plans system
type Server struct {
	config Config
	plans  PlanService
	logger *slog.Logger
	app    *fiber.App
}

// NewServer creates a new API server.
// The plan service is injected to allow sharing with other components
// (e.g., the projector when run in the same process).
func NewServer(config Config, plans PlanService, logger *slog.Logger) (*Server, error) {
	if plans == nil {
		return nil, errors.New("plan service is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	s := &Server{
		config: config,
		plans:  plans,
		logger: logger,
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	app.Use(recover.New())

	app.Get("/ping", s.handlePing)
	if config.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{})))
	}

	if config.Verifier != nil {
		mw := auth.Middleware(config.Verifier, logger)
		app.Use("/v1", mw)
		app.Use("/mcp", mw)
	}

	if config.MCP != nil {
		app.All("/mcp", adaptor.HTTPHandler(config.MCP.Handler()))
	}

	v1 := app.Group("/v1")
	v1.Post("/plan", s.handleCreatePlan)
	v1.Get("/plan/:id", s.handleGetPlan)
	v1.Patch("/plan/:id", s.handlePatchPlan)
	v1.Delete("/plan/:id", s.handleDeletePlan)
	v1.Get("/search", s.handleSearch)

	s.app = app
	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server", "listen", s.config.ListenAddr)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}
