// Package server exposes the execution tracker over HTTP.
package server

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/sicko7947/flowstate/tracker"
)

// Server serves the tracker API
type Server struct {
	manager  *tracker.Manager
	validate *validator.Validate
	logger   zerolog.Logger
	app      *fiber.App
}

// New creates a server for manager and registers every route
func New(manager *tracker.Manager, logger zerolog.Logger) *Server {
	s := &Server{
		manager:  manager,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}

	app := fiber.New()
	app.Use(recover.New())
	app.Use(s.requestLogger)
	s.registerRoutes(app)
	s.app = app

	return s
}

// App returns the underlying fiber application
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves HTTP on addr until Shutdown is called
func (s *Server) Listen(addr string) error {
	s.logger.Info().Str("address", addr).Msg("Starting HTTP server")
	return s.app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerRoutes(app *fiber.App) {
	app.Get("/health", s.handleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API v1 routes
	v1 := app.Group("/api/v1")

	executions := v1.Group("/executions")
	executions.Post("/", s.handleCreateExecution)
	executions.Get("/active", s.handleGetActive)
	executions.Get("/:id", s.handleGetExecution)
	executions.Put("/:id/state", s.handleUpdateState)
	executions.Put("/:id/vertices/:vertexId", s.handleUpdateVertex)
	executions.Put("/:id/output", s.handleSetOutput)
	executions.Put("/:id/error", s.handleSetError)
	executions.Post("/:id/cancel", s.handleCancel)

	workflows := v1.Group("/workflows")
	workflows.Get("/:workflowId/executions", s.handleGetWorkflowExecutions)
}

func (s *Server) requestLogger(c fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	s.logger.Debug().
		Str("method", c.Method()).
		Str("path", c.Path()).
		Int("status", c.Response().StatusCode()).
		Dur("latency", time.Since(start)).
		Msg("Request handled")

	return err
}
