// Package api serves the operator and user HTTP endpoints.
package api

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"bank-transfer-reconciler/internal/reconciler"
	"bank-transfer-reconciler/internal/status"
	"bank-transfer-reconciler/internal/transition"
	"bank-transfer-reconciler/pkg/logger"
)

// DefaultMaxUploadBytes bounds uploaded documents.
const DefaultMaxUploadBytes = 20 << 20

// Config holds HTTP server settings
type Config struct {
	Addr           string        `mapstructure:"addr"`
	AdminToken     string        `mapstructure:"admin_token"`
	MaxUploadBytes int           `mapstructure:"max_upload_bytes"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

// DefaultConfig returns the default server settings
func DefaultConfig() *Config {
	return &Config{
		Addr:           ":8080",
		MaxUploadBytes: DefaultMaxUploadBytes,
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   60 * time.Second,
	}
}

// Dependencies are the services behind the endpoints
type Dependencies struct {
	Engine       *transition.Engine
	Orchestrator *reconciler.ReconciliationOrchestrator
	Status       *status.Service
	Logger       logger.Logger
}

// Server wires the endpoints onto a fiber app
type Server struct {
	app      *fiber.App
	config   *Config
	deps     Dependencies
	validate *validator.Validate
	logger   logger.Logger
}

// NewServer creates the server and registers its routes
func NewServer(config *Config, deps Dependencies) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = DefaultMaxUploadBytes
	}

	s := &Server{
		config:   config,
		deps:     deps,
		validate: validator.New(),
		logger:   logger.OrGlobal(deps.Logger).WithComponent("api"),
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "bank-transfer-reconciler",
		BodyLimit:             config.MaxUploadBytes + 1<<20,
		ReadTimeout:           config.ReadTimeout,
		WriteTimeout:          config.WriteTimeout,
		ErrorHandler:          s.handleError,
		DisableStartupMessage: true,
	})
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Use(recover.New(), requestid.New(), s.requestLogger)

	v1 := s.app.Group("/api/v1")
	v1.Get("/ping", s.GetPing)
	v1.Get("/users/:id/status", s.GetUserStatus)
	v1.Post("/receipts", s.PostReceipt)

	v1.Post("/reconcile/rows", s.requireAdmin, s.PostReconcileRows)
	v1.Post("/reconcile/document", s.requireAdmin, s.PostReconcileDocument)
	v1.Post("/payments/:id/confirm", s.requireAdmin, s.PostConfirmPayment)
	v1.Post("/billing-records", s.requireAdmin, s.PostBillingRecord)
	v1.Delete("/billing-records/:id", s.requireAdmin, s.DeleteBillingRecord)
}

// App exposes the fiber app, mainly for tests
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves until the listener fails or Shutdown is called
func (s *Server) Listen() error {
	s.logger.WithField("addr", s.config.Addr).Info("HTTP server listening")
	return s.app.Listen(s.config.Addr)
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	if err != nil {
		err = s.handleError(c, err)
	}
	s.logger.WithFields(logger.Fields{
		"method":     c.Method(),
		"path":       c.Path(),
		"status":     c.Response().StatusCode(),
		"duration":   time.Since(start).String(),
		"request_id": c.GetRespHeader(fiber.HeaderXRequestID),
	}).Debug("Request handled")
	return err
}

// requireAdmin checks the bearer token when one is configured
func (s *Server) requireAdmin(c *fiber.Ctx) error {
	if s.config.AdminToken == "" {
		return c.Next()
	}
	if c.Get(fiber.HeaderAuthorization) != "Bearer "+s.config.AdminToken {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "admin token required",
		})
	}
	return c.Next()
}
