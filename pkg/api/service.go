package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethpandaops/trendsync/pkg/tasks"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/sirupsen/logrus"
)

// Service defines the API service interface
type Service interface {
	Start(ctx context.Context) error
	Stop() error
}

type service struct {
	app          *fiber.App
	server       *http.Server
	config       *Config
	router       *tasks.Router
	defaultTable string
	log          logrus.FieldLogger
}

// NewService creates a new push endpoint service. Messages without a table target defaultTable.
func NewService(cfg *Config, router *tasks.Router, defaultTable string, log logrus.FieldLogger) Service {
	return &service{
		config:       cfg,
		router:       router,
		defaultTable: defaultTable,
		log:          log.WithField("service", "api"),
	}
}

// NewApp builds the Fiber app serving POST / and GET /healthz
func NewApp(cfg *Config, router *tasks.Router, defaultTable string, log logrus.FieldLogger) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
		AppName:      cfg.AppName,
	})

	setupMiddleware(app)

	h := &handler{
		router:       router,
		appName:      cfg.AppName,
		defaultTable: defaultTable,
		log:          log,
	}

	app.Post("/", h.push)
	app.Get("/healthz", h.health)

	return app
}

// Start initializes and starts the API server
func (s *service) Start(_ context.Context) error {
	if !s.config.Enabled {
		s.log.Info("API service is disabled")
		return nil
	}

	s.app = NewApp(s.config, s.router, s.defaultTable, s.log)

	s.server = &http.Server{
		Addr:              s.config.Addr,
		Handler:           adaptor.FiberApp(s.app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.log.WithField("addr", s.config.Addr).Info("Starting push endpoint")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("Server failed to start")
		}
	}()

	return nil
}

// Stop gracefully shuts down the API server
func (s *service) Stop() error {
	if s.server == nil {
		return nil
	}

	s.log.Info("Stopping push endpoint")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}
