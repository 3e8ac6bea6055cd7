package api

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/capsule/pkg/logger"
	"github.com/papercomputeco/capsule/pkg/storage"
)

// Server is the API server for querying stored conversations.
type Server struct {
	config Config
	driver storage.Driver
	logger *slog.Logger
	app    *fiber.App
}

// NewServer creates a new API server.
// The driver is injected so the server can share it with a running chat.
func NewServer(config Config, driver storage.Driver, log *slog.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		driver: driver,
		logger: log,
		app:    app,
	}

	app.Get("/ping", s.handlePing)
	app.Get("/dag/stats", s.handleDAGStats)
	app.Get("/dag/node/:hash", s.handleGetNode)
	app.Get("/dag/history", s.handleListHistories)
	app.Get("/dag/history/:hash", s.handleGetHistory)
	app.Get("/dag/branch/:hash", s.handleGetBranch)

	return s
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server", "listen", s.config.ListenAddr)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
