// Package web serves the proctoring REST API, the dashboard verdict feed
// and the candidate frame ingest endpoint.
package web

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-proctor/internal/log"
	"github.com/teslashibe/go-proctor/pkg/camera"
	"github.com/teslashibe/go-proctor/pkg/hub"
	"github.com/teslashibe/go-proctor/pkg/ingest"
	"github.com/teslashibe/go-proctor/pkg/report"
	"github.com/teslashibe/go-proctor/pkg/session"
	"github.com/teslashibe/go-proctor/pkg/store"
)

// Deps are the components the server exposes. Store and Google are
// optional.
type Deps struct {
	Sessions    *session.Manager
	Hub         *hub.Hub
	Camera      *camera.Manager
	Store       *store.Store
	Google      *report.GoogleDocs
	ReportLimit int
	StaticDir   string // Dashboard assets, skipped when empty
}

// Server is the HTTP and WebSocket server
type Server struct {
	app    *fiber.App
	port   string
	deps   Deps
	ingest *ingest.Handler
	logger *slog.Logger
}

// NewServer creates the server and registers all routes
func NewServer(port string, deps Deps) *Server {
	if deps.ReportLimit < 1 {
		deps.ReportLimit = report.DefaultLimit
	}
	s := &Server{
		port:   port,
		deps:   deps,
		ingest: ingest.NewHandler(deps.Sessions),
		logger: log.With("component", "web"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Proctor",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	// CORS for local development
	app.Use(cors.New())

	if deps.StaticDir != "" {
		app.Static("/", deps.StaticDir)
	}

	// API routes
	api := app.Group("/api")
	api.Get("/health", s.handleHealth)

	sessions := api.Group("/sessions")
	sessions.Get("/", s.handleListSessions)
	sessions.Post("/", s.handleStartSession)
	sessions.Get("/:id", s.handleGetSession)
	sessions.Get("/:id/metrics", s.handleMetrics)
	sessions.Get("/:id/captures", s.handleCaptures)
	sessions.Get("/:id/report", s.handleReport)
	sessions.Post("/:id/report/export", s.handleExport)
	sessions.Post("/:id/stop", s.handleStopSession)

	api.Get("/history", s.handleHistory)
	api.Get("/camera", s.handleGetCamera)
	api.Put("/camera", s.handleUpdateCamera)
	api.Get("/ingest/stats", s.handleIngestStats)

	google := api.Group("/google")
	google.Get("/status", s.handleGoogleStatus)
	google.Get("/auth", s.handleGoogleAuth)
	google.Get("/callback", s.handleGoogleCallback)
	google.Post("/disconnect", s.handleGoogleDisconnect)

	// Dashboard feed
	app.Use("/ws/verdicts", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/verdicts", websocket.New(s.handleVerdictsWS))

	// Candidate frames
	s.ingest.RegisterRoutes(app)

	s.app = app
	return s
}

// App returns the underlying Fiber app
func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens until the server is shut down
func (s *Server) Start() error {
	s.logger.Info("listening", "addr", "http://localhost:"+s.port)
	return s.app.Listen(":" + s.port)
}

// StartAsync starts the server in a goroutine
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.logger.Error("web server stopped", "error", err)
		}
	}()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
