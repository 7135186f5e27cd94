// Package web serves the conversation over HTTP and a status websocket.
package web

import (
	"context"
	"log/slog"
	"sort"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-companion/pkg/hub"
	"github.com/teslashibe/go-companion/pkg/session"
	"github.com/teslashibe/go-companion/pkg/voice"
)

// Controller is the session surface the server drives.
// *session.Orchestrator satisfies it.
type Controller interface {
	Status() session.Status
	Messages() []voice.Message
	Metrics() (last session.TurnMetrics, average session.TurnMetrics, turns int)
	Subscribe(fn session.Observer) func()

	StartListening() error
	StopListening() error
	SendTypedMessage(text string) error
	ToggleAutoListen() (bool, error)
	ToggleVoiceOutput() (bool, error)
	SetLanguage(tag string) error
	CancelSpeaking() error
	Retry() error
}

var _ Controller = (*session.Orchestrator)(nil)

// DefaultQuickActions are the canned prompts behind POST /api/quick/:name.
var DefaultQuickActions = map[string]string{
	"breathe": "Can you guide me through a slow breathing exercise?",
	"ground":  "I feel overwhelmed. Can you help me ground myself?",
	"sleep":   "I'm having trouble falling asleep.",
	"checkin": "Can we do a quick check-in on how I'm feeling?",
}

// Server is the HTTP front-end.
type Server struct {
	app    *fiber.App
	addr   string
	static string
	ctrl   Controller
	hub    *hub.Hub
	quick  map[string]string
	logger *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithAddr sets the listen address. Default: ":8080".
func WithAddr(addr string) Option {
	return func(s *Server) {
		if addr != "" {
			s.addr = addr
		}
	}
}

// WithStaticDir serves a front-end from dir at /.
func WithStaticDir(dir string) Option {
	return func(s *Server) { s.static = dir }
}

// WithQuickActions replaces the quick action table.
func WithQuickActions(actions map[string]string) Option {
	return func(s *Server) { s.quick = actions }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a server for ctrl.
func NewServer(ctrl Controller, opts ...Option) *Server {
	s := &Server{
		addr:   ":8080",
		ctrl:   ctrl,
		quick:  DefaultQuickActions,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "web.server")
	s.hub = hub.New("status", hub.WithLogger(s.logger))

	app := fiber.New(fiber.Config{
		AppName:               "Companion",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	if s.static != "" {
		app.Static("/", s.static)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/messages", s.handleMessages)
	api.Post("/messages", s.handleSendMessage)
	api.Get("/metrics", s.handleMetrics)
	api.Get("/quick", s.handleListQuick)
	api.Post("/quick/:name", s.handleQuick)
	api.Post("/listen/start", s.handleStartListening)
	api.Post("/listen/stop", s.handleStopListening)
	api.Post("/auto-listen/toggle", s.handleToggleAutoListen)
	api.Post("/voice-output/toggle", s.handleToggleVoiceOutput)
	api.Put("/language", s.handleSetLanguage)
	api.Post("/speaking/cancel", s.handleCancelSpeaking)
	api.Post("/retry", s.handleRetry)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start runs the hub, forwards session updates to websocket clients and
// serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)

	unsubscribe := s.ctrl.Subscribe(s.forward)
	defer unsubscribe()

	go func() {
		<-ctx.Done()
		if err := s.app.Shutdown(); err != nil {
			s.logger.Warn("shutdown failed", "error", err)
		}
	}()

	s.logger.Info("serving", "addr", s.addr)
	return s.app.Listen(s.addr)
}

func (s *Server) forward(u session.Update) {
	var err error
	switch {
	case u.Status != nil:
		err = s.hub.BroadcastEvent("status", u.Status)
	case u.Message != nil:
		err = s.hub.BroadcastEvent("message", u.Message)
	}
	if err != nil {
		s.logger.Warn("failed to encode update", "error", err)
	}
}

func (s *Server) quickNames() []string {
	names := make([]string, 0, len(s.quick))
	for name := range s.quick {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
