package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-companion/pkg/hub"
	"github.com/teslashibe/go-companion/pkg/session"
)

// MessageRequest is the body of POST /api/messages.
type MessageRequest struct {
	Text string `json:"text"`
}

// LanguageRequest is the body of PUT /api/language.
type LanguageRequest struct {
	Language string `json:"language"`
}

// QuickAction describes one canned prompt.
type QuickAction struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// MetricsResponse is the body of GET /api/metrics.
type MetricsResponse struct {
	Last    session.TurnMetrics `json:"last"`
	Average session.TurnMetrics `json:"average"`
	Turns   int                 `json:"turns"`
}

// ToggleResponse reports the new value of a toggle.
type ToggleResponse struct {
	Enabled bool `json:"enabled"`
}

// fail maps session errors to HTTP statuses.
func fail(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrEmptyMessage), errors.Is(err, session.ErrInvalidLanguage):
		code = fiber.StatusBadRequest
	case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrRetryRequired):
		code = fiber.StatusConflict
	case errors.Is(err, session.ErrNoRecognizer), errors.Is(err, session.ErrClosed):
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

// status replies with the current snapshot, or the error.
func (s *Server) status(c *fiber.Ctx, err error) error {
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(s.ctrl.Status())
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.ctrl.Status())
}

func (s *Server) handleMessages(c *fiber.Ctx) error {
	return c.JSON(s.ctrl.Messages())
}

func (s *Server) handleMetrics(c *fiber.Ctx) error {
	last, avg, turns := s.ctrl.Metrics()
	return c.JSON(MetricsResponse{Last: last, Average: avg, Turns: turns})
}

func (s *Server) handleSendMessage(c *fiber.Ctx) error {
	var req MessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	return s.status(c, s.ctrl.SendTypedMessage(req.Text))
}

func (s *Server) handleListQuick(c *fiber.Ctx) error {
	actions := make([]QuickAction, 0, len(s.quick))
	for _, name := range s.quickNames() {
		actions = append(actions, QuickAction{Name: name, Text: s.quick[name]})
	}
	return c.JSON(actions)
}

func (s *Server) handleQuick(c *fiber.Ctx) error {
	name := c.Params("name")
	text, ok := s.quick[name]
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown quick action: " + name})
	}
	s.logger.Info("quick action", "name", name)
	return s.status(c, s.ctrl.SendTypedMessage(text))
}

func (s *Server) handleStartListening(c *fiber.Ctx) error {
	return s.status(c, s.ctrl.StartListening())
}

func (s *Server) handleStopListening(c *fiber.Ctx) error {
	return s.status(c, s.ctrl.StopListening())
}

func (s *Server) handleToggleAutoListen(c *fiber.Ctx) error {
	on, err := s.ctrl.ToggleAutoListen()
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(ToggleResponse{Enabled: on})
}

func (s *Server) handleToggleVoiceOutput(c *fiber.Ctx) error {
	on, err := s.ctrl.ToggleVoiceOutput()
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(ToggleResponse{Enabled: on})
}

func (s *Server) handleSetLanguage(c *fiber.Ctx) error {
	var req LanguageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	return s.status(c, s.ctrl.SetLanguage(req.Language))
}

func (s *Server) handleCancelSpeaking(c *fiber.Ctx) error {
	return s.status(c, s.ctrl.CancelSpeaking())
}

func (s *Server) handleRetry(c *fiber.Ctx) error {
	return s.status(c, s.ctrl.Retry())
}

// handleStatusWS streams status and message events. The current status is
// sent first.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	hello, err := hub.EncodeEvent("status", s.ctrl.Status())
	if err != nil {
		s.logger.Warn("failed to encode status", "error", err)
		return
	}
	hub.NewClient(s.hub, c, hello).Run()
}
