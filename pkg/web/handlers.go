package web

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-proctor/pkg/hub"
	"github.com/teslashibe/go-proctor/pkg/monitor"
	"github.com/teslashibe/go-proctor/pkg/report"
	"github.com/teslashibe/go-proctor/pkg/session"
	"github.com/teslashibe/go-proctor/pkg/store"
)

// StartSessionRequest is the request body for starting a session
type StartSessionRequest struct {
	ID            string `json:"id"`
	Monitoring    *bool  `json:"monitoring"` // Default true
	Source        string `json:"source"`     // camera, ingest, webrtc
	SignallingURL string `json:"signalling_url"`
	Producer      string `json:"producer"`
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, session.ErrExists), errors.Is(err, session.ErrAlreadyStopped):
		return fiber.StatusConflict
	case errors.Is(err, session.ErrUnknownSource):
		return fiber.StatusBadRequest
	case errors.Is(err, report.ErrNotAuthenticated):
		return fiber.StatusUnauthorized
	}
	return fiber.StatusInternalServerError
}

func fail(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":           "ok",
		"sessions":         len(s.deps.Sessions.List()),
		"dashboards":       s.deps.Hub.ClientCount(),
		"candidates":       s.ingest.ClientCount(),
		"google_connected": s.deps.Google != nil && s.deps.Google.IsAuthenticated(),
	})
}

func (s *Server) handleListSessions(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"sessions": s.deps.Sessions.List()})
}

func (s *Server) handleStartSession(c *fiber.Ctx) error {
	var req StartSessionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
	}

	opts := session.Options{
		ID:            req.ID,
		Monitoring:    req.Monitoring == nil || *req.Monitoring,
		Source:        session.Source(req.Source),
		SignallingURL: req.SignallingURL,
		Producer:      req.Producer,
	}
	sess, err := s.deps.Sessions.Start(c.UserContext(), opts)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(sess.Info())
}

func (s *Server) handleGetSession(c *fiber.Ctx) error {
	id := c.Params("id")
	sess, err := s.deps.Sessions.Get(id)
	if err == nil {
		return c.JSON(sess.Info())
	}
	if s.deps.Store == nil {
		return fail(c, err)
	}
	stored, err := s.deps.Store.GetSession(c.UserContext(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(stored)
}

// metrics returns live or final metrics, falling back to the store for
// sessions from earlier runs
func (s *Server) metrics(ctx context.Context, id string) (monitor.Metrics, error) {
	sess, err := s.deps.Sessions.Get(id)
	if err == nil {
		return sess.Metrics(), nil
	}
	if s.deps.Store == nil {
		return monitor.Metrics{}, err
	}
	stored, err := s.deps.Store.GetSession(ctx, id)
	if err != nil {
		return monitor.Metrics{}, err
	}
	if stored.Final != nil {
		return *stored.Final, nil
	}
	// Interrupted session: rebuild what the store has
	m := monitor.NewMetrics(id, stored.StartedAt)
	entries, err := s.deps.Store.ListActivity(ctx, id)
	if err != nil {
		return monitor.Metrics{}, err
	}
	for _, e := range entries {
		switch e.Type {
		case monitor.ModalityDevice:
			m.MobileDetectionCount++
		case monitor.ModalityHeadPose:
			if d, ok := monitor.ParseDirection(e.Direction); ok {
				m.HeadPoseEvents[d]++
			}
		case monitor.ModalityGaze:
			if d, ok := monitor.ParseDirection(e.Direction); ok {
				m.EyeMovementEvents[d]++
			}
		}
	}
	m.SuspiciousActivityLog = entries
	return m.Clone(), nil
}

func (s *Server) handleMetrics(c *fiber.Ctx) error {
	m, err := s.metrics(c.UserContext(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(m)
}

func (s *Server) handleCaptures(c *fiber.Ctx) error {
	if s.deps.Store == nil {
		return c.JSON(fiber.Map{"captures": []store.Capture{}})
	}
	captures, err := s.deps.Store.ListCaptures(c.UserContext(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"captures": captures})
}

func (s *Server) handleReport(c *fiber.Ctx) error {
	m, err := s.metrics(c.UserContext(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	summary := report.Summarize(m, c.QueryInt("limit", s.deps.ReportLimit))
	return c.JSON(fiber.Map{
		"summary": summary,
		"text":    summary.Text(),
	})
}

func (s *Server) handleExport(c *fiber.Ctx) error {
	if s.deps.Google == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Google Docs export not configured"})
	}
	id := c.Params("id")
	m, err := s.metrics(c.UserContext(), id)
	if err != nil {
		return fail(c, err)
	}

	title := "Interview integrity report " + m.StartedAt.Local().Format("2006-01-02 15:04") + " (" + id + ")"
	docID, err := s.deps.Google.Export(c.UserContext(), title, report.Summarize(m, s.deps.ReportLimit))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"doc_id": docID, "url": report.DocURL(docID)})
}

func (s *Server) handleStopSession(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 10*time.Second)
	defer cancel()

	final, err := s.deps.Sessions.Stop(ctx, c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(final)
}

func (s *Server) handleHistory(c *fiber.Ctx) error {
	if s.deps.Store == nil {
		return c.JSON(fiber.Map{"sessions": []store.Session{}})
	}
	sessions, err := s.deps.Store.ListSessions(c.UserContext())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"sessions": sessions})
}

func (s *Server) handleGetCamera(c *fiber.Ctx) error {
	return c.JSON(s.deps.Camera.GetConfig())
}

func (s *Server) handleUpdateCamera(c *fiber.Ctx) error {
	var params map[string]interface{}
	if err := c.BodyParser(&params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := s.deps.Camera.UpdateConfig(params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(s.deps.Camera.GetConfig())
}

func (s *Server) handleIngestStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"stats":   s.ingest.GetStats(),
		"clients": s.ingest.Clients(c.Query("session")),
	})
}

func (s *Server) handleGoogleStatus(c *fiber.Ctx) error {
	if s.deps.Google == nil {
		return c.JSON(report.GoogleStatus{})
	}
	return c.JSON(s.deps.Google.Status())
}

func (s *Server) handleGoogleAuth(c *fiber.Ctx) error {
	if s.deps.Google == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Google Docs export not configured"})
	}
	return c.Redirect(s.deps.Google.AuthURL(), fiber.StatusTemporaryRedirect)
}

func (s *Server) handleGoogleCallback(c *fiber.Ctx) error {
	if s.deps.Google == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Google Docs export not configured"})
	}
	if err := s.deps.Google.HandleCallback(c.UserContext(), c.Query("state"), c.Query("code")); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	c.Type("html")
	return c.SendString(`<!DOCTYPE html><html><body><p>Google Docs connected. You can close this window.</p>` +
		`<script>setTimeout(function() { window.close(); }, 3000);</script></body></html>`)
}

func (s *Server) handleGoogleDisconnect(c *fiber.Ctx) error {
	if s.deps.Google == nil {
		return c.JSON(report.GoogleStatus{})
	}
	if err := s.deps.Google.Disconnect(); err != nil {
		return fail(c, err)
	}
	return c.JSON(s.deps.Google.Status())
}

// handleVerdictsWS streams hub messages to a dashboard. ?session=<id>
// limits the feed to one session.
func (s *Server) handleVerdictsWS(c *websocket.Conn) {
	client := hub.NewClient(s.deps.Hub, c, c.Query("session"))
	client.Run()
}
