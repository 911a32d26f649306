// Package session runs monitored interview sessions: each owns a frame
// source, a monitoring state and an orchestrator, and routes verdicts,
// activity and captures to the dashboard hub, the store and the evidence
// writer.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-proctor/internal/log"
	"github.com/teslashibe/go-proctor/internal/timeutil"
	"github.com/teslashibe/go-proctor/pkg/camera"
	"github.com/teslashibe/go-proctor/pkg/evidence"
	"github.com/teslashibe/go-proctor/pkg/hub"
	"github.com/teslashibe/go-proctor/pkg/ingest"
	"github.com/teslashibe/go-proctor/pkg/monitor"
	"github.com/teslashibe/go-proctor/pkg/protocol"
	"github.com/teslashibe/go-proctor/pkg/store"
	"github.com/teslashibe/go-proctor/pkg/video"
)

// DetectorFactory builds a session's detectors and returns a release
// function. Missing detectors are left nil.
type DetectorFactory func() (monitor.Detectors, func())

// FrameSource is a started frame producer owned by a session
type FrameSource interface {
	Close() error
}

// SourceOpener starts a producer for a session writing into frames
type SourceOpener func(ctx context.Context, opts Options, frames *camera.Latest) (FrameSource, error)

// Deps are the collaborators a Manager routes to. Only Monitor and
// Detectors are required.
type Deps struct {
	Monitor   monitor.Config
	Camera    *camera.Manager
	Detectors DetectorFactory
	Store     *store.Store
	Hub       *hub.Hub
	Evidence  *evidence.Writer
	Clock     timeutil.Clock
	Logger    *slog.Logger

	// Openers overrides the producer for a source
	Openers map[Source]SourceOpener
}

// Manager owns all sessions of the process
type Manager struct {
	deps   Deps
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager
func NewManager(deps Deps) *Manager {
	if deps.Clock == nil {
		deps.Clock = timeutil.RealClock{}
	}
	if deps.Logger == nil {
		deps.Logger = log.L()
	}
	if deps.Camera == nil {
		deps.Camera = camera.NewManager(camera.DefaultConfig())
	}
	if deps.Detectors == nil {
		deps.Detectors = func() (monitor.Detectors, func()) { return monitor.Detectors{}, func() {} }
	}

	openers := map[Source]SourceOpener{
		SourceCamera: openCamera(deps.Camera),
		SourceIngest: openIngest,
		SourceWebRTC: openWebRTC,
	}
	for src, o := range deps.Openers {
		openers[src] = o
	}
	deps.Openers = openers

	m := &Manager{
		deps:     deps,
		logger:   deps.Logger.With("component", "session"),
		sessions: make(map[string]*Session),
	}
	if deps.Evidence != nil {
		deps.Evidence.OnSaved(m.onSaved)
	}
	return m
}

// Start creates and starts a session
func (m *Manager) Start(ctx context.Context, opts Options) (*Session, error) {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Source == "" {
		opts.Source = SourceIngest
	}
	opener, ok := m.deps.Openers[opts.Source]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, opts.Source)
	}

	m.mu.Lock()
	if _, exists := m.sessions[opts.ID]; exists {
		m.mu.Unlock()
		return nil, ErrExists
	}
	// Reserve the ID while the source starts
	m.sessions[opts.ID] = nil
	m.mu.Unlock()

	s, err := m.start(ctx, opts, opener)

	m.mu.Lock()
	if err != nil {
		delete(m.sessions, opts.ID)
	} else {
		m.sessions[opts.ID] = s
	}
	m.mu.Unlock()
	return s, err
}

func (m *Manager) start(ctx context.Context, opts Options, opener SourceOpener) (*Session, error) {
	logger := m.logger.With("session_id", opts.ID)
	s := &Session{
		id:         opts.ID,
		source:     opts.Source,
		monitoring: opts.Monitoring,
		startedAt:  m.deps.Clock.Now(),
		frames:     camera.NewLatest(),
		status:     StatusRunning,
		done:       make(chan struct{}),
		finished:   make(chan struct{}),
	}

	if m.deps.Store != nil {
		err := m.deps.Store.CreateSession(ctx, store.Session{
			ID:         s.id,
			StartedAt:  s.startedAt,
			Monitoring: s.monitoring,
			Source:     string(s.source),
		})
		if err != nil {
			return nil, err
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	src, err := opener(runCtx, opts, s.frames)
	if err != nil {
		cancel()
		if m.deps.Store != nil {
			if ferr := m.deps.Store.FinalizeSession(context.Background(), s.id, m.deps.Clock.Now(), s.Metrics()); ferr != nil {
				logger.Error("failed session not finalized", "error", ferr)
			}
		}
		return nil, fmt.Errorf("start %s source: %w", opts.Source, err)
	}
	if src != nil {
		s.closers = append(s.closers, func() {
			if err := src.Close(); err != nil {
				logger.Debug("source close", "error", err)
			}
		})
	}

	if !s.monitoring {
		close(s.done)
		logger.Info("session started without monitoring", "source", s.source)
		m.broadcastSession(s)
		return s, nil
	}

	detectors, release := m.deps.Detectors()
	s.closers = append(s.closers, release)
	s.state = monitor.NewState(s.id, s.startedAt, m.deps.Monitor)
	s.orch = monitor.NewOrchestrator(m.deps.Monitor, s.state, detectors)
	s.orch.SetLogger(log.With("component", "monitor", "session_id", s.id))

	go func() {
		defer close(s.done)
		err := s.orch.Run(runCtx, s.frames, func(v monitor.Verdict) { m.route(s, v) })
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("monitoring loop ended", "error", err)
		}
	}()

	logger.Info("session started", "source", s.source)
	m.broadcastSession(s)
	return s, nil
}

// route fans a verdict out to readers, the hub, the store and the
// evidence writer. It runs on the orchestrator goroutine.
func (m *Manager) route(s *Session, v monitor.Verdict) {
	s.publish(v)

	if m.deps.Hub != nil {
		if msg, err := protocol.NewVerdictMessage(v); err == nil {
			m.broadcast(s.id, msg)
		}
	}

	if m.deps.Store != nil && len(v.Activity) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		for _, e := range v.Activity {
			if err := m.deps.Store.AppendActivity(ctx, s.id, e); err != nil {
				m.logger.Warn("activity not stored", "session_id", s.id, "error", err)
			}
		}
		cancel()
	}

	if m.deps.Evidence != nil {
		for _, c := range v.Captures {
			if err := m.deps.Evidence.Submit(c); err != nil {
				m.logger.Warn("capture not queued", "session_id", s.id, "label", c.Label, "error", err)
			}
		}
	}
}

// onSaved records a written capture and notifies dashboards
func (m *Manager) onSaved(saved evidence.Saved) {
	if saved.Err != nil {
		return
	}
	ev := saved.Event
	if m.deps.Store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, err := m.deps.Store.RecordCapture(ctx, store.Capture{
			SessionID: ev.SessionID,
			Type:      ev.Modality.String(),
			Label:     ev.Label,
			File:      saved.Path,
			At:        ev.At,
		})
		cancel()
		if err != nil {
			m.logger.Warn("capture not stored", "session_id", ev.SessionID, "error", err)
		}
	}
	if m.deps.Hub != nil {
		msg, err := protocol.NewCaptureMessage(protocol.CaptureData{
			SessionID: ev.SessionID,
			Type:      ev.Modality.String(),
			Label:     ev.Label,
			File:      saved.File,
			At:        ev.At.UnixMilli(),
		})
		if err == nil {
			m.broadcast(ev.SessionID, msg)
		}
	}
}

func (m *Manager) broadcastSession(s *Session) {
	if m.deps.Hub == nil {
		return
	}
	info := s.Info()
	msg, err := protocol.NewSessionMessage(protocol.SessionData{
		SessionID:  info.ID,
		Status:     string(info.Status),
		Monitoring: info.Monitoring,
		Phase:      info.Phase,
	})
	if err == nil {
		m.broadcast(s.id, msg)
	}
}

func (m *Manager) broadcast(topic string, msg *protocol.Message) {
	data, err := msg.Bytes()
	if err != nil {
		return
	}
	m.deps.Hub.Broadcast(hub.NewJSONMessage(topic, data))
}

// Get returns a session by ID
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.sessions[id]
	if s == nil {
		return nil, ErrNotFound
	}
	return s, nil
}

// List returns every session, oldest first
func (m *Manager) List() []Info {
	m.mu.RLock()
	infos := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		if s != nil {
			infos = append(infos, s.Info())
		}
	}
	m.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].StartedAt.Equal(infos[j].StartedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].StartedAt.Before(infos[j].StartedAt)
	})
	return infos
}

// Sink resolves an ingest session's frame buffer
func (m *Manager) Sink(id string) (ingest.Sink, bool) {
	s, err := m.Get(id)
	if err != nil || s.source != SourceIngest || s.Status() != StatusRunning {
		return nil, false
	}
	return s.frames, true
}

// Stop ends a session and returns its final metrics. If ctx ends before
// the monitoring loop exits, teardown still completes in the background
// and a later Stop waits for it and returns the final metrics.
func (m *Manager) Stop(ctx context.Context, id string) (monitor.Metrics, error) {
	s, err := m.Get(id)
	if err != nil {
		return monitor.Metrics{}, err
	}

	s.mu.Lock()
	if s.final != nil {
		s.mu.Unlock()
		return monitor.Metrics{}, ErrAlreadyStopped
	}
	s.status = StatusStopped
	s.mu.Unlock()

	s.stopOnce.Do(func() {
		s.cancel()
		go func() {
			<-s.done
			m.teardown(s)
			close(s.finished)
		}()
	})

	select {
	case <-s.finished:
	case <-ctx.Done():
		m.logger.Warn("session stop still pending", "session_id", s.id, "error", ctx.Err())
		return monitor.Metrics{}, ctx.Err()
	}
	return s.Metrics(), nil
}

// teardown releases a session's resources and records its final metrics.
// It runs once, after the monitoring loop has exited.
func (m *Manager) teardown(s *Session) {
	for _, closeFn := range s.closers {
		closeFn()
	}
	if s.orch != nil {
		s.orch.Close()
	}

	ended := m.deps.Clock.Now()
	var final monitor.Metrics
	if s.state != nil {
		final = s.state.Finalize(ended)
	} else {
		final = *monitor.NewMetrics(s.id, s.startedAt)
		final.EndedAt = &ended
	}

	s.mu.Lock()
	s.endedAt = &ended
	s.final = &final
	s.mu.Unlock()

	if m.deps.Store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.deps.Store.FinalizeSession(ctx, s.id, ended, final); err != nil {
			m.logger.Error("final metrics not stored", "session_id", s.id, "error", err)
		}
		cancel()
	}

	m.logger.Info("session stopped",
		"session_id", s.id,
		"mobile_detections", final.MobileDetectionCount,
		"head_pose_events", final.HeadPoseEvents.Total(),
		"eye_movement_events", final.EyeMovementEvents.Total(),
		"log_entries", len(final.SuspiciousActivityLog))
	m.broadcastSession(s)
}

// Shutdown stops every session that has not finished stopping
func (m *Manager) Shutdown(ctx context.Context) error {
	var errs []error
	for _, info := range m.List() {
		if info.EndedAt != nil {
			continue
		}
		if _, err := m.Stop(ctx, info.ID); err != nil && !errors.Is(err, ErrAlreadyStopped) {
			errs = append(errs, fmt.Errorf("stop %s: %w", info.ID, err))
		}
	}
	return errors.Join(errs...)
}

func openCamera(cm *camera.Manager) SourceOpener {
	return func(ctx context.Context, _ Options, frames *camera.Latest) (FrameSource, error) {
		c := camera.NewCapture(cm.GetConfig(), frames)
		if err := c.Start(ctx); err != nil {
			// The placeholder frame keeps the session alive
			log.Warn("camera unavailable, using placeholder", "error", err)
			return nil, nil
		}
		return captureCloser{c}, nil
	}
}

type captureCloser struct{ c *camera.Capture }

func (c captureCloser) Close() error {
	c.c.Stop()
	return nil
}

func openIngest(context.Context, Options, *camera.Latest) (FrameSource, error) {
	return nil, nil
}

func openWebRTC(ctx context.Context, opts Options, frames *camera.Latest) (FrameSource, error) {
	if opts.SignallingURL == "" || opts.Producer == "" {
		return nil, fmt.Errorf("webrtc source needs a signalling URL and producer name")
	}
	src := video.NewSource(opts.SignallingURL, opts.Producer, frames)
	if err := src.Connect(ctx); err != nil {
		src.Close()
		return nil, err
	}
	return src, nil
}
