package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-proctor/pkg/camera"
	"github.com/teslashibe/go-proctor/pkg/monitor"
	"github.com/teslashibe/go-proctor/pkg/report"
)

// Source selects where a session's frames come from
type Source string

const (
	SourceCamera Source = "camera" // Local webcam on the server host
	SourceIngest Source = "ingest" // Browser pushes JPEG frames over WebSocket
	SourceWebRTC Source = "webrtc" // Remote webrtcsink producer
)

// Status is a session's lifecycle state
type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
)

// Options configures a new session
type Options struct {
	ID            string // Generated when empty
	Monitoring    bool   // False records a session without running detectors
	Source        Source
	SignallingURL string // SourceWebRTC only
	Producer      string // SourceWebRTC only
}

// Info is a read-only description of a session
type Info struct {
	ID         string     `json:"id"`
	Status     Status     `json:"status"`
	Source     Source     `json:"source"`
	Monitoring bool       `json:"monitoring"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	Phase      string     `json:"phase"`
	Cycles     uint64     `json:"cycles"`
	Frames     uint64     `json:"frames"`
}

// Session is one monitored interview. Its monitoring state is owned by the
// orchestrator goroutine; readers see published snapshots.
type Session struct {
	id         string
	source     Source
	monitoring bool
	startedAt  time.Time

	frames *camera.Latest
	orch   *monitor.Orchestrator
	state  *monitor.State

	cancel   context.CancelFunc
	done     chan struct{} // Closed when the monitoring loop exits
	finished chan struct{} // Closed once teardown has finalized the session
	stopOnce sync.Once
	closers  []func()

	metrics atomic.Pointer[monitor.Metrics]
	verdict atomic.Pointer[monitor.Verdict]
	cycles  atomic.Uint64

	mu      sync.Mutex
	status  Status
	endedAt *time.Time
	final   *monitor.Metrics
}

// ID returns the session ID
func (s *Session) ID() string {
	return s.id
}

// Frames returns the session's latest-frame buffer
func (s *Session) Frames() *camera.Latest {
	return s.frames
}

// Status returns the lifecycle state
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Info describes the session
func (s *Session) Info() Info {
	s.mu.Lock()
	status, ended := s.status, s.endedAt
	s.mu.Unlock()

	info := Info{
		ID:         s.id,
		Status:     status,
		Source:     s.source,
		Monitoring: s.monitoring,
		StartedAt:  s.startedAt,
		EndedAt:    ended,
		Cycles:     s.cycles.Load(),
		Frames:     s.frames.Stats().Published,
	}
	if v := s.verdict.Load(); v != nil {
		info.Phase = v.Head.Phase.String()
	} else if s.monitoring {
		info.Phase = monitor.PhaseCalibrating.String()
	}
	return info
}

// Metrics returns the final metrics once stopped, otherwise the snapshot
// published after the latest cycle
func (s *Session) Metrics() monitor.Metrics {
	s.mu.Lock()
	final := s.final
	s.mu.Unlock()
	if final != nil {
		return final.Clone()
	}
	if m := s.metrics.Load(); m != nil {
		return m.Clone()
	}
	return monitor.NewMetrics(s.id, s.startedAt).Clone()
}

// LastVerdict returns the most recent verdict, if any
func (s *Session) LastVerdict() (monitor.Verdict, bool) {
	v := s.verdict.Load()
	if v == nil {
		return monitor.Verdict{}, false
	}
	return *v, true
}

// Summary returns the capped report summary of the current metrics
func (s *Session) Summary(limit int) report.Summary {
	return report.Summarize(s.Metrics(), limit)
}

// publish records a verdict's snapshots for readers
func (s *Session) publish(v monitor.Verdict) {
	metrics := v.Metrics
	s.metrics.Store(&metrics)
	s.verdict.Store(&v)
	s.cycles.Add(1)
}
