package monitor

import (
	"time"
)

// State is the per-session monitoring state. It is owned by a single
// orchestrator goroutine; readers use the snapshots published on Verdict.
type State struct {
	ID        string
	StartedAt time.Time

	cfg     Config
	head    *HeadPoseClassifier
	device  *Debouncer
	events  *EventAggregator
	timers  *ViolationTimer
	metrics *Metrics

	gaze   Direction
	cycles uint64
}

// NewState creates the state for a session starting at startedAt
func NewState(id string, startedAt time.Time, cfg Config) *State {
	metrics := NewMetrics(id, startedAt)
	return &State{
		ID:        id,
		StartedAt: startedAt,
		cfg:       cfg,
		head:      NewHeadPoseClassifier(cfg, startedAt),
		device:    NewDebouncer(cfg.DebounceWindow),
		events:    NewEventAggregator(metrics),
		timers:    NewViolationTimer(cfg.ViolationThreshold),
		metrics:   metrics,
	}
}

// Metrics returns a deep copy of the session metrics
func (s *State) Metrics() Metrics {
	return s.metrics.Clone()
}

// Phase returns the head pose calibration phase
func (s *State) Phase() Phase {
	return s.head.Gate().Phase()
}

// Baseline returns the head pose baseline once captured
func (s *State) Baseline() (Angles, bool) {
	return s.head.Gate().Baseline()
}

// Cycles returns the number of completed cycles
func (s *State) Cycles() uint64 {
	return s.cycles
}

// Finalize stamps the end time and returns the final metrics
func (s *State) Finalize(at time.Time) Metrics {
	if s.metrics.EndedAt == nil {
		ended := at
		s.metrics.EndedAt = &ended
	}
	return s.metrics.Clone()
}
