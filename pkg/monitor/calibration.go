package monitor

import (
	"time"
)

// Phase is the head pose calibration state
type Phase int

const (
	// PhaseCalibrating is the initial phase; no directions are classified.
	PhaseCalibrating Phase = iota
	// PhaseTracking is terminal for the session.
	PhaseTracking
)

// String returns the phase name
func (p Phase) String() string {
	if p == PhaseTracking {
		return "tracking"
	}
	return "calibrating"
}

// MarshalJSON encodes the phase as its name
func (p Phase) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.String() + `"`), nil
}

// CalibrationGate captures a one-shot head pose baseline once the session
// has run for the configured delay. The baseline is immutable once set.
type CalibrationGate struct {
	delay     time.Duration
	startedAt time.Time

	baseline     Angles
	calibrated   bool
	calibratedAt time.Time
}

// NewCalibrationGate creates a gate for a session that started at startedAt
func NewCalibrationGate(startedAt time.Time, delay time.Duration) *CalibrationGate {
	return &CalibrationGate{
		delay:     delay,
		startedAt: startedAt,
	}
}

// Observe offers the smoothed angles of a frame with a detected face.
// Returns true only on the frame that captures the baseline.
func (g *CalibrationGate) Observe(smoothed Angles, at time.Time) bool {
	if g.calibrated {
		return false
	}
	if at.Sub(g.startedAt) < g.delay {
		return false
	}

	g.baseline = smoothed
	g.calibrated = true
	g.calibratedAt = at
	return true
}

// Baseline returns the captured baseline and whether it is set
func (g *CalibrationGate) Baseline() (Angles, bool) {
	return g.baseline, g.calibrated
}

// CalibratedAt returns when the baseline was captured, zero if pending
func (g *CalibrationGate) CalibratedAt() time.Time {
	return g.calibratedAt
}

// Phase returns the current calibration phase
func (g *CalibrationGate) Phase() Phase {
	if g.calibrated {
		return PhaseTracking
	}
	return PhaseCalibrating
}
