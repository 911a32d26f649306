package monitor

import (
	"time"
)

// CaptureEvent asks the persistence collaborator for an evidence snapshot
type CaptureEvent struct {
	SessionID string      `json:"session_id"`
	Modality  Modality    `json:"modality"`
	Label     string      `json:"label"`
	At        time.Time   `json:"at"`
	Frame     FrameSample `json:"-"`
}

// ViolationTimer fires repeatedly while a modality stays non-neutral for
// longer than the threshold. Each fire restarts the run.
type ViolationTimer struct {
	threshold time.Duration

	runStart [3]time.Time
	running  [3]bool
}

// NewViolationTimer creates a timer with the given threshold
func NewViolationTimer(threshold time.Duration) *ViolationTimer {
	return &ViolationTimer{threshold: threshold}
}

// Tick advances one modality and reports whether it fires
func (t *ViolationTimer) Tick(m Modality, neutral bool, now time.Time) bool {
	if neutral {
		t.running[m] = false
		return false
	}

	if !t.running[m] {
		t.runStart[m] = now
		t.running[m] = true
		return false
	}

	if now.Sub(t.runStart[m]) >= t.threshold {
		t.running[m] = false
		return true
	}
	return false
}

// RunStart returns the current run start for a modality, if any
func (t *ViolationTimer) RunStart(m Modality) (time.Time, bool) {
	return t.runStart[m], t.running[m]
}
