package monitor

import (
	"encoding/json"
	"fmt"
	"time"
)

// ActivityEntry is one edge in the suspicious-activity log
type ActivityEntry struct {
	Type      Modality  `json:"type"`
	Direction string    `json:"direction"`
	Timestamp time.Time `json:"timestamp"`
}

// EventCounters counts neutral-to-direction transitions per direction
type EventCounters map[Direction]int

func newEventCounters(directions []Direction) EventCounters {
	c := make(EventCounters, len(directions))
	for _, d := range directions {
		c[d] = 0
	}
	return c
}

// Total returns the sum of all counts
func (c EventCounters) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// ByLabel returns the counts keyed by direction label
func (c EventCounters) ByLabel() map[string]int {
	out := make(map[string]int, len(c))
	for d, n := range c {
		out[d.String()] = n
	}
	return out
}

// MarshalJSON encodes the counters keyed by label
func (c EventCounters) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.ByLabel())
}

// UnmarshalJSON decodes counters keyed by label
func (c *EventCounters) UnmarshalJSON(data []byte) error {
	var byLabel map[string]int
	if err := json.Unmarshal(data, &byLabel); err != nil {
		return err
	}
	out := make(EventCounters, len(byLabel))
	for label, n := range byLabel {
		d, ok := ParseDirection(label)
		if !ok {
			return fmt.Errorf("unknown direction %q", label)
		}
		out[d] = n
	}
	*c = out
	return nil
}

func (c EventCounters) clone() EventCounters {
	out := make(EventCounters, len(c))
	for d, n := range c {
		out[d] = n
	}
	return out
}

// Metrics are the session-level integrity metrics. The activity log is the
// evidence trail consumed by the post-session report.
type Metrics struct {
	SessionID             string          `json:"session_id"`
	StartedAt             time.Time       `json:"started_at"`
	EndedAt               *time.Time      `json:"ended_at,omitempty"`
	MobileDetectionCount  int             `json:"mobile_detection_count"`
	HeadPoseEvents        EventCounters   `json:"head_pose_events"`
	EyeMovementEvents     EventCounters   `json:"eye_movement_events"`
	SuspiciousActivityLog []ActivityEntry `json:"suspicious_activity_log"`
}

// NewMetrics creates zeroed metrics with every direction present
func NewMetrics(sessionID string, startedAt time.Time) *Metrics {
	return &Metrics{
		SessionID:             sessionID,
		StartedAt:             startedAt,
		HeadPoseEvents:        newEventCounters(HeadDirections),
		EyeMovementEvents:     newEventCounters(GazeDirections),
		SuspiciousActivityLog: []ActivityEntry{},
	}
}

// Clone returns a deep copy
func (m *Metrics) Clone() Metrics {
	out := *m
	out.HeadPoseEvents = m.HeadPoseEvents.clone()
	out.EyeMovementEvents = m.EyeMovementEvents.clone()
	out.SuspiciousActivityLog = append([]ActivityEntry(nil), m.SuspiciousActivityLog...)
	if m.EndedAt != nil {
		ended := *m.EndedAt
		out.EndedAt = &ended
	}
	return out
}

// Snapshot returns a copy that shares the append-only log. The log is
// capped at its current length so later appends never alias it.
func (m *Metrics) Snapshot() Metrics {
	out := *m
	out.HeadPoseEvents = m.HeadPoseEvents.clone()
	out.EyeMovementEvents = m.EyeMovementEvents.clone()
	n := len(m.SuspiciousActivityLog)
	out.SuspiciousActivityLog = m.SuspiciousActivityLog[:n:n]
	return out
}

// Counts is the per-cycle view of the counters without the log
type Counts struct {
	MobileDetections int           `json:"mobile_detection_count"`
	HeadPose         EventCounters `json:"head_pose_events"`
	EyeMovement      EventCounters `json:"eye_movement_events"`
	LogLength        int           `json:"log_length"`
}

// Counts returns a copy of the counters
func (m *Metrics) Counts() Counts {
	return Counts{
		MobileDetections: m.MobileDetectionCount,
		HeadPose:         m.HeadPoseEvents.clone(),
		EyeMovement:      m.EyeMovementEvents.clone(),
		LogLength:        len(m.SuspiciousActivityLog),
	}
}

// EventAggregator is an edge detector over each modality. A state held for
// many cycles counts once.
type EventAggregator struct {
	metrics *Metrics

	prev       [2]Direction // Indexed by ModalityHeadPose, ModalityGaze
	prevDevice bool
}

// NewEventAggregator creates an aggregator writing into metrics
func NewEventAggregator(metrics *Metrics) *EventAggregator {
	return &EventAggregator{metrics: metrics}
}

// Observe records a directional modality's state. On a neutral to
// non-neutral transition it increments the counter and returns the logged
// entry.
func (a *EventAggregator) Observe(m Modality, d Direction, at time.Time) (ActivityEntry, bool) {
	var counters EventCounters
	switch m {
	case ModalityHeadPose:
		counters = a.metrics.HeadPoseEvents
	case ModalityGaze:
		counters = a.metrics.EyeMovementEvents
	default:
		return ActivityEntry{}, false
	}

	prev := a.prev[m]
	a.prev[m] = d
	if !prev.IsNeutral() || d.IsNeutral() {
		return ActivityEntry{}, false
	}

	counters[d]++
	return a.log(ActivityEntry{Type: m, Direction: d.Label(m), Timestamp: at}), true
}

// ObserveDevice records the boolean modality and counts false to true edges
func (a *EventAggregator) ObserveDevice(present bool, at time.Time) (ActivityEntry, bool) {
	prev := a.prevDevice
	a.prevDevice = present
	if prev || !present {
		return ActivityEntry{}, false
	}

	a.metrics.MobileDetectionCount++
	return a.log(ActivityEntry{Type: ModalityDevice, Direction: "detected", Timestamp: at}), true
}

func (a *EventAggregator) log(e ActivityEntry) ActivityEntry {
	a.metrics.SuspiciousActivityLog = append(a.metrics.SuspiciousActivityLog, e)
	return e
}
