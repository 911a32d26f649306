// Package report turns a session's final metrics into the post-session
// integrity report and exports it to Google Docs.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/teslashibe/go-proctor/pkg/monitor"
)

// DefaultLimit is the number of log entries a summary lists
const DefaultLimit = 10

// Count is one labeled counter
type Count struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Summary is the capped, render-ready view of final metrics
type Summary struct {
	SessionID        string                  `json:"session_id"`
	StartedAt        time.Time               `json:"started_at"`
	EndedAt          *time.Time              `json:"ended_at,omitempty"`
	MobileDetections int                     `json:"mobile_detection_count"`
	HeadPose         []Count                 `json:"head_pose_events"`
	EyeMovement      []Count                 `json:"eye_movement_events"`
	Entries          []monitor.ActivityEntry `json:"entries"`
	Total            int                     `json:"total_events"`
	Overflow         int                     `json:"overflow"`
}

// Summarize caps the activity log to the first limit entries and counts
// the rest. A limit below 1 uses DefaultLimit.
func Summarize(m monitor.Metrics, limit int) Summary {
	if limit < 1 {
		limit = DefaultLimit
	}

	s := Summary{
		SessionID:        m.SessionID,
		StartedAt:        m.StartedAt,
		EndedAt:          m.EndedAt,
		MobileDetections: m.MobileDetectionCount,
		HeadPose:         counts(m.HeadPoseEvents, monitor.HeadDirections),
		EyeMovement:      counts(m.EyeMovementEvents, monitor.GazeDirections),
		Total:            len(m.SuspiciousActivityLog),
	}

	n := len(m.SuspiciousActivityLog)
	if n > limit {
		s.Overflow = n - limit
		n = limit
	}
	s.Entries = append([]monitor.ActivityEntry{}, m.SuspiciousActivityLog[:n]...)
	return s
}

func counts(c monitor.EventCounters, order []monitor.Direction) []Count {
	out := make([]Count, 0, len(order))
	for _, d := range order {
		out = append(out, Count{Label: d.String(), Count: c[d]})
	}
	return out
}

// Duration returns the session length, or zero while running
func (s Summary) Duration() time.Duration {
	if s.EndedAt == nil {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// Line renders one activity entry with its clock time in loc
func Line(e monitor.ActivityEntry, loc *time.Location) string {
	at := e.Timestamp.In(loc).Format("15:04:05")
	switch e.Type {
	case monitor.ModalityDevice:
		return "Mobile device detected at " + at
	case monitor.ModalityHeadPose:
		return fmt.Sprintf("Head %s at %s", e.Direction, at)
	case monitor.ModalityGaze:
		return fmt.Sprintf("Eyes %s at %s", e.Direction, at)
	}
	return fmt.Sprintf("%s %s at %s", e.Type, e.Direction, at)
}

// Text renders the summary in local time
func (s Summary) Text() string {
	return s.TextIn(time.Local)
}

// TextIn renders the summary with clock times in loc
func (s Summary) TextIn(loc *time.Location) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Mobile Phone Detections: %d\n\n", s.MobileDetections)

	b.WriteString("Head Position Events:\n")
	for _, c := range s.HeadPose {
		fmt.Fprintf(&b, "- %s: %d\n", c.Label, c.Count)
	}

	b.WriteString("\nEye Movement Events:\n")
	for _, c := range s.EyeMovement {
		fmt.Fprintf(&b, "- %s: %d\n", c.Label, c.Count)
	}

	b.WriteString("\nSuspicious Activity Log:\n")
	if len(s.Entries) == 0 {
		b.WriteString("No suspicious activity recorded.\n")
	}
	for i, e := range s.Entries {
		fmt.Fprintf(&b, "%d. %s\n", i+1, Line(e, loc))
	}
	if s.Overflow > 0 {
		fmt.Fprintf(&b, "... and %d more events\n", s.Overflow)
	}
	return b.String()
}
