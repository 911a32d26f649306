package report

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-proctor/pkg/monitor"
)

var start = time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)

func metricsWithEvents(n int) monitor.Metrics {
	m := monitor.NewMetrics("s1", start)
	agg := monitor.NewEventAggregator(m)
	for i := 0; i < n; i++ {
		at := start.Add(time.Duration(i) * 2 * time.Second)
		agg.Observe(monitor.ModalityGaze, monitor.DirectionLeft, at)
		agg.Observe(monitor.ModalityGaze, monitor.DirectionCenter, at.Add(time.Second))
	}
	return m.Clone()
}

func TestSummarize_Caps(t *testing.T) {
	tests := []struct {
		name      string
		events    int
		limit     int
		wantShown int
		wantOver  int
	}{
		{"empty", 0, 10, 0, 0},
		{"under cap", 4, 10, 4, 0},
		{"exactly cap", 10, 10, 10, 0},
		{"overflow", 14, 10, 10, 4},
		{"default limit", 12, 0, 10, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Summarize(metricsWithEvents(tt.events), tt.limit)
			assert.Len(t, s.Entries, tt.wantShown)
			assert.Equal(t, tt.wantOver, s.Overflow)
			assert.Equal(t, tt.events, s.Total)
		})
	}
}

func TestSummarize_DoesNotAliasLog(t *testing.T) {
	m := metricsWithEvents(3)
	s := Summarize(m, 10)
	s.Entries[0].Direction = "changed"
	assert.Equal(t, "Looking Left", m.SuspiciousActivityLog[0].Direction)
}

func TestSummarize_CountsInReportOrder(t *testing.T) {
	m := monitor.NewMetrics("s1", start)
	m.HeadPoseEvents[monitor.DirectionTilted] = 3
	m.EyeMovementEvents[monitor.DirectionUp] = 1

	s := Summarize(m.Clone(), 10)
	want := []Count{
		{"Looking Left", 0}, {"Looking Right", 0}, {"Looking Up", 0}, {"Looking Down", 0}, {"Tilted", 3},
	}
	if diff := cmp.Diff(want, s.HeadPose); diff != "" {
		t.Errorf("HeadPose mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, s.EyeMovement[2].Count)
}

func TestLine(t *testing.T) {
	at := start.Add(9*time.Second + 500*time.Millisecond)
	tests := []struct {
		entry monitor.ActivityEntry
		want  string
	}{
		{monitor.ActivityEntry{Type: monitor.ModalityDevice, Direction: "detected", Timestamp: at}, "Mobile device detected at 14:00:09"},
		{monitor.ActivityEntry{Type: monitor.ModalityHeadPose, Direction: "Looking Right", Timestamp: at}, "Head Looking Right at 14:00:09"},
		{monitor.ActivityEntry{Type: monitor.ModalityGaze, Direction: "Looking Down", Timestamp: at}, "Eyes Looking Down at 14:00:09"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Line(tt.entry, time.UTC))
	}
}

func TestSummary_Text(t *testing.T) {
	s := Summarize(metricsWithEvents(12), 10)
	text := s.TextIn(time.UTC)

	require.Contains(t, text, "Mobile Phone Detections: 0")
	assert.Contains(t, text, "- Looking Left: 0\n")
	assert.Contains(t, text, "1. Eyes Looking Left at 14:00:00\n")
	assert.Contains(t, text, "10. Eyes Looking Left at 14:00:18\n")
	assert.NotContains(t, text, "11. ")
	assert.True(t, strings.HasSuffix(text, "... and 2 more events\n"))

	empty := Summarize(monitor.NewMetrics("s2", start).Clone(), 10).TextIn(time.UTC)
	assert.Contains(t, empty, "No suspicious activity recorded.")
	assert.NotContains(t, empty, "more events")
}

func TestSummary_Duration(t *testing.T) {
	m := monitor.NewMetrics("s1", start)
	assert.Zero(t, Summarize(m.Clone(), 10).Duration())

	ended := start.Add(90 * time.Second)
	m.EndedAt = &ended
	assert.Equal(t, 90*time.Second, Summarize(m.Clone(), 10).Duration())
}
