package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-proctor/pkg/monitor"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "proctor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func TestOpen_AppliesMigrations(t *testing.T) {
	s := openTestStore(t)

	version, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	// Re-applying is a no-op
	require.NoError(t, s.MigrateUp())
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}

func TestSessionLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, Session{ID: "s1", StartedAt: t0, Monitoring: true, Source: "ingest"}))

	got, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, got.Status)
	assert.True(t, got.StartedAt.Equal(t0))
	assert.Nil(t, got.EndedAt)
	assert.Nil(t, got.Final)

	final := monitor.NewMetrics("s1", t0)
	agg := monitor.NewEventAggregator(final)
	agg.Observe(monitor.ModalityHeadPose, monitor.DirectionLeft, t0.Add(7*time.Second))
	agg.ObserveDevice(true, t0.Add(9*time.Second))
	ended := t0.Add(time.Minute)

	require.NoError(t, s.FinalizeSession(ctx, "s1", ended, final.Clone()))

	got, err = s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StatusStopped, got.Status)
	require.NotNil(t, got.EndedAt)
	assert.True(t, got.EndedAt.Equal(ended))
	require.NotNil(t, got.Final)
	if diff := cmp.Diff(final.Clone(), *got.Final); diff != "" {
		t.Errorf("final metrics mismatch (-want +got):\n%s", diff)
	}
}

func TestSession_Errors(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.FinalizeSession(ctx, "missing", t0, *monitor.NewMetrics("missing", t0))
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.CreateSession(ctx, Session{ID: "dup", StartedAt: t0}))
	assert.Error(t, s.CreateSession(ctx, Session{ID: "dup", StartedAt: t0}))

	// Activity for an unknown session violates the foreign key
	err = s.AppendActivity(ctx, "missing", monitor.ActivityEntry{Type: monitor.ModalityGaze, Direction: "Looking Up", Timestamp: t0})
	assert.Error(t, err)
}

func TestActivityAndCaptures(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateSession(ctx, Session{ID: "s1", StartedAt: t0, Monitoring: true}))
	require.NoError(t, s.CreateSession(ctx, Session{ID: "s2", StartedAt: t0.Add(time.Hour), Monitoring: true}))

	entries := []monitor.ActivityEntry{
		{Type: monitor.ModalityHeadPose, Direction: "Looking Right", Timestamp: t0.Add(6500 * time.Millisecond)},
		{Type: monitor.ModalityGaze, Direction: "Looking Left", Timestamp: t0.Add(7 * time.Second)},
		{Type: monitor.ModalityDevice, Direction: "detected", Timestamp: t0.Add(8 * time.Second)},
	}
	for _, e := range entries {
		require.NoError(t, s.AppendActivity(ctx, "s1", e))
	}

	got, err := s.ListActivity(ctx, "s1")
	require.NoError(t, err)
	if diff := cmp.Diff(entries, got); diff != "" {
		t.Errorf("activity mismatch (-want +got):\n%s", diff)
	}

	empty, err := s.ListActivity(ctx, "s2")
	require.NoError(t, err)
	assert.Empty(t, empty)

	id, err := s.RecordCapture(ctx, Capture{SessionID: "s1", Type: "head_pose", Label: "Looking Right", File: "head_Looking_Right_1709287209.png", At: t0.Add(9500 * time.Millisecond)})
	require.NoError(t, err)
	assert.NotZero(t, id)

	captures, err := s.ListCaptures(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, captures, 1)
	assert.Equal(t, "Looking Right", captures[0].Label)
	assert.True(t, captures[0].At.Equal(t0.Add(9500*time.Millisecond)))

	sessions, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "s2", sessions[0].ID, "newest first")
}

func TestMigrateDown(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.MigrateDown())

	version, _, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)

	require.NoError(t, s.MigrateUp())
	require.NoError(t, s.CreateSession(context.Background(), Session{ID: "after", StartedAt: t0}))
}
