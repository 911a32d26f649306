package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-proctor/pkg/monitor"
)

func env(vars map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestLoadFrom_Defaults(t *testing.T) {
	s, err := LoadFrom(env(nil), "")
	require.NoError(t, err)
	assert.Equal(t, Default(), s)
	assert.Equal(t, monitor.DefaultConfig(), s.MonitorConfig())

	_, ok := s.GoogleConfig()
	assert.False(t, ok)
}

func TestLoadFrom_Env(t *testing.T) {
	s, err := LoadFrom(env(map[string]string{
		"PROCTOR_PORT":                "9090",
		"PROCTOR_CAMERA_WIDTH":        "1280",
		"PROCTOR_CAMERA_HEIGHT":       "720",
		"PROCTOR_MONITOR_PRESET":      "strict",
		"PROCTOR_EVIDENCE_RETENTION":  "72h",
		"PROCTOR_VIOLATION_THRESHOLD": "4s",
		"GOOGLE_CLIENT_ID":            "id",
		"GOOGLE_CLIENT_SECRET":        "secret",
	}), "")
	require.NoError(t, err)

	assert.Equal(t, "9090", s.Port)
	assert.Equal(t, 1280, s.CameraConfig().Width)
	assert.Equal(t, 72*time.Hour, s.Storage.EvidenceRetention)

	mcfg := s.MonitorConfig()
	assert.Equal(t, 4*time.Second, mcfg.ViolationThreshold)
	assert.Equal(t, monitor.StrictConfig().SmoothingWindow, mcfg.SmoothingWindow)

	g, ok := s.GoogleConfig()
	assert.True(t, ok)
	assert.Equal(t, "id", g.ClientID)
}

func TestLoadFrom_BadEnv(t *testing.T) {
	tests := map[string]string{
		"PROCTOR_CAMERA_FPS":         "fast",
		"PROCTOR_EVIDENCE_RETENTION": "forever",
		"PROCTOR_MONITOR_PRESET":     "paranoid",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			_, err := LoadFrom(env(map[string]string{key: value}), "")
			assert.Error(t, err)
		})
	}
}

func TestLoadFrom_YAMLOverridesEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proctor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "7000"
monitor:
  preset: lenient
storage:
  evidence_retention: 24h
log:
  level: debug
  file: /var/log/proctor.log
`), 0644))

	s, err := LoadFrom(env(map[string]string{
		"PROCTOR_PORT":      "9090",
		"PROCTOR_LOG_LEVEL": "warn",
		"PROCTOR_DB":        "/srv/proctor.db",
	}), path)
	require.NoError(t, err)

	assert.Equal(t, "7000", s.Port)
	assert.Equal(t, "debug", s.Log.Level)
	assert.Equal(t, "/var/log/proctor.log", s.Log.File)
	assert.Equal(t, "/srv/proctor.db", s.Storage.DBPath)
	assert.Equal(t, 24*time.Hour, s.Storage.EvidenceRetention)
	assert.Equal(t, monitor.LenientConfig(), s.MonitorConfig())
}

func TestLoadFrom_MissingFile(t *testing.T) {
	_, err := LoadFrom(env(nil), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestSettings_DetectionModels(t *testing.T) {
	s := Default()
	s.Models.Face = "a.onnx"
	m := s.DetectionModels()
	assert.Equal(t, "a.onnx", m.Face)
	assert.Equal(t, s.Models.Object, m.Object)
}
