package monitor

import (
	"testing"
	"time"
)

func TestConfig_Presets(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"default", DefaultConfig()},
		{"strict", StrictConfig()},
		{"lenient", LenientConfig()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if problems := tt.cfg.Validate(); len(problems) != 0 {
				t.Errorf("unexpected problems: %v", problems)
			}
		})
	}
}

func TestConfig_DefaultValues(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.CalibrationDelay != 5*time.Second {
		t.Errorf("CalibrationDelay = %v", cfg.CalibrationDelay)
	}
	if cfg.SmoothingWindow != 10 || cfg.DebounceWindow != 5 || cfg.Workers != 3 {
		t.Errorf("windows = %d/%d/%d", cfg.SmoothingWindow, cfg.DebounceWindow, cfg.Workers)
	}
	if cfg.ViolationThreshold != 3*time.Second {
		t.Errorf("ViolationThreshold = %v", cfg.ViolationThreshold)
	}
	if cfg.DeviceConfidence != 0.85 || cfg.DeviceClassID != 67 {
		t.Errorf("device = %v/%d", cfg.DeviceConfidence, cfg.DeviceClassID)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero smoothing", func(c *Config) { c.SmoothingWindow = 0 }},
		{"screen band wider than turn band", func(c *Config) { c.ScreenYaw = 25 }},
		{"gaze thresholds inverted", func(c *Config) { c.GazeUpThreshold = 0.6 }},
		{"confidence above one", func(c *Config) { c.DeviceConfidence = 1.5 }},
		{"no workers", func(c *Config) { c.Workers = 0 }},
		{"zero threshold", func(c *Config) { c.ViolationThreshold = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			if problems := cfg.Validate(); len(problems) == 0 {
				t.Error("expected a validation problem")
			}
		})
	}
}
