package monitor

import (
	"fmt"
	"time"
)

// Config holds all tunable parameters for behavioral monitoring
type Config struct {
	// Calibration
	CalibrationDelay time.Duration // Baseline is captured on the first face frame at or after this offset

	// Smoothing
	SmoothingWindow int // Samples per axis in the moving average

	// Head pose "at screen" band (degrees from baseline, inclusive)
	ScreenYaw   float64
	ScreenPitch float64
	ScreenRoll  float64

	// Head pose directional bands (degrees from baseline, exclusive)
	TurnYaw   float64 // Left/Right
	TurnPitch float64 // Up/Down
	TiltRoll  float64 // Tilted

	// Gaze (fractions of the eye box)
	GazeHorizontalThird float64 // Left below this, Right above 1-this
	GazeUpThreshold     float64 // Up when both normalized y are below this
	GazeDownThreshold   float64 // Down when both normalized y are above this

	// Device detection
	DebounceWindow   int     // Frames in the majority vote
	DeviceConfidence float64 // Minimum detector confidence (inclusive)
	DeviceClassID    int     // Detector class treated as a handheld device

	// Timers
	ViolationThreshold time.Duration // Continuous non-neutral run before a capture fires

	// Dispatch
	Workers      int           // Concurrent detector calls per cycle
	IdleInterval time.Duration // Poll interval when no new frame is available

	// Reporting
	ReportLimit int // Activity entries shown before the overflow count
}

// DefaultConfig returns the production monitoring configuration
func DefaultConfig() Config {
	return Config{
		CalibrationDelay: 5 * time.Second,

		SmoothingWindow: 10,

		ScreenYaw:   15,
		ScreenPitch: 10,
		ScreenRoll:  7,

		TurnYaw:   20,
		TurnPitch: 15,
		TiltRoll:  10,

		GazeHorizontalThird: 1.0 / 3.0,
		GazeUpThreshold:     0.3,
		GazeDownThreshold:   0.5,

		DebounceWindow:   5,
		DeviceConfidence: 0.85,
		DeviceClassID:    67, // COCO "cell phone"

		ViolationThreshold: 3 * time.Second,

		Workers:      3,
		IdleInterval: 10 * time.Millisecond,

		ReportLimit: 10,
	}
}

// StrictConfig returns a configuration that reacts to shorter violations
func StrictConfig() Config {
	cfg := DefaultConfig()
	cfg.ViolationThreshold = 2 * time.Second
	cfg.DeviceConfidence = 0.75
	cfg.SmoothingWindow = 6
	return cfg
}

// LenientConfig returns a configuration that tolerates more head movement
func LenientConfig() Config {
	cfg := DefaultConfig()
	cfg.ScreenYaw = 20
	cfg.TurnYaw = 28
	cfg.TurnPitch = 20
	cfg.ViolationThreshold = 5 * time.Second
	return cfg
}

// Validate checks the config for values the components cannot run with.
// Returns a list of problems, or nil if valid.
func (c Config) Validate() []string {
	var problems []string

	if c.CalibrationDelay < 0 {
		problems = append(problems, "calibration delay must not be negative")
	}
	if c.SmoothingWindow < 1 {
		problems = append(problems, "smoothing window must be at least 1")
	}
	if c.ScreenYaw > c.TurnYaw {
		problems = append(problems, fmt.Sprintf("screen yaw band %.1f exceeds turn band %.1f", c.ScreenYaw, c.TurnYaw))
	}
	if c.ScreenPitch > c.TurnPitch {
		problems = append(problems, fmt.Sprintf("screen pitch band %.1f exceeds turn band %.1f", c.ScreenPitch, c.TurnPitch))
	}
	if c.ScreenRoll > c.TiltRoll {
		problems = append(problems, fmt.Sprintf("screen roll band %.1f exceeds tilt band %.1f", c.ScreenRoll, c.TiltRoll))
	}
	if c.GazeHorizontalThird <= 0 || c.GazeHorizontalThird >= 0.5 {
		problems = append(problems, "gaze horizontal third must be between 0 and 0.5")
	}
	if c.GazeUpThreshold >= c.GazeDownThreshold {
		problems = append(problems, "gaze up threshold must be below down threshold")
	}
	if c.DebounceWindow < 1 {
		problems = append(problems, "debounce window must be at least 1")
	}
	if c.DeviceConfidence < 0 || c.DeviceConfidence > 1 {
		problems = append(problems, "device confidence must be between 0 and 1")
	}
	if c.ViolationThreshold <= 0 {
		problems = append(problems, "violation threshold must be positive")
	}
	if c.Workers < 1 {
		problems = append(problems, "workers must be at least 1")
	}
	if c.ReportLimit < 0 {
		problems = append(problems, "report limit must not be negative")
	}

	return problems
}
