// Package camera produces the latest-frame stream the monitor consumes.
// A capture goroutine refills a single-slot mailbox; readers always see
// the most recent frame and never queue.
package camera

import (
	"time"
)

// Config holds all camera configuration parameters.
// These can be modified via the camera API at runtime.
type Config struct {
	// === Source ===
	Device          int    `json:"device"`           // Preferred device index
	FallbackDevices []int  `json:"fallback_devices"` // Tried in order if Device fails to open
	URL             string `json:"url,omitempty"`    // Stream URL; overrides Device when set

	// === Resolution ===
	Width      int `json:"width"`       // Frame width in pixels
	Height     int `json:"height"`      // Frame height in pixels
	Framerate  int `json:"framerate"`   // Requested FPS
	Quality    int `json:"quality"`     // JPEG quality 1-100
	BufferSize int `json:"buffer_size"` // Driver-side buffer; small keeps latency low

	// === Recovery ===
	MaxRestarts   int           `json:"max_restarts"`   // Reopen attempts before falling back
	RestartGap    time.Duration `json:"restart_gap"`    // Minimum time between reopen attempts
	RestartReset  time.Duration `json:"restart_reset"`  // Healthy time after which attempts reset
	ReopenDelay   time.Duration `json:"reopen_delay"`   // Pause between release and reopen
	RetryInterval time.Duration `json:"retry_interval"` // Pause after a failed read
}

// Sensor limits
const (
	MaxWidth      = 3840
	MaxHeight     = 2160
	MaxFramerate  = 60
	MaxBufferSize = 10
)

// DefaultConfig returns the standard webcam configuration: 640x480 with a
// two-frame buffer for low latency.
func DefaultConfig() Config {
	return Config{
		Device:          0,
		FallbackDevices: []int{1, 2},

		Width:      640,
		Height:     480,
		Framerate:  30,
		Quality:    85,
		BufferSize: 2,

		MaxRestarts:   3,
		RestartGap:    5 * time.Second,
		RestartReset:  10 * time.Second,
		ReopenDelay:   time.Second,
		RetryInterval: 30 * time.Millisecond,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Device < 0 {
		errors = append(errors, "device must not be negative")
	}
	if c.Width < 160 || c.Width > MaxWidth {
		errors = append(errors, "width must be between 160 and 3840")
	}
	if c.Height < 120 || c.Height > MaxHeight {
		errors = append(errors, "height must be between 120 and 2160")
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errors = append(errors, "framerate must be between 1 and 60")
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}
	if c.BufferSize < 1 || c.BufferSize > MaxBufferSize {
		errors = append(errors, "buffer_size must be between 1 and 10")
	}
	if c.MaxRestarts < 0 {
		errors = append(errors, "max_restarts must not be negative")
	}
	if c.RestartGap < 0 || c.ReopenDelay < 0 || c.RetryInterval < 0 {
		errors = append(errors, "recovery intervals must not be negative")
	}

	return errors
}
