package monitor

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrDetectorUnavailable is reported once when a modality has no detector.
	ErrDetectorUnavailable = errors.New("monitor: detector unavailable")

	// ErrNoFrame is returned when a source has not produced a frame yet.
	ErrNoFrame = errors.New("monitor: no frame available")

	// ErrInvalidConfig is returned when a Config fails validation.
	ErrInvalidConfig = errors.New("monitor: invalid config")
)

// DetectorError wraps a per-frame collaborator failure with its modality.
type DetectorError struct {
	Modality Modality
	Err      error
}

// Error implements the error interface.
func (e *DetectorError) Error() string {
	return fmt.Sprintf("monitor [%s]: %v", e.Modality, e.Err)
}

// Unwrap returns the underlying error.
func (e *DetectorError) Unwrap() error {
	return e.Err
}
