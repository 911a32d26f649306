package monitor

import (
	"math"
	"time"
)

// HeadPoseResult is the head pose outcome of one cycle
type HeadPoseResult struct {
	FaceFound  bool      `json:"face_found"`
	Phase      Phase     `json:"phase"`
	Direction  Direction `json:"-"`
	Label      string    `json:"direction"`
	Smoothed   Angles    `json:"smoothed"`
	Delta      *Angles   `json:"delta,omitempty"`      // Smoothed minus baseline, once tracking
	Calibrated bool      `json:"calibrated,omitempty"` // Baseline captured on this frame
	Fallback   bool      `json:"fallback,omitempty"`   // Detector failed or disabled; neutral default
}

// HasVerdict reports whether the cycle produced a head pose classification.
// Faceless cycles produce none and are excluded from counting and timers.
// A fallback result counts as a neutral verdict.
func (r HeadPoseResult) HasVerdict() bool {
	return r.FaceFound || r.Fallback
}

// fallbackResult is the neutral default used when the estimator is
// unavailable. Smoothing and calibration state are left untouched.
func (c *HeadPoseClassifier) fallbackResult() HeadPoseResult {
	return c.result(HeadPoseResult{
		Phase:     c.gate.Phase(),
		Direction: DirectionCenter,
		Smoothed:  c.smoother.Current(),
		Fallback:  true,
	})
}

// HeadPoseClassifier turns raw angles into a direction using smoothing,
// a one-shot baseline and hysteresis. The current direction is state: it
// changes only when a classification rule fires.
type HeadPoseClassifier struct {
	cfg      Config
	smoother *AngleSmoother
	gate     *CalibrationGate
	current  Direction
}

// NewHeadPoseClassifier creates a classifier for a session started at startedAt
func NewHeadPoseClassifier(cfg Config, startedAt time.Time) *HeadPoseClassifier {
	return &HeadPoseClassifier{
		cfg:      cfg,
		smoother: NewAngleSmoother(cfg.SmoothingWindow),
		gate:     NewCalibrationGate(startedAt, cfg.CalibrationDelay),
		current:  DirectionCenter,
	}
}

// Update feeds one cycle's raw angles (nil when no face was found)
func (c *HeadPoseClassifier) Update(raw *Angles, at time.Time) HeadPoseResult {
	if raw == nil {
		return c.result(HeadPoseResult{
			Phase:     c.gate.Phase(),
			Direction: c.current,
			Smoothed:  c.smoother.Current(),
		})
	}

	smoothed := c.smoother.PushAngles(*raw)

	if c.gate.Phase() == PhaseCalibrating {
		if !c.gate.Observe(smoothed, at) {
			return c.result(HeadPoseResult{
				FaceFound: true,
				Phase:     PhaseCalibrating,
				Direction: DirectionCenter,
				Smoothed:  smoothed,
			})
		}
		res := c.classify(smoothed)
		res.Calibrated = true
		return res
	}

	return c.classify(smoothed)
}

func (c *HeadPoseClassifier) classify(smoothed Angles) HeadPoseResult {
	baseline, _ := c.gate.Baseline()
	c.current = ClassifyHeadPose(c.cfg, smoothed, baseline, c.current)

	delta := smoothed.Sub(baseline)
	return c.result(HeadPoseResult{
		FaceFound: true,
		Phase:     PhaseTracking,
		Direction: c.current,
		Smoothed:  smoothed,
		Delta:     &delta,
	})
}

func (c *HeadPoseClassifier) result(r HeadPoseResult) HeadPoseResult {
	r.Label = r.Direction.Label(ModalityHeadPose)
	return r
}

// Current returns the retained direction
func (c *HeadPoseClassifier) Current() Direction {
	return c.current
}

// Gate returns the calibration gate
func (c *HeadPoseClassifier) Gate() *CalibrationGate {
	return c.gate
}

// ClassifyHeadPose applies the fixed-priority rules; first match wins.
// Inputs between the at-screen band and the directional bands fall through
// to previous.
func ClassifyHeadPose(cfg Config, smoothed, baseline Angles, previous Direction) Direction {
	d := smoothed.Sub(baseline)

	switch {
	case math.Abs(d.Yaw) <= cfg.ScreenYaw && math.Abs(d.Pitch) <= cfg.ScreenPitch && math.Abs(d.Roll) <= cfg.ScreenRoll:
		return DirectionCenter
	case d.Yaw < -cfg.TurnYaw:
		return DirectionLeft
	case d.Yaw > cfg.TurnYaw:
		return DirectionRight
	case d.Pitch > cfg.TurnPitch:
		return DirectionUp
	case d.Pitch < -cfg.TurnPitch:
		return DirectionDown
	case math.Abs(d.Roll) > cfg.TiltRoll:
		return DirectionTilted
	default:
		return previous
	}
}
