package monitor

import (
	"gonum.org/v1/gonum/stat"
)

// Axis identifies a head rotation axis
type Axis int

const (
	AxisPitch Axis = iota
	AxisYaw
	AxisRoll
)

// AngleHistory is a fixed-capacity ring of samples whose value is the
// arithmetic mean of its contents.
type AngleHistory struct {
	samples []float64
	next    int
	size    int
}

// NewAngleHistory creates an empty history holding up to capacity samples
func NewAngleHistory(capacity int) *AngleHistory {
	if capacity < 1 {
		capacity = 1
	}
	return &AngleHistory{samples: make([]float64, capacity)}
}

// Push appends v, evicting the oldest sample once full, and returns the new mean
func (h *AngleHistory) Push(v float64) float64 {
	h.samples[h.next] = v
	h.next = (h.next + 1) % len(h.samples)
	if h.size < len(h.samples) {
		h.size++
	}
	return h.Mean()
}

// Mean returns the mean of the held samples, 0 when empty
func (h *AngleHistory) Mean() float64 {
	if h.size == 0 {
		return 0
	}
	// Order does not matter for the mean; until full the filled prefix is [0,size).
	return stat.Mean(h.samples[:h.size], nil)
}

// Len returns the number of held samples
func (h *AngleHistory) Len() int {
	return h.size
}

// AngleSmoother keeps one moving average per axis. Absent samples are never
// pushed, so the previous mean carries over.
type AngleSmoother struct {
	axes [3]*AngleHistory
}

// NewAngleSmoother creates a smoother with the given window per axis
func NewAngleSmoother(window int) *AngleSmoother {
	return &AngleSmoother{
		axes: [3]*AngleHistory{
			NewAngleHistory(window),
			NewAngleHistory(window),
			NewAngleHistory(window),
		},
	}
}

// Push adds a raw value for one axis and returns that axis's smoothed value
func (s *AngleSmoother) Push(axis Axis, raw float64) float64 {
	return s.axes[axis].Push(raw)
}

// PushAngles pushes all three axes and returns the smoothed angles
func (s *AngleSmoother) PushAngles(raw Angles) Angles {
	return Angles{
		Pitch: s.Push(AxisPitch, raw.Pitch),
		Yaw:   s.Push(AxisYaw, raw.Yaw),
		Roll:  s.Push(AxisRoll, raw.Roll),
	}
}

// Current returns the smoothed angles without pushing
func (s *AngleSmoother) Current() Angles {
	return Angles{
		Pitch: s.axes[AxisPitch].Mean(),
		Yaw:   s.axes[AxisYaw].Mean(),
		Roll:  s.axes[AxisRoll].Mean(),
	}
}
