// Package monitor fuses per-frame gaze, head-pose and device signals into a
// debounced verdict stream for a single interview session.
//
// A session owns one State. The Orchestrator drives one cycle per frame:
// the three detectors run concurrently, then the results flow through
// smoothing, calibration, classification, debouncing, edge counting and
// violation timers on the orchestrator's goroutine only.
package monitor

import (
	"encoding/json"
	"fmt"
	"time"
)

// Modality identifies one of the three monitored signals
type Modality int

const (
	ModalityHeadPose Modality = iota
	ModalityGaze
	ModalityDevice
)

var modalityNames = [...]string{"head_pose", "eye_movement", "mobile_detected"}

// String returns the activity-log type name for the modality
func (m Modality) String() string {
	if m < 0 || int(m) >= len(modalityNames) {
		return fmt.Sprintf("modality(%d)", int(m))
	}
	return modalityNames[m]
}

// Short returns the prefix used for evidence file names
func (m Modality) Short() string {
	switch m {
	case ModalityHeadPose:
		return "head"
	case ModalityGaze:
		return "eye"
	case ModalityDevice:
		return "mobile"
	}
	return "unknown"
}

// MarshalJSON encodes the modality as its log type name
func (m Modality) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON decodes a modality from its log type name
func (m *Modality) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, ok := ParseModality(name)
	if !ok {
		return fmt.Errorf("unknown modality %q", name)
	}
	*m = parsed
	return nil
}

// ParseModality returns the modality with the given log type name
func ParseModality(name string) (Modality, bool) {
	for i, n := range modalityNames {
		if n == name {
			return Modality(i), true
		}
	}
	return 0, false
}

// Direction is a classified looking direction.
// Center is the neutral state for both head pose and gaze.
type Direction int

const (
	DirectionCenter Direction = iota
	DirectionLeft
	DirectionRight
	DirectionUp
	DirectionDown
	DirectionTilted
)

// String returns the label used in reports and counters
func (d Direction) String() string {
	switch d {
	case DirectionCenter:
		return "Looking Center"
	case DirectionLeft:
		return "Looking Left"
	case DirectionRight:
		return "Looking Right"
	case DirectionUp:
		return "Looking Up"
	case DirectionDown:
		return "Looking Down"
	case DirectionTilted:
		return "Tilted"
	}
	return fmt.Sprintf("direction(%d)", int(d))
}

// Label returns the modality-specific label. Head pose reports its neutral
// state as "Looking at Screen".
func (d Direction) Label(m Modality) string {
	if d == DirectionCenter && m == ModalityHeadPose {
		return "Looking at Screen"
	}
	return d.String()
}

// ParseDirection returns the direction for a label produced by String or
// Label
func ParseDirection(label string) (Direction, bool) {
	if label == "Looking at Screen" {
		return DirectionCenter, true
	}
	for d := DirectionCenter; d <= DirectionTilted; d++ {
		if d.String() == label {
			return d, true
		}
	}
	return 0, false
}

// IsNeutral reports whether d is the neutral state
func (d Direction) IsNeutral() bool {
	return d == DirectionCenter
}

// HeadDirections lists the non-neutral head pose directions in report order
var HeadDirections = []Direction{DirectionLeft, DirectionRight, DirectionUp, DirectionDown, DirectionTilted}

// GazeDirections lists the non-neutral gaze directions in report order
var GazeDirections = []Direction{DirectionLeft, DirectionRight, DirectionUp, DirectionDown}

// FrameSample is one acquired frame. Data is JPEG-encoded and must not be
// modified after the frame is published.
type FrameSample struct {
	Seq        uint64
	Data       []byte
	CapturedAt time.Time
}

// Angles are head rotation angles in degrees
type Angles struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
}

// Sub returns a - b per axis
func (a Angles) Sub(b Angles) Angles {
	return Angles{Pitch: a.Pitch - b.Pitch, Yaw: a.Yaw - b.Yaw, Roll: a.Roll - b.Roll}
}

// EyeSample locates one pupil inside its eye region, in pixels
type EyeSample struct {
	PupilX float64
	PupilY float64
	Width  float64
	Height float64
	Found  bool // False when no pupil contour was located
}

// GazeSample holds both eyes for one frame
type GazeSample struct {
	Left  EyeSample
	Right EyeSample
}

// ObjectDetection is one candidate box from the object detector
type ObjectDetection struct {
	ClassID    int
	ClassName  string
	Confidence float64
	X, Y, W, H float64 // Normalized 0-1
}

// DeviceSample is the thresholded per-frame device signal
type DeviceSample struct {
	Present    bool
	Confidence float64 // Highest accepted confidence, 0 when absent
}

// PoseEstimator turns a frame into head angles. A nil sample with a nil
// error means no face was found.
type PoseEstimator interface {
	EstimatePose(jpeg []byte) (*Angles, error)
}

// PupilLocator turns a frame into pupil positions. A nil sample with a nil
// error means no face was found.
type PupilLocator interface {
	LocatePupils(jpeg []byte) (*GazeSample, error)
}

// ObjectDetector returns candidate boxes for a frame
type ObjectDetector interface {
	DetectObjects(jpeg []byte) ([]ObjectDetection, error)
}

// FrameSource returns the most recently captured frame without blocking.
// ok is false until the first frame arrives.
type FrameSource interface {
	Latest() (frame FrameSample, ok bool)
}

// Detectors groups the external collaborators. A nil field disables that
// modality for the session.
type Detectors struct {
	Pose    PoseEstimator
	Pupils  PupilLocator
	Objects ObjectDetector
}
