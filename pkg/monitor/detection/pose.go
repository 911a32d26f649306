package detection

import (
	"math"

	"github.com/teslashibe/go-proctor/pkg/monitor"
)

// Neutral nose height between the eye line and the mouth line, as a
// fraction of that span, for a face looking straight at the camera.
const neutralNoseRatio = 0.55

// PoseEstimator derives head angles from YuNet landmarks
type PoseEstimator struct {
	faces *YuNet
}

// NewPoseEstimator creates an estimator with its own YuNet instance
func NewPoseEstimator(cfg Config) (*PoseEstimator, error) {
	faces, err := NewYuNet(cfg)
	if err != nil {
		return nil, err
	}
	return &PoseEstimator{faces: faces}, nil
}

// EstimatePose implements monitor.PoseEstimator. Returns nil angles when
// no usable face is found.
func (p *PoseEstimator) EstimatePose(jpeg []byte) (*monitor.Angles, error) {
	faces, err := p.faces.Detect(jpeg)
	if err != nil {
		return nil, err
	}
	face := SelectPrimary(faces)
	if face == nil {
		return nil, nil
	}

	angles, ok := AnglesFromLandmarks(face.Landmarks)
	if !ok {
		return nil, nil
	}
	return &angles, nil
}

// Close releases the model
func (p *PoseEstimator) Close() error {
	return p.faces.Close()
}

// AnglesFromLandmarks approximates pitch, yaw and roll in degrees.
//
// Roll is the angle of the eye line. The other points are rotated by -roll
// about the eye midpoint, then yaw comes from the nose's horizontal offset
// relative to half the inter-ocular distance and pitch from the nose's
// height between the eye and mouth lines. Positive yaw means the nose moved
// toward the image right; positive pitch means looking up.
func AnglesFromLandmarks(l Landmarks) (monitor.Angles, bool) {
	iod := l.RightEye.Dist(l.LeftEye)
	if iod < 1e-6 {
		return monitor.Angles{}, false
	}

	rollRad := math.Atan2(l.LeftEye.Y-l.RightEye.Y, l.LeftEye.X-l.RightEye.X)
	eyeMid := midpoint(l.RightEye, l.LeftEye)

	nose := derotate(l.Nose, eyeMid, rollRad)
	mouthMid := derotate(midpoint(l.MouthRight, l.MouthLeft), eyeMid, rollRad)

	span := mouthMid.Y - eyeMid.Y
	if span < 1e-6 {
		return monitor.Angles{}, false
	}

	yaw := asinDeg((nose.X - eyeMid.X) / (0.5 * iod))
	ratio := (nose.Y - eyeMid.Y) / span
	pitch := asinDeg((neutralNoseRatio - ratio) * 2)

	return monitor.Angles{
		Pitch: pitch,
		Yaw:   yaw,
		Roll:  rollRad * 180 / math.Pi,
	}, true
}

func midpoint(a, b Point) Point {
	return Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
}

// derotate rotates p by -theta about origin
func derotate(p, origin Point, theta float64) Point {
	sin, cos := math.Sincos(-theta)
	dx, dy := p.X-origin.X, p.Y-origin.Y
	return Point{
		X: origin.X + dx*cos - dy*sin,
		Y: origin.Y + dx*sin + dy*cos,
	}
}

func asinDeg(v float64) float64 {
	v = math.Max(-1, math.Min(1, v))
	return math.Asin(v) * 180 / math.Pi
}
