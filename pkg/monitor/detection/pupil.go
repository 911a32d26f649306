package detection

import (
	"image"

	"github.com/teslashibe/go-proctor/pkg/monitor"
	"gocv.io/x/gocv"
)

// PupilConfig tunes the dark-blob pupil search
type PupilConfig struct {
	BoxWidth  float64 // Eye box width as a fraction of inter-ocular distance
	BoxHeight float64 // Eye box height as a fraction of inter-ocular distance
	BlurSize  int     // Gaussian kernel, odd
	Threshold float32 // Gray level below which a pixel counts as pupil
}

// DefaultPupilConfig returns the production pupil search parameters
func DefaultPupilConfig() PupilConfig {
	return PupilConfig{
		BoxWidth:  0.5,
		BoxHeight: 0.3,
		BlurSize:  7,
		Threshold: 50,
	}
}

// PupilLocator finds pupils inside landmark-anchored eye boxes
type PupilLocator struct {
	faces  *YuNet
	config PupilConfig
}

// NewPupilLocator creates a locator with its own YuNet instance
func NewPupilLocator(cfg Config, pcfg PupilConfig) (*PupilLocator, error) {
	faces, err := NewYuNet(cfg)
	if err != nil {
		return nil, err
	}
	return &PupilLocator{faces: faces, config: pcfg}, nil
}

// LocatePupils implements monitor.PupilLocator
func (p *PupilLocator) LocatePupils(jpeg []byte) (*monitor.GazeSample, error) {
	img, err := decode(jpeg)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	face := SelectPrimary(p.faces.DetectMat(img))
	if face == nil {
		return nil, nil
	}

	bounds := image.Rect(0, 0, img.Cols(), img.Rows())
	left, right := EyeBoxes(face.Landmarks, p.config, bounds)

	return &monitor.GazeSample{
		Left:  p.locate(img, left),
		Right: p.locate(img, right),
	}, nil
}

// Close releases the model
func (p *PupilLocator) Close() error {
	return p.faces.Close()
}

func (p *PupilLocator) locate(img gocv.Mat, box image.Rectangle) monitor.EyeSample {
	sample := monitor.EyeSample{Width: float64(box.Dx()), Height: float64(box.Dy())}
	if box.Empty() {
		return sample
	}

	roi := img.Region(box)
	defer roi.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(roi, &gray, gocv.ColorBGRToGray)

	k := p.config.BlurSize
	gocv.GaussianBlur(gray, &gray, image.Pt(k, k), 0, 0, gocv.BorderDefault)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(gray, &mask, p.config.Threshold, 255, gocv.ThresholdBinaryInv)

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	best, bestArea := -1, 0.0
	for i := 0; i < contours.Size(); i++ {
		if area := gocv.ContourArea(contours.At(i)); area > bestArea {
			best, bestArea = i, area
		}
	}
	if best < 0 {
		return sample
	}

	r := gocv.BoundingRect(contours.At(best))
	sample.PupilX = float64(r.Min.X) + float64(r.Dx())/2
	sample.PupilY = float64(r.Min.Y) + float64(r.Dy())/2
	sample.Found = true
	return sample
}

// EyeBoxes returns the left and right eye search regions clipped to bounds.
// Boxes are centered on the eye landmarks and sized from the inter-ocular
// distance.
func EyeBoxes(l Landmarks, cfg PupilConfig, bounds image.Rectangle) (left, right image.Rectangle) {
	iod := l.RightEye.Dist(l.LeftEye)
	w, h := cfg.BoxWidth*iod, cfg.BoxHeight*iod
	box := func(c Point) image.Rectangle {
		r := image.Rect(
			int(c.X-w/2), int(c.Y-h/2),
			int(c.X+w/2), int(c.Y+h/2),
		)
		return r.Intersect(bounds)
	}
	return box(l.LeftEye), box(l.RightEye)
}
