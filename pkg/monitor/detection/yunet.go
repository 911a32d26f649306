package detection

import (
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/teslashibe/go-proctor/internal/log"
	"gocv.io/x/gocv"
)

// YuNet wraps OpenCV's FaceDetectorYN. One instance serves one caller at
// a time; give each concurrent modality its own instance.
type YuNet struct {
	detector gocv.FaceDetectorYN
	config   Config
	mu       sync.Mutex // Protects inference
}

// NewYuNet loads the YuNet model
func NewYuNet(cfg Config) (*YuNet, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"",
		image.Pt(cfg.InputWidth, cfg.InputHeight),
		float32(cfg.ConfidenceThresh),
		0.3,  // NMS threshold
		5000, // Top K
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &YuNet{
		detector: detector,
		config:   cfg,
	}, nil
}

// Detect finds faces in a JPEG frame
func (d *YuNet) Detect(jpeg []byte) ([]Face, error) {
	img, err := decode(jpeg)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	return d.DetectMat(img), nil
}

// DetectMat finds faces in a decoded BGR image
func (d *YuNet) DetectMat(img gocv.Mat) []Face {
	d.mu.Lock()
	defer d.mu.Unlock()

	imgW := float64(img.Cols())
	imgH := float64(img.Rows())
	d.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))

	out := gocv.NewMat()
	defer out.Close()
	d.detector.Detect(img, &out)

	faces := make([]Face, 0, out.Rows())
	for r := 0; r < out.Rows(); r++ {
		// Columns: 0-3 box (px), 4-13 five landmarks (x,y), 14 score
		at := func(c int) float64 { return float64(out.GetFloatAt(r, c)) }
		pt := func(c int) Point { return Point{X: at(c), Y: at(c + 1)} }

		faces = append(faces, Face{
			X:          at(0) / imgW,
			Y:          at(1) / imgH,
			W:          at(2) / imgW,
			H:          at(3) / imgH,
			Confidence: at(14),
			Landmarks: Landmarks{
				RightEye:   pt(4),
				LeftEye:    pt(6),
				Nose:       pt(8),
				MouthRight: pt(10),
				MouthLeft:  pt(12),
			},
		})
	}

	if len(faces) > 1 {
		log.Debug("multiple faces in frame", "count", len(faces))
	}
	return faces
}

// Close releases the detector resources
func (d *YuNet) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector.Close()
	return nil
}

func decode(jpeg []byte) (gocv.Mat, error) {
	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return img, fmt.Errorf("decode image: %w", err)
	}
	if img.Empty() {
		img.Close()
		return img, fmt.Errorf("empty image")
	}
	return img, nil
}
