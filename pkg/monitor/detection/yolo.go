package detection

import (
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/teslashibe/go-proctor/internal/log"
	"github.com/teslashibe/go-proctor/pkg/monitor"
	"gocv.io/x/gocv"
)

// YOLODetector uses YOLOv8 for general object detection
type YOLODetector struct {
	net       gocv.Net
	config    YOLOConfig
	mu        sync.Mutex
	inputSize image.Point
}

// YOLOConfig holds YOLO detector configuration
type YOLOConfig struct {
	ModelPath        string
	ConfidenceThresh float32 // Candidate floor; the monitor applies its own device threshold
	NMSThresh        float32
	InputWidth       int
	InputHeight      int
}

// DefaultYOLOConfig returns production defaults for YOLOv8n
func DefaultYOLOConfig() YOLOConfig {
	return YOLOConfig{
		ModelPath:        "models/yolov8n.onnx",
		ConfidenceThresh: 0.5,
		NMSThresh:        0.45,
		InputWidth:       640,
		InputHeight:      640,
	}
}

// NewYOLO loads a YOLOv8 ONNX model
func NewYOLO(cfg YOLOConfig) (*YOLODetector, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load YOLO model from %s", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &YOLODetector{
		net:       net,
		config:    cfg,
		inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight),
	}, nil
}

// DetectObjects implements monitor.ObjectDetector
func (d *YOLODetector) DetectObjects(jpeg []byte) ([]monitor.ObjectDetection, error) {
	img, err := decode(jpeg)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	blob := gocv.BlobFromImage(img, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	// Output shape [1, 84, 8400]: 4 box values + 80 class scores per column
	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}
	features, anchors := output.Rows(), output.Cols()
	if dims := output.Size(); len(dims) == 3 {
		features, anchors = dims[1], dims[2]
	}
	detections := suppress(parseYOLOv8(data, features, anchors, d.config), d.config)

	if len(detections) > 0 {
		log.Debug("objects detected", "count", len(detections))
	}
	return detections, nil
}

// candidate is a pre-NMS box in model input pixels
type candidate struct {
	box     image.Rectangle
	score   float32
	classID int
}

// parseYOLOv8 reads the YOLOv8 tensor laid out feature-major: features
// rows by anchors columns.
func parseYOLOv8(data []float32, features, anchors int, cfg YOLOConfig) []candidate {
	var out []candidate
	for i := 0; i < anchors; i++ {
		maxScore := float32(0)
		maxClass := 0
		for c := 4; c < features; c++ {
			if score := data[c*anchors+i]; score > maxScore {
				maxScore = score
				maxClass = c - 4
			}
		}
		if maxScore < cfg.ConfidenceThresh {
			continue
		}

		cx, cy := data[0*anchors+i], data[1*anchors+i]
		w, h := data[2*anchors+i], data[3*anchors+i]
		out = append(out, candidate{
			box:     image.Rect(int(cx-w/2), int(cy-h/2), int(cx+w/2), int(cy+h/2)),
			score:   maxScore,
			classID: maxClass,
		})
	}
	return out
}

// suppress applies NMS and normalizes the surviving boxes
func suppress(cands []candidate, cfg YOLOConfig) []monitor.ObjectDetection {
	if len(cands) == 0 {
		return nil
	}

	boxes := make([]image.Rectangle, len(cands))
	scores := make([]float32, len(cands))
	for i, c := range cands {
		boxes[i] = c.box
		scores[i] = c.score
	}
	indices := gocv.NMSBoxes(boxes, scores, cfg.ConfidenceThresh, cfg.NMSThresh)

	inW, inH := float64(cfg.InputWidth), float64(cfg.InputHeight)
	out := make([]monitor.ObjectDetection, 0, len(indices))
	for _, idx := range indices {
		c := cands[idx]
		out = append(out, monitor.ObjectDetection{
			ClassID:    c.classID,
			ClassName:  ClassName(c.classID),
			Confidence: float64(c.score),
			X:          float64(c.box.Min.X) / inW,
			Y:          float64(c.box.Min.Y) / inH,
			W:          float64(c.box.Dx()) / inW,
			H:          float64(c.box.Dy()) / inH,
		})
	}
	return out
}

// Close releases the detector resources
func (d *YOLODetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.net.Close()
	return nil
}

// ClassName returns the COCO label for id
func ClassName(id int) string {
	if id < 0 || id >= len(COCOClasses) {
		return "unknown"
	}
	return COCOClasses[id]
}

// COCOClasses contains the 80 COCO class names
var COCOClasses = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator",
	"book", "clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}
