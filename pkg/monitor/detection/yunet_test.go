package detection

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	modelPath := findModelPath("face_detection_yunet.onnx")
	if modelPath == "" {
		t.Skip("YuNet model not found, skipping test")
	}
	cfg := DefaultConfig()
	cfg.ModelPath = modelPath
	return cfg
}

func TestNewYuNet_InvalidPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ModelPath = "/nonexistent/path/model.onnx"

	if _, err := NewYuNet(cfg); err == nil {
		t.Error("Expected error for invalid model path")
	}
	if _, err := NewPoseEstimator(cfg); err == nil {
		t.Error("Expected error for invalid model path")
	}
	if _, err := NewPupilLocator(cfg, DefaultPupilConfig()); err == nil {
		t.Error("Expected error for invalid model path")
	}
}

func TestYuNetDetect_InvalidImage(t *testing.T) {
	detector, err := NewYuNet(testConfig(t))
	if err != nil {
		t.Fatalf("NewYuNet failed: %v", err)
	}
	defer detector.Close()

	if _, err := detector.Detect([]byte{}); err == nil {
		t.Error("Expected error for empty image")
	}
	if _, err := detector.Detect([]byte("not a jpeg")); err == nil {
		t.Error("Expected error for invalid JPEG")
	}
}

func TestPoseEstimator_NoFace(t *testing.T) {
	est, err := NewPoseEstimator(testConfig(t))
	if err != nil {
		t.Fatalf("NewPoseEstimator failed: %v", err)
	}
	defer est.Close()

	angles, err := est.EstimatePose(createSolidJPEG(320, 240, color.RGBA{0, 0, 255, 255}))
	if err != nil {
		t.Fatalf("EstimatePose failed: %v", err)
	}
	if angles != nil {
		t.Errorf("Expected no angles for a solid image, got %+v", angles)
	}
}

func TestPupilLocator_NoFace(t *testing.T) {
	loc, err := NewPupilLocator(testConfig(t), DefaultPupilConfig())
	if err != nil {
		t.Fatalf("NewPupilLocator failed: %v", err)
	}
	defer loc.Close()

	sample, err := loc.LocatePupils(createSolidJPEG(320, 240, color.RGBA{100, 100, 100, 255}))
	if err != nil {
		t.Fatalf("LocatePupils failed: %v", err)
	}
	if sample != nil {
		t.Errorf("Expected no sample, got %+v", sample)
	}
}

func TestYuNetConcurrency(t *testing.T) {
	detector, err := NewYuNet(testConfig(t))
	if err != nil {
		t.Fatalf("NewYuNet failed: %v", err)
	}
	defer detector.Close()

	frame := createSolidJPEG(320, 240, color.RGBA{100, 100, 100, 255})

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func() {
			if _, err := detector.Detect(frame); err != nil {
				t.Errorf("Concurrent detection failed: %v", err)
			}
			done <- true
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}

// Helper functions

func findModelPath(name string) string {
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; dir != "/"; dir = filepath.Dir(dir) {
			modelPath := filepath.Join(dir, "models", name)
			if _, err := os.Stat(modelPath); err == nil {
				return modelPath
			}
		}
	}
	return ""
}

func createSolidJPEG(width, height int, c color.Color) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}

	var buf bytes.Buffer
	jpeg.Encode(&buf, img, nil)
	return buf.Bytes()
}
