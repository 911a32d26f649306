package detection

import (
	"testing"
)

// tensor builds a feature-major YOLOv8 output with the given anchors
func tensor(anchors [][]float32) []float32 {
	const features = 84
	n := len(anchors)
	data := make([]float32, features*n)
	for i, a := range anchors {
		for f, v := range a {
			data[f*n+i] = v
		}
	}
	return data
}

func anchor(cx, cy, w, h float32, class int, score float32) []float32 {
	a := make([]float32, 84)
	a[0], a[1], a[2], a[3] = cx, cy, w, h
	a[4+class] = score
	return a
}

func TestParseYOLOv8(t *testing.T) {
	cfg := DefaultYOLOConfig()
	data := tensor([][]float32{
		anchor(320, 320, 64, 128, 67, 0.91),
		anchor(100, 100, 20, 20, 0, 0.2), // Below floor
		anchor(500, 200, 40, 40, 41, 0.7),
	})

	got := parseYOLOv8(data, 84, 3, cfg)
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2", len(got))
	}
	if got[0].classID != 67 || got[0].score != 0.91 {
		t.Errorf("first candidate = %+v", got[0])
	}
	if got[0].box.Min.X != 288 || got[0].box.Min.Y != 256 || got[0].box.Dx() != 64 || got[0].box.Dy() != 128 {
		t.Errorf("first box = %v", got[0].box)
	}
	if got[1].classID != 41 {
		t.Errorf("second class = %d, want 41", got[1].classID)
	}
}

func TestClassName(t *testing.T) {
	tests := []struct {
		id     int
		expect string
	}{
		{0, "person"},
		{67, "cell phone"},
		{79, "toothbrush"},
		{80, "unknown"},
		{-1, "unknown"},
	}

	for _, tc := range tests {
		if got := ClassName(tc.id); got != tc.expect {
			t.Errorf("ClassName(%d) = %q, want %q", tc.id, got, tc.expect)
		}
	}
	if len(COCOClasses) != 80 {
		t.Errorf("COCOClasses has %d entries, want 80", len(COCOClasses))
	}
}

func TestNewYOLO_InvalidPath(t *testing.T) {
	cfg := DefaultYOLOConfig()
	cfg.ModelPath = "/nonexistent/yolov8n.onnx"
	if _, err := NewYOLO(cfg); err == nil {
		t.Error("expected error for missing model")
	}
}
