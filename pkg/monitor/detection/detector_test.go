package detection

import (
	"testing"
)

func TestFace_Center(t *testing.T) {
	tests := []struct {
		name    string
		face    Face
		expectX float64
		expectY float64
	}{
		{
			name:    "center of image",
			face:    Face{X: 0.25, Y: 0.25, W: 0.5, H: 0.5},
			expectX: 0.5,
			expectY: 0.5,
		},
		{
			name:    "top left corner",
			face:    Face{X: 0, Y: 0, W: 0.2, H: 0.2},
			expectX: 0.1,
			expectY: 0.1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			x, y := tc.face.Center()
			if x != tc.expectX || y != tc.expectY {
				t.Errorf("Center: got (%.2f, %.2f), want (%.2f, %.2f)", x, y, tc.expectX, tc.expectY)
			}
		})
	}
}

func TestSelectPrimary(t *testing.T) {
	tests := []struct {
		name   string
		faces  []Face
		expect int // Index of expected face, -1 for nil
	}{
		{
			name:   "no faces",
			faces:  nil,
			expect: -1,
		},
		{
			name:   "single face",
			faces:  []Face{{W: 0.1, H: 0.1, Confidence: 0.6}},
			expect: 0,
		},
		{
			name: "large close face beats small background face",
			faces: []Face{
				{W: 0.05, H: 0.05, Confidence: 0.92},
				{W: 0.4, H: 0.5, Confidence: 0.88},
			},
			expect: 1,
		},
		{
			name: "much more confident face wins at similar size",
			faces: []Face{
				{W: 0.3, H: 0.3, Confidence: 0.55},
				{W: 0.28, H: 0.3, Confidence: 0.95},
			},
			expect: 1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := SelectPrimary(tc.faces)
			if tc.expect < 0 {
				if got != nil {
					t.Errorf("expected nil, got %+v", got)
				}
				return
			}
			if got != &tc.faces[tc.expect] {
				t.Errorf("selected %+v, want index %d", got, tc.expect)
			}
		})
	}
}
