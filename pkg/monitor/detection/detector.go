// Package detection adapts OpenCV models to the monitor's detector
// interfaces: YuNet landmarks for head pose and pupils, YOLOv8 for devices.
package detection

import (
	"math"
)

// Point is a pixel position
type Point struct {
	X, Y float64
}

// Dist returns the Euclidean distance to q
func (p Point) Dist(q Point) float64 {
	return math.Hypot(q.X-p.X, q.Y-p.Y)
}

// Landmarks are the five YuNet facial keypoints in pixels. Right and left
// are the subject's, so RightEye is on the image left in an unmirrored frame.
type Landmarks struct {
	RightEye   Point
	LeftEye    Point
	Nose       Point
	MouthRight Point
	MouthLeft  Point
}

// Face is one detected face
type Face struct {
	X, Y       float64 // Top-left corner (0-1 normalized)
	W, H       float64 // Width and height (0-1 normalized)
	Confidence float64
	Landmarks  Landmarks // Pixels
}

// Center returns the center point of the face box
func (f Face) Center() (x, y float64) {
	return f.X + f.W/2, f.Y + f.H/2
}

// Area returns the area of the bounding box
func (f Face) Area() float64 {
	return f.W * f.H
}

// Config holds face detector configuration
type Config struct {
	ModelPath        string  // Path to ONNX model
	ConfidenceThresh float64 // Minimum confidence (default 0.5)
	InputWidth       int     // Model input width
	InputHeight      int     // Model input height
}

// DefaultConfig returns production defaults for YuNet
func DefaultConfig() Config {
	return Config{
		ModelPath:        "models/face_detection_yunet.onnx",
		ConfidenceThresh: 0.5,
		InputWidth:       320,
		InputHeight:      320,
	}
}

// SelectPrimary picks the candidate's face from multiple detections.
// Score: confidence * 0.7 + relative area * 0.3, so the closest confident
// face wins over people in the background.
func SelectPrimary(faces []Face) *Face {
	if len(faces) == 0 {
		return nil
	}
	if len(faces) == 1 {
		return &faces[0]
	}

	maxArea := 0.0
	for _, f := range faces {
		if f.Area() > maxArea {
			maxArea = f.Area()
		}
	}
	if maxArea == 0 {
		maxArea = 1
	}

	bestScore := -1.0
	var best *Face
	for i := range faces {
		score := faces[i].Confidence*0.7 + (faces[i].Area()/maxArea)*0.3
		if score > bestScore {
			bestScore = score
			best = &faces[i]
		}
	}
	return best
}
