package detection

import (
	"log/slog"

	"github.com/teslashibe/go-proctor/internal/log"
	"github.com/teslashibe/go-proctor/pkg/monitor"
)

// Models names the ONNX files the detectors load
type Models struct {
	Face   string // YuNet face and landmark model
	Object string // YOLOv8 object model
}

// DefaultModels returns the bundled model paths
func DefaultModels() Models {
	return Models{
		Face:   DefaultConfig().ModelPath,
		Object: DefaultYOLOConfig().ModelPath,
	}
}

// Load builds one detector set. A model that fails to load leaves its
// modality nil so the monitor falls back to neutral defaults. The returned
// function releases every loaded network.
func Load(m Models, logger *slog.Logger) (monitor.Detectors, func()) {
	if logger == nil {
		logger = log.L()
	}
	logger = logger.With("component", "detection")

	var (
		det     monitor.Detectors
		closers []func() error
	)

	faceCfg := DefaultConfig()
	faceCfg.ModelPath = m.Face

	if pose, err := NewPoseEstimator(faceCfg); err != nil {
		logger.Warn("head pose disabled", "model", m.Face, "error", err)
	} else {
		det.Pose = pose
		closers = append(closers, pose.Close)
	}

	if pupils, err := NewPupilLocator(faceCfg, DefaultPupilConfig()); err != nil {
		logger.Warn("gaze disabled", "model", m.Face, "error", err)
	} else {
		det.Pupils = pupils
		closers = append(closers, pupils.Close)
	}

	yoloCfg := DefaultYOLOConfig()
	yoloCfg.ModelPath = m.Object
	if yolo, err := NewYOLO(yoloCfg); err != nil {
		logger.Warn("device detection disabled", "model", m.Object, "error", err)
	} else {
		det.Objects = yolo
		closers = append(closers, yolo.Close)
	}

	return det, func() {
		for _, c := range closers {
			c()
		}
	}
}

// Factory returns a per-session loader. Networks are not shared between
// sessions because a gocv Net is not safe for concurrent use.
func Factory(m Models, logger *slog.Logger) func() (monitor.Detectors, func()) {
	return func() (monitor.Detectors, func()) {
		return Load(m, logger)
	}
}
