package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-proctor/internal/log"
)

// Verdict is the fused outcome of one cycle
type Verdict struct {
	SessionID string          `json:"session_id"`
	Seq       uint64          `json:"seq"`
	At        time.Time       `json:"at"`
	Head      HeadPoseResult  `json:"head"`
	Gaze      Direction       `json:"-"`
	GazeLabel string          `json:"gaze"`
	Device    DeviceVerdict   `json:"device"`
	Activity  []ActivityEntry `json:"activity,omitempty"` // Edges counted this cycle
	Captures  []CaptureEvent  `json:"captures,omitempty"`
	Counts    Counts          `json:"counts"`
	Metrics   Metrics         `json:"-"` // Read-only snapshot after this cycle
	Errors    []string        `json:"errors,omitempty"`
}

// DeviceVerdict is the device modality outcome of one cycle
type DeviceVerdict struct {
	Detected   bool    `json:"detected"`   // Debounced
	Raw        bool    `json:"raw"`        // This frame only
	Confidence float64 `json:"confidence"` // Highest accepted confidence this frame
	Ratio      float64 `json:"ratio"`      // Share of positive frames in the window
}

// Orchestrator drives one session's fusion cycles. Detector calls for a
// cycle run concurrently on a bounded pool; all state updates happen on
// the caller's goroutine after every call has returned.
type Orchestrator struct {
	cfg       Config
	state     *State
	detectors Detectors
	pool      *pool
	logger    *slog.Logger

	warned [3]bool
}

// NewOrchestrator creates an orchestrator for state. Disabled modalities
// are reported once here and produce neutral defaults for every cycle.
func NewOrchestrator(cfg Config, state *State, detectors Detectors) *Orchestrator {
	o := &Orchestrator{
		cfg:       cfg,
		state:     state,
		detectors: detectors,
		pool:      newPool(cfg.Workers),
		logger:    log.With("component", "monitor", "session", state.ID),
	}

	if detectors.Pose == nil {
		o.warnOnce(ModalityHeadPose, ErrDetectorUnavailable)
	}
	if detectors.Pupils == nil {
		o.warnOnce(ModalityGaze, ErrDetectorUnavailable)
	}
	if detectors.Objects == nil {
		o.warnOnce(ModalityDevice, ErrDetectorUnavailable)
	}
	return o
}

// SetLogger replaces the orchestrator's logger
func (o *Orchestrator) SetLogger(l *slog.Logger) {
	o.logger = l
}

// State returns the session state. It must only be read from the
// goroutine driving Cycle, including inside the Run callback.
func (o *Orchestrator) State() *State {
	return o.state
}

// Close stops the worker pool
func (o *Orchestrator) Close() {
	o.pool.close()
}

// Run processes each new frame from src until ctx is cancelled. Frames
// already processed are skipped; the loop idles while no new frame exists.
// emit is called synchronously with every verdict.
func (o *Orchestrator) Run(ctx context.Context, src FrameSource, emit func(Verdict)) error {
	idle := time.NewTicker(o.cfg.IdleInterval)
	defer idle.Stop()

	var (
		lastSeq uint64
		seen    bool
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		frame, ok := src.Latest()
		if !ok || (seen && frame.Seq == lastSeq) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-idle.C:
			}
			continue
		}
		seen = true
		lastSeq = frame.Seq

		v := o.Cycle(frame)
		if emit != nil {
			emit(v)
		}
	}
}

type cycleInputs struct {
	pose    *Angles
	gaze    *GazeSample
	objects []ObjectDetection
	errs    [3]error
}

// Cycle runs the detectors on one frame and fuses the results
func (o *Orchestrator) Cycle(frame FrameSample) Verdict {
	in := o.detect(frame)
	return o.fuse(frame, in)
}

func (o *Orchestrator) detect(frame FrameSample) cycleInputs {
	var (
		in cycleInputs
		wg sync.WaitGroup
	)

	if o.detectors.Pose != nil {
		wg.Add(1)
		o.pool.submit(func() {
			defer wg.Done()
			in.errs[ModalityHeadPose] = guard(ModalityHeadPose, func() (err error) {
				in.pose, err = o.detectors.Pose.EstimatePose(frame.Data)
				return err
			})
		})
	}
	if o.detectors.Pupils != nil {
		wg.Add(1)
		o.pool.submit(func() {
			defer wg.Done()
			in.errs[ModalityGaze] = guard(ModalityGaze, func() (err error) {
				in.gaze, err = o.detectors.Pupils.LocatePupils(frame.Data)
				return err
			})
		})
	}
	if o.detectors.Objects != nil {
		wg.Add(1)
		o.pool.submit(func() {
			defer wg.Done()
			in.errs[ModalityDevice] = guard(ModalityDevice, func() (err error) {
				in.objects, err = o.detectors.Objects.DetectObjects(frame.Data)
				return err
			})
		})
	}

	wg.Wait()
	return in
}

func (o *Orchestrator) fuse(frame FrameSample, in cycleInputs) Verdict {
	s := o.state
	at := frame.CapturedAt
	s.cycles++

	v := Verdict{
		SessionID: s.ID,
		Seq:       frame.Seq,
		At:        at,
	}
	for m, err := range in.errs {
		if err != nil {
			o.warnOnce(Modality(m), err)
			v.Errors = append(v.Errors, err.Error())
		}
	}

	// Head pose
	if o.detectors.Pose == nil || in.errs[ModalityHeadPose] != nil {
		v.Head = s.head.fallbackResult()
	} else {
		v.Head = s.head.Update(in.pose, at)
		if v.Head.Calibrated {
			o.logger.Info("baseline captured",
				"pitch", v.Head.Smoothed.Pitch,
				"yaw", v.Head.Smoothed.Yaw,
				"roll", v.Head.Smoothed.Roll)
		}
	}
	if v.Head.HasVerdict() && v.Head.Phase == PhaseTracking {
		o.observe(&v, ModalityHeadPose, v.Head.Direction, frame)
	}

	// Gaze
	v.Gaze = DirectionCenter
	if in.errs[ModalityGaze] == nil {
		v.Gaze = ClassifyGaze(o.cfg, in.gaze)
	}
	s.gaze = v.Gaze
	v.GazeLabel = v.Gaze.Label(ModalityGaze)
	o.observe(&v, ModalityGaze, v.Gaze, frame)

	// Device
	if o.detectors.Objects != nil && in.errs[ModalityDevice] == nil {
		sample := FilterDevices(o.cfg, in.objects)
		v.Device = DeviceVerdict{
			Detected:   s.device.Push(sample.Present),
			Raw:        sample.Present,
			Confidence: sample.Confidence,
			Ratio:      s.device.Ratio(),
		}
	}
	if e, ok := s.events.ObserveDevice(v.Device.Detected, at); ok {
		v.Activity = append(v.Activity, e)
		o.logger.Info("device detected", "seq", frame.Seq, "confidence", v.Device.Confidence)
	}
	if s.timers.Tick(ModalityDevice, !v.Device.Detected, at) {
		v.Captures = append(v.Captures, o.capture(ModalityDevice, "detected", frame))
	}

	v.Counts = s.metrics.Counts()
	v.Metrics = s.metrics.Snapshot()
	return v
}

// observe runs edge counting and the violation timer for a directional
// modality
func (o *Orchestrator) observe(v *Verdict, m Modality, d Direction, frame FrameSample) {
	at := frame.CapturedAt
	if e, ok := o.state.events.Observe(m, d, at); ok {
		v.Activity = append(v.Activity, e)
		o.logger.Debug("activity", "type", m.String(), "direction", e.Direction, "seq", frame.Seq)
	}
	if o.state.timers.Tick(m, d.IsNeutral(), at) {
		v.Captures = append(v.Captures, o.capture(m, d.Label(m), frame))
	}
}

func (o *Orchestrator) capture(m Modality, label string, frame FrameSample) CaptureEvent {
	o.logger.Info("sustained violation", "type", m.String(), "label", label, "seq", frame.Seq)
	return CaptureEvent{
		SessionID: o.state.ID,
		Modality:  m,
		Label:     label,
		At:        frame.CapturedAt,
		Frame:     frame,
	}
}

func (o *Orchestrator) warnOnce(m Modality, err error) {
	if o.warned[m] {
		o.logger.Debug("detector failure", "modality", m.String(), "error", err)
		return
	}
	o.warned[m] = true
	if errors.Is(err, ErrDetectorUnavailable) {
		o.logger.Warn("detector disabled, using neutral default", "modality", m.String())
		return
	}
	o.logger.Warn("detector failed, using neutral default", "modality", m.String(), "error", err)
}

// FilterDevices thresholds raw detections into the per-frame device signal
func FilterDevices(cfg Config, objects []ObjectDetection) DeviceSample {
	var s DeviceSample
	for _, obj := range objects {
		if obj.ClassID != cfg.DeviceClassID || obj.Confidence < cfg.DeviceConfidence {
			continue
		}
		s.Present = true
		if obj.Confidence > s.Confidence {
			s.Confidence = obj.Confidence
		}
	}
	return s
}
