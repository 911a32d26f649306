package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type poseFunc func([]byte) (*Angles, error)

func (f poseFunc) EstimatePose(b []byte) (*Angles, error) { return f(b) }

type pupilFunc func([]byte) (*GazeSample, error)

func (f pupilFunc) LocatePupils(b []byte) (*GazeSample, error) { return f(b) }

type objectFunc func([]byte) ([]ObjectDetection, error)

func (f objectFunc) DetectObjects(b []byte) ([]ObjectDetection, error) { return f(b) }

// scriptedPose returns whatever angles were last set
type scriptedPose struct {
	mu     sync.Mutex
	angles *Angles
}

func (p *scriptedPose) set(a *Angles) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.angles = a
}

func (p *scriptedPose) EstimatePose([]byte) (*Angles, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.angles == nil {
		return nil, nil
	}
	a := *p.angles
	return &a, nil
}

func frameAt(seq uint64, at time.Time) FrameSample {
	return FrameSample{Seq: seq, Data: []byte{0xff, 0xd8}, CapturedAt: at}
}

func noGaze() PupilLocator {
	return pupilFunc(func([]byte) (*GazeSample, error) { return nil, nil })
}

func noObjects() ObjectDetector {
	return objectFunc(func([]byte) ([]ObjectDetection, error) { return nil, nil })
}

func TestOrchestrator_EndToEnd(t *testing.T) {
	cfg := DefaultConfig()
	t0 := time.Unix(1700000000, 0)
	pose := &scriptedPose{angles: &Angles{}}

	state := NewState("e2e", t0, cfg)
	o := NewOrchestrator(cfg, state, Detectors{Pose: pose, Pupils: noGaze(), Objects: noObjects()})
	defer o.Close()

	var (
		calibratedAt time.Duration = -1
		firstRight   time.Duration = -1
		fires        []time.Duration
		rightEdges   int
	)

	for tick := 0; tick <= 100; tick++ {
		offset := time.Duration(tick) * 100 * time.Millisecond
		if offset >= 6*time.Second {
			pose.set(&Angles{Yaw: 40})
		}

		v := o.Cycle(frameAt(uint64(tick+1), t0.Add(offset)))

		if v.Head.Calibrated {
			calibratedAt = offset
			assert.Equal(t, Angles{}, v.Head.Smoothed)
		}
		if firstRight < 0 && v.Head.Direction == DirectionRight {
			firstRight = offset
		}
		if firstRight >= 0 {
			assert.Equal(t, DirectionRight, v.Head.Direction, "direction at %v", offset)
		}
		for _, e := range v.Activity {
			if e.Type == ModalityHeadPose && e.Direction == "Looking Right" {
				rightEdges++
			}
		}
		for _, c := range v.Captures {
			require.Equal(t, ModalityHeadPose, c.Modality)
			assert.Equal(t, "Looking Right", c.Label)
			assert.Equal(t, "e2e", c.SessionID)
			fires = append(fires, offset)
		}
	}

	assert.Equal(t, 5*time.Second, calibratedAt)

	// Ten-sample smoothing: the mean first clears the 20 degree band on the
	// sixth frame after the jump.
	assert.Equal(t, 6500*time.Millisecond, firstRight)
	assert.Equal(t, 1, rightEdges)
	assert.Equal(t, 1, state.Metrics().HeadPoseEvents[DirectionRight])

	require.NotEmpty(t, fires)
	assert.Equal(t, 9500*time.Millisecond, fires[0])
	assert.Equal(t, []time.Duration{9500 * time.Millisecond}, fires)
}

func TestOrchestrator_FacelessCyclesKeepViolation(t *testing.T) {
	cfg := DefaultConfig()
	t0 := time.Unix(1700000000, 0)
	pose := &scriptedPose{angles: &Angles{}}

	state := NewState("gap", t0, cfg)
	o := NewOrchestrator(cfg, state, Detectors{Pose: pose, Pupils: noGaze(), Objects: noObjects()})
	defer o.Close()

	var (
		fires      []time.Duration
		rightEdges int
		faceless   int
	)

	for tick := 0; tick <= 100; tick++ {
		offset := time.Duration(tick) * 100 * time.Millisecond
		switch {
		case offset >= 7500*time.Millisecond && offset < 8200*time.Millisecond:
			pose.set(nil)
		case offset >= 6*time.Second:
			pose.set(&Angles{Yaw: 40})
		}

		v := o.Cycle(frameAt(uint64(tick+1), t0.Add(offset)))

		if !v.Head.FaceFound {
			faceless++
			assert.False(t, v.Head.HasVerdict(), "verdict at %v", offset)
			assert.Empty(t, v.Captures, "capture at %v", offset)
		}
		for _, e := range v.Activity {
			if e.Type == ModalityHeadPose {
				assert.Equal(t, "Looking Right", e.Direction, "edge at %v", offset)
				rightEdges++
			}
		}
		for _, c := range v.Captures {
			require.Equal(t, ModalityHeadPose, c.Modality)
			fires = append(fires, offset)
		}
	}

	assert.Equal(t, 7, faceless)
	assert.Equal(t, 1, rightEdges)
	assert.Equal(t, 1, state.Metrics().HeadPoseEvents[DirectionRight])
	assert.Equal(t, 0, state.Metrics().HeadPoseEvents[DirectionCenter])

	// Same fire times as an uninterrupted run
	assert.Equal(t, []time.Duration{9500 * time.Millisecond}, fires)
}

func TestOrchestrator_DetectorFailureIsolated(t *testing.T) {
	cfg := DefaultConfig()
	t0 := time.Unix(1700000000, 0)

	boom := errors.New("model crashed")
	det := Detectors{
		Pose: poseFunc(func([]byte) (*Angles, error) { return nil, boom }),
		Pupils: pupilFunc(func([]byte) (*GazeSample, error) {
			return &GazeSample{Left: eye(2, 4), Right: eye(3, 4)}, nil
		}),
		Objects: objectFunc(func([]byte) ([]ObjectDetection, error) {
			panic("index out of range")
		}),
	}

	o := NewOrchestrator(cfg, NewState("fail", t0, cfg), det)
	defer o.Close()

	v := o.Cycle(frameAt(1, t0.Add(6*time.Second)))

	assert.True(t, v.Head.Fallback)
	assert.Equal(t, DirectionCenter, v.Head.Direction)
	assert.Equal(t, DirectionLeft, v.Gaze)
	assert.False(t, v.Device.Detected)
	assert.Len(t, v.Errors, 2)
	assert.Equal(t, 1, v.Counts.EyeMovement[DirectionLeft])
}

func TestOrchestrator_DisabledModalities(t *testing.T) {
	cfg := DefaultConfig()
	t0 := time.Unix(1700000000, 0)

	o := NewOrchestrator(cfg, NewState("off", t0, cfg), Detectors{})
	defer o.Close()

	for i := 0; i < 5; i++ {
		v := o.Cycle(frameAt(uint64(i+1), t0.Add(time.Duration(i)*time.Second)))
		assert.Equal(t, "Looking at Screen", v.Head.Label)
		assert.Equal(t, "Looking Center", v.GazeLabel)
		assert.False(t, v.Device.Detected)
		assert.Empty(t, v.Errors)
		assert.Empty(t, v.Activity)
	}
	assert.Equal(t, PhaseCalibrating, o.State().Phase())
}

func TestOrchestrator_DeviceDebounced(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ViolationThreshold = time.Second
	t0 := time.Unix(1700000000, 0)

	var present atomic.Bool
	det := Detectors{
		Objects: objectFunc(func([]byte) ([]ObjectDetection, error) {
			if !present.Load() {
				return []ObjectDetection{{ClassID: 67, Confidence: 0.5}}, nil
			}
			return []ObjectDetection{
				{ClassID: 0, ClassName: "person", Confidence: 0.99},
				{ClassID: 67, ClassName: "cell phone", Confidence: 0.9},
			}, nil
		}),
	}
	o := NewOrchestrator(cfg, NewState("dev", t0, cfg), det)
	defer o.Close()

	// Raw: F F T T T T ... -> stable turns true on the third positive
	pattern := []bool{false, false, true, true, true, true, true, true, true, true, true, true, true, true, true, true}
	var detectedAt, capturedAt []int
	for i, p := range pattern {
		present.Store(p)
		v := o.Cycle(frameAt(uint64(i+1), t0.Add(time.Duration(i)*100*time.Millisecond)))
		for _, e := range v.Activity {
			if e.Type == ModalityDevice {
				detectedAt = append(detectedAt, i)
			}
		}
		if len(v.Captures) > 0 {
			assert.Equal(t, "detected", v.Captures[0].Label)
			capturedAt = append(capturedAt, i)
		}
	}

	assert.Equal(t, []int{4}, detectedAt)
	assert.Equal(t, []int{14}, capturedAt)
	assert.Equal(t, 1, o.State().Metrics().MobileDetectionCount)
}

func TestOrchestrator_DetectorsRunConcurrently(t *testing.T) {
	cfg := DefaultConfig()
	t0 := time.Unix(1700000000, 0)

	var (
		arrived *sync.WaitGroup
		running atomic.Int32
		peak    atomic.Int32
	)
	barrier := func() error {
		wg := arrived
		n := running.Add(1)
		defer running.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		wg.Done()
		done := make(chan struct{})
		go func() { wg.Wait(); close(done) }()
		select {
		case <-done:
			return nil
		case <-time.After(2 * time.Second):
			return errors.New("detectors did not overlap")
		}
	}

	det := Detectors{
		Pose:    poseFunc(func([]byte) (*Angles, error) { return nil, barrier() }),
		Pupils:  pupilFunc(func([]byte) (*GazeSample, error) { return nil, barrier() }),
		Objects: objectFunc(func([]byte) ([]ObjectDetection, error) { return nil, barrier() }),
	}
	o := NewOrchestrator(cfg, NewState("conc", t0, cfg), det)
	defer o.Close()

	for i := 0; i < 3; i++ {
		arrived = &sync.WaitGroup{}
		arrived.Add(3)
		v := o.Cycle(frameAt(uint64(i+1), t0))
		require.Empty(t, v.Errors)
	}
	assert.Equal(t, int32(3), peak.Load())
}

// latestFrame is a FrameSource holding one frame
type latestFrame struct {
	mu    sync.Mutex
	frame FrameSample
	ok    bool
}

func (l *latestFrame) put(f FrameSample) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frame, l.ok = f, true
}

func (l *latestFrame) Latest() (FrameSample, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frame, l.ok
}

func TestOrchestrator_RunSkipsRepeatedFrames(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IdleInterval = time.Millisecond
	t0 := time.Unix(1700000000, 0)

	o := NewOrchestrator(cfg, NewState("run", t0, cfg), Detectors{})
	defer o.Close()

	src := &latestFrame{}
	seen := make(chan uint64, 16)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- o.Run(ctx, src, func(v Verdict) { seen <- v.Seq })
	}()

	src.put(frameAt(1, t0))
	require.Equal(t, uint64(1), <-seen)

	time.Sleep(20 * time.Millisecond)
	src.put(frameAt(2, t0.Add(time.Second)))
	require.Equal(t, uint64(2), <-seen)

	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)
	assert.Empty(t, seen, "a frame was processed twice")
	assert.Equal(t, uint64(2), o.State().Cycles())
}
