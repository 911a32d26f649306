package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-proctor/internal/log"
	"github.com/teslashibe/go-proctor/internal/timeutil"
)

// ErrNoCamera is returned when no configured device could be opened.
var ErrNoCamera = errors.New("camera: no device available")

// State is the capture lifecycle
type State string

const (
	StateIdle        State = "idle"
	StateStreaming   State = "streaming"
	StateRestarting  State = "restarting"
	StateUnavailable State = "unavailable" // Placeholder frames only
	StateStopped     State = "stopped"
)

// Device is an opened camera that yields JPEG frames
type Device interface {
	// Read blocks for the next frame. ok is false on a failed read.
	Read() (jpeg []byte, ok bool)
	Close() error
}

// Opener opens a device by index, or by URL when the config sets one
type Opener func(cfg Config, index int) (Device, error)

// Capture continuously reads the camera into a Latest mailbox
type Capture struct {
	cfg    Config
	sink   *Latest
	open   Opener
	clock  timeutil.Clock
	logger *slog.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCapture creates a capture backed by OpenCV
func NewCapture(cfg Config, sink *Latest) *Capture {
	return &Capture{
		cfg:    cfg,
		sink:   sink,
		open:   OpenCV,
		clock:  timeutil.RealClock{},
		logger: log.With("component", "camera"),
		state:  StateIdle,
	}
}

// SetOpener replaces the device opener
func (c *Capture) SetOpener(o Opener) {
	c.open = o
}

// SetClock replaces the clock
func (c *Capture) SetClock(clock timeutil.Clock) {
	c.clock = clock
}

// State returns the current lifecycle state
func (c *Capture) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Capture) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != s {
		c.logger.Debug("camera state", "from", c.state, "to", s)
	}
	c.state = s
}

// Start launches the capture loop. It returns ErrNoCamera if no device
// opens; a placeholder frame is published in that case so consumers still
// have a frame.
func (c *Capture) Start(ctx context.Context) error {
	dev, index, err := c.openAny()
	if err != nil {
		c.fallback("no camera could be opened", err)
		return err
	}
	c.logger.Info("camera opened", "device", index, "width", c.cfg.Width, "height", c.cfg.Height)

	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	c.setState(StateStreaming)
	go c.run(ctx, dev, index)
	return nil
}

// Stop ends the capture loop and releases the device
func (c *Capture) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	c.setState(StateStopped)
}

func (c *Capture) openAny() (Device, int, error) {
	indices := append([]int{c.cfg.Device}, c.cfg.FallbackDevices...)
	var errs []error
	for _, idx := range indices {
		dev, err := c.open(c.cfg, idx)
		if err == nil {
			return dev, idx, nil
		}
		c.logger.Warn("camera open failed", "device", idx, "error", err)
		errs = append(errs, err)
		if c.cfg.URL != "" {
			break
		}
	}
	return nil, -1, fmt.Errorf("%w: %w", ErrNoCamera, errors.Join(errs...))
}

func (c *Capture) run(ctx context.Context, dev Device, index int) {
	defer close(c.done)
	defer func() {
		if dev != nil {
			dev.Close()
		}
	}()

	policy := newRestartPolicy(c.cfg)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		data, ok := dev.Read()
		now := c.clock.Now()
		if ok {
			c.sink.Publish(data, now)
			policy.success(now)
			continue
		}

		switch policy.failure(now) {
		case actionRestart:
			c.setState(StateRestarting)
			c.logger.Warn("camera read failed, restarting",
				"attempt", policy.attempts, "max", c.cfg.MaxRestarts)
			dev.Close()
			dev = nil
			c.clock.Sleep(c.cfg.ReopenDelay)

			reopened, err := c.open(c.cfg, index)
			if err != nil {
				c.fallback("failed to reopen camera", err)
				return
			}
			dev = reopened
			c.setState(StateStreaming)
		case actionGiveUp:
			c.fallback("exceeded maximum camera restart attempts", nil)
			return
		default:
			c.logger.Debug("camera read failed")
		}
		c.clock.Sleep(c.cfg.RetryInterval)
	}
}

// fallback publishes the placeholder frame and marks the camera unavailable
func (c *Capture) fallback(reason string, err error) {
	c.setState(StateUnavailable)
	c.logger.Warn("using placeholder frames", "reason", reason, "error", err)

	frame, perr := Placeholder(c.cfg.Width, c.cfg.Height)
	if perr != nil {
		c.logger.Error("placeholder frame failed", "error", perr)
		return
	}
	c.sink.Publish(frame, c.clock.Now())
}
