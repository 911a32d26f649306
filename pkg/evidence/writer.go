// Package evidence persists snapshots of sustained violations as PNG files.
// Writes happen on a background goroutine so the monitoring loop never
// blocks on disk.
package evidence

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-proctor/pkg/monitor"
)

// DefaultCapacity is the default number of pending captures
const DefaultCapacity = 32

// ErrQueueFull is returned when a capture cannot be queued
var ErrQueueFull = errors.New("evidence: queue full")

// ErrClosed is returned when submitting to a closed writer
var ErrClosed = errors.New("evidence: writer closed")

// Saved reports the outcome of one capture
type Saved struct {
	Event monitor.CaptureEvent
	File  string // Base name
	Path  string // Full path, empty on failure
	Err   error
}

// Writer writes capture snapshots under a directory, one subdirectory per
// session
type Writer struct {
	dir      string
	logger   *slog.Logger
	annotate bool
	onSaved  func(Saved)

	queue  chan monitor.CaptureEvent
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
	start  sync.Once
}

// NewWriter creates a writer rooted at dir
func NewWriter(dir string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		dir:      dir,
		logger:   logger.With("component", "evidence"),
		annotate: true,
		queue:    make(chan monitor.CaptureEvent, DefaultCapacity),
	}
}

// SetAnnotate controls whether the label and time are drawn onto snapshots
func (w *Writer) SetAnnotate(on bool) {
	w.annotate = on
}

// OnSaved sets a callback invoked from the writer goroutine after each
// capture. Call before Start.
func (w *Writer) OnSaved(fn func(Saved)) {
	w.onSaved = fn
}

// Dir returns the root directory
func (w *Writer) Dir() string {
	return w.dir
}

// Start runs the background writer until ctx ends or Close is called
func (w *Writer) Start(ctx context.Context) {
	w.start.Do(func() {
		w.wg.Add(1)
		go w.run(ctx)
	})
}

func (w *Writer) run(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return
		case ev, ok := <-w.queue:
			if !ok {
				return
			}
			w.handle(ev)
		}
	}
}

func (w *Writer) drain() {
	for {
		select {
		case ev, ok := <-w.queue:
			if !ok {
				return
			}
			w.handle(ev)
		default:
			return
		}
	}
}

// Submit queues a capture without blocking
func (w *Writer) Submit(ev monitor.CaptureEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	select {
	case w.queue <- ev:
		return nil
	default:
		w.logger.Warn("capture dropped, queue full", "session_id", ev.SessionID, "label", ev.Label)
		return ErrQueueFull
	}
}

// Pending returns the number of queued captures
func (w *Writer) Pending() int {
	return len(w.queue)
}

// Close stops accepting captures and waits for queued ones to be written
func (w *Writer) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *Writer) handle(ev monitor.CaptureEvent) {
	saved := Saved{Event: ev, File: FileName(ev)}
	path, err := w.Write(ev)
	if err != nil {
		saved.Err = err
		w.logger.Error("capture write failed", "session_id", ev.SessionID, "file", saved.File, "error", err)
	} else {
		saved.Path = path
		w.logger.Info("evidence saved", "session_id", ev.SessionID, "file", path)
	}
	if w.onSaved != nil {
		w.onSaved(saved)
	}
}

// Write synchronously decodes the capture frame and writes it as PNG
func (w *Writer) Write(ev monitor.CaptureEvent) (string, error) {
	if len(ev.Frame.Data) == 0 {
		return "", fmt.Errorf("capture has no frame")
	}

	img, err := gocv.IMDecode(ev.Frame.Data, gocv.IMReadColor)
	if err != nil {
		return "", fmt.Errorf("decode frame: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return "", fmt.Errorf("decode frame: empty image")
	}

	if w.annotate {
		stamp := fmt.Sprintf("%s: %s %s", ev.Modality, ev.Label, ev.At.Format("15:04:05"))
		gocv.PutText(&img, stamp, image.Pt(10, 30), gocv.FontHersheySimplex, 0.7, color.RGBA{255, 0, 0, 0}, 2)
	}

	dir := filepath.Join(w.dir, sanitize(ev.SessionID))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create evidence dir: %w", err)
	}
	path := filepath.Join(dir, FileName(ev))
	if ok := gocv.IMWrite(path, img); !ok {
		return "", fmt.Errorf("write %s failed", path)
	}
	return path, nil
}

// FileName returns the snapshot name: head_<label>_<unix>.png,
// eye_<label>_<unix>.png or mobile_detected_<unix>.png
func FileName(ev monitor.CaptureEvent) string {
	unix := ev.At.Unix()
	if ev.Modality == monitor.ModalityDevice {
		return fmt.Sprintf("mobile_detected_%d.png", unix)
	}
	return fmt.Sprintf("%s_%s_%d.png", ev.Modality.Short(), sanitize(ev.Label), unix)
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		}
		return '_'
	}, s)
}

// Retention removes session directories older than maxAge. It returns the
// number of directories removed.
func Retention(dir string, maxAge time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || now.Sub(info.ModTime()) < maxAge {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
