package camera

import (
	"sync"
	"time"

	"github.com/teslashibe/go-proctor/pkg/monitor"
)

// Stats are mailbox counters
type Stats struct {
	Published   uint64    `json:"published"`
	Overwritten uint64    `json:"overwritten"` // Frames replaced before any reader saw them
	LastSeq     uint64    `json:"last_seq"`
	LastAt      time.Time `json:"last_at"`
}

// Latest is a single-slot mailbox. Publish overwrites; Latest never
// blocks and never consumes, so several readers may share one producer.
type Latest struct {
	mu    sync.Mutex
	frame monitor.FrameSample
	ok    bool
	read  bool // Current frame has been returned at least once

	stats Stats
}

// NewLatest creates an empty mailbox
func NewLatest() *Latest {
	return &Latest{}
}

// Publish stores a new frame and returns it with its assigned sequence
// number. The data slice must not be modified afterward.
func (l *Latest) Publish(jpeg []byte, capturedAt time.Time) monitor.FrameSample {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ok && !l.read {
		l.stats.Overwritten++
	}
	l.stats.Published++
	l.stats.LastSeq++
	l.stats.LastAt = capturedAt

	l.frame = monitor.FrameSample{
		Seq:        l.stats.LastSeq,
		Data:       jpeg,
		CapturedAt: capturedAt,
	}
	l.ok = true
	l.read = false
	return l.frame
}

// Latest implements monitor.FrameSource
func (l *Latest) Latest() (monitor.FrameSample, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ok {
		l.read = true
	}
	return l.frame, l.ok
}

// Stats returns a snapshot of the counters
func (l *Latest) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}
