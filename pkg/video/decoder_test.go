package video

import (
	"context"
	"errors"
	"image/color"
	"sync"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-proctor/pkg/monitor"
)

type stubDecoder struct {
	frame []byte
	err   error
}

func (d stubDecoder) Decode(context.Context, []byte) ([]byte, error) {
	return d.frame, d.err
}

type countingSink struct {
	mu sync.Mutex
	n  int
}

func (s *countingSink) Publish(jpeg []byte, at time.Time) monitor.FrameSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return monitor.FrameSample{Seq: uint64(s.n), Data: jpeg, CapturedAt: at}
}

func solidJPEG(t *testing.T, w, h int, c color.RGBA) []byte {
	t.Helper()
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(float64(c.B), float64(c.G), float64(c.R), 0), h, w, gocv.MatTypeCV8UC3)
	defer img.Close()
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		t.Fatalf("IMEncode: %v", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...)
}

func TestIsBlankFrame(t *testing.T) {
	tests := []struct {
		name  string
		frame func(t *testing.T) []byte
		want  bool
	}{
		{"garbage", func(*testing.T) []byte { return []byte{1, 2, 3} }, true},
		{"tiny", func(t *testing.T) []byte { return solidJPEG(t, 32, 32, color.RGBA{200, 50, 50, 255}) }, true},
		{"black", func(t *testing.T) []byte { return solidJPEG(t, 320, 240, color.RGBA{5, 5, 5, 255}) }, true},
		{"mid gray", func(t *testing.T) []byte { return solidJPEG(t, 320, 240, color.RGBA{128, 128, 128, 255}) }, true},
		{"colored", func(t *testing.T) []byte { return solidJPEG(t, 320, 240, color.RGBA{200, 120, 60, 255}) }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isBlankFrame(tt.frame(t)); got != tt.want {
				t.Errorf("isBlankFrame() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSource_DecodePublishes(t *testing.T) {
	sink := &countingSink{}
	s := NewSource("ws://unused", "candidate", sink)

	s.SetDecoder(stubDecoder{frame: solidJPEG(t, 320, 240, color.RGBA{200, 120, 60, 255})})
	s.decode([]byte{0}, time.Now())

	s.SetDecoder(stubDecoder{err: errors.New("no frame")})
	s.decode([]byte{0}, time.Now())

	s.SetDecoder(stubDecoder{frame: solidJPEG(t, 320, 240, color.RGBA{0, 0, 0, 255})})
	s.decode([]byte{0}, time.Now())

	if sink.n != 1 {
		t.Errorf("published %d frames, want 1", sink.n)
	}
	stats := s.Stats()
	if stats.FramesDecoded != 1 || stats.DecodeErrors != 1 {
		t.Errorf("stats = %+v", stats)
	}
}
