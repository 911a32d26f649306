package video

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"gocv.io/x/gocv"
)

// Decoder turns an Annex-B H264 stream into the JPEG of its last frame
type Decoder interface {
	Decode(ctx context.Context, stream []byte) ([]byte, error)
}

// FFmpegDecoder pipes H264 through an ffmpeg subprocess
type FFmpegDecoder struct {
	Binary  string
	Quality int // mjpeg q:v, 1-31 (lower is better)
	Timeout time.Duration
}

// NewFFmpegDecoder creates a decoder using ffmpeg from PATH
func NewFFmpegDecoder() *FFmpegDecoder {
	return &FFmpegDecoder{
		Binary:  "ffmpeg",
		Quality: 3,
		Timeout: 500 * time.Millisecond,
	}
}

// Decode runs ffmpeg over stream and returns the final frame
func (d *FFmpegDecoder) Decode(ctx context.Context, stream []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.Binary,
		"-loglevel", "error",
		"-f", "h264",
		"-i", "pipe:0",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", fmt.Sprint(d.Quality),
		"pipe:1",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(stream)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}

	frame := lastJPEG(stdout.Bytes())
	if frame == nil {
		return nil, fmt.Errorf("ffmpeg: no frame decoded")
	}
	return frame, nil
}

// lastJPEG returns the final image of an mjpeg image2pipe stream
func lastJPEG(stream []byte) []byte {
	i := bytes.LastIndex(stream, []byte{0xFF, 0xD8, 0xFF})
	if i < 0 {
		return nil
	}
	return stream[i:]
}

// isBlankFrame reports frames the decoder emits before a clean keyframe:
// undecodable, tiny, near-black or uniform mid-gray
func isBlankFrame(jpeg []byte) bool {
	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return true
	}
	defer img.Close()
	if img.Empty() || img.Cols() < 100 || img.Rows() < 100 {
		return true
	}

	mean := img.Mean()
	b, g, r := mean.Val1, mean.Val2, mean.Val3
	if r < 30 && g < 30 && b < 30 {
		return true
	}
	spread := absf(r-g) + absf(g-b) + absf(r-b)
	return spread < 15 && r > 100 && r < 150
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
