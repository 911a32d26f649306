package camera

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// cvDevice reads frames through gocv.VideoCapture
type cvDevice struct {
	vc      *gocv.VideoCapture
	img     gocv.Mat
	quality int
}

// OpenCV opens a camera index, or cfg.URL when set, and confirms it
// delivers a first frame.
func OpenCV(cfg Config, index int) (Device, error) {
	var source interface{} = index
	if cfg.URL != "" {
		source = cfg.URL
	}

	vc, err := gocv.OpenVideoCapture(source)
	if err != nil {
		return nil, fmt.Errorf("open %v: %w", source, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("open %v: not opened", source)
	}

	vc.Set(gocv.VideoCaptureBufferSize, float64(cfg.BufferSize))
	vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	vc.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))

	d := &cvDevice{vc: vc, img: gocv.NewMat(), quality: cfg.Quality}
	if _, ok := d.Read(); !ok {
		d.Close()
		return nil, fmt.Errorf("open %v: opened but could not read a frame", source)
	}
	return d, nil
}

func (d *cvDevice) Read() ([]byte, bool) {
	if ok := d.vc.Read(&d.img); !ok || d.img.Empty() {
		return nil, false
	}
	data, err := encodeJPEG(d.img, d.quality)
	if err != nil {
		return nil, false
	}
	return data, true
}

func (d *cvDevice) Close() error {
	d.img.Close()
	return d.vc.Close()
}

func encodeJPEG(img gocv.Mat, quality int) ([]byte, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{int(gocv.IMWriteJpegQuality), quality})
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()

	// The native buffer is freed on Close
	return append([]byte(nil), buf.GetBytes()...), nil
}

// Placeholder renders the "camera not available" frame shown when no
// device can be read.
func Placeholder(width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		width, height = 640, 480
	}
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(80, 80, 80, 0), height, width, gocv.MatTypeCV8UC3)
	defer img.Close()

	sx := float64(width) / 640
	sy := float64(height) / 480
	pt := func(x, y int) image.Point {
		return image.Pt(int(float64(x)*sx), int(float64(y)*sy))
	}

	white := color.RGBA{255, 255, 255, 0}
	light := color.RGBA{200, 200, 200, 0}
	gocv.PutText(&img, "Camera Not Available", pt(120, 200), gocv.FontHersheySimplex, sx, white, 2)
	gocv.PutText(&img, "Interview continues without monitoring", pt(80, 240), gocv.FontHersheySimplex, 0.7*sx, light, 1)
	gocv.PutText(&img, "Please proceed with your answers", pt(100, 280), gocv.FontHersheySimplex, 0.7*sx, light, 1)
	gocv.Rectangle(&img, image.Rectangle{Min: pt(40, 120), Max: pt(600, 360)}, color.RGBA{120, 120, 120, 0}, 2)

	return encodeJPEG(img, 85)
}
