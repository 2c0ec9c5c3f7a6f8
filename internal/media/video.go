package media

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// VideoSource wraps a video file and exposes sequential seek-and-capture.
// The underlying capture has a single playback position, so all seeks are
// serialized behind a mutex; concurrent seeks would race on that position.
type VideoSource struct {
	mu       sync.Mutex
	capture  *gocv.VideoCapture
	path     string
	frame    Frame
	fps      float64
	duration float64
	closed   bool
}

// OpenVideo opens a video file for frame extraction.
func OpenVideo(path string) (*VideoSource, error) {
	capture, err := gocv.OpenVideoCapture(path)
	if err != nil {
		return nil, fmt.Errorf("open video %s: %w", path, err)
	}

	v := &VideoSource{
		capture: capture,
		path:    path,
		frame: Frame{
			NaturalWidth:  int(capture.Get(gocv.VideoCaptureFrameWidth)),
			NaturalHeight: int(capture.Get(gocv.VideoCaptureFrameHeight)),
		},
		fps: capture.Get(gocv.VideoCaptureFPS),
	}
	if v.frame.IsZero() {
		capture.Close()
		return nil, fmt.Errorf("video %s reports no frame dimensions", path)
	}
	if v.fps > 0 {
		frames := capture.Get(gocv.VideoCaptureFrameCount)
		v.duration = frames / v.fps
	}
	return v, nil
}

// Frame returns the natural frame size of the video.
func (v *VideoSource) Frame() Frame {
	return v.frame
}

// Duration returns the video duration in seconds, or 0 when unknown.
func (v *VideoSource) Duration() float64 {
	return v.duration
}

// Path returns the source file path.
func (v *VideoSource) Path() string {
	return v.path
}

// SeekFrame positions the video at the given timestamp (seconds) and decodes
// one frame. Safe for use from multiple goroutines; calls are serialized.
func (v *VideoSource) SeekFrame(timestamp float64) (*image.RGBA, error) {
	if timestamp < 0 {
		return nil, fmt.Errorf("seek %s: negative timestamp %.3f", v.path, timestamp)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil, fmt.Errorf("seek %s: source closed", v.path)
	}

	if ok := v.capture.Set(gocv.VideoCapturePosMsec, timestamp*1000); !ok {
		return nil, fmt.Errorf("seek %s to %.3fs failed", v.path, timestamp)
	}

	mat := gocv.NewMat()
	defer mat.Close()
	if ok := v.capture.Read(&mat); !ok || mat.Empty() {
		return nil, fmt.Errorf("read frame at %.3fs from %s failed", timestamp, v.path)
	}

	img, err := mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame at %.3fs: %w", timestamp, err)
	}
	return ToRGBA(img), nil
}

// Close releases the underlying capture. Further seeks fail cleanly.
func (v *VideoSource) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	v.closed = true
	return v.capture.Close()
}
