package detection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-trajectory/internal/log"
	"github.com/teslashibe/go-trajectory/pkg/playback"
	"github.com/teslashibe/go-trajectory/pkg/tracking"
)

// VideoConfig holds video source configuration.
type VideoConfig struct {
	Path        string `yaml:"path" validate:"required"`
	JPEGQuality int    `yaml:"jpeg_quality" validate:"gte=0,lte=100"`
}

// DefaultVideoConfig returns defaults for the bundled sample video.
func DefaultVideoConfig() VideoConfig {
	return VideoConfig{
		Path:        "videos/people.mp4",
		JPEGQuality: 80,
	}
}

// VideoSource reads a video file and turns each frame into tracked
// detections and an annotated JPEG. It implements playback.FrameSource.
type VideoSource struct {
	cfg       VideoConfig
	capture   *gocv.VideoCapture
	detector  Detector
	tracker   *IoUTracker
	annotator *Annotator
	logger    *slog.Logger

	mu     sync.Mutex
	frame  gocv.Mat
	closed bool
	read   int
}

// OpenVideo opens the file and fails if it cannot be read.
func OpenVideo(cfg VideoConfig, detector Detector, tracker *IoUTracker, annotator *Annotator, logger *slog.Logger) (*VideoSource, error) {
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = DefaultVideoConfig().JPEGQuality
	}

	capture, err := gocv.VideoCaptureFile(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("detection: open video %s: %w", cfg.Path, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("detection: video %s could not be opened", cfg.Path)
	}

	v := &VideoSource{
		cfg:       cfg,
		capture:   capture,
		detector:  detector,
		tracker:   tracker,
		annotator: annotator,
		logger:    log.Component(logger, "detection.video"),
		frame:     gocv.NewMat(),
	}
	v.logger.Info("video opened",
		"path", cfg.Path,
		"fps", capture.Get(gocv.VideoCaptureFPS),
		"frames", int(capture.Get(gocv.VideoCaptureFrameCount)),
	)
	return v, nil
}

// Next implements playback.FrameSource.
func (v *VideoSource) Next(ctx context.Context) (*playback.SourceFrame, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil, playback.ErrEndOfStream
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if ok := v.capture.Read(&v.frame); !ok || v.frame.Empty() {
		return nil, playback.ErrEndOfStream
	}
	v.read++

	boxes, err := v.detector.Detect(v.frame)
	if err != nil {
		v.logger.Warn("detect failed, frame has no detections", "frame", v.read, "error", err)
		boxes = nil
	}

	tracked := v.tracker.Update(boxes)
	dets := make([]tracking.Detection, len(tracked))
	for i, t := range tracked {
		x, y := t.Box.Center()
		dets[i] = tracking.Detection{
			ID:     tracking.TrackID(t.ID),
			Center: tracking.PixelPosition{X: x, Y: y},
			Box:    t.Box.Rect,
		}
	}

	if v.annotator != nil {
		v.annotator.Annotate(&v.frame, dets)
	}

	img, err := v.encode()
	if err != nil {
		return nil, err
	}

	return &playback.SourceFrame{
		Image:      img,
		Detections: dets,
		Captured:   time.Now(),
	}, nil
}

func (v *VideoSource) encode() ([]byte, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, v.frame, []int{gocv.IMWriteJpegQuality, v.cfg.JPEGQuality})
	if err != nil {
		return nil, fmt.Errorf("detection: encode frame: %w", err)
	}
	defer buf.Close()

	// The native buffer is freed on Close.
	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

// Close implements playback.FrameSource.
func (v *VideoSource) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	v.closed = true
	v.frame.Close()
	if err := v.detector.Close(); err != nil {
		v.logger.Warn("close detector", "error", err)
	}
	return v.capture.Close()
}

var _ playback.FrameSource = (*VideoSource)(nil)
