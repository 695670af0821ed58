package detection

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-trajectory/internal/log"
)

// PersonClass is the COCO class id for people.
const PersonClass = 0

// ErrEmptyFrame is returned when asked to detect on an empty Mat.
var ErrEmptyFrame = errors.New("detection: empty frame")

// YOLODetector runs a YOLOv8 ONNX model and keeps only the configured classes.
type YOLODetector struct {
	net       gocv.Net
	config    YOLOConfig
	mu        sync.Mutex
	inputSize image.Point
	keep      map[int]bool
	logger    *slog.Logger
}

// YOLOConfig holds YOLO detector configuration
type YOLOConfig struct {
	ModelPath        string  `yaml:"model_path"`
	ConfidenceThresh float32 `yaml:"confidence" validate:"gte=0,lte=1"`
	NMSThresh        float32 `yaml:"nms" validate:"gte=0,lte=1"`
	InputWidth       int     `yaml:"input_width" validate:"gt=0"`
	InputHeight      int     `yaml:"input_height" validate:"gt=0"`
	Classes          []int   `yaml:"classes"`
}

// DefaultYOLOConfig returns defaults for YOLOv8n restricted to people.
func DefaultYOLOConfig() YOLOConfig {
	return YOLOConfig{
		ModelPath:        "models/yolov8n.onnx",
		ConfidenceThresh: 0.5,
		NMSThresh:        0.45,
		InputWidth:       640,
		InputHeight:      640,
		Classes:          []int{PersonClass},
	}
}

// NewYOLO creates a new YOLO object detector
func NewYOLO(cfg YOLOConfig, logger *slog.Logger) (*YOLODetector, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("detection: model file not found: %s", cfg.ModelPath)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("detection: failed to load YOLO model from %s", cfg.ModelPath)
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	keep := make(map[int]bool, len(cfg.Classes))
	for _, c := range cfg.Classes {
		keep[c] = true
	}

	return &YOLODetector{
		net:       net,
		config:    cfg,
		inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight),
		keep:      keep,
		logger:    log.Component(logger, "detection.yolo"),
	}, nil
}

// Detect finds objects in the frame.
func (d *YOLODetector) Detect(img gocv.Mat) ([]Box, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if img.Empty() {
		return nil, ErrEmptyFrame
	}

	imgW := float32(img.Cols())
	imgH := float32(img.Rows())

	blob := gocv.BlobFromImage(img, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")

	output := d.net.Forward("")
	defer output.Close()

	// Output shape: [1, 84, 8400] - 84 = 4 bbox + 80 classes, 8400 candidates
	boxes := d.parseYOLOv8Output(output, imgW, imgH)
	d.logger.Debug("detected", "count", len(boxes))

	return boxes, nil
}

// parseYOLOv8Output decodes the output tensor, filters by class and
// confidence and applies NMS.
func (d *YOLODetector) parseYOLOv8Output(output gocv.Mat, imgW, imgH float32) []Box {
	var rects []image.Rectangle
	var confidences []float32
	var classIDs []int

	// Candidates run along columns: transpose on the fly.
	rows := output.Cols()
	cols := output.Rows()

	data, err := output.DataPtrFloat32()
	if err != nil {
		d.logger.Warn("read output tensor", "error", err)
		return nil
	}

	for i := 0; i < rows; i++ {
		maxScore := float32(0)
		maxClassID := 0

		for c := 4; c < cols; c++ {
			score := data[c*rows+i]
			if score > maxScore {
				maxScore = score
				maxClassID = c - 4
			}
		}

		if maxScore < d.config.ConfidenceThresh {
			continue
		}
		if len(d.keep) > 0 && !d.keep[maxClassID] {
			continue
		}

		cx := data[0*rows+i]
		cy := data[1*rows+i]
		w := data[2*rows+i]
		h := data[3*rows+i]

		x1 := int((cx - w/2) * imgW / float32(d.config.InputWidth))
		y1 := int((cy - h/2) * imgH / float32(d.config.InputHeight))
		x2 := int((cx + w/2) * imgW / float32(d.config.InputWidth))
		y2 := int((cy + h/2) * imgH / float32(d.config.InputHeight))

		rects = append(rects, image.Rect(x1, y1, x2, y2))
		confidences = append(confidences, maxScore)
		classIDs = append(classIDs, maxClassID)
	}

	if len(rects) == 0 {
		return nil
	}

	indices := gocv.NMSBoxes(rects, confidences, d.config.ConfidenceThresh, d.config.NMSThresh)

	boxes := make([]Box, 0, len(indices))
	for _, idx := range indices {
		boxes = append(boxes, Box{
			Rect:       rects[idx],
			Confidence: float64(confidences[idx]),
			ClassID:    classIDs[idx],
		})
	}
	return boxes
}

// Close releases the detector resources
func (d *YOLODetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

var _ Detector = (*YOLODetector)(nil)
