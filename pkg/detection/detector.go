// Package detection finds and tracks people in video frames. It is the
// OpenCV side of the pipeline: decoding, YOLO inference, identity
// tracking and frame annotation.
package detection

import (
	"image"

	"gocv.io/x/gocv"
)

// Box is one detected object in pixel coordinates.
type Box struct {
	Rect       image.Rectangle
	Confidence float64
	ClassID    int
}

// Center returns the center of the box.
func (b Box) Center() (x, y float64) {
	return float64(b.Rect.Min.X+b.Rect.Max.X) / 2, float64(b.Rect.Min.Y+b.Rect.Max.Y) / 2
}

// Area returns the area of the box in pixels.
func (b Box) Area() float64 {
	return float64(b.Rect.Dx() * b.Rect.Dy())
}

// IoU returns the intersection over union of two boxes.
func IoU(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	i := float64(inter.Dx() * inter.Dy())
	u := float64(a.Dx()*a.Dy()+b.Dx()*b.Dy()) - i
	if u <= 0 {
		return 0
	}
	return i / u
}

// Detector is the interface for detection backends.
type Detector interface {
	// Detect finds objects in a decoded frame.
	Detect(img gocv.Mat) ([]Box, error)

	// Close releases resources.
	Close() error
}
