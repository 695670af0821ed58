// Package calibration maps image pixels onto the ground plane of a fixed
// camera and decides which pixels fall inside the calibrated zone.
//
// Both directions of the mapping are independently fitted approximations, so
// WorldToPixel(PixelToWorld(p)) only returns p to within the fit residual.
package calibration

import (
	"errors"
	"fmt"
)

var (
	// ErrDegenerateZone is returned when the zone polygon has fewer than 3 vertices.
	ErrDegenerateZone = errors.New("calibration: zone needs at least 3 vertices")

	// ErrZeroWidth is returned when the ground width is not positive.
	ErrZeroWidth = errors.New("calibration: ground width must be positive")
)

// Vertex is a polygon corner in pixel coordinates.
type Vertex struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
}

// WorldBounds is the rectangle of ground-plane meters considered physically
// plausible. Conversions landing outside it are extrapolations.
type WorldBounds struct {
	MinX float64 `yaml:"min_x" json:"min_x"`
	MaxX float64 `yaml:"max_x" json:"max_x"`
	MinY float64 `yaml:"min_y" json:"min_y"`
	MaxY float64 `yaml:"max_y" json:"max_y"`
}

// Calibration holds the fitted constants of one camera placement.
type Calibration struct {
	// Perspective correction for the x axis: the pixel column of the far
	// edge at row y is K1*y + K0, and that edge is WidthMeters from x=0.
	K1          float64 `yaml:"k1" json:"k1"`
	K0          float64 `yaml:"k0" json:"k0"`
	WidthMeters float64 `yaml:"width_meters" json:"width_meters"`

	// Cubic fits, highest power first: a*v^3 + b*v^2 + c*v + d.
	PixelToDepth [4]float64 `yaml:"pixel_to_depth" json:"pixel_to_depth"`
	DepthToPixel [4]float64 `yaml:"depth_to_pixel" json:"depth_to_pixel"`

	// Zone is the ground region, in pixels, where the fits are valid.
	Zone []Vertex `yaml:"zone" json:"zone"`

	// Bounds flags extrapolated conversions.
	Bounds WorldBounds `yaml:"bounds" json:"bounds"`
}

// DefaultCalibration returns the calibration of the reference footage.
//
// The zone's right edge runs through (383,151) and (978,555), which is where
// K1*y + K0 puts the 8 m edge at those rows (383.7 and 977.6).
func DefaultCalibration() Calibration {
	return Calibration{
		K1:          1.47,
		K0:          161.76,
		WidthMeters: 8,
		PixelToDepth: [4]float64{
			6.16793058e-07,
			-8.61522438e-04,
			4.31688489e-01,
			-4.75010213e01,
		},
		DepthToPixel: [4]float64{
			1.51690315e-02,
			-3.20503299e-01,
			7.27107405e00,
			1.47945378e02,
		},
		Zone: []Vertex{
			{X: 0, Y: 151},
			{X: 383, Y: 151},
			{X: 978, Y: 555},
			{X: 0, Y: 555},
		},
		Bounds: WorldBounds{MinX: -0.5, MaxX: 8.5, MinY: -0.5, MaxY: 32.5},
	}
}

// Validate checks the calibration is usable.
func (c Calibration) Validate() error {
	if len(c.Zone) < 3 {
		return ErrDegenerateZone
	}
	if c.WidthMeters <= 0 {
		return ErrZeroWidth
	}
	if c.Bounds.MinX >= c.Bounds.MaxX || c.Bounds.MinY >= c.Bounds.MaxY {
		return fmt.Errorf("calibration: empty bounds %+v", c.Bounds)
	}
	return nil
}

// cubic evaluates a*v^3 + b*v^2 + c*v + d with Horner's rule.
func cubic(k [4]float64, v float64) float64 {
	return ((k[0]*v+k[1])*v+k[2])*v + k[3]
}
