package calibration

// Converter maps between pixel and ground-plane coordinates.
// It holds no state besides the calibration and is safe for concurrent use.
type Converter struct {
	cal Calibration
}

// NewConverter creates a converter for the given calibration.
func NewConverter(cal Calibration) *Converter {
	return &Converter{cal: cal}
}

// PixelToWorld converts a pixel position to meters on the ground plane.
// Inputs are not bounds checked; points outside the calibrated zone
// extrapolate through the fits.
func (c *Converter) PixelToWorld(x, y float64) (float64, float64) {
	edge := c.cal.K1*y + c.cal.K0
	xm := (1 - (edge-x)/edge) * c.cal.WidthMeters
	ym := cubic(c.cal.PixelToDepth, y)
	return xm, ym
}

// WorldToPixel converts ground-plane meters back to a pixel position.
// The pixel row comes from its own fit, then the x formula is applied at
// that row.
func (c *Converter) WorldToPixel(xm, ym float64) (float64, float64) {
	y := cubic(c.cal.DepthToPixel, ym)
	x := (c.cal.K1*y + c.cal.K0) * xm / c.cal.WidthMeters
	return x, y
}

// InRange reports whether a converted position lies inside the plausible
// ground bounds. Values outside are still valid results, only suspicious.
func (c *Converter) InRange(xm, ym float64) bool {
	b := c.cal.Bounds
	return xm >= b.MinX && xm <= b.MaxX && ym >= b.MinY && ym <= b.MaxY
}
