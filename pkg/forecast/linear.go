package forecast

import (
	"context"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Linear extrapolates a least-squares line fitted to each axis of the
// window against the sample index. It needs no model server and serves as
// the fallback when the remote model is unreachable.
type Linear struct {
	Steps int
}

// NewLinear creates a linear forecaster producing steps positions.
func NewLinear(steps int) *Linear {
	if steps <= 0 {
		steps = 10
	}
	return &Linear{Steps: steps}
}

// Forecast implements Forecaster.
func (l *Linear) Forecast(ctx context.Context, window *mat.Dense) (*mat.Dense, error) {
	if err := checkWindow(window); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n, _ := window.Dims()
	xs := mat.Col(nil, 0, window)
	ys := mat.Col(nil, 1, window)

	// A single sample has no slope; hold position.
	if n == 1 {
		out := mat.NewDense(l.Steps, 2, nil)
		for i := 0; i < l.Steps; i++ {
			out.Set(i, 0, xs[0])
			out.Set(i, 1, ys[0])
		}
		return out, nil
	}

	t := make([]float64, n)
	for i := range t {
		t[i] = float64(i)
	}
	ax, bx := stat.LinearRegression(t, xs, nil, false)
	ay, by := stat.LinearRegression(t, ys, nil, false)

	out := mat.NewDense(l.Steps, 2, nil)
	for i := 0; i < l.Steps; i++ {
		ti := float64(n + i)
		out.Set(i, 0, ax+bx*ti)
		out.Set(i, 1, ay+by*ti)
	}
	return out, nil
}

// Close implements Forecaster.
func (l *Linear) Close() error { return nil }

var _ Forecaster = (*Linear)(nil)
