// Package forecast turns a fixed-length window of ground positions into a
// sequence of predicted future positions.
//
// A window is an n×2 matrix of (x, y) meters, oldest row first. Every
// Forecaster returns an m×2 matrix in the same layout.
//
// Example usage:
//
//	client, _ := forecast.NewClient(
//	    forecast.WithBaseURL("http://localhost:8501"),
//	    forecast.WithModel("trajectory"),
//	)
//	chain, _ := forecast.NewChain(client, forecast.NewLinear(10))
//	defer chain.Close()
//
//	future, err := chain.Forecast(ctx, window)
package forecast

import (
	"context"

	"gonum.org/v1/gonum/mat"
)

// Forecaster predicts future positions from a window of past ones.
type Forecaster interface {
	// Forecast returns the predicted positions following window.
	Forecast(ctx context.Context, window *mat.Dense) (*mat.Dense, error)

	// Close releases any resources held by the forecaster.
	Close() error
}

// NewWindow builds an n×2 window from parallel x and y slices.
func NewWindow(xs, ys []float64) *mat.Dense {
	n := len(xs)
	if len(ys) < n {
		n = len(ys)
	}
	if n == 0 {
		return nil
	}
	data := make([]float64, 0, 2*n)
	for i := 0; i < n; i++ {
		data = append(data, xs[i], ys[i])
	}
	return mat.NewDense(n, 2, data)
}

// Rows copies a matrix into row slices, the layout used on the wire.
func Rows(m mat.Matrix) [][]float64 {
	r, c := m.Dims()
	out := make([][]float64, r)
	for i := 0; i < r; i++ {
		row := make([]float64, c)
		for j := 0; j < c; j++ {
			row[j] = m.At(i, j)
		}
		out[i] = row
	}
	return out
}

// FromRows builds an n×2 matrix from row slices. Every row must hold
// exactly two values.
func FromRows(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyOutput
	}
	data := make([]float64, 0, 2*len(rows))
	for i, row := range rows {
		if len(row) != 2 {
			return nil, &ShapeError{Row: i, Cols: len(row), WantCols: 2}
		}
		data = append(data, row[0], row[1])
	}
	return mat.NewDense(len(rows), 2, data), nil
}

// checkWindow rejects nil, empty and non-2-column windows.
func checkWindow(window *mat.Dense) error {
	if window == nil || window.IsEmpty() {
		return ErrEmptyWindow
	}
	if _, c := window.Dims(); c != 2 {
		return &ShapeError{Row: -1, Cols: c, WantCols: 2}
	}
	return nil
}
