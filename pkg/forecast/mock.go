package forecast

import (
	"context"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Mock implements Forecaster for testing.
type Mock struct {
	// ForecastFunc is called when Forecast is invoked.
	ForecastFunc func(ctx context.Context, window *mat.Dense) (*mat.Dense, error)

	// CloseFunc is called when Close is invoked.
	CloseFunc func() error

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a method invocation. Window is a copy of the input.
type MockCall struct {
	Method string
	Window *mat.Dense
	Time   time.Time
}

// NewMock creates a mock that predicts steps copies of the window's last row.
func NewMock(steps int) *Mock {
	return &Mock{
		ForecastFunc: func(ctx context.Context, window *mat.Dense) (*mat.Dense, error) {
			n, _ := window.Dims()
			out := mat.NewDense(steps, 2, nil)
			for i := 0; i < steps; i++ {
				out.Set(i, 0, window.At(n-1, 0))
				out.Set(i, 1, window.At(n-1, 1))
			}
			return out, nil
		},
	}
}

// WithError returns a mock that always fails with err.
func WithError(err error) *Mock {
	return &Mock{
		ForecastFunc: func(ctx context.Context, window *mat.Dense) (*mat.Dense, error) {
			return nil, err
		},
	}
}

// Forecast calls ForecastFunc and records the call.
func (m *Mock) Forecast(ctx context.Context, window *mat.Dense) (*mat.Dense, error) {
	var in *mat.Dense
	if window != nil && !window.IsEmpty() {
		in = mat.DenseCopyOf(window)
	}
	m.record("Forecast", in)
	if err := checkWindow(window); err != nil {
		return nil, err
	}
	if m.ForecastFunc != nil {
		return m.ForecastFunc(ctx, window)
	}
	return nil, ErrNoForecasters
}

// Close calls CloseFunc and records the call.
func (m *Mock) Close() error {
	m.record("Close", nil)
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

func (m *Mock) record(method string, window *mat.Dense) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{
		Method: method,
		Window: window,
		Time:   time.Now(),
	})
}

// Calls returns all recorded method calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns the number of times a method was called.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// LastCall returns the most recent call, or nil if none.
func (m *Mock) LastCall() *MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	call := m.calls[len(m.calls)-1]
	return &call
}

// Reset clears all recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// Verify Mock implements Forecaster at compile time.
var _ Forecaster = (*Mock)(nil)
