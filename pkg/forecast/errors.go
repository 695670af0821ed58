package forecast

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrEmptyWindow is returned when the input window has no rows.
	ErrEmptyWindow = errors.New("forecast: empty window")

	// ErrEmptyOutput is returned when a model answers with no positions.
	ErrEmptyOutput = errors.New("forecast: model returned no positions")

	// ErrNoModel is returned when the remote client has no model name.
	ErrNoModel = errors.New("forecast: model required")

	// ErrNoForecasters is returned when a chain is built with nothing in it.
	ErrNoForecasters = errors.New("forecast: no forecasters")
)

// APIError is a non-200 answer from the model server.
type APIError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("forecast: API error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true for rate limiting and server-side errors.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == 429 || (e.StatusCode >= 500 && e.StatusCode < 600)
}

// ShapeError reports a matrix or row with the wrong number of columns.
// Row is -1 when the whole input is at fault.
type ShapeError struct {
	Row      int
	Cols     int
	WantCols int
}

// Error implements the error interface.
func (e *ShapeError) Error() string {
	if e.Row < 0 {
		return fmt.Sprintf("forecast: window has %d columns, want %d", e.Cols, e.WantCols)
	}
	return fmt.Sprintf("forecast: row %d has %d values, want %d", e.Row, e.Cols, e.WantCols)
}

// ChainError aggregates errors from every forecaster in a chain.
type ChainError struct {
	Errors []error
}

// Error implements the error interface.
func (e *ChainError) Error() string {
	if len(e.Errors) == 0 {
		return "forecast chain: no errors recorded"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("forecast chain: %v", e.Errors[0])
	}
	return fmt.Sprintf("forecast chain: all %d forecasters failed, last error: %v",
		len(e.Errors), e.Errors[len(e.Errors)-1])
}

// Unwrap returns the last error in the chain.
func (e *ChainError) Unwrap() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[len(e.Errors)-1]
}
