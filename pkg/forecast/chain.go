package forecast

import (
	"context"
	"log/slog"

	"gonum.org/v1/gonum/mat"
)

// Chain tries multiple forecasters in order until one succeeds.
type Chain struct {
	forecasters []Forecaster
	logger      *slog.Logger
}

// NewChain creates a forecaster chain.
// At least one forecaster is required.
func NewChain(forecasters ...Forecaster) (*Chain, error) {
	if len(forecasters) == 0 {
		return nil, ErrNoForecasters
	}
	return &Chain{
		forecasters: forecasters,
		logger:      slog.Default().With("component", "forecast.chain"),
	}, nil
}

// NewChainWithLogger creates a forecaster chain with a custom logger.
func NewChainWithLogger(logger *slog.Logger, forecasters ...Forecaster) (*Chain, error) {
	chain, err := NewChain(forecasters...)
	if err != nil {
		return nil, err
	}
	chain.logger = logger.With("component", "forecast.chain")
	return chain, nil
}

// Forecast tries each forecaster until one succeeds.
func (c *Chain) Forecast(ctx context.Context, window *mat.Dense) (*mat.Dense, error) {
	var errs []error

	for i, f := range c.forecasters {
		out, err := f.Forecast(ctx, window)
		if err == nil {
			if i > 0 {
				c.logger.Debug("fallback forecaster succeeded", "index", i)
			}
			return out, nil
		}

		errs = append(errs, err)
		c.logger.Warn("forecaster failed, trying next",
			"index", i,
			"error", err,
		)

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, &ChainError{Errors: errs}
}

// Close closes all forecasters.
func (c *Chain) Close() error {
	var lastErr error
	for _, f := range c.forecasters {
		if err := f.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Verify Chain implements Forecaster at compile time.
var _ Forecaster = (*Chain)(nil)
