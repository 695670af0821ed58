package forecast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/teslashibe/go-trajectory/internal/httpc"
)

// Client calls a trajectory model served over the TensorFlow Serving REST
// API. One window is sent per request as a batch of one.
type Client struct {
	baseURL string
	config  *Config
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a model server client.
func NewClient(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		config:  cfg,
		http:    httpc.NewClient(cfg.Timeout),
		logger:  cfg.Logger.With("component", "forecast.client"),
	}, nil
}

type predictRequest struct {
	Instances [][][]float64 `json:"instances"`
}

type predictResponse struct {
	Predictions [][][]float64 `json:"predictions"`
	Error       string        `json:"error"`
}

// Forecast sends the window to the model and returns the first batch
// element of its answer.
func (c *Client) Forecast(ctx context.Context, window *mat.Dense) (*mat.Dense, error) {
	if err := checkWindow(window); err != nil {
		return nil, err
	}
	start := time.Now()

	body, err := json.Marshal(predictRequest{Instances: [][][]float64{Rows(window)}})
	if err != nil {
		return nil, fmt.Errorf("forecast: marshal payload: %w", err)
	}

	resp, err := c.post(ctx, c.predictPath(), body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("forecast: decode response: %w", err)
	}
	if len(result.Predictions) == 0 {
		return nil, ErrEmptyOutput
	}

	out, err := FromRows(result.Predictions[0])
	if err != nil {
		return nil, err
	}

	c.logger.Debug("forecast complete",
		"window", window.RawMatrix().Rows,
		"steps", len(result.Predictions[0]),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// Health checks that the model is loaded on the server.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models/"+c.config.Model, nil)
	if err != nil {
		return fmt.Errorf("forecast: create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("forecast: health check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseError(resp)
	}
	return nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) predictPath() string {
	return "/v1/models/" + c.config.Model + ":predict"
}

// post makes a POST request with retry.
func (c *Client) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("forecast: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doWithRetry(ctx, req, body)
}

// doWithRetry performs the request, retrying transport failures, 429 and 5xx.
func (c *Client) doWithRetry(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			}
			req.Body = io.NopCloser(bytes.NewReader(body))
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("forecast: request: %w", err)
			c.logger.Warn("request failed, retrying",
				"attempt", attempt+1,
				"error", err,
			)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = c.parseError(resp)
			resp.Body.Close()
			c.logger.Warn("retrying request",
				"attempt", attempt+1,
				"status", resp.StatusCode,
			)
			continue
		}

		return resp, nil
	}

	return nil, lastErr
}

// parseError reads a TensorFlow Serving style {"error": "..."} body.
func (c *Client) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	message := strings.TrimSpace(string(body))
	var errResp predictResponse
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		message = errResp.Error
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
	}
}

// Verify Client implements Forecaster at compile time.
var _ Forecaster = (*Client)(nil)
