package forecast

import (
	"log/slog"
	"time"
)

// Config holds remote model client configuration.
type Config struct {
	// Connection
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`
	Model   string `yaml:"model"`

	// Timeout bounds one request, retries included separately.
	Timeout time.Duration `yaml:"timeout"`

	// Retry configuration
	MaxRetries int           `yaml:"max_retries" validate:"gte=0"`
	RetryDelay time.Duration `yaml:"retry_delay"`

	// Fallback enables the linear extrapolator behind the remote model.
	Fallback bool `yaml:"fallback"`

	Logger *slog.Logger `yaml:"-"`
}

// Option is a functional option for configuring the client.
type Option func(*Config)

// WithBaseURL sets the model server base URL, e.g. "http://localhost:8501".
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithModel sets the served model name.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithRetry configures retry behavior.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig points at a local TensorFlow Serving instance.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "http://localhost:8501",
		Model:      "trajectory",
		Timeout:    2 * time.Second,
		MaxRetries: 1,
		RetryDelay: 50 * time.Millisecond,
		Fallback:   true,
		Logger:     slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Model == "" {
		return ErrNoModel
	}
	return nil
}
