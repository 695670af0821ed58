// Package config loads the trajectory service configuration.
//
// Every section starts from the owning package's defaults; a YAML file
// overrides what it names and environment variables override the file.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-trajectory/pkg/calibration"
	"github.com/teslashibe/go-trajectory/pkg/forecast"
	"github.com/teslashibe/go-trajectory/pkg/plan"
	"github.com/teslashibe/go-trajectory/pkg/playback"
	"github.com/teslashibe/go-trajectory/pkg/prediction"
	"github.com/teslashibe/go-trajectory/pkg/store"
	"github.com/teslashibe/go-trajectory/pkg/tracking"
	"github.com/teslashibe/go-trajectory/pkg/web"
)

// Environment variables that override the file.
const (
	EnvVideo         = "TRAJECTORY_VIDEO"
	EnvForecasterURL = "TRAJECTORY_FORECASTER_URL"
	EnvPort          = "TRAJECTORY_PORT"
	EnvDatabase      = "TRAJECTORY_DB"
	EnvLogLevel      = "TRAJECTORY_LOG_LEVEL"
)

// Detection configures the detector, the id tracker and frame encoding.
// It mirrors the detection package so loading config does not need OpenCV.
type Detection struct {
	Model       string  `yaml:"model"`
	Confidence  float32 `yaml:"confidence" validate:"gte=0,lte=1"`
	NMS         float32 `yaml:"nms" validate:"gte=0,lte=1"`
	InputSize   int     `yaml:"input_size" validate:"gt=0"`
	MinIoU      float64 `yaml:"min_iou" validate:"gte=0,lte=1"`
	MaxMisses   int     `yaml:"max_misses" validate:"gte=0"`
	JPEGQuality int     `yaml:"jpeg_quality" validate:"gte=1,lte=100"`
}

// File is the whole configuration.
type File struct {
	LogLevel string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	Video    string `yaml:"video" validate:"required"`

	Calibration calibration.Calibration `yaml:"calibration"`
	Cadence     prediction.Cadence      `yaml:"cadence"`
	Tracking    tracking.Config         `yaml:"tracking"`
	Playback    playback.Config         `yaml:"playback"`
	Forecast    forecast.Config         `yaml:"forecast"`
	Detection   Detection               `yaml:"detection"`
	Server      web.Config              `yaml:"server"`
	Plan        plan.Config             `yaml:"plan"`
	Store       store.Config            `yaml:"store"`
}

// Default returns the configuration used when no file is given.
func Default() *File {
	return &File{
		LogLevel:    "info",
		Video:       "videos/people.mp4",
		Calibration: calibration.DefaultCalibration(),
		Cadence:     prediction.DefaultCadence(),
		Tracking:    tracking.DefaultConfig(),
		Playback:    playback.DefaultConfig(),
		Forecast:    *forecast.DefaultConfig(),
		Detection: Detection{
			Model:       "models/yolov8n.onnx",
			Confidence:  0.5,
			NMS:         0.45,
			InputSize:   640,
			MinIoU:      0.3,
			MaxMisses:   30,
			JPEGQuality: 80,
		},
		Server: web.DefaultConfig(),
		Plan:   plan.DefaultConfig(),
		Store:  store.DefaultConfig(),
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*File, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (f *File) applyEnv() {
	f.Video = EnvOr(EnvVideo, f.Video)
	f.Forecast.BaseURL = EnvOr(EnvForecasterURL, f.Forecast.BaseURL)
	f.Server.Port = EnvOr(EnvPort, f.Server.Port)
	f.Store.Path = EnvOr(EnvDatabase, f.Store.Path)
	f.LogLevel = EnvOr(EnvLogLevel, f.LogLevel)
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func (f *File) Validate() error {
	if err := validator.New().Struct(f); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	var errs []error
	if err := f.Calibration.Validate(); err != nil {
		errs = append(errs, err)
	}
	if f.Tracking.PixelHistoryCap <= f.Cadence.RequiredWindow {
		errs = append(errs, fmt.Errorf("config: tracking.pixel_history_cap (%d) must exceed cadence.required_window (%d)",
			f.Tracking.PixelHistoryCap, f.Cadence.RequiredWindow))
	}
	if f.Tracking.WorldHistoryCap > 0 && f.Tracking.WorldHistoryCap < f.Cadence.RequiredWindow {
		errs = append(errs, fmt.Errorf("config: tracking.world_history_cap (%d) is shorter than cadence.required_window (%d)",
			f.Tracking.WorldHistoryCap, f.Cadence.RequiredWindow))
	}
	if f.Tracking.Eviction == "idle" && f.Tracking.IdleFrames <= 0 {
		errs = append(errs, errors.New("config: tracking.idle_frames must be positive for idle eviction"))
	}
	if f.Playback.LiveInterval <= 0 || f.Playback.ReplayInterval <= 0 {
		errs = append(errs, errors.New("config: playback intervals must be positive"))
	}
	return errors.Join(errs...)
}

// EnvOr returns the value of key, or def when it is unset or empty.
func EnvOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
