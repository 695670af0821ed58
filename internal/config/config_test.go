package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-trajectory/pkg/calibration"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trajectory.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Cadence.PeriodicInterval)
	assert.Equal(t, 19, cfg.Cadence.RequiredWindow)
	assert.Equal(t, 10, cfg.Cadence.BufferedMultiplier)
	assert.Equal(t, 90, cfg.Tracking.PixelHistoryCap)
	assert.Equal(t, []int{1, 3, 5}, cfg.Playback.LookAheadPresets)
	assert.Equal(t, calibration.DefaultCalibration(), cfg.Calibration)
	assert.Equal(t, "8080", cfg.Server.Port)
}

func TestLoad_FileOverridesOnlyWhatItNames(t *testing.T) {
	path := writeFile(t, `
log_level: debug
video: clips/plaza.mp4
cadence:
  periodic_interval: 5
playback:
  live_interval: 40ms
  look_ahead_presets: [2, 4]
calibration:
  zone:
    - {x: 0, y: 150}
    - {x: 380, y: 150}
    - {x: 970, y: 550}
    - {x: 0, y: 550}
server:
  port: "9090"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "clips/plaza.mp4", cfg.Video)
	assert.Equal(t, 5, cfg.Cadence.PeriodicInterval)
	assert.Equal(t, 19, cfg.Cadence.RequiredWindow, "unnamed fields keep defaults")
	assert.Equal(t, 40*time.Millisecond, cfg.Playback.LiveInterval)
	assert.Equal(t, 20*time.Millisecond, cfg.Playback.ReplayInterval)
	assert.Equal(t, []int{2, 4}, cfg.Playback.LookAheadPresets)
	require.Len(t, cfg.Calibration.Zone, 4)
	assert.Equal(t, calibration.Vertex{X: 380, Y: 150}, cfg.Calibration.Zone[1])
	assert.Equal(t, 1.47, cfg.Calibration.K1)
	assert.Equal(t, "9090", cfg.Server.Port)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "video: from-file.mp4\n")
	t.Setenv(EnvVideo, "from-env.mp4")
	t.Setenv(EnvPort, "7000")
	t.Setenv(EnvForecasterURL, "http://model:8501")
	t.Setenv(EnvDatabase, "/tmp/sessions.db")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env.mp4", cfg.Video)
	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, "http://model:8501", cfg.Forecast.BaseURL)
	assert.Equal(t, "/tmp/sessions.db", cfg.Store.Path)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "bad yaml", body: "cadence: [oops"},
		{name: "bad log level", body: "log_level: loud"},
		{name: "zero interval", body: "cadence:\n  periodic_interval: 0"},
		{name: "degenerate zone", body: "calibration:\n  zone:\n    - {x: 0, y: 0}\n    - {x: 1, y: 1}"},
		{name: "cap below window", body: "tracking:\n  pixel_history_cap: 19"},
		{name: "short world cap", body: "tracking:\n  world_history_cap: 5"},
		{name: "idle without frames", body: "tracking:\n  eviction: idle\n  idle_frames: 0"},
		{name: "unknown eviction", body: "tracking:\n  eviction: sometimes"},
		{name: "bad jpeg quality", body: "detection:\n  jpeg_quality: 0"},
		{name: "negative preset", body: "playback:\n  look_ahead_presets: [-1]"},
		{name: "bad forecaster url", body: "forecast:\n  base_url: not a url"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tc.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvOr(t *testing.T) {
	t.Setenv("TRAJECTORY_TEST_KEY", "")
	assert.Equal(t, "fallback", EnvOr("TRAJECTORY_TEST_KEY", "fallback"))
	t.Setenv("TRAJECTORY_TEST_KEY", "set")
	assert.Equal(t, "set", EnvOr("TRAJECTORY_TEST_KEY", "fallback"))
}
