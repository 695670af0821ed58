package playback

import (
	"slices"
	"time"
)

// Config holds playback configuration.
type Config struct {
	// LiveInterval paces ticks that consume frames.
	LiveInterval time.Duration `yaml:"live_interval" json:"live_interval"`

	// ReplayInterval paces replay of buffered frames.
	ReplayInterval time.Duration `yaml:"replay_interval" json:"replay_interval"`

	// LookAheadPresets lists the look-ahead seconds StartPredicting accepts.
	// Empty accepts any positive value.
	LookAheadPresets []int `yaml:"look_ahead_presets" json:"look_ahead_presets" validate:"dive,gt=0"`

	// PredictWhileLive runs the periodic prediction during live playback.
	PredictWhileLive bool `yaml:"predict_while_live" json:"predict_while_live"`

	// CommandBuffer sizes the command queue consumed by Run.
	CommandBuffer int `yaml:"command_buffer" json:"command_buffer" validate:"gte=0"`
}

// DefaultConfig ticks every 20ms in both modes and offers 1, 3 and 5
// second look-aheads.
func DefaultConfig() Config {
	return Config{
		LiveInterval:     20 * time.Millisecond,
		ReplayInterval:   20 * time.Millisecond,
		LookAheadPresets: []int{1, 3, 5},
		PredictWhileLive: true,
		CommandBuffer:    16,
	}
}

// Accepts reports whether seconds is a valid look-ahead.
func (c Config) Accepts(seconds int) bool {
	if seconds <= 0 {
		return false
	}
	return len(c.LookAheadPresets) == 0 || slices.Contains(c.LookAheadPresets, seconds)
}
