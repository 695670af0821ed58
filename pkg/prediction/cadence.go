// Package prediction decides when to run the forecaster and collects one
// forecast per eligible track.
package prediction

import "fmt"

// Mode selects how often the scheduler triggers.
type Mode int

const (
	// ModePeriodic triggers every PeriodicInterval frames.
	ModePeriodic Mode = iota
	// ModeContinuous triggers on every frame.
	ModeContinuous
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case ModePeriodic:
		return "periodic"
	case ModeContinuous:
		return "continuous"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Cadence configures triggering and windowing.
type Cadence struct {
	// PeriodicInterval is the number of frames between periodic predictions.
	PeriodicInterval int `yaml:"periodic_interval" json:"periodic_interval" validate:"gt=0"`

	// RequiredWindow is the number of trailing ground samples fed to the
	// forecaster. A track needs more pixel samples than this to qualify.
	RequiredWindow int `yaml:"required_window" json:"required_window" validate:"gt=0"`

	// OutputLength caps the forecast steps kept per track. 0 keeps all.
	OutputLength int `yaml:"output_length" json:"output_length" validate:"gte=0"`

	// BufferedMultiplier converts a look-ahead in seconds into buffered ticks.
	BufferedMultiplier int `yaml:"buffered_multiplier" json:"buffered_multiplier" validate:"gt=0"`
}

// DefaultCadence predicts every 10th frame from the last 19 samples and
// keeps 10 forecast steps.
func DefaultCadence() Cadence {
	return Cadence{
		PeriodicInterval:   10,
		RequiredWindow:     19,
		OutputLength:       10,
		BufferedMultiplier: 10,
	}
}

// BufferedTicks returns how many frames are buffered for a look-ahead of
// the given number of seconds.
func (c Cadence) BufferedTicks(seconds int) int {
	if seconds <= 0 {
		return 0
	}
	return seconds * c.BufferedMultiplier
}

// Triggers reports whether a prediction runs at frame under mode.
func (c Cadence) Triggers(mode Mode, frame int) bool {
	if mode == ModeContinuous {
		return true
	}
	return c.PeriodicInterval > 0 && frame%c.PeriodicInterval == 0
}
