// Package playback drives a session: it pulls frames from a source, feeds
// detections into the track store, runs predictions and hands every frame to
// a renderer exactly once, buffering and replaying frames while a
// look-ahead prediction is produced.
package playback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-trajectory/pkg/prediction"
	"github.com/teslashibe/go-trajectory/pkg/tracking"
)

// Sentinel errors.
var (
	// ErrEndOfStream is returned by a FrameSource once it has no more frames.
	ErrEndOfStream = errors.New("playback: end of stream")

	// ErrInvalidLookAhead is returned for a look-ahead that is not offered.
	ErrInvalidLookAhead = errors.New("playback: invalid look-ahead")

	// ErrSessionEnded is returned for commands sent after the session ended.
	ErrSessionEnded = errors.New("playback: session ended")

	// ErrBusy is returned when the command queue is full.
	ErrBusy = errors.New("playback: command queue full")
)

// State is the playback state.
type State int

const (
	// StateLive renders frames as they are consumed.
	StateLive State = iota
	// StatePredictingBuffered holds consumed frames back while predicting.
	StatePredictingBuffered
	// StateReplaying renders held frames in capture order.
	StateReplaying
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateLive:
		return "live"
	case StatePredictingBuffered:
		return "predicting_buffered"
	case StateReplaying:
		return "replaying"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText lets State appear as its name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a name written by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{StateLive, StatePredictingBuffered, StateReplaying} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("playback: unknown state %q", text)
}

// SourceFrame is one frame pulled from a FrameSource.
type SourceFrame struct {
	// Image is the encoded, annotated frame.
	Image []byte
	// Detections are the tracked people in the frame.
	Detections []tracking.Detection
	Captured   time.Time
}

// FrameSource is a finite, non-restartable sequence of frames.
type FrameSource interface {
	// Next returns the next frame or ErrEndOfStream.
	Next(ctx context.Context) (*SourceFrame, error)

	// Close releases the source.
	Close() error
}

// FrameSnapshot is what the renderer receives for one frame.
type FrameSnapshot struct {
	SessionID  string             `json:"session_id"`
	FrameIndex int                `json:"frame_index"`
	State      State              `json:"state"`
	Active     tracking.Positions `json:"active"`
	Prediction *prediction.Result `json:"prediction,omitempty"`
	// Replayed is set on frames rendered from the buffer.
	Replayed bool `json:"replayed"`

	Frame []byte `json:"-"`
}

// EndReason says why a session ended.
type EndReason string

const (
	// EndOfStream means the source ran out of frames.
	EndOfStream EndReason = "end_of_stream"
	// EndStopped means a stop command ended the session.
	EndStopped EndReason = "stopped"
	// EndCanceled means the Run context was canceled.
	EndCanceled EndReason = "canceled"
	// EndSourceFail means the source returned an error other than end of stream.
	EndSourceFail EndReason = "source_error"
)

// Summary describes a finished session.
type Summary struct {
	SessionID   string    `json:"session_id"`
	Reason      EndReason `json:"reason"`
	Consumed    int       `json:"consumed"`
	Rendered    int       `json:"rendered"`
	Discarded   int       `json:"discarded"`
	Predictions int       `json:"predictions"`
	Started     time.Time `json:"started"`
	Ended       time.Time `json:"ended"`
}

// Renderer receives everything the controller produces. Implementations
// must not block for long; they run on the tick goroutine.
type Renderer interface {
	// RenderFrame is called exactly once for every consumed frame, in order.
	RenderFrame(snap *FrameSnapshot)

	// RenderPrediction is called while predicting with the live prediction
	// drawn over the last rendered frame.
	RenderPrediction(snap *FrameSnapshot)

	// SessionEnded is called once when the session ends.
	SessionEnded(sum Summary)
}

// MultiRenderer fans every call out to several renderers in order.
type MultiRenderer []Renderer

// RenderFrame implements Renderer.
func (m MultiRenderer) RenderFrame(snap *FrameSnapshot) {
	for _, r := range m {
		r.RenderFrame(snap)
	}
}

// RenderPrediction implements Renderer.
func (m MultiRenderer) RenderPrediction(snap *FrameSnapshot) {
	for _, r := range m {
		r.RenderPrediction(snap)
	}
}

// SessionEnded implements Renderer.
func (m MultiRenderer) SessionEnded(sum Summary) {
	for _, r := range m {
		r.SessionEnded(sum)
	}
}

// Status is a point-in-time view of the controller.
type Status struct {
	SessionID   string               `json:"session_id"`
	State       State                `json:"state"`
	Paused      bool                 `json:"paused"`
	Ended       bool                 `json:"ended"`
	FrameIndex  int                  `json:"frame_index"`
	Buffered    int                  `json:"buffered"`
	Countdown   int                  `json:"countdown"`
	LookAhead   int                  `json:"look_ahead_seconds"`
	Pending     int                  `json:"pending_seconds"`
	Consumed    int                  `json:"consumed"`
	Rendered    int                  `json:"rendered"`
	Predictions int                  `json:"predictions"`
	Tracks      int                  `json:"tracks"`
	Ingest      tracking.IngestStats `json:"ingest"`
}
