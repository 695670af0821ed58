package prediction

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/teslashibe/go-trajectory/internal/log"
	"github.com/teslashibe/go-trajectory/pkg/forecast"
	"github.com/teslashibe/go-trajectory/pkg/tracking"
)

// Result holds the forecasts produced at one frame.
type Result struct {
	Frame  int                                           `json:"frame"`
	Tracks map[tracking.TrackID][]tracking.WorldPosition `json:"tracks"`
}

// IDs returns the forecast track ids in ascending order.
func (r Result) IDs() []tracking.TrackID {
	ids := make([]tracking.TrackID, 0, len(r.Tracks))
	for id := range r.Tracks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Empty reports whether no track was forecast.
func (r Result) Empty() bool {
	return len(r.Tracks) == 0
}

// Scheduler runs the forecaster over the store on the configured cadence.
type Scheduler struct {
	store      *tracking.Store
	forecaster forecast.Forecaster
	cadence    Cadence
	logger     *slog.Logger

	mu     sync.Mutex
	mode   Mode
	latest Result
	calls  int
	fails  int
}

// NewScheduler creates a scheduler in periodic mode.
func NewScheduler(store *tracking.Store, f forecast.Forecaster, cadence Cadence, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:      store,
		forecaster: f,
		cadence:    cadence,
		logger:     log.Component(logger, "prediction.scheduler"),
		mode:       ModePeriodic,
	}
}

// Cadence returns the scheduler's cadence.
func (s *Scheduler) Cadence() Cadence {
	return s.cadence
}

// SetMode switches between periodic and continuous triggering.
func (s *Scheduler) SetMode(m Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != m {
		s.logger.Debug("mode changed", "from", s.mode, "to", m)
	}
	s.mode = m
}

// Mode returns the current triggering mode.
func (s *Scheduler) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Latest returns the most recent non-empty result.
func (s *Scheduler) Latest() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Eligible reports whether a track has enough history to be forecast.
func (s *Scheduler) Eligible(id tracking.TrackID) bool {
	w := s.cadence.RequiredWindow
	return s.store.PixelLen(id) > w && s.store.WorldLen(id) >= w
}

// MaybePredict runs the forecaster for every eligible track if frame is a
// trigger frame. ok is false when the frame does not trigger or no track
// could be forecast. Tracks are visited in ascending id order, one
// forecaster call each; a failed call drops only that track.
func (s *Scheduler) MaybePredict(ctx context.Context, frame int) (Result, bool) {
	if !s.cadence.Triggers(s.Mode(), frame) {
		return Result{}, false
	}

	start := time.Now()
	result := Result{Frame: frame, Tracks: make(map[tracking.TrackID][]tracking.WorldPosition)}

	for _, id := range s.store.IDs() {
		if !s.Eligible(id) {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		window := s.window(id)
		out, err := s.forecaster.Forecast(ctx, window)
		s.mu.Lock()
		s.calls++
		if err != nil {
			s.fails++
		}
		s.mu.Unlock()
		if err != nil {
			s.logger.Warn("forecast failed", "track", id, "frame", frame, "error", err)
			continue
		}

		result.Tracks[id] = s.positions(out)
	}

	if result.Empty() {
		return result, false
	}

	s.logger.Debug("prediction tick",
		"frame", frame,
		"tracks", len(result.Tracks),
		"latency_ms", time.Since(start).Milliseconds(),
	)

	s.mu.Lock()
	s.latest = result
	s.mu.Unlock()
	return result, true
}

// window builds the forecaster input from the trailing ground samples.
func (s *Scheduler) window(id tracking.TrackID) *mat.Dense {
	samples := s.store.TailWorld(id, s.cadence.RequiredWindow)
	data := make([]float64, 0, 2*len(samples))
	for _, sample := range samples {
		data = append(data, sample.Pos.X, sample.Pos.Y)
	}
	return mat.NewDense(len(samples), 2, data)
}

// positions converts forecaster output, keeping at most OutputLength rows.
func (s *Scheduler) positions(out *mat.Dense) []tracking.WorldPosition {
	rows, _ := out.Dims()
	if s.cadence.OutputLength > 0 && rows > s.cadence.OutputLength {
		rows = s.cadence.OutputLength
	}
	path := make([]tracking.WorldPosition, rows)
	for i := 0; i < rows; i++ {
		path[i] = tracking.WorldPosition{X: out.At(i, 0), Y: out.At(i, 1)}
	}
	return path
}

// Stats returns the number of forecaster calls made and how many failed.
func (s *Scheduler) Stats() (calls, failures int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls, s.fails
}

// Reset forgets the latest result.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = Result{}
}
