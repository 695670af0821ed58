package prediction

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/teslashibe/go-trajectory/internal/log"
	"github.com/teslashibe/go-trajectory/pkg/forecast"
	"github.com/teslashibe/go-trajectory/pkg/tracking"
)

// walk appends one in-zone sample per frame for id over [from, to].
func walk(store *tracking.Store, id tracking.TrackID, from, to int) {
	for frame := from; frame <= to; frame++ {
		store.AppendPixel(id, frame, tracking.PixelPosition{X: 100, Y: 200 + float64(frame)})
		store.AppendWorld(id, frame, tracking.WorldPosition{X: 2, Y: float64(frame)})
	}
}

func newScheduler(store *tracking.Store, f forecast.Forecaster) *Scheduler {
	return NewScheduler(store, f, DefaultCadence(), log.Discard())
}

func TestMaybePredict_FirstEligibleTick(t *testing.T) {
	store := tracking.NewStore(tracking.DefaultConfig())
	mock := forecast.NewMock(12)
	s := newScheduler(store, mock)

	walk(store, 1, 1, 10)
	_, ok := s.MaybePredict(context.Background(), 10)
	assert.False(t, ok, "10 samples is not enough")

	walk(store, 1, 11, 19)
	_, ok = s.MaybePredict(context.Background(), 19)
	assert.False(t, ok, "frame 19 is not a periodic tick")

	walk(store, 1, 20, 20)
	result, ok := s.MaybePredict(context.Background(), 20)
	require.True(t, ok)
	assert.Equal(t, 20, result.Frame)
	require.Contains(t, result.Tracks, tracking.TrackID(1))
	assert.Len(t, result.Tracks[1], 10, "output clipped to OutputLength")

	assert.Equal(t, 1, mock.CallCount("Forecast"))
}

func TestMaybePredict_ExactlyWindowIsExcluded(t *testing.T) {
	store := tracking.NewStore(tracking.DefaultConfig())
	s := newScheduler(store, forecast.NewMock(5))
	s.SetMode(ModeContinuous)

	walk(store, 1, 1, 19)
	_, ok := s.MaybePredict(context.Background(), 19)
	assert.False(t, ok)

	walk(store, 1, 20, 20)
	_, ok = s.MaybePredict(context.Background(), 20)
	assert.True(t, ok)
}

func TestMaybePredict_UsesOnlyTrailingWindow(t *testing.T) {
	run := func(older float64) *mat.Dense {
		store := tracking.NewStore(tracking.DefaultConfig())
		for frame := 1; frame <= 10; frame++ {
			store.AppendPixel(1, frame, tracking.PixelPosition{})
			store.AppendWorld(1, frame, tracking.WorldPosition{X: older, Y: older})
		}
		walk(store, 1, 11, 40)

		mock := forecast.NewMock(1)
		s := newScheduler(store, mock)
		_, ok := s.MaybePredict(context.Background(), 40)
		require.True(t, ok)
		return mock.LastCall().Window
	}

	a := run(0)
	b := run(1000)

	r, c := a.Dims()
	assert.Equal(t, 19, r)
	assert.Equal(t, 2, c)
	assert.True(t, mat.Equal(a, b), "older samples leaked into the window")

	// Oldest row of the window is frame 22, newest frame 40.
	assert.Equal(t, 22.0, a.At(0, 1))
	assert.Equal(t, 40.0, a.At(18, 1))
}

func TestMaybePredict_OneCallPerEligibleTrack(t *testing.T) {
	store := tracking.NewStore(tracking.DefaultConfig())
	mock := forecast.NewMock(3)
	s := newScheduler(store, mock)

	walk(store, 3, 1, 30)
	walk(store, 1, 1, 30)
	walk(store, 2, 25, 30) // too short

	result, ok := s.MaybePredict(context.Background(), 30)
	require.True(t, ok)
	assert.Equal(t, []tracking.TrackID{1, 3}, result.IDs())
	assert.Equal(t, 2, mock.CallCount("Forecast"))
}

func TestMaybePredict_PixelOnlyTrackExcluded(t *testing.T) {
	store := tracking.NewStore(tracking.DefaultConfig())
	s := newScheduler(store, forecast.NewMock(3))

	// Long pixel history but never inside the zone.
	for frame := 1; frame <= 40; frame++ {
		store.AppendPixel(9, frame, tracking.PixelPosition{X: 10, Y: 10})
	}

	_, ok := s.MaybePredict(context.Background(), 40)
	assert.False(t, ok)
}

func TestMaybePredict_ForecastErrorDropsTrack(t *testing.T) {
	store := tracking.NewStore(tracking.DefaultConfig())
	mock := forecast.NewMock(3)
	inner := mock.ForecastFunc
	mock.ForecastFunc = func(ctx context.Context, w *mat.Dense) (*mat.Dense, error) {
		// Track 1 walks at x=2 but track 2 is shifted; fail on track 2.
		if w.At(0, 0) > 5 {
			return nil, errors.New("model rejected input")
		}
		return inner(ctx, w)
	}
	s := newScheduler(store, mock)

	walk(store, 1, 1, 30)
	for frame := 1; frame <= 30; frame++ {
		store.AppendPixel(2, frame, tracking.PixelPosition{})
		store.AppendWorld(2, frame, tracking.WorldPosition{X: 7, Y: 1})
	}

	result, ok := s.MaybePredict(context.Background(), 30)
	require.True(t, ok)
	assert.Equal(t, []tracking.TrackID{1}, result.IDs())

	calls, fails := s.Stats()
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, fails)
}

func TestMaybePredict_LatestKept(t *testing.T) {
	store := tracking.NewStore(tracking.DefaultConfig())
	s := newScheduler(store, forecast.NewMock(3))
	walk(store, 1, 1, 30)

	_, ok := s.MaybePredict(context.Background(), 30)
	require.True(t, ok)
	assert.Equal(t, 30, s.Latest().Frame)

	s.Reset()
	assert.True(t, s.Latest().Empty())
}

func TestCadence(t *testing.T) {
	c := DefaultCadence()

	tests := []struct {
		mode   Mode
		frame  int
		expect bool
	}{
		{ModePeriodic, 0, true},
		{ModePeriodic, 10, true},
		{ModePeriodic, 15, false},
		{ModeContinuous, 15, true},
		{ModeContinuous, 1, true},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.expect, c.Triggers(tc.mode, tc.frame), "%s frame %d", tc.mode, tc.frame)
	}

	assert.Equal(t, 10, c.BufferedTicks(1))
	assert.Equal(t, 50, c.BufferedTicks(5))
	assert.Equal(t, 0, c.BufferedTicks(0))
}
