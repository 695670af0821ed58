package plan

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-trajectory/internal/log"
	"github.com/teslashibe/go-trajectory/pkg/playback"
	"github.com/teslashibe/go-trajectory/pkg/prediction"
	"github.com/teslashibe/go-trajectory/pkg/tracking"
)

func snapshot() *playback.FrameSnapshot {
	steps := make([]tracking.WorldPosition, 15)
	for i := range steps {
		steps[i] = tracking.WorldPosition{X: 2 + 0.1*float64(i), Y: 10 + 0.3*float64(i)}
	}
	return &playback.FrameSnapshot{
		FrameIndex: 42,
		Active: tracking.Positions{
			1: {X: 2, Y: 10},
			7: {X: 5.5, Y: 21},
		},
		Prediction: &prediction.Result{
			Frame:  40,
			Tracks: map[tracking.TrackID][]tracking.WorldPosition{1: steps},
		},
	}
}

func TestRender_PNG(t *testing.T) {
	r, err := New(DefaultConfig(), log.Discard())
	require.NoError(t, err)

	data, err := r.Render(snapshot())
	require.NoError(t, err)

	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Greater(t, cfg.Height, cfg.Width, "plan should be portrait")
}

func TestRender_EmptySnapshot(t *testing.T) {
	r, err := New(DefaultConfig(), log.Discard())
	require.NoError(t, err)

	data, err := r.Render(&playback.FrameSnapshot{FrameIndex: 1})
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestColor_StablePerTrack(t *testing.T) {
	r, err := New(DefaultConfig(), log.Discard())
	require.NoError(t, err)

	first := r.Color(9)
	second := r.Color(3)
	assert.NotEqual(t, first, second)
	assert.Equal(t, first, r.Color(9))

	_, err = r.Render(snapshot())
	require.NoError(t, err)
	assert.Equal(t, second, r.Color(3), "rendering must not reshuffle colors")
}

func TestPath_ClipsToMaxSteps(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSteps = 4
	r, err := New(cfg, log.Discard())
	require.NoError(t, err)

	snap := snapshot()
	xys := r.path(snap.Prediction, 1)
	require.Len(t, xys, 4)
	assert.Equal(t, 2.0, xys[0].X)
	assert.Equal(t, 10.0, xys[0].Y)

	cfg.MaxSteps = 0
	r, err = New(cfg, log.Discard())
	require.NoError(t, err)
	assert.Len(t, r.path(snap.Prediction, 1), 15)
	assert.Empty(t, r.path(snap.Prediction, 99))
}

func TestNew_Background(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bg.png")

	img := image.NewRGBA(image.Rect(0, 0, 17, 64))
	img.Set(3, 3, color.RGBA{R: 200, A: 255})
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	cfg := DefaultConfig()
	cfg.Background = path
	r, err := New(cfg, log.Discard())
	require.NoError(t, err)

	_, err = r.Render(snapshot())
	assert.NoError(t, err)
}

func TestNew_MissingBackground(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Background = filepath.Join(t.TempDir(), "missing.png")
	_, err := New(cfg, log.Discard())
	assert.Error(t, err)
}

func TestNew_FillsDefaults(t *testing.T) {
	r, err := New(Config{}, log.Discard())
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Bounds, r.cfg.Bounds)
	assert.Equal(t, r.cfg.Bounds, r.cfg.BackgroundExtent)
}

func TestLayers_PathsOnlyForActivePeople(t *testing.T) {
	snap := &playback.FrameSnapshot{
		FrameIndex: 12,
		State:      playback.StateLive,
		Active:     tracking.Positions{2: {X: 3, Y: 12}},
		Prediction: &prediction.Result{
			Frame: 10,
			Tracks: map[tracking.TrackID][]tracking.WorldPosition{
				1: {{X: 1, Y: 5}, {X: 1.1, Y: 5.2}},
				2: {{X: 3, Y: 12}, {X: 3.1, Y: 12.4}},
			},
		},
	}

	points, paths := layers(snap)
	assert.Equal(t, []tracking.TrackID{2}, points)
	assert.Equal(t, []tracking.TrackID{2}, paths)

	r, err := New(DefaultConfig(), log.Discard())
	require.NoError(t, err)
	_, err = r.Render(snap)
	require.NoError(t, err)

	_, colored := r.colors[1]
	assert.False(t, colored, "a person missing from the frame must not be drawn")
	assert.Len(t, r.colors, 1)
}

func TestLayers_HidesPositionsWhileBuffering(t *testing.T) {
	snap := snapshot()
	snap.State = playback.StatePredictingBuffered

	points, paths := layers(snap)
	assert.Empty(t, points)
	assert.Equal(t, []tracking.TrackID{1}, paths)

	snap.State = playback.StateReplaying
	points, _ = layers(snap)
	assert.Equal(t, []tracking.TrackID{1, 7}, points)
}

func TestLayers_NoPrediction(t *testing.T) {
	snap := snapshot()
	snap.Prediction = nil

	points, paths := layers(snap)
	assert.Equal(t, []tracking.TrackID{1, 7}, points)
	assert.Empty(t, paths)
}
