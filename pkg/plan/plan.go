// Package plan draws the ground plane seen from above: where every tracked
// person stands now and where the forecaster expects them to walk.
package plan

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"sort"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/teslashibe/go-trajectory/internal/log"
	"github.com/teslashibe/go-trajectory/pkg/calibration"
	"github.com/teslashibe/go-trajectory/pkg/playback"
	"github.com/teslashibe/go-trajectory/pkg/prediction"
	"github.com/teslashibe/go-trajectory/pkg/tracking"
)

// Config holds plan rendering configuration.
type Config struct {
	// Width and Height of the PNG in inches at 96 dpi.
	Width  float64 `yaml:"width" validate:"gt=0"`
	Height float64 `yaml:"height" validate:"gt=0"`

	// Bounds is the visible ground region in meters.
	Bounds calibration.WorldBounds `yaml:"bounds"`

	// Background is an optional top-down image of the scene, stretched
	// over BackgroundExtent.
	Background       string                  `yaml:"background"`
	BackgroundExtent calibration.WorldBounds `yaml:"background_extent"`

	// MaxSteps limits how many predicted positions are drawn per person.
	MaxSteps int `yaml:"max_steps" validate:"gte=0"`

	Grid   bool `yaml:"grid"`
	Legend bool `yaml:"legend"`
}

// DefaultConfig returns a portrait plan of the calibrated region.
func DefaultConfig() Config {
	return Config{
		Width:            4,
		Height:           8,
		Bounds:           calibration.WorldBounds{MinX: 0, MaxX: 8, MinY: 0, MaxY: 32},
		BackgroundExtent: calibration.WorldBounds{MinX: 0, MaxX: 8.5, MinY: 0, MaxY: 32},
		MaxSteps:         10,
		Grid:             true,
		Legend:           true,
	}
}

// Renderer turns snapshots into PNG plans. Safe for concurrent use.
type Renderer struct {
	cfg        Config
	background image.Image
	logger     *slog.Logger

	mu     sync.Mutex
	colors map[tracking.TrackID]int
}

// New creates a renderer, loading the background image if one is configured.
func New(cfg Config, logger *slog.Logger) (*Renderer, error) {
	def := DefaultConfig()
	if cfg.Width <= 0 {
		cfg.Width = def.Width
	}
	if cfg.Height <= 0 {
		cfg.Height = def.Height
	}
	if cfg.Bounds == (calibration.WorldBounds{}) {
		cfg.Bounds = def.Bounds
	}
	if cfg.BackgroundExtent == (calibration.WorldBounds{}) {
		cfg.BackgroundExtent = cfg.Bounds
	}

	r := &Renderer{
		cfg:    cfg,
		logger: log.Component(logger, "plan"),
		colors: make(map[tracking.TrackID]int),
	}

	if cfg.Background != "" {
		img, err := loadImage(cfg.Background)
		if err != nil {
			return nil, err
		}
		r.background = img
	}
	return r, nil
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("plan: open background: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("plan: decode background %s: %w", path, err)
	}
	return img, nil
}

// Color returns the color for a track. A track keeps its color for the
// lifetime of the renderer; colors are handed out in first-seen order.
func (r *Renderer) Color(id tracking.TrackID) color.Color {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.colors[id]
	if !ok {
		idx = len(r.colors)
		r.colors[id] = idx
	}
	return plotutil.Color(idx)
}

// Render draws the snapshot's active positions and, when present, the
// predicted paths of those people. It returns PNG bytes.
func (r *Renderer) Render(snap *playback.FrameSnapshot) ([]byte, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Frame %d", snap.FrameIndex)
	p.X.Label.Text = "x [m]"
	p.Y.Label.Text = "y [m]"
	p.X.Min, p.X.Max = r.cfg.Bounds.MinX, r.cfg.Bounds.MaxX
	p.Y.Min, p.Y.Max = r.cfg.Bounds.MinY, r.cfg.Bounds.MaxY
	// Depth grows away from the camera, drawn top to bottom as in the video.
	p.Y.Scale = plot.InvertedScale{Normalizer: p.Y.Scale}

	if r.background != nil {
		ext := r.cfg.BackgroundExtent
		p.Add(plotter.NewImage(r.background, ext.MinX, ext.MinY, ext.MaxX, ext.MaxY))
	}
	if r.cfg.Grid {
		p.Add(plotter.NewGrid())
	}

	points, paths := layers(snap)

	for _, id := range points {
		pos := snap.Active[id]
		sc, err := plotter.NewScatter(plotter.XYs{{X: pos.X, Y: pos.Y}})
		if err != nil {
			return nil, fmt.Errorf("plan: person %d: %w", id, err)
		}
		sc.GlyphStyle.Color = r.Color(id)
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		sc.GlyphStyle.Radius = vg.Points(4)
		p.Add(sc)
		if r.cfg.Legend {
			p.Legend.Add(fmt.Sprintf("Person %d", id), sc)
		}
	}

	for _, id := range paths {
		xys := r.path(snap.Prediction, id)
		if len(xys) == 0 {
			continue
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return nil, fmt.Errorf("plan: prediction %d: %w", id, err)
		}
		line.Color = r.Color(id)
		line.Width = vg.Points(2)
		p.Add(line)
		if r.cfg.Legend {
			p.Legend.Add(fmt.Sprintf("Person %d prediction", id), line)
		}
	}

	wt, err := p.WriterTo(vg.Length(r.cfg.Width)*vg.Inch, vg.Length(r.cfg.Height)*vg.Inch, "png")
	if err != nil {
		return nil, fmt.Errorf("plan: canvas: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("plan: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// layers picks what a snapshot draws. Positions are hidden while a
// prediction is being buffered, since those frames lie in the future of
// the forecast. Only people present in the frame get a predicted path.
func layers(snap *playback.FrameSnapshot) (points, paths []tracking.TrackID) {
	active := make([]tracking.TrackID, 0, len(snap.Active))
	for id := range snap.Active {
		active = append(active, id)
	}
	sort.Slice(active, func(i, j int) bool { return active[i] < active[j] })

	if snap.State != playback.StatePredictingBuffered {
		points = active
	}
	if snap.Prediction == nil {
		return points, nil
	}
	for _, id := range active {
		if _, ok := snap.Prediction.Tracks[id]; ok {
			paths = append(paths, id)
		}
	}
	return points, paths
}

// path returns the first MaxSteps predicted positions of one track.
func (r *Renderer) path(res *prediction.Result, id tracking.TrackID) plotter.XYs {
	steps := res.Tracks[id]
	if r.cfg.MaxSteps > 0 && len(steps) > r.cfg.MaxSteps {
		steps = steps[:r.cfg.MaxSteps]
	}
	xys := make(plotter.XYs, len(steps))
	for i, s := range steps {
		xys[i] = plotter.XY{X: s.X, Y: s.Y}
	}
	return xys
}
