package detection

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-trajectory/pkg/calibration"
	"github.com/teslashibe/go-trajectory/pkg/tracking"
)

// AnnotateStyle controls what is drawn on each frame.
type AnnotateStyle struct {
	BoxColor      color.RGBA
	TextColor     color.RGBA
	TrailColor    color.RGBA
	ZoneColor     color.RGBA
	ZoneAlpha     float64
	TrailLength   int
	TrailThick    int
	DrawZone      bool
	DrawTrails    bool
	DrawPositions bool
}

// DefaultAnnotateStyle draws boxes, ids, meter positions, a light trail of
// the last 90 centers and a translucent zone.
func DefaultAnnotateStyle() AnnotateStyle {
	return AnnotateStyle{
		BoxColor:      color.RGBA{R: 0, G: 200, B: 255, A: 0},
		TextColor:     color.RGBA{R: 255, G: 255, B: 255, A: 0},
		TrailColor:    color.RGBA{R: 230, G: 230, B: 230, A: 0},
		ZoneColor:     color.RGBA{R: 0, G: 0, B: 255, A: 0},
		ZoneAlpha:     0.1,
		TrailLength:   90,
		TrailThick:    4,
		DrawZone:      true,
		DrawTrails:    true,
		DrawPositions: true,
	}
}

// Annotator draws tracking state onto frames.
type Annotator struct {
	style     AnnotateStyle
	converter *calibration.Converter
	zone      *calibration.Zone
	store     *tracking.Store
	zonePts   [][]image.Point
}

// NewAnnotator creates an annotator. store may be nil, in which case no
// trails are drawn.
func NewAnnotator(style AnnotateStyle, cal calibration.Calibration, store *tracking.Store) *Annotator {
	pts := make([]image.Point, len(cal.Zone))
	for i, v := range cal.Zone {
		pts[i] = image.Pt(int(v.X), int(v.Y))
	}
	return &Annotator{
		style:     style,
		converter: calibration.NewConverter(cal),
		zone:      calibration.NewZone(cal.Zone),
		store:     store,
		zonePts:   [][]image.Point{pts},
	}
}

// Annotate draws onto img in place.
func (a *Annotator) Annotate(img *gocv.Mat, dets []tracking.Detection) {
	if a.style.DrawZone && len(a.zonePts[0]) >= 3 {
		a.drawZone(img)
	}

	for _, det := range dets {
		cx, cy := int(det.Center.X), int(det.Center.Y)

		if a.style.DrawTrails && a.store != nil {
			a.drawTrail(img, det)
		}

		gocv.Rectangle(img, det.Box, a.style.BoxColor, 2)
		gocv.PutText(img, fmt.Sprintf("id:%d", det.ID), image.Pt(det.Box.Min.X, det.Box.Min.Y-4),
			gocv.FontHersheySimplex, 0.5, a.style.BoxColor, 1)

		if a.style.DrawPositions && a.zone.Contains(det.Center.X, det.Center.Y) {
			xm, ym := a.converter.PixelToWorld(det.Center.X, det.Center.Y)
			gocv.PutText(img, fmt.Sprintf("x=%.2fm, y=%.2fm", xm, ym), image.Pt(cx, cy-10),
				gocv.FontHersheySimplex, 0.5, a.style.TextColor, 1)
		}
	}
}

func (a *Annotator) drawZone(img *gocv.Mat) {
	overlay := img.Clone()
	defer overlay.Close()

	pv := gocv.NewPointsVectorFromPoints(a.zonePts)
	defer pv.Close()

	gocv.Polylines(&overlay, pv, true, a.style.ZoneColor, 2)
	gocv.FillPoly(&overlay, pv, a.style.ZoneColor)
	gocv.AddWeighted(overlay, a.style.ZoneAlpha, *img, 1-a.style.ZoneAlpha, 0, img)
}

func (a *Annotator) drawTrail(img *gocv.Mat, det tracking.Detection) {
	samples := a.store.TailPixel(det.ID, a.style.TrailLength)
	pts := make([]image.Point, 0, len(samples)+1)
	for _, s := range samples {
		pts = append(pts, image.Pt(int(s.Pos.X), int(s.Pos.Y)))
	}
	pts = append(pts, image.Pt(int(det.Center.X), int(det.Center.Y)))
	if len(pts) < 2 {
		return
	}

	pv := gocv.NewPointsVectorFromPoints([][]image.Point{pts})
	defer pv.Close()
	gocv.Polylines(img, pv, false, a.style.TrailColor, a.style.TrailThick)
}
