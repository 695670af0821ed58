package tracking

import (
	"log/slog"

	"github.com/teslashibe/go-trajectory/internal/log"
	"github.com/teslashibe/go-trajectory/pkg/calibration"
)

// IngestStats counts what the ingester has seen over a session.
type IngestStats struct {
	Frames     int `json:"frames"`
	Detections int `json:"detections"`
	InZone     int `json:"in_zone"`
	OutOfRange int `json:"out_of_range"`
	Evicted    int `json:"evicted"`
}

// Ingester feeds one frame of detections into the store.
type Ingester struct {
	store     *Store
	converter *calibration.Converter
	zone      *calibration.Zone
	logger    *slog.Logger

	stats IngestStats
}

// NewIngester wires the store to a calibration.
func NewIngester(store *Store, cal calibration.Calibration, logger *slog.Logger) *Ingester {
	return &Ingester{
		store:     store,
		converter: calibration.NewConverter(cal),
		zone:      calibration.NewZone(cal.Zone),
		logger:    log.Component(logger, "tracking.ingester"),
	}
}

// Ingest records every detection's pixel position and, for those inside the
// zone, its ground position. It returns the ground positions active in this
// frame. Unknown ids start new tracks.
func (in *Ingester) Ingest(frame int, detections []Detection) Positions {
	active := make(Positions, len(detections))

	for _, det := range detections {
		in.store.AppendPixel(det.ID, frame, det.Center)
		in.stats.Detections++

		if !in.zone.Contains(det.Center.X, det.Center.Y) {
			continue
		}

		xm, ym := in.converter.PixelToWorld(det.Center.X, det.Center.Y)
		if !in.converter.InRange(xm, ym) {
			in.stats.OutOfRange++
			in.logger.Warn("conversion outside calibrated range",
				"track", det.ID,
				"frame", frame,
				"x_px", det.Center.X,
				"y_px", det.Center.Y,
				"x_m", xm,
				"y_m", ym,
			)
		}

		pos := WorldPosition{X: xm, Y: ym}
		in.store.AppendWorld(det.ID, frame, pos)
		active[det.ID] = pos
		in.stats.InZone++
	}

	if n := in.store.Sweep(frame); n > 0 {
		in.stats.Evicted += n
		in.logger.Debug("evicted idle tracks", "frame", frame, "count", n)
	}
	in.stats.Frames++

	return active
}

// Stats returns the running counters.
func (in *Ingester) Stats() IngestStats {
	return in.stats
}
