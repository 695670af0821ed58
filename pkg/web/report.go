package web

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-trajectory/pkg/tracking"
)

// handleReport renders every track's world history as an HTML chart.
func (s *Server) handleReport(c *fiber.Ctx) error {
	ids := s.tracks.IDs()

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Trajectories", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Ground-plane trajectories", Subtitle: fmt.Sprintf("tracks=%d", len(ids))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "x (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: "y (m)", NameLocation: "middle", NameGap: 30}),
	)

	for _, id := range ids {
		snap, ok := s.tracks.Snapshot(id)
		if !ok || len(snap.World) == 0 {
			continue
		}
		data := make([]opts.LineData, len(snap.World))
		for i, w := range snap.World {
			data[i] = opts.LineData{Value: []interface{}{w.Pos.X, w.Pos.Y}, Name: fmt.Sprintf("frame %d", w.Frame)}
		}
		line.AddSeries(fmt.Sprintf("Person %d", id), data,
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true)}),
		)
	}

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Send(buf.Bytes())
}

// handleSessions lists recorded sessions, newest first.
func (s *Server) handleSessions(c *fiber.Ctx) error {
	h := s.attachedHistory()
	if h == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "recording disabled"})
	}
	rows, err := h.Sessions(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"sessions": rows})
}

// handleSessionTrack returns one track's recorded world positions.
func (s *Server) handleSessionTrack(c *fiber.Ctx) error {
	h := s.attachedHistory()
	if h == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "recording disabled"})
	}
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid track id"})
	}
	samples, err := h.Track(c.UserContext(), c.Params("session"), tracking.TrackID(id))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if len(samples) == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "track not recorded"})
	}
	return c.JSON(fiber.Map{"id": id, "world": samples})
}

// handleSessionPrediction returns the forecast recorded for a track at a frame.
func (s *Server) handleSessionPrediction(c *fiber.Ctx) error {
	h := s.attachedHistory()
	if h == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "recording disabled"})
	}
	frame, err := strconv.Atoi(c.Params("frame"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid frame"})
	}
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid track id"})
	}
	steps, err := h.Prediction(c.UserContext(), c.Params("session"), frame, tracking.TrackID(id))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if len(steps) == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no prediction recorded"})
	}
	return c.JSON(fiber.Map{"id": id, "frame": frame, "steps": steps})
}
