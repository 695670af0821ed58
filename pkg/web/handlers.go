package web

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-trajectory/pkg/hub"
	"github.com/teslashibe/go-trajectory/pkg/playback"
	"github.com/teslashibe/go-trajectory/pkg/tracking"
)

// StatusResponse is returned by GET /api/status.
type StatusResponse struct {
	Playback   *playback.Status  `json:"playback,omitempty"`
	LookAheads []int             `json:"look_aheads,omitempty"`
	Summary    *playback.Summary `json:"summary,omitempty"`
	Hubs       []hub.Stats       `json:"hubs"`
}

// PredictRequest is the body of POST /api/predict.
type PredictRequest struct {
	Seconds int `json:"seconds"`
}

// handleStatus returns playback state and stream counters
func (s *Server) handleStatus(c *fiber.Ctx) error {
	resp := StatusResponse{
		Hubs: []hub.Stats{s.videoHub.Stats(), s.snapshotHub.Stats(), s.planHub.Stats()},
	}
	if p := s.attached(); p != nil {
		st := p.Status()
		resp.Playback = &st
		resp.LookAheads = p.LookAheads()
	}
	s.mu.RLock()
	resp.Summary = s.summary
	s.mu.RUnlock()
	return c.JSON(resp)
}

func (s *Server) handlePredict(c *fiber.Ctx) error {
	var req PredictRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	return s.submit(c, playback.Command{Kind: playback.CmdPredict, Seconds: req.Seconds})
}

func (s *Server) handlePause(c *fiber.Ctx) error {
	return s.submit(c, playback.Command{Kind: playback.CmdPause})
}

func (s *Server) handleResume(c *fiber.Ctx) error {
	return s.submit(c, playback.Command{Kind: playback.CmdResume})
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	return s.submit(c, playback.Command{Kind: playback.CmdStop})
}

// submit validates cmd and queues it on the controller.
func (s *Server) submit(c *fiber.Ctx, cmd playback.Command) error {
	status, err := s.dispatch(cmd)
	if err != nil {
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusAccepted).JSON(cmd)
}

// dispatch is shared by the REST and websocket control paths.
func (s *Server) dispatch(cmd playback.Command) (int, error) {
	p := s.attached()
	if p == nil {
		return fiber.StatusServiceUnavailable, errors.New("playback not attached")
	}
	if cmd.Kind == playback.CmdPredict && !p.Accepts(cmd.Seconds) {
		return fiber.StatusBadRequest, playback.ErrInvalidLookAhead
	}
	err := p.Submit(cmd)
	switch {
	case err == nil:
		return fiber.StatusAccepted, nil
	case errors.Is(err, playback.ErrSessionEnded):
		return fiber.StatusConflict, err
	case errors.Is(err, playback.ErrBusy):
		return fiber.StatusServiceUnavailable, err
	default:
		return fiber.StatusInternalServerError, err
	}
}

func (s *Server) handleListTracks(c *fiber.Ctx) error {
	ids := s.tracks.IDs()
	infos := make([]tracking.TrackInfo, 0, len(ids))
	for _, id := range ids {
		if info, ok := s.tracks.Info(id); ok {
			infos = append(infos, info)
		}
	}
	return c.JSON(fiber.Map{"tracks": infos})
}

func (s *Server) handleGetTrack(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid track id"})
	}
	snap, ok := s.tracks.Snapshot(tracking.TrackID(id))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "track not found"})
	}
	return c.JSON(snap)
}

// handlePlan returns the most recent ground plan
func (s *Server) handlePlan(c *fiber.Ctx) error {
	s.mu.RLock()
	png := s.lastPlan
	s.mu.RUnlock()
	if png == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no plan rendered yet"})
	}
	c.Set(fiber.HeaderContentType, "image/png")
	return c.Send(png)
}
