// Package web serves the trajectory dashboard: live video, per-frame
// snapshots and ground plan over websockets, plus a small control API.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-trajectory/internal/log"
	"github.com/teslashibe/go-trajectory/pkg/hub"
	"github.com/teslashibe/go-trajectory/pkg/plan"
	"github.com/teslashibe/go-trajectory/pkg/playback"
	"github.com/teslashibe/go-trajectory/pkg/store"
	"github.com/teslashibe/go-trajectory/pkg/tracking"
)

// Config holds dashboard configuration.
type Config struct {
	Port      string `yaml:"port" validate:"required,numeric"`
	StaticDir string `yaml:"static_dir"`
	// PlanEvery renders the ground plan every n-th live frame. Frames
	// carrying a prediction are always rendered.
	PlanEvery int  `yaml:"plan_every" validate:"gte=0"`
	AccessLog bool `yaml:"access_log"`
}

// DefaultConfig returns dashboard defaults.
func DefaultConfig() Config {
	return Config{
		Port:      "8080",
		StaticDir: "./web",
		PlanEvery: 5,
	}
}

// Playback is the part of the controller the dashboard drives.
type Playback interface {
	Submit(cmd playback.Command) error
	Status() playback.Status
	Accepts(seconds int) bool
	LookAheads() []int
}

// History is the recorded past sessions, usually a *store.Recorder.
type History interface {
	Sessions(ctx context.Context) ([]store.SessionRow, error)
	Track(ctx context.Context, session string, id tracking.TrackID) ([]tracking.WorldSample, error)
	Prediction(ctx context.Context, session string, frame int, id tracking.TrackID) ([]tracking.WorldPosition, error)
}

// Event is what the snapshots socket carries.
type Event struct {
	Type     string                  `json:"type"`
	Snapshot *playback.FrameSnapshot `json:"snapshot,omitempty"`
	Summary  *playback.Summary       `json:"summary,omitempty"`
	Message  string                  `json:"message,omitempty"`
}

const (
	EventFrame      = "frame"
	EventPrediction = "prediction"
	EventEnded      = "ended"
)

// Server is the dashboard. It implements playback.Renderer.
type Server struct {
	app    *fiber.App
	cfg    Config
	logger *slog.Logger

	tracks *tracking.Store
	plan   *plan.Renderer

	videoHub    *hub.Hub
	snapshotHub *hub.Hub
	planHub     *hub.Hub

	planQueue chan *playback.FrameSnapshot

	mu       sync.RWMutex
	playback Playback
	history  History
	lastPlan []byte
	summary  *playback.Summary
	frames   int
}

// NewServer creates the dashboard. planner may be nil to disable the plan
// stream.
func NewServer(cfg Config, tracks *tracking.Store, planner *plan.Renderer, logger *slog.Logger) *Server {
	if cfg.Port == "" {
		cfg.Port = DefaultConfig().Port
	}
	logger = log.Component(logger, "web")

	s := &Server{
		cfg:         cfg,
		logger:      logger,
		tracks:      tracks,
		plan:        planner,
		videoHub:    hub.New("video", logger),
		snapshotHub: hub.New("snapshots", logger, hub.WithSticky()),
		planHub:     hub.New("plan", logger, hub.WithSticky()),
		planQueue:   make(chan *playback.FrameSnapshot, 1),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Trajectory Dashboard",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New())
	if cfg.AccessLog {
		app.Use(fiberlogger.New(fiberlogger.Config{Output: os.Stdout}))
	}

	if cfg.StaticDir != "" {
		if _, err := os.Stat(cfg.StaticDir); err == nil {
			app.Static("/", cfg.StaticDir)
		}
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/predict", s.handlePredict)
	api.Post("/pause", s.handlePause)
	api.Post("/resume", s.handleResume)
	api.Post("/stop", s.handleStop)
	api.Get("/tracks", s.handleListTracks)
	api.Get("/tracks/:id", s.handleGetTrack)
	api.Get("/plan", s.handlePlan)
	api.Get("/report", s.handleReport)
	api.Get("/sessions", s.handleSessions)
	api.Get("/sessions/:session/tracks/:id", s.handleSessionTrack)
	api.Get("/sessions/:session/frames/:frame/predictions/:id", s.handleSessionPrediction)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/video", websocket.New(s.videoHub.Serve))
	app.Get("/ws/snapshots", websocket.New(s.snapshotHub.Serve))
	app.Get("/ws/plan", websocket.New(s.planHub.Serve))
	s.registerControl(app)

	s.app = app
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Attach connects the dashboard to a playback controller.
func (s *Server) Attach(p Playback) {
	s.mu.Lock()
	s.playback = p
	s.mu.Unlock()
}

// AttachHistory exposes recorded sessions under /api/sessions.
func (s *Server) AttachHistory(h History) {
	s.mu.Lock()
	s.history = h
	s.mu.Unlock()
}

func (s *Server) attachedHistory() History {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history
}

func (s *Server) attached() Playback {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playback
}

// Start listens on the configured port and serves until ctx is canceled or
// the listener fails.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+s.cfg.Port)
	if err != nil {
		return fmt.Errorf("web: listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the hubs and the plan worker, then serves HTTP on ln until ctx
// is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.videoHub.Run(ctx)
	go s.snapshotHub.Run(ctx)
	go s.planHub.Run(ctx)
	go s.planWorker(ctx)

	go func() {
		<-ctx.Done()
		if err := s.app.Shutdown(); err != nil {
			s.logger.Warn("shutdown", "error", err)
		}
	}()

	s.logger.Info("dashboard listening", "addr", ln.Addr().String())
	if err := s.app.Listener(ln); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// RenderFrame implements playback.Renderer.
func (s *Server) RenderFrame(snap *playback.FrameSnapshot) {
	if len(snap.Frame) > 0 {
		s.videoHub.BroadcastBinary(snap.Frame)
	}
	if err := s.snapshotHub.BroadcastJSON(Event{Type: EventFrame, Snapshot: snap}); err != nil {
		s.logger.Warn("encode snapshot", "frame", snap.FrameIndex, "error", err)
	}

	s.mu.Lock()
	s.frames++
	due := s.cfg.PlanEvery > 0 && s.frames%s.cfg.PlanEvery == 0
	s.mu.Unlock()
	if due || snap.Prediction != nil {
		s.queuePlan(snap)
	}
}

// RenderPrediction implements playback.Renderer. The frame is the last
// live background, shown while playback is held.
func (s *Server) RenderPrediction(snap *playback.FrameSnapshot) {
	if len(snap.Frame) > 0 {
		s.videoHub.BroadcastBinary(snap.Frame)
	}
	if err := s.snapshotHub.BroadcastJSON(Event{Type: EventPrediction, Snapshot: snap}); err != nil {
		s.logger.Warn("encode prediction", "frame", snap.FrameIndex, "error", err)
	}
	s.queuePlan(snap)
}

// SessionEnded implements playback.Renderer.
func (s *Server) SessionEnded(sum playback.Summary) {
	s.mu.Lock()
	s.summary = &sum
	s.mu.Unlock()

	if err := s.snapshotHub.BroadcastJSON(Event{Type: EventEnded, Summary: &sum, Message: "Video ended"}); err != nil {
		s.logger.Warn("encode summary", "error", err)
	}
	s.logger.Info("session ended", "reason", sum.Reason, "rendered", sum.Rendered)
}

// queuePlan hands the snapshot to the plan worker. Only the newest
// snapshot is kept; the tick loop never waits on plotting.
func (s *Server) queuePlan(snap *playback.FrameSnapshot) {
	if s.plan == nil {
		return
	}
	for {
		select {
		case s.planQueue <- snap:
			return
		default:
		}
		select {
		case <-s.planQueue:
		default:
		}
	}
}

func (s *Server) planWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-s.planQueue:
			s.renderPlan(snap)
		}
	}
}

func (s *Server) renderPlan(snap *playback.FrameSnapshot) {
	png, err := s.plan.Render(snap)
	if err != nil {
		s.logger.Warn("render plan", "frame", snap.FrameIndex, "error", err)
		return
	}
	s.mu.Lock()
	s.lastPlan = png
	s.mu.Unlock()
	s.planHub.BroadcastBinary(png)
}

var _ playback.Renderer = (*Server)(nil)
