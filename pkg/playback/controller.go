package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-trajectory/internal/log"
	"github.com/teslashibe/go-trajectory/pkg/prediction"
	"github.com/teslashibe/go-trajectory/pkg/tracking"
)

// Controller owns the playback state machine for one session.
//
// Ticks are serialized. Commands may arrive from any goroutine; they are
// latched and take effect at the start of the next tick.
type Controller struct {
	cfg       Config
	source    FrameSource
	store     *tracking.Store
	ingester  *tracking.Ingester
	scheduler *prediction.Scheduler
	renderer  Renderer
	logger    *slog.Logger
	sessionID string
	started   time.Time
	commands  chan Command

	// Tick state, guarded by tickMu.
	tickMu     sync.Mutex
	state      State
	countdown  int
	lookAhead  int
	pending    int
	buffer     []*FrameSnapshot
	frameIndex int
	background []byte
	draining   bool
	drainWhy   EndReason

	// Requests and published status, guarded by mu.
	mu         sync.Mutex
	reqSeconds int
	paused     bool
	stopReq    bool
	status     Status
	summary    Summary
}

// NewController creates a controller in the Live state. The source must
// already be open.
func NewController(cfg Config, source FrameSource, store *tracking.Store, ingester *tracking.Ingester,
	scheduler *prediction.Scheduler, renderer Renderer, logger *slog.Logger) *Controller {
	if cfg.LiveInterval <= 0 {
		cfg.LiveInterval = DefaultConfig().LiveInterval
	}
	if cfg.ReplayInterval <= 0 {
		cfg.ReplayInterval = cfg.LiveInterval
	}
	if renderer == nil {
		renderer = MultiRenderer(nil)
	}

	id := uuid.NewString()
	c := &Controller{
		cfg:       cfg,
		source:    source,
		store:     store,
		ingester:  ingester,
		scheduler: scheduler,
		renderer:  renderer,
		logger:    log.Component(logger, "playback.controller").With("session", id),
		sessionID: id,
		started:   time.Now(),
		commands:  make(chan Command, max(cfg.CommandBuffer, 1)),
		state:     StateLive,
	}
	c.scheduler.SetMode(prediction.ModePeriodic)
	c.status = Status{SessionID: id, State: StateLive}
	return c
}

// SessionID returns the session's unique id.
func (c *Controller) SessionID() string {
	return c.sessionID
}

// LookAheads returns the accepted look-ahead presets.
func (c *Controller) LookAheads() []int {
	return append([]int(nil), c.cfg.LookAheadPresets...)
}

// Accepts reports whether seconds is a valid look-ahead.
func (c *Controller) Accepts(seconds int) bool {
	return c.cfg.Accepts(seconds)
}

// StartPredicting requests a look-ahead of the given number of seconds.
// From Live it begins buffering at the next tick. While replaying it is
// held until the buffer drains. While already predicting it is ignored.
func (c *Controller) StartPredicting(seconds int) error {
	if !c.cfg.Accepts(seconds) {
		return ErrInvalidLookAhead
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status.Ended {
		return ErrSessionEnded
	}
	c.reqSeconds = seconds
	return nil
}

// SetPaused suspends or resumes ticking.
func (c *Controller) SetPaused(paused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = paused
	c.status.Paused = paused
}

// TogglePause flips the paused flag and returns the new value.
func (c *Controller) TogglePause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = !c.paused
	c.status.Paused = c.paused
	return c.paused
}

// Stop ends the session at the next tick. Buffered frames are discarded.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopReq = true
}

// Status returns the published status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Summary returns the session summary once ended.
func (c *Controller) Summary() (Summary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summary, c.status.Ended
}

// takeRequests reads latched commands. A prediction request stays latched
// while paused.
func (c *Controller) takeRequests() (seconds int, paused, stop bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		seconds, c.reqSeconds = c.reqSeconds, 0
	}
	return seconds, c.paused, c.stopReq
}

// Tick advances the session by one step. It returns false once the
// session has ended.
func (c *Controller) Tick(ctx context.Context) bool {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()

	if c.Status().Ended {
		return false
	}

	seconds, paused, stop := c.takeRequests()
	if stop {
		c.end(EndStopped)
		return false
	}
	if ctx.Err() != nil {
		c.end(EndCanceled)
		return false
	}
	if seconds > 0 {
		c.request(seconds)
	}
	if paused {
		return true
	}

	switch c.state {
	case StateLive:
		c.tickLive(ctx)
	case StatePredictingBuffered:
		c.tickBuffered(ctx)
	case StateReplaying:
		c.tickReplay()
	}

	if c.draining && c.state != StateReplaying {
		c.end(c.drainWhy)
	}
	c.publish()
	return !c.Status().Ended
}

// request applies a latched StartPredicting.
func (c *Controller) request(seconds int) {
	switch c.state {
	case StateLive:
		c.beginBuffering(seconds)
	case StateReplaying:
		if c.draining {
			return
		}
		c.pending = seconds
		c.logger.Info("prediction queued until replay finishes", "seconds", seconds)
	case StatePredictingBuffered:
		c.logger.Info("already predicting, request ignored", "seconds", seconds)
	}
}

func (c *Controller) beginBuffering(seconds int) {
	c.state = StatePredictingBuffered
	c.lookAhead = seconds
	c.countdown = c.scheduler.Cadence().BufferedTicks(seconds)
	c.scheduler.SetMode(prediction.ModeContinuous)
	c.logger.Info("predicting", "seconds", seconds, "ticks", c.countdown)
}

// next pulls a frame. ok is false if the session should stop consuming.
func (c *Controller) next(ctx context.Context) (*SourceFrame, bool) {
	frame, err := c.source.Next(ctx)
	if err == nil && frame != nil {
		return frame, true
	}
	switch {
	case errors.Is(err, ErrEndOfStream) || err == nil:
		c.drain(EndOfStream)
	case ctx.Err() != nil:
		c.drain(EndCanceled)
	default:
		c.logger.Error("frame source failed", "error", err)
		c.drain(EndSourceFail)
	}
	return nil, false
}

// drain stops consuming; buffered frames are still replayed before the end.
func (c *Controller) drain(why EndReason) {
	c.draining = true
	c.drainWhy = why
	if len(c.buffer) > 0 {
		c.state = StateReplaying
		c.scheduler.SetMode(prediction.ModePeriodic)
		c.logger.Info("source finished, replaying buffer", "reason", why, "buffered", len(c.buffer))
	}
}

// ingest assigns the next frame index and updates tracks and predictions.
func (c *Controller) ingest(ctx context.Context, frame *SourceFrame, predict bool) *FrameSnapshot {
	c.frameIndex++
	c.bump(func(s *Status) { s.Consumed++ })

	snap := &FrameSnapshot{
		SessionID:  c.sessionID,
		FrameIndex: c.frameIndex,
		State:      c.state,
		Active:     c.ingester.Ingest(c.frameIndex, frame.Detections),
		Frame:      frame.Image,
	}
	if predict {
		if result, ok := c.scheduler.MaybePredict(ctx, c.frameIndex); ok {
			snap.Prediction = &result
			c.bump(func(s *Status) { s.Predictions++ })
		}
	}
	return snap
}

func (c *Controller) tickLive(ctx context.Context) {
	frame, ok := c.next(ctx)
	if !ok {
		return
	}
	snap := c.ingest(ctx, frame, c.cfg.PredictWhileLive)
	c.render(snap)
	c.background = snap.Frame
}

func (c *Controller) tickBuffered(ctx context.Context) {
	frame, ok := c.next(ctx)
	if !ok {
		return
	}
	snap := c.ingest(ctx, frame, true)
	c.buffer = append(c.buffer, snap)

	if snap.Prediction != nil {
		bg := c.background
		if bg == nil {
			bg = snap.Frame
		}
		c.renderer.RenderPrediction(&FrameSnapshot{
			SessionID:  snap.SessionID,
			FrameIndex: snap.FrameIndex,
			State:      StatePredictingBuffered,
			Active:     snap.Active,
			Prediction: snap.Prediction,
			Frame:      bg,
		})
	}

	c.countdown--
	c.logger.Debug("buffered frame", "frame", snap.FrameIndex, "remaining", c.countdown)
	if c.countdown <= 0 {
		c.state = StateReplaying
		c.scheduler.SetMode(prediction.ModePeriodic)
		c.logger.Info("replaying", "frames", len(c.buffer))
	}
}

func (c *Controller) tickReplay() {
	if len(c.buffer) > 0 {
		snap := c.buffer[0]
		c.buffer[0] = nil
		c.buffer = c.buffer[1:]

		snap.Replayed = true
		snap.State = StateReplaying
		c.render(snap)
		c.background = snap.Frame
	}
	if len(c.buffer) > 0 {
		return
	}

	c.buffer = nil
	c.lookAhead = 0
	if c.draining {
		c.state = StateLive
		return
	}
	if c.pending > 0 {
		seconds := c.pending
		c.pending = 0
		c.beginBuffering(seconds)
		return
	}
	c.state = StateLive
	c.logger.Info("live")
}

func (c *Controller) render(snap *FrameSnapshot) {
	c.renderer.RenderFrame(snap)
	c.bump(func(s *Status) { s.Rendered++ })
}

func (c *Controller) bump(fn func(*Status)) {
	c.mu.Lock()
	fn(&c.status)
	c.mu.Unlock()
}

// publish copies tick state into the status.
func (c *Controller) publish() {
	ingest := c.ingester.Stats()
	tracks := c.store.Len()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.State = c.state
	c.status.FrameIndex = c.frameIndex
	c.status.Buffered = len(c.buffer)
	c.status.Countdown = c.countdown
	c.status.LookAhead = c.lookAhead
	c.status.Pending = c.pending
	c.status.Tracks = tracks
	c.status.Ingest = ingest
}

// end closes the source and notifies the renderer. Caller holds tickMu.
func (c *Controller) end(why EndReason) {
	discarded := len(c.buffer)
	c.buffer = nil
	c.countdown = 0

	if err := c.source.Close(); err != nil {
		c.logger.Warn("close frame source", "error", err)
	}

	c.publish()
	c.mu.Lock()
	c.status.Ended = true
	c.summary = Summary{
		SessionID:   c.sessionID,
		Reason:      why,
		Consumed:    c.status.Consumed,
		Rendered:    c.status.Rendered,
		Discarded:   discarded,
		Predictions: c.status.Predictions,
		Started:     c.started,
		Ended:       time.Now(),
	}
	sum := c.summary
	c.mu.Unlock()

	c.logger.Info("session ended",
		"reason", why,
		"consumed", sum.Consumed,
		"rendered", sum.Rendered,
		"discarded", discarded,
	)
	c.renderer.SessionEnded(sum)
}

// interval returns the pacing for the current state.
func (c *Controller) interval() time.Duration {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()
	if c.state == StateReplaying {
		return c.cfg.ReplayInterval
	}
	return c.cfg.LiveInterval
}

// Run ticks until the session ends or ctx is canceled. Commands submitted
// with Submit are applied between ticks. It returns nil when the session
// ends on its own.
func (c *Controller) Run(ctx context.Context) error {
	interval := c.interval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.logger.Info("session started",
		"live_interval", c.cfg.LiveInterval,
		"replay_interval", c.cfg.ReplayInterval,
	)

	for {
		select {
		case <-ctx.Done():
			c.tickMu.Lock()
			if !c.Status().Ended {
				c.end(EndCanceled)
			}
			c.tickMu.Unlock()
			return ctx.Err()

		case cmd := <-c.commands:
			if err := c.Apply(cmd); err != nil {
				c.logger.Warn("command rejected", "command", cmd.Kind, "error", err)
			}

		case <-ticker.C:
			if !c.Tick(ctx) {
				return ctx.Err()
			}
			if next := c.interval(); next != interval {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}
