// Package store records playback sessions to SQLite so a run can be
// inspected after the video has ended.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/teslashibe/go-trajectory/internal/log"
	"github.com/teslashibe/go-trajectory/pkg/playback"
	"github.com/teslashibe/go-trajectory/pkg/tracking"
)

// Config holds recorder configuration.
type Config struct {
	// Path of the database file. Empty disables recording.
	Path string `yaml:"path"`
	// BusyTimeout is passed to SQLite as busy_timeout.
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// DefaultConfig returns a config with recording disabled.
func DefaultConfig() Config {
	return Config{BusyTimeout: 5 * time.Second}
}

// Recorder writes every rendered snapshot, prediction and session summary.
// It implements playback.Renderer; write failures are logged and counted,
// never returned to the controller.
type Recorder struct {
	db     *sql.DB
	logger *slog.Logger

	mu       sync.Mutex
	failures int
	firstErr error
}

// Open opens (or creates) the database and applies migrations.
func Open(cfg Config, logger *slog.Logger) (*Recorder, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store: empty database path")
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = DefaultConfig().BusyTimeout
	}
	logger = log.Component(logger, "store")

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", cfg.Path, err)
	}
	// One connection keeps ":memory:" databases shared and serializes writes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds())); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: pragma: %w", err)
	}
	if err := migrateUp(db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("recorder opened", "path", cfg.Path)
	return &Recorder{db: db, logger: logger}, nil
}

// Close closes the database.
func (r *Recorder) Close() error {
	return r.db.Close()
}

// DB exposes the underlying handle for ad hoc queries.
func (r *Recorder) DB() *sql.DB {
	return r.db
}

// Err returns the number of failed writes and the first failure.
func (r *Recorder) Err() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures, r.firstErr
}

func (r *Recorder) fail(op string, err error) {
	r.mu.Lock()
	r.failures++
	if r.firstErr == nil {
		r.firstErr = err
	}
	r.mu.Unlock()
	r.logger.Warn("write failed", "op", op, "error", err)
}

// RenderFrame implements playback.Renderer.
func (r *Recorder) RenderFrame(snap *playback.FrameSnapshot) {
	err := r.tx(func(tx *sql.Tx) error {
		if err := r.ensureSession(tx, snap.SessionID); err != nil {
			return err
		}
		if _, err := tx.Exec(`INSERT OR REPLACE INTO frames
			(session_id, frame_index, state, replayed, active, recorded_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			snap.SessionID, snap.FrameIndex, snap.State.String(), snap.Replayed, len(snap.Active), time.Now().UTC(),
		); err != nil {
			return fmt.Errorf("insert frame: %w", err)
		}
		for id, pos := range snap.Active {
			if _, err := tx.Exec(`INSERT OR REPLACE INTO positions
				(session_id, frame_index, track_id, x_m, y_m) VALUES (?, ?, ?, ?, ?)`,
				snap.SessionID, snap.FrameIndex, int64(id), pos.X, pos.Y,
			); err != nil {
				return fmt.Errorf("insert position: %w", err)
			}
		}
		// Replayed frames carry the prediction already stored while buffering.
		if snap.Prediction != nil && !snap.Replayed {
			return insertPrediction(tx, snap)
		}
		return nil
	})
	if err != nil {
		r.fail("frame", err)
	}
}

// RenderPrediction implements playback.Renderer.
func (r *Recorder) RenderPrediction(snap *playback.FrameSnapshot) {
	if snap.Prediction == nil {
		return
	}
	err := r.tx(func(tx *sql.Tx) error {
		if err := r.ensureSession(tx, snap.SessionID); err != nil {
			return err
		}
		return insertPrediction(tx, snap)
	})
	if err != nil {
		r.fail("prediction", err)
	}
}

// SessionEnded implements playback.Renderer.
func (r *Recorder) SessionEnded(sum playback.Summary) {
	err := r.tx(func(tx *sql.Tx) error {
		if err := ensureSessionAt(tx, sum.SessionID, sum.Started); err != nil {
			return err
		}
		_, err := tx.Exec(`UPDATE sessions SET ended_at = ?, end_reason = ?,
			consumed = ?, rendered = ?, discarded = ?, predictions = ?
			WHERE session_id = ?`,
			sum.Ended.UTC(), string(sum.Reason), sum.Consumed, sum.Rendered, sum.Discarded, sum.Predictions,
			sum.SessionID,
		)
		return err
	})
	if err != nil {
		r.fail("session", err)
		return
	}
	r.logger.Info("session recorded", "session", sum.SessionID, "reason", sum.Reason, "rendered", sum.Rendered)
}

func insertPrediction(tx *sql.Tx, snap *playback.FrameSnapshot) error {
	frame := snap.Prediction.Frame
	if frame == 0 {
		frame = snap.FrameIndex
	}
	for _, id := range snap.Prediction.IDs() {
		for step, pos := range snap.Prediction.Tracks[id] {
			if _, err := tx.Exec(`INSERT OR REPLACE INTO predictions
				(session_id, frame_index, track_id, step, x_m, y_m) VALUES (?, ?, ?, ?, ?, ?)`,
				snap.SessionID, frame, int64(id), step, pos.X, pos.Y,
			); err != nil {
				return fmt.Errorf("insert prediction: %w", err)
			}
		}
	}
	return nil
}

func (r *Recorder) ensureSession(tx *sql.Tx, id string) error {
	return ensureSessionAt(tx, id, time.Now())
}

func ensureSessionAt(tx *sql.Tx, id string, started time.Time) error {
	if _, err := tx.Exec(`INSERT OR IGNORE INTO sessions (session_id, started_at) VALUES (?, ?)`,
		id, started.UTC()); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *Recorder) tx(fn func(*sql.Tx) error) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// SessionRow is one recorded session.
type SessionRow struct {
	ID          string     `json:"session_id"`
	Started     time.Time  `json:"started"`
	Ended       *time.Time `json:"ended,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	Consumed    int        `json:"consumed"`
	Rendered    int        `json:"rendered"`
	Discarded   int        `json:"discarded"`
	Predictions int        `json:"predictions"`
	Frames      int        `json:"frames"`
}

// Sessions lists recorded sessions, newest first.
func (r *Recorder) Sessions(ctx context.Context) ([]SessionRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.session_id, s.started_at, s.ended_at, COALESCE(s.end_reason, ''),
		       s.consumed, s.rendered, s.discarded, s.predictions,
		       (SELECT COUNT(*) FROM frames f WHERE f.session_id = s.session_id)
		FROM sessions s
		ORDER BY s.started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var s SessionRow
		var ended sql.NullTime
		if err := rows.Scan(&s.ID, &s.Started, &ended, &s.Reason,
			&s.Consumed, &s.Rendered, &s.Discarded, &s.Predictions, &s.Frames); err != nil {
			return nil, fmt.Errorf("store: scan session: %w", err)
		}
		if ended.Valid {
			t := ended.Time
			s.Ended = &t
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Track returns the recorded world positions of one track in frame order.
func (r *Recorder) Track(ctx context.Context, session string, id tracking.TrackID) ([]tracking.WorldSample, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT frame_index, x_m, y_m FROM positions
		WHERE session_id = ? AND track_id = ?
		ORDER BY frame_index`, session, int64(id))
	if err != nil {
		return nil, fmt.Errorf("store: track %d: %w", id, err)
	}
	defer rows.Close()

	var out []tracking.WorldSample
	for rows.Next() {
		var s tracking.WorldSample
		if err := rows.Scan(&s.Frame, &s.Pos.X, &s.Pos.Y); err != nil {
			return nil, fmt.Errorf("store: scan position: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Prediction returns the forecast stored for one track at a frame.
func (r *Recorder) Prediction(ctx context.Context, session string, frame int, id tracking.TrackID) ([]tracking.WorldPosition, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT x_m, y_m FROM predictions
		WHERE session_id = ? AND frame_index = ? AND track_id = ?
		ORDER BY step`, session, frame, int64(id))
	if err != nil {
		return nil, fmt.Errorf("store: prediction %d@%d: %w", id, frame, err)
	}
	defer rows.Close()

	var out []tracking.WorldPosition
	for rows.Next() {
		var p tracking.WorldPosition
		if err := rows.Scan(&p.X, &p.Y); err != nil {
			return nil, fmt.Errorf("store: scan prediction: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

var _ playback.Renderer = (*Recorder)(nil)
