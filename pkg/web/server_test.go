package web

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-trajectory/internal/log"
	"github.com/teslashibe/go-trajectory/pkg/plan"
	"github.com/teslashibe/go-trajectory/pkg/playback"
	"github.com/teslashibe/go-trajectory/pkg/prediction"
	"github.com/teslashibe/go-trajectory/pkg/store"
	"github.com/teslashibe/go-trajectory/pkg/tracking"
)

type fakePlayback struct {
	mu       sync.Mutex
	commands []playback.Command
	err      error
}

func (f *fakePlayback) Submit(cmd playback.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.commands = append(f.commands, cmd)
	return nil
}

func (f *fakePlayback) Status() playback.Status {
	return playback.Status{SessionID: "test-session", State: playback.StateLive, FrameIndex: 12}
}

func (f *fakePlayback) Accepts(seconds int) bool {
	return seconds == 1 || seconds == 3 || seconds == 5
}

func (f *fakePlayback) LookAheads() []int {
	return []int{1, 3, 5}
}

func (f *fakePlayback) received() []playback.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]playback.Command(nil), f.commands...)
}

func newTestServer(t *testing.T) (*Server, *fakePlayback) {
	t.Helper()
	tracks := tracking.NewStore(tracking.DefaultConfig())
	for f := 1; f <= 3; f++ {
		tracks.AppendPixel(4, f, tracking.PixelPosition{X: 300, Y: float64(200 + f)})
		tracks.AppendWorld(4, f, tracking.WorldPosition{X: 2, Y: float64(10 + f)})
	}

	planner, err := plan.New(plan.DefaultConfig(), log.Discard())
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.StaticDir = ""
	cfg.PlanEvery = 1
	s := NewServer(cfg, tracks, planner, log.Discard())
	pb := &fakePlayback{}
	s.Attach(pb)
	return s, pb
}

func get(t *testing.T, s *Server, path string) (int, []byte) {
	t.Helper()
	resp, err := s.App().Test(httptest.NewRequest("GET", path, nil))
	require.NoError(t, err, path)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestStatus(t *testing.T) {
	s, _ := newTestServer(t)

	code, raw := get(t, s, "/api/status")
	require.Equal(t, 200, code)

	var body StatusResponse
	require.NoError(t, json.Unmarshal(raw, &body))
	require.NotNil(t, body.Playback)
	assert.Equal(t, "test-session", body.Playback.SessionID)
	assert.Len(t, body.Hubs, 3)
	assert.Equal(t, []int{1, 3, 5}, body.LookAheads)
}

func TestStatusWithoutPlayback(t *testing.T) {
	s := NewServer(Config{StaticDir: ""}, tracking.NewStore(tracking.DefaultConfig()), nil, log.Discard())

	_, body := get(t, s, "/api/status")
	assert.NotContains(t, string(body), `"playback"`, "unattached status should omit playback")
}

func TestPredict(t *testing.T) {
	s, pb := newTestServer(t)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{name: "preset", body: `{"seconds":3}`, status: 202},
		{name: "not a preset", body: `{"seconds":2}`, status: 400},
		{name: "zero", body: `{"seconds":0}`, status: 400},
		{name: "garbage", body: `{`, status: 400},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/predict", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			resp, err := s.App().Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}

	got := pb.received()
	require.Len(t, got, 1)
	assert.Equal(t, playback.CmdPredict, got[0].Kind)
	assert.Equal(t, 3, got[0].Seconds)
}

func TestPauseResumeStop(t *testing.T) {
	s, pb := newTestServer(t)

	for _, path := range []string{"/api/pause", "/api/resume", "/api/stop"} {
		resp, err := s.App().Test(httptest.NewRequest("POST", path, nil))
		require.NoError(t, err, path)
		assert.Equal(t, 202, resp.StatusCode, path)
	}

	got := pb.received()
	want := []playback.CommandKind{playback.CmdPause, playback.CmdResume, playback.CmdStop}
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i], got[i].Kind, "command %d", i)
	}
}

func TestSubmitErrors(t *testing.T) {
	s, pb := newTestServer(t)

	pb.err = playback.ErrSessionEnded
	resp, err := s.App().Test(httptest.NewRequest("POST", "/api/stop", nil))
	require.NoError(t, err)
	assert.Equal(t, 409, resp.StatusCode, "ended session")

	pb.err = playback.ErrBusy
	resp, err = s.App().Test(httptest.NewRequest("POST", "/api/pause", nil))
	require.NoError(t, err)
	assert.Equal(t, 503, resp.StatusCode, "busy")
}

func TestTracks(t *testing.T) {
	s, _ := newTestServer(t)

	code, raw := get(t, s, "/api/tracks")
	require.Equal(t, 200, code)
	var list struct {
		Tracks []tracking.TrackInfo `json:"tracks"`
	}
	require.NoError(t, json.Unmarshal(raw, &list))
	require.Len(t, list.Tracks, 1)
	assert.Equal(t, tracking.TrackID(4), list.Tracks[0].ID)
	assert.Equal(t, 3, list.Tracks[0].WorldLen)

	code, raw = get(t, s, "/api/tracks/4")
	require.Equal(t, 200, code)
	var snap tracking.TrackSnapshot
	require.NoError(t, json.Unmarshal(raw, &snap))
	require.Len(t, snap.World, 3)
	assert.Equal(t, 13.0, snap.World[2].Pos.Y)

	code, _ = get(t, s, "/api/tracks/99")
	assert.Equal(t, 404, code, "unknown track")
	code, _ = get(t, s, "/api/tracks/abc")
	assert.Equal(t, 400, code, "bad id")
}

func TestReport(t *testing.T) {
	s, _ := newTestServer(t)

	resp, err := s.App().Test(httptest.NewRequest("GET", "/api/report", nil))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Person 4", "report should contain a series per track")
}

func TestSessionsWithoutRecorder(t *testing.T) {
	s, _ := newTestServer(t)
	code, _ := get(t, s, "/api/sessions")
	assert.Equal(t, 404, code)
}

func TestSessionHistory(t *testing.T) {
	s, _ := newTestServer(t)

	rec, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "sessions.db")}, log.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { rec.Close() })
	s.AttachHistory(rec)

	rec.RenderFrame(&playback.FrameSnapshot{
		SessionID:  "s-1",
		FrameIndex: 10,
		State:      playback.StateLive,
		Active:     tracking.Positions{4: {X: 2, Y: 12}},
		Prediction: &prediction.Result{
			Frame:  10,
			Tracks: map[tracking.TrackID][]tracking.WorldPosition{4: {{X: 2, Y: 12.5}, {X: 2, Y: 13}}},
		},
	})
	rec.SessionEnded(playback.Summary{SessionID: "s-1", Reason: playback.EndOfStream, Consumed: 10, Rendered: 10})
	failures, _ := rec.Err()
	require.Zero(t, failures)

	code, raw := get(t, s, "/api/sessions")
	require.Equal(t, 200, code)
	var list struct {
		Sessions []store.SessionRow `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(raw, &list))
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, "s-1", list.Sessions[0].ID)
	assert.Equal(t, string(playback.EndOfStream), list.Sessions[0].Reason)
	assert.Equal(t, 1, list.Sessions[0].Frames)

	code, raw = get(t, s, "/api/sessions/s-1/tracks/4")
	require.Equal(t, 200, code)
	var track struct {
		World []tracking.WorldSample `json:"world"`
	}
	require.NoError(t, json.Unmarshal(raw, &track))
	require.Len(t, track.World, 1)
	assert.Equal(t, 10, track.World[0].Frame)

	code, raw = get(t, s, "/api/sessions/s-1/frames/10/predictions/4")
	require.Equal(t, 200, code)
	var pred struct {
		Steps []tracking.WorldPosition `json:"steps"`
	}
	require.NoError(t, json.Unmarshal(raw, &pred))
	assert.Equal(t, []tracking.WorldPosition{{X: 2, Y: 12.5}, {X: 2, Y: 13}}, pred.Steps)

	code, _ = get(t, s, "/api/sessions/s-1/tracks/9")
	assert.Equal(t, 404, code, "unrecorded track")
	code, _ = get(t, s, "/api/sessions/s-1/frames/11/predictions/4")
	assert.Equal(t, 404, code, "no forecast at that frame")
	code, _ = get(t, s, "/api/sessions/s-1/frames/x/predictions/4")
	assert.Equal(t, 400, code, "bad frame")
}

func TestPlanNotReady(t *testing.T) {
	s, _ := newTestServer(t)
	code, _ := get(t, s, "/api/plan")
	assert.Equal(t, 404, code)
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	s, _ := newTestServer(t)
	code, _ := get(t, s, "/ws/video")
	assert.Equal(t, 426, code)
}

// startServer serves s on a free local port and returns its address.
func startServer(t *testing.T, s *Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go s.Serve(ctx, ln)
	time.Sleep(100 * time.Millisecond)
	t.Cleanup(cancel)
	return ln.Addr().String()
}

func dial(t *testing.T, addr, path string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial("ws://"+addr+path, nil)
	require.NoError(t, err, "websocket dial %s", path)
	t.Cleanup(func() { ws.Close() })
	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	return ws
}

func TestRenderFrameStreams(t *testing.T) {
	s, _ := newTestServer(t)
	addr := startServer(t, s)

	video := dial(t, addr, "/ws/video")
	snaps := dial(t, addr, "/ws/snapshots")
	planWS := dial(t, addr, "/ws/plan")
	time.Sleep(50 * time.Millisecond)

	s.RenderFrame(&playback.FrameSnapshot{
		SessionID:  "test-session",
		FrameIndex: 7,
		State:      playback.StateLive,
		Active:     tracking.Positions{4: {X: 2, Y: 13}},
		Frame:      []byte("jpeg-7"),
	})

	mt, data, err := video.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, mt)
	assert.Equal(t, "jpeg-7", string(data))

	_, data, err = snaps.ReadMessage()
	require.NoError(t, err)
	var ev Event
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, EventFrame, ev.Type)
	require.NotNil(t, ev.Snapshot)
	assert.Equal(t, 7, ev.Snapshot.FrameIndex)
	assert.NotContains(t, string(data), "jpeg-7", "snapshot JSON must not carry the image")

	_, data, err = planWS.ReadMessage()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "\x89PNG"), "plan should be a PNG")

	code, _ := get(t, s, "/api/plan")
	assert.Equal(t, 200, code)
}

func TestRenderPredictionAndEnd(t *testing.T) {
	s, _ := newTestServer(t)
	addr := startServer(t, s)

	snaps := dial(t, addr, "/ws/snapshots")
	time.Sleep(50 * time.Millisecond)

	s.RenderPrediction(&playback.FrameSnapshot{
		SessionID:  "test-session",
		FrameIndex: 30,
		State:      playback.StatePredictingBuffered,
		Active:     tracking.Positions{4: {X: 2, Y: 13}},
		Prediction: &prediction.Result{
			Frame:  30,
			Tracks: map[tracking.TrackID][]tracking.WorldPosition{4: {{X: 2, Y: 14}}},
		},
	})
	s.SessionEnded(playback.Summary{SessionID: "test-session", Reason: playback.EndOfStream, Rendered: 30})

	var types []string
	for i := 0; i < 2; i++ {
		_, data, err := snaps.ReadMessage()
		require.NoError(t, err, "read %d", i)
		var ev Event
		require.NoError(t, json.Unmarshal(data, &ev))
		types = append(types, ev.Type)
		if ev.Type == EventEnded {
			assert.Equal(t, "Video ended", ev.Message)
		}
	}
	assert.Equal(t, []string{EventPrediction, EventEnded}, types)

	_, raw := get(t, s, "/api/status")
	var body StatusResponse
	require.NoError(t, json.Unmarshal(raw, &body))
	require.NotNil(t, body.Summary)
	assert.Equal(t, 30, body.Summary.Rendered)
}

func TestControlSocket(t *testing.T) {
	s, pb := newTestServer(t)
	addr := startServer(t, s)

	ws := dial(t, addr, "/ws/control")

	send := func(msg string) controlReply {
		t.Helper()
		require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(msg)))
		var reply controlReply
		require.NoError(t, ws.ReadJSON(&reply))
		return reply
	}

	assert.True(t, send(`{"command":"predict","seconds":5}`).OK, "predict")
	r := send(`{"command":"predict","seconds":4}`)
	assert.False(t, r.OK, "invalid look-ahead accepted")
	assert.NotEmpty(t, r.Error)
	assert.False(t, send(`{"command":"dance"}`).OK, "unknown command accepted")
	assert.True(t, send(`{"command":"toggle_pause"}`).OK, "toggle")

	got := pb.received()
	require.Len(t, got, 2)
	assert.Equal(t, 5, got[0].Seconds)
	assert.Equal(t, playback.CmdTogglePause, got[1].Kind)
}
