package server

import (
	"bytes"
	"encoding/json"
	"image"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ansari-belal-ahmad/remote-desktop/internal/broadcast"
	"github.com/ansari-belal-ahmad/remote-desktop/internal/capture"
	"github.com/ansari-belal-ahmad/remote-desktop/internal/config"
	"github.com/ansari-belal-ahmad/remote-desktop/internal/framebuf"
	"github.com/ansari-belal-ahmad/remote-desktop/internal/input"
	"github.com/ansari-belal-ahmad/remote-desktop/internal/metrics"
	"github.com/ansari-belal-ahmad/remote-desktop/internal/security"
	"github.com/ansari-belal-ahmad/remote-desktop/internal/session"
	"github.com/ansari-belal-ahmad/remote-desktop/internal/types"
)

type staticSource struct{ bounds image.Rectangle }

func (s staticSource) NumDisplays() int                  { return 1 }
func (s staticSource) DisplayBounds(int) image.Rectangle { return s.bounds }
func (s staticSource) Capture(int) (image.Image, error)  { return image.NewRGBA(s.bounds), nil }

type recordingActuator struct {
	mu    sync.Mutex
	moves int
	keys  []string
}

func (r *recordingActuator) Move(x, y int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.moves++
}
func (r *recordingActuator) Click(input.Button) error { return nil }
func (r *recordingActuator) Scroll(int)               {}
func (r *recordingActuator) Tap(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
	return nil
}
func (r *recordingActuator) Type(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, text)
}

type testEnv struct {
	srv      *Server
	ts       *httptest.Server
	engine   *capture.Engine
	registry *session.Registry
	act      *recordingActuator
}

func newTestEnv(t *testing.T, mod func(*config.Config)) *testEnv {
	t.Helper()
	cfg := config.Default()
	cfg.Performance.CompressionLevel = 0
	if mod != nil {
		mod(&cfg)
	}

	sec, err := security.New(cfg.Security)
	require.NoError(t, err)

	registry := session.NewRegistry()
	buf := framebuf.New(cfg.Performance.FrameQueueSize)
	engine := capture.NewEngine(
		staticSource{bounds: image.Rect(0, 0, 1280, 720)},
		capture.NewSettings(cfg.Performance),
		buf,
	)
	m := metrics.New()
	b := broadcast.New(registry, buf, sec, m, cfg.Performance.CompressionLevel)
	act := &recordingActuator{}

	srv := New(&cfg, registry, engine, b, sec, m, act)
	ts := httptest.NewServer(srv.WSMux())
	t.Cleanup(ts.Close)

	return &testEnv{srv: srv, ts: ts, engine: engine, registry: registry, act: act}
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.ts.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readJSON(t *testing.T, ws *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := ws.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(msg, v))
}

func TestHandshakeScreenSize(t *testing.T) {
	env := newTestEnv(t, nil)
	ws := env.dial(t)

	var hs types.ScreenSize
	readJSON(t, ws, &hs)
	assert.Equal(t, "screen_size", hs.Type)
	assert.Equal(t, 1280, hs.Width)
	assert.Equal(t, 720, hs.Height)
}

func TestPingPong(t *testing.T) {
	env := newTestEnv(t, nil)
	ws := env.dial(t)

	var hs types.ScreenSize
	readJSON(t, ws, &hs)

	require.NoError(t, ws.WriteJSON(map[string]string{"type": "ping"}))

	var pong types.Pong
	readJSON(t, ws, &pong)
	assert.Equal(t, "pong", pong.Type)
}

func TestUnknownAndMalformedMessagesKeepSessionOpen(t *testing.T) {
	env := newTestEnv(t, nil)
	ws := env.dial(t)

	var hs types.ScreenSize
	readJSON(t, ws, &hs)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("{not json")))
	require.NoError(t, ws.WriteJSON(map[string]string{"type": "teleport"}))

	// The session must still answer pings after protocol errors.
	require.NoError(t, ws.WriteJSON(map[string]string{"type": "ping"}))
	var pong types.Pong
	readJSON(t, ws, &pong)
	assert.Equal(t, "pong", pong.Type)
}

func TestControlMessagesReachActuator(t *testing.T) {
	env := newTestEnv(t, nil)
	ws := env.dial(t)

	var hs types.ScreenSize
	readJSON(t, ws, &hs)

	require.NoError(t, ws.WriteJSON(map[string]any{
		"type": "control", "action": "move", "x": 100, "y": 200,
	}))
	require.NoError(t, ws.WriteJSON(map[string]any{
		"type": "control", "action": "key", "key": "enter",
	}))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		env.act.mu.Lock()
		moves, keys := env.act.moves, len(env.act.keys)
		env.act.mu.Unlock()
		if moves == 1 && keys == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("control commands did not reach the actuator")
}

func TestSetQualityAndFPSApplyToEngine(t *testing.T) {
	env := newTestEnv(t, nil)
	ws := env.dial(t)

	var hs types.ScreenSize
	readJSON(t, ws, &hs)

	require.NoError(t, ws.WriteJSON(map[string]any{
		"type": "command", "action": "set_quality", "quality": 40,
	}))
	require.NoError(t, ws.WriteJSON(map[string]any{
		"type": "command", "action": "set_fps", "fps": 12,
	}))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if env.engine.Settings().JPEGQuality() == 40 && env.engine.Settings().MaxFPS() == 12 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("settings not applied: quality=%d fps=%d",
		env.engine.Settings().JPEGQuality(), env.engine.Settings().MaxFPS())
}

func TestFileTransferPlain(t *testing.T) {
	env := newTestEnv(t, nil)
	ws := env.dial(t)

	var hs types.ScreenSize
	readJSON(t, ws, &hs)

	payload := []byte("file contents here")
	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, payload))

	var ack types.FileTransferAck
	readJSON(t, ws, &ack)
	assert.Equal(t, "file_transfer", ack.Type)
	assert.Equal(t, "success", ack.Status)
	assert.Equal(t, len(payload), ack.Size)
}

func TestFileTransferCompressed(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Performance.CompressionLevel = 6 })
	ws := env.dial(t)

	var hs types.ScreenSize
	readJSON(t, ws, &hs)

	raw := bytes.Repeat([]byte("data"), 100)
	var comp bytes.Buffer
	zw, err := zlib.NewWriterLevel(&comp, 6)
	require.NoError(t, err)
	_, err = zw.Write(raw)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, comp.Bytes()))

	var ack types.FileTransferAck
	readJSON(t, ws, &ack)
	assert.Equal(t, "success", ack.Status)
	assert.Equal(t, len(raw), ack.Size, "size reflects the decompressed payload")
}

func TestFileTransferBadPayload(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Performance.CompressionLevel = 6 })
	ws := env.dial(t)

	var hs types.ScreenSize
	readJSON(t, ws, &hs)

	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, []byte("not zlib data")))

	var ack types.FileTransferAck
	readJSON(t, ws, &ack)
	assert.Equal(t, "error", ack.Status)
	assert.NotEmpty(t, ack.Message)
}

func TestMaxConnectionsRejected(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Server.MaxConnections = 1 })

	ws := env.dial(t)
	var hs types.ScreenSize
	readJSON(t, ws, &hs)

	url := "ws" + strings.TrimPrefix(env.ts.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 503, resp.StatusCode)
}

func TestAuthTokenRequired(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Security.AuthRequired = true
		c.Security.AuthToken = "s3cret"
	})
	url := "ws" + strings.TrimPrefix(env.ts.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(url+"/?token=wrong", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)

	ws, _, err := websocket.DefaultDialer.Dial(url+"/?token=s3cret", nil)
	require.NoError(t, err)
	defer ws.Close()

	var hs types.ScreenSize
	readJSON(t, ws, &hs)
	assert.Equal(t, "screen_size", hs.Type)
}

func TestSwitchMonitorAnnouncesNewSize(t *testing.T) {
	env := newTestEnv(t, nil)
	ws := env.dial(t)

	var hs types.ScreenSize
	readJSON(t, ws, &hs)

	// staticSource has a single display, so index 0 is the only valid one;
	// a valid switch re-sends the screen size.
	require.NoError(t, ws.WriteJSON(map[string]any{
		"type": "command", "action": "switch_monitor", "monitor": 0,
	}))

	var update types.ScreenSize
	readJSON(t, ws, &update)
	assert.Equal(t, "screen_size", update.Type)
	assert.Equal(t, 1280, update.Width)

	// An out-of-bounds index is a no-op: the session still answers pings
	// and no extra screen_size arrives first.
	require.NoError(t, ws.WriteJSON(map[string]any{
		"type": "command", "action": "switch_monitor", "monitor": 7,
	}))
	require.NoError(t, ws.WriteJSON(map[string]string{"type": "ping"}))
	var pong types.Pong
	readJSON(t, ws, &pong)
	assert.Equal(t, "pong", pong.Type)
}

func TestDisconnectRemovesSession(t *testing.T) {
	env := newTestEnv(t, nil)
	ws := env.dial(t)

	var hs types.ScreenSize
	readJSON(t, ws, &hs)

	deadline := time.Now().Add(2 * time.Second)
	for env.registry.Len() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, 1, env.registry.Len())

	ws.Close()
	for env.registry.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, 0, env.registry.Len())
}
