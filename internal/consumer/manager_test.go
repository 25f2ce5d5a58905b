package consumer

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sensorstream/internal/forwarder"
	"sensorstream/internal/registry"
	"sensorstream/internal/sink"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

type recordingForwarder struct {
	mu     sync.Mutex
	sensor []forwarder.SensorEvent
	audio  []forwarder.AudioEvent
}

func (r *recordingForwarder) ForwardSensor(_ context.Context, e forwarder.SensorEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sensor = append(r.sensor, e)
	return nil
}

func (r *recordingForwarder) ForwardAudio(_ context.Context, e forwarder.AudioEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio = append(r.audio, e)
	return nil
}

func (r *recordingForwarder) Close() error { return nil }

func (r *recordingForwarder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sensor), len(r.audio)
}

type testEnv struct {
	root      string
	manager   *ConnectionManager
	registry  *registry.Registry
	sensorLog *sink.SensorLog
	forwarder *recordingForwarder
	server    *httptest.Server
}

func newTestEnv(t *testing.T, cfg ManagerConfig) *testEnv {
	t.Helper()
	return newTestEnvWith(t, cfg, nil)
}

// newTestEnvWith lets setup adjust the manager before the server starts.
func newTestEnvWith(t *testing.T, cfg ManagerConfig, setup func(*ConnectionManager)) *testEnv {
	t.Helper()
	root := t.TempDir()
	logger := zap.NewNop()

	sensorLog := sink.NewSensorLog(root, time.Now(), nil, logger)
	sinks := Sinks{
		Sensor:  sensorLog,
		Audio:   sink.NewAudioSink(root, false, nil, logger),
		Unknown: sink.NewUnknownSink(root, nil, logger),
	}
	reg := registry.New()
	fwd := &recordingForwarder{}
	manager := NewConnectionManager(cfg, sinks, fwd, reg, logger)
	if setup != nil {
		setup(manager)
	}
	server := httptest.NewServer(manager)

	env := &testEnv{
		root:      root,
		manager:   manager,
		registry:  reg,
		sensorLog: sensorLog,
		forwarder: fwd,
		server:    server,
	}
	t.Cleanup(func() {
		manager.CloseAll()
		server.Close()
		manager.Wait()
		reg.Stop()
		sensorLog.Close()
	})
	return env
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return ws
}

func send(t *testing.T, ws *websocket.Conn, frame string) {
	t.Helper()
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func audioFrame(ts string, data []byte) string {
	return fmt.Sprintf(`{"type":"audio","timestamp":%q,"data":%q}`, ts, base64.StdEncoding.EncodeToString(data))
}

func closeClient(t *testing.T, ws *websocket.Conn) {
	t.Helper()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = ws.Close()
}

func fileContent(path string) string {
	b, _ := os.ReadFile(path)
	return string(b)
}

func TestConnectionManager_SensorFrameReachesLogAndForwarder(t *testing.T) {
	env := newTestEnv(t, ManagerConfig{})
	ws := env.dial(t)
	defer closeClient(t, ws)

	send(t, ws, `{"sensorType":"accelerometer","timestamp":"2024-01-01T00:00:00","values":{"x":0.1,"y":9.8,"z":0.2}}`)
	send(t, ws, `{"type":"sensor","data":{"sensorType":"gyroscope","timestamp":"2024-01-01T00:00:00","values":{"x":0}}}`)

	assert.Eventually(t, func() bool {
		return strings.Count(fileContent(env.sensorLog.Path()), "\n") == 2
	}, waitFor, tick)

	lines := strings.Split(strings.TrimSpace(fileContent(env.sensorLog.Path())), "\n")
	assert.Contains(t, lines[0], `"sensorType":"accelerometer"`)
	assert.Contains(t, lines[1], `"sensorType":"gyroscope"`)

	assert.Eventually(t, func() bool {
		sensor, _ := env.forwarder.counts()
		return sensor == 2
	}, waitFor, tick)
	assert.Equal(t, int64(2), env.manager.Metrics().GetSnapshot().SensorReadings)
}

func TestConnectionManager_AudioRotationAndForwarding(t *testing.T) {
	env := newTestEnv(t, ManagerConfig{})
	ws := env.dial(t)

	send(t, ws, audioFrame("2024-01-01T00:00:00", []byte("ab")))
	send(t, ws, audioFrame("2024-01-01T00:00:00.5", []byte("cd")))
	send(t, ws, audioFrame("2024-01-01T00:00:01", []byte("ef")))

	second := filepath.Join(env.root, "audio_20240101_000001.pcm")
	assert.Eventually(t, func() bool { return fileContent(second) == "ef" }, waitFor, tick)
	assert.Equal(t, "abcd", fileContent(filepath.Join(env.root, "audio_20240101_000000.pcm")))

	closeClient(t, ws)
	assert.Eventually(t, func() bool { return env.registry.Len() == 0 }, waitFor, tick)

	env.forwarder.mu.Lock()
	defer env.forwarder.mu.Unlock()
	require.Len(t, env.forwarder.audio, 3)
	assert.Equal(t, "audio_20240101_000000.pcm", env.forwarder.audio[0].File)
	assert.Equal(t, "audio_20240101_000001.pcm", env.forwarder.audio[2].File)
	assert.Equal(t, 2, env.forwarder.audio[2].Bytes)
}

func TestConnectionManager_BadAudioChunkKeepsConnection(t *testing.T) {
	env := newTestEnv(t, ManagerConfig{})
	ws := env.dial(t)
	defer closeClient(t, ws)

	send(t, ws, audioFrame("2024-01-01T00:00:00", []byte{1, 2}))
	send(t, ws, `{"type":"audio","timestamp":"2024-01-01T00:00:00","data":"%%%"}`)
	send(t, ws, `{"type":"audio","timestamp":"not a time","data":"AQI="}`)
	send(t, ws, audioFrame("2024-01-01T00:00:00", []byte{3, 4}))

	path := filepath.Join(env.root, "audio_20240101_000000.pcm")
	assert.Eventually(t, func() bool { return fileContent(path) == "\x01\x02\x03\x04" }, waitFor, tick)
	assert.Eventually(t, func() bool {
		return env.manager.Metrics().GetSnapshot().AudioChunks == 2
	}, waitFor, tick)

	snapshot := env.manager.Metrics().GetSnapshot()
	assert.Equal(t, int64(2), snapshot.AudioDropped)
	assert.Equal(t, int64(2), snapshot.AudioChunks)
	assert.Equal(t, int64(4), snapshot.AudioBytes)
	assert.Equal(t, 1, env.registry.Len())
}

func TestConnectionManager_UnrecognizedFramesArePersisted(t *testing.T) {
	env := newTestEnv(t, ManagerConfig{})
	ws := env.dial(t)
	defer closeClient(t, ws)

	send(t, ws, `hello, not json`)
	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, []byte{0xde, 0xad}))
	send(t, ws, `{"type":"battery","level":50}`)

	assert.Eventually(t, func() bool {
		return env.manager.Metrics().GetSnapshot().Unrecognized == 3
	}, waitFor, tick)

	txt, err := filepath.Glob(filepath.Join(env.root, "unknown_*.txt"))
	require.NoError(t, err)
	assert.Len(t, txt, 2)
	js, err := filepath.Glob(filepath.Join(env.root, "unknown_*.json"))
	require.NoError(t, err)
	assert.Len(t, js, 1)
}

func TestConnectionManager_DisconnectRemovesFromLiveSet(t *testing.T) {
	env := newTestEnv(t, ManagerConfig{})
	a := env.dial(t)
	b := env.dial(t)
	defer closeClient(t, b)

	assert.Eventually(t, func() bool { return env.registry.Len() == 2 }, waitFor, tick)

	// a holds audio_..._100000.pcm until it disconnects
	send(t, a, audioFrame("2024-01-01T10:00:00", []byte("a")))
	assert.Eventually(t, func() bool {
		return fileContent(filepath.Join(env.root, "audio_20240101_100000.pcm")) == "a"
	}, waitFor, tick)

	send(t, b, audioFrame("2024-01-01T10:00:00", []byte("b")))
	assert.Eventually(t, func() bool {
		matches, _ := filepath.Glob(filepath.Join(env.root, "audio_20240101_100000_*.pcm"))
		return len(matches) == 1 && fileContent(matches[0]) == "b"
	}, waitFor, tick)

	closeClient(t, a)
	assert.Eventually(t, func() bool { return env.registry.Len() == 1 }, waitFor, tick)

	infos := env.manager.Connections()
	require.Len(t, infos, 1)
	assert.NotEmpty(t, infos[0].ID)
	assert.NotEmpty(t, infos[0].RemoteAddr)

	assert.Eventually(t, func() bool {
		return env.manager.Metrics().GetSnapshot().ConnectionsClosed == 1
	}, waitFor, tick)
	assert.Equal(t, int64(2), env.manager.Metrics().GetSnapshot().ConnectionsAccepted)
}

func TestConnectionManager_CloseAll(t *testing.T) {
	env := newTestEnv(t, ManagerConfig{})
	ws := env.dial(t)
	defer ws.Close()

	assert.Eventually(t, func() bool { return env.registry.Len() == 1 }, waitFor, tick)
	assert.Equal(t, 1, env.manager.CloseAll())

	_ = ws.SetReadDeadline(time.Now().Add(waitFor))
	_, _, err := ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	done := make(chan struct{})
	go func() {
		env.manager.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("handlers still running after CloseAll")
	}
	assert.Equal(t, 0, env.registry.Len())

	resp, err := http.Get(env.server.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestConnectionManager_CloseAllDuringUpgradeClosesNewConnection(t *testing.T) {
	env := newTestEnvWith(t, ManagerConfig{}, func(m *ConnectionManager) {
		// runs inside Upgrade, after ServeHTTP checked for shutdown
		m.upgrader.CheckOrigin = func(*http.Request) bool {
			m.CloseAll()
			return true
		}
	})
	ws := env.dial(t)
	defer ws.Close()

	_ = ws.SetReadDeadline(time.Now().Add(waitFor))
	_, _, err := ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	done := make(chan struct{})
	go func() {
		env.manager.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("handler still running after CloseAll")
	}
	assert.Equal(t, 0, env.registry.Len())
	assert.Equal(t, int64(1), env.manager.Metrics().GetSnapshot().ConnectionsClosed)
}

func TestConnection_CloseAfterTeardownIsNoop(t *testing.T) {
	// ws is nil: touching the transport would panic
	conn := &Connection{ID: "gone"}
	assert.NoError(t, conn.Close())
}

func TestConnectionManager_IdleTimeout(t *testing.T) {
	env := newTestEnv(t, ManagerConfig{IdleTimeout: 100 * time.Millisecond})
	ws := env.dial(t)
	defer ws.Close()

	assert.Eventually(t, func() bool { return env.registry.Len() == 1 }, waitFor, tick)
	assert.Eventually(t, func() bool { return env.registry.Len() == 0 }, waitFor, tick)
}

func TestConnectionManager_OversizedFrameEndsConnection(t *testing.T) {
	env := newTestEnv(t, ManagerConfig{MaxMessageBytes: 64})
	ws := env.dial(t)
	defer ws.Close()

	send(t, ws, strings.Repeat("x", 1024))

	assert.Eventually(t, func() bool {
		return env.manager.Metrics().GetSnapshot().ConnectionsClosed == 1
	}, waitFor, tick)
	assert.Equal(t, int64(0), env.manager.Metrics().GetSnapshot().FramesReceived)
}

func TestConnectionManager_PlainHTTPIsRejected(t *testing.T) {
	env := newTestEnv(t, ManagerConfig{})

	resp, err := http.Get(env.server.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 0, env.registry.Len())
}
