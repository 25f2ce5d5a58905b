package consumer

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"sensorstream/internal/forwarder"
	"sensorstream/internal/registry"
	"sensorstream/internal/sink"
)

// Sinks are the persistence targets frames are routed to.
type Sinks struct {
	Sensor  *sink.SensorLog
	Audio   *sink.AudioSink
	Unknown *sink.UnknownSink
}

// ManagerConfig tunes the per-connection read loop.
type ManagerConfig struct {
	IdleTimeout     time.Duration // 0 disables the read deadline
	MaxMessageBytes int64         // 0 leaves frames unbounded
	MetricsInterval time.Duration // 0 disables the periodic report
}

// ConnectionManager upgrades HTTP requests to WebSocket connections and runs
// one read loop per connection until the peer goes away.
type ConnectionManager struct {
	config    ManagerConfig
	sinks     Sinks
	forwarder forwarder.Forwarder
	registry  *registry.Registry
	metrics   *Metrics
	logger    *zap.Logger

	upgrader websocket.Upgrader
	wg       sync.WaitGroup
	closing  atomic.Bool
	now      func() time.Time
}

// NewConnectionManager creates a manager. fwd may be nil.
func NewConnectionManager(
	cfg ManagerConfig,
	sinks Sinks,
	fwd forwarder.Forwarder,
	reg *registry.Registry,
	logger *zap.Logger,
) *ConnectionManager {
	if fwd == nil {
		fwd = forwarder.Multi(nil)
	}
	return &ConnectionManager{
		config:    cfg,
		sinks:     sinks,
		forwarder: fwd,
		registry:  reg,
		metrics:   NewMetrics(),
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 1024,
			// clients are not authenticated and mobile apps send no usable Origin
			CheckOrigin: func(*http.Request) bool { return true },
		},
		now: time.Now,
	}
}

// Metrics returns the manager's counters.
func (m *ConnectionManager) Metrics() *Metrics {
	return m.metrics
}

// Connections returns a snapshot of the live connection set.
func (m *ConnectionManager) Connections() []registry.Info {
	return m.registry.Snapshot()
}

// RunMetricsReporter logs metrics periodically until ctx is done.
func (m *ConnectionManager) RunMetricsReporter(ctx context.Context) {
	if m.config.MetricsInterval <= 0 {
		return
	}
	reportMetrics(ctx, m.metrics, m.config.MetricsInterval, m.logger)
}

// ServeHTTP upgrades the request and handles the connection until it closes.
func (m *ConnectionManager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.wg.Add(1)
	defer m.wg.Done()

	if m.closing.Load() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	ws, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error
		m.logger.Warn("WebSocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	conn := &Connection{
		ID:          uuid.New().String(),
		RemoteAddr:  ws.RemoteAddr().String(),
		ConnectedAt: m.now(),
		ws:          ws,
	}
	conn.audio = m.sinks.Audio.NewStream(conn.Origin())

	m.handle(r.Context(), conn)
}

// CloseAll closes every live connection and stops accepting new ones. Each
// handler tears its own connection down; use Wait to block until they finish.
func (m *ConnectionManager) CloseAll() int {
	m.closing.Store(true)
	return m.registry.CloseAll()
}

// Wait blocks until every handler has returned.
func (m *ConnectionManager) Wait() {
	m.wg.Wait()
}

func (m *ConnectionManager) handle(ctx context.Context, conn *Connection) {
	logger := m.logger.With(
		zap.String("connection_id", conn.ID),
		zap.String("remote_addr", conn.RemoteAddr),
	)

	conn.alive.Store(true)
	m.registry.Add(registry.Info{
		ID:          conn.ID,
		RemoteAddr:  conn.RemoteAddr,
		ConnectedAt: conn.ConnectedAt,
	}, conn)
	m.metrics.IncrementAccepted()
	logger.Info("Client connected")

	defer m.teardown(conn, logger)

	// CloseAll may have run between the check in ServeHTTP and Add above
	if m.closing.Load() {
		_ = conn.Close()
	}

	if m.config.MaxMessageBytes > 0 {
		conn.ws.SetReadLimit(m.config.MaxMessageBytes)
	}
	if m.config.IdleTimeout > 0 {
		conn.ws.SetPingHandler(func(data string) error {
			m.extendDeadline(conn)
			err := conn.ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(closeWriteWait))
			if errors.Is(err, websocket.ErrCloseSent) {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil
			}
			return err
		})
	}

	for {
		m.extendDeadline(conn)
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			logReadEnd(logger, err)
			return
		}
		m.dispatch(ctx, conn, data, logger)
	}
}

func (m *ConnectionManager) extendDeadline(conn *Connection) {
	if m.config.IdleTimeout > 0 {
		_ = conn.ws.SetReadDeadline(time.Now().Add(m.config.IdleTimeout))
	}
}

// teardown runs exactly once per connection, on every exit path of handle.
func (m *ConnectionManager) teardown(conn *Connection, logger *zap.Logger) {
	conn.alive.Store(false)
	if !m.registry.Remove(conn.ID) {
		logger.Warn("Connection was not in the live set")
	}
	if err := conn.audio.Close(); err != nil {
		logger.Warn("Failed to close audio stream", zap.Error(err))
	}
	_ = conn.ws.Close()
	m.metrics.IncrementClosed()
	logger.Info("Connection closed", zap.Duration("duration", m.now().Sub(conn.ConnectedAt)))
}

func logReadEnd(logger *zap.Logger, err error) {
	var netErr net.Error
	switch {
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		logger.Info("Client disconnected", zap.Error(err))
	case errors.As(err, &netErr) && netErr.Timeout():
		logger.Info("Connection idle timeout", zap.Error(err))
	case errors.Is(err, websocket.ErrReadLimit):
		logger.Warn("Frame exceeds size limit", zap.Error(err))
	default:
		logger.Warn("Connection read failed", zap.Error(err))
	}
}
