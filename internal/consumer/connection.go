package consumer

import (
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"sensorstream/internal/models"
	"sensorstream/internal/sink"
)

const closeWriteWait = time.Second

// Connection is one live WebSocket session. Everything except Close belongs
// to the goroutine handling the connection.
type Connection struct {
	ID          string
	RemoteAddr  string
	ConnectedAt time.Time

	ws    *websocket.Conn
	audio *sink.AudioStream
	alive atomic.Bool // set while the handling goroutine owns the connection
}

// Origin identifies the connection in persisted records and forwarded events.
func (c *Connection) Origin() models.Origin {
	return models.Origin{ConnectionID: c.ID, RemoteAddr: c.RemoteAddr}
}

// Close asks the peer to go away and closes the transport. The handling
// goroutine sees the read fail and tears the connection down. Safe to call
// from any goroutine; a connection already torn down is left alone.
func (c *Connection) Close() error {
	if !c.alive.Load() {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteWait))
	return c.ws.Close()
}
