package consumer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Metrics counts frames and connections handled by the ConnectionManager.
type Metrics struct {
	mu sync.RWMutex

	FramesReceived int64
	SensorReadings int64
	AudioChunks    int64
	AudioBytes     int64
	Unrecognized   int64

	AudioDropped  int64 // undecodable payload or timestamp
	WriteErrors   int64 // sink I/O failures
	ForwardErrors int64

	ConnectionsAccepted int64
	ConnectionsClosed   int64

	StartTime time.Time
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	FramesReceived      int64     `json:"frames_received"`
	SensorReadings      int64     `json:"sensor_readings"`
	AudioChunks         int64     `json:"audio_chunks"`
	AudioBytes          int64     `json:"audio_bytes"`
	Unrecognized        int64     `json:"unrecognized"`
	AudioDropped        int64     `json:"audio_dropped"`
	WriteErrors         int64     `json:"write_errors"`
	ForwardErrors       int64     `json:"forward_errors"`
	ConnectionsAccepted int64     `json:"connections_accepted"`
	ConnectionsClosed   int64     `json:"connections_closed"`
	StartTime           time.Time `json:"start_time"`
}

func NewMetrics() *Metrics {
	return &Metrics{StartTime: time.Now()}
}

// GetSnapshot returns a copy safe to read without the lock.
func (m *Metrics) GetSnapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return MetricsSnapshot{
		FramesReceived:      m.FramesReceived,
		SensorReadings:      m.SensorReadings,
		AudioChunks:         m.AudioChunks,
		AudioBytes:          m.AudioBytes,
		Unrecognized:        m.Unrecognized,
		AudioDropped:        m.AudioDropped,
		WriteErrors:         m.WriteErrors,
		ForwardErrors:       m.ForwardErrors,
		ConnectionsAccepted: m.ConnectionsAccepted,
		ConnectionsClosed:   m.ConnectionsClosed,
		StartTime:           m.StartTime,
	}
}

func (m *Metrics) add(field *int64, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*field += n
}

func (m *Metrics) IncrementFrames()        { m.add(&m.FramesReceived, 1) }
func (m *Metrics) IncrementSensor()        { m.add(&m.SensorReadings, 1) }
func (m *Metrics) IncrementUnrecognized()  { m.add(&m.Unrecognized, 1) }
func (m *Metrics) IncrementAudioDropped()  { m.add(&m.AudioDropped, 1) }
func (m *Metrics) IncrementWriteErrors()   { m.add(&m.WriteErrors, 1) }
func (m *Metrics) IncrementForwardErrors() { m.add(&m.ForwardErrors, 1) }
func (m *Metrics) IncrementAccepted()      { m.add(&m.ConnectionsAccepted, 1) }
func (m *Metrics) IncrementClosed()        { m.add(&m.ConnectionsClosed, 1) }

// AddAudio counts one persisted chunk of n bytes.
func (m *Metrics) AddAudio(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AudioChunks++
	m.AudioBytes += int64(n)
}

// reportMetrics logs a snapshot every interval until ctx is done.
func reportMetrics(ctx context.Context, metrics *Metrics, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot := metrics.GetSnapshot()
			logger.Info("Metrics report",
				zap.Int64("frames_received", snapshot.FramesReceived),
				zap.Int64("sensor_readings", snapshot.SensorReadings),
				zap.Int64("audio_chunks", snapshot.AudioChunks),
				zap.Int64("audio_bytes", snapshot.AudioBytes),
				zap.Int64("unrecognized", snapshot.Unrecognized),
				zap.Int64("audio_dropped", snapshot.AudioDropped),
				zap.Int64("write_errors", snapshot.WriteErrors),
				zap.Int64("forward_errors", snapshot.ForwardErrors),
				zap.Int64("connections_accepted", snapshot.ConnectionsAccepted),
				zap.Int64("connections_closed", snapshot.ConnectionsClosed),
				zap.Duration("uptime", time.Since(snapshot.StartTime)),
			)
		}
	}
}
