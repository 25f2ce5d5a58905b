package consumer

import (
	"context"
	"errors"
	"path/filepath"

	"go.uber.org/zap"

	"sensorstream/internal/classifier"
	"sensorstream/internal/forwarder"
	"sensorstream/internal/models"
	"sensorstream/internal/sink"
)

// dispatch classifies one frame and hands it to its sink. Failures are logged
// and counted; they never end the connection.
func (m *ConnectionManager) dispatch(ctx context.Context, conn *Connection, raw []byte, logger *zap.Logger) {
	m.metrics.IncrementFrames()
	receivedAt := m.now()
	origin := conn.Origin()

	msg := classifier.Classify(raw)
	switch msg.Kind {
	case models.KindSensorReading:
		if err := m.sinks.Sensor.Record(ctx, origin, *msg.Sensor); err != nil {
			m.metrics.IncrementWriteErrors()
			logger.Error("Failed to record sensor reading", zap.Error(err))
			return
		}
		m.metrics.IncrementSensor()

		event := forwarder.NewSensorEvent(origin, *msg.Sensor, receivedAt)
		if err := m.forwarder.ForwardSensor(ctx, event); err != nil {
			m.metrics.IncrementForwardErrors()
			logger.Warn("Failed to forward sensor reading", zap.Error(err))
		}

	case models.KindAudioChunk:
		n, err := m.sinks.Audio.Write(ctx, conn.audio, *msg.Audio)
		if err != nil {
			if errors.Is(err, sink.ErrInvalidPayload) || errors.Is(err, sink.ErrInvalidTimestamp) {
				m.metrics.IncrementAudioDropped()
				logger.Warn("Audio chunk dropped",
					zap.String("timestamp", msg.Audio.Timestamp),
					zap.Error(err),
				)
				return
			}
			m.metrics.IncrementWriteErrors()
			logger.Error("Failed to write audio chunk", zap.Error(err))
			return
		}
		m.metrics.AddAudio(n)

		event := forwarder.NewAudioEvent(origin, msg.Audio.Timestamp, filepath.Base(conn.audio.Path()), n, receivedAt)
		if err := m.forwarder.ForwardAudio(ctx, event); err != nil {
			m.metrics.IncrementForwardErrors()
			logger.Warn("Failed to forward audio chunk", zap.Error(err))
		}

	default:
		path, err := m.sinks.Unknown.Record(ctx, origin, *msg.Unrecognized)
		if err != nil {
			m.metrics.IncrementWriteErrors()
			logger.Error("Failed to store unrecognized message", zap.Error(err))
			return
		}
		m.metrics.IncrementUnrecognized()
		logger.Info("Unrecognized message stored",
			zap.String("path", path),
			zap.Bool("valid_json", msg.Unrecognized.Parsed()),
		)
	}
}
