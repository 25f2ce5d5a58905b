// Package forwarder mirrors persisted telemetry events to external brokers.
// Forwarding is best effort: callers log the returned error and move on.
package forwarder

import (
	"context"
	"errors"
	"time"

	"sensorstream/internal/models"
)

// SensorEvent is a sensor reading plus the connection it arrived on.
type SensorEvent struct {
	ConnectionID string         `json:"connection_id"`
	RemoteAddr   string         `json:"remote_addr"`
	ReceivedAt   time.Time      `json:"received_at"`
	SensorType   string         `json:"sensorType"`
	Timestamp    string         `json:"timestamp"`
	Values       map[string]any `json:"values"`
}

// AudioEvent describes one persisted audio chunk. The audio bytes themselves
// are not forwarded.
type AudioEvent struct {
	ConnectionID string    `json:"connection_id"`
	RemoteAddr   string    `json:"remote_addr"`
	ReceivedAt   time.Time `json:"received_at"`
	Timestamp    string    `json:"timestamp"`
	File         string    `json:"file"`
	Bytes        int       `json:"bytes"`
}

func NewSensorEvent(origin models.Origin, reading models.SensorReading, receivedAt time.Time) SensorEvent {
	return SensorEvent{
		ConnectionID: origin.ConnectionID,
		RemoteAddr:   origin.RemoteAddr,
		ReceivedAt:   receivedAt,
		SensorType:   reading.SensorType,
		Timestamp:    reading.Timestamp,
		Values:       reading.Values,
	}
}

func NewAudioEvent(origin models.Origin, timestamp, file string, n int, receivedAt time.Time) AudioEvent {
	return AudioEvent{
		ConnectionID: origin.ConnectionID,
		RemoteAddr:   origin.RemoteAddr,
		ReceivedAt:   receivedAt,
		Timestamp:    timestamp,
		File:         file,
		Bytes:        n,
	}
}

// Forwarder publishes events somewhere outside the receiver.
type Forwarder interface {
	ForwardSensor(ctx context.Context, event SensorEvent) error
	ForwardAudio(ctx context.Context, event AudioEvent) error
	Close() error
}

// Multi fans every event out to all of its forwarders. A failing forwarder
// does not stop the others.
type Multi []Forwarder

func (m Multi) ForwardSensor(ctx context.Context, event SensorEvent) error {
	var errs []error
	for _, f := range m {
		if err := f.ForwardSensor(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) ForwardAudio(ctx context.Context, event AudioEvent) error {
	var errs []error
	for _, f := range m {
		if err := f.ForwardAudio(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, f := range m {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
