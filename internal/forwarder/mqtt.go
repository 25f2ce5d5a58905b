package forwarder

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Publisher is the part of the MQTT client the forwarder needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Disconnect()
}

// MQTTForwarder publishes events under
// <prefix>/<connectionID>/sensor/<sensorType> and <prefix>/<connectionID>/audio.
type MQTTForwarder struct {
	publisher Publisher
	prefix    string
	qos       byte
}

func NewMQTTForwarder(publisher Publisher, prefix string, qos byte) *MQTTForwarder {
	return &MQTTForwarder{
		publisher: publisher,
		prefix:    strings.TrimSuffix(prefix, "/"),
		qos:       qos,
	}
}

func (f *MQTTForwarder) ForwardSensor(_ context.Context, event SensorEvent) error {
	topic := fmt.Sprintf("%s/%s/sensor/%s", f.prefix, topicLevel(event.ConnectionID), topicLevel(event.SensorType))
	return f.publish(topic, event)
}

func (f *MQTTForwarder) ForwardAudio(_ context.Context, event AudioEvent) error {
	topic := fmt.Sprintf("%s/%s/audio", f.prefix, topicLevel(event.ConnectionID))
	return f.publish(topic, event)
}

func (f *MQTTForwarder) publish(topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event for %s: %w", topic, err)
	}
	return f.publisher.Publish(topic, f.qos, false, payload)
}

// Close disconnects from the broker.
func (f *MQTTForwarder) Close() error {
	f.publisher.Disconnect()
	return nil
}

// topicLevel makes s safe to use as a single topic level.
func topicLevel(s string) string {
	if s == "" {
		return "unknown"
	}
	return strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(s)
}
