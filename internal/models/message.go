package models

import "time"

// Kind is the closed set of inbound message kinds.
type Kind int

const (
	KindUnrecognized Kind = iota
	KindSensorReading
	KindAudioChunk
)

func (k Kind) String() string {
	switch k {
	case KindSensorReading:
		return "sensor"
	case KindAudioChunk:
		return "audio"
	default:
		return "unrecognized"
	}
}

// SensorReading is one accelerometer/gyroscope sample. Empty fields were absent
// on the wire and are omitted when the reading is persisted.
type SensorReading struct {
	SensorType string         `json:"sensorType,omitempty"`
	Timestamp  string         `json:"timestamp,omitempty"`
	Values     map[string]any `json:"values,omitempty"`
}

// AudioChunk is one base64 encoded slice of the client's PCM stream.
type AudioChunk struct {
	Timestamp string
	Data      string
}

// Unrecognized holds a frame that matched no kind. Raw is set when the frame
// could not be decoded at all; otherwise Decoded holds the parsed value.
type Unrecognized struct {
	Raw     []byte
	Decoded any
}

// Parsed reports whether the frame was valid JSON.
func (u Unrecognized) Parsed() bool {
	return u.Raw == nil
}

// Message is the result of classifying one frame. Exactly one of the payload
// fields is set, matching Kind.
type Message struct {
	Kind         Kind
	Sensor       *SensorReading
	Audio        *AudioChunk
	Unrecognized *Unrecognized
}

// Origin identifies the connection a frame arrived on.
type Origin struct {
	ConnectionID string
	RemoteAddr   string
}

// File kinds written under the recordings root.
const (
	FileKindSensorLog = "sensor_log"
	FileKindAudio     = "audio"
	FileKindUnknown   = "unknown"
)

// FileRecord describes a recordings file at the moment it was created.
type FileRecord struct {
	FileName     string
	Kind         string
	ConnectionID string
	RemoteAddr   string
	CreatedAt    time.Time
}
