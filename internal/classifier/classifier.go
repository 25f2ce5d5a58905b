// Package classifier assigns each inbound frame to exactly one message kind.
//
// Rules, first match wins:
//  1. an object carrying sensorType, values and timestamp is a sensor reading,
//     whatever its "type" says
//  2. "type": "sensor" is a sensor reading taken from the nested "data" object
//  3. "type": "audio" is an audio chunk
//  4. anything else is unrecognized
//
// Rule 1 shadows rule 3: an audio frame that also carries the three sensor
// fields is routed to the sensor log.
package classifier

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"sensorstream/internal/models"
)

const (
	typeSensor = "sensor"
	typeAudio  = "audio"
)

// Classify decodes raw and returns its kind. It never fails: undecodable input
// comes back as Unrecognized with the raw bytes preserved.
func Classify(raw []byte) models.Message {
	value, err := decode(raw)
	if err != nil {
		return unrecognizedRaw(raw)
	}
	return ClassifyValue(value)
}

// ClassifyValue classifies an already decoded JSON value.
func ClassifyValue(value any) models.Message {
	obj, ok := value.(map[string]any)
	if !ok {
		return models.Message{
			Kind:         models.KindUnrecognized,
			Unrecognized: &models.Unrecognized{Decoded: value},
		}
	}

	if hasKeys(obj, "sensorType", "values", "timestamp") {
		return sensorMessage(obj)
	}

	msgType, _ := obj["type"].(string)
	switch msgType {
	case typeSensor:
		inner, _ := obj["data"].(map[string]any)
		return sensorMessage(inner)
	case typeAudio:
		return models.Message{
			Kind: models.KindAudioChunk,
			Audio: &models.AudioChunk{
				Timestamp: stringField(obj, "timestamp"),
				Data:      stringField(obj, "data"),
			},
		}
	}

	return models.Message{
		Kind:         models.KindUnrecognized,
		Unrecognized: &models.Unrecognized{Decoded: obj},
	}
}

// ExtractSensorReading pulls the reading fields out of obj. Missing fields stay
// empty; a non-object "values" is dropped.
func ExtractSensorReading(obj map[string]any) models.SensorReading {
	reading := models.SensorReading{
		SensorType: stringField(obj, "sensorType"),
		Timestamp:  stringField(obj, "timestamp"),
	}
	if values, ok := obj["values"].(map[string]any); ok {
		reading.Values = values
	}
	return reading
}

func sensorMessage(obj map[string]any) models.Message {
	reading := ExtractSensorReading(obj)
	return models.Message{
		Kind:   models.KindSensorReading,
		Sensor: &reading,
	}
}

func unrecognizedRaw(raw []byte) models.Message {
	// keep a non-nil slice so Parsed() stays false for empty frames
	preserved := make([]byte, len(raw))
	copy(preserved, raw)
	return models.Message{
		Kind:         models.KindUnrecognized,
		Unrecognized: &models.Unrecognized{Raw: preserved},
	}
}

// decode parses exactly one JSON value, keeping numbers as json.Number.
func decode(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("trailing data after JSON value")
	}
	return value, nil
}

func hasKeys(obj map[string]any, keys ...string) bool {
	for _, k := range keys {
		if _, ok := obj[k]; !ok {
			return false
		}
	}
	return true
}

func stringField(obj map[string]any, key string) string {
	v, ok := obj[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
