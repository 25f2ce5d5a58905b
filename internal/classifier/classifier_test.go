package classifier

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorstream/internal/models"
)

func TestClassify_ImplicitSensorReading(t *testing.T) {
	msg := Classify([]byte(`{"sensorType":"accelerometer","timestamp":"2024-01-01T00:00:00","values":{"x":0.1,"y":9.8,"z":0.2}}`))

	require.Equal(t, models.KindSensorReading, msg.Kind)
	require.NotNil(t, msg.Sensor)
	assert.Equal(t, "accelerometer", msg.Sensor.SensorType)
	assert.Equal(t, "2024-01-01T00:00:00", msg.Sensor.Timestamp)
	assert.Equal(t, json.Number("9.8"), msg.Sensor.Values["y"])
	assert.Len(t, msg.Sensor.Values, 3)
}

func TestClassify_ExplicitSensorReading(t *testing.T) {
	msg := Classify([]byte(`{"type":"sensor","data":{"sensorType":"gyroscope","timestamp":"2024-01-01T00:00:00.123","values":{"x":-0.01}}}`))

	require.Equal(t, models.KindSensorReading, msg.Kind)
	assert.Equal(t, "gyroscope", msg.Sensor.SensorType)
	assert.Equal(t, "2024-01-01T00:00:00.123", msg.Sensor.Timestamp)
	assert.Equal(t, json.Number("-0.01"), msg.Sensor.Values["x"])
}

func TestClassify_ExplicitSensorWithoutData(t *testing.T) {
	msg := Classify([]byte(`{"type":"sensor","payload":[1,2,3]}`))

	require.Equal(t, models.KindSensorReading, msg.Kind)
	assert.Empty(t, msg.Sensor.SensorType)
	assert.Empty(t, msg.Sensor.Timestamp)
	assert.Nil(t, msg.Sensor.Values)
}

func TestClassify_SensorFieldsWinOverAudioType(t *testing.T) {
	msg := Classify([]byte(`{"type":"audio","sensorType":"mic","timestamp":"2024-01-01T00:00:00","values":{},"data":"AAAA"}`))

	assert.Equal(t, models.KindSensorReading, msg.Kind)
	assert.Nil(t, msg.Audio)
	assert.Equal(t, "mic", msg.Sensor.SensorType)
}

func TestClassify_AudioChunk(t *testing.T) {
	msg := Classify([]byte(`{"type":"audio","timestamp":"2024-01-01T00:00:00","data":"AAECAw=="}`))

	require.Equal(t, models.KindAudioChunk, msg.Kind)
	assert.Equal(t, "2024-01-01T00:00:00", msg.Audio.Timestamp)
	assert.Equal(t, "AAECAw==", msg.Audio.Data)
}

func TestClassify_UnknownType(t *testing.T) {
	msg := Classify([]byte(`{"type":"battery","level":87}`))

	require.Equal(t, models.KindUnrecognized, msg.Kind)
	require.NotNil(t, msg.Unrecognized)
	assert.True(t, msg.Unrecognized.Parsed())
	obj, ok := msg.Unrecognized.Decoded.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "battery", obj["type"])
}

func TestClassify_NonStringTypeIsUnrecognized(t *testing.T) {
	msg := Classify([]byte(`{"type":1,"data":"AAAA"}`))

	assert.Equal(t, models.KindUnrecognized, msg.Kind)
}

func TestClassify_NonObjectJSON(t *testing.T) {
	msg := Classify([]byte(`["sensorType","values","timestamp"]`))

	require.Equal(t, models.KindUnrecognized, msg.Kind)
	assert.True(t, msg.Unrecognized.Parsed())
	assert.IsType(t, []any{}, msg.Unrecognized.Decoded)
}

func TestClassify_InvalidJSONKeepsRawBytes(t *testing.T) {
	cases := map[string][]byte{
		"plain text":    []byte("hello from phone"),
		"truncated":     []byte(`{"type":"audio"`),
		"trailing data": []byte(`{"type":"audio"} {}`),
		"empty":         {},
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			msg := Classify(raw)

			require.Equal(t, models.KindUnrecognized, msg.Kind)
			assert.False(t, msg.Unrecognized.Parsed())
			assert.Equal(t, raw, msg.Unrecognized.Raw)
		})
	}
}

func TestExtractSensorReading_NonObjectValuesDropped(t *testing.T) {
	reading := ExtractSensorReading(map[string]any{
		"sensorType": "accelerometer",
		"values":     "broken",
	})

	assert.Equal(t, "accelerometer", reading.SensorType)
	assert.Empty(t, reading.Timestamp)
	assert.Nil(t, reading.Values)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "sensor", models.KindSensorReading.String())
	assert.Equal(t, "audio", models.KindAudioChunk.String())
	assert.Equal(t, "unrecognized", models.KindUnrecognized.String())
}
