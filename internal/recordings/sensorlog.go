package recordings

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
)

// SensorLine is one decoded sensor log line.
type SensorLine struct {
	SensorType string         `json:"sensorType"`
	Timestamp  string         `json:"timestamp"`
	Values     map[string]any `json:"values"`
}

// maxLineBytes bounds one sensor log line; larger lines are skipped.
const maxLineBytes = 4 << 20

// ReadSensorLog decodes every line of the log at path. Lines that are not a
// JSON object are skipped and counted.
func ReadSensorLog(path string) (lines []SensorLine, skipped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open sensor log %s: %w", path, err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	for {
		raw, readErr := reader.ReadBytes('\n')
		raw = bytes.TrimSpace(raw)
		if len(raw) > 0 {
			var line SensorLine
			if len(raw) > maxLineBytes || raw[0] != '{' || json.Unmarshal(raw, &line) != nil {
				skipped++
			} else {
				lines = append(lines, line)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return lines, skipped, fmt.Errorf("failed to read sensor log %s: %w", path, readErr)
		}
	}
	return lines, skipped, nil
}

// Vector is one three-axis sample.
type Vector struct {
	X, Y, Z   float64
	Timestamp string
}

// Magnitude is the Euclidean length of v.
func (v Vector) Magnitude() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Orientation is the latest motion state found in a sensor log.
type Orientation struct {
	Accelerometer *Vector
	Gyroscope     *Vector
	// Pitch and Roll are in degrees, derived from the gravity vector. Only set
	// when an accelerometer reading exists.
	Pitch float64
	Roll  float64
}

// LatestOrientation picks the last accelerometer and gyroscope readings and
// estimates pitch and roll from the accelerometer.
func LatestOrientation(lines []SensorLine) Orientation {
	var o Orientation
	for i := len(lines) - 1; i >= 0 && (o.Accelerometer == nil || o.Gyroscope == nil); i-- {
		line := lines[i]
		switch line.SensorType {
		case "accelerometer":
			if o.Accelerometer == nil {
				v := vectorOf(line)
				o.Accelerometer = &v
			}
		case "gyroscope":
			if o.Gyroscope == nil {
				v := vectorOf(line)
				o.Gyroscope = &v
			}
		}
	}

	if a := o.Accelerometer; a != nil {
		o.Pitch = degrees(math.Atan2(a.X, math.Sqrt(a.Y*a.Y+a.Z*a.Z)))
		o.Roll = degrees(math.Atan2(a.Y, a.Z))
	}
	return o
}

func vectorOf(line SensorLine) Vector {
	return Vector{
		X:         number(line.Values["x"]),
		Y:         number(line.Values["y"]),
		Z:         number(line.Values["z"]),
		Timestamp: line.Timestamp,
	}
}

// number returns v as a float64, or 0 when v is not a JSON number.
func number(v any) float64 {
	f, _ := v.(float64)
	return f
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
