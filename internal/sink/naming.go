package sink

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileTimeLayout formats every timestamp embedded in a recordings file name.
const FileTimeLayout = "20060102_150405"

var (
	ErrInvalidPayload   = errors.New("invalid audio payload")
	ErrInvalidTimestamp = errors.New("invalid timestamp")
)

// ISO-8601 shapes accepted for chunk timestamps. Fractional seconds are accepted
// by time.Parse after the seconds field without being spelled out.
var timestampLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 timestamp. A timestamp without an offset is
// taken as-is; the wall clock fields are never converted.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidTimestamp)
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, value)
}

// AudioKey is the file stem for chunks stamped t, truncated to the second.
func AudioKey(t time.Time) string {
	return "audio_" + t.Format(FileTimeLayout)
}

// SensorLogName is the sensor log file name for a receiver started at t.
func SensorLogName(t time.Time) string {
	return "sensor_data_" + t.Format(FileTimeLayout) + ".json"
}

// DecodeAudioPayload decodes standard base64, padded or not.
func DecodeAudioPayload(data string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err == nil {
		return decoded, nil
	}
	if raw, rawErr := base64.RawStdEncoding.DecodeString(data); rawErr == nil {
		return raw, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
}

// createUnique creates stem+ext in dir, or stem_N+ext when the name is taken.
func createUnique(dir, stem, ext string) (*os.File, error) {
	const maxAttempts = 1000
	for i := 0; i < maxAttempts; i++ {
		name := stem + ext
		if i > 0 {
			name = fmt.Sprintf("%s_%d%s", stem, i, ext)
		}
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("no free file name for %s%s after %d attempts", stem, ext, maxAttempts)
}
