// Package recordings reads the files the receiver leaves under its
// recordings root: PCM audio, sensor logs and unknown artifacts.
package recordings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"sensorstream/internal/sink"
)

// Audio format of every audio_*.pcm file: signed 16-bit little-endian mono.
const (
	SampleRate     = 44100
	Channels       = 1
	BitsPerSample  = 16
	BytesPerSample = BitsPerSample / 8
)

var ErrNoSensorLog = errors.New("no sensor log found")

// FileInfo describes one recordings file.
type FileInfo struct {
	Name     string
	Path     string
	Size     int64
	ModTime  time.Time
	Duration time.Duration // audio files only
}

// PCMDuration is the playback length of size bytes of audio.
func PCMDuration(size int64) time.Duration {
	samples := size / (BytesPerSample * Channels)
	return time.Duration(samples) * time.Second / SampleRate
}

// ListAudio returns the audio files under root sorted by name, which is
// chronological for files from one stream.
func ListAudio(root string) ([]FileInfo, error) {
	files, err := list(root, func(name string) bool {
		return strings.HasPrefix(name, "audio_") && strings.HasSuffix(name, ".pcm")
	})
	if err != nil {
		return nil, err
	}
	for i := range files {
		files[i].Duration = PCMDuration(files[i].Size)
	}
	return files, nil
}

// ListSensorLogs returns the sensor logs under root sorted by name.
func ListSensorLogs(root string) ([]FileInfo, error) {
	return list(root, isSensorLog)
}

// ListUnknown returns the unknown_* artifacts under root sorted by name.
func ListUnknown(root string) ([]FileInfo, error) {
	return list(root, sink.IsArtifact)
}

// LatestSensorLog returns the most recently modified sensor log under root.
func LatestSensorLog(root string) (string, error) {
	logs, err := ListSensorLogs(root)
	if err != nil {
		return "", err
	}
	if len(logs) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoSensorLog, root)
	}
	latest := logs[0]
	for _, l := range logs[1:] {
		if l.ModTime.After(latest.ModTime) {
			latest = l
		}
	}
	return latest.Path, nil
}

func isSensorLog(name string) bool {
	return strings.HasPrefix(name, "sensor_data_") && strings.HasSuffix(name, ".json")
}

func list(root string, match func(name string) bool) ([]FileInfo, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read recordings directory %s: %w", root, err)
	}

	var files []FileInfo
	for _, entry := range entries {
		if entry.IsDir() || !match(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		files = append(files, FileInfo{
			Name:    entry.Name(),
			Path:    filepath.Join(root, entry.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}
