package recordings

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"time"
)

const (
	// dBFS reference for signed 16-bit samples
	referenceLevel = 32768.0
	// RMS floor that keeps log10 finite on silence
	minimumRMS        = 1.0
	silenceDBFS       = -80.0
	clippingThreshold = 32000
	wavHeaderSize     = 44
)

// PCMStats summarizes a 16-bit little-endian PCM buffer.
type PCMStats struct {
	Bytes    int64
	Samples  int
	Duration time.Duration
	Peak     int     // largest absolute sample value
	RMS      float64 // in sample units
	DBFS     float64 // RMS level, clamped to [-80, 0]
	Clipping bool
	Silent   bool
}

// AnalyzePCM computes level statistics for data. A trailing odd byte is
// ignored.
func AnalyzePCM(data []byte) PCMStats {
	stats := PCMStats{
		Bytes:    int64(len(data)),
		Samples:  len(data) / BytesPerSample,
		Duration: PCMDuration(int64(len(data))),
	}
	if stats.Samples == 0 {
		stats.Silent = true
		stats.DBFS = silenceDBFS
		return stats
	}

	var sumSquares float64
	for i := 0; i+1 < len(data); i += BytesPerSample {
		sample := int(int16(binary.LittleEndian.Uint16(data[i : i+2])))
		if sample < 0 {
			sample = -sample
		}
		if sample > stats.Peak {
			stats.Peak = sample
		}
		sumSquares += float64(sample) * float64(sample)
	}

	stats.RMS = math.Sqrt(sumSquares / float64(stats.Samples))
	stats.DBFS = decibels(stats.RMS)
	stats.Clipping = stats.Peak >= clippingThreshold
	stats.Silent = stats.DBFS <= -60
	return stats
}

func decibels(rms float64) float64 {
	if rms < minimumRMS {
		rms = minimumRMS
	}
	db := 20 * math.Log10(rms/referenceLevel)
	if db < silenceDBFS {
		return silenceDBFS
	}
	if db > 0 {
		return 0
	}
	return db
}

// InspectPCM reads and analyzes the PCM file at path.
func InspectPCM(path string) (PCMStats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PCMStats{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return AnalyzePCM(data), nil
}

// WriteWAVHeader writes a 44-byte RIFF/WAVE header for dataSize bytes of
// 44.1 kHz mono 16-bit PCM.
func WriteWAVHeader(w io.Writer, dataSize uint32) error {
	const byteRate = SampleRate * Channels * BytesPerSample
	header := struct {
		ChunkID       [4]byte
		ChunkSize     uint32
		Format        [4]byte
		Subchunk1ID   [4]byte
		Subchunk1Size uint32
		AudioFormat   uint16
		NumChannels   uint16
		SampleRate    uint32
		ByteRate      uint32
		BlockAlign    uint16
		BitsPerSample uint16
		Subchunk2ID   [4]byte
		Subchunk2Size uint32
	}{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   Channels,
		SampleRate:    SampleRate,
		ByteRate:      byteRate,
		BlockAlign:    Channels * BytesPerSample,
		BitsPerSample: BitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}
	return binary.Write(w, binary.LittleEndian, header)
}

// ConvertToWAV wraps the PCM file at pcmPath into a playable WAV at wavPath
// and returns the number of audio bytes copied.
func ConvertToWAV(pcmPath, wavPath string) (int64, error) {
	in, err := os.Open(pcmPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", pcmPath, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", pcmPath, err)
	}
	if info.Size() > math.MaxUint32-wavHeaderSize {
		return 0, fmt.Errorf("%s is too large for a WAV file", pcmPath)
	}

	out, err := os.Create(wavPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", wavPath, err)
	}

	if err := WriteWAVHeader(out, uint32(info.Size())); err != nil {
		out.Close()
		return 0, fmt.Errorf("failed to write WAV header: %w", err)
	}
	n, err := io.Copy(out, in)
	if err != nil {
		out.Close()
		return n, fmt.Errorf("failed to copy audio data: %w", err)
	}
	if err := out.Close(); err != nil {
		return n, fmt.Errorf("failed to close %s: %w", wavPath, err)
	}
	return n, nil
}
