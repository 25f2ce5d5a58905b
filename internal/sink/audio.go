package sink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"sensorstream/internal/models"
)

// AudioSink rebuilds PCM streams from base64 chunks. File handles live in the
// AudioStream owned by each connection; the sink only arbitrates file names so
// two live connections never append to the same file.
type AudioSink struct {
	root    string
	fsync   bool
	catalog Catalog
	logger  *zap.Logger

	mu     sync.Mutex
	claims map[string]string // audio key -> owning connection ID
}

// NewAudioSink writes audio files under root. With fsync set every chunk is
// synced to stable storage before Write returns.
func NewAudioSink(root string, fsync bool, catalog Catalog, logger *zap.Logger) *AudioSink {
	return &AudioSink{
		root:    root,
		fsync:   fsync,
		catalog: catalogOrNop(catalog),
		logger:  logger,
		claims:  make(map[string]string),
	}
}

// AudioStream is one connection's open audio file. It must only be used by the
// goroutine that owns the connection.
type AudioStream struct {
	sink   *AudioSink
	origin models.Origin

	key  string
	path string
	file *os.File
}

// NewStream returns an empty stream for the connection identified by origin.
func (a *AudioSink) NewStream(origin models.Origin) *AudioStream {
	return &AudioStream{sink: a, origin: origin}
}

// NeedsRotation is the rotate-or-keep decision: a chunk keyed differently from
// the open file, or any chunk when no file is open, needs a new file.
func (s *AudioStream) NeedsRotation(key string) bool {
	return s.file == nil || s.key != key
}

// Path returns the open file path, or "" when nothing is open.
func (s *AudioStream) Path() string {
	return s.path
}

// Close closes the open file and gives up its name.
func (s *AudioStream) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.sink.release(s.key, s.origin.ConnectionID)
	s.file = nil
	s.key = ""
	s.path = ""
	if err != nil {
		return fmt.Errorf("failed to close audio file: %w", err)
	}
	return nil
}

// Write decodes chunk and appends it to the stream's file, rotating first when
// the chunk's second differs from the open file's. It returns the number of
// audio bytes written. A decode error leaves the stream untouched.
func (a *AudioSink) Write(ctx context.Context, stream *AudioStream, chunk models.AudioChunk) (int, error) {
	data, err := DecodeAudioPayload(chunk.Data)
	if err != nil {
		return 0, err
	}
	ts, err := ParseTimestamp(chunk.Timestamp)
	if err != nil {
		return 0, err
	}

	key := AudioKey(ts)
	if stream.NeedsRotation(key) {
		if err := a.rotate(ctx, stream, key); err != nil {
			return 0, err
		}
	}

	n, err := stream.file.Write(data)
	if err != nil {
		return n, fmt.Errorf("failed to write audio chunk to %s: %w", stream.path, err)
	}
	if a.fsync {
		if err := stream.file.Sync(); err != nil {
			return n, fmt.Errorf("failed to sync audio file %s: %w", stream.path, err)
		}
	}
	return n, nil
}

func (a *AudioSink) rotate(ctx context.Context, stream *AudioStream, key string) error {
	if err := stream.Close(); err != nil {
		a.logger.Warn("Failed to close previous audio file",
			zap.String("connection_id", stream.origin.ConnectionID),
			zap.Error(err),
		)
	}

	name := a.claim(key, stream.origin.ConnectionID)
	path := filepath.Join(a.root, name)

	_, statErr := os.Stat(path)
	created := errors.Is(statErr, os.ErrNotExist)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		a.release(key, stream.origin.ConnectionID)
		return fmt.Errorf("failed to open audio file %s: %w", path, err)
	}

	stream.key = key
	stream.path = path
	stream.file = f

	a.logger.Info("Audio file opened",
		zap.String("connection_id", stream.origin.ConnectionID),
		zap.String("path", path),
	)

	if created {
		rec := models.FileRecord{
			FileName:     name,
			Kind:         models.FileKindAudio,
			ConnectionID: stream.origin.ConnectionID,
			RemoteAddr:   stream.origin.RemoteAddr,
			CreatedAt:    time.Now(),
		}
		if err := a.catalog.RecordFile(ctx, rec); err != nil {
			a.logger.Warn("Failed to catalog audio file", zap.String("path", path), zap.Error(err))
		}
	}
	return nil
}

// claim returns the file name connID should write key to: key.pcm, unless
// another live connection already writes it.
func (a *AudioSink) claim(key, connID string) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	owner, taken := a.claims[key]
	if !taken {
		a.claims[key] = connID
		return key + ".pcm"
	}
	if owner == connID {
		return key + ".pcm"
	}
	return key + "_" + shortID(connID) + ".pcm"
}

func (a *AudioSink) release(key, connID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.claims[key] == connID {
		delete(a.claims, key)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
