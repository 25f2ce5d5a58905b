package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"sensorstream/internal/models"
)

// SensorLog appends sensor readings to one line-delimited JSON file per
// receiver run. Each reading is written with a single Write call under mu, so
// lines from concurrent connections never interleave.
type SensorLog struct {
	path    string
	catalog Catalog
	logger  *zap.Logger

	mu     sync.Mutex
	file   *os.File
	closed bool
}

// ErrSensorLogClosed is returned by Record after Close.
var ErrSensorLogClosed = errors.New("sensor log closed")

// NewSensorLog names the log after startedAt. The file is created on the
// first reading.
func NewSensorLog(root string, startedAt time.Time, catalog Catalog, logger *zap.Logger) *SensorLog {
	return &SensorLog{
		path:    filepath.Join(root, SensorLogName(startedAt)),
		catalog: catalogOrNop(catalog),
		logger:  logger,
	}
}

// Path returns the log file path.
func (s *SensorLog) Path() string {
	return s.path
}

// Record appends reading as one JSON line.
func (s *SensorLog) Record(ctx context.Context, origin models.Origin, reading models.SensorReading) error {
	line, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("failed to encode sensor reading: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSensorLogClosed
	}
	if s.file == nil {
		if err := s.open(ctx, origin); err != nil {
			return err
		}
	}

	if _, err := s.file.Write(line); err != nil {
		return fmt.Errorf("failed to append sensor reading: %w", err)
	}
	return nil
}

func (s *SensorLog) open(ctx context.Context, origin models.Origin) error {
	_, statErr := os.Stat(s.path)
	created := errors.Is(statErr, os.ErrNotExist)

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open sensor log %s: %w", s.path, err)
	}
	s.file = f

	s.logger.Info("Sensor log opened", zap.String("path", s.path))

	if created {
		rec := models.FileRecord{
			FileName:     filepath.Base(s.path),
			Kind:         models.FileKindSensorLog,
			ConnectionID: origin.ConnectionID,
			RemoteAddr:   origin.RemoteAddr,
			CreatedAt:    time.Now(),
		}
		if err := s.catalog.RecordFile(ctx, rec); err != nil {
			s.logger.Warn("Failed to catalog sensor log", zap.String("path", s.path), zap.Error(err))
		}
	}
	return nil
}

// Close closes the log file if it was opened. Later calls to Record fail with
// ErrSensorLogClosed.
func (s *SensorLog) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
