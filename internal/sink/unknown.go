package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"sensorstream/internal/models"
)

// UnknownSink keeps frames nobody else wanted: raw bytes go to unknown_<ts>.txt,
// decoded but unmatched JSON to unknown_<ts>.json.
type UnknownSink struct {
	root    string
	catalog Catalog
	logger  *zap.Logger
	now     func() time.Time
}

func NewUnknownSink(root string, catalog Catalog, logger *zap.Logger) *UnknownSink {
	return &UnknownSink{
		root:    root,
		catalog: catalogOrNop(catalog),
		logger:  logger,
		now:     time.Now,
	}
}

// Record writes msg to a new artifact file and returns its path.
func (u *UnknownSink) Record(ctx context.Context, origin models.Origin, msg models.Unrecognized) (string, error) {
	var (
		content []byte
		ext     string
	)
	if msg.Parsed() {
		encoded, err := json.MarshalIndent(msg.Decoded, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to encode unrecognized message: %w", err)
		}
		content, ext = encoded, ".json"
	} else {
		content, ext = msg.Raw, ".txt"
	}

	stem := "unknown_" + u.now().Format(FileTimeLayout)
	f, err := createUnique(u.root, stem, ext)
	if err != nil {
		return "", fmt.Errorf("failed to create unknown artifact: %w", err)
	}
	path := f.Name()

	if _, err := f.Write(content); err != nil {
		f.Close()
		return path, fmt.Errorf("failed to write unknown artifact %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return path, fmt.Errorf("failed to close unknown artifact %s: %w", path, err)
	}

	rec := models.FileRecord{
		FileName:     filepath.Base(path),
		Kind:         models.FileKindUnknown,
		ConnectionID: origin.ConnectionID,
		RemoteAddr:   origin.RemoteAddr,
		CreatedAt:    u.now(),
	}
	if err := u.catalog.RecordFile(ctx, rec); err != nil {
		u.logger.Warn("Failed to catalog unknown artifact", zap.String("path", path), zap.Error(err))
	}
	return path, nil
}

// IsArtifact reports whether name looks like an unknown_* artifact.
func IsArtifact(name string) bool {
	return strings.HasPrefix(name, "unknown_") &&
		(strings.HasSuffix(name, ".txt") || strings.HasSuffix(name, ".json"))
}
