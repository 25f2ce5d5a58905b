package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"sensorstream/internal/models"
)

const recordingFilesSchema = `
	CREATE TABLE IF NOT EXISTS recording_files (
		file_name     TEXT PRIMARY KEY,
		kind          TEXT NOT NULL,
		connection_id TEXT NOT NULL DEFAULT '',
		remote_addr   TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL
	)
`

// RecordingIndex catalogs every file the receiver creates under its
// recordings root in the recording_files table.
type RecordingIndex struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRecordingIndex creates the recording catalog repository.
func NewRecordingIndex(db *sql.DB, logger *zap.Logger) *RecordingIndex {
	return &RecordingIndex{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema creates recording_files if it does not exist.
func (r *RecordingIndex) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, recordingFilesSchema); err != nil {
		return fmt.Errorf("failed to create recording_files: %w", err)
	}
	return nil
}

// RecordFile inserts one row per file. A file already cataloged is left as is.
func (r *RecordingIndex) RecordFile(ctx context.Context, rec models.FileRecord) error {
	query := `
		INSERT INTO recording_files (file_name, kind, connection_id, remote_addr, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (file_name) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.FileName,
		rec.Kind,
		rec.ConnectionID,
		rec.RemoteAddr,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert recording file %s: %w", rec.FileName, err)
	}

	r.logger.Debug("Recording file cataloged",
		zap.String("file_name", rec.FileName),
		zap.String("kind", rec.Kind),
	)
	return nil
}

// ListFiles returns the newest cataloged files first. An empty kind matches
// every kind; limit <= 0 means no limit.
func (r *RecordingIndex) ListFiles(ctx context.Context, kind string, limit int) ([]models.FileRecord, error) {
	query := `
		SELECT file_name, kind, connection_id, remote_addr, created_at
		FROM recording_files
		WHERE ($1 = '' OR kind = $1)
		ORDER BY created_at DESC, file_name
	`
	args := []any{kind}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recording_files: %w", err)
	}
	defer rows.Close()

	var records []models.FileRecord
	for rows.Next() {
		var rec models.FileRecord
		if err := rows.Scan(&rec.FileName, &rec.Kind, &rec.ConnectionID, &rec.RemoteAddr, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan recording file: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate recording_files: %w", err)
	}
	return records, nil
}
