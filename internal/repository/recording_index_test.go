package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sensorstream/internal/models"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *RecordingIndex) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewRecordingIndex(db, zap.NewNop())
	return db, mock, repo
}

func TestEnsureSchema(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS recording_files`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordFile_Success(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	createdAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := models.FileRecord{
		FileName:     "audio_20240101_000000.pcm",
		Kind:         models.FileKindAudio,
		ConnectionID: "conn-1",
		RemoteAddr:   "10.0.0.5:5555",
		CreatedAt:    createdAt,
	}

	mock.ExpectExec(`INSERT INTO recording_files`).
		WithArgs(rec.FileName, rec.Kind, rec.ConnectionID, rec.RemoteAddr, createdAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.RecordFile(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordFile_Error(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO recording_files`).
		WillReturnError(errors.New("connection reset"))

	err := repo.RecordFile(context.Background(), models.FileRecord{FileName: "unknown_20240101_000000.txt"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown_20240101_000000.txt")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListFiles(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	createdAt := time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"file_name", "kind", "connection_id", "remote_addr", "created_at"}).
		AddRow("audio_20240101_000001.pcm", "audio", "conn-1", "10.0.0.5:5555", createdAt).
		AddRow("audio_20240101_000000.pcm", "audio", "conn-1", "10.0.0.5:5555", createdAt.Add(-time.Second))

	mock.ExpectQuery(`SELECT file_name, kind, connection_id, remote_addr, created_at`).
		WithArgs("audio", 10).
		WillReturnRows(rows)

	records, err := repo.ListFiles(context.Background(), "audio", 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "audio_20240101_000001.pcm", records[0].FileName)
	assert.Equal(t, createdAt, records[0].CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListFiles_NoLimit(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT`).
		WithArgs("").
		WillReturnRows(sqlmock.NewRows([]string{"file_name", "kind", "connection_id", "remote_addr", "created_at"}))

	records, err := repo.ListFiles(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Empty(t, records)
	require.NoError(t, mock.ExpectationsWereMet())
}
