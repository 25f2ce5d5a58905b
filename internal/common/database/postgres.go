package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"sensorstream/internal/common/config"
)

const (
	connectTimeout  = 5 * time.Second
	connMaxIdleTime = 5 * time.Minute
)

// NewPostgresDB opens a Postgres pool and verifies it with a bounded ping.
func NewPostgresDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.MaxIdle)
	}
	db.SetConnMaxIdleTime(connMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database %s@%s:%d: %w", cfg.Database, cfg.Host, cfg.Port, err)
	}

	return db, nil
}

// Close closes db if it is not nil.
func Close(db *sql.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}
