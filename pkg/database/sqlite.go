package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
)

// Config holds row store configuration
type Config struct {
	// Path is the location of the SQLite database file.
	// ":memory:" opens a transient in-memory store (tests).
	Path string

	// BusyTimeout bounds how long a statement waits on the file lock.
	BusyTimeout time.Duration
}

// SQLiteDB wraps sqlx.DB with monitoring and metrics
type SQLiteDB struct {
	db      *sqlx.DB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
	config  *Config
}

// NewSQLiteDB opens (creating if absent) the SQLite row store
func NewSQLiteDB(cfg *Config, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) (*SQLiteDB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if cfg.Path != ":memory:" {
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	busyTimeout := cfg.BusyTimeout
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=%d", cfg.Path, busyTimeout.Milliseconds())

	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer, single process: one connection avoids SQLITE_BUSY
	// and keeps ":memory:" stores visible across calls.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info(context.Background(), "[DB_INIT] SQLite store opened", logging.Fields{
		"path":         cfg.Path,
		"busy_timeout": busyTimeout.String(),
	})

	return &SQLiteDB{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
		config:  cfg,
	}, nil
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	s.logger.Info(context.Background(), "[DB_CLOSE] Closing database", logging.Fields{
		"path": s.config.Path,
	})
	return s.db.Close()
}

// DB returns the underlying sqlx.DB instance
func (s *SQLiteDB) DB() *sqlx.DB {
	return s.db
}

// ExecContext executes a command with context and metrics
func (s *SQLiteDB) ExecContext(ctx context.Context, queryType, query string, args ...interface{}) (sql.Result, error) {
	timer := time.Now()
	defer func() {
		duration := time.Since(timer)
		s.metrics.DBQueryDuration.WithLabelValues(queryType).Observe(duration.Seconds())

		s.logger.Debug(ctx, "[DB_EXEC] Command executed", logging.Fields{
			"query_type":  queryType,
			"duration_ms": duration.Milliseconds(),
		})
	}()

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		s.metrics.RecordDBError("exec_error")
		s.logger.Error(ctx, "[DB_EXEC_ERROR] Command failed", logging.Fields{
			"query_type": queryType,
		}, err)
		return nil, err
	}

	return result, nil
}

// GetContext executes a query that returns a single row
func (s *SQLiteDB) GetContext(ctx context.Context, queryType string, dest interface{}, query string, args ...interface{}) error {
	timer := time.Now()
	defer func() {
		duration := time.Since(timer)
		s.metrics.DBQueryDuration.WithLabelValues(queryType).Observe(duration.Seconds())
	}()

	err := s.db.GetContext(ctx, dest, query, args...)
	if err != nil && err != sql.ErrNoRows {
		s.metrics.RecordDBError("get_error")
		s.logger.Error(ctx, "[DB_GET_ERROR] Get query failed", logging.Fields{
			"query_type": queryType,
		}, err)
	}

	return err
}

// SelectContext executes a query that returns multiple rows
func (s *SQLiteDB) SelectContext(ctx context.Context, queryType string, dest interface{}, query string, args ...interface{}) error {
	timer := time.Now()
	defer func() {
		duration := time.Since(timer)
		s.metrics.DBQueryDuration.WithLabelValues(queryType).Observe(duration.Seconds())
	}()

	err := s.db.SelectContext(ctx, dest, query, args...)
	if err != nil {
		s.metrics.RecordDBError("select_error")
		s.logger.Error(ctx, "[DB_SELECT_ERROR] Select query failed", logging.Fields{
			"query_type": queryType,
		}, err)
		return err
	}

	return nil
}

// BeginTx begins a new transaction
func (s *SQLiteDB) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.metrics.RecordDBError("transaction_begin_error")
		s.logger.Error(ctx, "[DB_TX_ERROR] Failed to begin transaction", logging.Fields{}, err)
		return nil, err
	}

	return tx, nil
}

// HealthCheck performs a database health check
func (s *SQLiteDB) HealthCheck(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	return nil
}
