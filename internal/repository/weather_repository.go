package repository

import (
	"context"
	"fmt"
	"time"

	"weather-etl/internal/models"
	"weather-etl/pkg/database"
	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
)

// TimeLayout is the stored form of fetched_at. Fixed-width fractional
// seconds keep lexicographic order equal to chronological order, which
// the window query relies on.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

const createTableSQL = `
	CREATE TABLE IF NOT EXISTS weather (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		city_name TEXT NOT NULL,
		temperature_c REAL,
		temperature_f REAL,
		wind_speed REAL,
		fetched_at TEXT NOT NULL
	)
`

// WeatherRepository provides data access for the weather row store.
// The store is append-only: nothing here updates or deletes rows.
type WeatherRepository interface {
	// InitSchema creates the weather table if absent. Idempotent.
	InitSchema(ctx context.Context) error

	// InsertBatch appends all records in a single transaction and
	// returns the number of rows appended. An empty batch is a no-op.
	InsertBatch(ctx context.Context, records []*models.WeatherRecord) (int, error)

	// RecentWindow returns rows with fetched_at at or after since,
	// newest first.
	RecentWindow(ctx context.Context, since time.Time) ([]*models.WeatherRecord, error)

	// CountRecords returns the total number of rows in the store.
	CountRecords(ctx context.Context) (int, error)

	// HealthCheck verifies the store is reachable.
	HealthCheck(ctx context.Context) error
}

// weatherRepository implements WeatherRepository
type weatherRepository struct {
	db      *database.SQLiteDB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewWeatherRepository creates a new weather repository
func NewWeatherRepository(db *database.SQLiteDB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) WeatherRepository {
	return &weatherRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// InitSchema creates the weather table if it does not exist
func (r *weatherRepository) InitSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "init_schema", createTableSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// InsertBatch appends records in a single transaction
func (r *weatherRepository) InsertBatch(ctx context.Context, records []*models.WeatherRecord) (int, error) {
	if len(records) == 0 {
		r.logger.Info(ctx, "[REPO_BATCH_INSERT] No rows to insert", logging.Fields{})
		r.metrics.LoadBatchSize.Observe(0)
		return 0, nil
	}

	if err := r.InitSchema(ctx); err != nil {
		return 0, err
	}

	timer := time.Now()
	defer func() {
		duration := time.Since(timer)
		r.metrics.LoadBatchSize.Observe(float64(len(records)))
		r.logger.Debug(ctx, "[REPO_BATCH_INSERT] Batch insert completed", logging.Fields{
			"count":       len(records),
			"duration_ms": duration.Milliseconds(),
		})
	}()

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO weather (city_name, temperature_c, temperature_f, wind_speed, fetched_at)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		result, err := stmt.ExecContext(ctx,
			rec.CityName,
			rec.TemperatureC,
			rec.TemperatureF,
			rec.WindSpeed,
			rec.FetchedAt.UTC().Format(TimeLayout),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert record for %s: %w", rec.CityName, err)
		}
		if id, err := result.LastInsertId(); err == nil {
			rec.ID = id
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.metrics.RecordsLoadedTotal.Add(float64(len(records)))

	return len(records), nil
}

// weatherRow is the scan target; fetched_at is stored as text
type weatherRow struct {
	ID           int64   `db:"id"`
	CityName     string  `db:"city_name"`
	TemperatureC float64 `db:"temperature_c"`
	TemperatureF float64 `db:"temperature_f"`
	WindSpeed    float64 `db:"wind_speed"`
	FetchedAt    string  `db:"fetched_at"`
}

func (w *weatherRow) toRecord() (*models.WeatherRecord, error) {
	t, err := time.Parse(TimeLayout, w.FetchedAt)
	if err != nil {
		var err2 error
		t, err2 = time.Parse(time.RFC3339Nano, w.FetchedAt)
		if err2 != nil {
			return nil, fmt.Errorf("parse fetched_at %q: %w", w.FetchedAt, err)
		}
	}

	return &models.WeatherRecord{
		ID:           w.ID,
		CityName:     w.CityName,
		TemperatureC: w.TemperatureC,
		TemperatureF: w.TemperatureF,
		WindSpeed:    w.WindSpeed,
		FetchedAt:    t.UTC(),
	}, nil
}

// RecentWindow retrieves records fetched at or after the cutoff
func (r *weatherRepository) RecentWindow(ctx context.Context, since time.Time) ([]*models.WeatherRecord, error) {
	if err := r.InitSchema(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT id, city_name, temperature_c, temperature_f, wind_speed, fetched_at
		FROM weather
		WHERE fetched_at >= ?
		ORDER BY fetched_at DESC, id DESC
	`

	var rows []weatherRow
	err := r.db.SelectContext(ctx, "recent_window", &rows, query, since.UTC().Format(TimeLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query recent window: %w", err)
	}

	records := make([]*models.WeatherRecord, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, nil
}

// CountRecords returns the total number of rows in the store
func (r *weatherRepository) CountRecords(ctx context.Context) (int, error) {
	if err := r.InitSchema(ctx); err != nil {
		return 0, err
	}

	var count int
	if err := r.db.GetContext(ctx, "count_records", &count, "SELECT COUNT(*) FROM weather"); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

// HealthCheck performs a repository health check
func (r *weatherRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}
