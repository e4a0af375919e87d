package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"weather-etl/internal/columnar"
	"weather-etl/internal/models"
	"weather-etl/internal/repository"
	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
)

// ExportService materializes the recent window of the row store as
// flat export artifacts. Artifacts are derived and disposable: each
// run fully replaces the previous files.
type ExportService struct {
	repo       repository.WeatherRepository
	logger     *logging.StructuredLogger
	metrics    *metrics.Collector
	exportDir  string
	windowDays int
	columnar   columnar.Writer
	now        func() time.Time
}

// NewExportService creates a new export service. A nil columnar writer
// means the columnar format is unavailable and will be skipped.
func NewExportService(repo repository.WeatherRepository, exportDir string, windowDays int, columnarWriter columnar.Writer, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *ExportService {
	return &ExportService{
		repo:       repo,
		logger:     logger,
		metrics:    metricsCollector,
		exportDir:  exportDir,
		windowDays: windowDays,
		columnar:   columnarWriter,
		now:        time.Now,
	}
}

// ColumnarAvailable reports whether a columnar writer is wired in
func (s *ExportService) ColumnarAvailable() bool {
	return s.columnar != nil
}

// ExportRecent writes the trailing-window extract. The CSV artifact is
// always attempted; the columnar artifact only when available. Columnar
// failures are logged and never fail the export.
func (s *ExportService) ExportRecent(ctx context.Context) error {
	if s.windowDays <= 0 {
		return nil
	}

	cutoff := s.now().UTC().AddDate(0, 0, -s.windowDays)
	records, err := s.repo.RecentWindow(ctx, cutoff)
	if err != nil {
		s.metrics.RecordExportError("query")
		return fmt.Errorf("failed to query export window: %w", err)
	}

	if len(records) == 0 {
		s.logger.Info(ctx, "[EXPORT_EMPTY] No rows to export", logging.Fields{
			"window_days": s.windowDays,
		})
		return nil
	}

	if err := os.MkdirAll(s.exportDir, 0o755); err != nil {
		s.metrics.RecordExportError("csv")
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	csvPath := filepath.Join(s.exportDir, fmt.Sprintf("weather_last_%dd.csv", s.windowDays))
	timer := time.Now()
	if err := s.writeCSV(csvPath, records); err != nil {
		s.metrics.RecordExportError("csv")
		return fmt.Errorf("failed to write CSV export: %w", err)
	}
	s.metrics.ExportDuration.WithLabelValues("csv").Observe(time.Since(timer).Seconds())
	s.metrics.ExportRowsTotal.WithLabelValues("csv").Add(float64(len(records)))

	s.logger.Info(ctx, "[EXPORT_CSV] Exported CSV", logging.Fields{
		"path": csvPath,
		"rows": len(records),
	})

	if s.columnar == nil {
		s.logger.Debug(ctx, "[EXPORT_COLUMNAR_SKIP] Columnar export unavailable", logging.Fields{})
		return nil
	}

	format := s.columnar.Format()
	columnarPath := filepath.Join(s.exportDir, fmt.Sprintf("weather_last_%dd.%s", s.windowDays, format))
	timer = time.Now()
	if err := s.columnar.Write(columnarPath, records); err != nil {
		s.metrics.RecordExportError(format)
		s.logger.Warn(ctx, "[EXPORT_COLUMNAR_SKIP] Columnar export failed", logging.Fields{
			"format": format,
			"path":   columnarPath,
			"error":  err.Error(),
		})
		return nil
	}
	s.metrics.ExportDuration.WithLabelValues(format).Observe(time.Since(timer).Seconds())
	s.metrics.ExportRowsTotal.WithLabelValues(format).Add(float64(len(records)))

	s.logger.Info(ctx, "[EXPORT_COLUMNAR] Exported columnar artifact", logging.Fields{
		"format": format,
		"path":   columnarPath,
		"rows":   len(records),
	})

	return nil
}

// writeCSV writes the extract to a temp file then renames it over the
// target, so readers never observe a partially written artifact.
func (s *ExportService) writeCSV(path string, records []*models.WeatherRecord) error {
	tmp, err := os.CreateTemp(s.exportDir, ".csv-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	w := csv.NewWriter(tmp)
	writeErr := w.Write([]string{"id", "city_name", "temperature_c", "temperature_f", "wind_speed", "fetched_at"})
	if writeErr == nil {
		for _, rec := range records {
			row := []string{
				strconv.FormatInt(rec.ID, 10),
				rec.CityName,
				strconv.FormatFloat(rec.TemperatureC, 'f', -1, 64),
				strconv.FormatFloat(rec.TemperatureF, 'f', -1, 64),
				strconv.FormatFloat(rec.WindSpeed, 'f', -1, 64),
				rec.FetchedAt.UTC().Format(repository.TimeLayout),
			}
			if writeErr = w.Write(row); writeErr != nil {
				break
			}
		}
	}
	if writeErr == nil {
		w.Flush()
		writeErr = w.Error()
	}

	closeErr := tmp.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return writeErr
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return closeErr
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}

	return nil
}
