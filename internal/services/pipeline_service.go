package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"weather-etl/internal/client"
	"weather-etl/internal/models"
	"weather-etl/internal/repository"
	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
)

// PipelineService executes one extract-transform-load-export cycle
// over the configured targets. Per-location failures are logged and
// skipped; the batch load and the export always run, even when empty,
// so every cycle behaves uniformly.
type PipelineService struct {
	client   client.WeatherClient
	repo     repository.WeatherRepository
	exporter *ExportService
	targets  []models.Target
	logger   *logging.StructuredLogger
	metrics  *metrics.Collector
	now      func() time.Time
}

// CycleResult contains per-cycle statistics
type CycleResult struct {
	CycleID      string
	Targets      int
	Succeeded    int
	Failed       int
	RowsInserted int
	Duration     time.Duration
	Errors       []string
}

// NewPipelineService creates a new pipeline service
func NewPipelineService(weatherClient client.WeatherClient, repo repository.WeatherRepository, exporter *ExportService, targets []models.Target, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *PipelineService {
	return &PipelineService{
		client:   weatherClient,
		repo:     repo,
		exporter: exporter,
		targets:  targets,
		logger:   logger,
		metrics:  metricsCollector,
		now:      time.Now,
	}
}

// RunCycle performs one full cycle and reports what happened.
// It never returns an error: everything below fatal configuration is
// recoverable by the next scheduled cycle.
func (s *PipelineService) RunCycle(ctx context.Context) *CycleResult {
	start := time.Now()
	s.metrics.CyclesTotal.Inc()

	result := &CycleResult{
		CycleID: uuid.NewString(),
		Targets: len(s.targets),
	}
	ctx = logging.WithCycleID(ctx, result.CycleID)

	s.logger.Info(ctx, "[CYCLE_START] Starting pipeline cycle", logging.Fields{
		"targets": len(s.targets),
	})

	// One clock capture per cycle: all records from this cycle share
	// the same fetch moment.
	fetchedAt := s.now().UTC()

	batch := make([]*models.WeatherRecord, 0, len(s.targets))
	for _, target := range s.targets {
		rec, err := s.processTarget(ctx, target, fetchedAt)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", target.CityName, err))
			continue
		}
		result.Succeeded++
		batch = append(batch, rec)
	}

	inserted, err := s.repo.InsertBatch(ctx, batch)
	if err != nil {
		s.metrics.RecordLoadError("store_unavailable")
		s.metrics.RecordCycleError("load")
		result.Errors = append(result.Errors, fmt.Sprintf("load: %v", err))
		s.logger.Error(ctx, "[LOAD_ERROR] Failed to append batch", logging.Fields{
			"batch_size": len(batch),
		}, err)
	} else {
		result.RowsInserted = inserted
		if inserted > 0 {
			s.logger.Info(ctx, "[LOAD_OK] Appended records to row store", logging.Fields{
				"rows": inserted,
			})
		}

		if exportErr := s.exporter.ExportRecent(ctx); exportErr != nil {
			s.metrics.RecordCycleError("export")
			result.Errors = append(result.Errors, fmt.Sprintf("export: %v", exportErr))
			s.logger.Error(ctx, "[EXPORT_ERROR] Export failed", logging.Fields{}, exportErr)
		}
	}

	result.Duration = time.Since(start)
	s.metrics.CycleDuration.Observe(result.Duration.Seconds())

	s.logger.Info(ctx, "[CYCLE_COMPLETE] Pipeline cycle completed", logging.Fields{
		"targets":          result.Targets,
		"succeeded":        result.Succeeded,
		"failed":           result.Failed,
		"rows_inserted":    result.RowsInserted,
		"duration_seconds": result.Duration.Seconds(),
		"error_count":      len(result.Errors),
	})

	return result
}

// processTarget runs extract and transform for one location
func (s *PipelineService) processTarget(ctx context.Context, target models.Target, fetchedAt time.Time) (*models.WeatherRecord, error) {
	raw, err := s.client.CurrentWeather(ctx, target)
	if err != nil {
		s.metrics.RecordExtractionError(client.FailureReason(err))
		s.logger.Warn(ctx, "[EXTRACT_SKIP] Extraction failed; skipping location for this cycle", logging.Fields{
			"city_name": target.CityName,
			"latitude":  target.Latitude,
			"longitude": target.Longitude,
			"error":     err.Error(),
		})
		return nil, err
	}

	rec, err := raw.ToRecord(target.CityName, fetchedAt)
	if err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			s.metrics.RecordTransformError("missing_field")
		} else {
			s.metrics.RecordTransformError("unknown")
		}
		s.logger.Warn(ctx, "[TRANSFORM_SKIP] Transformation failed; dropping reading", logging.Fields{
			"city_name": target.CityName,
			"error":     err.Error(),
		})
		return nil, err
	}

	return rec, nil
}
