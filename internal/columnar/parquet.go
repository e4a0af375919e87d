package columnar

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/apache/arrow/go/v17/parquet"
	"github.com/apache/arrow/go/v17/parquet/pqarrow"

	"weather-etl/internal/models"
	"weather-etl/internal/repository"
)

// Writer produces a columnar export artifact. The exporter treats it as
// a soft dependency: a nil Writer means the capability is unavailable
// and the columnar artifact is skipped.
type Writer interface {
	// Write materializes the records at path, replacing any prior file.
	Write(path string, records []*models.WeatherRecord) error

	// Format names the artifact format, used for logs and metrics.
	Format() string
}

var recordSchema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: arrow.PrimitiveTypes.Int64},
	{Name: "city_name", Type: arrow.BinaryTypes.String},
	{Name: "temperature_c", Type: arrow.PrimitiveTypes.Float64},
	{Name: "temperature_f", Type: arrow.PrimitiveTypes.Float64},
	{Name: "wind_speed", Type: arrow.PrimitiveTypes.Float64},
	{Name: "fetched_at", Type: arrow.BinaryTypes.String},
}, nil)

// ParquetWriter writes records as a Parquet file via Arrow
type ParquetWriter struct {
	chunkSize int64
}

// NewParquetWriter creates a Parquet writer
func NewParquetWriter() *ParquetWriter {
	return &ParquetWriter{chunkSize: 1024}
}

// Format returns the artifact format name
func (w *ParquetWriter) Format() string {
	return "parquet"
}

// Write materializes the records as a Parquet file. The file is built
// in a temp location and renamed over the target so a failed write
// never leaves a truncated artifact.
func (w *ParquetWriter) Write(path string, records []*models.WeatherRecord) error {
	pool := memory.NewGoAllocator()
	builder := array.NewRecordBuilder(pool, recordSchema)
	defer builder.Release()

	for _, rec := range records {
		builder.Field(0).(*array.Int64Builder).Append(rec.ID)
		builder.Field(1).(*array.StringBuilder).Append(rec.CityName)
		builder.Field(2).(*array.Float64Builder).Append(rec.TemperatureC)
		builder.Field(3).(*array.Float64Builder).Append(rec.TemperatureF)
		builder.Field(4).(*array.Float64Builder).Append(rec.WindSpeed)
		builder.Field(5).(*array.StringBuilder).Append(rec.FetchedAt.UTC().Format(repository.TimeLayout))
	}

	arrowRec := builder.NewRecord()
	defer arrowRec.Release()

	table := array.NewTableFromRecords(recordSchema, []arrow.Record{arrowRec})
	defer table.Release()

	tmp, err := os.CreateTemp(filepath.Dir(path), ".parquet-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	// WriteTable closes an io.Closer sink; hand it a bare writer so the
	// file handle stays ours to close before the rename.
	writeErr := pqarrow.WriteTable(table, struct{ io.Writer }{tmp}, w.chunkSize, parquet.NewWriterProperties(), pqarrow.DefaultWriterProps())
	closeErr := tmp.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write parquet: %w", writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close parquet: %w", closeErr)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace parquet: %w", err)
	}

	return nil
}
