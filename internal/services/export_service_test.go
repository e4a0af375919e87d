package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"weather-etl/internal/models"
	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
)

var (
	testLogger  = logging.NewStructuredLogger("services-test", "test", "error")
	testMetrics = metrics.NewCollector("services_test")
)

// fakeRepo is an in-memory stand-in for the row store
type fakeRepo struct {
	records     []*models.WeatherRecord
	nextID      int64
	insertErr   error
	windowErr   error
	batches     [][]*models.WeatherRecord
	windowCalls int
}

func (f *fakeRepo) InitSchema(ctx context.Context) error { return nil }

func (f *fakeRepo) InsertBatch(ctx context.Context, records []*models.WeatherRecord) (int, error) {
	batch := append([]*models.WeatherRecord(nil), records...)
	f.batches = append(f.batches, batch)
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	for _, rec := range records {
		f.nextID++
		rec.ID = f.nextID
		f.records = append(f.records, rec)
	}
	return len(records), nil
}

func (f *fakeRepo) RecentWindow(ctx context.Context, since time.Time) ([]*models.WeatherRecord, error) {
	f.windowCalls++
	if f.windowErr != nil {
		return nil, f.windowErr
	}
	var out []*models.WeatherRecord
	for _, rec := range f.records {
		if !rec.FetchedAt.Before(since) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FetchedAt.After(out[j].FetchedAt) })
	return out, nil
}

func (f *fakeRepo) CountRecords(ctx context.Context) (int, error) { return len(f.records), nil }

func (f *fakeRepo) HealthCheck(ctx context.Context) error { return nil }

// fakeColumnarWriter captures calls instead of writing parquet
type fakeColumnarWriter struct {
	paths   []string
	rows    [][]*models.WeatherRecord
	err     error
	touches bool
}

func (f *fakeColumnarWriter) Write(path string, records []*models.WeatherRecord) error {
	f.paths = append(f.paths, path)
	f.rows = append(f.rows, records)
	if f.err != nil {
		return f.err
	}
	if f.touches {
		return os.WriteFile(path, []byte("columnar"), 0o644)
	}
	return nil
}

func (f *fakeColumnarWriter) Format() string { return "parquet" }

func storedRecord(id int64, city string, tempC float64, fetchedAt time.Time) *models.WeatherRecord {
	return &models.WeatherRecord{
		ID:           id,
		CityName:     city,
		TemperatureC: tempC,
		TemperatureF: models.CelsiusToFahrenheit(tempC),
		WindSpeed:    3,
		FetchedAt:    fetchedAt,
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	return rows
}

func TestExportRecent_WritesCSV(t *testing.T) {
	now := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	repo := &fakeRepo{records: []*models.WeatherRecord{
		storedRecord(1, "Amsterdam", 20, now.AddDate(0, 0, -1)),
		storedRecord(2, "Rotterdam", 21, now.AddDate(0, 0, -3)),
	}}
	dir := t.TempDir()

	svc := NewExportService(repo, dir, 7, nil, testLogger, testMetrics)
	svc.now = func() time.Time { return now }

	if err := svc.ExportRecent(context.Background()); err != nil {
		t.Fatalf("ExportRecent: %v", err)
	}

	rows := readCSV(t, filepath.Join(dir, "weather_last_7d.csv"))
	if len(rows) != 3 {
		t.Fatalf("CSV rows = %d, want header + 2", len(rows))
	}
	wantHeader := []string{"id", "city_name", "temperature_c", "temperature_f", "wind_speed", "fetched_at"}
	for i, col := range wantHeader {
		if rows[0][i] != col {
			t.Errorf("header[%d] = %q, want %q", i, rows[0][i], col)
		}
	}
	// Newest first.
	if rows[1][1] != "Amsterdam" || rows[2][1] != "Rotterdam" {
		t.Errorf("row order = %q, %q", rows[1][1], rows[2][1])
	}
	if rows[1][3] != "68" {
		t.Errorf("temperature_f = %q, want 68", rows[1][3])
	}
}

func TestExportRecent_WindowFiltering(t *testing.T) {
	now := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	repo := &fakeRepo{records: []*models.WeatherRecord{
		storedRecord(1, "A", 1, now.AddDate(0, 0, -10)),
		storedRecord(2, "B", 2, now.AddDate(0, 0, -8)),
		storedRecord(3, "C", 3, now.AddDate(0, 0, -3)),
		storedRecord(4, "D", 4, now.AddDate(0, 0, -1)),
	}}
	dir := t.TempDir()

	svc := NewExportService(repo, dir, 7, nil, testLogger, testMetrics)
	svc.now = func() time.Time { return now }

	if err := svc.ExportRecent(context.Background()); err != nil {
		t.Fatalf("ExportRecent: %v", err)
	}

	rows := readCSV(t, filepath.Join(dir, "weather_last_7d.csv"))
	if len(rows) != 3 {
		t.Fatalf("CSV rows = %d, want header + 2 in-window rows", len(rows))
	}
	if rows[1][1] != "D" || rows[2][1] != "C" {
		t.Errorf("window rows = %q, %q; want D then C", rows[1][1], rows[2][1])
	}
}

func TestExportRecent_OverwritesPriorArtifact(t *testing.T) {
	now := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	repo := &fakeRepo{records: []*models.WeatherRecord{
		storedRecord(1, "Amsterdam", 20, now.AddDate(0, 0, -1)),
		storedRecord(2, "Rotterdam", 21, now.AddDate(0, 0, -2)),
	}}
	dir := t.TempDir()

	svc := NewExportService(repo, dir, 7, nil, testLogger, testMetrics)
	svc.now = func() time.Time { return now }

	if err := svc.ExportRecent(context.Background()); err != nil {
		t.Fatalf("first ExportRecent: %v", err)
	}

	// The second run sees a store where the old rows left the window.
	repo.records = []*models.WeatherRecord{
		storedRecord(3, "Eindhoven", 22, now.AddDate(0, 0, -1)),
	}
	if err := svc.ExportRecent(context.Background()); err != nil {
		t.Fatalf("second ExportRecent: %v", err)
	}

	rows := readCSV(t, filepath.Join(dir, "weather_last_7d.csv"))
	if len(rows) != 2 {
		t.Fatalf("CSV rows = %d, want header + 1 (full overwrite)", len(rows))
	}
	if rows[1][1] != "Eindhoven" {
		t.Errorf("row = %q, want Eindhoven", rows[1][1])
	}
}

func TestExportRecent_EmptyWindowWritesNothing(t *testing.T) {
	repo := &fakeRepo{}
	dir := t.TempDir()

	svc := NewExportService(repo, dir, 7, nil, testLogger, testMetrics)

	if err := svc.ExportRecent(context.Background()); err != nil {
		t.Fatalf("ExportRecent: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "weather_last_7d.csv")); !os.IsNotExist(err) {
		t.Error("CSV written for empty window")
	}
}

func TestExportRecent_ZeroWindowDisabled(t *testing.T) {
	repo := &fakeRepo{records: []*models.WeatherRecord{
		storedRecord(1, "Amsterdam", 20, time.Now().UTC()),
	}}

	svc := NewExportService(repo, t.TempDir(), 0, nil, testLogger, testMetrics)
	if err := svc.ExportRecent(context.Background()); err != nil {
		t.Fatalf("ExportRecent: %v", err)
	}
	if repo.windowCalls != 0 {
		t.Errorf("window queried %d times with export disabled", repo.windowCalls)
	}
}

func TestExportRecent_ColumnarWritten(t *testing.T) {
	now := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	repo := &fakeRepo{records: []*models.WeatherRecord{
		storedRecord(1, "Amsterdam", 20, now.AddDate(0, 0, -1)),
	}}
	dir := t.TempDir()
	writer := &fakeColumnarWriter{touches: true}

	svc := NewExportService(repo, dir, 7, writer, testLogger, testMetrics)
	svc.now = func() time.Time { return now }

	if !svc.ColumnarAvailable() {
		t.Fatal("ColumnarAvailable() = false with a writer wired in")
	}
	if err := svc.ExportRecent(context.Background()); err != nil {
		t.Fatalf("ExportRecent: %v", err)
	}

	if len(writer.paths) != 1 {
		t.Fatalf("columnar writer called %d times, want 1", len(writer.paths))
	}
	wantPath := filepath.Join(dir, "weather_last_7d.parquet")
	if writer.paths[0] != wantPath {
		t.Errorf("columnar path = %q, want %q", writer.paths[0], wantPath)
	}
	if len(writer.rows[0]) != 1 {
		t.Errorf("columnar rows = %d, want 1", len(writer.rows[0]))
	}
}

func TestExportRecent_ColumnarFailureIsSoft(t *testing.T) {
	now := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	repo := &fakeRepo{records: []*models.WeatherRecord{
		storedRecord(1, "Amsterdam", 20, now.AddDate(0, 0, -1)),
	}}
	dir := t.TempDir()
	writer := &fakeColumnarWriter{err: fmt.Errorf("no columnar engine")}

	svc := NewExportService(repo, dir, 7, writer, testLogger, testMetrics)
	svc.now = func() time.Time { return now }

	if err := svc.ExportRecent(context.Background()); err != nil {
		t.Fatalf("ExportRecent must not fail on columnar errors: %v", err)
	}

	// The CSV artifact must still be produced.
	if _, err := os.Stat(filepath.Join(dir, "weather_last_7d.csv")); err != nil {
		t.Errorf("CSV missing after columnar failure: %v", err)
	}
}

func TestExportRecent_ColumnarUnavailableSkipped(t *testing.T) {
	now := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	repo := &fakeRepo{records: []*models.WeatherRecord{
		storedRecord(1, "Amsterdam", 20, now.AddDate(0, 0, -1)),
	}}
	dir := t.TempDir()

	svc := NewExportService(repo, dir, 7, nil, testLogger, testMetrics)
	svc.now = func() time.Time { return now }

	if svc.ColumnarAvailable() {
		t.Error("ColumnarAvailable() = true with no writer")
	}
	if err := svc.ExportRecent(context.Background()); err != nil {
		t.Fatalf("ExportRecent: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "weather_last_7d.parquet")); !os.IsNotExist(err) {
		t.Error("columnar artifact written without a writer")
	}
}

func TestExportRecent_QueryFailure(t *testing.T) {
	repo := &fakeRepo{windowErr: errors.New("store unavailable")}

	svc := NewExportService(repo, t.TempDir(), 7, nil, testLogger, testMetrics)
	if err := svc.ExportRecent(context.Background()); err == nil {
		t.Fatal("expected error when the window query fails")
	}
}
