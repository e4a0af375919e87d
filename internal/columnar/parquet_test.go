package columnar

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"weather-etl/internal/models"
)

func TestParquetWriter_Write(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weather_last_7d.parquet")

	records := []*models.WeatherRecord{
		{ID: 1, CityName: "Amsterdam", TemperatureC: 18, TemperatureF: 64.4, WindSpeed: 3, FetchedAt: time.Now().UTC()},
		{ID: 2, CityName: "Rotterdam", TemperatureC: 17, TemperatureF: 62.6, WindSpeed: 4, FetchedAt: time.Now().UTC()},
	}

	w := NewParquetWriter()
	if w.Format() != "parquet" {
		t.Errorf("Format() = %q, want parquet", w.Format())
	}
	if err := w.Write(path, records); err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	magic := []byte("PAR1")
	if len(data) < 8 || !bytes.HasPrefix(data, magic) || !bytes.HasSuffix(data, magic) {
		t.Error("artifact is not a parquet file")
	}
}

func TestParquetWriter_OverwritesPriorArtifact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weather_last_7d.parquet")

	w := NewParquetWriter()
	records := []*models.WeatherRecord{
		{ID: 1, CityName: "Amsterdam", TemperatureC: 18, TemperatureF: 64.4, WindSpeed: 3, FetchedAt: time.Now().UTC()},
	}
	if err := w.Write(path, records); err != nil {
		t.Fatalf("first Write: %v", err)
	}
	first, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}

	if err := w.Write(path, records[:0]); err != nil {
		t.Fatalf("second Write: %v", err)
	}
	second, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if second.Size() == first.Size() && second.ModTime().Equal(first.ModTime()) {
		t.Error("artifact was not replaced")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("PAR1")) {
		t.Error("replaced artifact is not a parquet file")
	}
}

func TestParquetWriter_EmptyRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.parquet")

	if err := NewParquetWriter().Write(path, nil); err != nil {
		t.Fatalf("Write(nil): %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("artifact missing: %v", err)
	}
}

func TestParquetWriter_BadDirectory(t *testing.T) {
	err := NewParquetWriter().Write(filepath.Join(t.TempDir(), "missing", "out.parquet"), nil)
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}
