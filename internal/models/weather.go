package models

import (
	"fmt"
	"strings"
	"time"
)

// Target identifies one location the pipeline fetches weather for.
// Resolved once at startup and immutable afterwards.
type Target struct {
	CityName  string  `json:"city_name" validate:"required"`
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
}

// RawReading mirrors the provider's current-weather payload.
// Numeric fields are pointers so an absent or null field is
// distinguishable from a zero value. Never persisted.
type RawReading struct {
	Main struct {
		Temp *float64 `json:"temp"`
	} `json:"main"`
	Wind struct {
		Speed *float64 `json:"speed"`
	} `json:"wind"`
}

// WeatherRecord is the canonical, persisted representation of one
// location's reading at one fetch moment. The store is append-only:
// records are never updated or deleted after insert.
type WeatherRecord struct {
	ID           int64     `json:"id" db:"id"`
	CityName     string    `json:"city_name" db:"city_name"`
	TemperatureC float64   `json:"temperature_c" db:"temperature_c"`
	TemperatureF float64   `json:"temperature_f" db:"temperature_f"`
	WindSpeed    float64   `json:"wind_speed" db:"wind_speed"`
	FetchedAt    time.Time `json:"fetched_at" db:"fetched_at"`
}

// CelsiusToFahrenheit converts a temperature using the fixed linear formula.
func CelsiusToFahrenheit(c float64) float64 {
	return c*9/5 + 32
}

// ToRecord normalizes a raw reading into a canonical record.
// Pure given its inputs: the caller supplies the fetch moment so all
// records from one cycle share the same logical timestamp.
// Returns a *ValidationError if temperature or wind speed is absent.
func (r *RawReading) ToRecord(cityName string, fetchedAt time.Time) (*WeatherRecord, error) {
	var missing []string
	if r.Main.Temp == nil {
		missing = append(missing, "main.temp")
	}
	if r.Wind.Speed == nil {
		missing = append(missing, "wind.speed")
	}
	if len(missing) > 0 {
		return nil, &ValidationError{
			Field:   strings.Join(missing, ","),
			Message: fmt.Sprintf("missing required fields in response: %s", strings.Join(missing, ", ")),
		}
	}

	temperatureC := *r.Main.Temp

	return &WeatherRecord{
		CityName:     cityName,
		TemperatureC: temperatureC,
		TemperatureF: CelsiusToFahrenheit(temperatureC),
		WindSpeed:    *r.Wind.Speed,
		FetchedAt:    fetchedAt.UTC(),
	}, nil
}

// ValidationError represents a data validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsTransient returns false as validation errors are permanent
func (e *ValidationError) IsTransient() bool {
	return false
}
