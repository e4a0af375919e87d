package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"weather-etl/internal/models"
)

const defaultCitiesConfigPath = "cities.json"

// DefaultTargets is the built-in location list used when neither an
// override nor a cities file is available.
var DefaultTargets = []models.Target{
	{CityName: "Amsterdam", Latitude: 52.3676, Longitude: 4.9041},
	{CityName: "Rotterdam", Latitude: 51.9244, Longitude: 4.4777},
	{CityName: "Eindhoven", Latitude: 51.4416, Longitude: 5.4697},
}

// Config is the immutable resolved configuration consumed by the runner
type Config struct {
	APIKey           string          `validate:"required"`
	BaseURL          string
	Targets          []models.Target `validate:"required,min=1,dive"`
	PollInterval     time.Duration   `validate:"gte=0"`
	RunOnce          bool
	ExportWindowDays int             `validate:"gte=0"`
	DBPath           string          `validate:"required"`
	ExportDir        string          `validate:"required"`
	HTTPTimeout      time.Duration   `validate:"gt=0"`
	LogLevel         string
	MetricsAddr      string

	// Warnings collects non-fatal resolution notes for the caller to log.
	Warnings []string
}

var validate = validator.New()

// Load resolves configuration from the environment (and an optional
// .env file). Target resolution order: complete single-location
// override, then cities file, then built-in defaults.
func Load() (*Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	cfg := &Config{
		APIKey:           os.Getenv("OPENWEATHER_API_KEY"),
		BaseURL:          getenvDefault("OPENWEATHER_API_URL", ""),
		PollInterval:     time.Duration(getenvInt("POLL_INTERVAL_SECONDS", 86400)) * time.Second,
		RunOnce:          parseBool(os.Getenv("RUN_ONCE")),
		ExportWindowDays: getenvInt("EXPORT_LATEST_DAYS", 7),
		DBPath:           getenvDefault("DB_PATH", "data/weather.db"),
		ExportDir:        getenvDefault("EXPORT_DIR", "data/exports"),
		HTTPTimeout:      time.Duration(getenvInt("HTTP_TIMEOUT_SECONDS", 15)) * time.Second,
		LogLevel:         getenvDefault("LOG_LEVEL", "info"),
		MetricsAddr:      os.Getenv("METRICS_ADDR"),
	}

	targets, warnings, err := resolveTargets()
	if err != nil {
		return nil, err
	}
	cfg.Targets = targets
	cfg.Warnings = warnings

	return cfg, nil
}

// Validate fails fast on configuration the pipeline cannot run with
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if c.APIKey == "" {
			return fmt.Errorf("OPENWEATHER_API_KEY is required")
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// resolveTargets applies the documented precedence order
func resolveTargets() ([]models.Target, []string, error) {
	var warnings []string

	override, complete, err := singleLocationOverride()
	if err != nil {
		return nil, nil, err
	}
	if complete {
		return []models.Target{*override}, warnings, nil
	}
	if override != nil {
		warnings = append(warnings, "single-location override is incomplete (CITY_NAME, LATITUDE and LONGITUDE are all required); ignoring it")
	}

	path := os.Getenv("CITIES_CONFIG")
	explicit := path != ""
	if !explicit {
		path = defaultCitiesConfigPath
	}

	targets, err := loadCitiesFile(path)
	if err != nil {
		if explicit {
			// An explicitly referenced file that cannot be used is fatal.
			return nil, nil, fmt.Errorf("cities config %s: %w", path, err)
		}
		if !os.IsNotExist(err) {
			warnings = append(warnings, fmt.Sprintf("failed to load cities config %s: %v; falling back to defaults", path, err))
		}
		return DefaultTargets, warnings, nil
	}
	if len(targets) == 0 {
		if explicit {
			return nil, nil, fmt.Errorf("cities config %s: no locations defined", path)
		}
		warnings = append(warnings, fmt.Sprintf("cities config %s is empty; falling back to defaults", path))
		return DefaultTargets, warnings, nil
	}

	return targets, warnings, nil
}

// singleLocationOverride reads the three co-required env fields.
// Returns (nil, false) if none are set, (partial, false) if some are
// set, and an error if all three are set but malformed.
func singleLocationOverride() (*models.Target, bool, error) {
	city := os.Getenv("CITY_NAME")
	latStr := os.Getenv("LATITUDE")
	lonStr := os.Getenv("LONGITUDE")

	if city == "" && latStr == "" && lonStr == "" {
		return nil, false, nil
	}
	if city == "" || latStr == "" || lonStr == "" {
		return &models.Target{CityName: city}, false, nil
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return nil, false, fmt.Errorf("invalid LATITUDE %q: %w", latStr, err)
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return nil, false, fmt.Errorf("invalid LONGITUDE %q: %w", lonStr, err)
	}

	target := models.Target{CityName: city, Latitude: lat, Longitude: lon}
	if err := validate.Struct(target); err != nil {
		return nil, false, fmt.Errorf("invalid location override: %w", err)
	}

	return &target, true, nil
}

// loadCitiesFile parses an ordered JSON list of location targets
func loadCitiesFile(path string) ([]models.Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var targets []models.Target
	if err := json.Unmarshal(data, &targets); err != nil {
		return nil, fmt.Errorf("must be a JSON list of {city_name, latitude, longitude} objects: %w", err)
	}

	for i, target := range targets {
		if err := validate.Struct(target); err != nil {
			return nil, fmt.Errorf("entry at index %d is invalid: %w", i, err)
		}
	}

	return targets, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
