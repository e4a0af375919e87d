package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"weather-etl/internal/models"
	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
)

// DefaultBaseURL is the OpenWeather current-weather endpoint.
const DefaultBaseURL = "https://api.openweathermap.org/data/2.5/weather"

// Extraction error taxonomy. A failed location is skipped for the
// cycle; there are no retries within a cycle (the next scheduled cycle
// retries naturally), so the client makes exactly one attempt.
var (
	ErrNetwork           = errors.New("network error")
	ErrAuth              = errors.New("authentication error")
	ErrMalformedResponse = errors.New("malformed response")
)

// WeatherClient fetches one raw reading for one target
type WeatherClient interface {
	CurrentWeather(ctx context.Context, target models.Target) (*models.RawReading, error)
}

// OpenWeatherClient implements WeatherClient against OpenWeather
type OpenWeatherClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewOpenWeatherClient creates a client with an explicit request timeout
func NewOpenWeatherClient(apiKey, baseURL string, timeout time.Duration, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) (*OpenWeatherClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &OpenWeatherClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
		},
		logger:  logger,
		metrics: metricsCollector,
	}, nil
}

// CurrentWeather issues one GET for the target's coordinates
func (c *OpenWeatherClient) CurrentWeather(ctx context.Context, target models.Target) (*models.RawReading, error) {
	start := time.Now()

	req, err := c.buildRequest(ctx, target)
	if err != nil {
		c.observe("error", start)
		return nil, fmt.Errorf("%w: build request: %v", ErrNetwork, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.observe("error", start)
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	c.observe(statusLabel(resp.StatusCode), start)

	if err := c.handleErrorResponse(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrNetwork, err)
	}

	var raw models.RawReading
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	c.logger.Debug(ctx, "[EXTRACT_OK] Fetched weather", logging.Fields{
		"city_name": target.CityName,
		"latitude":  target.Latitude,
		"longitude": target.Longitude,
	})

	return &raw, nil
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, target models.Target) (*http.Request, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(target.Latitude, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(target.Longitude, 'f', -1, 64))
	params.Set("appid", c.apiKey)
	params.Set("units", "metric")
	base.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.String(), nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *OpenWeatherClient) handleErrorResponse(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrAuth, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: HTTP %d", ErrNetwork, resp.StatusCode)
	}
	return nil
}

func (c *OpenWeatherClient) observe(status string, start time.Time) {
	duration := time.Since(start).Seconds()
	c.metrics.APICallsTotal.WithLabelValues(status).Inc()
	c.metrics.APICallDuration.WithLabelValues(status).Observe(duration)
}

func statusLabel(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "other"
	}
}

// FailureReason maps an extraction error to its metrics label
func FailureReason(err error) string {
	switch {
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, ErrNetwork):
		return "network"
	default:
		return "unknown"
	}
}
