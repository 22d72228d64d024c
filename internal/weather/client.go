// Package weather implements the forecast provider client. The wire
// format follows the QWeather v7 daily forecast API.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/nimbusai/nimbus/internal/httpkit"
)

// Client fetches multi-day forecasts by location id.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// Options configures a Client beyond the required base URL and key.
type Options struct {
	// Timeout bounds a single forecast call (default 10s).
	Timeout time.Duration
	// Retries is the retry count on transient dial errors (default 2).
	Retries int
	Logger  *slog.Logger
}

// NewClient creates a forecast client.
func NewClient(baseURL, apiKey string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Retries <= 0 {
		opts.Retries = 2
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(opts.Timeout),
			httpkit.WithRetry(opts.Retries, 500*time.Millisecond),
			httpkit.WithLogger(opts.Logger),
		),
		logger: opts.Logger,
	}
}

// Forecast fetches the 7-day forecast for a location id. A non-nil
// Forecast may still carry a provider error code; callers check
// IsSuccess. Transport-level failures return an error.
func (c *Client) Forecast(ctx context.Context, locationID string) (*Forecast, error) {
	q := url.Values{}
	q.Set("location", locationID)
	q.Set("key", c.apiKey)

	reqURL := c.baseURL + "/v7/weather/7d?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, 4096)
		return nil, fmt.Errorf("weather provider status %d: %s", resp.StatusCode, body)
	}

	var forecast Forecast
	if err := json.NewDecoder(resp.Body).Decode(&forecast); err != nil {
		return nil, fmt.Errorf("decode forecast: %w", err)
	}

	if c.logger != nil {
		c.logger.Debug("forecast fetched",
			"location", locationID,
			"code", forecast.Code,
			"days", len(forecast.Daily),
		)
	}
	return &forecast, nil
}
