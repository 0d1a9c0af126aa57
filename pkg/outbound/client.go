package outbound

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"
)

// ClientConfig configures the outbound HTTP client.
type ClientConfig struct {
	// Timeout bounds each attempt end to end. Default: 30s.
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries is the number of retries after the first attempt.
	// Only transient failures (5xx, network errors) are retried.
	// Default: 2.
	MaxRetries int `yaml:"max_retries"`

	// MaxIdleConns and MaxIdleConnsPerHost size the connection pool.
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`

	// RatePerSecond caps outbound calls per second across all actions.
	// Zero disables rate limiting.
	RatePerSecond float64 `yaml:"rate_per_second"`

	// Burst is the rate limiter bucket capacity. Default: 10 when rate
	// limiting is enabled.
	Burst int64 `yaml:"burst"`
}

// ApplyDefaults fills zero values with defaults.
func (c *ClientConfig) ApplyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 100
	}
	if c.MaxIdleConnsPerHost == 0 {
		c.MaxIdleConnsPerHost = 10
	}
	if c.IdleConnTimeout == 0 {
		c.IdleConnTimeout = 90 * time.Second
	}
	if c.RatePerSecond > 0 && c.Burst == 0 {
		c.Burst = 10
	}
}

// StatusError indicates a non-2xx response from a downstream endpoint.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

// Error returns the error message.
func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.URL, e.StatusCode, e.Body)
}

// ErrRateLimited indicates the context ended before the rate limiter could
// admit the call. Calls within capacity never see it; they wait their turn.
var ErrRateLimited = fmt.Errorf("outbound rate limit exceeded")

// Client delivers JSON payloads to downstream HTTP endpoints with
// connection pooling, bounded retries, and exponential backoff.
type Client struct {
	config ClientConfig
	client *http.Client
	bucket *TokenBucket
	logger *slog.Logger
}

// NewClient creates an outbound client.
func NewClient(config ClientConfig, logger *slog.Logger) *Client {
	config.ApplyDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	transport := &http.Transport{
		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		IdleConnTimeout:     config.IdleConnTimeout,
		ForceAttemptHTTP2:   true,
	}

	c := &Client{
		config: config,
		client: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
		},
		logger: logger,
	}
	if config.RatePerSecond > 0 {
		c.bucket = NewTokenBucket(config.Burst, config.RatePerSecond)
	}
	return c
}

// PostJSON marshals payload, POSTs it to url with the given extra headers,
// and decodes a JSON response body into out when out is non-nil. When rate
// limiting is configured, successive calls wait for bucket capacity so they
// are paced, not rejected. A non-2xx status is a StatusError; 5xx responses
// are retried with backoff.
func (c *Client) PostJSON(ctx context.Context, url string, payload any, out any, headers map[string]string) error {
	if c.bucket != nil {
		if err := c.bucket.Wait(ctx, 1); err != nil {
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, url, body, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(respBody), 256),
		}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// do performs the request with retries. Transient failures back off
// exponentially: 1s, 2s, 4s.
func (c *Client) do(ctx context.Context, method, url string, body []byte, headers map[string]string) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			c.logger.Debug("retrying outbound request",
				slog.String("url", url),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", backoff))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		// Retry server-side failures, surface everything else.
		if resp.StatusCode >= 500 && attempt < c.config.MaxRetries {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			resp.Body.Close()
			lastErr = &StatusError{
				URL:        url,
				StatusCode: resp.StatusCode,
				Body:       truncate(string(respBody), 256),
			}
			continue
		}
		return resp, nil
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
