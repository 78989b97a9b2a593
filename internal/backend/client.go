// Package backend provides the HTTP/JSON client for the monitoring backend
package backend

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"go.agentconsole.tech/internal/common/metrics"
)

// HTTPVersion represents the HTTP protocol version to use
type HTTPVersion string

const (
	// HTTPVersion1 forces HTTP/1.1
	HTTPVersion1 HTTPVersion = "HTTP_1_1"
	// HTTPVersion2 enables HTTP/2
	HTTPVersion2 HTTPVersion = "HTTP_2"
)

// maxBodySize bounds how much of a response body is read
const maxBodySize = 4 * 1024 * 1024

// ClientConfig configures the backend client
type ClientConfig struct {
	// BaseURL is the backend origin; request paths are relative to it
	BaseURL string

	// Timeout for a single HTTP request
	Timeout time.Duration

	// HTTPVersion controls which HTTP version to use
	HTTPVersion HTTPVersion

	// CircuitBreaker settings
	CircuitBreakerEnabled     bool
	CircuitBreakerRequests    uint32        // Requests allowed while half-open
	CircuitBreakerInterval    time.Duration // Stats window
	CircuitBreakerRatio       float64       // Failure ratio to trip
	CircuitBreakerTimeout     time.Duration // Time in open state before half-open
	CircuitBreakerMinRequests uint32        // Min requests before evaluating ratio

	// PreloadInterval is the minimum spacing between classpath cache warm-ups.
	// Zero sends a warm-up for every pointcut load.
	PreloadInterval time.Duration
}

// DefaultClientConfig returns defaults suitable for a local backend
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:                   "http://localhost:4001/",
		Timeout:                   30 * time.Second,
		HTTPVersion:               HTTPVersion1,
		CircuitBreakerEnabled:     true,
		CircuitBreakerRequests:    5,
		CircuitBreakerInterval:    60 * time.Second,
		CircuitBreakerRatio:       0.5,
		CircuitBreakerTimeout:     5 * time.Second,
		CircuitBreakerMinRequests: 10,
	}
}

// Client talks to the monitoring backend over HTTP/JSON.
// It is safe for concurrent use.
type Client struct {
	baseURL        *url.URL
	client         *http.Client
	circuitBreaker *gobreaker.CircuitBreaker
	preloadLimiter *rate.Limiter
	preloadTimeout time.Duration
}

// NewClient creates a new backend client
func NewClient(cfg *ClientConfig) (*Client, error) {
	if cfg == nil {
		cfg = DefaultClientConfig()
	}

	base := cfg.BaseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid backend base URL %q: %w", cfg.BaseURL, err)
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("invalid backend base URL %q: scheme and host required", cfg.BaseURL)
	}

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	if cfg.HTTPVersion == HTTPVersion2 {
		transport.ForceAttemptHTTP2 = true
	} else {
		transport.ForceAttemptHTTP2 = false
		transport.TLSNextProto = make(map[string]func(authority string, c *tls.Conn) http.RoundTripper)
	}

	c := &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		preloadTimeout: cfg.Timeout,
	}

	interval := cfg.PreloadInterval
	if interval <= 0 {
		c.preloadLimiter = rate.NewLimiter(rate.Inf, 1)
	} else {
		c.preloadLimiter = rate.NewLimiter(rate.Every(interval), 1)
	}

	if cfg.CircuitBreakerEnabled {
		c.circuitBreaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "backend",
			MaxRequests: cfg.CircuitBreakerRequests,
			Interval:    cfg.CircuitBreakerInterval,
			Timeout:     cfg.CircuitBreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests < cfg.CircuitBreakerMinRequests {
					return false
				}
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return failureRatio >= cfg.CircuitBreakerRatio
			},
			IsSuccessful: isBreakerSuccess,
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				slog.Info("Circuit breaker state changed",
					"name", name,
					"from", from.String(),
					"to", to.String())

				var stateValue float64
				switch to {
				case gobreaker.StateClosed:
					stateValue = float64(metrics.CircuitBreakerClosed)
				case gobreaker.StateOpen:
					stateValue = float64(metrics.CircuitBreakerOpen)
					metrics.BackendCircuitBreakerTrips.WithLabelValues(name).Inc()
				case gobreaker.StateHalfOpen:
					stateValue = float64(metrics.CircuitBreakerHalfOpen)
				}
				metrics.BackendCircuitBreakerState.WithLabelValues(name).Set(stateValue)
			},
		})
	}

	slog.Info("Backend client configured",
		"baseURL", baseURL.String(),
		"httpVersion", string(cfg.HTTPVersion),
		"circuitBreaker", cfg.CircuitBreakerEnabled)

	return c, nil
}

// isBreakerSuccess reports whether err leaves the backend looking healthy.
// Client errors and caller cancellation do not count against the breaker.
func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode < 500
	}
	return false
}

// State returns the circuit breaker state, or closed when the breaker is disabled
func (c *Client) State() gobreaker.State {
	if c.circuitBreaker == nil {
		return gobreaker.StateClosed
	}
	return c.circuitBreaker.State()
}

// Get issues a GET for path and decodes the JSON response into out.
// out may be nil when the response body is not needed.
func (c *Client) Get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// Post issues a POST for path with body encoded as JSON.
// A nil body sends an empty request body.
func (c *Client) Post(ctx context.Context, path string, body, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	if c.circuitBreaker == nil {
		return c.execute(ctx, method, path, body, out)
	}

	_, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return nil, c.execute(ctx, method, path, body, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		slog.Warn("Circuit breaker open", "method", method, "path", path)
		return fmt.Errorf("backend %s %s: %w: %w", method, path, ErrCircuitOpen, err)
	}
	return err
}

// execute performs a single HTTP request
func (c *Client) execute(ctx context.Context, method, path string, body, out interface{}) error {
	target, err := c.resolve(path)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	slog.Debug("Executing backend request", "method", method, "path", path)

	startTime := time.Now()
	resp, err := c.client.Do(req)
	duration := time.Since(startTime)

	metrics.BackendDuration.WithLabelValues(path).Observe(duration.Seconds())

	if err != nil {
		metrics.BackendRequests.WithLabelValues("error", method).Inc()
		return fmt.Errorf("backend %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	metrics.BackendRequests.WithLabelValues(strconv.Itoa(resp.StatusCode), method).Inc()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("backend %s %s: failed to read response: %w", method, path, err)
	}

	slog.Debug("Backend response received",
		"method", method,
		"path", path,
		"statusCode", resp.StatusCode,
		"bodyLen", len(data),
		"duration", duration)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       string(data),
		}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("backend %s %s: failed to decode response: %w", method, path, err)
	}
	return nil
}

// resolve joins a relative backend path onto the base URL
func (c *Client) resolve(path string) (string, error) {
	ref, err := url.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid backend path %q: %w", path, err)
	}
	if ref.IsAbs() || ref.Host != "" {
		return "", fmt.Errorf("invalid backend path %q: must be relative", path)
	}
	return c.baseURL.ResolveReference(ref).String(), nil
}
