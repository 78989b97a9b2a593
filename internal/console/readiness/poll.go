package readiness

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// DefaultPollInterval is used when Poll is given a non-positive interval
const DefaultPollInterval = 100 * time.Millisecond

// CheckFunc reports whether a polled condition holds
type CheckFunc func(ctx context.Context) bool

// Poll evaluates check immediately and then every interval until it
// returns true or ctx is done.
func Poll(ctx context.Context, interval time.Duration, check CheckFunc) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	if check(ctx) {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if check(ctx) {
				return nil
			}
		}
	}
}

// PollAndPublish polls check and publishes gate once it holds
func PollAndPublish(ctx context.Context, gate *Gate, interval time.Duration, check CheckFunc) error {
	if err := Poll(ctx, interval, check); err != nil {
		return fmt.Errorf("polling %s: %w", gate.Name(), err)
	}
	gate.Publish()
	return nil
}

// URLAvailable returns a check that issues a HEAD request to url and holds
// on any 2xx response
func URLAvailable(client *http.Client, url string) CheckFunc {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return func(ctx context.Context) bool {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return false
		}
		resp, err := client.Do(req)
		if err != nil {
			slog.Debug("Library probe failed", "url", url, "error", err)
			return false
		}
		resp.Body.Close()
		return resp.StatusCode >= 200 && resp.StatusCode < 300
	}
}
