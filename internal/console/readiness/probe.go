package readiness

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// LibraryProbe publishes a gate once a charting library is reachable.
// With no URL the library is served from embedded assets and the gate
// is published on Start.
type LibraryProbe struct {
	gate     *Gate
	url      string
	interval time.Duration
	client   *http.Client
}

// NewLibraryProbe creates a probe for the given gate
func NewLibraryProbe(gate *Gate, url string, interval time.Duration) *LibraryProbe {
	return &LibraryProbe{
		gate:     gate,
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

func (p *LibraryProbe) Name() string { return "library-probe:" + p.gate.Name() }

// Start polls the library URL until it answers, then blocks until ctx is done
func (p *LibraryProbe) Start(ctx context.Context) error {
	if p.url == "" {
		p.gate.Publish()
		<-ctx.Done()
		return nil
	}

	slog.Info("Probing charting library", "gate", p.gate.Name(), "url", p.url, "interval", p.interval)

	err := PollAndPublish(ctx, p.gate, p.interval, URLAvailable(p.client, p.url))
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	<-ctx.Done()
	return nil
}

func (p *LibraryProbe) Stop(ctx context.Context) error { return nil }

func (p *LibraryProbe) Health() error {
	if !p.gate.IsPublished() {
		return errors.New("charting library not available")
	}
	return nil
}
