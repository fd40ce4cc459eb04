package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"bahr/analytics/models"
)

// Forwarder ships single events to a remote collector. Forward must return
// immediately and must never fail the caller.
type Forwarder interface {
	Forward(event models.Event)
}

// NopForwarder drops every event.
type NopForwarder struct{}

func (NopForwarder) Forward(models.Event) {}

// HTTPForwarder POSTs each event as JSON on its own goroutine. Delivery
// failures are dropped without retry. When maxInFlight sends are already
// pending, further events are dropped too.
type HTTPForwarder struct {
	endpoint   string
	httpClient *http.Client
	timeout    time.Duration
	userAgent  string
	debug      bool

	inFlight *semaphore.Weighted
	wg       sync.WaitGroup
}

// ForwarderConfig configures an HTTPForwarder.
type ForwarderConfig struct {
	Endpoint    string
	HTTPClient  *http.Client
	Timeout     time.Duration
	MaxInFlight int64
	UserAgent   string
	Debug       bool
}

func NewHTTPForwarder(cfg ForwarderConfig) *HTTPForwarder {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 16
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "bahr-telemetry"
	}
	return &HTTPForwarder{
		endpoint:   cfg.Endpoint,
		httpClient: cfg.HTTPClient,
		timeout:    cfg.Timeout,
		userAgent:  cfg.UserAgent,
		debug:      cfg.Debug,
		inFlight:   semaphore.NewWeighted(cfg.MaxInFlight),
	}
}

// Forward dispatches event and returns without waiting for the result.
func (f *HTTPForwarder) Forward(event models.Event) {
	if f.endpoint == "" {
		return
	}
	if !f.inFlight.TryAcquire(1) {
		f.logf("Dropping analytics event %s: too many pending sends", event.Name)
		return
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer f.inFlight.Release(1)

		if err := f.send(event); err != nil {
			f.logf("Analytics event not sent: %v", err)
		}
	}()
}

// Wait blocks until pending sends finish or ctx is done. Sends are not
// cancelled when ctx ends; they are simply no longer waited for.
func (f *HTTPForwarder) Wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (f *HTTPForwarder) send(event models.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("collector responded with status %d", resp.StatusCode)
	}
	return nil
}

func (f *HTTPForwarder) logf(format string, args ...any) {
	if f.debug {
		log.Printf("[telemetry] "+format, args...)
	}
}
