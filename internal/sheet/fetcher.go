package sheet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/sheetpulse/internal/adapter/metrics"
	"github.com/pscheid92/sheetpulse/internal/domain"
	"github.com/pscheid92/sheetpulse/internal/platform/retry"
)

type FetcherConfig struct {
	URL            string
	RequestTimeout time.Duration // per attempt. Default: 10s.
	MaxAttempts    int           // Default: 3.
	BackoffUnit    time.Duration // wait after attempt n is 2^n units. Default: 1s.
	UserAgent      string
	MaxBytes       int64 // Default: 10MB.
	Clock          clockwork.Clock

	// RateLimitBackoff replaces the exponential wait after a 429. Default: 5 units.
	RateLimitBackoff time.Duration
	// OnRetry observes each backoff before it is waited out.
	OnRetry func(attempt int, err error, backoff time.Duration)
}

func (c *FetcherConfig) defaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffUnit <= 0 {
		c.BackoffUnit = time.Second
	}
	if c.RateLimitBackoff <= 0 {
		c.RateLimitBackoff = 5 * c.BackoffUnit
	}
	if c.UserAgent == "" {
		c.UserAgent = "sheetpulse/1.0"
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 * 1024 * 1024
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
}

var errRateLimited = errors.New("rate limited by sheet source")

// Fetcher downloads the sheet export.
type Fetcher struct {
	client  *http.Client
	config  FetcherConfig
	metrics *metrics.RefreshMetrics
}

func NewFetcher(cfg FetcherConfig, m *metrics.RefreshMetrics) *Fetcher {
	cfg.defaults()
	return &Fetcher{
		client: &http.Client{
			// Redirects are followed by hand, once per attempt.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		config:  cfg,
		metrics: m,
	}
}

// Fetch returns the body of the first successful attempt. When every attempt
// fails, or ctx ends, the error is a *domain.FetchError carrying the last cause.
func (f *Fetcher) Fetch(ctx context.Context) (string, error) {
	attempts := 0

	classify := func(err error) retry.Action {
		// The per-attempt timeout is retryable; the caller giving up is not.
		if ctx.Err() != nil {
			return retry.Stop
		}
		if errors.Is(err, errRateLimited) {
			return retry.After
		}
		return retry.Retry
	}

	policy := retry.Policy{
		MaxAttempts:      f.config.MaxAttempts,
		InitialBackoff:   2 * f.config.BackoffUnit,
		RateLimitBackoff: f.config.RateLimitBackoff,
		Clock:            f.config.Clock,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			slog.WarnContext(ctx, "Sheet fetch attempt failed, retrying",
				"attempt", attempt,
				"max_attempts", f.config.MaxAttempts,
				"backoff", backoff,
				"error", err,
			)
			if f.config.OnRetry != nil {
				f.config.OnRetry(attempt, err, backoff)
			}
		},
	}

	body, err := retry.Do(ctx, policy, classify, func(attempt int) (string, error) {
		attempts = attempt
		f.metrics.FetchAttempts.Inc()

		body, err := f.attempt(ctx)
		if err != nil {
			f.metrics.FetchFailures.Inc()
		}
		return body, err
	})
	if err != nil {
		return "", &domain.FetchError{URL: f.config.URL, Attempts: attempts, Err: err}
	}

	slog.DebugContext(ctx, "Sheet fetched", "attempts", attempts, "bytes", len(body))
	return body, nil
}

func (f *Fetcher) attempt(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.config.RequestTimeout)
	defer cancel()

	resp, err := f.get(ctx, f.config.URL)
	if err != nil {
		return "", err
	}

	if isRedirect(resp.StatusCode) {
		location, locErr := resp.Location()
		drain(resp)
		if locErr != nil {
			return "", fmt.Errorf("redirect %d without usable location: %w", resp.StatusCode, locErr)
		}

		resp, err = f.get(ctx, location.String())
		if err != nil {
			return "", fmt.Errorf("follow redirect: %w", err)
		}
	}
	defer drain(resp)

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("%w: http %d", errRateLimited, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(body), nil
}

func (f *Fetcher) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "text/csv, text/plain;q=0.9, */*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	return resp, nil
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	_ = resp.Body.Close()
}
