package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultTimeout        = 120 * time.Second
	defaultMaxRetries     = 3
	defaultInitialBackoff = 2 * time.Second
	defaultRequestDelay   = 1 * time.Second
)

// FetchOptions tune the HTTP client and retry policy.
type FetchOptions struct {
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	Delay          time.Duration
}

// DefaultFetchOptions returns the production retry policy.
func DefaultFetchOptions() FetchOptions {
	return FetchOptions{
		Timeout:        defaultTimeout,
		MaxRetries:     defaultMaxRetries,
		InitialBackoff: defaultInitialBackoff,
		Delay:          defaultRequestDelay,
	}
}

// Fetcher downloads source documents
type Fetcher struct {
	client  *http.Client
	opts    FetchOptions
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewFetcher creates a new Fetcher
func NewFetcher(opts FetchOptions, logger *slog.Logger) *Fetcher {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if opts.Delay > 0 {
		limit = rate.Every(opts.Delay)
	}
	return &Fetcher{
		client:  &http.Client{Timeout: opts.Timeout},
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// Fetch retrieves url, returning the body and its Content-Type. Requests
// made through one Fetcher are spaced at least Delay apart.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	var lastErr error
	backoff := f.opts.InitialBackoff

	for attempt := 0; attempt < f.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			fetchRetries.Inc()
			f.logger.Debug("retrying fetch", "url", url, "attempt", attempt+1, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, "", ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		if err := f.limiter.Wait(ctx); err != nil {
			return nil, "", err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()

		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			lastErr = fmt.Errorf("retryable status code: %d", resp.StatusCode)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			return nil, "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}

		return body, resp.Header.Get("Content-Type"), nil
	}

	return nil, "", fmt.Errorf("failed after %d attempts: %w", f.opts.MaxRetries, lastErr)
}
