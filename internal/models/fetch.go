package models

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/emandor/lemme_ocr/internal/telemetry"
)

// Fetcher copies the content at url into w and returns the byte count.
type Fetcher interface {
	Fetch(ctx context.Context, url string, w io.Writer) (int64, error)
}

// Rewinder is implemented by writers that can drop a partial body, letting
// Fetch retry a transfer that broke off midway.
type Rewinder interface {
	Rewind() error
}

var errNotFound = errors.New("not found")

type HTTPFetcher struct {
	Client     *http.Client
	Limiter    *rate.Limiter
	MaxRetries int
	// Backoff is the first retry delay; later retries double it.
	Backoff time.Duration
}

func NewHTTPFetcher(timeout time.Duration, rps, burst, maxRetries int) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	if rps <= 0 {
		rps = 2
	}
	if burst <= 0 {
		burst = 2
	}
	if maxRetries < 0 {
		maxRetries = 3
	}
	return &HTTPFetcher{
		Client:     &http.Client{Timeout: timeout},
		Limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		MaxRetries: maxRetries,
		Backoff:    200 * time.Millisecond,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string, w io.Writer) (int64, error) {
	log := telemetry.L().With().Str("module", "models").Str("url", url).Logger()

	var lastErr error
	for attempt := 0; attempt <= f.MaxRetries; attempt++ {
		if attempt > 0 {
			d := f.Backoff * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(d):
			}
		}
		if f.Limiter != nil {
			if err := f.Limiter.Wait(ctx); err != nil {
				return 0, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return 0, err
		}
		resp, err := f.Client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			log.Warn().Err(err).Int("attempt", attempt).Msg("fetch_transport_retry")
			lastErr = err
			continue
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			n, err := io.Copy(w, resp.Body)
			resp.Body.Close()
			if err != nil {
				if ctx.Err() != nil {
					return n, ctx.Err()
				}
				rw, ok := w.(Rewinder)
				if !ok {
					return n, fmt.Errorf("read body: %w", err)
				}
				if rerr := rw.Rewind(); rerr != nil {
					return n, fmt.Errorf("read body: %w (rewind: %v)", err, rerr)
				}
				log.Warn().Err(err).Int64("bytes", n).Int("attempt", attempt).Msg("fetch_body_retry")
				lastErr = fmt.Errorf("read body: %w", err)
				continue
			}
			log.Debug().Int64("bytes", n).Msg("fetch_ok")
			return n, nil
		case resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
			return 0, errNotFound
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			resp.Body.Close()
			log.Warn().Int("status", resp.StatusCode).Int("attempt", attempt).Msg("fetch_status_retry")
			lastErr = errors.New("http " + resp.Status)
			continue
		default:
			resp.Body.Close()
			return 0, errors.New("http " + resp.Status)
		}
	}
	return 0, lastErr
}
