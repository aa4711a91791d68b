package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/naramarket/go-naramarket/client"
	"github.com/naramarket/go-naramarket/models"
)

// RetryPolicy is the pagination engine's explicit retry configuration.
// Only rate-limit and network failures are retried; auth, config, and
// malformed responses are terminal on the first occurrence.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries per page, including the
	// first. Values below 1 mean a single attempt.
	MaxAttempts int

	// Backoff is the delay before the second attempt; it doubles per
	// attempt and is capped at BackoffMax when that is positive.
	Backoff    time.Duration
	BackoffMax time.Duration
}

func (p RetryPolicy) backoffFor(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	base := p.Backoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	delay := base * time.Duration(1<<(attempt-1))
	if max := p.BackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}

// Paginator drives repeated list API calls across pages until
// exhaustion or a cap. Pages are emitted as they arrive; nothing is
// buffered across pages.
type Paginator struct {
	Client  *client.Client
	NumRows int
	// MaxPages caps the page count; 0 means unlimited.
	MaxPages int
	// Delay is slept between consecutive page requests.
	Delay   time.Duration
	Retry   RetryPolicy
	Metrics *Metrics
}

// Each calls fn for every page of results. It terminates when a page
// returns fewer items than requested, the reported total count is
// reached, the page cap is hit, or a page comes back empty. A terminal
// API error or a callback error aborts pagination and is returned with
// the number of fully processed pages.
func (p *Paginator) Each(ctx context.Context, id client.EndpointID, baseParams map[string]string, fn func(*models.ApiResponse) error) (int, error) {
	numRows := p.NumRows
	if numRows <= 0 {
		numRows = 100
	}

	pages := 0
	received := 0
	for pageNo := 1; ; pageNo++ {
		params := make(map[string]string, len(baseParams)+2)
		for k, v := range baseParams {
			params[k] = v
		}
		params["pageNo"] = fmt.Sprintf("%d", pageNo)
		params["numOfRows"] = fmt.Sprintf("%d", numRows)

		resp, err := p.callWithRetry(ctx, id, params)
		if err != nil {
			return pages, err
		}

		if len(resp.Items) == 0 {
			return pages, nil
		}

		if err := fn(resp); err != nil {
			return pages, err
		}
		pages++
		received += len(resp.Items)

		if len(resp.Items) < numRows {
			return pages, nil
		}
		if resp.TotalCount > 0 && received >= resp.TotalCount {
			return pages, nil
		}
		if p.MaxPages > 0 && pageNo >= p.MaxPages {
			return pages, nil
		}

		if p.Delay > 0 {
			if err := sleepCtx(ctx, p.Delay); err != nil {
				return pages, err
			}
		}
	}
}

func (p *Paginator) callWithRetry(ctx context.Context, id client.EndpointID, params map[string]string) (*models.ApiResponse, error) {
	attempts := p.Retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := p.Retry.backoffFor(attempt - 1)
			slog.Warn("retrying page call",
				slog.String("endpoint", string(id)),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", delay),
				slog.Any("error", lastErr),
			)
			p.Metrics.IncRetries()
			if err := sleepCtx(ctx, delay); err != nil {
				return nil, err
			}
		}

		start := time.Now()
		resp, err := p.Client.Call(ctx, id, params)
		p.Metrics.IncRequest(string(id))
		p.Metrics.ObserveDuration(time.Since(start))
		if err == nil {
			return resp, nil
		}

		p.Metrics.IncError(client.StatusLabel(err))
		lastErr = err
		if !client.Retriable(err) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return client.ErrNetwork{Err: ctx.Err()}
	case <-timer.C:
		return nil
	}
}
