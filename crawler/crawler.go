// Package crawler walks a historical date range backward in fixed-size
// windows, paginating each window's list API results and writing
// normalized rows to a sink one window at a time.
package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/naramarket/go-naramarket/client"
	"github.com/naramarket/go-naramarket/config"
	"github.com/naramarket/go-naramarket/models"
	"github.com/naramarket/go-naramarket/normalize"
	"github.com/naramarket/go-naramarket/pipeline"
)

// Request describes one crawl invocation.
type Request struct {
	// Category filters items; translated to the endpoint's category
	// query parameter. Korean text is expected here.
	Category string

	// Endpoint defaults to the shopping mall list API.
	Endpoint client.EndpointID

	TotalDays  int
	WindowDays int

	// AnchorEndDate (YYYYMMDD) is the end of the span; empty means
	// today. A resumed run passes the previous run's
	// NextAnchorEndDate here.
	AnchorEndDate string

	// MaxWindows stops the run after that many windows; 0 = unlimited.
	MaxWindows int

	// MaxRuntime stops the run once exceeded, checked between windows
	// only; a window is never truncated mid-page. 0 = unlimited.
	MaxRuntime time.Duration

	// ExplodeAttributes emits one row per detail attribute instead of
	// a single row with an attribute count.
	ExplodeAttributes bool

	// IncludeDetails enriches every item with a detail API lookup.
	IncludeDetails bool

	NumRows  int
	MaxPages int
}

// Crawler orchestrates windows sequentially: pagination, optional
// detail enrichment, normalization, and sink writes. Windows run most
// recent first so an interrupted run still covers the freshest data.
type Crawler struct {
	client  *client.Client
	cfg     *config.Config
	metrics *Metrics

	// now is swappable for runtime-budget tests.
	now func() time.Time
}

// New builds a crawler.
func New(c *client.Client, cfg *config.Config, m *Metrics) *Crawler {
	return &Crawler{client: c, cfg: cfg, metrics: m, now: time.Now}
}

// Crawl processes the requested span and reports progress. On a
// terminal API error the run stops at the failed window: progress for
// completed windows is returned along with the error, and the resume
// anchor points at the unfinished remainder. Silent data gaps are
// never produced.
func (cr *Crawler) Crawl(ctx context.Context, req Request, sink pipeline.RowSink) (*models.CrawlProgress, error) {
	if req.TotalDays <= 0 {
		return nil, client.ErrConfig{Err: fmt.Errorf("total days must be positive")}
	}
	if req.WindowDays <= 0 {
		return nil, client.ErrConfig{Err: fmt.Errorf("window days must be positive")}
	}
	endpoint := req.Endpoint
	if endpoint == "" {
		endpoint = client.ShoppingList
	}
	ep, err := client.LookupEndpoint(endpoint)
	if err != nil {
		return nil, client.ErrConfig{Err: err}
	}

	anchor := cr.now()
	if req.AnchorEndDate != "" {
		anchor, err = time.ParseInLocation(models.DateFormat, req.AnchorEndDate, time.Local)
		if err != nil {
			return nil, client.ErrConfig{Err: fmt.Errorf("parse anchor_end_date: %w", err)}
		}
	}

	windows := Windows(anchor, req.TotalDays, req.WindowDays)
	spanStart := windows[len(windows)-1].Start

	progress := &models.CrawlProgress{
		RunID:        uuid.NewString(),
		Category:     req.Category,
		TotalWindows: len(windows),
	}

	paginator := &Paginator{
		Client:   cr.client,
		NumRows:  cr.valueOr(req.NumRows, cr.cfg.NumRows),
		MaxPages: cr.valueOr(req.MaxPages, cr.cfg.MaxPages),
		Delay:    cr.cfg.Delay,
		Retry: RetryPolicy{
			MaxAttempts: cr.cfg.MaxRetries,
			Backoff:     cr.cfg.RetryBackoff,
			BackoffMax:  cr.cfg.RetryBackoffMax,
		},
		Metrics: cr.metrics,
	}

	start := cr.now()
	logger := slog.With(slog.String("run_id", progress.RunID), slog.String("category", req.Category))
	logger.Info("starting crawl",
		slog.String("endpoint", string(endpoint)),
		slog.Int("total_windows", len(windows)),
		slog.String("span_start", spanStart.Format(models.DateFormat)),
		slog.String("anchor_end", windows[0].End.Format(models.DateFormat)),
	)

	for i, window := range windows {
		if req.MaxWindows > 0 && i >= req.MaxWindows {
			cr.markIncomplete(progress, window, spanStart)
			break
		}
		if req.MaxRuntime > 0 && cr.now().Sub(start) > req.MaxRuntime {
			progress.RuntimeBudgetExceeded = true
			cr.markIncomplete(progress, window, spanStart)
			break
		}

		if err := cr.crawlWindow(ctx, paginator, ep, req, window, progress, sink); err != nil {
			cr.markIncomplete(progress, window, spanStart)
			progress.ElapsedSec = cr.now().Sub(start).Seconds()
			logger.Error("crawl stopped on window error",
				slog.String("window_start", window.StartString()),
				slog.String("window_end", window.EndString()),
				slog.Any("error", err),
			)
			return progress, err
		}

		progress.WindowsProcessed++
		progress.CoveredDays += window.Days()
		cr.metrics.IncWindows()
		logger.Debug("window complete",
			slog.String("window_start", window.StartString()),
			slog.String("window_end", window.EndString()),
			slog.Int("windows_processed", progress.WindowsProcessed),
			slog.Int("rows_written", progress.RowsWritten),
		)
	}

	progress.ElapsedSec = cr.now().Sub(start).Seconds()
	logger.Info("crawl finished",
		slog.Int("windows_processed", progress.WindowsProcessed),
		slog.Int("rows_written", progress.RowsWritten),
		slog.Bool("incomplete", progress.Incomplete),
	)
	return progress, nil
}

// crawlWindow runs pagination for one window and writes its rows to
// the sink as one batch after the last page. Detail lookup failures
// mark the item instead of aborting: a missing attribute set is
// recoverable, a missing window is not.
func (cr *Crawler) crawlWindow(ctx context.Context, paginator *Paginator, ep client.Endpoint, req Request, window models.QueryWindow, progress *models.CrawlProgress, sink pipeline.RowSink) error {
	params := map[string]string{}
	if ep.BeginDateParam != "" {
		params[ep.BeginDateParam] = window.StartString()
	}
	if ep.EndDateParam != "" {
		params[ep.EndDateParam] = window.EndString()
	}
	if req.Category != "" && ep.CategoryParam != "" {
		params[ep.CategoryParam] = req.Category
	}

	// Rows buffer for the whole window; the sink sees them only once
	// every page has come back clean. A window that fails mid-page
	// leaves the file untouched, so resuming from NextAnchorEndDate
	// re-crawls it without duplicating its earlier pages.
	var rows []models.Row
	pages, err := paginator.Each(ctx, ep.ID, params, func(resp *models.ApiResponse) error {
		for _, item := range resp.Items {
			product := &models.Product{
				Fields:      item,
				WindowStart: window.StartString(),
				WindowEnd:   window.EndString(),
			}
			if req.IncludeDetails {
				attrs, _, detailErr := cr.client.DetailAttributes(ctx, item)
				if detailErr != nil {
					progress.FailedDetails++
				} else {
					product.Attributes = attrs
					product.DetailOK = true
					progress.SuccessDetails++
				}
			}
			rows = append(rows, normalize.Rows(product, req.ExplodeAttributes)...)
		}
		progress.TotalProducts += len(resp.Items)
		cr.metrics.AddProducts(len(resp.Items))
		return nil
	})
	progress.PagesProcessed += pages
	if err != nil {
		return err
	}

	if err := sink.Write(rows); err != nil {
		return err
	}
	progress.RowsWritten += len(rows)
	cr.metrics.AddRows(len(rows))
	return nil
}

// markIncomplete records the resume anchor when stopping before the
// window passed in: its end date is the day after the last completed
// window's span, so passing it back as anchor_end_date continues with
// no duplicated or missing days.
func (cr *Crawler) markIncomplete(progress *models.CrawlProgress, next models.QueryWindow, spanStart time.Time) {
	progress.Incomplete = true
	progress.NextAnchorEndDate = next.End.Format(models.DateFormat)
	progress.RemainingDays = models.DaysInclusive(spanStart, next.End)
}

func (cr *Crawler) valueOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
