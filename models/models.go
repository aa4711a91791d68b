// Package models defines data structures shared across the crawler.
package models

import "time"

// DateFormat is the YYYYMMDD layout the government APIs use for all
// date range parameters.
const DateFormat = "20060102"

// Row is one flat, column-to-value record ready for tabular export.
type Row map[string]string

// Product is one item from the list API, optionally enriched with
// detail attributes from the G2B detail endpoint.
type Product struct {
	// Fields holds the raw list API item. Keys are the API's
	// romanized field names (prdctClsfcNoNm, cntrctCorpNm, ...).
	Fields map[string]string `json:"fields"`

	// Attributes holds category-specific key/value pairs fetched from
	// the detail API. Empty when detail lookup was skipped or failed.
	Attributes map[string]string `json:"attributes"`

	WindowStart string `json:"window_start"`
	WindowEnd   string `json:"window_end"`

	// DetailOK reports whether the detail attribute lookup succeeded.
	DetailOK bool `json:"detail_success"`
}

// ApiResponse is a successfully parsed list API page.
type ApiResponse struct {
	Items      []map[string]string
	TotalCount int
	PageNo     int
	NumRows    int
}

// QueryWindow is an inclusive calendar date sub-range processed as one
// atomic crawl unit. Start never exceeds End.
type QueryWindow struct {
	Start time.Time
	End   time.Time
}

// StartString returns the window start in API date format.
func (w QueryWindow) StartString() string { return w.Start.Format(DateFormat) }

// EndString returns the window end in API date format.
func (w QueryWindow) EndString() string { return w.End.Format(DateFormat) }

// Days returns the inclusive length of the window in days.
func (w QueryWindow) Days() int {
	return DaysInclusive(w.Start, w.End)
}

// DaysInclusive counts the calendar days from start through end. Both
// endpoints are reduced to their calendar date, so time of day and DST
// offset changes in the times' locations never skew the count.
func DaysInclusive(start, end time.Time) int {
	s := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	e := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	return int(e.Sub(s)/(24*time.Hour)) + 1
}

// CrawlProgress tracks a crawl invocation. It is single-owner: only the
// crawler mutates it, once per completed window.
type CrawlProgress struct {
	RunID            string  `json:"run_id"`
	Category         string  `json:"category"`
	WindowsProcessed int     `json:"windows_processed"`
	TotalWindows     int     `json:"total_windows"`
	PagesProcessed   int     `json:"pages_processed"`
	TotalProducts    int     `json:"total_products"`
	RowsWritten      int     `json:"rows_written"`
	SuccessDetails   int     `json:"success_details"`
	FailedDetails    int     `json:"failed_details"`
	CoveredDays      int     `json:"covered_days"`
	RemainingDays    int     `json:"remaining_days"`
	ElapsedSec       float64 `json:"elapsed_sec"`

	// Incomplete is set when the run stopped before covering the full
	// requested span (window cap, runtime budget, or terminal error).
	Incomplete bool `json:"incomplete"`

	RuntimeBudgetExceeded bool `json:"runtime_budget_exceeded"`

	// NextAnchorEndDate is the anchor_end_date a follow-up call should
	// pass (with append=true) to resume exactly where this run stopped:
	// the day before the oldest completed window's start. Empty when the
	// span was fully covered.
	NextAnchorEndDate string `json:"next_anchor_end_date,omitempty"`
}
