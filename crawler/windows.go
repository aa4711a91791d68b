package crawler

import (
	"time"

	"github.com/naramarket/go-naramarket/models"
)

// Windows partitions the inclusive span of totalDays calendar days
// ending at anchorEnd into windows of at most windowDays, most recent
// first. The oldest window clamps to the span start instead of
// overshooting it. Consecutive windows are contiguous: each window's
// start is exactly one day after the next (older) window's end.
func Windows(anchorEnd time.Time, totalDays, windowDays int) []models.QueryWindow {
	if totalDays <= 0 || windowDays <= 0 {
		return nil
	}

	anchorEnd = truncateDay(anchorEnd)
	spanStart := anchorEnd.AddDate(0, 0, -(totalDays - 1))

	var windows []models.QueryWindow
	end := anchorEnd
	for !end.Before(spanStart) {
		start := end.AddDate(0, 0, -(windowDays - 1))
		if start.Before(spanStart) {
			start = spanStart
		}
		windows = append(windows, models.QueryWindow{Start: start, End: end})
		end = start.AddDate(0, 0, -1)
	}
	return windows
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
