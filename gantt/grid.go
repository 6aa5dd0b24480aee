// Package gantt converts scheduled task date ranges into render-ready
// timeline geometry. All functions are pure: geometry is recomputed from the
// task collection on every call and nothing is cached between requests.
package gantt

import "time"

// DayWidth is the fixed number of pixels one day occupies on the timeline.
const DayWidth = 40

// defaultWindowDays is the chart window used when no items and no explicit
// bounds are supplied.
const defaultWindowDays = 30

// DaysBetween returns the whole-day distance from a to b, negative when b
// precedes a. Both instants are truncated to UTC midnight first so the
// time-of-day component never skews the count.
func DaysBetween(a, b time.Time) int {
	return int(startOfDay(b).Sub(startOfDay(a)).Hours() / 24)
}

func startOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
