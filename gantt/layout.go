package gantt

import (
	"time"

	"horizon-api/domain"
)

// ScheduledItem is a task projected with concrete start/end dates for
// timeline rendering. It is built fresh per request from the task read model
// and never persisted.
type ScheduledItem struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	Progress  int       `json:"progress"`
	DependsOn []string  `json:"dependsOn,omitempty"`
	ColorHint string    `json:"colorHint,omitempty"`
}

// Bounds is the date window a timeline is rendered against.
type Bounds struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Row carries the pixel geometry for one timeline bar.
type Row struct {
	ItemID     string `json:"itemId"`
	LeftPx     int    `json:"leftPx"`
	WidthPx    int    `json:"widthPx"`
	ProgressPx int    `json:"progressPx"`
}

// Chart is the full output of a layout computation.
type Chart struct {
	Bounds Bounds `json:"bounds"`
	Rows   []Row  `json:"rows"`
}

// ComputeLayout maps every item onto the pixel grid. When explicit bounds are
// nil they are derived from the min start and max end across items; with no
// items at all the window defaults to [today, today+30d]. Items are laid out
// in input order. An item whose end precedes its start is clamped to a
// one-day bar rather than rejected, so the renderer never sees a negative
// width. Items outside explicit bounds may produce a negative LeftPx; the
// renderer clips.
func ComputeLayout(items []ScheduledItem, explicit *Bounds) Chart {
	bounds := resolveBounds(items, explicit, time.Now())
	rows := make([]Row, 0, len(items))
	for _, it := range items {
		width := DaysBetween(it.StartDate, it.EndDate)
		if width < 1 {
			width = 1
		}
		widthPx := width * DayWidth
		rows = append(rows, Row{
			ItemID:     it.ID,
			LeftPx:     DaysBetween(bounds.Start, it.StartDate) * DayWidth,
			WidthPx:    widthPx,
			ProgressPx: widthPx * clampProgress(it.Progress) / 100,
		})
	}
	return Chart{Bounds: bounds, Rows: rows}
}

func resolveBounds(items []ScheduledItem, explicit *Bounds, now time.Time) Bounds {
	if explicit != nil {
		return Bounds{Start: startOfDay(explicit.Start), End: startOfDay(explicit.End)}
	}
	if len(items) == 0 {
		today := startOfDay(now)
		return Bounds{Start: today, End: today.AddDate(0, 0, defaultWindowDays)}
	}
	min := startOfDay(items[0].StartDate)
	max := startOfDay(items[0].EndDate)
	for _, it := range items {
		for _, d := range []time.Time{startOfDay(it.StartDate), startOfDay(it.EndDate)} {
			if d.Before(min) {
				min = d
			}
			if d.After(max) {
				max = d
			}
		}
	}
	return Bounds{Start: min, End: max}
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// ScheduledItemsFromTasks projects tasks onto the timeline. Tasks without any
// schedule information are skipped; when only one of start/end is present the
// other side falls back to it so single-dated tasks still render as one-day
// bars.
func ScheduledItemsFromTasks(tasks []domain.Task) []ScheduledItem {
	items := make([]ScheduledItem, 0, len(tasks))
	for _, t := range tasks {
		if t.StartDate == nil && t.EndDate == nil {
			continue
		}
		start, end := t.StartDate, t.EndDate
		if start == nil {
			start = end
		}
		if end == nil {
			end = start
		}
		items = append(items, ScheduledItem{
			ID:        t.ID,
			Name:      t.Title,
			StartDate: *start,
			EndDate:   *end,
			Progress:  t.Progress,
			DependsOn: t.Dependencies,
			ColorHint: colorForPriority(t.Priority),
		})
	}
	return items
}

func colorForPriority(p domain.TaskPriority) string {
	switch p {
	case domain.PriorityUrgent:
		return "#dc2626"
	case domain.PriorityHigh:
		return "#f59e0b"
	case domain.PriorityLow:
		return "#94a3b8"
	default:
		return "#3b82f6"
	}
}
