package gantt

import (
	"time"

	"horizon-api/domain"
)

// taskFixtures returns one fully dated task, one start-only task, one
// end-only task, and one undated task (which projections must skip).
func taskFixtures(start time.Time) []domain.Task {
	end := start.AddDate(0, 0, 5)
	return []domain.Task{
		{ID: "t1", Title: "dated", StartDate: &start, EndDate: &end, Progress: 40, Dependencies: []string{"t2"}},
		{ID: "t2", Title: "start only", StartDate: &start},
		{ID: "t3", Title: "end only", EndDate: &end},
		{ID: "t4", Title: "undated"},
	}
}
