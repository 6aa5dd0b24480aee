package analytics

import "horizon-api/domain"

// Overview summarizes the whole collection for the dashboard header.
type Overview struct {
	ActiveProjects  int     `json:"activeProjects"`
	TotalTasks      int     `json:"totalTasks"`
	CompletedTasks  int     `json:"completedTasks"`
	InProgressTasks int     `json:"inProgressTasks"`
	TodoTasks       int     `json:"todoTasks"`
	OverdueTasks    int     `json:"overdueTasks"`
	CompletionRate  float64 `json:"completionRate"`
}

// Overview counts tasks per status and computes the completion rate,
// 0 when the collection is empty.
func (e *Engine) Overview(tasks []domain.Task, projects []domain.Project) Overview {
	now := e.now()
	o := Overview{TotalTasks: len(tasks)}
	for _, p := range projects {
		if p.Status == domain.ProjectActive {
			o.ActiveProjects++
		}
	}
	for i := range tasks {
		t := &tasks[i]
		switch t.Status {
		case domain.StatusDone:
			o.CompletedTasks++
		case domain.StatusInProgress:
			o.InProgressTasks++
		default:
			o.TodoTasks++
		}
		if t.Overdue(now) {
			o.OverdueTasks++
		}
	}
	o.CompletionRate = ratio(float64(o.CompletedTasks), float64(o.TotalTasks))
	return o
}
