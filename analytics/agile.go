package analytics

import (
	"time"

	"horizon-api/domain"
)

// FlowPoint is one cumulative-flow snapshot: task counts per status at the
// end of one day in the reporting window.
type FlowPoint struct {
	Date       string `json:"date"`
	Todo       int    `json:"todoCount"`
	InProgress int    `json:"inProgressCount"`
	Done       int    `json:"doneCount"`
	Remaining  int    `json:"remaining"`
}

// AgileMetrics is the flow block of the dashboard.
type AgileMetrics struct {
	Velocity       int         `json:"velocity"`
	WindowDays     int         `json:"windowDays"`
	WorkInProgress int         `json:"workInProgress"`
	Burndown       []FlowPoint `json:"burndown"`
	SprintHealth   string      `json:"sprintHealth"`
	ActiveProjects int         `json:"activeProjects"`
}

// AgileMetrics computes velocity (tasks done within the trailing window) and
// one flow snapshot per day of that window.
//
// The read model keeps a single updatedAt per task, not an event log, so
// historical status is an approximation: a task is assumed to have held its
// current status since updatedAt and to have been todo between createdAt and
// updatedAt. Multi-hop transitions (todo -> done -> todo) cannot be
// reconstructed and are intentionally not modeled; fixing this would change
// the reported figures.
func (e *Engine) AgileMetrics(tasks []domain.Task, projects []domain.Project) AgileMetrics {
	now := e.now()
	windowStart := now.AddDate(0, 0, -e.windowDays)

	am := AgileMetrics{
		WindowDays: e.windowDays,
		Burndown:   make([]FlowPoint, 0, e.windowDays+1),
	}
	for _, p := range projects {
		if p.Status == domain.ProjectActive {
			am.ActiveProjects++
		}
	}
	for i := range tasks {
		t := &tasks[i]
		if t.Status == domain.StatusInProgress {
			am.WorkInProgress++
		}
		if t.Status == domain.StatusDone && !t.UpdatedAt.Before(windowStart) && !t.UpdatedAt.After(now) {
			am.Velocity++
		}
	}

	for d := 0; d <= e.windowDays; d++ {
		cutoff := endOfDay(windowStart.AddDate(0, 0, d))
		point := FlowPoint{Date: cutoff.UTC().Format("2006-01-02")}
		for i := range tasks {
			switch statusAsOf(&tasks[i], cutoff) {
			case domain.StatusDone:
				point.Done++
			case domain.StatusInProgress:
				point.InProgress++
			case domain.StatusTodo:
				point.Todo++
			}
		}
		point.Remaining = point.Todo + point.InProgress
		am.Burndown = append(am.Burndown, point)
	}

	am.SprintHealth = sprintHealth(am.Velocity, am.WorkInProgress, tasks)
	return am
}

// statusAsOf replays a task's status at the given instant from its two
// timestamps. Empty return means the task did not exist yet.
func statusAsOf(t *domain.Task, at time.Time) domain.TaskStatus {
	if t.CreatedAt.After(at) {
		return ""
	}
	if t.UpdatedAt.After(at) {
		return domain.StatusTodo
	}
	if t.Status == "" {
		return domain.StatusTodo
	}
	return t.Status
}

func endOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 23, 59, 59, 0, time.UTC)
}

// sprintHealth is a coarse traffic light: red when nothing moved and open
// work is piling up, yellow when WIP outweighs throughput, green otherwise.
func sprintHealth(velocity, wip int, tasks []domain.Task) string {
	open := 0
	for i := range tasks {
		if tasks[i].Status != domain.StatusDone {
			open++
		}
	}
	switch {
	case velocity == 0 && open > 0:
		return "red"
	case wip > velocity*2:
		return "yellow"
	default:
		return "green"
	}
}
