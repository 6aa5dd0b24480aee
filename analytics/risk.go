package analytics

import (
	"horizon-api/domain"
)

// Risk score weights and level thresholds. Shared constants so every
// consumer buckets identically.
const (
	weightOverdue      = 3
	weightHighPriority = 2
	weightBlocked      = 1

	riskHighThreshold   = 15
	riskMediumThreshold = 8
)

// OverdueTask is one past-due, not-done task with its lateness in whole days.
type OverdueTask struct {
	TaskID      string              `json:"taskId"`
	Title       string              `json:"title"`
	Priority    domain.TaskPriority `json:"priority"`
	DaysOverdue int                 `json:"daysOverdue"`
}

// RiskRecord scores a single task on a 1-5 impact/probability matrix,
// derived from its priority and overdue state.
type RiskRecord struct {
	TaskID      string `json:"taskId"`
	Impact      int    `json:"impact"`
	Probability int    `json:"probability"`
	RiskScore   int    `json:"riskScore"`
}

// RiskAnalysis is the project-health risk block of the dashboard.
type RiskAnalysis struct {
	OverdueTasks           []OverdueTask `json:"overdueTasks"`
	HighPriorityIncomplete []string      `json:"highPriorityIncomplete"`
	BlockedTasks           []string      `json:"blockedTasks"`
	Records                []RiskRecord  `json:"records"`
	RiskScore              int           `json:"riskScore"`
	RiskLevel              string        `json:"riskLevel"`
}

// RiskAnalysis collects overdue, high-priority-incomplete and blocked tasks
// and folds them into one weighted score. A task counts as blocked when any
// of its dependencies is not yet done; dependency ids that match no known
// task are ignored here (they are rendering hints, not blockers).
func (e *Engine) RiskAnalysis(tasks []domain.Task) RiskAnalysis {
	now := e.now()
	done := make(map[string]bool, len(tasks))
	for i := range tasks {
		done[tasks[i].ID] = tasks[i].Status == domain.StatusDone
	}

	ra := RiskAnalysis{
		OverdueTasks:           []OverdueTask{},
		HighPriorityIncomplete: []string{},
		BlockedTasks:           []string{},
		Records:                []RiskRecord{},
	}
	for i := range tasks {
		t := &tasks[i]
		overdue := t.Overdue(now)
		if overdue {
			days := int(now.Sub(*t.DueDate).Hours() / 24)
			ra.OverdueTasks = append(ra.OverdueTasks, OverdueTask{
				TaskID:      t.ID,
				Title:       t.Title,
				Priority:    t.Priority,
				DaysOverdue: days,
			})
		}
		highPriority := t.Priority == domain.PriorityHigh || t.Priority == domain.PriorityUrgent
		if highPriority && t.Status != domain.StatusDone {
			ra.HighPriorityIncomplete = append(ra.HighPriorityIncomplete, t.ID)
		}
		blocked := false
		if t.Status != domain.StatusDone {
			for _, dep := range t.Dependencies {
				if isDone, known := done[dep]; known && !isDone {
					blocked = true
					break
				}
			}
		}
		if blocked {
			ra.BlockedTasks = append(ra.BlockedTasks, t.ID)
		}
		if overdue || (highPriority && t.Status != domain.StatusDone) || blocked {
			ra.Records = append(ra.Records, riskRecord(t, overdue, blocked))
		}
	}

	ra.RiskScore = len(ra.OverdueTasks)*weightOverdue +
		len(ra.HighPriorityIncomplete)*weightHighPriority +
		len(ra.BlockedTasks)*weightBlocked
	ra.RiskLevel = riskLevel(ra.RiskScore)
	return ra
}

func riskRecord(t *domain.Task, overdue, blocked bool) RiskRecord {
	impact := 2
	switch t.Priority {
	case domain.PriorityUrgent:
		impact = 5
	case domain.PriorityHigh:
		impact = 4
	case domain.PriorityLow:
		impact = 1
	}
	probability := 2
	if overdue {
		probability = 5
	} else if blocked {
		probability = 4
	}
	return RiskRecord{
		TaskID:      t.ID,
		Impact:      impact,
		Probability: probability,
		RiskScore:   impact * probability,
	}
}

func riskLevel(score int) string {
	switch {
	case score >= riskHighThreshold:
		return "high"
	case score >= riskMediumThreshold:
		return "medium"
	default:
		return "low"
	}
}
