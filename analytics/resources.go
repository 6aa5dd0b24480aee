package analytics

import (
	"sort"

	"horizon-api/domain"
)

// AssigneeLoad aggregates estimated vs actual hours for one assignee.
// Tasks without an assignee land in the "unassigned" bucket.
type AssigneeLoad struct {
	Assignee       string  `json:"assignee"`
	TaskCount      int     `json:"taskCount"`
	EstimatedHours float64 `json:"estimatedHours"`
	ActualHours    float64 `json:"actualHours"`
	Efficiency     float64 `json:"efficiency"`
}

// ResourceUtilization is the workload block of the dashboard.
type ResourceUtilization struct {
	TotalEstimatedHours float64        `json:"totalEstimatedHours"`
	TotalActualHours    float64        `json:"totalActualHours"`
	Efficiency          float64        `json:"efficiency"`
	TasksByPriority     map[string]int `json:"tasksByPriority"`
	ByAssignee          []AssigneeLoad `json:"byAssignee"`
	AverageTaskDuration float64        `json:"averageTaskDuration"`
}

// ResourceUtilization groups tasks by assignee and priority and sums hour
// estimates against actuals. Efficiency is actual/estimated in percent, 0
// when nothing was estimated. Average duration covers only tasks carrying
// both schedule dates, measured in days.
func (e *Engine) ResourceUtilization(tasks []domain.Task) ResourceUtilization {
	ru := ResourceUtilization{
		TasksByPriority: map[string]int{},
		ByAssignee:      []AssigneeLoad{},
	}
	byAssignee := map[string]*AssigneeLoad{}
	durationDays, durationCount := 0.0, 0

	for i := range tasks {
		t := &tasks[i]
		ru.TotalEstimatedHours += t.EstimatedHours
		ru.TotalActualHours += t.ActualHours

		priority := string(t.Priority)
		if priority == "" {
			priority = string(domain.PriorityMedium)
		}
		ru.TasksByPriority[priority]++

		name := t.Assignee
		if name == "" {
			name = "unassigned"
		}
		load, ok := byAssignee[name]
		if !ok {
			load = &AssigneeLoad{Assignee: name}
			byAssignee[name] = load
		}
		load.TaskCount++
		load.EstimatedHours += t.EstimatedHours
		load.ActualHours += t.ActualHours

		if t.StartDate != nil && t.EndDate != nil && !t.EndDate.Before(*t.StartDate) {
			durationDays += t.EndDate.Sub(*t.StartDate).Hours() / 24
			durationCount++
		}
	}

	ru.Efficiency = ratio(ru.TotalActualHours, ru.TotalEstimatedHours)
	if durationCount > 0 {
		ru.AverageTaskDuration = round1(durationDays / float64(durationCount))
	}

	names := make([]string, 0, len(byAssignee))
	for name := range byAssignee {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		load := byAssignee[name]
		load.Efficiency = ratio(load.ActualHours, load.EstimatedHours)
		ru.ByAssignee = append(ru.ByAssignee, *load)
	}
	return ru
}
