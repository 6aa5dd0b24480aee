package analytics

import "horizon-api/domain"

// EfficiencyStats is the delivery-performance block of the dashboard.
type EfficiencyStats struct {
	OnTimeDeliveryRate float64 `json:"onTimeDeliveryRate"`
	AverageProgress    float64 `json:"averageProgress"`
	CompletedTasks     int     `json:"completedTasks"`
	TotalTasks         int     `json:"totalTasks"`
	ProductivityScore  float64 `json:"productivityScore"`
}

// EfficiencyStats measures how reliably work lands on time. A done task
// without a due date counts as on-time. The productivity score blends the
// on-time rate with average progress, equally weighted.
func (e *Engine) EfficiencyStats(tasks []domain.Task) EfficiencyStats {
	es := EfficiencyStats{TotalTasks: len(tasks)}
	onTime, doneCount := 0, 0
	var progressSum float64

	for i := range tasks {
		t := &tasks[i]
		progressSum += float64(t.Progress)
		if t.Status != domain.StatusDone {
			continue
		}
		doneCount++
		// UpdatedAt is the closest thing to a completion timestamp the
		// read model carries.
		if t.DueDate == nil || !t.UpdatedAt.After(*t.DueDate) {
			onTime++
		}
	}

	es.CompletedTasks = doneCount
	es.OnTimeDeliveryRate = ratio(float64(onTime), float64(doneCount))
	if len(tasks) > 0 {
		es.AverageProgress = round1(progressSum / float64(len(tasks)))
	}
	es.ProductivityScore = round1((es.OnTimeDeliveryRate + es.AverageProgress) / 2)
	return es
}
