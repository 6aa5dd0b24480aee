package domain

import "time"

// TaskStatus enumerates the workflow states a task moves through.
type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in_progress"
	StatusDone       TaskStatus = "done"
)

// Valid reports whether s is one of the known workflow states.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// TaskPriority enumerates task urgency levels.
type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
	PriorityUrgent TaskPriority = "urgent"
)

// Valid reports whether p is one of the known priority levels.
func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Task represents a single schedulable work item in the read model.
type Task struct {
	ID             string       `json:"id"`
	Title          string       `json:"title"`
	Notes          string       `json:"notes,omitempty"`
	ProjectID      string       `json:"projectId,omitempty"`
	Status         TaskStatus   `json:"status"`
	Priority       TaskPriority `json:"priority"`
	Assignee       string       `json:"assignee,omitempty"`
	Tags           []string     `json:"tags,omitempty"`
	Dependencies   []string     `json:"dependencies,omitempty"`
	Progress       int          `json:"progress"`
	EstimatedHours float64      `json:"estimatedHours,omitempty"`
	ActualHours    float64      `json:"actualHours,omitempty"`
	DueDate        *time.Time   `json:"dueDate,omitempty"`
	StartDate      *time.Time   `json:"startDate,omitempty"`
	EndDate        *time.Time   `json:"endDate,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// Normalize fills defaulted fields so downstream computations operate on
// total values: zero status/priority become todo/medium, nil tag and
// dependency slices become empty.
func (t *Task) Normalize() {
	if t.Status == "" {
		t.Status = StatusTodo
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	if t.Dependencies == nil {
		t.Dependencies = []string{}
	}
}

// Validate checks the invariants a task must satisfy before it is accepted
// for persistence. The date-range rule applies only when both ends are set.
func (t *Task) Validate() error {
	if t.Title == "" {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if t.Status != "" && !t.Status.Valid() {
		return &ValidationError{Field: "status", Reason: "unknown status " + string(t.Status)}
	}
	if t.Priority != "" && !t.Priority.Valid() {
		return &ValidationError{Field: "priority", Reason: "unknown priority " + string(t.Priority)}
	}
	if t.Progress < 0 || t.Progress > 100 {
		return &ValidationError{Field: "progress", Reason: "must be between 0 and 100"}
	}
	if t.StartDate != nil && t.EndDate != nil && t.EndDate.Before(*t.StartDate) {
		return &ValidationError{Field: "endDate", Reason: "must not precede startDate"}
	}
	return nil
}

// Overdue reports whether the task has a due date in the past and is not done.
func (t *Task) Overdue(now time.Time) bool {
	return t.DueDate != nil && t.DueDate.Before(now) && t.Status != StatusDone
}
