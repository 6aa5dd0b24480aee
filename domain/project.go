package domain

import "time"

// ProjectStatus enumerates the lifecycle states of a project.
type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "active"
	ProjectCompleted ProjectStatus = "completed"
	ProjectArchived  ProjectStatus = "archived"
)

// Valid reports whether s is one of the known project states.
func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectActive, ProjectCompleted, ProjectArchived:
		return true
	}
	return false
}

// Project groups tasks and milestones under one umbrella.
type Project struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Status      ProjectStatus `json:"status"`
	Color       string        `json:"color,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// Validate checks the invariants a project must satisfy before persistence.
func (p *Project) Validate() error {
	if p.Name == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if p.Status != "" && !p.Status.Valid() {
		return &ValidationError{Field: "status", Reason: "unknown status " + string(p.Status)}
	}
	return nil
}

// Milestone marks a dated checkpoint within a project.
type Milestone struct {
	ID        string     `json:"id"`
	ProjectID string     `json:"projectId"`
	Name      string     `json:"name"`
	DueDate   *time.Time `json:"dueDate,omitempty"`
	Completed bool       `json:"completed"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Validate checks the invariants a milestone must satisfy before persistence.
func (m *Milestone) Validate() error {
	if m.Name == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if m.ProjectID == "" {
		return &ValidationError{Field: "projectId", Reason: "must not be empty"}
	}
	return nil
}
