package api

import (
	"context"
	"time"

	"horizon-api/domain"
	"horizon-api/storage"
)

// Storage abstracts persistence for handlers. The Postgres store, the
// in-memory store and the Redis cache wrapper all satisfy it.
type Storage interface {
	Ping(ctx context.Context) error

	ListTasks(ctx context.Context, userID string, filter storage.TaskFilter) ([]domain.Task, error)
	GetTask(ctx context.Context, userID, id string) (domain.Task, error)
	CreateTask(ctx context.Context, userID string, t domain.Task) (domain.Task, error)
	UpdateTask(ctx context.Context, userID string, t domain.Task) (domain.Task, error)
	UpdateTaskProgress(ctx context.Context, userID, id string, progress int, now time.Time) (domain.Task, error)
	UpdateTaskSchedule(ctx context.Context, userID, id string, start, end *time.Time, now time.Time) (domain.Task, error)
	DeleteTask(ctx context.Context, userID, id string) error

	ListProjects(ctx context.Context, userID string) ([]domain.Project, error)
	CreateProject(ctx context.Context, userID string, p domain.Project) (domain.Project, error)
	UpdateProject(ctx context.Context, userID string, p domain.Project) (domain.Project, error)
	DeleteProject(ctx context.Context, userID, id string) error

	ListMilestones(ctx context.Context, userID string, filter storage.MilestoneFilter) ([]domain.Milestone, error)
	CreateMilestone(ctx context.Context, userID string, m domain.Milestone) (domain.Milestone, error)

	FetchSettings(ctx context.Context, userID string) (domain.Settings, error)
	SaveSettings(ctx context.Context, userID string, st domain.Settings) error
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper prevents re-applying a mutation whose idempotency key was already
// processed.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when downstream processing fails.
	Remove(ctx context.Context, userID, key string) error
}
