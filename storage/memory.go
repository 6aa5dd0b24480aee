package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"horizon-api/domain"
)

// Memory is the in-memory fallback store used when no database is
// configured. It implements the same contract as the Postgres store: per-user
// partitioning, creation-order listing, ErrNotFound on missing records.
// Returned values are copies; callers never observe interior mutation.
type Memory struct {
	mu         sync.RWMutex
	tasks      map[string]map[string]domain.Task
	projects   map[string]map[string]domain.Project
	milestones map[string]map[string]domain.Milestone
	settings   map[string]domain.Settings
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		tasks:      map[string]map[string]domain.Task{},
		projects:   map[string]map[string]domain.Project{},
		milestones: map[string]map[string]domain.Milestone{},
		settings:   map[string]domain.Settings{},
	}
}

// Ping always succeeds: memory is never unreachable.
func (m *Memory) Ping(ctx context.Context) error { return nil }

func copyTask(t domain.Task) domain.Task {
	out := t
	out.Tags = append([]string(nil), t.Tags...)
	out.Dependencies = append([]string(nil), t.Dependencies...)
	return out
}

// ListTasks returns the user's tasks, optionally scoped to one project, in
// creation order.
func (m *Memory) ListTasks(ctx context.Context, userID string, filter TaskFilter) ([]domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tasks := []domain.Task{}
	for _, t := range m.tasks[userID] {
		if filter.ProjectID != "" && t.ProjectID != filter.ProjectID {
			continue
		}
		tasks = append(tasks, copyTask(t))
	}
	sortByCreation(tasks, func(t domain.Task) (time.Time, string) { return t.CreatedAt, t.ID })
	return tasks, nil
}

// GetTask returns one task by id.
func (m *Memory) GetTask(ctx context.Context, userID, id string) (domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tasks[userID][id]
	if !ok {
		return domain.Task{}, ErrNotFound
	}
	return copyTask(t), nil
}

// CreateTask stores a new task.
func (m *Memory) CreateTask(ctx context.Context, userID string, t domain.Task) (domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tasks[userID] == nil {
		m.tasks[userID] = map[string]domain.Task{}
	}
	m.tasks[userID][t.ID] = copyTask(t)
	return copyTask(t), nil
}

// UpdateTask replaces the mutable fields of an existing task.
func (m *Memory) UpdateTask(ctx context.Context, userID string, t domain.Task) (domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.tasks[userID][t.ID]
	if !ok {
		return domain.Task{}, ErrNotFound
	}
	t.CreatedAt = existing.CreatedAt
	m.tasks[userID][t.ID] = copyTask(t)
	return copyTask(t), nil
}

// UpdateTaskProgress writes just the progress field.
func (m *Memory) UpdateTaskProgress(ctx context.Context, userID, id string, progress int, now time.Time) (domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[userID][id]
	if !ok {
		return domain.Task{}, ErrNotFound
	}
	t.Progress = progress
	t.UpdatedAt = now
	m.tasks[userID][id] = t
	return copyTask(t), nil
}

// UpdateTaskSchedule writes just the schedule window.
func (m *Memory) UpdateTaskSchedule(ctx context.Context, userID, id string, start, end *time.Time, now time.Time) (domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[userID][id]
	if !ok {
		return domain.Task{}, ErrNotFound
	}
	t.StartDate = start
	t.EndDate = end
	t.UpdatedAt = now
	m.tasks[userID][id] = t
	return copyTask(t), nil
}

// DeleteTask removes a task.
func (m *Memory) DeleteTask(ctx context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tasks[userID][id]; !ok {
		return ErrNotFound
	}
	delete(m.tasks[userID], id)
	return nil
}

// ListProjects returns the user's projects in creation order.
func (m *Memory) ListProjects(ctx context.Context, userID string) ([]domain.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	projects := []domain.Project{}
	for _, p := range m.projects[userID] {
		projects = append(projects, p)
	}
	sortByCreation(projects, func(p domain.Project) (time.Time, string) { return p.CreatedAt, p.ID })
	return projects, nil
}

// CreateProject stores a new project.
func (m *Memory) CreateProject(ctx context.Context, userID string, p domain.Project) (domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.projects[userID] == nil {
		m.projects[userID] = map[string]domain.Project{}
	}
	m.projects[userID][p.ID] = p
	return p, nil
}

// UpdateProject replaces the mutable fields of an existing project.
func (m *Memory) UpdateProject(ctx context.Context, userID string, p domain.Project) (domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.projects[userID][p.ID]
	if !ok {
		return domain.Project{}, ErrNotFound
	}
	p.CreatedAt = existing.CreatedAt
	m.projects[userID][p.ID] = p
	return p, nil
}

// DeleteProject removes a project.
func (m *Memory) DeleteProject(ctx context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.projects[userID][id]; !ok {
		return ErrNotFound
	}
	delete(m.projects[userID], id)
	return nil
}

// ListMilestones returns the user's milestones, optionally scoped to one
// project, in creation order.
func (m *Memory) ListMilestones(ctx context.Context, userID string, filter MilestoneFilter) ([]domain.Milestone, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	milestones := []domain.Milestone{}
	for _, ms := range m.milestones[userID] {
		if filter.ProjectID != "" && ms.ProjectID != filter.ProjectID {
			continue
		}
		milestones = append(milestones, ms)
	}
	sortByCreation(milestones, func(ms domain.Milestone) (time.Time, string) { return ms.CreatedAt, ms.ID })
	return milestones, nil
}

// CreateMilestone stores a new milestone.
func (m *Memory) CreateMilestone(ctx context.Context, userID string, ms domain.Milestone) (domain.Milestone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.milestones[userID] == nil {
		m.milestones[userID] = map[string]domain.Milestone{}
	}
	m.milestones[userID][ms.ID] = ms
	return ms, nil
}

// FetchSettings returns the user's settings, defaults when none are stored.
func (m *Memory) FetchSettings(ctx context.Context, userID string) (domain.Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.settings[userID]
	if !ok {
		return DefaultSettings(), nil
	}
	return st, nil
}

// SaveSettings stores the user's settings.
func (m *Memory) SaveSettings(ctx context.Context, userID string, st domain.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.settings[userID] = st
	return nil
}

func sortByCreation[T any](items []T, key func(T) (time.Time, string)) {
	sort.Slice(items, func(i, j int) bool {
		ti, idi := key(items[i])
		tj, idj := key(items[j])
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return idi < idj
	})
}
