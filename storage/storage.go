// Package storage provides the persistence backends behind the API: a
// Postgres store (pgx), an in-memory fallback, and a Redis read cache that
// wraps either. All backends partition data per user.
package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"horizon-api/domain"
)

// TaskFilter narrows list queries. Zero value selects everything.
type TaskFilter struct {
	ProjectID string
}

// MilestoneFilter narrows milestone list queries.
type MilestoneFilter struct {
	ProjectID string
}

const (
	tasksTable      = "tasks"
	projectsTable   = "projects"
	milestonesTable = "milestones"
	settingsTable   = "user_settings"
)

// Storage is the Postgres-backed store.
type Storage struct {
	pool *pgxpool.Pool
}

// New connects to Postgres and ensures the schema exists.
func New(ctx context.Context, dsn string) (*Storage, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := &Storage{pool: pool}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the connection pool.
func (s *Storage) Close() {
	s.pool.Close()
}

// Ping verifies the database is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// EnsureSchema creates the tables if they do not exist.
func (s *Storage) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS ` + tasksTable + ` (
    id              TEXT NOT NULL,
    user_id         TEXT NOT NULL,
    title           TEXT NOT NULL,
    notes           TEXT NOT NULL DEFAULT '',
    project_id      TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL DEFAULT 'todo',
    priority        TEXT NOT NULL DEFAULT 'medium',
    assignee        TEXT NOT NULL DEFAULT '',
    tags            TEXT[] NOT NULL DEFAULT '{}',
    dependencies    TEXT[] NOT NULL DEFAULT '{}',
    progress        INTEGER NOT NULL DEFAULT 0,
    estimated_hours DOUBLE PRECISION NOT NULL DEFAULT 0,
    actual_hours    DOUBLE PRECISION NOT NULL DEFAULT 0,
    due_date        TIMESTAMPTZ,
    start_date      TIMESTAMPTZ,
    end_date        TIMESTAMPTZ,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (user_id, id)
)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_user_project ON ` + tasksTable + ` (user_id, project_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_user_status ON ` + tasksTable + ` (user_id, status)`,
		`CREATE TABLE IF NOT EXISTS ` + projectsTable + ` (
    id          TEXT NOT NULL,
    user_id     TEXT NOT NULL,
    name        TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL DEFAULT 'active',
    color       TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (user_id, id)
)`,
		`CREATE TABLE IF NOT EXISTS ` + milestonesTable + ` (
    id         TEXT NOT NULL,
    user_id    TEXT NOT NULL,
    project_id TEXT NOT NULL,
    name       TEXT NOT NULL,
    due_date   TIMESTAMPTZ,
    completed  BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (user_id, id)
)`,
		`CREATE INDEX IF NOT EXISTS idx_milestones_user_project ON ` + milestonesTable + ` (user_id, project_id)`,
		`CREATE TABLE IF NOT EXISTS ` + settingsTable + ` (
    user_id              TEXT PRIMARY KEY,
    velocity_window_days INTEGER NOT NULL DEFAULT 7,
    show_done_tasks      BOOLEAN NOT NULL DEFAULT TRUE
)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

const taskColumns = `id, title, notes, project_id, status, priority, assignee, tags,
dependencies, progress, estimated_hours, actual_hours, due_date, start_date, end_date,
created_at, updated_at`

func scanTask(row pgx.Row) (domain.Task, error) {
	var t domain.Task
	err := row.Scan(&t.ID, &t.Title, &t.Notes, &t.ProjectID, &t.Status, &t.Priority,
		&t.Assignee, &t.Tags, &t.Dependencies, &t.Progress, &t.EstimatedHours,
		&t.ActualHours, &t.DueDate, &t.StartDate, &t.EndDate, &t.CreatedAt, &t.UpdatedAt)
	if err == pgx.ErrNoRows {
		return domain.Task{}, ErrNotFound
	}
	if err != nil {
		return domain.Task{}, err
	}
	t.Normalize()
	return t, nil
}

// ListTasks retrieves the user's tasks, optionally scoped to one project,
// in creation order.
func (s *Storage) ListTasks(ctx context.Context, userID string, filter TaskFilter) ([]domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM ` + tasksTable + ` WHERE user_id = $1`
	args := []any{userID}
	if filter.ProjectID != "" {
		query += ` AND project_id = $2`
		args = append(args, filter.ProjectID)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// GetTask retrieves one task by id.
func (s *Storage) GetTask(ctx context.Context, userID, id string) (domain.Task, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM `+tasksTable+` WHERE user_id = $1 AND id = $2`,
		userID, id)
	return scanTask(row)
}

// CreateTask persists a new task.
func (s *Storage) CreateTask(ctx context.Context, userID string, t domain.Task) (domain.Task, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO `+tasksTable+` (user_id, `+taskColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
RETURNING `+taskColumns,
		userID, t.ID, t.Title, t.Notes, t.ProjectID, t.Status, t.Priority, t.Assignee,
		t.Tags, t.Dependencies, t.Progress, t.EstimatedHours, t.ActualHours,
		t.DueDate, t.StartDate, t.EndDate, t.CreatedAt, t.UpdatedAt)
	return scanTask(row)
}

// UpdateTask replaces the mutable fields of an existing task.
func (s *Storage) UpdateTask(ctx context.Context, userID string, t domain.Task) (domain.Task, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE `+tasksTable+` SET title = $3, notes = $4, project_id = $5, status = $6,
priority = $7, assignee = $8, tags = $9, dependencies = $10, progress = $11,
estimated_hours = $12, actual_hours = $13, due_date = $14, start_date = $15,
end_date = $16, updated_at = $17
WHERE user_id = $1 AND id = $2
RETURNING `+taskColumns,
		userID, t.ID, t.Title, t.Notes, t.ProjectID, t.Status, t.Priority, t.Assignee,
		t.Tags, t.Dependencies, t.Progress, t.EstimatedHours, t.ActualHours,
		t.DueDate, t.StartDate, t.EndDate, t.UpdatedAt)
	return scanTask(row)
}

// UpdateTaskProgress writes just the progress field.
func (s *Storage) UpdateTaskProgress(ctx context.Context, userID, id string, progress int, now time.Time) (domain.Task, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE `+tasksTable+` SET progress = $3, updated_at = $4
WHERE user_id = $1 AND id = $2
RETURNING `+taskColumns,
		userID, id, progress, now)
	return scanTask(row)
}

// UpdateTaskSchedule writes just the schedule window.
func (s *Storage) UpdateTaskSchedule(ctx context.Context, userID, id string, start, end *time.Time, now time.Time) (domain.Task, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE `+tasksTable+` SET start_date = $3, end_date = $4, updated_at = $5
WHERE user_id = $1 AND id = $2
RETURNING `+taskColumns,
		userID, id, start, end, now)
	return scanTask(row)
}

// DeleteTask removes a task.
func (s *Storage) DeleteTask(ctx context.Context, userID, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM `+tasksTable+` WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const projectColumns = `id, name, description, status, color, created_at, updated_at`

func scanProject(row pgx.Row) (domain.Project, error) {
	var p domain.Project
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Status, &p.Color, &p.CreatedAt, &p.UpdatedAt)
	if err == pgx.ErrNoRows {
		return domain.Project{}, ErrNotFound
	}
	if err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// ListProjects retrieves the user's projects in creation order.
func (s *Storage) ListProjects(ctx context.Context, userID string) ([]domain.Project, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+projectColumns+` FROM `+projectsTable+` WHERE user_id = $1 ORDER BY created_at, id`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	projects := []domain.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// CreateProject persists a new project.
func (s *Storage) CreateProject(ctx context.Context, userID string, p domain.Project) (domain.Project, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO `+projectsTable+` (user_id, `+projectColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+projectColumns,
		userID, p.ID, p.Name, p.Description, p.Status, p.Color, p.CreatedAt, p.UpdatedAt)
	return scanProject(row)
}

// UpdateProject replaces the mutable fields of an existing project.
func (s *Storage) UpdateProject(ctx context.Context, userID string, p domain.Project) (domain.Project, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE `+projectsTable+` SET name = $3, description = $4, status = $5, color = $6, updated_at = $7
WHERE user_id = $1 AND id = $2
RETURNING `+projectColumns,
		userID, p.ID, p.Name, p.Description, p.Status, p.Color, p.UpdatedAt)
	return scanProject(row)
}

// DeleteProject removes a project. Tasks keep their projectId; dangling
// references are tolerated throughout the read path.
func (s *Storage) DeleteProject(ctx context.Context, userID, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM `+projectsTable+` WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const milestoneColumns = `id, project_id, name, due_date, completed, created_at, updated_at`

func scanMilestone(row pgx.Row) (domain.Milestone, error) {
	var m domain.Milestone
	err := row.Scan(&m.ID, &m.ProjectID, &m.Name, &m.DueDate, &m.Completed, &m.CreatedAt, &m.UpdatedAt)
	if err == pgx.ErrNoRows {
		return domain.Milestone{}, ErrNotFound
	}
	if err != nil {
		return domain.Milestone{}, err
	}
	return m, nil
}

// ListMilestones retrieves the user's milestones, optionally scoped to one
// project, in creation order.
func (s *Storage) ListMilestones(ctx context.Context, userID string, filter MilestoneFilter) ([]domain.Milestone, error) {
	query := `SELECT ` + milestoneColumns + ` FROM ` + milestonesTable + ` WHERE user_id = $1`
	args := []any{userID}
	if filter.ProjectID != "" {
		query += ` AND project_id = $2`
		args = append(args, filter.ProjectID)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	milestones := []domain.Milestone{}
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		milestones = append(milestones, m)
	}
	return milestones, rows.Err()
}

// CreateMilestone persists a new milestone.
func (s *Storage) CreateMilestone(ctx context.Context, userID string, m domain.Milestone) (domain.Milestone, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO `+milestonesTable+` (user_id, `+milestoneColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+milestoneColumns,
		userID, m.ID, m.ProjectID, m.Name, m.DueDate, m.Completed, m.CreatedAt, m.UpdatedAt)
	return scanMilestone(row)
}

// FetchSettings returns the user's settings, defaults when none are stored.
func (s *Storage) FetchSettings(ctx context.Context, userID string) (domain.Settings, error) {
	var st domain.Settings
	err := s.pool.QueryRow(ctx,
		`SELECT velocity_window_days, show_done_tasks FROM `+settingsTable+` WHERE user_id = $1`,
		userID).Scan(&st.VelocityWindowDays, &st.ShowDoneTasks)
	if err == pgx.ErrNoRows {
		return DefaultSettings(), nil
	}
	if err != nil {
		return domain.Settings{}, err
	}
	return st, nil
}

// SaveSettings upserts the user's settings.
func (s *Storage) SaveSettings(ctx context.Context, userID string, st domain.Settings) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+settingsTable+` (user_id, velocity_window_days, show_done_tasks)
VALUES ($1, $2, $3)
ON CONFLICT (user_id) DO UPDATE SET velocity_window_days = $2, show_done_tasks = $3`,
		userID, st.VelocityWindowDays, st.ShowDoneTasks)
	return err
}

// DefaultSettings are used for users who never saved any.
func DefaultSettings() domain.Settings {
	return domain.Settings{VelocityWindowDays: 7, ShowDoneTasks: true}
}
