package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"horizon-api/domain"
)

// Backend is the persistence contract the cache wraps. Both the Postgres and
// in-memory stores satisfy it.
type Backend interface {
	Ping(ctx context.Context) error

	ListTasks(ctx context.Context, userID string, filter TaskFilter) ([]domain.Task, error)
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

	ListMilestones(ctx context.Context, userID string, filter MilestoneFilter) ([]domain.Milestone, error)
	CreateMilestone(ctx context.Context, userID string, m domain.Milestone) (domain.Milestone, error)

	FetchSettings(ctx context.Context, userID string) (domain.Settings, error)
	SaveSettings(ctx context.Context, userID string, st domain.Settings) error
}

// Cache wraps a Backend with Redis-backed caching for the list reads the
// dashboard and gantt routes hammer. Every write through the cache evicts the
// user's cached lists, so derived computations always see post-write state.
type Cache struct {
	Backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base Backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{Backend: base, redis: client, ttl: ttl}
}

// ListTasks serves unfiltered task lists from Redis when possible. Filtered
// lists bypass the cache: they are a small minority of reads and caching
// every filter combination is not worth the eviction bookkeeping.
func (c *Cache) ListTasks(ctx context.Context, userID string, filter TaskFilter) ([]domain.Task, error) {
	if filter.ProjectID != "" {
		return c.Backend.ListTasks(ctx, userID, filter)
	}
	if tasks, ok := loadCached[[]domain.Task](ctx, c, tasksCacheKey(userID)); ok {
		return tasks, nil
	}
	tasks, err := c.Backend.ListTasks(ctx, userID, filter)
	if err != nil {
		return nil, err
	}
	c.store(ctx, tasksCacheKey(userID), tasks)
	return tasks, nil
}

// ListProjects serves project lists from Redis when possible.
func (c *Cache) ListProjects(ctx context.Context, userID string) ([]domain.Project, error) {
	if projects, ok := loadCached[[]domain.Project](ctx, c, projectsCacheKey(userID)); ok {
		return projects, nil
	}
	projects, err := c.Backend.ListProjects(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, projectsCacheKey(userID), projects)
	return projects, nil
}

func (c *Cache) CreateTask(ctx context.Context, userID string, t domain.Task) (domain.Task, error) {
	created, err := c.Backend.CreateTask(ctx, userID, t)
	if err != nil {
		return domain.Task{}, err
	}
	c.evictTasks(ctx, userID)
	return created, nil
}

func (c *Cache) UpdateTask(ctx context.Context, userID string, t domain.Task) (domain.Task, error) {
	updated, err := c.Backend.UpdateTask(ctx, userID, t)
	if err != nil {
		return domain.Task{}, err
	}
	c.evictTasks(ctx, userID)
	return updated, nil
}

func (c *Cache) UpdateTaskProgress(ctx context.Context, userID, id string, progress int, now time.Time) (domain.Task, error) {
	updated, err := c.Backend.UpdateTaskProgress(ctx, userID, id, progress, now)
	if err != nil {
		return domain.Task{}, err
	}
	c.evictTasks(ctx, userID)
	return updated, nil
}

func (c *Cache) UpdateTaskSchedule(ctx context.Context, userID, id string, start, end *time.Time, now time.Time) (domain.Task, error) {
	updated, err := c.Backend.UpdateTaskSchedule(ctx, userID, id, start, end, now)
	if err != nil {
		return domain.Task{}, err
	}
	c.evictTasks(ctx, userID)
	return updated, nil
}

func (c *Cache) DeleteTask(ctx context.Context, userID, id string) error {
	if err := c.Backend.DeleteTask(ctx, userID, id); err != nil {
		return err
	}
	c.evictTasks(ctx, userID)
	return nil
}

func (c *Cache) CreateProject(ctx context.Context, userID string, p domain.Project) (domain.Project, error) {
	created, err := c.Backend.CreateProject(ctx, userID, p)
	if err != nil {
		return domain.Project{}, err
	}
	c.evictProjects(ctx, userID)
	return created, nil
}

func (c *Cache) UpdateProject(ctx context.Context, userID string, p domain.Project) (domain.Project, error) {
	updated, err := c.Backend.UpdateProject(ctx, userID, p)
	if err != nil {
		return domain.Project{}, err
	}
	c.evictProjects(ctx, userID)
	return updated, nil
}

func (c *Cache) DeleteProject(ctx context.Context, userID, id string) error {
	if err := c.Backend.DeleteProject(ctx, userID, id); err != nil {
		return err
	}
	c.evictProjects(ctx, userID)
	return nil
}

func loadCached[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var zero T
	if c.redis == nil {
		return zero, false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return zero, false
	}
	var out T
	if err := sonic.Unmarshal(data, &out); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return zero, false
	}
	return out, true
}

func (c *Cache) store(ctx context.Context, key string, value any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(value)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) evictTasks(ctx context.Context, userID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, tasksCacheKey(userID)).Result()
}

func (c *Cache) evictProjects(ctx context.Context, userID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, projectsCacheKey(userID)).Result()
}

func tasksCacheKey(userID string) string {
	return "tasks:" + userID
}

func projectsCacheKey(userID string) string {
	return "projects:" + userID
}
