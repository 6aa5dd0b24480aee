package storage

import (
	"context"
	"reflect"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"horizon-api/domain"
)

// countingBackend wraps a real backend and counts list reads so tests can
// tell cache hits from misses.
type countingBackend struct {
	Backend
	listTasksCalls    int
	listProjectsCalls int
}

func (c *countingBackend) ListTasks(ctx context.Context, userID string, filter TaskFilter) ([]domain.Task, error) {
	c.listTasksCalls++
	return c.Backend.ListTasks(ctx, userID, filter)
}

func (c *countingBackend) ListProjects(ctx context.Context, userID string) ([]domain.Project, error) {
	c.listProjectsCalls++
	return c.Backend.ListProjects(ctx, userID)
}

func newCacheFixture(t *testing.T, ttl time.Duration) (*Cache, *countingBackend, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	base := &countingBackend{Backend: NewMemory()}
	return NewCache(base, client, ttl), base, mr
}

func TestCacheListTasksMissThenHit(t *testing.T) {
	cache, base, mr := newCacheFixture(t, time.Minute)
	ctx := context.Background()
	userID := "user-1"

	seeded, err := cache.CreateTask(ctx, userID, domain.Task{ID: "t1", Title: "Write code"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	tasks, err := cache.ListTasks(ctx, userID, TaskFilter{})
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != seeded.ID {
		t.Fatalf("unexpected tasks: %#v", tasks)
	}
	if base.listTasksCalls != 1 {
		t.Fatalf("expected 1 backend call, got %d", base.listTasksCalls)
	}
	if ttl := mr.TTL(tasksCacheKey(userID)); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected TTL: %v", ttl)
	}

	cached, err := cache.ListTasks(ctx, userID, TaskFilter{})
	if err != nil {
		t.Fatalf("list cached tasks: %v", err)
	}
	if !reflect.DeepEqual(cached, tasks) {
		t.Fatalf("cached list differs: %#v vs %#v", cached, tasks)
	}
	if base.listTasksCalls != 1 {
		t.Fatalf("expected cached list to avoid backend, calls=%d", base.listTasksCalls)
	}
}

func TestCacheFilteredListBypassesCache(t *testing.T) {
	cache, base, _ := newCacheFixture(t, time.Minute)
	ctx := context.Background()
	userID := "user-1"

	if _, err := cache.CreateTask(ctx, userID, domain.Task{ID: "t1", Title: "a", ProjectID: "p1"}); err != nil {
		t.Fatalf("create task: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := cache.ListTasks(ctx, userID, TaskFilter{ProjectID: "p1"}); err != nil {
			t.Fatalf("filtered list: %v", err)
		}
	}
	if base.listTasksCalls != 2 {
		t.Fatalf("filtered lists must always hit the backend, calls=%d", base.listTasksCalls)
	}
}

func TestCacheWritesEvictTaskList(t *testing.T) {
	cache, base, _ := newCacheFixture(t, time.Minute)
	ctx := context.Background()
	userID := "user-1"

	if _, err := cache.CreateTask(ctx, userID, domain.Task{ID: "t1", Title: "a"}); err != nil {
		t.Fatalf("create task: %v", err)
	}
	if _, err := cache.ListTasks(ctx, userID, TaskFilter{}); err != nil {
		t.Fatalf("warm cache: %v", err)
	}

	now := time.Now()
	if _, err := cache.UpdateTaskProgress(ctx, userID, "t1", 80, now); err != nil {
		t.Fatalf("update progress: %v", err)
	}

	tasks, err := cache.ListTasks(ctx, userID, TaskFilter{})
	if err != nil {
		t.Fatalf("list after write: %v", err)
	}
	if tasks[0].Progress != 80 {
		t.Fatalf("stale progress after eviction: %+v", tasks[0])
	}
	if base.listTasksCalls != 2 {
		t.Fatalf("expected post-write list to hit the backend, calls=%d", base.listTasksCalls)
	}
}

func TestCacheProjectEviction(t *testing.T) {
	cache, base, _ := newCacheFixture(t, time.Minute)
	ctx := context.Background()
	userID := "user-1"

	if _, err := cache.CreateProject(ctx, userID, domain.Project{ID: "p1", Name: "alpha", Status: domain.ProjectActive}); err != nil {
		t.Fatalf("create project: %v", err)
	}
	if _, err := cache.ListProjects(ctx, userID); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	if _, err := cache.ListProjects(ctx, userID); err != nil {
		t.Fatalf("cached list: %v", err)
	}
	if base.listProjectsCalls != 1 {
		t.Fatalf("expected cache hit, calls=%d", base.listProjectsCalls)
	}

	if _, err := cache.UpdateProject(ctx, userID, domain.Project{ID: "p1", Name: "beta", Status: domain.ProjectActive}); err != nil {
		t.Fatalf("update project: %v", err)
	}
	projects, err := cache.ListProjects(ctx, userID)
	if err != nil {
		t.Fatalf("list after write: %v", err)
	}
	if projects[0].Name != "beta" {
		t.Fatalf("stale project after eviction: %+v", projects[0])
	}
}

func TestCacheCorruptEntryFallsBack(t *testing.T) {
	cache, base, mr := newCacheFixture(t, time.Minute)
	ctx := context.Background()
	userID := "user-1"

	if _, err := cache.CreateTask(ctx, userID, domain.Task{ID: "t1", Title: "a"}); err != nil {
		t.Fatalf("create task: %v", err)
	}
	if err := mr.Set(tasksCacheKey(userID), "{not json"); err != nil {
		t.Fatalf("seed corrupt entry: %v", err)
	}

	tasks, err := cache.ListTasks(ctx, userID, TaskFilter{})
	if err != nil {
		t.Fatalf("list with corrupt cache: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected backend fallback, got %#v", tasks)
	}
	if base.listTasksCalls != 1 {
		t.Fatalf("expected 1 backend call, got %d", base.listTasksCalls)
	}
}

func TestCacheNilRedisPassesThrough(t *testing.T) {
	base := &countingBackend{Backend: NewMemory()}
	cache := NewCache(base, nil, time.Minute)
	ctx := context.Background()

	if _, err := cache.CreateTask(ctx, "u", domain.Task{ID: "t1", Title: "a"}); err != nil {
		t.Fatalf("create task: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := cache.ListTasks(ctx, "u", TaskFilter{}); err != nil {
			t.Fatalf("list tasks: %v", err)
		}
	}
	if base.listTasksCalls != 2 {
		t.Fatalf("nil redis must pass every read through, calls=%d", base.listTasksCalls)
	}
}
