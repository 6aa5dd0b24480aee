package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"horizon-api/domain"
	"horizon-api/storage"
)

// mockStore wraps the in-memory store so individual tests can force a
// failure without re-implementing the whole interface.
type mockStore struct {
	*storage.Memory
	err error
}

func (m *mockStore) ListTasks(ctx context.Context, userID string, filter storage.TaskFilter) ([]domain.Task, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.Memory.ListTasks(ctx, userID, filter)
}

func (m *mockStore) ListProjects(ctx context.Context, userID string) ([]domain.Project, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.Memory.ListProjects(ctx, userID)
}

func newMockStore() *mockStore {
	return &mockStore{Memory: storage.NewMemory()}
}

type mockAuth struct{}

func (mockAuth) UserIDFromAuthHeader(string) (string, error) { return "user", nil }

type rejectAuth struct{}

func (rejectAuth) UserIDFromAuthHeader(string) (string, error) {
	return "", errMissingAuthorization
}

// mockDeduper records keys in a map; addErr simulates a Redis outage.
type mockDeduper struct {
	seen   map[string]bool
	addErr error
}

func newMockDeduper() *mockDeduper {
	return &mockDeduper{seen: map[string]bool{}}
}

func (d *mockDeduper) Add(_ context.Context, userID, key string) (bool, error) {
	if d.addErr != nil {
		return false, d.addErr
	}
	full := userID + ":" + key
	if d.seen[full] {
		return false, nil
	}
	d.seen[full] = true
	return true, nil
}

func (d *mockDeduper) Remove(_ context.Context, userID, key string) error {
	delete(d.seen, userID+":"+key)
	return nil
}

func newRequestContext(t *testing.T, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func seedTask(t *testing.T, store Storage, task domain.Task) domain.Task {
	t.Helper()
	task.Normalize()
	created, err := store.CreateTask(context.Background(), "user", task)
	if err != nil {
		t.Fatalf("seed task: %v", err)
	}
	return created
}

func TestListTasksReturnsTasks(t *testing.T) {
	store := newMockStore()
	seedTask(t, store, domain.Task{ID: "t1", Title: "write report"})
	c, rec := newRequestContext(t, http.MethodGet, "/api/tasks", "")

	if err := listTasks(store, mockAuth{})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var tasks []domain.Task
	if err := sonic.Unmarshal(rec.Body.Bytes(), &tasks); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "t1" {
		t.Fatalf("unexpected tasks: %#v", tasks)
	}
}

func TestListTasksFiltersByProject(t *testing.T) {
	store := newMockStore()
	seedTask(t, store, domain.Task{ID: "t1", Title: "a", ProjectID: "p1"})
	seedTask(t, store, domain.Task{ID: "t2", Title: "b", ProjectID: "p2"})
	c, rec := newRequestContext(t, http.MethodGet, "/api/tasks?projectId=p2", "")

	if err := listTasks(store, mockAuth{})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	var tasks []domain.Task
	if err := sonic.Unmarshal(rec.Body.Bytes(), &tasks); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "t2" {
		t.Fatalf("expected only project p2 tasks, got %#v", tasks)
	}
}

func TestListTasksUnauthorized(t *testing.T) {
	c, rec := newRequestContext(t, http.MethodGet, "/api/tasks", "")

	if err := listTasks(newMockStore(), rejectAuth{})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 got %d", rec.Code)
	}
}

func TestListTasksStoreFailure(t *testing.T) {
	store := newMockStore()
	store.err = errors.New("connection refused")
	c, rec := newRequestContext(t, http.MethodGet, "/api/tasks", "")

	if err := listTasks(store, mockAuth{})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500 got %d", rec.Code)
	}
}

func TestCreateTaskGeneratesIDAndTimestamps(t *testing.T) {
	store := newMockStore()
	c, rec := newRequestContext(t, http.MethodPost, "/api/tasks", `{"title":"write report"}`)

	if err := createTask(store, mockAuth{})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201 got %d", rec.Code)
	}
	var created domain.Task
	if err := sonic.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected server-generated id")
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Fatal("expected timestamps to be set")
	}
	if created.Status != domain.StatusTodo {
		t.Fatalf("expected default status todo, got %q", created.Status)
	}
}

func TestCreateTaskRejectsInvalidStatus(t *testing.T) {
	c, rec := newRequestContext(t, http.MethodPost, "/api/tasks", `{"title":"x","status":"paused"}`)

	if err := createTask(newMockStore(), mockAuth{})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
}

func TestCreateTaskRejectsUnknownFields(t *testing.T) {
	c, rec := newRequestContext(t, http.MethodPost, "/api/tasks", `{"title":"x","bogus":true}`)

	if err := createTask(newMockStore(), mockAuth{})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/tasks/missing", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("missing")

	if err := getTask(newMockStore(), mockAuth{})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 got %d", rec.Code)
	}
}

func progressContext(t *testing.T, taskID, body, idempotencyKey string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	c, rec := newRequestContext(t, http.MethodPatch, "/api/tasks/"+taskID+"/progress", body)
	if idempotencyKey != "" {
		c.Request().Header.Set(headerIdempotencyKey, idempotencyKey)
	}
	c.SetParamNames("id")
	c.SetParamValues(taskID)
	return c, rec
}

func TestUpdateTaskProgress(t *testing.T) {
	store := newMockStore()
	task := seedTask(t, store, domain.Task{ID: "t1", Title: "x"})
	c, rec := progressContext(t, task.ID, `{"progress":80}`, "")

	if err := updateTaskProgress(store, mockAuth{}, nil)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var updated domain.Task
	if err := sonic.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if updated.Progress != 80 {
		t.Fatalf("expected progress 80, got %d", updated.Progress)
	}
}

func TestUpdateTaskProgressRejectsOutOfRange(t *testing.T) {
	for _, body := range []string{`{"progress":-1}`, `{"progress":101}`, `{}`} {
		c, rec := progressContext(t, "t1", body, "")
		if err := updateTaskProgress(newMockStore(), mockAuth{}, nil)(c); err != nil {
			t.Fatalf("handler returned error: %v", err)
		}
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected status 400 got %d", body, rec.Code)
		}
	}
}

func TestUpdateTaskProgressReplaySkipsWrite(t *testing.T) {
	store := newMockStore()
	task := seedTask(t, store, domain.Task{ID: "t1", Title: "x"})
	deduper := newMockDeduper()

	c, rec := progressContext(t, task.ID, `{"progress":80}`, "key-1")
	if err := updateTaskProgress(store, mockAuth{}, deduper)(c); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: expected 200 got %d", rec.Code)
	}

	c, rec = progressContext(t, task.ID, `{"progress":30}`, "key-1")
	if err := updateTaskProgress(store, mockAuth{}, deduper)(c); err != nil {
		t.Fatalf("replayed request: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("replayed request: expected 200 got %d", rec.Code)
	}

	stored, err := store.GetTask(context.Background(), "user", task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if stored.Progress != 80 {
		t.Fatalf("expected replay to be skipped, progress is %d", stored.Progress)
	}
}

func TestUpdateTaskProgressDeduperOutageDoesNotBlock(t *testing.T) {
	store := newMockStore()
	task := seedTask(t, store, domain.Task{ID: "t1", Title: "x"})
	deduper := newMockDeduper()
	deduper.addErr = errors.New("redis down")

	c, rec := progressContext(t, task.ID, `{"progress":55}`, "key-1")
	if err := updateTaskProgress(store, mockAuth{}, deduper)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	stored, err := store.GetTask(context.Background(), "user", task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if stored.Progress != 55 {
		t.Fatalf("expected write to proceed, progress is %d", stored.Progress)
	}
}

func scheduleContext(t *testing.T, taskID, body, idempotencyKey string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	c, rec := newRequestContext(t, http.MethodPatch, "/api/tasks/"+taskID+"/schedule", body)
	if idempotencyKey != "" {
		c.Request().Header.Set(headerIdempotencyKey, idempotencyKey)
	}
	c.SetParamNames("id")
	c.SetParamValues(taskID)
	return c, rec
}

func TestUpdateTaskSchedule(t *testing.T) {
	store := newMockStore()
	task := seedTask(t, store, domain.Task{ID: "t1", Title: "x"})
	body := `{"startDate":"2026-03-01T00:00:00Z","endDate":"2026-03-05T00:00:00Z"}`
	c, rec := scheduleContext(t, task.ID, body, "")

	if err := updateTaskSchedule(store, mockAuth{}, nil)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var updated domain.Task
	if err := sonic.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if updated.StartDate == nil || updated.EndDate == nil {
		t.Fatalf("expected both dates set, got %#v", updated)
	}
	if !updated.EndDate.Equal(time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected end date: %v", updated.EndDate)
	}
}

func TestUpdateTaskScheduleRejectsInvertedRange(t *testing.T) {
	body := `{"startDate":"2026-03-05T00:00:00Z","endDate":"2026-03-01T00:00:00Z"}`
	c, rec := scheduleContext(t, "t1", body, "")

	if err := updateTaskSchedule(newMockStore(), mockAuth{}, nil)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
}

func TestUpdateTaskScheduleRollsBackKeyOnStoreError(t *testing.T) {
	store := newMockStore()
	deduper := newMockDeduper()
	body := `{"startDate":"2026-03-01T00:00:00Z"}`

	c, rec := scheduleContext(t, "missing", body, "key-1")
	if err := updateTaskSchedule(store, mockAuth{}, deduper)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 got %d", rec.Code)
	}

	added, err := deduper.Add(context.Background(), "user", "key-1")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !added {
		t.Fatal("expected key to be rolled back so the client may retry")
	}
}

func TestGetSettingsDefaults(t *testing.T) {
	c, rec := newRequestContext(t, http.MethodGet, "/api/settings", "")

	if err := getSettings(newMockStore(), mockAuth{})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var s domain.Settings
	if err := sonic.Unmarshal(rec.Body.Bytes(), &s); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if s != storage.DefaultSettings() {
		t.Fatalf("unexpected settings: %#v", s)
	}
}

func TestPutSettingsRejectsNonPositiveWindow(t *testing.T) {
	c, rec := newRequestContext(t, http.MethodPut, "/api/settings", `{"velocityWindowDays":0,"displayDoneTasks":true}`)

	if err := putSettings(newMockStore(), mockAuth{})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
}

func TestGanttEndpointComputesLayout(t *testing.T) {
	store := newMockStore()
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 4)
	seedTask(t, store, domain.Task{ID: "t1", Title: "a", StartDate: &start, EndDate: &end})
	c, rec := newRequestContext(t, http.MethodGet, "/api/gantt", "")

	if err := getGantt(store, mockAuth{}, log.New())(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var resp ganttResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(resp.Rows) != 1 {
		t.Fatalf("expected one row, got %#v", resp.Rows)
	}
	if resp.Rows[0].WidthPx == 0 {
		t.Fatal("expected a positive bar width")
	}
	if _, ok := resp.Dependencies["t1"]; !ok {
		t.Fatal("expected adjacency entry for t1")
	}
}

func TestGanttEndpointRejectsPartialBounds(t *testing.T) {
	c, rec := newRequestContext(t, http.MethodGet, "/api/gantt?start=2026-03-01", "")

	if err := getGantt(newMockStore(), mockAuth{}, log.New())(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
}

func TestDashboardEndpoint(t *testing.T) {
	store := newMockStore()
	seedTask(t, store, domain.Task{ID: "t1", Title: "a", Status: domain.StatusDone})
	seedTask(t, store, domain.Task{ID: "t2", Title: "b"})
	c, rec := newRequestContext(t, http.MethodGet, "/api/dashboard", "")

	if err := getDashboard(store, mockAuth{}, log.New())(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var resp dashboardResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Overview.TotalTasks != 2 || resp.Overview.CompletedTasks != 1 {
		t.Fatalf("unexpected overview: %#v", resp.Overview)
	}
	if resp.Overview.CompletionRate != 50.0 {
		t.Fatalf("unexpected completion rate: %v", resp.Overview.CompletionRate)
	}
	if resp.GeneratedAt.IsZero() {
		t.Fatal("expected generatedAt to be set")
	}
}

func TestHealthz(t *testing.T) {
	c, rec := newRequestContext(t, http.MethodGet, "/healthz", "")

	if err := healthz(newMockStore())(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
}
