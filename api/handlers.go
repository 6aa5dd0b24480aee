package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"horizon-api/domain"
	"horizon-api/storage"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Storage, auth Authenticator, deduper Deduper, logger *log.Logger) {
	e.GET("/api/tasks", listTasks(store, auth))
	e.POST("/api/tasks", createTask(store, auth))
	e.GET("/api/tasks/:id", getTask(store, auth))
	e.PUT("/api/tasks/:id", updateTask(store, auth))
	e.DELETE("/api/tasks/:id", deleteTask(store, auth))
	e.PATCH("/api/tasks/:id/progress", updateTaskProgress(store, auth, deduper))
	e.PATCH("/api/tasks/:id/schedule", updateTaskSchedule(store, auth, deduper))

	e.GET("/api/projects", listProjects(store, auth))
	e.POST("/api/projects", createProject(store, auth))
	e.PUT("/api/projects/:id", updateProject(store, auth))
	e.DELETE("/api/projects/:id", deleteProject(store, auth))

	e.GET("/api/milestones", listMilestones(store, auth))
	e.POST("/api/milestones", createMilestone(store, auth))

	e.GET("/api/settings", getSettings(store, auth))
	e.PUT("/api/settings", putSettings(store, auth))

	e.GET("/api/gantt", getGantt(store, auth, logger))
	e.GET("/api/dashboard", getDashboard(store, auth, logger))
	e.GET("/api/analytics/overview", getOverview(store, auth))
	e.GET("/api/analytics/risks", getRisks(store, auth))
	e.GET("/api/analytics/resources", getResources(store, auth))
	e.GET("/api/analytics/efficiency", getEfficiency(store, auth))
	e.GET("/api/analytics/agile", getAgile(store, auth))

	e.GET("/healthz", healthz(store))
}

func healthz(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := store.Ping(c.Request().Context()); err != nil {
			return c.String(http.StatusServiceUnavailable, err.Error())
		}
		return c.NoContent(http.StatusOK)
	}
}

// authenticate resolves the requesting user or writes a 401. The bool
// reports success.
func authenticate(c echo.Context, auth Authenticator) (string, bool) {
	userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		_ = c.String(http.StatusUnauthorized, err.Error())
		return "", false
	}
	return userID, true
}

// writeError maps the error taxonomy onto status codes: validation failures
// are 400, missing records 404, anything from the store 500 unchanged.
func writeError(c echo.Context, err error) error {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: ve.Error()})
	case errors.Is(err, storage.ErrNotFound):
		return c.JSON(http.StatusNotFound, errorResponse{Error: "not found"})
	default:
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func decodeBody(c echo.Context, dst any) bool {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		_ = c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		return false
	}
	return true
}

func listTasks(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := authenticate(c, auth)
		if !ok {
			return nil
		}
		filter := storage.TaskFilter{ProjectID: c.QueryParam("projectId")}
		tasks, err := store.ListTasks(c.Request().Context(), userID, filter)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, tasks)
	}
}

func getTask(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := authenticate(c, auth)
		if !ok {
			return nil
		}
		task, err := store.GetTask(c.Request().Context(), userID, c.Param("id"))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, task)
	}
}

func createTask(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := authenticate(c, auth)
		if !ok {
			return nil
		}
		var task domain.Task
		if !decodeBody(c, &task) {
			return nil
		}
		task.Normalize()
		if err := task.Validate(); err != nil {
			return writeError(c, err)
		}
		if task.ID == "" {
			task.ID = uuid.NewString()
		}
		now := time.Now().UTC()
		task.CreatedAt = now
		task.UpdatedAt = now

		created, err := store.CreateTask(c.Request().Context(), userID, task)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusCreated, created)
	}
}

func updateTask(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := authenticate(c, auth)
		if !ok {
			return nil
		}
		var task domain.Task
		if !decodeBody(c, &task) {
			return nil
		}
		task.ID = c.Param("id")
		task.Normalize()
		if err := task.Validate(); err != nil {
			return writeError(c, err)
		}
		task.UpdatedAt = time.Now().UTC()

		updated, err := store.UpdateTask(c.Request().Context(), userID, task)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, updated)
	}
}

func deleteTask(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := authenticate(c, auth)
		if !ok {
			return nil
		}
		if err := store.DeleteTask(c.Request().Context(), userID, c.Param("id")); err != nil {
			return writeError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

// checkIdempotency consumes the Idempotency-Key header when present. It
// reports whether the mutation should proceed; a replayed key short-circuits
// with 200 so retried requests stay safe.
func checkIdempotency(c echo.Context, deduper Deduper, userID string) (proceed bool, key string) {
	key = c.Request().Header.Get(headerIdempotencyKey)
	if deduper == nil || key == "" {
		return true, ""
	}
	added, err := deduper.Add(c.Request().Context(), userID, key)
	if err != nil {
		// Dedup is best effort: a Redis hiccup must not block writes.
		c.Logger().Warnf("idempotency check failed: %v", err)
		return true, ""
	}
	if !added {
		_ = c.NoContent(http.StatusOK)
		return false, key
	}
	return true, key
}

func rollbackIdempotency(c echo.Context, deduper Deduper, userID, key string) {
	if deduper == nil || key == "" {
		return
	}
	if err := deduper.Remove(context.Background(), userID, key); err != nil {
		c.Logger().Errorf("idempotency rollback failed: %v", err)
	}
}

func updateTaskProgress(store Storage, auth Authenticator, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := authenticate(c, auth)
		if !ok {
			return nil
		}
		var req progressRequest
		if !decodeBody(c, &req) {
			return nil
		}
		if req.Progress == nil {
			return writeError(c, &domain.ValidationError{Field: "progress", Reason: "is required"})
		}
		if *req.Progress < 0 || *req.Progress > 100 {
			return writeError(c, &domain.ValidationError{Field: "progress", Reason: "must be between 0 and 100"})
		}

		proceed, key := checkIdempotency(c, deduper, userID)
		if !proceed {
			return nil
		}
		updated, err := store.UpdateTaskProgress(c.Request().Context(), userID, c.Param("id"), *req.Progress, time.Now().UTC())
		if err != nil {
			rollbackIdempotency(c, deduper, userID, key)
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, updated)
	}
}

func updateTaskSchedule(store Storage, auth Authenticator, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := authenticate(c, auth)
		if !ok {
			return nil
		}
		var req scheduleRequest
		if !decodeBody(c, &req) {
			return nil
		}
		if req.StartDate != nil && req.EndDate != nil && req.EndDate.Before(*req.StartDate) {
			return writeError(c, &domain.ValidationError{Field: "endDate", Reason: "must not precede startDate"})
		}

		proceed, key := checkIdempotency(c, deduper, userID)
		if !proceed {
			return nil
		}
		updated, err := store.UpdateTaskSchedule(c.Request().Context(), userID, c.Param("id"), req.StartDate, req.EndDate, time.Now().UTC())
		if err != nil {
			rollbackIdempotency(c, deduper, userID, key)
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, updated)
	}
}

func listProjects(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := authenticate(c, auth)
		if !ok {
			return nil
		}
		projects, err := store.ListProjects(c.Request().Context(), userID)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, projects)
	}
}

func createProject(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := authenticate(c, auth)
		if !ok {
			return nil
		}
		var project domain.Project
		if !decodeBody(c, &project) {
			return nil
		}
		if project.Status == "" {
			project.Status = domain.ProjectActive
		}
		if err := project.Validate(); err != nil {
			return writeError(c, err)
		}
		if project.ID == "" {
			project.ID = uuid.NewString()
		}
		now := time.Now().UTC()
		project.CreatedAt = now
		project.UpdatedAt = now

		created, err := store.CreateProject(c.Request().Context(), userID, project)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusCreated, created)
	}
}

func updateProject(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := authenticate(c, auth)
		if !ok {
			return nil
		}
		var project domain.Project
		if !decodeBody(c, &project) {
			return nil
		}
		project.ID = c.Param("id")
		if project.Status == "" {
			project.Status = domain.ProjectActive
		}
		if err := project.Validate(); err != nil {
			return writeError(c, err)
		}
		project.UpdatedAt = time.Now().UTC()

		updated, err := store.UpdateProject(c.Request().Context(), userID, project)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, updated)
	}
}

func deleteProject(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := authenticate(c, auth)
		if !ok {
			return nil
		}
		if err := store.DeleteProject(c.Request().Context(), userID, c.Param("id")); err != nil {
			return writeError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func listMilestones(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := authenticate(c, auth)
		if !ok {
			return nil
		}
		filter := storage.MilestoneFilter{ProjectID: c.QueryParam("projectId")}
		milestones, err := store.ListMilestones(c.Request().Context(), userID, filter)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, milestones)
	}
}

func createMilestone(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := authenticate(c, auth)
		if !ok {
			return nil
		}
		var milestone domain.Milestone
		if !decodeBody(c, &milestone) {
			return nil
		}
		if err := milestone.Validate(); err != nil {
			return writeError(c, err)
		}
		if milestone.ID == "" {
			milestone.ID = uuid.NewString()
		}
		now := time.Now().UTC()
		milestone.CreatedAt = now
		milestone.UpdatedAt = now

		created, err := store.CreateMilestone(c.Request().Context(), userID, milestone)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusCreated, created)
	}
}

func getSettings(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := authenticate(c, auth)
		if !ok {
			return nil
		}
		settings, err := store.FetchSettings(c.Request().Context(), userID)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, settings)
	}
}

func putSettings(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := authenticate(c, auth)
		if !ok {
			return nil
		}
		var settings domain.Settings
		if !decodeBody(c, &settings) {
			return nil
		}
		if settings.VelocityWindowDays <= 0 {
			return writeError(c, &domain.ValidationError{Field: "velocityWindowDays", Reason: "must be positive"})
		}
		if err := store.SaveSettings(c.Request().Context(), userID, settings); err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, settings)
	}
}
