package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"horizon-api/analytics"
	"horizon-api/domain"
	"horizon-api/storage"
)

type dashboardResponse struct {
	Overview    analytics.Overview            `json:"overview"`
	Risks       analytics.RiskAnalysis        `json:"risks"`
	Resources   analytics.ResourceUtilization `json:"resources"`
	Efficiency  analytics.EfficiencyStats     `json:"efficiency"`
	Agile       analytics.AgileMetrics        `json:"agile"`
	Milestones  []domain.Milestone            `json:"milestones"`
	GeneratedAt time.Time                     `json:"generatedAt"`
}

// engineFor builds an analytics engine honoring the user's velocity window.
// Settings failures fall back to the default window rather than failing the
// whole dashboard.
func engineFor(ctx context.Context, store Storage, userID string) *analytics.Engine {
	settings, err := store.FetchSettings(ctx, userID)
	if err != nil {
		return analytics.NewEngine()
	}
	return analytics.NewEngine(analytics.WithVelocityWindow(settings.VelocityWindowDays))
}

// readCollections issues the three store reads concurrently; there is no
// ordering dependency between them.
func readCollections(ctx context.Context, store Storage, userID string) ([]domain.Task, []domain.Project, []domain.Milestone, error) {
	var (
		tasks      []domain.Task
		projects   []domain.Project
		milestones []domain.Milestone
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tasks, err = store.ListTasks(gctx, userID, storage.TaskFilter{})
		return err
	})
	g.Go(func() error {
		var err error
		projects, err = store.ListProjects(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		milestones, err = store.ListMilestones(gctx, userID, storage.MilestoneFilter{})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}
	return tasks, projects, milestones, nil
}

func getDashboard(store Storage, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newRequestMetrics(ctx, logger, "/api/dashboard")
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		userID, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		fetchStart := time.Now()
		tasks, projects, milestones, fetchErr := readCollections(ctx, store, userID)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			err = writeError(c, fetchErr)
			return err
		}
		metrics.SetItemsReturned(len(tasks))

		computeStart := time.Now()
		engine := engineFor(ctx, store, userID)
		resp := dashboardResponse{
			Overview:    engine.Overview(tasks, projects),
			Risks:       engine.RiskAnalysis(tasks),
			Resources:   engine.ResourceUtilization(tasks),
			Efficiency:  engine.EfficiencyStats(tasks),
			Agile:       engine.AgileMetrics(tasks, projects),
			Milestones:  milestones,
			GeneratedAt: time.Now().UTC(),
		}
		metrics.ObserveCompute(time.Since(computeStart))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, resp)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func getOverview(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := authenticate(c, auth)
		if !ok {
			return nil
		}
		ctx := c.Request().Context()
		tasks, projects, _, err := readCollections(ctx, store, userID)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, engineFor(ctx, store, userID).Overview(tasks, projects))
	}
}

func getRisks(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := authenticate(c, auth)
		if !ok {
			return nil
		}
		ctx := c.Request().Context()
		tasks, err := store.ListTasks(ctx, userID, storage.TaskFilter{})
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, engineFor(ctx, store, userID).RiskAnalysis(tasks))
	}
}

func getResources(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := authenticate(c, auth)
		if !ok {
			return nil
		}
		ctx := c.Request().Context()
		tasks, err := store.ListTasks(ctx, userID, storage.TaskFilter{})
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, engineFor(ctx, store, userID).ResourceUtilization(tasks))
	}
}

func getEfficiency(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := authenticate(c, auth)
		if !ok {
			return nil
		}
		ctx := c.Request().Context()
		tasks, err := store.ListTasks(ctx, userID, storage.TaskFilter{})
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, engineFor(ctx, store, userID).EfficiencyStats(tasks))
	}
}

func getAgile(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := authenticate(c, auth)
		if !ok {
			return nil
		}
		ctx := c.Request().Context()
		tasks, projects, _, err := readCollections(ctx, store, userID)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, engineFor(ctx, store, userID).AgileMetrics(tasks, projects))
	}
}
