package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"horizon-api/domain"
	"horizon-api/gantt"
	"horizon-api/storage"
)

type ganttResponse struct {
	Bounds       gantt.Bounds          `json:"bounds"`
	Rows         []gantt.Row           `json:"rows"`
	Items        []gantt.ScheduledItem `json:"items"`
	Dependencies map[string][]string   `json:"dependencies"`
}

// parseChartBounds reads optional start/end query params. Both must be
// present for explicit bounds to apply; either date-only or RFC3339 values
// are accepted.
func parseChartBounds(c echo.Context) (*gantt.Bounds, error) {
	rawStart := c.QueryParam("start")
	rawEnd := c.QueryParam("end")
	if rawStart == "" && rawEnd == "" {
		return nil, nil
	}
	if rawStart == "" || rawEnd == "" {
		return nil, &domain.ValidationError{Field: "bounds", Reason: "start and end must be supplied together"}
	}
	start, err := parseDateParam(rawStart)
	if err != nil {
		return nil, &domain.ValidationError{Field: "start", Reason: "invalid date"}
	}
	end, err := parseDateParam(rawEnd)
	if err != nil {
		return nil, &domain.ValidationError{Field: "end", Reason: "invalid date"}
	}
	if end.Before(start) {
		return nil, &domain.ValidationError{Field: "end", Reason: "must not precede start"}
	}
	return &gantt.Bounds{Start: start, End: end}, nil
}

func parseDateParam(raw string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func getGantt(store Storage, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newRequestMetrics(ctx, logger, "/api/gantt")
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

		bounds, boundsErr := parseChartBounds(c)
		if boundsErr != nil {
			metrics.SetErrorStage("invalid_bounds")
			err = writeError(c, boundsErr)
			return err
		}

		fetchStart := time.Now()
		tasks, fetchErr := store.ListTasks(ctx, userID, storage.TaskFilter{ProjectID: c.QueryParam("projectId")})
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			err = writeError(c, fetchErr)
			return err
		}

		computeStart := time.Now()
		items := gantt.ScheduledItemsFromTasks(tasks)
		chart := gantt.ComputeLayout(items, bounds)
		deps := gantt.ExtractDependencies(items)
		metrics.ObserveCompute(time.Since(computeStart))
		metrics.SetItemsReturned(len(chart.Rows))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, ganttResponse{
			Bounds:       chart.Bounds,
			Rows:         chart.Rows,
			Items:        items,
			Dependencies: deps,
		})
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}
