// Trigger and status HTTP handlers for the background work.
//
//   - GET|POST /cron/scheduler    (run the due-post scan now)
//   - GET|POST /cron/metrics      (refresh metrics now)
//   - GET      /scheduler/status  (last run / last error diagnostics)
//   - GET      /metrics/ratelimit (metrics read budget)
//
// The /cron routes are guarded by middleware.CronAuth when a secret is set.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-post-scheduler/internal/services"
)

// RunScheduler godoc
// @ID          runScheduler
// @Summary     Run the scheduler
// @Description Publishes every SCHEDULED post whose time has passed. Per-item failures are reported in the result, not as an error status.
// @Tags        Cron
// @Produce     json
// @Security    CronBearer
// @Success     200  {object} services.RunResult
// @Failure     401  {object} handlers.ErrorResponse "Missing or wrong cron secret"
// @Failure     500  {object} handlers.ErrorResponse "Due posts could not be loaded"
// @Router      /cron/scheduler [post]
func (h *Handlers) RunScheduler(c *gin.Context) {
	res, err := h.scheduler.Run(c.Request.Context())
	if err != nil && errors.Is(err, services.ErrRunAborted) {
		fail(c, http.StatusInternalServerError, ErrCodeRunFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, res)
}

// RefreshMetrics godoc
// @ID          refreshMetrics
// @Summary     Refresh metrics
// @Description Re-reads engagement for recently published posts within the request budget.
// @Tags        Cron
// @Produce     json
// @Security    CronBearer
// @Success     200  {object} services.RefreshResult
// @Failure     401  {object} handlers.ErrorResponse "Missing or wrong cron secret"
// @Failure     500  {object} handlers.ErrorResponse "Candidates could not be loaded"
// @Router      /cron/metrics [post]
func (h *Handlers) RefreshMetrics(c *gin.Context) {
	res, err := h.metrics.Refresh(c.Request.Context())
	if err != nil && c.Request.Context().Err() == nil {
		fail(c, http.StatusInternalServerError, ErrCodeRefreshFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, res)
}

// SchedulerStatus godoc
// @ID          schedulerStatus
// @Summary     Scheduler diagnostics
// @Description Returns the last run summary and the last run that had failures. Either may be null.
// @Tags        Scheduler
// @Produce     json
// @Success     200  {object} services.SchedulerStatus
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /scheduler/status [get]
func (h *Handlers) SchedulerStatus(c *gin.Context) {
	st, err := h.scheduler.Status(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, st)
}

// RateLimitStatus godoc
// @ID          rateLimitStatus
// @Summary     Metrics request budget
// @Tags        Metrics
// @Produce     json
// @Success     200  {object} ratelimit.Status
// @Router      /metrics/ratelimit [get]
func (h *Handlers) RateLimitStatus(c *gin.Context) {
	ok(c, http.StatusOK, h.metrics.RateLimitStatus())
}
