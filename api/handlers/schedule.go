package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailvault/internal/cron"
	"github.com/customeros/mailvault/internal/tracing"
)

// ScheduleHandler serves the automatic backup schedule
type ScheduleHandler struct {
	cron *cron.CronManager
}

func NewScheduleHandler(cronManager *cron.CronManager) *ScheduleHandler {
	return &ScheduleHandler{cron: cronManager}
}

// Get returns the active schedule and its next fire time
func (h *ScheduleHandler) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "ScheduleHandler.Get")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		c.JSON(http.StatusOK, h.scheduleResponse())
	}
}

// Update validates, persists and applies a new schedule
func (h *ScheduleHandler) Update() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "ScheduleHandler.Update")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var schedule cron.Schedule
		if err := c.ShouldBindJSON(&schedule); err != nil {
			respondWithError(c, span, http.StatusBadRequest, "invalid request body", err)
			return
		}
		if err := schedule.Validate(); err != nil {
			respondWithError(c, span, http.StatusBadRequest, "invalid schedule", err)
			return
		}

		if err := h.cron.UpdateSchedule(ctx, schedule); err != nil {
			respondWithError(c, span, http.StatusInternalServerError, "failed to update schedule", err)
			return
		}

		c.JSON(http.StatusOK, h.scheduleResponse())
	}
}

func (h *ScheduleHandler) scheduleResponse() gin.H {
	response := gin.H{
		"schedule":  h.cron.Schedule(),
		"nextRunAt": nil,
	}
	if at, ok := h.cron.NextRunAt(time.Now()); ok {
		response["nextRunAt"] = at.UTC().Format(time.RFC3339)
	}
	return response
}
