package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailvault/interfaces"
	"github.com/customeros/mailvault/internal/cron"
	"github.com/customeros/mailvault/internal/tracing"
)

// SettingsHandler exposes the raw settings store. The schedule key is fenced
// off because writing it here would bypass schedule validation and the live
// scheduler.
type SettingsHandler struct {
	settings interfaces.SettingsRepository
}

func NewSettingsHandler(settings interfaces.SettingsRepository) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

type settingInput struct {
	Value string `json:"value"`
}

// Get returns one setting, empty string when unset
func (h *SettingsHandler) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "SettingsHandler.Get")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		key := c.Param("key")
		value, err := h.settings.Get(ctx, key, c.Query("default"))
		if err != nil {
			respondWithError(c, span, http.StatusInternalServerError, "failed to read setting", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"key": key, "value": value})
	}
}

// Set stores one setting
func (h *SettingsHandler) Set() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "SettingsHandler.Set")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		key := c.Param("key")
		if key == cron.SettingSchedule {
			respondWithError(c, span, http.StatusBadRequest, "the schedule is managed through /v1/schedule", nil)
			return
		}

		var input settingInput
		if err := c.ShouldBindJSON(&input); err != nil {
			respondWithError(c, span, http.StatusBadRequest, "invalid request body", err)
			return
		}

		if err := h.settings.Set(ctx, key, input.Value); err != nil {
			respondWithError(c, span, http.StatusInternalServerError, "failed to store setting", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"key": key, "value": input.Value})
	}
}

// Delete removes one setting, reverting it to its default
func (h *SettingsHandler) Delete() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "SettingsHandler.Delete")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		key := c.Param("key")
		if key == cron.SettingSchedule {
			respondWithError(c, span, http.StatusBadRequest, "the schedule is managed through /v1/schedule", nil)
			return
		}

		if err := h.settings.Delete(ctx, key); err != nil {
			respondWithError(c, span, http.StatusInternalServerError, "failed to delete setting", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "setting deleted", "key": key})
	}
}
