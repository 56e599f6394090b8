package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailvault/interfaces"
	"github.com/customeros/mailvault/internal/models"
	"github.com/customeros/mailvault/internal/tracing"
)

const defaultHistoryLimit = 20

// BackupsHandler serves run control: start, cancel, progress, verification
// and history. Runs are asynchronous, so start endpoints answer 202 with the
// run id and progress is polled separately.
type BackupsHandler struct {
	backup interfaces.BackupService
}

func NewBackupsHandler(backup interfaces.BackupService) *BackupsHandler {
	return &BackupsHandler{backup: backup}
}

// StartAll launches a run for every enabled account
func (h *BackupsHandler) StartAll() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "BackupsHandler.StartAll")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		runIDs, err := h.backup.StartAll(ctx, models.RunTriggerManual)
		if err != nil {
			respondWithError(c, span, statusFor(err), "failed to start backups", err)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"started": len(runIDs), "runIds": runIDs})
	}
}

// Start launches a run for one account
func (h *BackupsHandler) Start() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "BackupsHandler.Start")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)
		tracing.TagAccount(span, c.Param("id"))

		runID, err := h.backup.StartRun(ctx, c.Param("id"), models.RunTriggerManual)
		if err != nil {
			respondWithError(c, span, statusFor(err), "failed to start backup", err)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"runId": runID})
	}
}

// Cancel asks the account's active run to stop. The run finishes the message
// in flight first, so cancellation is acknowledged, not instant.
func (h *BackupsHandler) Cancel() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "BackupsHandler.Cancel")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)
		tracing.TagAccount(span, c.Param("id"))

		id := c.Param("id")
		if err := h.backup.CancelRun(ctx, id); err != nil {
			respondWithError(c, span, statusFor(err), "failed to cancel backup", err)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"status": "cancelling", "id": id})
	}
}

// CancelAll asks every active run to stop
func (h *BackupsHandler) CancelAll() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "BackupsHandler.CancelAll")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		h.backup.CancelAll(ctx)

		c.JSON(http.StatusAccepted, gin.H{"status": "cancelling all runs"})
	}
}

// Active returns a progress snapshot for every account with a run in flight
func (h *BackupsHandler) Active() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "BackupsHandler.Active")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		snapshots := make([]interfaces.Progress, 0)
		for _, accountID := range h.backup.ActiveRuns() {
			if progress, ok := h.backup.Progress(accountID); ok {
				snapshots = append(snapshots, progress)
			}
		}

		c.JSON(http.StatusOK, snapshots)
	}
}

// Progress returns the live snapshot of one account's active run
func (h *BackupsHandler) Progress() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "BackupsHandler.Progress")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)
		tracing.TagAccount(span, c.Param("id"))

		progress, ok := h.backup.Progress(c.Param("id"))
		if !ok {
			respondWithError(c, span, http.StatusNotFound, "no active run", nil)
			return
		}

		c.JSON(http.StatusOK, progress)
	}
}

// History lists finished runs, newest first. The limit query parameter caps
// the page, defaulting to 20.
func (h *BackupsHandler) History() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "BackupsHandler.History")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)
		tracing.TagAccount(span, c.Param("id"))

		limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultHistoryLimit)))
		if err != nil || limit < 1 {
			respondWithError(c, span, http.StatusBadRequest, "limit must be a positive integer", err)
			return
		}

		runs, err := h.backup.History(ctx, c.Param("id"), limit)
		if err != nil {
			respondWithError(c, span, statusFor(err), "failed to list run history", err)
			return
		}

		c.JSON(http.StatusOK, runs)
	}
}

// Verify compares server and local UID sets without downloading anything
func (h *BackupsHandler) Verify() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "BackupsHandler.Verify")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)
		tracing.TagAccount(span, c.Param("id"))

		report, err := h.backup.Verify(ctx, c.Param("id"))
		if err != nil {
			respondWithError(c, span, statusFor(err), "failed to verify archive", err)
			return
		}

		c.JSON(http.StatusOK, report)
	}
}

// Repair verifies the archive and launches a run restricted to whatever is
// missing. A complete archive launches nothing.
func (h *BackupsHandler) Repair() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "BackupsHandler.Repair")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)
		tracing.TagAccount(span, c.Param("id"))

		runID, err := h.backup.StartRepair(ctx, c.Param("id"))
		if err != nil {
			respondWithError(c, span, statusFor(err), "failed to start repair", err)
			return
		}
		if runID == "" {
			c.JSON(http.StatusOK, gin.H{"status": "archive is complete"})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"runId": runID})
	}
}

// CleanupOrphans sweeps temp files left behind by interrupted runs
func (h *BackupsHandler) CleanupOrphans() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "BackupsHandler.CleanupOrphans")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		removed, err := h.backup.CleanupOrphans(ctx)
		if err != nil {
			respondWithError(c, span, statusFor(err), "failed to clean up orphaned files", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"removed": removed})
	}
}
