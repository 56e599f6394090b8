package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/customeros/mailvault/interfaces"
	"github.com/customeros/mailvault/internal/models"
	"github.com/customeros/mailvault/internal/tracing"
)

type backupRunRepository struct {
	db *gorm.DB
}

func NewBackupRunRepository(db *gorm.DB) interfaces.BackupRunRepository {
	return &backupRunRepository{db: db}
}

func (r *backupRunRepository) CreateRun(ctx context.Context, run *models.BackupRun) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "backupRunRepository.CreateRun")
	defer span.Finish()
	tracing.TagComponentRepository(span)
	tracing.TagAccount(span, run.AccountID)

	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// CompleteRun writes the final counters and result for a run
func (r *backupRunRepository) CompleteRun(ctx context.Context, run *models.BackupRun) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "backupRunRepository.CompleteRun")
	defer span.Finish()
	tracing.TagComponentRepository(span)
	tracing.TagRun(span, run.ID)

	now := time.Now()
	if run.CompletedAt == nil {
		run.CompletedAt = &now
	}

	result := r.db.WithContext(ctx).
		Model(&models.BackupRun{}).
		Where("id = ?", run.ID).
		Updates(map[string]interface{}{
			"result":            run.Result,
			"folders_processed": run.FoldersProcessed,
			"folders_total":     run.FoldersTotal,
			"emails_downloaded": run.EmailsDownloaded,
			"emails_total":      run.EmailsTotal,
			"bytes_downloaded":  run.BytesDownloaded,
			"errors":            run.Errors,
			"completed_at":      run.CompletedAt,
		})

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return fmt.Errorf("failed to complete run: %w", result.Error)
	}

	return nil
}

func (r *backupRunRepository) GetRun(ctx context.Context, id string) (*models.BackupRun, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "backupRunRepository.GetRun")
	defer span.Finish()
	tracing.TagComponentRepository(span)
	tracing.TagRun(span, id)

	var run models.BackupRun
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&run)

	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		tracing.TraceErr(span, result.Error)
		return nil, fmt.Errorf("failed to get run: %w", result.Error)
	}

	return &run, nil
}

// GetRuns lists history newest first, optionally filtered by account
func (r *backupRunRepository) GetRuns(ctx context.Context, accountID string, limit int) ([]*models.BackupRun, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "backupRunRepository.GetRuns")
	defer span.Finish()
	tracing.TagComponentRepository(span)
	tracing.TagAccount(span, accountID)

	if limit <= 0 {
		limit = 50
	}

	query := r.db.WithContext(ctx).Order("started_at desc").Limit(limit)
	if accountID != "" {
		query = query.Where("account_id = ?", accountID)
	}

	var runs []*models.BackupRun
	if err := query.Find(&runs).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to get runs: %w", err)
	}

	return runs, nil
}

// PruneHistory deletes all but the newest keep rows for an account
func (r *backupRunRepository) PruneHistory(ctx context.Context, accountID string, keep int) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "backupRunRepository.PruneHistory")
	defer span.Finish()
	tracing.TagComponentRepository(span)
	tracing.TagAccount(span, accountID)

	if keep <= 0 {
		return nil
	}

	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.BackupRun{}).
		Where("account_id = ?", accountID).
		Order("started_at desc").
		Offset(keep).
		Pluck("id", &ids).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to list prunable runs: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	result := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.BackupRun{})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return fmt.Errorf("failed to prune history: %w", result.Error)
	}

	return nil
}

func (r *backupRunRepository) DeleteRunsForAccount(ctx context.Context, accountID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "backupRunRepository.DeleteRunsForAccount")
	defer span.Finish()
	tracing.TagComponentRepository(span)
	tracing.TagAccount(span, accountID)

	result := r.db.WithContext(ctx).Where("account_id = ?", accountID).Delete(&models.BackupRun{})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return fmt.Errorf("failed to delete runs: %w", result.Error)
	}

	return nil
}
