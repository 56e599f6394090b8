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

type accountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) interfaces.AccountRepository {
	return &accountRepository{db: db}
}

// GetAccount retrieves one account by id, nil when absent
func (r *accountRepository) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.GetAccount")
	defer span.Finish()
	tracing.TagComponentRepository(span)
	tracing.TagAccount(span, id)

	var account models.Account
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&account)

	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		tracing.TraceErr(span, result.Error)
		return nil, fmt.Errorf("failed to get account: %w", result.Error)
	}

	return &account, nil
}

// GetAccountByEmail retrieves one account by address, nil when absent
func (r *accountRepository) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.GetAccountByEmail")
	defer span.Finish()
	tracing.TagComponentRepository(span)

	var account models.Account
	result := r.db.WithContext(ctx).Where("email = ?", email).First(&account)

	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		tracing.TraceErr(span, result.Error)
		return nil, fmt.Errorf("failed to get account by email: %w", result.Error)
	}

	return &account, nil
}

func (r *accountRepository) GetAccounts(ctx context.Context) ([]*models.Account, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.GetAccounts")
	defer span.Finish()
	tracing.TagComponentRepository(span)

	var accounts []*models.Account
	if err := r.db.WithContext(ctx).Order("created_at asc").Find(&accounts).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to get accounts: %w", err)
	}

	return accounts, nil
}

func (r *accountRepository) GetEnabledAccounts(ctx context.Context) ([]*models.Account, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.GetEnabledAccounts")
	defer span.Finish()
	tracing.TagComponentRepository(span)

	var accounts []*models.Account
	if err := r.db.WithContext(ctx).Where("enabled = ?", true).Order("created_at asc").Find(&accounts).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to get enabled accounts: %w", err)
	}

	return accounts, nil
}

// SaveAccount creates or updates an account record
func (r *accountRepository) SaveAccount(ctx context.Context, account *models.Account) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.SaveAccount")
	defer span.Finish()
	tracing.TagComponentRepository(span)
	tracing.TagAccount(span, account.ID)

	var result *gorm.DB
	if account.ID == "" {
		result = r.db.WithContext(ctx).Create(account)
	} else {
		result = r.db.WithContext(ctx).Save(account)
	}

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return fmt.Errorf("failed to save account: %w", result.Error)
	}

	return nil
}

// UpdateLastRun stamps the account with the outcome of its latest run
func (r *accountRepository) UpdateLastRun(ctx context.Context, id string, status string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.UpdateLastRun")
	defer span.Finish()
	tracing.TagComponentRepository(span)
	tracing.TagAccount(span, id)

	result := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_run_at":     time.Now(),
			"last_run_status": status,
			"updated_at":      time.Now(),
		})

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return fmt.Errorf("failed to update last run: %w", result.Error)
	}

	return nil
}

func (r *accountRepository) DeleteAccount(ctx context.Context, id string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.DeleteAccount")
	defer span.Finish()
	tracing.TagComponentRepository(span)
	tracing.TagAccount(span, id)

	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Account{})

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return fmt.Errorf("failed to delete account: %w", result.Error)
	}

	return nil
}
