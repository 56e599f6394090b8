package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/customeros/mailvault/interfaces"
	"github.com/customeros/mailvault/internal/models"
	"github.com/customeros/mailvault/internal/tracing"
)

type settingsRepository struct {
	db *gorm.DB
}

func NewSettingsRepository(db *gorm.DB) interfaces.SettingsRepository {
	return &settingsRepository{db: db}
}

func (r *settingsRepository) Get(ctx context.Context, key, defaultValue string) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "settingsRepository.Get")
	defer span.Finish()
	tracing.TagComponentRepository(span)
	span.SetTag("setting.key", key)

	var setting models.AppSetting
	result := r.db.WithContext(ctx).Where("key = ?", key).First(&setting)

	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return defaultValue, nil
		}
		tracing.TraceErr(span, result.Error)
		return defaultValue, fmt.Errorf("failed to get setting: %w", result.Error)
	}

	return setting.Value, nil
}

func (r *settingsRepository) GetInt(ctx context.Context, key string, defaultValue int) (int, error) {
	raw, err := r.Get(ctx, key, strconv.Itoa(defaultValue))
	if err != nil {
		return defaultValue, err
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue, nil
	}
	return value, nil
}

func (r *settingsRepository) GetBool(ctx context.Context, key string, defaultValue bool) (bool, error) {
	raw, err := r.Get(ctx, key, strconv.FormatBool(defaultValue))
	if err != nil {
		return defaultValue, err
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return defaultValue, nil
	}
	return value, nil
}

func (r *settingsRepository) Set(ctx context.Context, key, value string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "settingsRepository.Set")
	defer span.Finish()
	tracing.TagComponentRepository(span)
	span.SetTag("setting.key", key)

	// update first, create when the key does not exist yet
	result := r.db.WithContext(ctx).
		Model(&models.AppSetting{}).
		Where("key = ?", key).
		Updates(map[string]interface{}{
			"value":      value,
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return fmt.Errorf("failed to update setting: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		setting := models.AppSetting{Key: key, Value: value, UpdatedAt: time.Now()}
		if err := r.db.WithContext(ctx).Create(&setting).Error; err != nil {
			tracing.TraceErr(span, err)
			return fmt.Errorf("failed to create setting: %w", err)
		}
	}

	return nil
}

func (r *settingsRepository) Delete(ctx context.Context, key string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "settingsRepository.Delete")
	defer span.Finish()
	tracing.TagComponentRepository(span)
	span.SetTag("setting.key", key)

	result := r.db.WithContext(ctx).Where("key = ?", key).Delete(&models.AppSetting{})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return fmt.Errorf("failed to delete setting: %w", result.Error)
	}

	return nil
}
