package interfaces

import "context"

// SettingsRepository is the persisted key-value settings store. Get returns
// the provided default when the key is absent.
type SettingsRepository interface {
	Get(ctx context.Context, key, defaultValue string) (string, error)
	GetInt(ctx context.Context, key string, defaultValue int) (int, error)
	GetBool(ctx context.Context, key string, defaultValue bool) (bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
