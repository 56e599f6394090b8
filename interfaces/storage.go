package interfaces

import "context"

// StorageService is an S3-compatible object store used for the optional
// off-site mirror of committed .eml files.
type StorageService interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Download(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
