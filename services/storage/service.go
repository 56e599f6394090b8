package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailvault/config"
	"github.com/customeros/mailvault/interfaces"
	"github.com/customeros/mailvault/internal/tracing"
	"github.com/customeros/mailvault/services/storage/aws_client"
)

// ObjectStorageService implements StorageService on any S3-compatible
// bucket. The mirror writes one object per committed .eml file, keyed
// account/folder/filename.
type ObjectStorageService struct {
	client     aws_client.S3Client
	bucketName string
}

// NewMirrorStorage builds the off-site bucket client named in the config.
// Returns nil without error when mirroring is disabled.
func NewMirrorStorage(cfg *config.MirrorConfig) (interfaces.StorageService, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	switch cfg.Provider {
	case "r2":
		if cfg.AccountID == "" {
			return nil, fmt.Errorf("mirror provider r2 requires CLOUDFLARE_R2_ACCOUNT_ID")
		}
		client := aws_client.NewS3Client(&aws.Config{
			Endpoint:         aws.String("https://" + cfg.AccountID + ".r2.cloudflarestorage.com"),
			Region:           aws.String("auto"),
			Credentials:      credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.AccessKeySecret, ""),
			S3ForcePathStyle: aws.Bool(true),
		})
		return NewStorageService(client, cfg.Bucket), nil
	case "s3":
		client := aws_client.NewS3Client(&aws.Config{
			Region:      aws.String(cfg.Region),
			Credentials: credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.AccessKeySecret, ""),
		})
		return NewStorageService(client, cfg.Bucket), nil
	default:
		return nil, fmt.Errorf("unknown mirror provider: %s", cfg.Provider)
	}
}

func NewStorageService(client aws_client.S3Client, bucketName string) interfaces.StorageService {
	return &ObjectStorageService{
		client:     client,
		bucketName: bucketName,
	}
}

// Upload stores data in object storage
func (s *ObjectStorageService) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ObjectStorageService.Upload")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("key", key)

	uploadInput := s3manager.UploadInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	}

	return s.client.Upload(ctx, uploadInput)
}

// Download retrieves data from object storage
func (s *ObjectStorageService) Download(ctx context.Context, key string) ([]byte, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ObjectStorageService.Download")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("key", key)

	return s.client.Download(ctx, s.bucketName, key)
}

// Delete removes an object from storage
func (s *ObjectStorageService) Delete(ctx context.Context, key string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ObjectStorageService.Delete")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("key", key)

	return s.client.Delete(ctx, s.bucketName, key)
}
