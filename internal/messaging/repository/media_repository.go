package repository

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"nova_messaging_service/pkg/database"

	"github.com/google/uuid"
)

// MediaRepository definition opaque media blob storage. Messages only carry
// the returned reference; the blob itself never passes through the pipeline.
type MediaRepository interface {
	// Upload store the blob and return its media reference
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
	// PresignURL short-lived download URL for one media reference
	PresignURL(ctx context.Context, mediaRef string) (string, error)
}

type minioMediaRepository struct {
	client *database.MinIOClient
}

// NewMinIOMediaRepository create a MediaRepository on minio
func NewMinIOMediaRepository(client *database.MinIOClient) MediaRepository {
	return &minioMediaRepository{client: client}
}

// Upload store one blob under a fresh object key
func (r *minioMediaRepository) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	objectName := fmt.Sprintf("media/%s", uuid.New().String())
	if err := r.client.UploadStream(ctx, objectName, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return "", fmt.Errorf("media upload failed: %w", err)
	}
	return objectName, nil
}

// PresignURL download URL valid for one hour
func (r *minioMediaRepository) PresignURL(ctx context.Context, mediaRef string) (string, error) {
	return r.client.PresignGetURL(ctx, mediaRef, time.Hour)
}
