package collabs

import (
	"context"
	"fmt"

	"accountd/internal/storage"

	"github.com/google/uuid"
)

// SecureStorageClient is the narrow contract the lifecycle coordinator
// kicks off asynchronously during delete, joining it alongside
// SecureBackupClient before the durable row is removed.
type SecureStorageClient interface {
	DeleteStoredData(ctx context.Context, aci uuid.UUID) error
}

// S3SecureStorageClient stores each account's secure-storage-service blobs
// under a per-aci key prefix in its own bucket, deleted wholesale on
// account deletion.
type S3SecureStorageClient struct {
	s3 *storage.Client
}

func NewS3SecureStorageClient(s3 *storage.Client) *S3SecureStorageClient {
	return &S3SecureStorageClient{s3: s3}
}

func (c *S3SecureStorageClient) DeleteStoredData(ctx context.Context, aci uuid.UUID) error {
	prefix := fmt.Sprintf("%s/", aci.String())
	if err := c.s3.DeleteByPrefix(ctx, prefix); err != nil {
		return fmt.Errorf("delete secure-storage data for %s: %w", aci, err)
	}
	return nil
}
