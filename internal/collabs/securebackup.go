package collabs

import (
	"context"
	"fmt"

	"accountd/internal/storage"

	"github.com/google/uuid"
)

// SecureBackupClient is the narrow contract the lifecycle coordinator
// kicks off asynchronously during delete, joining it alongside
// SecureStorageClient before the durable row is removed.
type SecureBackupClient interface {
	DeleteBackups(ctx context.Context, aci uuid.UUID) error
}

// S3SecureBackupClient stores each account's encrypted backup blobs under
// a per-aci key prefix in a bucket separate from secure storage — the two
// services are operated independently upstream even though both are
// S3-compatible here.
type S3SecureBackupClient struct {
	s3 *storage.Client
}

func NewS3SecureBackupClient(s3 *storage.Client) *S3SecureBackupClient {
	return &S3SecureBackupClient{s3: s3}
}

func (c *S3SecureBackupClient) DeleteBackups(ctx context.Context, aci uuid.UUID) error {
	prefix := fmt.Sprintf("%s/", aci.String())
	if err := c.s3.DeleteByPrefix(ctx, prefix); err != nil {
		return fmt.Errorf("delete secure-backup data for %s: %w", aci, err)
	}
	return nil
}
