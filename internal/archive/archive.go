package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"telefwd/pkg/domain"
)

// MinioArchiver writes purged forwarding logs to object storage before the
// purge deletes them, so cleanup never destroys the only copy.
type MinioArchiver struct {
	client *minio.Client
	bucket string
}

// NewMinioArchiver connects to MinIO and ensures the bucket exists.
func NewMinioArchiver(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioArchiver, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &MinioArchiver{client: client, bucket: bucket}, nil
}

// ArchiveLogs uploads the logs as one JSON object and returns its key.
func (a *MinioArchiver) ArchiveLogs(ctx context.Context, userID string, logs []domain.ForwardingLog) (string, error) {
	data, err := json.Marshal(logs)
	if err != nil {
		return "", fmt.Errorf("marshal logs: %w", err)
	}
	key := fmt.Sprintf("forwarding-logs/%s/%s.json", userID, time.Now().UTC().Format("20060102T150405"))
	_, err = a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("put archive object: %w", err)
	}
	return key, nil
}
