package pipeline

import (
	"bytes"
	"context"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore persists media payloads in an S3-compatible object store
// and hands back a presigned URL the stored message references.
type MinioStore struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

// NewMinioStore creates the client and the bucket if it does not
// already exist.  Presigned URLs are valid for the given expiry.
func NewMinioStore(endpoint, accessKey, secretKey, bucket, region string, useSSL bool, expiry time.Duration) (*MinioStore, error) {
	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, err
	}
	ctx := context.Background()
	exists, err := cli.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := cli.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return nil, err
		}
	}
	return &MinioStore{client: cli, bucket: bucket, expiry: expiry}, nil
}

// Upload stores data under objectName and returns a presigned URL.
func (s *MinioStore) Upload(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	reader := bytes.NewReader(data)
	_, err := s.client.PutObject(ctx, s.bucket, objectName, reader, int64(len(data)), minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", err
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectName, s.expiry, url.Values{})
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
