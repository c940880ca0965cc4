package s3

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"gigsocket/internal/app/apperr"
	"gigsocket/internal/app/policies"
)

// AttachmentStore checks that chat attachments were uploaded to the bucket
// and turns their keys into public URLs.
type AttachmentStore struct {
	client        *minio.Client
	bucket        string
	publicBaseURL string
	logger        *slog.Logger
}

var _ policies.AttachmentResolver = (*AttachmentStore)(nil)

// NewClient configures a MinIO/S3 client. A fixed region skips the bucket
// location lookup.
func NewClient(endpoint string, useSSL bool, accessKey, secretKey string) (*minio.Client, error) {
	cleanEndpoint := strings.TrimSpace(endpoint)
	if cleanEndpoint == "" {
		return nil, errors.New("s3: endpoint is required")
	}
	client, err := minio.New(parseEndpoint(cleanEndpoint), &minio.Options{
		Creds:  credentials.NewStaticV4(strings.TrimSpace(accessKey), strings.TrimSpace(secretKey), ""),
		Secure: useSSL,
		Region: "us-east-1",
	})
	if err != nil {
		return nil, fmt.Errorf("s3: create client: %w", err)
	}
	return client, nil
}

func NewAttachmentStore(client *minio.Client, bucket, publicBaseURL string, logger *slog.Logger) (*AttachmentStore, error) {
	if client == nil {
		return nil, errors.New("s3: client is required")
	}
	if bucket = strings.TrimSpace(bucket); bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	base := strings.TrimSpace(publicBaseURL)
	if base == "" {
		base = client.EndpointURL().String()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AttachmentStore{
		client:        client,
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(base, "/"),
		logger:        logger,
	}, nil
}

// Resolve accepts an object key or a URL this store produced, checks the
// object exists and returns its public URL.
func (s *AttachmentStore) Resolve(ctx context.Context, ref string) (string, error) {
	key, err := s.keyOf(ref)
	if err != nil {
		return "", err
	}
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		switch minio.ToErrorResponse(err).Code {
		case "NoSuchKey", "NoSuchBucket":
			return "", apperr.Validation("attachment not found")
		}
		return "", fmt.Errorf("s3: stat %s: %w", key, err)
	}
	return s.objectURL(key), nil
}

// EnsureBucket creates the bucket with public read access when it is missing.
func (s *AttachmentStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("s3: check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("s3: create bucket: %w", err)
	}
	policy := fmt.Sprintf(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/*"]}]}`, s.bucket)
	if err := s.client.SetBucketPolicy(ctx, s.bucket, policy); err != nil {
		return fmt.Errorf("s3: set bucket policy: %w", err)
	}
	s.logger.Info("s3 bucket created", "bucket", s.bucket)
	return nil
}

func (s *AttachmentStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

func (s *AttachmentStore) keyOf(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if prefix := s.publicBaseURL + "/" + s.bucket + "/"; strings.HasPrefix(ref, prefix) {
		ref = strings.TrimPrefix(ref, prefix)
	} else if u, err := url.Parse(ref); err == nil && u.Scheme != "" {
		return "", apperr.Validation("attachment must be uploaded to chat storage")
	}
	key := strings.Trim(ref, "/")
	if key == "" || path.Clean("/"+key) != "/"+key {
		return "", apperr.Validation("invalid attachment key")
	}
	return key, nil
}

func (s *AttachmentStore) objectURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", s.publicBaseURL, s.bucket, key)
}

func parseEndpoint(endpoint string) string {
	if parsed, err := url.Parse(endpoint); err == nil && parsed.Host != "" {
		return parsed.Host
	}
	return endpoint
}
