// internal/services/storage_service.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/javajoker/digistore/internal/config"
	"github.com/javajoker/digistore/internal/models"
)

// DeliverableURLResolver turns a deliverable into a URL the customer can
// download from.
type DeliverableURLResolver interface {
	ResolveURL(ctx context.Context, deliverable models.Deliverable) (string, error)
}

type StorageService struct {
	s3Client *s3.S3
	bucket   string
	ttl      time.Duration
}

func NewStorageService(cfg config.AWSConfig) (*StorageService, error) {
	service := &StorageService{
		bucket: cfg.S3Bucket,
		ttl:    cfg.DeliverableTTL,
	}
	if service.ttl <= 0 {
		service.ttl = 24 * time.Hour
	}

	if cfg.AccessKeyID == "" {
		// Without credentials only plain deliverable URLs are served
		return service, nil
	}

	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.Region),
		Credentials: credentials.NewStaticCredentials(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	service.s3Client = s3.New(sess)
	return service, nil
}

// ResolveURL presigns deliverables kept in the bucket and passes plain URLs
// through. A stored object without S3 access falls back to its URL, if any.
func (s *StorageService) ResolveURL(ctx context.Context, deliverable models.Deliverable) (string, error) {
	if deliverable.StorageKey != "" && s.s3Client != nil {
		return s.GeneratePresignedURL(ctx, deliverable.StorageKey, s.ttl)
	}
	return deliverable.URL, nil
}

func (s *StorageService) GeneratePresignedURL(ctx context.Context, key string, expiration time.Duration) (string, error) {
	if s.s3Client == nil {
		return "", fmt.Errorf("S3 client not configured")
	}

	req, _ := s.s3Client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	req.SetContext(ctx)

	url, err := req.Presign(expiration)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return url, nil
}
