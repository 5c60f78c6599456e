// internal/services/storage_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/localgov/planning-backoffice/internal/config"
)

// ErrDocumentNotFound means the store has no object for the reference.
var ErrDocumentNotFound = errors.New("document not found in store")

// DocumentInfo is what the store tells us about an uploaded file. The bytes
// themselves are never read here.
type DocumentInfo struct {
	Reference   string `json:"reference"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Permitted   bool   `json:"permitted"`
}

// DocumentStore resolves opaque document references.
type DocumentStore interface {
	Inspect(ctx context.Context, reference string) (*DocumentInfo, error)
}

type StorageService struct {
	s3Client *s3.S3
	config   *config.Config
}

func NewStorageService(config *config.Config) (*StorageService, error) {
	if config.AWS.AccessKeyID == "" {
		// Return service without S3 for local development
		return &StorageService{config: config}, nil
	}

	// Create AWS session
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(config.AWS.Region),
		Credentials: credentials.NewStaticCredentials(
			config.AWS.AccessKeyID,
			config.AWS.SecretAccessKey,
			"",
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &StorageService{
		s3Client: s3.New(sess),
		config:   config,
	}, nil
}

// Inspect looks the reference up in the bucket and checks its content type
// against the permitted list.
func (s *StorageService) Inspect(ctx context.Context, reference string) (*DocumentInfo, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, fmt.Errorf("document reference is required")
	}

	if s.s3Client == nil {
		// Local development: trust the extension
		contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(reference)))
		return s.describe(reference, contentType, 0), nil
	}

	out, err := s.s3Client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.config.AWS.S3Bucket),
		Key:    aws.String(reference),
	})
	if err != nil {
		var aerr awserr.RequestFailure
		if errors.As(err, &aerr) && aerr.StatusCode() == 404 {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to inspect document: %w", err)
	}

	return s.describe(reference, aws.StringValue(out.ContentType), aws.Int64Value(out.ContentLength)), nil
}

func (s *StorageService) GeneratePresignedURL(reference string, expiration time.Duration) (string, error) {
	if s.s3Client == nil {
		return fmt.Sprintf("%s/documents/%s", s.config.Frontend.BaseURL, reference), nil
	}

	req, _ := s.s3Client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.config.AWS.S3Bucket),
		Key:    aws.String(reference),
	})

	url, err := req.Presign(expiration)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return url, nil
}

func (s *StorageService) describe(reference, contentType string, size int64) *DocumentInfo {
	// Drop parameters such as "; charset=utf-8"
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	contentType = strings.TrimSpace(strings.ToLower(contentType))

	return &DocumentInfo{
		Reference:   reference,
		ContentType: contentType,
		Size:        size,
		Permitted:   s.isPermittedType(contentType),
	}
}

func (s *StorageService) isPermittedType(contentType string) bool {
	if contentType == "" {
		return false
	}
	for _, allowed := range s.config.AWS.PermittedMediaTypes {
		if strings.EqualFold(allowed, contentType) {
			return true
		}
	}
	return false
}
