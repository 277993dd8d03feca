// Package imagestore uploads task images to S3-compatible object storage.
package imagestore

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"tasktracker/tasks-api/internal/apperr"
)

// MaxImageSize bounds an uploaded image.
const MaxImageSize = 5 << 20

const keyPrefix = "task-images/"

var extensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

type Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	// PublicBaseURL is the prefix object keys are appended to when building
	// the URL stored on a task. Derived from the endpoint when empty.
	PublicBaseURL string
}

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var loadDefaultAWSConfig = config.LoadDefaultConfig

type Store struct {
	client  objectPutter
	bucket  string
	baseURL string

	newSuffix func() string
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newStore(client, cfg), nil
}

func newStore(client objectPutter, cfg Config) *Store {
	return &Store{
		client:    client,
		bucket:    cfg.Bucket,
		baseURL:   publicBaseURL(cfg),
		newSuffix: uuid.NewString,
	}
}

func publicBaseURL(cfg Config) string {
	switch {
	case cfg.PublicBaseURL != "":
		return strings.TrimRight(cfg.PublicBaseURL, "/")
	case cfg.Endpoint != "":
		return strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	default:
		region := cfg.Region
		if region == "" {
			region = "us-east-1"
		}
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, region)
	}
}

// Sniff returns the image content type of data, or a validation error when
// data is empty, too large, or not a JPEG, PNG, or WebP image.
func Sniff(data []byte) (string, error) {
	if len(data) == 0 {
		return "", apperr.Validation(apperr.FieldError{Field: "file", Message: "is required"})
	}
	if len(data) > MaxImageSize {
		return "", apperr.Validation(apperr.FieldError{Field: "file", Message: "must be at most 5 MiB"})
	}
	ct := http.DetectContentType(data)
	if _, ok := extensions[ct]; !ok {
		return "", apperr.Validation(apperr.FieldError{Field: "file", Message: "must be a JPEG, PNG, or WebP image"})
	}
	return ct, nil
}

// PutTaskImage uploads data under task-images/<taskID>-<uuid>.<ext> and
// returns the object's public URL.
func (s *Store) PutTaskImage(ctx context.Context, taskID string, data []byte) (string, error) {
	ct, err := Sniff(data)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("%s%s-%s.%s", keyPrefix, taskID, s.newSuffix(), extensions[ct])

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(ct),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return s.baseURL + "/" + key, nil
}
