// Package storage implements the media store the registration and profile
// flows upload avatar/cover images to. The core only ever consumes the
// resolved URL of an uploaded object.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/cliptube/cliptube/internal/common"
)

// MediaStore stores an uploaded media object and returns its resolved URL.
type MediaStore interface {
	Upload(ctx context.Context, slot string, body io.Reader, contentType string) (string, error)
}

// S3Config carries the object-storage settings injected at construction.
// There is deliberately no process-wide storage configuration.
type S3Config struct {
	RootUser     string
	RootPassword string
	Bucket       string
	Region       string
	BaseEndpoint string
}

// S3MediaStore uploads media to an S3-compatible backend (MinIO in
// development).
type S3MediaStore struct {
	cfg S3Config
}

func NewS3MediaStore(cfg S3Config) *S3MediaStore {
	return &S3MediaStore{cfg: cfg}
}

func (s *S3MediaStore) client(ctx context.Context) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(s.cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.cfg.RootUser,
			s.cfg.RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.cfg.BaseEndpoint)
		o.UsePathStyle = true
	}), nil
}

// objectKey produces a date-partitioned random key under the given slot,
// e.g. "avatars/2026/8/30/3f2a...".
func objectKey(slot string) string {
	d := time.Now()
	return fmt.Sprintf("%s/%d/%d/%d/%v", slot, d.Year(), int(d.Month()), d.Day(), uuid.New())
}

// Upload stores body under a fresh key in the configured bucket and returns
// the object's URL. Any backend failure is reported as common.ErrUpload.
func (s *S3MediaStore) Upload(ctx context.Context, slot string, body io.Reader, contentType string) (string, error) {
	client, err := s.client(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrUpload, err)
	}

	key := objectKey(slot)
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrUpload, err)
	}

	return s.objectURL(key), nil
}

func (s *S3MediaStore) objectURL(key string) string {
	base := strings.TrimRight(s.cfg.BaseEndpoint, "/")
	return fmt.Sprintf("%s/%s/%s", base, url.PathEscape(s.cfg.Bucket), key)
}
