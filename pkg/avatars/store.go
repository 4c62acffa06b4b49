// Package avatars stores user avatar images in S3-compatible object
// storage and maps stored keys to serving URLs for reconciled profiles.
package avatars

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vuraweg/prepgate/pkg/observability"
)

// Config holds object-store settings. Endpoint and path style support
// MinIO in local development.
type Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool

	// PublicBaseURL, when set, serves avatars straight from a CDN in
	// front of the bucket; otherwise URLs route back through the gateway.
	PublicBaseURL string
}

var tracer = observability.Tracer("prepgate/avatars")

// Store uploads and serves avatar objects.
type Store struct {
	client *s3.Client
	cfg    Config
}

// NewStore creates the avatar store over an S3-compatible bucket.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("avatar bucket is required")
	}

	var awsConfig aws.Config
	var err error
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsConfig, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKey, cfg.SecretKey, "")),
		)
	} else {
		awsConfig, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	return &Store{client: client, cfg: cfg}, nil
}

// Key builds the canonical object key for a user's avatar. One object
// per user; a new upload replaces the previous one.
func Key(userID, contentType string) string {
	ext := ".png"
	switch contentType {
	case "image/jpeg":
		ext = ".jpg"
	case "image/webp":
		ext = ".webp"
	}
	return path.Join("avatars", userID+ext)
}

// Put uploads the avatar body and returns its stored key.
func (s *Store) Put(ctx context.Context, userID, contentType string, body io.Reader) (string, error) {
	key := Key(userID, contentType)

	ctx, span := tracer.Start(ctx, "avatars.Put")
	span.SetAttributes(
		attribute.String("s3.bucket", s.cfg.Bucket),
		attribute.String("s3.key", key),
	)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.cfg.Bucket),
		Key:          aws.String(key),
		Body:         body,
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("public, max-age=300"),
	})
	observability.EndSpan(span, err)
	if err != nil {
		return "", fmt.Errorf("failed to upload avatar: %w", err)
	}
	return key, nil
}

// Get streams the avatar object. The caller owns the returned body.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	ctx, span := tracer.Start(ctx, "avatars.Get")
	span.SetAttributes(
		attribute.String("s3.bucket", s.cfg.Bucket),
		attribute.String("s3.key", key),
	)

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	observability.EndSpan(span, err)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch avatar: %w", err)
	}
	return out.Body, aws.ToString(out.ContentType), nil
}

// URL resolves a stored key to a serving URL. External keys (an OAuth
// provider's picture URL) pass through untouched.
func (s *Store) URL(key string) string {
	if key == "" {
		return ""
	}
	if strings.HasPrefix(key, "http://") || strings.HasPrefix(key, "https://") {
		return key
	}
	if s.cfg.PublicBaseURL != "" {
		return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + key
	}
	return "/v1/profile/avatar"
}

// Probe checks bucket reachability for readiness reporting.
func (s *Store) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.cfg.Bucket)})
	if err != nil {
		return fmt.Errorf("avatar bucket unreachable: %w", err)
	}
	return nil
}
