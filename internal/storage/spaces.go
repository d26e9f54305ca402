// Package storage archives exported event files in Digital Ocean Spaces or
// any other S3-compatible object store.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

const defaultPrefix = "event-exports/"

// SpacesConfig contains configuration for Digital Ocean Spaces
type SpacesConfig struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Prefix    string
}

// NewSpacesConfigFromEnv reads SPACES_* variables.
func NewSpacesConfigFromEnv() (SpacesConfig, error) {
	cfg := SpacesConfig{
		Endpoint:  os.Getenv("SPACES_ENDPOINT"),
		Region:    getEnvOrDefault("SPACES_REGION", "us-east-1"),
		Bucket:    os.Getenv("SPACES_BUCKET"),
		AccessKey: os.Getenv("SPACES_ACCESS_KEY"),
		SecretKey: os.Getenv("SPACES_SECRET_KEY"),
		Prefix:    getEnvOrDefault("SPACES_PREFIX", defaultPrefix),
	}
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return cfg, fmt.Errorf("SPACES_ENDPOINT and SPACES_BUCKET are required")
	}
	return cfg, nil
}

// SpacesClient stores event exports as JSONL objects
type SpacesClient struct {
	client     s3iface.S3API
	bucket     string
	pathPrefix string
	now        func() time.Time
}

// NewSpacesClient creates a new Digital Ocean Spaces client
func NewSpacesClient(config SpacesConfig) (*SpacesClient, error) {
	sess, err := session.NewSession(&aws.Config{
		Endpoint:    aws.String(config.Endpoint), // e.g., "nyc3.digitaloceanspaces.com"
		Region:      aws.String(config.Region),
		Credentials: credentials.NewStaticCredentials(config.AccessKey, config.SecretKey, ""),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return newSpacesClient(s3.New(sess), config), nil
}

func newSpacesClient(api s3iface.S3API, config SpacesConfig) *SpacesClient {
	prefix := config.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &SpacesClient{
		client:     api,
		bucket:     config.Bucket,
		pathPrefix: prefix,
		now:        time.Now,
	}
}

// UploadExport uploads an event export under a date-based key and returns
// the key. name is reduced to its base name and given a .jsonl suffix.
func (s *SpacesClient) UploadExport(ctx context.Context, name string, events int, data io.Reader) (string, error) {
	name = strings.TrimSuffix(path.Base(name), ".jsonl")
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("export name cannot be empty")
	}
	now := s.now().UTC()
	key := fmt.Sprintf("%s%s/%s.jsonl", s.pathPrefix, now.Format("2006-01-02"), name)

	// PutObject needs an io.ReadSeeker
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, data); err != nil {
		return "", fmt.Errorf("failed to read export: %w", err)
	}

	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(buf.Bytes()),
		Metadata: map[string]*string{
			"event-count": aws.String(fmt.Sprintf("%d", events)),
			"export-time": aws.String(now.Format(time.RFC3339)),
		},
		ContentType: aws.String("application/x-jsonlines"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload export: %w", err)
	}

	return key, nil
}

// GetExport retrieves an export. The caller closes the returned reader.
func (s *SpacesClient) GetExport(ctx context.Context, key string) (io.ReadCloser, error) {
	result, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get export: %w", err)
	}
	return result.Body, nil
}

// ListExports lists the export keys uploaded on date
func (s *SpacesClient) ListExports(ctx context.Context, date time.Time) ([]string, error) {
	prefix := fmt.Sprintf("%s%s/", s.pathPrefix, date.UTC().Format("2006-01-02"))

	var keys []string
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			keys = append(keys, aws.StringValue(obj.Key))
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list exports: %w", err)
	}
	return keys, nil
}

// DeleteExport deletes an export
func (s *SpacesClient) DeleteExport(ctx context.Context, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete export: %w", err)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
