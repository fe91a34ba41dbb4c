// Package gcs provides an artifact store backed by Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/kingotools/capture/internal/capture"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	Prefix string
}

// ArtifactStore writes task artifacts to a configured GCS bucket.
type ArtifactStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed artifact store.
func New(client *storage.Client, cfg Config) (*ArtifactStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix == "" {
		prefix = "tasks"
	}
	return &ArtifactStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: prefix,
	}, nil
}

// ContextOf returns the artifact context for a task's object prefix.
func (s *ArtifactStore) ContextOf(taskID string) (capture.ArtifactContext, error) {
	if strings.TrimSpace(taskID) == "" {
		return nil, fmt.Errorf("task id is required")
	}
	return &artifactContext{
		store:  s,
		prefix: fmt.Sprintf("%s/%s", s.prefix, taskID),
	}, nil
}

type artifactContext struct {
	store  *ArtifactStore
	prefix string
}

// Exists always reports true: object prefixes need no creation step.
func (c *artifactContext) Exists() bool {
	return true
}

func (c *artifactContext) MkdirAll() error {
	return nil
}

func (c *artifactContext) Put(ctx context.Context, name string, data []byte) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("artifact name is required")
	}
	path := fmt.Sprintf("%s/%s.json", c.prefix, name)
	writer := c.store.client.Bucket(c.store.bucket).Object(path).NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := writer.Write(data); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}
