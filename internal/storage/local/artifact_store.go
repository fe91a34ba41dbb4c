// Package local implements a local filesystem artifact store, one directory
// per task and one JSON file per work item.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kingotools/capture/internal/capture"
)

// Config captures the parameters for the local artifact store.
type Config struct {
	// BaseDir is the root directory task artifact directories live under.
	BaseDir string `mapstructure:"base_dir"`
}

// ArtifactStore writes task artifacts to the local filesystem.
type ArtifactStore struct {
	baseDir string
}

// New creates a filesystem-backed artifact store, creating the base
// directory if needed.
func New(cfg Config) (*ArtifactStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat base directory: %w", err)
		}
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create base directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}
	return &ArtifactStore{baseDir: cfg.BaseDir}, nil
}

// ContextOf returns the artifact context rooted at the task's directory.
func (s *ArtifactStore) ContextOf(taskID string) (capture.ArtifactContext, error) {
	if strings.TrimSpace(taskID) == "" {
		return nil, fmt.Errorf("task id is required")
	}
	dir := filepath.Join(s.baseDir, taskID)

	// Verify the resolved path stays inside baseDir to prevent traversal.
	cleanBase := filepath.Clean(s.baseDir)
	cleanDir := filepath.Clean(dir)
	if !strings.HasPrefix(cleanDir, cleanBase+string(filepath.Separator)) {
		return nil, fmt.Errorf("path traversal detected")
	}
	return &artifactContext{dir: cleanDir}, nil
}

type artifactContext struct {
	dir string
}

func (c *artifactContext) Exists() bool {
	info, err := os.Stat(c.dir)
	return err == nil && info.IsDir()
}

func (c *artifactContext) MkdirAll() error {
	if err := os.MkdirAll(c.dir, 0o750); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}
	return nil
}

func (c *artifactContext) Put(_ context.Context, name string, data []byte) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("artifact name is required")
	}
	path := filepath.Join(c.dir, filepath.Base(name)+".json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}
