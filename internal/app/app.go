// Package app initializes and holds the long-lived services of the capture
// service, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"time"

	gcsclient "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/kingotools/capture/internal/auth"
	"github.com/kingotools/capture/internal/capture"
	clocksystem "github.com/kingotools/capture/internal/clock/system"
	"github.com/kingotools/capture/internal/config"
	"github.com/kingotools/capture/internal/enumerate"
	iduuid "github.com/kingotools/capture/internal/id/uuid"
	"github.com/kingotools/capture/internal/kingo"
	"github.com/kingotools/capture/internal/metrics"
	"github.com/kingotools/capture/internal/orchestrator"
	nooppub "github.com/kingotools/capture/internal/publisher/noop"
	gcppub "github.com/kingotools/capture/internal/publisher/pubsub"
	"github.com/kingotools/capture/internal/registry"
	"github.com/kingotools/capture/internal/storage/gcs"
	"github.com/kingotools/capture/internal/storage/local"
	"github.com/kingotools/capture/internal/storage/memory"
	"github.com/kingotools/capture/internal/storage/postgres"
	"github.com/kingotools/capture/internal/termcache"
	"github.com/kingotools/capture/internal/transport"
)

// App holds the shared, long-lived services for the application. It is
// initialized once at startup and passed to the components that need it.
type App struct {
	logger    *zap.Logger
	cfg       config.Config
	service   *orchestrator.Service
	store     capture.TaskStore
	publisher capture.Publisher
	gcsClient *gcsclient.Client
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Service exposes the orchestrator for the HTTP layer.
func (a *App) Service() *orchestrator.Service {
	return a.service
}

// New creates and initializes an App from configuration. It fails fast if
// any critical service cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("initializing application services")
	metrics.Init()

	site := kingo.NewSite(cfg.Kingo.BaseURL)

	a := &App{
		logger: logger,
		cfg:    cfg,
	}

	store, err := a.buildStore(ctx)
	if err != nil {
		return nil, err
	}
	a.store = store

	artifacts, err := a.buildArtifacts(ctx)
	if err != nil {
		return nil, err
	}

	pub, err := a.buildPublisher(ctx)
	if err != nil {
		return nil, err
	}
	a.publisher = pub

	terms, err := a.buildTermCache(site)
	if err != nil {
		return nil, err
	}

	counters := registry.NewCounters()

	a.service = orchestrator.New(orchestrator.Config{
		Store:       store,
		Artifacts:   artifacts,
		Registry:    registry.New(),
		Counters:    counters,
		Terms:       terms,
		Auth:        auth.New(site, kingo.LoginProcessor{}, logger),
		Enumerator:  enumerate.New(site, kingo.ParseCourseList, logger),
		Site:        site,
		Profile:     a.profileFor,
		ParseCourse: kingo.ParseCourseDetails,
		Publisher:   pub,
		Topic:       cfg.Publisher.Topic,
		Clock:       clocksystem.Clock{},
		IDs:         iduuid.Generator{},
		BaseContext: context.Background(),
		Logger:      logger,
	})

	logger.Info("application services initialized")
	return a, nil
}

func (a *App) buildStore(ctx context.Context) (capture.TaskStore, error) {
	switch a.cfg.DB.Provider {
	case "postgres":
		a.logger.Info("connecting to postgres task store")
		store, err := postgres.NewTaskStore(ctx, postgres.TaskStoreConfig{
			DSN:      a.cfg.DB.DSN,
			MaxConns: int32(a.cfg.DB.MaxConns),
		})
		if err != nil {
			return nil, fmt.Errorf("initialize task store: %w", err)
		}
		return store, nil
	case "memory":
		a.logger.Info("using in-memory task store")
		return memory.NewTaskStore(), nil
	default:
		return nil, fmt.Errorf("unknown db provider: %s", a.cfg.DB.Provider)
	}
}

func (a *App) buildArtifacts(ctx context.Context) (capture.ArtifactStore, error) {
	switch a.cfg.Storage.Provider {
	case "gcs":
		a.logger.Info("using GCS artifact store", zap.String("bucket", a.cfg.Storage.Bucket))
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		a.gcsClient = client
		store, err := gcs.New(client, gcs.Config{
			Bucket: a.cfg.Storage.Bucket,
			Prefix: a.cfg.Storage.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize artifact store: %w", err)
		}
		return store, nil
	case "local":
		a.logger.Info("using local artifact store", zap.String("base_dir", a.cfg.Storage.BaseDir))
		store, err := local.New(local.Config{BaseDir: a.cfg.Storage.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("initialize artifact store: %w", err)
		}
		return store, nil
	case "memory":
		a.logger.Info("using in-memory artifact store")
		return memory.NewArtifactStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage provider: %s", a.cfg.Storage.Provider)
	}
}

func (a *App) buildPublisher(ctx context.Context) (capture.Publisher, error) {
	switch a.cfg.Publisher.Provider {
	case "pubsub":
		a.logger.Info("connecting to pub/sub", zap.String("topic", a.cfg.Publisher.Topic))
		pub, err := gcppub.New(ctx, a.cfg.Publisher.ProjectID, a.cfg.Publisher.Topic)
		if err != nil {
			return nil, fmt.Errorf("initialize publisher: %w", err)
		}
		return pub, nil
	case "noop":
		return nooppub.New(), nil
	default:
		return nil, fmt.Errorf("unknown publisher provider: %s", a.cfg.Publisher.Provider)
	}
}

// buildTermCache wires a colly-backed loader for the term reference page
// behind the cache. The listing page is flaky, so the loader retries hard.
func (a *App) buildTermCache(site kingo.Site) (*termcache.Cache, error) {
	fetcher, err := transport.NewCollyFetcher(transport.Profile{
		BaseURL:   a.cfg.Kingo.BaseURL,
		UserAgent: a.cfg.Capture.UserAgent,
		Charset:   a.cfg.Capture.Charset,
		Timeout:   a.cfg.RequestTimeout(),
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("initialize term fetcher: %w", err)
	}

	retries := a.cfg.HTTP.TermListRetries
	if retries <= 0 {
		retries = 1
	}
	sleep := time.Duration(a.cfg.HTTP.RetrySleepMs) * time.Millisecond

	loader := func(ctx context.Context) (map[string]string, error) {
		var lastErr error
		for attempt := 0; attempt < retries; attempt++ {
			resp, err := fetcher.Fetch(ctx, site.ClassQueryPage())
			if err != nil {
				lastErr = err
			} else if terms := kingo.ParseTerms(resp.Text); len(terms) > 0 {
				return terms, nil
			} else {
				lastErr = fmt.Errorf("term selector missing from %s", site.ClassQueryPage())
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(sleep):
			}
		}
		return nil, fmt.Errorf("load term list: %w", lastErr)
	}
	return termcache.New(loader, a.logger), nil
}

// profileFor builds the per-job transport profile from operator settings.
func (a *App) profileFor(settings capture.Settings) transport.Profile {
	charset := settings.Encoding
	if charset == "" {
		charset = a.cfg.Capture.Charset
	}
	return transport.Profile{
		BaseURL:    a.cfg.Kingo.BaseURL,
		UserAgent:  a.cfg.Capture.UserAgent,
		Charset:    charset,
		Timeout:    a.cfg.RequestTimeout(),
		Retries:    a.cfg.HTTP.Retries,
		RetrySleep: time.Duration(a.cfg.HTTP.RetrySleepMs) * time.Millisecond,
		Sleep:      time.Duration(a.cfg.HTTP.SleepMs) * time.Millisecond,
	}
}

// Close gracefully shuts down the services held by the container.
func (a *App) Close() {
	a.logger.Info("shutting down application services")
	if closer, ok := a.store.(interface{ Close() }); ok {
		closer.Close()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("error closing publisher", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("error closing storage client", zap.Error(err))
		}
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Warn("error syncing logger on shutdown", zap.Error(err))
	}
}
