// Package app initializes and holds the long-lived application services,
// acting as a dependency injection container. It is built once in the CLI's
// PersistentPreRunE and passed to commands through the context.
package app

import (
	"context"
	"fmt"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/agriveille/prefecture-crawler/internal/archive"
	archivegcs "github.com/agriveille/prefecture-crawler/internal/archive/gcs"
	archivelocal "github.com/agriveille/prefecture-crawler/internal/archive/local"
	archivememory "github.com/agriveille/prefecture-crawler/internal/archive/memory"
	"github.com/agriveille/prefecture-crawler/internal/config"
	"github.com/agriveille/prefecture-crawler/internal/logging"
	"github.com/agriveille/prefecture-crawler/internal/notify"
	notifymemory "github.com/agriveille/prefecture-crawler/internal/notify/memory"
	notifypubsub "github.com/agriveille/prefecture-crawler/internal/notify/pubsub"
	storagememory "github.com/agriveille/prefecture-crawler/internal/storage/memory"
	storagepostgres "github.com/agriveille/prefecture-crawler/internal/storage/postgres"
	"github.com/agriveille/prefecture-crawler/internal/store"
)

// App holds the shared, long-lived services: the typed configuration, the
// logger, the document and run stores, the snapshot archive, and the
// change-event publisher. Commands assemble their own short-lived machinery
// (fetch client, oracle, pipeline) on top of these.
type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Docs     store.DocumentStore
	Runs     store.RunStore
	Blobs    archive.BlobStore
	Notifier notify.Publisher

	closers []func()
}

// New reads the resolved Viper configuration and initializes every provider
// it names. It fails fast: any unreachable or misconfigured service aborts
// startup rather than surfacing mid-crawl.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	if err := logging.Init(cfg.Logging.Development); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	l := logging.L
	l.Info("initializing application services")

	a := &App{Config: cfg, Logger: l}

	if err := a.initStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initArchive(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initNotifier(ctx); err != nil {
		a.Close()
		return nil, err
	}

	l.Info("application services initialized",
		zap.String("store", cfg.Store.Provider),
		zap.String("archive", cfg.Archive.Provider),
		zap.String("notify", cfg.Notify.Provider),
	)
	return a, nil
}

func (a *App) initStore(ctx context.Context) error {
	switch a.Config.Store.Provider {
	case "postgres":
		a.Logger.Info("connecting to PostgreSQL")
		stores, err := storagepostgres.Connect(ctx, storagepostgres.DocumentStoreConfig{
			DSN:      a.Config.Store.Postgres.DSN,
			MaxConns: a.Config.Store.Postgres.MaxConns,
		})
		if err != nil {
			return fmt.Errorf("initialize store: %w", err)
		}
		a.Docs = stores.Docs
		a.Runs = stores.Runs
		a.closers = append(a.closers, stores.Close)
	case "memory":
		a.Logger.Info("using in-memory store; documents are discarded on exit")
		a.Docs = storagememory.NewDocumentStore()
		a.Runs = storagememory.NewRunStore()
	default:
		return fmt.Errorf("unknown store provider: %q", a.Config.Store.Provider)
	}
	return nil
}

func (a *App) initArchive(ctx context.Context) error {
	switch a.Config.Archive.Provider {
	case "gcs":
		a.Logger.Info("using GCS snapshot archive", zap.String("bucket", a.Config.Archive.GCS.Bucket))
		blobs, err := archivegcs.Connect(ctx, archivegcs.Config{Bucket: a.Config.Archive.GCS.Bucket})
		if err != nil {
			return fmt.Errorf("initialize archive: %w", err)
		}
		a.Blobs = blobs
		a.closers = append(a.closers, blobs.Close)
	case "local":
		a.Logger.Info("using local snapshot archive", zap.String("dir", a.Config.Archive.Local.BaseDir))
		blobs, err := archivelocal.New(archivelocal.Config{BaseDir: a.Config.Archive.Local.BaseDir})
		if err != nil {
			return fmt.Errorf("initialize archive: %w", err)
		}
		a.Blobs = blobs
	case "memory":
		a.Blobs = archivememory.NewBlobStore()
	case "noop":
		a.Logger.Info("snapshot archiving disabled")
		a.Blobs = archive.Noop{}
	default:
		return fmt.Errorf("unknown archive provider: %q", a.Config.Archive.Provider)
	}
	return nil
}

func (a *App) initNotifier(ctx context.Context) error {
	switch a.Config.Notify.Provider {
	case "pubsub":
		a.Logger.Info("connecting to Pub/Sub",
			zap.String("project", a.Config.Notify.PubSub.ProjectID),
			zap.String("topic", a.Config.Notify.PubSub.TopicID),
		)
		pub, err := notifypubsub.Connect(ctx, a.Config.Notify.PubSub.ProjectID, a.Config.Notify.PubSub.TopicID)
		if err != nil {
			return fmt.Errorf("initialize notifier: %w", err)
		}
		a.Notifier = pub
		a.closers = append(a.closers, pub.Close)
	case "memory":
		a.Notifier = notifymemory.New()
	case "noop":
		a.Logger.Info("change-event publishing disabled")
		a.Notifier = notify.Noop{}
	default:
		return fmt.Errorf("unknown notify provider: %q", a.Config.Notify.Provider)
	}
	return nil
}

// Close shuts down every owned service in reverse initialization order and
// flushes the logger. Safe to call on a partially initialized App.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Logger != nil {
		a.Logger.Info("shutting down application services")
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	if a.Logger != nil {
		// Stderr sync fails on some platforms; nothing useful to do about it.
		_ = a.Logger.Sync()
	}
}
