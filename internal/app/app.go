package app

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/embeddings"
	"github.com/ternarybob/colligo/internal/handlers"
	"github.com/ternarybob/colligo/internal/indexing"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/jobs"
	"github.com/ternarybob/colligo/internal/scheduler"
	"github.com/ternarybob/colligo/internal/sources/docshare"
	"github.com/ternarybob/colligo/internal/sources/kbase"
	"github.com/ternarybob/colligo/internal/sources/localfs"
	"github.com/ternarybob/colligo/internal/sources/upload"
	"github.com/ternarybob/colligo/internal/sources/wiki"
	badgerstore "github.com/ternarybob/colligo/internal/storage/badger"
	"github.com/ternarybob/colligo/internal/worker"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Storage
	DB              *badgerstore.BadgerDB
	JobStore        *badgerstore.JobStore
	ConnectionStore *badgerstore.ConnectionStore
	IndexStore      *badgerstore.IndexStore

	// Indexing pipeline
	Embeddings      *embeddings.Client
	IndexingService *indexing.Service

	// Job engine
	Pool     *worker.Pool
	Registry *jobs.FeatureRegistry
	Queue    *jobs.Queue

	// Scheduler
	Scheduler *scheduler.Service

	// HTTP handlers
	JobHandler    *handlers.JobHandler
	FileHandler   *handlers.FileHandler
	HealthHandler *handlers.HealthHandler
	APIHandler    *handlers.APIHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.initServices()
	app.initHandlers()

	if err := app.Scheduler.Start(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Int("workers", cfg.Jobs.MaxWorkers).
		Msg("Application initialization complete")

	return app, nil
}

// initStorage initializes the storage layer (Badger)
func (a *App) initStorage() error {
	db, err := badgerstore.NewBadgerDB(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return err
	}
	a.DB = db

	jobStore, err := badgerstore.NewJobStore(db, a.Logger)
	if err != nil {
		db.Close()
		return err
	}
	a.JobStore = jobStore
	a.ConnectionStore = badgerstore.NewConnectionStore(db, a.Logger)
	a.IndexStore = badgerstore.NewIndexStore(db, a.Logger)

	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")
	return nil
}

// initServices initializes the indexing pipeline and the job engine.
func (a *App) initServices() {
	a.Embeddings = embeddings.NewClient(&a.Config.Embeddings, a.Logger)
	a.IndexingService = indexing.NewService(a.IndexStore, a.Embeddings, &a.Config.Indexing, a.Logger)

	a.Pool = worker.NewPool(a.Logger, a.Config.Jobs.MaxWorkers)
	a.Pool.Start()

	// Registration order is the request acceptance order.
	a.Registry = jobs.NewFeatureRegistry(a.Logger,
		kbase.NewFeature(&a.Config.Sources.Kbase, a.ConnectionStore, a.Logger),
		wiki.NewFeature(&a.Config.Sources.Wiki, a.ConnectionStore, a.Logger),
		docshare.NewFeature(&a.Config.Sources.Docshare, a.ConnectionStore, a.Logger),
		upload.NewFeature(a.JobStore, a.Logger),
		localfs.NewFeature(&a.Config.Sources.LocalFS, a.Logger),
	)

	chainFactory := func(base interfaces.Chain, feature interfaces.Feature) interfaces.IndexingChain {
		return indexing.NewChain(base, feature, a.IndexingService)
	}
	a.Queue = jobs.NewQueue(
		a.JobStore,
		a.Registry,
		a.Pool,
		chainFactory,
		a.Logger,
		common.NodeName(),
		a.Config.Jobs.StepBatchSize,
	)

	a.Scheduler = scheduler.NewService(a.Queue, &a.Config.Scheduler, a.Logger)
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() {
	a.JobHandler = handlers.NewJobHandler(a.Queue, a.Logger)
	a.FileHandler = handlers.NewFileHandler(a.Queue, a.Config.Upload.MaxFileSize, a.Logger)
	a.HealthHandler = handlers.NewHealthHandler(a.Logger,
		&pingIndicator{name: "storage", ping: a.IndexStore.Ping},
		&pingIndicator{name: "embeddings", ping: a.Embeddings.Ping},
	)
	a.APIHandler = handlers.NewAPIHandler(a.Logger)
}

// Close closes all application resources
func (a *App) Close() error {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}

	if a.Pool != nil {
		a.Pool.Stop()
		a.Logger.Info().Msg("Worker pool stopped")
	}

	if a.JobStore != nil {
		if err := a.JobStore.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close job store")
		}
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
