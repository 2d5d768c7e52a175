package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fecview/internal/common"
	"github.com/ternarybob/fecview/internal/downloads"
	"github.com/ternarybob/fecview/internal/fecapi"
	"github.com/ternarybob/fecview/internal/handlers"
	"github.com/ternarybob/fecview/internal/interfaces"
	"github.com/ternarybob/fecview/internal/metrics"
	"github.com/ternarybob/fecview/internal/storage/badger"
	"github.com/ternarybob/fecview/internal/tables"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Storage
	DB      *badger.BadgerDB
	KVStore interfaces.KeyValueStorage

	Metrics *metrics.Metrics
	Client  *fecapi.Client

	// Downloads
	DownloadHub     *handlers.DownloadHub
	DownloadManager *downloads.Manager

	// Tables
	Catalog  *tables.Catalog
	Sessions *tables.Sessions

	// HTTP handlers
	APIHandler      *handlers.APIHandler
	DownloadHandler *handlers.DownloadHandler
	TableHandler    *handlers.TableHandler
	PageHandler     *handlers.PageHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	// Resume downloads left open by the previous run
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := app.DownloadManager.Hydrate(ctx); err != nil {
		app.Logger.Warn().Err(err).Msg("Failed to rehydrate downloads")
	}

	logger.Info().
		Int("tables", len(app.Catalog.List())).
		Int("downloads", app.DownloadHub.Count()).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase opens the badger store backing download records
func (a *App) initDatabase() error {
	db, err := badger.NewBadgerDB(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return err
	}

	a.DB = db
	a.KVStore = badger.NewKVStorage(db, a.Logger)
	return nil
}

// initServices wires metrics, the API client, the download registry and table sessions
func (a *App) initServices() error {
	var err error

	a.Metrics, err = metrics.New()
	if err != nil {
		return err
	}

	apiCfg := a.Config.API
	a.Client = fecapi.NewClient(apiCfg.Key,
		fecapi.WithLocation(apiCfg.Location, apiCfg.Version),
		fecapi.WithTimeout(common.ParseDuration(apiCfg.Timeout, fecapi.DefaultTimeout)),
		fecapi.WithRateLimit(apiCfg.RateLimit),
		fecapi.WithRetry(apiCfg.RetryAttempts, common.ParseDuration(apiCfg.RetryBackoff, fecapi.DefaultRetryBackoff)),
		fecapi.WithObserver(a.Metrics),
		fecapi.WithLogger(a.Logger),
	)

	a.DownloadHub = handlers.NewDownloadHub(a.Logger)
	a.DownloadManager = downloads.NewManager(
		downloads.NewStore(a.KVStore, a.Logger),
		a.Client,
		a.DownloadHub,
		a.Logger,
		downloads.WithMaxJobs(a.Config.Downloads.MaxJobs),
		downloads.WithPollInterval(common.ParseDuration(a.Config.Downloads.PollInterval, downloads.DefaultPollInterval)),
		downloads.WithObserver(a.Metrics),
	)

	a.Catalog, err = tables.LoadCatalog(a.Config.Tables.DefinitionsDir, a.Logger)
	if err != nil {
		return err
	}

	tablesCfg := a.Config.Tables
	a.Sessions, err = tables.NewSessions(a.Catalog, a.Client,
		common.ParseDuration(tablesCfg.SessionTTL, tables.DefaultSessionTTL),
		a.Logger,
		tables.WithDebounce(common.ParseDuration(tablesCfg.Debounce, tables.DefaultDebounce)),
		tables.WithBreakpoint(tablesCfg.PanelBreakpoint),
		tables.WithObserver(a.Metrics),
	)
	if err != nil {
		return err
	}

	return nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.Logger, a.DownloadHub)
	a.DownloadHandler = handlers.NewDownloadHandler(a.DownloadManager, a.Logger)
	a.TableHandler = handlers.NewTableHandler(a.Sessions, a.Logger)
	a.PageHandler = handlers.NewPageHandler(a.Catalog, a.Client.Endpoint(""), a.Logger)
}

// Close suspends live downloads and releases sessions, metrics and storage
func (a *App) Close() error {
	if a.DownloadManager != nil {
		a.DownloadManager.Shutdown()
	}

	if a.Sessions != nil {
		a.Sessions.Close()
	}

	if a.Metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Metrics.Shutdown(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to shut down metrics")
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
