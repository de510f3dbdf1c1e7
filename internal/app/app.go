// Package app builds the long-lived services of a link-mapping run and
// drives a run from loaded links to a drained dispatcher.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/linkmapper/internal/api"
	"github.com/JakeFAU/linkmapper/internal/clock/system"
	"github.com/JakeFAU/linkmapper/internal/config"
	"github.com/JakeFAU/linkmapper/internal/delegate/pubsub"
	"github.com/JakeFAU/linkmapper/internal/download"
	"github.com/JakeFAU/linkmapper/internal/fallback"
	"github.com/JakeFAU/linkmapper/internal/handler"
	"github.com/JakeFAU/linkmapper/internal/links"
	"github.com/JakeFAU/linkmapper/internal/logging"
	"github.com/JakeFAU/linkmapper/internal/mapper"
	"github.com/JakeFAU/linkmapper/internal/metrics"
	"github.com/JakeFAU/linkmapper/internal/progress"
	"github.com/JakeFAU/linkmapper/internal/progress/sinks"
	"github.com/JakeFAU/linkmapper/internal/ratelimit"
	"github.com/JakeFAU/linkmapper/internal/registry"
	"github.com/JakeFAU/linkmapper/internal/scraper"
	"github.com/JakeFAU/linkmapper/internal/storage/gcs"
	"github.com/JakeFAU/linkmapper/internal/storage/local"
	"github.com/JakeFAU/linkmapper/internal/storage/memory"
	"github.com/JakeFAU/linkmapper/internal/storage/postgres"
	"github.com/JakeFAU/linkmapper/internal/storage/sqlite"
)

const drainTimeout = 30 * time.Second

// UnsupportedStore is an unsupported-links backend the app owns and closes.
type UnsupportedStore interface {
	scraper.UnsupportedLog
	Close() error
}

// Summary describes a finished run.
type Summary struct {
	RunID     string
	Loaded    int
	State     mapper.State
	Stats     mapper.Stats
	Handlers  []registry.Binding
	Failed    []string
	Downloads map[string]int
	Elapsed   time.Duration
}

// Option customizes New.
type Option func(*options)

type options struct {
	logger        *zap.Logger
	factories     map[string]registry.Factory
	unsupported   UnsupportedStore
	executor      download.Executor
	clientOptions []option.ClientOption
	storageOpts   []option.ClientOption
	clock         scraper.Clock
}

// WithLogger replaces the logger built from config.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithFactories replaces the handler catalog.
func WithFactories(factories map[string]registry.Factory) Option {
	return func(o *options) { o.factories = factories }
}

// WithUnsupportedStore replaces the configured unsupported-links backend.
func WithUnsupportedStore(store UnsupportedStore) Option {
	return func(o *options) { o.unsupported = store }
}

// WithExecutor replaces the configured download executor.
func WithExecutor(executor download.Executor) Option {
	return func(o *options) { o.executor = executor }
}

// WithDelegateClientOptions passes options to the Pub/Sub client.
func WithDelegateClientOptions(opts ...option.ClientOption) Option {
	return func(o *options) { o.clientOptions = append(o.clientOptions, opts...) }
}

// WithStorageClientOptions passes options to the Cloud Storage client of the gcs backend.
func WithStorageClientOptions(opts ...option.ClientOption) Option {
	return func(o *options) { o.storageOpts = append(o.storageOpts, opts...) }
}

// WithClock overrides the session clock.
func WithClock(clock scraper.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// App holds the services shared by one run.
type App struct {
	cfg         config.Config
	logger      *zap.Logger
	runID       uuid.UUID
	metrics     *prometheus.Registry
	hub         *progress.Hub
	downloads   *download.Manager
	manifest    *download.ManifestExecutor
	session     *scraper.Session
	handlers    *registry.Registry
	unsupported UnsupportedStore
	delegate    scraper.Delegate
	mapper      *mapper.Mapper
	loader      *links.Loader
	server      *http.Server
}

// New wires every component from cfg. It fails fast when a configured
// backend cannot be opened.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		var err error
		logger, err = logging.New(cfg.Logging.Development, cfg.Logging.Level)
		if err != nil {
			return nil, err
		}
	}
	clock := o.clock
	if clock == nil {
		clock = system.New()
	}
	runID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}
	a := &App{cfg: cfg, logger: logger, runID: runID, metrics: prometheus.NewRegistry()}

	promSink, err := sinks.NewPrometheusSink(a.metrics)
	if err != nil {
		return nil, err
	}
	collectors, err := metrics.New(a.metrics)
	if err != nil {
		return nil, err
	}
	a.hub = progress.NewHub(progress.Config{
		BufferSize:     cfg.Progress.BufferSize,
		MaxBatchEvents: cfg.Progress.MaxBatchEvents,
		FlushInterval:  cfg.FlushInterval(),
		Logger:         logger,
	}, sinks.NewLogSink(logger.Named("progress")), promSink)

	executor := o.executor
	if executor == nil {
		executor, err = a.openExecutor()
		if err != nil {
			a.closeQuietly()
			return nil, err
		}
	}
	a.downloads = download.NewManager(executor, logger)

	a.session, err = scraper.NewSession(a.downloads, scraper.Settings{
		SkipHosts:    cfg.Ignore.SkipHosts,
		OnlyHosts:    cfg.Ignore.OnlyHosts,
		DownloadsDir: cfg.Downloads.Dir,
	},
		scraper.WithRunID(runID),
		scraper.WithLogger(logger),
		scraper.WithEvents(a.hub),
		scraper.WithClock(clock),
	)
	if err != nil {
		a.closeQuietly()
		return nil, err
	}

	factories := o.factories
	if factories == nil {
		factories = handler.Catalog(handler.Options{
			Fetch: handler.FetchConfig{
				UserAgent: cfg.Crawler.UserAgent,
				Timeout:   cfg.FetchTimeout(),
				Observer:  collectors,
			},
			Limiter: ratelimit.New(ratelimit.Config{
				RPS:   cfg.Crawler.RPS,
				Burst: cfg.Crawler.Burst,
				Hosts: cfg.HostRates(),
			}),
			Disabled: cfg.Crawler.Disabled,
		})
	}
	a.handlers = registry.New(a.session, factories)

	unsupported := o.unsupported
	if unsupported == nil {
		unsupported, err = openUnsupported(ctx, cfg, runID, o.storageOpts)
		if err != nil {
			a.closeQuietly()
			return nil, err
		}
	}
	a.unsupported = unsupported
	if cfg.Delegate.Enabled {
		a.delegate = pubsub.New(pubsub.Config{
			Enabled:       true,
			ProjectID:     cfg.Delegate.ProjectID,
			TopicID:       cfg.Delegate.TopicID,
			ClientOptions: o.clientOptions,
		}, runID, logger)
	}

	a.mapper, err = mapper.New(mapper.Config{
		Session:      a.session,
		Handlers:     a.handlers,
		Fallback:     fallback.New(a.session, a.delegate, a.unsupported),
		PollInterval: cfg.PollInterval(),
	})
	if err != nil {
		a.closeQuietly()
		return nil, err
	}
	a.loader = links.NewLoader(a.session, logger.Named("links"))

	if cfg.Server.Enabled {
		srv := api.NewServer(api.Options{
			RunID:     runID.String(),
			Run:       a.mapper,
			Bindings:  a.handlers,
			Downloads: a.downloads,
			Gatherer:  a.metrics,
			Metrics:   collectors,
			Logger:    logger,
		})
		a.server = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return a, nil
}

func (a *App) openExecutor() (download.Executor, error) {
	switch a.cfg.Downloads.Executor {
	case config.ExecutorLog:
		return download.NewLogExecutor(a.logger), nil
	default:
		m, err := download.OpenManifest(a.cfg.Downloads.Manifest, a.runID)
		if err != nil {
			return nil, err
		}
		a.manifest = m
		return m, nil
	}
}

func openUnsupported(ctx context.Context, full config.Config, runID uuid.UUID, storageOpts []option.ClientOption) (UnsupportedStore, error) {
	cfg := full.Unsupported
	switch cfg.Backend {
	case config.BackendMemory:
		return memory.NewUnsupportedStore(), nil
	case config.BackendSQLite:
		store, err := sqlite.New(cfg.SQLitePath, runID)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendPostgres:
		store, err := postgres.NewUnsupportedStore(ctx, postgres.Config{
			DSN:         cfg.Postgres.DSN,
			Table:       cfg.Postgres.Table,
			MaxConns:    cfg.Postgres.MaxConns,
			CreateTable: cfg.Postgres.CreateTable,
		}, runID)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendGCS:
		store, err := gcs.New(ctx, gcs.Config{
			Bucket:        cfg.GCS.Bucket,
			Prefix:        cfg.GCS.Prefix,
			UploadTimeout: full.GCSUploadTimeout(),
		}, runID, storageOpts...)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		store, err := local.New(local.Config{Path: cfg.File, Truncate: cfg.Truncate})
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

// RunID identifies this run in logs, events and stores.
func (a *App) RunID() uuid.UUID { return a.runID }

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Metrics returns the registry backing /metrics.
func (a *App) Metrics() *prometheus.Registry { return a.metrics }

// Run loads links from the configured input file plus extra, dispatches them
// until every handler is complete, then drains the download queues.
func (a *App) Run(ctx context.Context, extra []string) (Summary, error) {
	start := time.Now()
	a.startServer()

	loaded, err := a.loader.Load(ctx, a.cfg.InputFile, extra)
	if err != nil {
		return a.summary(loaded, start), err
	}
	if loaded == 0 {
		return a.summary(0, start), nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if timeout := a.cfg.RunTimeout(); timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	runErr := a.mapper.Run(runCtx)
	cancel()

	drainCtx, drainCancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer drainCancel()
	if err := a.downloads.Close(drainCtx); err != nil {
		a.logger.Warn("download queues did not drain", zap.Error(err))
	}
	return a.summary(loaded, start), runErr
}

func (a *App) summary(loaded int, start time.Time) Summary {
	executed := a.downloads.Executed()
	dl := make(map[string]int)
	for _, name := range a.downloads.Capabilities() {
		dl[name] = executed[name]
	}
	return Summary{
		RunID:     a.runID.String(),
		Loaded:    loaded,
		State:     a.mapper.State(),
		Stats:     a.mapper.Stats(),
		Handlers:  a.handlers.Bindings(),
		Failed:    a.handlers.Failed(),
		Downloads: dl,
		Elapsed:   time.Since(start),
	}
}

func (a *App) startServer() {
	if a.server == nil {
		return
	}
	go func() {
		a.logger.Info("status server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("status server failed", zap.Error(err))
		}
	}()
}

// Close shuts every service down and reports all failures.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
		}
	}
	if a.delegate != nil {
		if err := a.delegate.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.unsupported != nil {
		if err := a.unsupported.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.downloads != nil {
		if err := a.downloads.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.manifest != nil {
		if err := a.manifest.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *App) closeQuietly() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		a.logger.Warn("cleanup after failed init", zap.Error(err))
	}
}

var _ scraper.Delegate = (*pubsub.Delegate)(nil)
