// Package app builds the harvester's long-lived services from Config and
// tears them down in order.
package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/review-harvester/internal/config"
	"github.com/JakeFAU/review-harvester/internal/extract"
	collyfetcher "github.com/JakeFAU/review-harvester/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/review-harvester/internal/fetcher/headless"
	"github.com/JakeFAU/review-harvester/internal/fetcher/promote"
	"github.com/JakeFAU/review-harvester/internal/harvest"
	"github.com/JakeFAU/review-harvester/internal/headless/detector"
	"github.com/JakeFAU/review-harvester/internal/metrics"
	"github.com/JakeFAU/review-harvester/internal/progress"
	progresssinks "github.com/JakeFAU/review-harvester/internal/progress/sinks"
	gcppublisher "github.com/JakeFAU/review-harvester/internal/publisher/pubsub"
	"github.com/JakeFAU/review-harvester/internal/scheduler"
	gcsstorage "github.com/JakeFAU/review-harvester/internal/storage/gcs"
	localstorage "github.com/JakeFAU/review-harvester/internal/storage/local"
	pgstore "github.com/JakeFAU/review-harvester/internal/storage/postgres"
	"github.com/JakeFAU/review-harvester/internal/store"
	"github.com/JakeFAU/review-harvester/internal/walker"
)

const shutdownTimeout = 10 * time.Second

// App contains the harvester's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	store     *store.Store
	scheduler *scheduler.Scheduler
	registry  *prometheus.Registry

	progressHub   *progress.Hub
	metricsServer *metrics.Server
	headless      *headlessfetcher.Fetcher
	ledger        *pgstore.Ledger
	storageClient *storage.Client
	pubsubClient  *pubsub.Client
	publisher     *gcppublisher.Publisher
}

// Store exposes the target store, e.g. for status reporting.
func (a *App) Store() *store.Store {
	return a.store
}

// Registry exposes the Prometheus registry shared by sinks and the endpoint.
func (a *App) Registry() *prometheus.Registry {
	return a.registry
}

// NewStore opens the local output tree and the optional mirror. It does not
// touch any network service when mirror is nil.
func NewStore(cfg config.Config, mirror harvest.BlobStore, logger *zap.Logger) (*store.Store, error) {
	artifacts, err := localstorage.New(localstorage.Config{BaseDir: cfg.Harvest.OutputRoot})
	if err != nil {
		return nil, fmt.Errorf("output root init failed: %w", err)
	}
	st, err := store.New(store.Config{
		InputPath: cfg.Harvest.InputPath,
		BaseURL:   cfg.Harvest.BaseURL,
	}, artifacts, mirror, logger)
	if err != nil {
		return nil, fmt.Errorf("target store init failed: %w", err)
	}
	return st, nil
}

// Build creates the application's dependencies. On error everything built
// so far is released.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	defer func() {
		if err != nil {
			closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			_ = a.Close(closeCtx)
		}
	}()

	a.logger.Info("building application dependencies",
		zap.String("input", cfg.Harvest.InputPath),
		zap.String("output_root", cfg.Harvest.OutputRoot),
		zap.Int("concurrency", cfg.Harvest.Concurrency),
	)

	mirror, err := a.setupMirror(ctx)
	if err != nil {
		return nil, err
	}
	a.store, err = NewStore(cfg, mirror, logger)
	if err != nil {
		return nil, err
	}
	if err = a.setupLedger(ctx); err != nil {
		return nil, err
	}
	if err = a.setupPublisher(ctx); err != nil {
		return nil, err
	}
	if err = a.setupProgress(ctx); err != nil {
		return nil, err
	}
	if err = a.setupMetrics(); err != nil {
		return nil, err
	}
	pageWalker, err := a.setupWalker()
	if err != nil {
		return nil, err
	}

	a.scheduler, err = scheduler.New(scheduler.Config{
		Concurrency: cfg.Harvest.Concurrency,
		QueueDepth:  cfg.Harvest.EffectiveQueueDepth(),
	}, a.store, pageWalker, a.progressHub, logger)
	if err != nil {
		return nil, fmt.Errorf("scheduler init failed: %w", err)
	}
	return a, nil
}

func (a *App) setupMirror(ctx context.Context) (harvest.BlobStore, error) {
	if a.cfg.Storage.GCSBucket == "" {
		a.logger.Info("artifact mirror disabled")
		return nil, nil
	}
	var err error
	a.storageClient, err = storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs client init failed: %w", err)
	}
	mirror, err := gcsstorage.New(a.storageClient, gcsstorage.Config{
		Bucket: a.cfg.Storage.GCSBucket,
		Prefix: a.cfg.Storage.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("gcs blob store init failed: %w", err)
	}
	if err := mirror.CheckBucket(ctx); err != nil {
		return nil, err
	}
	a.logger.Info("artifact mirror enabled",
		zap.String("bucket", a.cfg.Storage.GCSBucket),
		zap.String("prefix", a.cfg.Storage.Prefix),
	)
	return mirror, nil
}

func (a *App) setupLedger(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Info("outcome ledger disabled")
		return nil
	}
	var err error
	a.ledger, err = pgstore.NewLedger(ctx, pgstore.LedgerConfig{
		DSN:      a.cfg.DB.DSN,
		Table:    a.cfg.DB.Table,
		MaxConns: int32(a.cfg.DB.MaxConns), //nolint:gosec // validated small positive value
	})
	if err != nil {
		return fmt.Errorf("outcome ledger init failed: %w", err)
	}
	if err := a.ledger.EnsureSchema(ctx); err != nil {
		return err
	}
	a.logger.Info("outcome ledger initialized", zap.String("table", a.cfg.DB.Table))
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	if a.cfg.PubSub.TopicName == "" {
		a.logger.Info("completion notifications disabled")
		return nil
	}
	var err error
	a.pubsubClient, err = pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.publisher = gcppublisher.New(a.pubsubClient, a.cfg.PubSub.TopicName)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return nil
}

func (a *App) setupProgress(ctx context.Context) error {
	promSink, err := progresssinks.NewPrometheusSink(a.registry)
	if err != nil {
		return fmt.Errorf("prometheus sink init failed: %w", err)
	}
	sinkList := []progress.Sink{
		progresssinks.NewLogSink(a.logger),
		promSink,
	}
	if a.ledger != nil {
		sinkList = append(sinkList, progresssinks.NewStoreSink(a.ledger, a.logger))
	}
	if a.publisher != nil {
		sinkList = append(sinkList, progresssinks.NewPublishSink(a.publisher, a.cfg.PubSub.TopicName))
	}

	hubCfg := progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   a.cfg.Progress.MaxBatchWait(),
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         a.logger.Named("progress_hub"),
	}
	a.progressHub = progress.NewHub(hubCfg, sinkList...)
	a.logger.Info("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return nil
}

func (a *App) setupMetrics() error {
	if a.cfg.Metrics.Addr == "" {
		return nil
	}
	m, err := metrics.New(a.registry)
	if err != nil {
		return fmt.Errorf("metrics init failed: %w", err)
	}
	a.metricsServer = metrics.NewServer(a.cfg.Metrics.Addr, metrics.Router(m), a.logger)
	return nil
}

func (a *App) setupWalker() (*walker.Walker, error) {
	extractor, err := extract.New(a.cfg.Harvest.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("extractor init failed: %w", err)
	}

	var fetcher harvest.Fetcher = collyfetcher.New(collyfetcher.Config{
		UserAgent: a.cfg.Harvest.UserAgent,
		Timeout:   a.cfg.HTTP.Timeout(),
	})
	a.logger.Info("using colly fetcher", zap.Duration("timeout", a.cfg.HTTP.Timeout()))

	if a.cfg.Headless.Enabled {
		a.headless, err = headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       a.cfg.Headless.MaxParallel,
			UserAgent:         a.cfg.Harvest.UserAgent,
			NavigationTimeout: a.cfg.Headless.NavTimeout(),
		})
		if err != nil {
			return nil, fmt.Errorf("headless fetcher init failed: %w", err)
		}
		fetcher = promote.New(fetcher, a.headless, detector.NewHeuristic(a.cfg.Headless.BodyThreshold), a.logger)
		a.logger.Info("headless promotion enabled",
			zap.Int("max_parallel", a.cfg.Headless.MaxParallel),
			zap.Int("body_threshold", a.cfg.Headless.BodyThreshold),
		)
	}

	return walker.New(fetcher, extractor, walker.Config{
		UserAgent: a.cfg.Harvest.UserAgent,
		MaxPages:  a.cfg.Harvest.MaxPages,
	}, a.logger), nil
}

// Run loads the targets and harvests them. SIGINT and SIGTERM stop new
// targets from starting; in-flight targets still finish.
func (a *App) Run(ctx context.Context) (scheduler.Stats, error) {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.metricsServer != nil {
		if err := a.metricsServer.Start(); err != nil {
			return scheduler.Stats{}, err
		}
	}

	targets, err := a.store.LoadTargets(ctx)
	if err != nil {
		return scheduler.Stats{}, err
	}
	return a.scheduler.Run(ctx, targets)
}

// Close gracefully shuts down the application. The progress hub is drained
// before the clients its sinks write through are closed.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	if a.headless != nil {
		a.headless.Close()
	}
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	if a.storageClient != nil {
		if err := a.storageClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	if a.ledger != nil {
		a.ledger.Close()
	}
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}
