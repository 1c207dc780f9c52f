package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/rivalscope/research/internal/aggregate"
	"github.com/rivalscope/research/internal/api"
	"github.com/rivalscope/research/internal/clock/system"
	"github.com/rivalscope/research/internal/config"
	"github.com/rivalscope/research/internal/dispatcher"
	"github.com/rivalscope/research/internal/extract"
	"github.com/rivalscope/research/internal/id/uuid"
	"github.com/rivalscope/research/internal/logging"
	"github.com/rivalscope/research/internal/metrics"
	memorypublisher "github.com/rivalscope/research/internal/publisher/memory"
	pubsubpublisher "github.com/rivalscope/research/internal/publisher/pubsub"
	queuememory "github.com/rivalscope/research/internal/queue/memory"
	"github.com/rivalscope/research/internal/research"
	"github.com/rivalscope/research/internal/scrape/firecrawl"
	gcsstorage "github.com/rivalscope/research/internal/storage/gcs"
	localstorage "github.com/rivalscope/research/internal/storage/local"
	memorystorage "github.com/rivalscope/research/internal/storage/memory"
	memorystore "github.com/rivalscope/research/internal/store/memory"
	postgresstore "github.com/rivalscope/research/internal/store/postgres"
	"github.com/rivalscope/research/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobs, closeJobs, err := buildJobStore(ctx, cfg)
	if err != nil {
		logger.Fatal("job store init failed", zap.Error(err))
	}
	defer closeJobs()

	blobs, closeBlobs, err := buildBlobStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("blob store init failed", zap.Error(err))
	}
	defer closeBlobs()

	publisher, closePublisher, err := buildPublisher(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("publisher init failed", zap.Error(err))
	}
	defer closePublisher()

	queue := queuememory.NewQueue(cfg.Research.QueueDepth)
	clock := system.New()
	idGen := uuid.New()

	content := firecrawl.NewClient(firecrawl.Config{
		BaseURL:       cfg.Firecrawl.BaseURL,
		APIKey:        cfg.Firecrawl.APIKey,
		Timeout:       time.Duration(cfg.Firecrawl.TimeoutSeconds) * time.Second,
		WaitForMillis: cfg.Firecrawl.WaitForMillis,
	}, logger.Named("firecrawl"))
	aggregator := aggregate.New(content, cfg.Research.CorpusByteBudget, logger.Named("aggregate"))
	extractor := extract.NewExtractor(cfg.Anthropic.APIKey, extract.Config{
		Model:     cfg.Anthropic.Model,
		MaxTokens: cfg.Anthropic.MaxTokens,
		Timeout:   time.Duration(cfg.Anthropic.TimeoutSeconds) * time.Second,
	}, logger.Named("extract"))

	workerCfg := worker.Config{
		Topic:      cfg.Research.EventTopic,
		BlobPrefix: cfg.Storage.Prefix,
	}
	var workers []*worker.Worker
	for i := 0; i < cfg.Research.Concurrency; i++ {
		workers = append(workers, worker.New(
			queue,
			jobs,
			blobs,
			publisher,
			aggregator,
			extractor,
			idGen,
			clock,
			workerCfg,
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(queue, jobs, clock, workers, dispatcher.Config{
		StaleAfter:    cfg.StaleAfter(),
		SweepInterval: cfg.SweepInterval(),
	}, logger.Named("dispatcher"))

	apiServer := api.NewServer(jobs, dispatch, idGen, clock, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started", zap.Int("workers", len(workers)))
		dispatch.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	queue.Close()
	logger.Info("shutdown complete")
}

func buildJobStore(ctx context.Context, cfg config.Config) (research.JobStore, func(), error) {
	if cfg.DB.DSN == "" {
		return memorystore.NewStore(), func() {}, nil
	}
	store, err := postgresstore.NewStore(ctx, postgresstore.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: int32(cfg.DB.MaxConns),
		MinConns: int32(cfg.DB.MinConns),
	})
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

func buildBlobStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (research.BlobStore, func(), error) {
	if cfg.Storage.GCSBucket == "" {
		if cfg.Storage.LocalDir != "" {
			store, err := localstorage.New(localstorage.Config{BaseDir: cfg.Storage.LocalDir})
			if err != nil {
				return nil, nil, err
			}
			logger.Info("corpus archive using local filesystem", zap.String("dir", cfg.Storage.LocalDir))
			return store, func() {}, nil
		}
		logger.Info("corpus archive using in-memory blob store")
		return memorystorage.NewBlobStore(), func() {}, nil
	}
	client, err := gcstorage.NewClient(ctx)
	if err != nil {
		return nil, nil, err
	}
	store, err := gcsstorage.New(client, gcsstorage.Config{Bucket: cfg.Storage.GCSBucket})
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := client.Close(); err != nil {
			logger.Warn("close storage client", zap.Error(err))
		}
	}
	return store, closeFn, nil
}

func buildPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (research.Publisher, func(), error) {
	if cfg.PubSub.ProjectID == "" {
		logger.Info("research events using in-memory publisher")
		return memorypublisher.New(), func() {}, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	pub := pubsubpublisher.New(client)
	closeFn := func() {
		pub.Stop()
		if err := client.Close(); err != nil {
			logger.Warn("close pubsub client", zap.Error(err))
		}
	}
	return pub, closeFn, nil
}
