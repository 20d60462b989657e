package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/ragdesk/internal/ai"
	"github.com/xxxsen/ragdesk/internal/chunker"
	"github.com/xxxsen/ragdesk/internal/config"
	"github.com/xxxsen/ragdesk/internal/db"
	"github.com/xxxsen/ragdesk/internal/embedcache"
	"github.com/xxxsen/ragdesk/internal/extract"
	"github.com/xxxsen/ragdesk/internal/filestore"
	"github.com/xxxsen/ragdesk/internal/handler"
	"github.com/xxxsen/ragdesk/internal/job"
	"github.com/xxxsen/ragdesk/internal/middleware"
	"github.com/xxxsen/ragdesk/internal/repo"
	"github.com/xxxsen/ragdesk/internal/schedule"
	"github.com/xxxsen/ragdesk/internal/service"
	"github.com/xxxsen/ragdesk/internal/vectorstore"
	"github.com/xxxsen/ragdesk/internal/workerpool"
)

func runServer(cfg *config.Config) error {
	logger := logutil.GetLogger(context.Background())
	logger.Info("starting server",
		zap.Int("port", cfg.Port),
		zap.String("file_store", cfg.FileStore.Type),
		zap.String("vector_store", cfg.VectorStore.Type),
		zap.String("ai_provider", cfg.AI.Provider),
	)

	conn, err := db.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer conn.Close()
	if err := db.ApplyMigrations(conn); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	docRepo := repo.NewDocumentRepo(conn)
	tenantRepo := repo.NewTenantRepo(conn)
	cacheRepo := repo.NewEmbeddingCacheRepo(conn)

	blobs, err := filestore.New(cfg.FileStore)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}
	vectors, err := vectorstore.New(cfg.VectorStore.Type, conn)
	if err != nil {
		return fmt.Errorf("init vector store: %w", err)
	}
	generator, embedder, err := buildModels(cfg, cacheRepo)
	if err != nil {
		return err
	}
	tokenizer := ai.NewTokenizer(cfg.AI.Encoding)
	segmenter, err := chunker.New(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap, cfg.Ingest.ChunkTolerance)
	if err != nil {
		return fmt.Errorf("init chunker: %w", err)
	}
	pool, err := workerpool.New(workerpool.Config{
		CoreSize:      cfg.Ingest.Pool.Core,
		MaxSize:       cfg.Ingest.Pool.Max,
		QueueCapacity: cfg.Ingest.Pool.Queue,
		IdleExpiry:    time.Minute,
	})
	if err != nil {
		return fmt.Errorf("init worker pool: %w", err)
	}

	tenantService := service.NewTenantService(tenantRepo)
	documentService := service.NewDocumentService(docRepo, tenantService, blobs, vectors, extract.NewDefault(), segmenter, embedder, tokenizer, pool, service.IngestOptions{
		MaxFileBytes:           cfg.Ingest.MaxFileBytes,
		AllowedTypes:           cfg.Ingest.AllowedTypes,
		PersistEvery:           cfg.Ingest.PersistEvery,
		RollbackPartialVectors: cfg.Ingest.RollbackPartialVectors,
		Dimension:              cfg.VectorStore.Dimension,
		Ready: vectorstore.ReadyConfig{
			Interval: time.Duration(cfg.VectorStore.ReadyIntervalMs) * time.Millisecond,
			Attempts: cfg.VectorStore.ReadyAttempts,
		},
	})
	queryService := service.NewQueryService(tenantService, embedder, vectors, generator, tokenizer, service.QueryOptions{
		MaxQuestionChars: cfg.Query.MaxQuestionChars,
		MaxHistory:       cfg.Query.MaxHistory,
		TopK:             cfg.Query.TopK,
		MinScore:         cfg.Query.MinScore,
		PreviewRunes:     cfg.Query.PreviewRunes,
	})

	scheduler, err := buildScheduler(cfg, documentService, cacheRepo)
	if err != nil {
		return err
	}

	deps := handler.RouterDeps{
		Documents:  handler.NewDocumentHandler(documentService, cfg.Ingest.MaxFileBytes),
		Query:      handler.NewQueryHandler(queryService),
		Health:     handler.NewHealthHandler(conn),
		JWTSecret:  []byte(cfg.JWTSecret),
		QueryRPS:   cfg.Query.RateLimit.RPS,
		QueryBurst: cfg.Query.RateLimit.Burst,
	}
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.CORS.AllowOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	server := &http.Server{Addr: addr, Handler: engine}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler.Start(ctx)
	go func() {
		logger.Info("http server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("server stopping...")
	return shutdown(server, scheduler, pool, time.Duration(cfg.Ingest.ShutdownTimeoutSeconds)*time.Second)
}

// shutdown stops intake first, then waits for in-flight ingestion runs.
func shutdown(server *http.Server, scheduler schedule.Scheduler, pool *workerpool.Pool, timeout time.Duration) error {
	logger := logutil.GetLogger(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}
	scheduler.Stop()
	if err := pool.Close(ctx); err != nil {
		stats := pool.Stats()
		logger.Warn("ingestion runs still in flight at shutdown",
			zap.Int("running", stats.Running),
			zap.Int("queued", stats.Queued),
			zap.Error(err))
		return nil
	}
	logger.Info("server stopped")
	return nil
}

func buildModels(cfg *config.Config, cache embedcache.Store) (ai.IGenerator, ai.IEmbedder, error) {
	var providerArgs interface{} = cfg.AI.Data
	if cfg.AI.Data == nil {
		providerArgs = cfg.AI
	}
	provider, err := ai.NewProvider(cfg.AI.Provider, providerArgs)
	if err != nil {
		return nil, nil, fmt.Errorf("init ai provider: %w", err)
	}
	embedder := ai.NewEmbedder(provider, cfg.AI.EmbedModel)
	if cfg.EmbedCache.DBEnabled {
		embedder = embedcache.WithStore(embedder, cache)
	}
	if cfg.EmbedCache.LRUSize > 0 {
		embedder = embedcache.WithLRU(embedder, cfg.EmbedCache.LRUSize, time.Duration(cfg.EmbedCache.LRUTTLSeconds)*time.Second)
	}
	manager := ai.NewManager(ai.NewGenerator(provider, cfg.AI.Model), embedder, ai.ManagerConfig{Timeout: cfg.AI.Timeout})
	return manager, manager, nil
}

func buildScheduler(cfg *config.Config, documents *service.DocumentService, cache job.CacheCleaner) (*schedule.CronScheduler, error) {
	scheduler := schedule.NewCronScheduler()
	jobs := cfg.Jobs
	entries := []struct {
		conf config.JobConfig
		job  schedule.Job
	}{
		{jobs.StaleRunSweeper, job.NewStaleRunSweeperJob(documents, time.Duration(jobs.StaleAfterMinutes)*time.Minute)},
		{jobs.DeletedDocumentPurge, job.NewDeletedDocumentPurgeJob(documents, time.Duration(jobs.PurgeAfterDays)*24*time.Hour)},
		{jobs.EmbeddingCacheClean, job.NewEmbeddingCacheCleanupJob(cache, time.Duration(jobs.CacheMaxAgeDays)*24*time.Hour)},
	}
	for _, e := range entries {
		if !e.conf.Enabled {
			continue
		}
		if err := scheduler.AddJob(e.job, e.conf.Schedule); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", e.job.Name(), err)
		}
	}
	return scheduler, nil
}
