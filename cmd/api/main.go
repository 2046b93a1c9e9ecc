package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iago/studyhub-back/internal/ai"
	"github.com/iago/studyhub-back/internal/cache"
	"github.com/iago/studyhub-back/internal/config"
	contextbuilder "github.com/iago/studyhub-back/internal/context"
	"github.com/iago/studyhub-back/internal/document"
	httpserver "github.com/iago/studyhub-back/internal/http"
	"github.com/iago/studyhub-back/internal/http/handlers"
	"github.com/iago/studyhub-back/internal/logging"
	"github.com/iago/studyhub-back/internal/metrics"
	"github.com/iago/studyhub-back/internal/policy"
	"github.com/iago/studyhub-back/internal/queue"
	"github.com/iago/studyhub-back/internal/repository"
	"github.com/iago/studyhub-back/internal/service"
	"github.com/iago/studyhub-back/internal/storage"
	"github.com/iago/studyhub-back/internal/transcription"
	"github.com/iago/studyhub-back/internal/worker"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const queueMaxAttempts = 3

func main() {
	dotEnvErr := config.LoadDotEnv(".env", ".env.local")
	cfg, cfgErr := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	if dotEnvErr != nil {
		logger.Warn().Err(dotEnvErr).Msg("failed loading .env files")
	}
	if cfgErr != nil {
		logger.Fatal().Err(cfgErr).Msg("invalid configuration")
	}
	metrics.MustRegister()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	readiness := handlers.Readiness{}

	jobsRepo, filesRepo, chatRepo, repoCloser := setupRepositories(ctx, cfg, logger, &readiness)
	defer repoCloser()

	producer, consumer, queueCloser := setupQueue(ctx, cfg, logger, &readiness)
	defer queueCloser()

	store := setupStorage(ctx, cfg, logger, &readiness)

	modelRouter := ai.NewModelRouter(ai.ModelRouterConfig{
		SummaryModel: cfg.GeminiModel,
		QuizModel:    cfg.GeminiQuizModel,
		ChatModel:    cfg.GeminiChatModel,
	})
	retry := ai.DefaultRetryPolicy()
	retry.MaxRetries = cfg.GeminiMaxRetries
	gemini := ai.NewGeminiClient(ai.GeminiClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		BaseURL: cfg.GeminiBaseURL,
		Model:   cfg.GeminiModel,
		Timeout: time.Duration(cfg.GeminiTimeoutMS) * time.Millisecond,
		Retry:   retry,
		Logger:  logger,
	})
	assembly := transcription.NewAssemblyAIClient(transcription.AssemblyAIConfig{
		APIKey:       cfg.AssemblyAIAPIKey,
		BaseURL:      cfg.AssemblyAIBaseURL,
		PollInterval: cfg.AssemblyAIPollInterval,
		MaxPolls:     cfg.AssemblyAIMaxPolls,
		Logger:       logger,
	})
	captions := transcription.NewCaptionsClient(transcription.CaptionsConfig{
		APIKey:  cfg.TranscriptAPIKey,
		BaseURL: cfg.TranscriptAPIBaseURL,
	})
	readiness.Gemini = gemini.Available()
	readiness.AssemblyAI = assembly.Available()
	readiness.Captions = captions.Available()

	builder, err := contextbuilder.NewBuilder(modelRouter)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load prompt templates")
	}
	processing, err := service.NewProcessingService(service.ProcessingDependencies{
		Generator: gemini,
		Builder:   builder,
		Cache: cache.NewResultCache(cache.Config{
			TTL:        time.Duration(cfg.ResultCacheTTLSeconds) * time.Second,
			MaxEntries: cfg.ResultCacheMaxEntries,
		}),
		Files:    filesRepo,
		Chats:    chatRepo,
		Captions: captions,
		PDF: document.NewPDFExtractor(document.PDFExtractorConfig{
			MaxPages:    cfg.PDFMaxPages,
			Concurrency: cfg.PDFConcurrency,
			Logger:      logger,
		}),
		IncrementalStream: cfg.GeminiStreamIncremental,
		Logger:            logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build processing service")
	}

	jobsDeps := service.JobsDependencies{Repo: jobsRepo, Files: filesRepo, Producer: producer}
	if store != nil {
		jobsDeps.Store = store
	}
	api := handlers.NewAPI(handlers.APIDependencies{
		Processing:     processing,
		Jobs:           service.NewJobsService(jobsDeps),
		Library:        service.NewLibraryService(filesRepo, chatRepo),
		Readiness:      readiness,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Logger:         logger,
	})

	handler := httpserver.NewRouter(httpserver.RouterDependencies{
		API:            api,
		Logger:         logger,
		AuthToken:      cfg.AuthToken,
		JWTSecret:      cfg.JWTSecret,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	// WriteTimeout stays unset: chat responses are long lived event streams.
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if cfg.WorkerEnabled {
		processor := worker.NewProcessor(worker.ProcessorConfig{
			Consumer:    consumer,
			Jobs:        jobsRepo,
			Files:       filesRepo,
			Transcriber: assembly,
			MaxAttempts: queueMaxAttempts,
			Logger:      logger,
		})
		group.Go(func() error {
			logger.Info().Msg("worker started")
			return processor.Start(groupCtx)
		})
	} else {
		logger.Info().Msg("worker disabled by configuration")
	}

	if err := group.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
}

func setupRepositories(
	ctx context.Context,
	cfg config.Config,
	logger *zerolog.Logger,
	readiness *handlers.Readiness,
) (repository.JobsRepository, repository.FilesRepository, repository.ChatRepository, func()) {
	memory := func() (repository.JobsRepository, repository.FilesRepository, repository.ChatRepository, func()) {
		library := repository.NewMemoryLibraryRepository()
		return repository.NewMemoryJobsRepository(), library, library, func() {}
	}

	if cfg.DatabaseURL == "" {
		logger.Info().Msg("DATABASE_URL not configured, using in-memory repositories")
		return memory()
	}

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error().Err(err).Str("database", policy.RedactURL(cfg.DatabaseURL)).Msg("postgres unavailable, falling back to memory")
		return memory()
	}
	if err := repository.Migrate(ctx, pool); err != nil {
		pool.Close()
		logger.Error().Err(err).Msg("postgres migration failed, falling back to memory")
		return memory()
	}

	readiness.Database = true
	logger.Info().Msg("postgres repositories initialized")
	library := repository.NewPostgresLibraryRepository(pool)
	return repository.NewPostgresJobsRepository(pool), library, library, pool.Close
}

func setupQueue(
	ctx context.Context,
	cfg config.Config,
	logger *zerolog.Logger,
	readiness *handlers.Readiness,
) (queue.Producer, queue.Consumer, func()) {
	local := func() (queue.Producer, queue.Consumer, func()) {
		readiness.Queue = "local"
		q := queue.NewLocalQueue(512, queueMaxAttempts, logger)
		return q, q, func() {}
	}

	if cfg.RedisAddr == "" {
		logger.Info().Msg("REDIS_ADDR not configured, using local queue")
		return local()
	}

	streams, err := queue.NewStreamsQueue(ctx, queue.StreamsConfig{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		Stream:      cfg.RedisStream,
		DLQStream:   cfg.RedisDLQ,
		Group:       cfg.RedisGroup,
		Consumer:    cfg.RedisConsumer,
		MaxAttempts: queueMaxAttempts,
		Logger:      logger,
	})
	if err != nil {
		logger.Error().Err(err).Msg("redis streams unavailable, falling back to local queue")
		return local()
	}

	readiness.Queue = "redis_streams"
	logger.Info().Str("stream", cfg.RedisStream).Msg("redis streams queue initialized")
	return streams, streams, func() { _ = streams.Close() }
}

// setupStorage returns nil when object storage is not configured; uploads
// are then rejected with a configuration error.
func setupStorage(
	ctx context.Context,
	cfg config.Config,
	logger *zerolog.Logger,
	readiness *handlers.Readiness,
) *storage.MinioStore {
	if cfg.MinioEndpoint == "" {
		return nil
	}
	store, err := storage.NewMinioStore(ctx, storage.MinioConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		Region:    cfg.MinioRegion,
		UseSSL:    cfg.MinioUseSSL,
		URLExpiry: cfg.MinioURLExpiry,
		Logger:    logger,
	})
	if err != nil {
		logger.Error().Err(err).Msg("object storage unavailable, audio uploads disabled")
		return nil
	}
	readiness.Storage = true
	return store
}
