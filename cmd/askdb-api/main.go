package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/askdb/askdb/internal/agent"
	"github.com/askdb/askdb/internal/api"
	"github.com/askdb/askdb/internal/auth"
	"github.com/askdb/askdb/internal/cache"
	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/convo"
	convopostgres "github.com/askdb/askdb/internal/convo/postgres"
	"github.com/askdb/askdb/internal/executor"
	duckdbengine "github.com/askdb/askdb/internal/executor/duckdb"
	"github.com/askdb/askdb/internal/llm"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/retrieval"
	"github.com/askdb/askdb/internal/schema"
	schemapostgres "github.com/askdb/askdb/internal/schema/postgres"
	"github.com/askdb/askdb/internal/sqlgen"
	s3store "github.com/askdb/askdb/internal/storage/s3"
	"github.com/askdb/askdb/internal/validator"
)

func main() {
	cfg, err := config.LoadFromEnv("askdb-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	catalogDB, err := schemapostgres.Open(context.Background(), schemapostgres.DBConfig{
		DSN: cfg.Catalog.DSN,
	})
	if err != nil {
		logger.Error("failed to open catalog db", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = catalogDB.Close() }()
	catalog := schemapostgres.NewCatalog(catalogDB)

	engine, err := duckdbengine.NewEngine(cfg.Executor.Path)
	if err != nil {
		logger.Error("failed to open query engine", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = engine.Close() }()

	contextBuilder := schema.NewContextBuilder(catalog, engine, cfg.Query.SampleRows)

	var sessions convo.Store
	if cfg.Sessions.DSN != "" {
		sessionsDB, err := convopostgres.Open(context.Background(), convopostgres.DBConfig{
			DSN:             cfg.Sessions.DSN,
			MaxOpenConns:    cfg.Sessions.MaxOpenConns,
			MaxIdleConns:    cfg.Sessions.MaxIdleConns,
			ConnMaxIdleTime: cfg.Sessions.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Sessions.ConnMaxLifetime,
		})
		if err != nil {
			logger.Error("failed to open sessions db", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = sessionsDB.Close() }()
		sessions = convopostgres.NewStore(sessionsDB)
	} else {
		logger.Warn("sessions dsn not set, conversation history is in-memory only")
		sessions = convo.NewMemoryStore()
	}

	objectStore, err := s3store.New(context.Background(), s3store.Config{
		Endpoint:         cfg.ObjectStore.Endpoint,
		Region:           cfg.ObjectStore.Region,
		Bucket:           cfg.ObjectStore.Bucket,
		AccessKeyID:      cfg.ObjectStore.AccessKeyID,
		SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
		UseSSL:           cfg.ObjectStore.UseSSL,
		Prefix:           cfg.ObjectStore.Prefix,
		AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
	})
	if err != nil {
		logger.Warn("object store unavailable, caching and result staging run in memory only", slog.Any("error", err))
		objectStore = nil
	}

	var queryCache *cache.Cache
	if cfg.Cache.Enabled {
		var persisted cache.Store
		if objectStore != nil {
			persisted, err = cache.NewObjectStoreTier(objectStore, cfg.Cache.Prefix)
			if err != nil {
				logger.Error("failed to initialize cache tier", slog.Any("error", err))
				os.Exit(1)
			}
		}
		queryCache = cache.New(persisted, cfg.Cache.TTL, logger)
	}

	model, err := llm.NewClient(llm.Config{
		BaseURL: cfg.AI.BaseURL,
		APIKey:  cfg.AI.APIKey,
		ModelID: cfg.AI.ModelID,
		Timeout: cfg.AI.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize model client", slog.Any("error", err))
		os.Exit(1)
	}
	generator := sqlgen.New(model, sqlgen.Options{
		MaxTokens:        cfg.AI.MaxTokens,
		Temperature:      cfg.AI.Temperature,
		ExplainMaxTokens: cfg.AI.ExplainMaxTokens,
		ExplainTemp:      cfg.AI.ExplainTemp,
	})

	var retriever agent.Retriever
	if cfg.Retrieval.Enabled {
		client, err := retrieval.NewClient(retrieval.Config{
			BaseURL:         cfg.Retrieval.BaseURL,
			APIKey:          cfg.Retrieval.APIKey,
			KnowledgeBaseID: cfg.Retrieval.KnowledgeBaseID,
			MaxResults:      cfg.Retrieval.MaxResults,
			MinConfidence:   cfg.Retrieval.MinConfidence,
			Timeout:         cfg.Retrieval.Timeout,
		})
		if err != nil {
			logger.Error("failed to initialize retrieval client", slog.Any("error", err))
			os.Exit(1)
		}
		retriever = client
	}

	registryCfg := executor.RegistryConfig{
		ResultPrefix: cfg.Executor.ResultPrefix,
		Timeout:      cfg.Executor.AsyncTimeout,
	}
	if cfg.Executor.StageResults && objectStore != nil {
		registryCfg.Store = objectStore
	}
	registry := executor.NewRegistry(engine, registryCfg, logger)

	pipeline, err := agent.New(agent.Config{
		Database:           cfg.Catalog.Database,
		MaxContextMessages: cfg.Query.MaxContextMessages,
		DefaultLimit:       cfg.Executor.DefaultLimit,
		ApplyLimit:         cfg.Executor.ApplyLimit,
		CacheEnabled:       cfg.Cache.Enabled,
		RetrievalEnabled:   cfg.Retrieval.Enabled,
	}, agent.Dependencies{
		Generator: generator,
		Validator: validator.New(cfg.Query.MaxLength),
		Schema:    contextBuilder,
		Sessions:  sessions,
		Cache:     queryCache,
		Retriever: retriever,
		Engine:    engine,
		Registry:  registry,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("failed to assemble pipeline", slog.Any("error", err))
		os.Exit(1)
	}

	deps := api.Dependencies{
		Logger: logger,
		Agent:  pipeline,
		Readiness: api.CombineReadinessChecks(
			catalog.HealthCheck,
			engine.HealthCheck,
			api.CheckAIConfig(cfg),
		),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		keyValidator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, keyValidator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
