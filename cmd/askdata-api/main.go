package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/askdata/askdata/internal/api"
	"github.com/askdata/askdata/internal/auth"
	"github.com/askdata/askdata/internal/config"
	"github.com/askdata/askdata/internal/history"
	historypostgres "github.com/askdata/askdata/internal/history/postgres"
	"github.com/askdata/askdata/internal/ingest"
	"github.com/askdata/askdata/internal/nl2sql"
	"github.com/askdata/askdata/internal/observability"
	"github.com/askdata/askdata/internal/pipeline"
	"github.com/askdata/askdata/internal/query"
	duckdbengine "github.com/askdata/askdata/internal/query/duckdb"
	postgresengine "github.com/askdata/askdata/internal/query/postgres"
	"github.com/askdata/askdata/internal/registry"
	"github.com/askdata/askdata/internal/storage"
	s3store "github.com/askdata/askdata/internal/storage/s3"
	"github.com/askdata/askdata/internal/store/sqlstore"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv("askdata-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	storeDB, err := sqlstore.Open(context.Background(), sqlstore.DBConfig{
		Driver:          cfg.Store.Driver,
		DSN:             cfg.Store.DSN,
		MaxOpenConns:    cfg.Store.MaxOpenConns,
		MaxIdleConns:    cfg.Store.MaxIdleConns,
		ConnMaxIdleTime: cfg.Store.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Store.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open store db", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = storeDB.Close() }()

	dataStore := sqlstore.New(storeDB, sqlstore.Options{
		Driver:    cfg.Store.Driver,
		Schema:    cfg.Store.Schema,
		BatchSize: cfg.Ingest.InsertBatchSize,
	})

	var archiver ingest.Archiver
	if cfg.ObjectStore.Enabled {
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
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		archiver = storage.NewArchiver(objectStore)
	}

	engine, err := newQueryEngine(cfg, storeDB)
	if err != nil {
		logger.Error("failed to initialize query engine", slog.Any("error", err))
		os.Exit(1)
	}
	translator, err := newTranslator(cfg)
	if err != nil {
		logger.Error("failed to initialize sql generation client", slog.Any("error", err))
		os.Exit(1)
	}
	recorder, historyCheck := newHistory(cfg, storeDB)

	service := &pipeline.Service{
		Store: dataStore,
		Ingestor: ingest.New(dataStore, ingest.Options{
			DefaultTable: cfg.Ingest.DefaultTable,
			Archiver:     archiver,
			Logger:       logger,
		}),
		Registry:   registry.New(),
		Translator: translator,
		Engine:     engine,
		History:    recorder,
		Config: pipeline.Config{
			PreviewRows:    cfg.Ingest.PreviewRows,
			SampleRows:     cfg.Ingest.SampleRows,
			GenerationMode: cfg.Generation.Mode,
			ReadOnly:       cfg.Query.ReadOnly,
			MaxRows:        cfg.Query.MaxRows,
		},
		Logger: logger,
	}

	deps := api.Dependencies{
		Logger:   logger,
		Pipeline: service,
		Readiness: api.CombineReadinessChecks(
			api.CheckStore(dataStore),
			historyCheck,
			api.CheckObjectStoreConfig(cfg),
		),
		DependencyTimout: time.Second,
		MaxUploadBytes:   cfg.HTTP.MaxUploadBytes,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
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
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("store_driver", cfg.Store.Driver),
			slog.String("generation_provider", cfg.Generation.Provider),
			slog.Bool("read_only_queries", cfg.Query.ReadOnly),
		)
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

func newQueryEngine(cfg config.Config, storeDB *sql.DB) (query.Engine, error) {
	if cfg.Store.Driver == config.StoreDriverDuckDB {
		return duckdbengine.NewEngine(storeDB), nil
	}
	return postgresengine.NewEngine(postgresengine.Config{
		DSN:            cfg.QueryDSN(),
		ConnectTimeout: cfg.Query.ConnectTimeout,
	})
}

func newTranslator(cfg config.Config) (nl2sql.Translator, error) {
	if cfg.Generation.Provider == config.GenerationProviderOpenAI {
		return nl2sql.NewOpenAITranslator(nl2sql.OpenAIConfig{
			BaseURL:     cfg.Generation.BaseURL,
			APIKey:      cfg.Generation.APIKey,
			Model:       cfg.Generation.Model,
			Temperature: cfg.Generation.Temperature,
			Timeout:     cfg.Generation.Timeout,
		})
	}
	return nl2sql.NewBackendClient(nl2sql.BackendConfig{
		Endpoint: cfg.Generation.Endpoint,
		Timeout:  cfg.Generation.Timeout,
	})
}

// History lives in the askdata_meta schema of a Postgres store. DuckDB
// deployments keep it in process.
func newHistory(cfg config.Config, storeDB *sql.DB) (history.Recorder, api.ReadinessCheck) {
	if !cfg.History.Enabled {
		return history.Noop{}, nil
	}
	if cfg.Store.Driver != config.StoreDriverPostgres {
		return history.NewMemory(0), nil
	}
	repo := historypostgres.NewRepository(storeDB)
	return repo, repo.HealthCheck
}
