// Package app wires configuration into a running engine: row store, language
// model, retrieval index, the answer pipeline and its HTTP and MCP surfaces.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for migrations
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insight/pkg/analyst"
	"github.com/ekaya-inc/ekaya-insight/pkg/audit"
	"github.com/ekaya-inc/ekaya-insight/pkg/cache"
	"github.com/ekaya-inc/ekaya-insight/pkg/config"
	"github.com/ekaya-inc/ekaya-insight/pkg/dataagent"
	"github.com/ekaya-inc/ekaya-insight/pkg/database"
	"github.com/ekaya-inc/ekaya-insight/pkg/handlers"
	"github.com/ekaya-inc/ekaya-insight/pkg/llm"
	"github.com/ekaya-inc/ekaya-insight/pkg/logging"
	"github.com/ekaya-inc/ekaya-insight/pkg/mcp"
	"github.com/ekaya-inc/ekaya-insight/pkg/mcp/tools"
	"github.com/ekaya-inc/ekaya-insight/pkg/middleware"
	"github.com/ekaya-inc/ekaya-insight/pkg/normalizer"
	"github.com/ekaya-inc/ekaya-insight/pkg/planner"
	"github.com/ekaya-inc/ekaya-insight/pkg/policy"
	"github.com/ekaya-inc/ekaya-insight/pkg/repositories"
	"github.com/ekaya-inc/ekaya-insight/pkg/resolver"
	"github.com/ekaya-inc/ekaya-insight/pkg/responder"
	"github.com/ekaya-inc/ekaya-insight/pkg/retrieval"
	"github.com/ekaya-inc/ekaya-insight/pkg/retry"
	"github.com/ekaya-inc/ekaya-insight/pkg/services"
)

// cacheCleanupInterval is how often expired aggregates are swept.
const cacheCleanupInterval = 5 * time.Minute

// App is a fully wired engine.
type App struct {
	Config   *config.Config
	Store    repositories.RowStore
	Cache    *cache.AggregateCache
	Datasets services.DatasetService
	Answers  services.AnswerService

	logger *zap.Logger
	cancel context.CancelFunc
}

// New connects the configured row store (running migrations for SQL
// backends), builds the pipeline and loads the active dataset version.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	store, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	app, err := newWithStore(ctx, cfg, store, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	return app, nil
}

func newWithStore(ctx context.Context, cfg *config.Config, store repositories.RowStore, logger *zap.Logger) (*App, error) {
	client, err := llm.NewFromConfig(cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}
	var breaker *llm.CircuitBreaker
	if client != nil {
		breaker = llm.NewCircuitBreaker(llm.CircuitBreakerConfig{
			Threshold:  cfg.LLM.CircuitThreshold,
			ResetAfter: cfg.LLM.CircuitResetAfter(),
		})
	}

	// Retrieval only exists when embeddings can be computed; a nil
	// interface value keeps the stages on their metadata-only paths.
	var (
		retriever retrieval.Retriever
		indexer   retrieval.Indexer
	)
	embedder, err := llm.NewEmbeddingClient(cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}
	if embedder != nil {
		index := retrieval.NewEmbeddingIndex(embedder, cfg.LLM.EmbeddingModel, 0, logger)
		retriever, indexer = index, index
	}

	aggCache := cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL())
	auditor := audit.NewPolicyAuditor(logger)
	engine := cfg.Engine

	datasets := services.NewDatasetService(store, indexer, aggCache, engine.RowLimit, logger)
	agent := dataagent.New(store, aggCache, retriever, auditor, dataagent.Config{
		AggregateRowLimit: engine.AggregateRowLimit,
		RetrievalTopK:     engine.RetrievalTopK,
		NearbyDatesLimit:  engine.NearbyDatesLimit,
	}, logger)

	answers := services.NewAnswerService(
		datasets,
		normalizer.New(engine.SimilarityThreshold),
		resolver.New(engine.SimilarityThreshold, logger),
		planner.New(client, breaker, logger),
		policy.NewGuard(engine.ClarificationConfidence, auditor, logger),
		agent,
		analyst.New(engine.DailyMaxDays, logger),
		responder.New(client, breaker, logger),
		engine,
		logger,
	)

	if err := datasets.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("failed to load active dataset: %w", err)
	}

	bg, cancel := context.WithCancel(context.Background())
	aggCache.StartCleanup(bg, cacheCleanupInterval)

	logger.Info("Engine ready",
		zap.String("store", cfg.Store.Backend),
		zap.Bool("llm", client != nil),
		zap.Bool("retrieval", retriever != nil),
		zap.Bool("dataset_loaded", datasets.Active() != nil))

	return &App{
		Config:   cfg,
		Store:    store,
		Cache:    aggCache,
		Datasets: datasets,
		Answers:  answers,
		logger:   logger,
		cancel:   cancel,
	}, nil
}

// Handler returns the HTTP surface: health, the JSON API and the MCP
// endpoint, all behind the request logger.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()

	handlers.NewHealthHandler(a.Config, a.Datasets, a.logger).RegisterRoutes(mux)
	handlers.NewAskHandler(a.Answers, a.logger).RegisterRoutes(mux)
	handlers.NewDatasetsHandler(a.Datasets, a.Config.MaxUploadMB<<20, a.logger).RegisterRoutes(mux)

	mcpServer := mcp.NewDatasetServer(a.Config.Version, &tools.DatasetToolDeps{
		Answers:  a.Answers,
		Datasets: a.Datasets,
		Logger:   a.logger.Named("mcp"),
	}, mcp.NewAuditLogger(a.logger))
	mux.Handle("/mcp", middleware.MCPRequestLogger(a.logger)(mcpServer.NewStreamableHTTPServer()))

	return middleware.RequestLogger(a.logger)(mux)
}

// Close stops background work and releases the row store.
func (a *App) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	a.Store.Close()
}

// OpenStore returns the configured row store. SQL backends are retried
// while the server comes up and migrated before use.
func OpenStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.RowStore, error) {
	switch cfg.Store.Backend {
	case config.StorePostgres:
		connStr := cfg.Database.ConnectionString()
		db, err := retry.DoWithResult(ctx, retry.StartupConfig(), func() (*database.DB, error) {
			return database.NewConnection(ctx, &database.Config{
				URL:              connStr,
				MaxConnections:   cfg.Database.MaxConnections,
				StatementTimeout: time.Duration(cfg.Database.StatementTimeoutSeconds) * time.Second,
			})
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres (%s): %w",
				logging.SanitizeConnectionString(connStr), err)
		}
		if err := migrate(logger, "pgx", connStr, database.RunMigrations); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("Connected to PostgreSQL row store",
			zap.String("host", cfg.Database.Host), zap.String("database", cfg.Database.Database))
		return repositories.NewPostgresRowStore(db), nil

	case config.StoreMSSQL:
		connStr := cfg.MSSQL.ConnectionString()
		db, err := retry.DoWithResult(ctx, retry.StartupConfig(), func() (*sql.DB, error) {
			return repositories.OpenMSSQL(ctx, connStr)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to sql server (%s): %w",
				logging.SanitizeConnectionString(connStr), err)
		}
		if err := migrate(logger, "sqlserver", connStr, database.RunSQLServerMigrations); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("Connected to SQL Server row store",
			zap.String("host", cfg.MSSQL.Host), zap.String("database", cfg.MSSQL.Database))
		return repositories.NewMSSQLRowStore(db), nil

	default:
		logger.Info("Using in-memory row store; datasets are lost on restart")
		return repositories.NewMemoryRowStore(), nil
	}
}

// migrate runs fn on a dedicated database/sql handle; golang-migrate closes
// the handle it is given.
func migrate(logger *zap.Logger, driver, connStr string, fn func(*sql.DB, *zap.Logger) error) error {
	sqlDB, err := sql.Open(driver, connStr)
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer sqlDB.Close()

	if err := fn(sqlDB, logger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
