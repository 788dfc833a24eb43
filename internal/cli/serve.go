package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/docsage/docsage/internal/api/handlers"
	"github.com/docsage/docsage/internal/api/middleware"
	"github.com/docsage/docsage/internal/config"
	"github.com/docsage/docsage/internal/database"
	"github.com/docsage/docsage/internal/jobs"
	"github.com/docsage/docsage/internal/openai"
	"github.com/docsage/docsage/internal/repository"
	"github.com/docsage/docsage/internal/server"
	"github.com/docsage/docsage/internal/service"
	"github.com/docsage/docsage/internal/storage"
	"github.com/docsage/docsage/internal/telemetry"
	"github.com/docsage/docsage/internal/vectorindex"
)

// pendingOrphanAge is how old a pending document must be before startup
// recovery removes it. Fresh pending rows may belong to an ingest in
// flight on another instance.
const pendingOrphanAge = 3600

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the docsage API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.SentryDSN != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	log.Println("connected to database")

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	store := repository.NewStore(pool)

	// Pending documents older than the orphan age are leftovers from a crash
	// between the metadata write and the commit step.
	if removed, err := store.DeletePendingOlderThan(ctx, pendingOrphanAge); err != nil {
		log.Printf("pending orphan cleanup failed: %v", err)
	} else if removed > 0 {
		log.Printf("removed %d orphaned pending documents", removed)
	}

	index, err := vectorindex.NewFlatIndex(cfg.EmbeddingDim)
	if err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}
	if err := index.Load(cfg.IndexPath); err != nil {
		log.Printf("index snapshot unavailable (%v), rebuilding from metadata store", err)
	}
	// The snapshot is flushed periodically, so it may predate the latest
	// commits or deletions. Reconcile against the store so every committed
	// chunk's slot resolves before the first ingest claims a new one.
	if err := service.ReconcileIndex(ctx, store, index); err != nil {
		return fmt.Errorf("failed to reconcile index: %w", err)
	}
	log.Printf("vector index ready: %d live vectors", index.Live())

	if !cfg.HasOpenAI() {
		return fmt.Errorf("DOCSAGE_OPENAI_API_KEY is required")
	}
	aiClient := openai.NewClientWithConfig(openai.Config{
		APIKey:              cfg.OpenAIAPIKey,
		EmbeddingModel:      cfg.EmbeddingModel,
		EmbeddingDimensions: cfg.EmbeddingDim,
		CompletionModel:     cfg.LLMModel,
		EmbeddingTimeout:    cfg.EmbeddingTimeout,
		CompletionTimeout:   cfg.LLMTimeout,
	})

	chunkCfg := service.ChunkConfig{ChunkSize: cfg.ChunkSize, Overlap: cfg.ChunkOverlap}
	if err := chunkCfg.Validate(); err != nil {
		return fmt.Errorf("invalid chunking config: %w", err)
	}

	ingestSvc := service.NewIngestService(store, index, aiClient, chunkCfg)
	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("S3 bucket '%s' ready", cfg.S3Bucket)
		ingestSvc = ingestSvc.WithArchive(s3Client)
	}

	retriever := service.NewRetriever(aiClient, index, store, service.RetrieverConfig{
		Temperature:  cfg.RelevanceTemperature,
		MinRelevance: cfg.MinRelevance,
	})

	querySvc := service.NewQueryService(retriever, aiClient, service.DefaultQueryConfig())

	agentCfg := service.DefaultAgentConfig()
	agentCfg.AnswerMinRelevance = cfg.AnswerMinRelevance
	agentCfg.MinContextChars = cfg.MinContextChars
	agent := service.NewAgent(retriever, aiClient, agentCfg)

	apiKeys := cfg.ParseAPIKeys()
	if len(apiKeys) == 0 {
		return fmt.Errorf("DOCSAGE_API_KEYS is required (format: key:owner,key:owner)")
	}
	validator := middleware.NewStaticKeyValidator(apiKeys)

	router := server.NewRouter(server.RouterConfig{
		AuthValidator:   validator,
		DocumentHandler: handlers.NewDocumentHandler(ingestSvc, store),
		QueryHandler:    handlers.NewQueryHandler(retriever, querySvc, agent),
	})

	snapshotWorker := jobs.NewWorker("snapshot", jobs.NewSnapshotWorker(index, cfg.IndexPath), cfg.SnapshotInterval)
	go snapshotWorker.Start(ctx)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	snapshotWorker.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	shutdownErr := srv.Shutdown(shutdownCtx)

	// Persist only after in-flight requests have drained, so an ingest that
	// commits during shutdown makes it into the final snapshot.
	if index.Dirty() {
		if err := index.Persist(cfg.IndexPath); err != nil {
			log.Printf("final index snapshot failed: %v", err)
		}
	}

	if shutdownErr != nil {
		return fmt.Errorf("server forced to shutdown: %w", shutdownErr)
	}

	log.Println("server exited")
	return nil
}

func runMigrations(databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
