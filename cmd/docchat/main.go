package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xxxsen/docchat/internal/ai"
	"github.com/xxxsen/docchat/internal/budget"
	"github.com/xxxsen/docchat/internal/chunker"
	"github.com/xxxsen/docchat/internal/config"
	"github.com/xxxsen/docchat/internal/db"
	"github.com/xxxsen/docchat/internal/embedcache"
	"github.com/xxxsen/docchat/internal/filestore"
	"github.com/xxxsen/docchat/internal/handler"
	"github.com/xxxsen/docchat/internal/job"
	"github.com/xxxsen/docchat/internal/middleware"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
	"github.com/xxxsen/docchat/internal/repo"
	"github.com/xxxsen/docchat/internal/schedule"
	"github.com/xxxsen/docchat/internal/service"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "docchat",
		Short: "docchat backend server",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run docchat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, database, err := setup(configPath)
			if err != nil {
				return err
			}
			return runServer(cfg, database)
		},
	}
	rootCmd.AddCommand(runCmd)

	var (
		addEmail    string
		addPassword string
		addAdmin    bool
		addLimit    int
	)
	adduserCmd := &cobra.Command{
		Use:   "adduser",
		Short: "create a user account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, database, err := setup(configPath)
			if err != nil {
				return err
			}
			defer database.Close()
			users := repo.NewUserRepo(database)
			auth := service.NewAuthService(users, []byte(cfg.JWTSecret),
				time.Hour*time.Duration(cfg.JWTTTLHours), cfg.Ingest.DefaultDocumentLimit)
			role := "user"
			limit := cfg.Ingest.DefaultDocumentLimit
			if addAdmin {
				role = "admin"
			}
			if cmd.Flags().Changed("limit") {
				limit = addLimit
			}
			user, err := auth.CreateUser(context.Background(), addEmail, addPassword, role, limit)
			if err != nil {
				return err
			}
			fmt.Printf("user created: id=%s email=%s role=%s document_limit=%d\n",
				user.ID, user.Email, user.Role, user.DocumentLimit)
			return nil
		},
	}
	adduserCmd.Flags().StringVar(&addEmail, "email", "", "user email")
	adduserCmd.Flags().StringVar(&addPassword, "password", "", "user password")
	adduserCmd.Flags().BoolVar(&addAdmin, "admin", false, "grant the admin role")
	adduserCmd.Flags().IntVar(&addLimit, "limit", 0, "document limit, -1 for unlimited")
	_ = adduserCmd.MarkFlagRequired("email")
	_ = adduserCmd.MarkFlagRequired("password")
	rootCmd.AddCommand(adduserCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func setup(configPath string) (*config.Config, *sql.DB, error) {
	if configPath == "" {
		return nil, nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))
	if cfg.AI.EmbedDim != db.VectorDim {
		return nil, nil, fmt.Errorf("%w: ai.embed_dim %d does not match the vector column dimension %d",
			appErr.ErrInvalidConfig, cfg.AI.EmbedDim, db.VectorDim)
	}
	database, err := db.Open(context.Background(), cfg.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(context.Background(), database); err != nil {
		return nil, nil, fmt.Errorf("migrations: %w", err)
	}
	return cfg, database, nil
}

func runServer(cfg *config.Config, database *sql.DB) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("ai_provider", cfg.AI.Provider),
		zap.String("file_store", cfg.FileStore.Type),
	)

	userRepo := repo.NewUserRepo(database)
	docRepo := repo.NewDocumentRepo(database)
	chunkRepo := repo.NewChunkRepo(database)
	convRepo := repo.NewConversationRepo(database)
	budgetRepo := repo.NewBudgetRepo(database)
	cacheRepo := repo.NewEmbeddingCacheRepo(database)

	ledger := budget.NewLedger(budgetRepo, budget.Config{
		Period:        cfg.Budget.Period,
		UserCeiling:   cfg.Budget.UserCeiling,
		GlobalCeiling: cfg.Budget.GlobalCeiling,
		Costs: budget.Costs{
			Embedding:  cfg.Budget.CostsPer1K.Embedding,
			ChatInput:  cfg.Budget.CostsPer1K.ChatInput,
			ChatOutput: cfg.Budget.CostsPer1K.ChatOutput,
		},
	})

	provider, err := buildProvider(cfg.AI)
	if err != nil {
		return fmt.Errorf("init ai provider: %w", err)
	}
	client := ai.NewClient(
		provider,
		ledger,
		rate.NewLimiter(rate.Limit(cfg.AI.RateLimitPerSec), cfg.AI.RateLimitBurst),
		ai.RetryPolicy{
			MaxAttempts:     cfg.AI.Retry.MaxAttempts,
			InitialInterval: time.Duration(cfg.AI.Retry.InitialIntervalMS) * time.Millisecond,
			MaxInterval:     time.Duration(cfg.AI.Retry.MaxIntervalMS) * time.Millisecond,
		},
		ai.ClientConfig{
			ChatModel:   cfg.AI.ChatModel,
			EmbedModel:  cfg.AI.EmbedModel,
			EmbedDim:    cfg.AI.EmbedDim,
			MaxBatch:    cfg.AI.MaxBatch,
			MaxTokens:   cfg.AI.MaxTokens,
			CallTimeout: time.Duration(cfg.AI.TimeoutSeconds) * time.Second,
		},
	)
	var docEmbedder ai.IEmbedder = client
	if cfg.AI.UseDBCache {
		docEmbedder = embedcache.WrapDBCacheToEmbedder(docEmbedder, cacheRepo)
	}
	queryEmbedder := embedcache.WrapLruCacheToEmbedder(docEmbedder,
		cfg.AI.QueryCacheSize, time.Duration(cfg.AI.QueryCacheTTL)*time.Minute)

	splitter, err := chunker.New(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	if err != nil {
		return err
	}
	store, err := filestore.New(cfg.FileStore)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}

	authService := service.NewAuthService(userRepo, []byte(cfg.JWTSecret),
		time.Hour*time.Duration(cfg.JWTTTLHours), cfg.Ingest.DefaultDocumentLimit)
	memoryService := service.NewMemoryService(convRepo,
		time.Duration(cfg.RAG.MemoryWindowHours)*time.Hour, cfg.RAG.MemoryMaxTurns)
	ingestService := service.NewIngestService(userRepo, docRepo, chunkRepo, store,
		docEmbedder, splitter, service.IngestConfig{
			EmbedTaskDoc: cfg.AI.EmbedTaskDoc,
			MaxTextBytes: cfg.Ingest.MaxTextBytes,
		})
	chatService := service.NewChatService(queryEmbedder, client, chunkRepo,
		memoryService, ledger, service.ChatConfig{
			TopK:           cfg.RAG.TopK,
			MaxTopK:        cfg.RAG.MaxTopK,
			MaxPromptChars: cfg.RAG.MaxPromptChars,
			EmbedTaskQuery: cfg.AI.EmbedTaskQuery,
		})
	healthService := service.NewHealthService(database, chunkRepo, ledger)

	deps := handler.RouterDeps{
		Auth:            handler.NewAuthHandler(authService),
		Documents:       handler.NewDocumentHandler(ingestService),
		Chat:            handler.NewChatHandler(chatService),
		Budget:          handler.NewBudgetHandler(ledger),
		Files:           handler.NewFileHandler(store, cfg.Ingest.MaxTextBytes),
		Health:          handler.NewHealthHandler(healthService),
		JWTSecret:       []byte(cfg.JWTSecret),
		RateLimitWindow: time.Duration(cfg.RateLimitWindowMS) * time.Millisecond,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	window := time.Duration(cfg.RAG.MemoryWindowHours) * time.Hour
	pendingMaxAge := time.Duration(cfg.Ingest.PendingMaxAgeMinutes) * time.Minute
	_ = scheduler.AddJob(job.NewConversationSweepJob(convRepo, window), cfg.Jobs.ConversationSweep)
	_ = scheduler.AddJob(job.NewIngestCleanupJob(docRepo, chunkRepo, pendingMaxAge), cfg.Jobs.IngestCleanup)
	_ = scheduler.AddJob(job.NewBudgetCleanupJob(budgetRepo, cfg.Budget.RetentionDays), cfg.Jobs.BudgetCleanup)
	if cfg.AI.UseDBCache {
		_ = scheduler.AddJob(job.NewEmbeddingCacheCleanupJob(cacheRepo, cfg.Jobs.EmbedCacheMaxAgeDays), cfg.Jobs.EmbedCacheCleanup)
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	logutil.GetLogger(context.Background()).Info("http server listening",
		zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}

func buildProvider(cfg config.AIConfig) (ai.IProvider, error) {
	entries := make([]ai.ProviderEntry, 0, 1+len(cfg.Fallbacks))
	primary, err := ai.NewProvider(cfg.Provider, cfg.Data)
	if err != nil {
		return nil, err
	}
	entries = append(entries, ai.ProviderEntry{Name: cfg.Provider, Provider: primary})
	for _, fb := range cfg.Fallbacks {
		provider, err := ai.NewProvider(fb.Provider, fb.Data)
		if err != nil {
			return nil, fmt.Errorf("init fallback provider %s: %w", fb.Provider, err)
		}
		entries = append(entries, ai.ProviderEntry{Name: fb.Provider, Provider: provider})
	}
	return ai.NewGroupProvider(entries), nil
}
