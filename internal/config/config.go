package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"

	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
)

type Config struct {
	Port        int              `json:"port"`
	JWTSecret   string           `json:"jwt_secret"`
	JWTTTLHours int              `json:"jwt_ttl_hours"`
	LogConfig   logger.LogConfig `json:"log_config"`
	DB          DatabaseConfig   `json:"db"`
	FileStore   FileStoreConfig  `json:"file_store"`
	AI          AIConfig         `json:"ai"`
	RAG         RAGConfig        `json:"rag"`
	Budget      BudgetConfig     `json:"budget"`
	Ingest      IngestConfig     `json:"ingest"`
	Jobs        JobsConfig       `json:"jobs"`
	CORSOrigins []string         `json:"cors_origins"`
	// Minimum gap between two requests from the same client on the same
	// route, in milliseconds. Zero disables HTTP rate limiting.
	RateLimitWindowMS int `json:"rate_limit_window_ms"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type AIProviderConfig struct {
	Provider string      `json:"provider"`
	Data     interface{} `json:"data"`
}

type RetryConfig struct {
	MaxAttempts       int `json:"max_attempts"`
	InitialIntervalMS int `json:"initial_interval_ms"`
	MaxIntervalMS     int `json:"max_interval_ms"`
}

type AIConfig struct {
	Provider        string             `json:"provider"`
	Data            interface{}        `json:"data"`
	Fallbacks       []AIProviderConfig `json:"fallbacks"`
	ChatModel       string             `json:"chat_model"`
	EmbedModel      string             `json:"embed_model"`
	EmbedDim        int                `json:"embed_dim"`
	EmbedTaskDoc    string             `json:"embed_task_doc"`
	EmbedTaskQuery  string             `json:"embed_task_query"`
	MaxBatch        int                `json:"max_batch"`
	TimeoutSeconds  int                `json:"timeout_seconds"`
	MaxTokens       int                `json:"max_tokens"`
	Retry           RetryConfig        `json:"retry"`
	RateLimitPerSec float64            `json:"rate_limit_per_sec"`
	RateLimitBurst  int                `json:"rate_limit_burst"`
	QueryCacheSize  int                `json:"query_cache_size"`
	QueryCacheTTL   int                `json:"query_cache_ttl_minutes"`
	UseDBCache      bool               `json:"use_db_cache"`
}

type RAGConfig struct {
	ChunkSize         int `json:"chunk_size"`
	ChunkOverlap      int `json:"chunk_overlap"`
	TopK              int `json:"top_k"`
	MaxTopK           int `json:"max_top_k"`
	MaxPromptChars    int `json:"max_prompt_chars"`
	MemoryWindowHours int `json:"memory_window_hours"`
	MemoryMaxTurns    int `json:"memory_max_turns"`
}

type BudgetCosts struct {
	Embedding  float64 `json:"embedding"`
	ChatInput  float64 `json:"chat_input"`
	ChatOutput float64 `json:"chat_output"`
}

// BudgetConfig ceilings are dollars per period. A negative ceiling means
// the scope is unlimited; usage is still recorded.
type BudgetConfig struct {
	Period        string      `json:"period"`
	UserCeiling   float64     `json:"user_ceiling"`
	GlobalCeiling float64     `json:"global_ceiling"`
	CostsPer1K    BudgetCosts `json:"costs_per_1k"`
	RetentionDays int         `json:"retention_days"`
}

type IngestConfig struct {
	DefaultDocumentLimit int   `json:"default_document_limit"`
	MaxTextBytes         int64 `json:"max_text_bytes"`
	PendingMaxAgeMinutes int   `json:"pending_max_age_minutes"`
}

type JobsConfig struct {
	ConversationSweep    string `json:"conversation_sweep"`
	IngestCleanup        string `json:"ingest_cleanup"`
	BudgetCleanup        string `json:"budget_cleanup"`
	EmbedCacheCleanup    string `json:"embed_cache_cleanup"`
	EmbedCacheMaxAgeDays int    `json:"embed_cache_max_age_days"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("port is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt_secret is required")
	}
	if cfg.JWTTTLHours == 0 {
		cfg.JWTTTLHours = 72
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.DB.DSN == "" && (cfg.DB.Host == "" || cfg.DB.DBName == "") {
		return nil, fmt.Errorf("db.dsn or db.host+db.db_name is required")
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
		cfg.FileStore.Data = map[string]interface{}{"dir": "./data/files"}
	}
	applyAIDefaults(&cfg.AI)
	applyRAGDefaults(&cfg.RAG)
	applyBudgetDefaults(&cfg.Budget)
	applyIngestDefaults(&cfg.Ingest)
	applyJobsDefaults(&cfg.Jobs)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyAIDefaults(ai *AIConfig) {
	if ai.EmbedDim == 0 {
		ai.EmbedDim = 768
	}
	if ai.EmbedTaskDoc == "" {
		ai.EmbedTaskDoc = "RETRIEVAL_DOCUMENT"
	}
	if ai.EmbedTaskQuery == "" {
		ai.EmbedTaskQuery = "RETRIEVAL_QUERY"
	}
	if ai.MaxBatch == 0 {
		ai.MaxBatch = 100
	}
	if ai.TimeoutSeconds == 0 {
		ai.TimeoutSeconds = 60
	}
	if ai.MaxTokens == 0 {
		ai.MaxTokens = 500
	}
	if ai.Retry.MaxAttempts == 0 {
		ai.Retry.MaxAttempts = 3
	}
	if ai.Retry.InitialIntervalMS == 0 {
		ai.Retry.InitialIntervalMS = 500
	}
	if ai.Retry.MaxIntervalMS == 0 {
		ai.Retry.MaxIntervalMS = 10000
	}
	if ai.RateLimitPerSec == 0 {
		ai.RateLimitPerSec = 5
	}
	if ai.RateLimitBurst == 0 {
		ai.RateLimitBurst = 10
	}
	if ai.QueryCacheSize == 0 {
		ai.QueryCacheSize = 10000
	}
	if ai.QueryCacheTTL == 0 {
		ai.QueryCacheTTL = 120
	}
}

func applyRAGDefaults(rag *RAGConfig) {
	if rag.ChunkSize == 0 {
		rag.ChunkSize = 300
	}
	if rag.ChunkOverlap == 0 {
		rag.ChunkOverlap = 30
	}
	if rag.TopK == 0 {
		rag.TopK = 5
	}
	if rag.MaxTopK == 0 {
		rag.MaxTopK = 20
	}
	if rag.MaxPromptChars == 0 {
		rag.MaxPromptChars = 12000
	}
	if rag.MemoryWindowHours == 0 {
		rag.MemoryWindowHours = 24
	}
	if rag.MemoryMaxTurns == 0 {
		rag.MemoryMaxTurns = 20
	}
}

func applyBudgetDefaults(budget *BudgetConfig) {
	if budget.Period == "" {
		budget.Period = "total"
	}
	if budget.UserCeiling == 0 {
		budget.UserCeiling = 1.0
	}
	if budget.GlobalCeiling == 0 {
		budget.GlobalCeiling = 25.0
	}
	if budget.CostsPer1K.Embedding == 0 {
		budget.CostsPer1K.Embedding = 0.00002
	}
	if budget.CostsPer1K.ChatInput == 0 {
		budget.CostsPer1K.ChatInput = 0.00015
	}
	if budget.CostsPer1K.ChatOutput == 0 {
		budget.CostsPer1K.ChatOutput = 0.0006
	}
	if budget.RetentionDays == 0 {
		budget.RetentionDays = 90
	}
}

func applyIngestDefaults(ingest *IngestConfig) {
	if ingest.DefaultDocumentLimit == 0 {
		ingest.DefaultDocumentLimit = 5
	}
	if ingest.MaxTextBytes == 0 {
		ingest.MaxTextBytes = 1 << 20
	}
	if ingest.PendingMaxAgeMinutes == 0 {
		ingest.PendingMaxAgeMinutes = 60
	}
}

func applyJobsDefaults(jobs *JobsConfig) {
	if jobs.ConversationSweep == "" {
		jobs.ConversationSweep = "0 * * * *"
	}
	if jobs.IngestCleanup == "" {
		jobs.IngestCleanup = "*/30 * * * *"
	}
	if jobs.BudgetCleanup == "" {
		jobs.BudgetCleanup = "0 3 * * *"
	}
	if jobs.EmbedCacheCleanup == "" {
		jobs.EmbedCacheCleanup = "30 3 * * *"
	}
	if jobs.EmbedCacheMaxAgeDays == 0 {
		jobs.EmbedCacheMaxAgeDays = 30
	}
}

func validate(cfg *Config) error {
	if cfg.AI.Provider == "" {
		return fmt.Errorf("ai.provider is required")
	}
	if cfg.AI.ChatModel == "" || cfg.AI.EmbedModel == "" {
		return fmt.Errorf("ai.chat_model and ai.embed_model are required")
	}
	if cfg.AI.EmbedDim <= 0 {
		return fmt.Errorf("%w: ai.embed_dim must be positive", appErr.ErrInvalidConfig)
	}
	if cfg.RAG.ChunkOverlap >= cfg.RAG.ChunkSize {
		return fmt.Errorf("%w: rag.chunk_overlap %d must be smaller than rag.chunk_size %d",
			appErr.ErrInvalidConfig, cfg.RAG.ChunkOverlap, cfg.RAG.ChunkSize)
	}
	if cfg.RAG.TopK > cfg.RAG.MaxTopK {
		return fmt.Errorf("%w: rag.top_k %d must not exceed rag.max_top_k %d",
			appErr.ErrInvalidConfig, cfg.RAG.TopK, cfg.RAG.MaxTopK)
	}
	switch cfg.Budget.Period {
	case "total", "daily", "monthly":
	default:
		return fmt.Errorf("%w: budget.period must be total, daily or monthly", appErr.ErrInvalidConfig)
	}
	if cfg.Budget.CostsPer1K.Embedding < 0 || cfg.Budget.CostsPer1K.ChatInput < 0 || cfg.Budget.CostsPer1K.ChatOutput < 0 {
		return fmt.Errorf("%w: budget costs must not be negative", appErr.ErrInvalidConfig)
	}
	return nil
}
