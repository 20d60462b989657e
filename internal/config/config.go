package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/xxxsen/common/logger"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        int               `json:"port" yaml:"port"`
	JWTSecret   string            `json:"jwt_secret" yaml:"jwt_secret"`
	JWTTTLHours int               `json:"jwt_ttl_hours" yaml:"jwt_ttl_hours"`
	Database    DatabaseConfig    `json:"database" yaml:"database"`
	LogConfig   logger.LogConfig  `json:"log_config" yaml:"log_config"`
	FileStore   FileStoreConfig   `json:"file_store" yaml:"file_store"`
	VectorStore VectorStoreConfig `json:"vector_store" yaml:"vector_store"`
	AI          AIConfig          `json:"ai" yaml:"ai"`
	EmbedCache  EmbedCacheConfig  `json:"embed_cache" yaml:"embed_cache"`
	Ingest      IngestConfig      `json:"ingest" yaml:"ingest"`
	Query       QueryConfig       `json:"query" yaml:"query"`
	Jobs        JobsConfig        `json:"jobs" yaml:"jobs"`
	CORS        CORSConfig        `json:"cors" yaml:"cors"`
}

type DatabaseConfig struct {
	DSN          string `json:"dsn" yaml:"dsn"`
	Host         string `json:"host" yaml:"host"`
	Port         int    `json:"port" yaml:"port"`
	User         string `json:"user" yaml:"user"`
	Password     string `json:"password" yaml:"password"`
	DBName       string `json:"dbname" yaml:"dbname"`
	SSLMode      string `json:"sslmode" yaml:"sslmode"`
	MaxOpenConns int    `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns" yaml:"max_idle_conns"`
}

// FileStoreConfig selects a blob backend; Data is handed to that backend's factory.
type FileStoreConfig struct {
	Type string                 `json:"type" yaml:"type"`
	Data map[string]interface{} `json:"data" yaml:"data"`
}

type VectorStoreConfig struct {
	Type            string `json:"type" yaml:"type"`
	Dimension       int    `json:"dimension" yaml:"dimension"`
	ReadyIntervalMs int    `json:"ready_interval_ms" yaml:"ready_interval_ms"`
	ReadyAttempts   int    `json:"ready_attempts" yaml:"ready_attempts"`
}

type AIConfig struct {
	Provider   string                 `json:"provider" yaml:"provider"`
	Data       map[string]interface{} `json:"data" yaml:"data"`
	Model      string                 `json:"model" yaml:"model"`
	EmbedModel string                 `json:"embed_model" yaml:"embed_model"`
	Timeout    int                    `json:"timeout" yaml:"timeout"`
	Encoding   string                 `json:"tokenizer_encoding" yaml:"tokenizer_encoding"`
}

type EmbedCacheConfig struct {
	LRUSize       int  `json:"lru_size" yaml:"lru_size"`
	LRUTTLSeconds int  `json:"lru_ttl_seconds" yaml:"lru_ttl_seconds"`
	DBEnabled     bool `json:"db_enabled" yaml:"db_enabled"`
}

type PoolConfig struct {
	Core  int `json:"core" yaml:"core"`
	Max   int `json:"max" yaml:"max"`
	Queue int `json:"queue" yaml:"queue"`
}

type IngestConfig struct {
	MaxFileBytes           int64      `json:"max_file_bytes" yaml:"max_file_bytes"`
	AllowedTypes           []string   `json:"allowed_types" yaml:"allowed_types"`
	ChunkSize              int        `json:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap           int        `json:"chunk_overlap" yaml:"chunk_overlap"`
	ChunkTolerance         int        `json:"chunk_tolerance" yaml:"chunk_tolerance"`
	PersistEvery           int        `json:"persist_every" yaml:"persist_every"`
	RollbackPartialVectors bool       `json:"rollback_partial_vectors" yaml:"rollback_partial_vectors"`
	Pool                   PoolConfig `json:"pool" yaml:"pool"`
	ShutdownTimeoutSeconds int        `json:"shutdown_timeout_seconds" yaml:"shutdown_timeout_seconds"`
}

type RateLimitConfig struct {
	RPS   float64 `json:"rps" yaml:"rps"`
	Burst int     `json:"burst" yaml:"burst"`
}

type QueryConfig struct {
	MaxQuestionChars int             `json:"max_question_chars" yaml:"max_question_chars"`
	MaxHistory       int             `json:"max_history" yaml:"max_history"`
	TopK             int             `json:"top_k" yaml:"top_k"`
	MinScore         float64         `json:"min_score" yaml:"min_score"`
	PreviewRunes     int             `json:"preview_runes" yaml:"preview_runes"`
	RateLimit        RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
}

type JobConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Schedule string `json:"schedule" yaml:"schedule"`
}

type JobsConfig struct {
	StaleRunSweeper      JobConfig `json:"stale_run_sweeper" yaml:"stale_run_sweeper"`
	StaleAfterMinutes    int       `json:"stale_after_minutes" yaml:"stale_after_minutes"`
	DeletedDocumentPurge JobConfig `json:"deleted_document_purge" yaml:"deleted_document_purge"`
	PurgeAfterDays       int       `json:"purge_after_days" yaml:"purge_after_days"`
	EmbeddingCacheClean  JobConfig `json:"embedding_cache_cleanup" yaml:"embedding_cache_cleanup"`
	CacheMaxAgeDays      int       `json:"cache_max_age_days" yaml:"cache_max_age_days"`
}

type CORSConfig struct {
	AllowOrigins []string `json:"allow_origins" yaml:"allow_origins"`
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads a JSON or YAML config. A .env file next to it is loaded first
// and ${VAR} references in the file are replaced from the environment.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	envFile := filepath.Join(filepath.Dir(path), ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}
	expanded := envRef.ReplaceAllStringFunc(string(raw), func(ref string) string {
		return os.Getenv(envRef.FindStringSubmatch(ref)[1])
	})

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	default:
		if err := json.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() error {
	if cfg.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	if cfg.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return fmt.Errorf("database.dsn or database.host is required")
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.JWTTTLHours == 0 {
		cfg.JWTTTLHours = 72
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	if cfg.FileStore.Type == "local" {
		if cfg.FileStore.Data == nil {
			cfg.FileStore.Data = map[string]interface{}{}
		}
		if dir, _ := cfg.FileStore.Data["dir"].(string); dir == "" {
			return fmt.Errorf("file_store.data.dir is required for local store")
		}
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "pgvector"
	}
	if cfg.VectorStore.Dimension <= 0 {
		return fmt.Errorf("vector_store.dimension is required")
	}
	if cfg.VectorStore.ReadyIntervalMs <= 0 {
		cfg.VectorStore.ReadyIntervalMs = 200
	}
	if cfg.VectorStore.ReadyAttempts <= 0 {
		cfg.VectorStore.ReadyAttempts = 25
	}

	if cfg.AI.Provider == "" {
		return fmt.Errorf("ai.provider is required")
	}
	if cfg.AI.Model == "" || cfg.AI.EmbedModel == "" {
		return fmt.Errorf("ai.model and ai.embed_model are required")
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 60
	}

	in := &cfg.Ingest
	if in.MaxFileBytes <= 0 {
		in.MaxFileBytes = 20 << 20
	}
	if len(in.AllowedTypes) == 0 {
		in.AllowedTypes = []string{"txt", "md", "pdf", "docx", "xlsx", "rtf", "odt", "csv"}
	}
	if in.ChunkSize <= 0 {
		in.ChunkSize = 1000
	}
	if in.ChunkOverlap <= 0 {
		in.ChunkOverlap = in.ChunkSize / 5
	}
	if in.ChunkOverlap >= in.ChunkSize {
		return fmt.Errorf("ingest.chunk_overlap must be smaller than ingest.chunk_size")
	}
	if in.PersistEvery <= 0 {
		in.PersistEvery = 5
	}
	if in.Pool.Core <= 0 {
		in.Pool.Core = 4
	}
	if in.Pool.Max < in.Pool.Core {
		in.Pool.Max = in.Pool.Core * 2
	}
	if in.Pool.Queue <= 0 {
		in.Pool.Queue = 100
	}
	if in.ShutdownTimeoutSeconds <= 0 {
		in.ShutdownTimeoutSeconds = 30
	}

	q := &cfg.Query
	if q.MaxQuestionChars <= 0 {
		q.MaxQuestionChars = 2000
	}
	if q.MaxHistory <= 0 {
		q.MaxHistory = 10
	}
	if q.TopK <= 0 {
		q.TopK = 5
	}
	if q.MinScore <= 0 {
		q.MinScore = 0.5
	}
	if q.PreviewRunes <= 0 {
		q.PreviewRunes = 200
	}
	if q.RateLimit.RPS > 0 && q.RateLimit.Burst <= 0 {
		q.RateLimit.Burst = int(q.RateLimit.RPS) + 1
	}

	j := &cfg.Jobs
	if j.StaleRunSweeper.Schedule == "" {
		j.StaleRunSweeper.Schedule = "*/5 * * * *"
	}
	if j.StaleAfterMinutes <= 0 {
		j.StaleAfterMinutes = 60
	}
	if j.DeletedDocumentPurge.Schedule == "" {
		j.DeletedDocumentPurge.Schedule = "0 3 * * *"
	}
	if j.PurgeAfterDays <= 0 {
		j.PurgeAfterDays = 30
	}
	if j.EmbeddingCacheClean.Schedule == "" {
		j.EmbeddingCacheClean.Schedule = "30 3 * * *"
	}
	if j.CacheMaxAgeDays <= 0 {
		j.CacheMaxAgeDays = 30
	}
	return nil
}
