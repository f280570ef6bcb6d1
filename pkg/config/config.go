package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for ekaya-insight.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3480"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// MaxUploadMB caps spreadsheet uploads accepted over HTTP.
	MaxUploadMB int64 `yaml:"max_upload_mb" env:"MAX_UPLOAD_MB" env-default:"32"`

	// Row store selection and backends
	Store    StoreConfig    `yaml:"store"`
	Database DatabaseConfig `yaml:"database"`
	MSSQL    MSSQLConfig    `yaml:"mssql"`

	// Optional text-understanding/generation provider
	LLM LLMConfig `yaml:"llm"`

	// Resolution and analytics tuning
	Engine EngineConfig `yaml:"engine"`
	Cache  CacheConfig  `yaml:"cache"`
}

// Row store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMSSQL    = "mssql"
)

// StoreConfig selects where dataset versions and rows live.
type StoreConfig struct {
	Backend string `yaml:"backend" env:"STORE_BACKEND" env-default:"memory"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"ekaya"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"ekaya_insight"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	// StatementTimeoutSeconds bounds each row-store statement; 0 disables.
	StatementTimeoutSeconds int `yaml:"statement_timeout_seconds" env:"PGSTATEMENT_TIMEOUT_SECONDS" env-default:"30"`
}

// MSSQLConfig holds SQL Server configuration.
type MSSQLConfig struct {
	Host     string `yaml:"host" env:"MSSQL_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"MSSQL_PORT" env-default:"1433"`
	User     string `yaml:"user" env:"MSSQL_USER" env-default:"sa"`
	Password string `yaml:"-" env:"MSSQL_PASSWORD"` // Secret - not in YAML
	Database string `yaml:"database" env:"MSSQL_DATABASE" env-default:"ekaya_insight"`
	Encrypt  string `yaml:"encrypt" env:"MSSQL_ENCRYPT" env-default:"disable"`
}

// LLM providers.
const (
	ProviderNone      = "none"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// LLMConfig configures the optional language model used for planning,
// answer phrasing and embeddings. With provider "none" every stage runs on
// its deterministic fallback.
type LLMConfig struct {
	Provider       string  `yaml:"provider" env:"LLM_PROVIDER" env-default:"none"`
	Endpoint       string  `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:"https://api.openai.com/v1"`
	Model          string  `yaml:"model" env:"LLM_MODEL" env-default:""`
	APIKey         string  `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	EmbeddingModel string  `yaml:"embedding_model" env:"LLM_EMBEDDING_MODEL" env-default:""`
	Temperature    float64 `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0"`
	MaxTokens      int     `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"1024"`
	// Circuit breaker around planner and phrasing calls.
	CircuitThreshold    int `yaml:"circuit_threshold" env:"LLM_CIRCUIT_THRESHOLD" env-default:"5"`
	CircuitResetSeconds int `yaml:"circuit_reset_seconds" env:"LLM_CIRCUIT_RESET_SECONDS" env-default:"30"`
}

// IsAvailable returns true if a provider is configured well enough to call.
func (c *LLMConfig) IsAvailable() bool {
	switch c.Provider {
	case ProviderOpenAI:
		return c.Endpoint != "" && c.Model != ""
	case ProviderAnthropic:
		return c.APIKey != "" && c.Model != ""
	default:
		return false
	}
}

// EmbeddingsAvailable returns true if similarity retrieval can be built.
// Only OpenAI-compatible endpoints serve embeddings.
func (c *LLMConfig) EmbeddingsAvailable() bool {
	return c.Provider == ProviderOpenAI && c.Endpoint != "" && c.EmbeddingModel != ""
}

// CircuitResetAfter is the breaker cool-down as a duration.
func (c *LLMConfig) CircuitResetAfter() time.Duration {
	return time.Duration(c.CircuitResetSeconds) * time.Second
}

// EngineConfig tunes the resolution and analytics pipeline.
type EngineConfig struct {
	// SimilarityThreshold is the minimum normalized similarity for a token
	// correction or a concept-to-column match.
	SimilarityThreshold float64 `yaml:"similarity_threshold" env:"ENGINE_SIMILARITY_THRESHOLD" env-default:"0.85"`
	// ClarificationConfidence is the planner confidence below which the
	// user is asked to clarify.
	ClarificationConfidence float64 `yaml:"clarification_confidence" env:"ENGINE_CLARIFICATION_CONFIDENCE" env-default:"0.4"`
	// RowLimit bounds rows returned for display and summaries.
	RowLimit int `yaml:"row_limit" env:"ENGINE_ROW_LIMIT" env-default:"500"`
	// AggregateRowLimit bounds rows read when building cached aggregates.
	AggregateRowLimit int `yaml:"aggregate_row_limit" env:"ENGINE_AGGREGATE_ROW_LIMIT" env-default:"100000"`
	// DailyMaxDays is the longest span still reported day by day.
	DailyMaxDays int `yaml:"daily_max_days" env:"ENGINE_DAILY_MAX_DAYS" env-default:"60"`
	// RetrievalTopK bounds similarity retrieval results.
	RetrievalTopK int `yaml:"retrieval_top_k" env:"ENGINE_RETRIEVAL_TOP_K" env-default:"20"`
	// NearbyDatesLimit bounds the dates suggested by a no-data answer.
	NearbyDatesLimit int `yaml:"nearby_dates_limit" env:"ENGINE_NEARBY_DATES_LIMIT" env-default:"5"`
	// TableRowLimit bounds table payloads attached to summaries.
	TableRowLimit int `yaml:"table_row_limit" env:"ENGINE_TABLE_ROW_LIMIT" env-default:"200"`
}

// CacheConfig bounds the aggregation cache.
type CacheConfig struct {
	MaxEntries int `yaml:"max_entries" env:"CACHE_MAX_ENTRIES" env-default:"128"`
	TTLSeconds int `yaml:"ttl_seconds" env:"CACHE_TTL_SECONDS" env-default:"3600"`
}

// TTL returns the entry lifetime.
func (c *CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// Load reads configuration from config.yaml with environment variable overrides.
// A missing config.yaml is not an error: defaults and environment apply.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	return LoadFile("config.yaml", version)
}

// LoadFile is Load with an explicit YAML path.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

func (c *Config) validate() error {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	switch c.Store.Backend {
	case StoreMemory, StorePostgres, StoreMSSQL:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	switch c.LLM.Provider {
	case ProviderNone, ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}

	if c.Engine.SimilarityThreshold <= 0 || c.Engine.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in (0,1], got %v", c.Engine.SimilarityThreshold)
	}
	if c.Engine.ClarificationConfidence < 0 || c.Engine.ClarificationConfidence > 1 {
		return fmt.Errorf("clarification_confidence must be in [0,1], got %v", c.Engine.ClarificationConfidence)
	}
	if c.Engine.RowLimit <= 0 {
		return fmt.Errorf("row_limit must be positive, got %d", c.Engine.RowLimit)
	}
	if c.Engine.AggregateRowLimit < c.Engine.RowLimit {
		return fmt.Errorf("aggregate_row_limit (%d) must not be below row_limit (%d)",
			c.Engine.AggregateRowLimit, c.Engine.RowLimit)
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache max_entries must be positive, got %d", c.Cache.MaxEntries)
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection URL.
func (c *DatabaseConfig) ConnectionString() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}

// ConnectionString returns a SQL Server connection URL for go-mssqldb.
func (c *MSSQLConfig) ConnectionString() string {
	q := url.Values{}
	q.Set("database", c.Database)
	q.Set("encrypt", c.Encrypt)
	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		RawQuery: q.Encode(),
	}
	return u.String()
}
