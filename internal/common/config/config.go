// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App        AppConfig              `mapstructure:"app"`
	Server     ServerConfig           `mapstructure:"server"`
	Database   DatabaseConfig         `mapstructure:"database"`
	Search     SearchConfig           `mapstructure:"search"`
	Services   ServicesConfig         `mapstructure:"services"`
	Policies   PoliciesConfig         `mapstructure:"policies"`
	Guardrails GuardrailsConfig       `mapstructure:"guardrails"`
	Cache      CacheConfig            `mapstructure:"cache"`
	Stages     map[string]StageConfig `mapstructure:"stages"`
	Alerting   AlertingConfig         `mapstructure:"alerting"`
	Logging    LoggingConfig          `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	RequestTimeout int      `mapstructure:"request_timeout"` // milliseconds
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	SSLEnabled bool     `mapstructure:"ssl_enabled"`
	URL        string   `mapstructure:"url"` // Single URL for backwards compatibility
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StageConfig holds the core settings applicable to every pipeline stage.
type StageConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	Timeout    int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries int  `mapstructure:"max_retries"` // For error handling
}

// --- Retrieval Configuration Sections ---

// SearchConfig holds hybrid search settings shared by all document steps.
type SearchConfig struct {
	DenseWeight   float64 `mapstructure:"dense_weight"`
	SparseWeight  float64 `mapstructure:"sparse_weight"`
	KDefault      int     `mapstructure:"k_default"`
	BranchTimeout int     `mapstructure:"branch_timeout"` // milliseconds, per dense/sparse branch
	IndexPrefix   string  `mapstructure:"index_prefix"`   // ES indexes and vector collections share it
	MaxSteps      int     `mapstructure:"max_steps"`      // multi-hop cap
}

// ServicesConfig holds settings for external retrieval collaborators.
type ServicesConfig struct {
	DenseSearch struct {
		BaseURL string `mapstructure:"base_url"`
		APIKey  string `mapstructure:"api_key"`
		Timeout int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"dense_search"`

	Reranker struct {
		BaseURL       string  `mapstructure:"base_url"`
		APIKey        string  `mapstructure:"api_key"`
		Timeout       int     `mapstructure:"timeout"`    // milliseconds
		RateLimit     float64 `mapstructure:"rate_limit"` // requests per second
		Burst         int     `mapstructure:"burst"`
		MaxConcurrent int     `mapstructure:"max_concurrent"` // parallel score calls
		CacheTTL      int     `mapstructure:"cache_ttl"`      // seconds, pair-score memoization
	} `mapstructure:"reranker"`
}

// PoliciesConfig points at the optional intent policy table override.
type PoliciesConfig struct {
	TablePath string `mapstructure:"table_path"`
}

// GuardrailsConfig holds relevance filtering and grounding thresholds.
type GuardrailsConfig struct {
	MinRelevanceScore     float64 `mapstructure:"min_relevance_score"`
	MaxDocumentsPerSource int     `mapstructure:"max_documents_per_source"`
	MaxContextChars       int     `mapstructure:"max_context_chars"`
	RequireMinDocs        int     `mapstructure:"require_min_docs"`
	MinConfidence         float64 `mapstructure:"min_confidence"`
	MetricsBufferSize     int     `mapstructure:"metrics_buffer_size"`
}

// CacheConfig holds settings for the Redis response cache.
type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	TTL     int    `mapstructure:"ttl"` // seconds
	Prefix  string `mapstructure:"prefix"`
}

// AlertingConfig holds settings for retrieval quality alerts.
type AlertingConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Email   struct {
		Enabled    bool     `mapstructure:"enabled"`
		FromEmail  string   `mapstructure:"from_email"`
		Recipients []string `mapstructure:"recipients"`
	} `mapstructure:"email"`
	Topic struct {
		Enabled  bool   `mapstructure:"enabled"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"topic"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
	EmptyRateThreshold    float64 `mapstructure:"empty_rate_threshold"`
	LowScoreRateThreshold float64 `mapstructure:"low_score_rate_threshold"`
	MinSampleSize         int     `mapstructure:"min_sample_size"`
	Cooldown              int     `mapstructure:"cooldown"` // seconds between alerts
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
