// internal/common/config/loader.go
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	// Base config
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like DENSE_SEARCH_API_KEY
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Merge environment-specific overrides
	envConfigFile := fmt.Sprintf("config.%s", env)
	viper.SetConfigName(envConfigFile)
	_ = viper.MergeInConfig() // ignore error if not found

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Load .env from multiple possible locations
func loadEnvFile() {
	// Try multiple paths (for running from different directories)
	possiblePaths := []string{
		".env",          // Current directory
		"../.env",       // Parent directory
		"../../.env",    // Two levels up (for tests in test/e2e/)
		"../../../.env", // Three levels up
	}

	// Also try to find project root by looking for go.mod
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				fmt.Printf("✅ Loaded .env from: %s\n", path)
				return
			}
		}
	}

	fmt.Printf("⚠️  .env file not found in any location, using system environment variables\n")
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	// Walk up directories looking for go.mod
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			break
		}
		dir = parent
	}

	return ""
}

// Improved environment variable expansion
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		// Only process string values
		if strVal, ok := val.(string); ok {
			// Check if it contains environment variable pattern
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// Direct override if config values are still empty after expansion
func overrideEmptyConfig(cfg *Config) {
	// Dense search service
	if cfg.Services.DenseSearch.APIKey == "" {
		if val := os.Getenv("DENSE_SEARCH_API_KEY"); val != "" {
			cfg.Services.DenseSearch.APIKey = val
		}
	}
	if cfg.Services.DenseSearch.BaseURL == "" {
		if val := os.Getenv("DENSE_SEARCH_BASE_URL"); val != "" {
			cfg.Services.DenseSearch.BaseURL = val
		}
	}

	// Reranker service
	if cfg.Services.Reranker.APIKey == "" {
		if val := os.Getenv("RERANKER_API_KEY"); val != "" {
			cfg.Services.Reranker.APIKey = val
		}
	}
	if cfg.Services.Reranker.BaseURL == "" {
		if val := os.Getenv("RERANKER_BASE_URL"); val != "" {
			cfg.Services.Reranker.BaseURL = val
		}
	}

	// Alerting topic
	if cfg.Alerting.Topic.TopicARN == "" {
		if val := os.Getenv("ALERT_TOPIC_ARN"); val != "" {
			cfg.Alerting.Topic.TopicARN = val
		}
	}

	// Database overrides
	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile() // Load env file first

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// Expand environment variables before unmarshal
	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 30000
	}

	// Database defaults
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	// Elasticsearch URL fallback
	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}

	// Hybrid search defaults
	if cfg.Search.DenseWeight == 0 && cfg.Search.SparseWeight == 0 {
		cfg.Search.DenseWeight = 0.6
		cfg.Search.SparseWeight = 0.4
	}
	if cfg.Search.KDefault == 0 {
		cfg.Search.KDefault = 8
	}
	if cfg.Search.BranchTimeout == 0 {
		cfg.Search.BranchTimeout = 2500
	}
	if cfg.Search.IndexPrefix == "" {
		cfg.Search.IndexPrefix = "finqa"
	}
	if cfg.Search.MaxSteps == 0 {
		cfg.Search.MaxSteps = 5
	}

	// Collaborator timeouts
	if cfg.Services.DenseSearch.Timeout == 0 {
		cfg.Services.DenseSearch.Timeout = 2500
	}
	if cfg.Services.Reranker.Timeout == 0 {
		cfg.Services.Reranker.Timeout = 2000
	}
	if cfg.Services.Reranker.RateLimit == 0 {
		cfg.Services.Reranker.RateLimit = 20
	}
	if cfg.Services.Reranker.Burst == 0 {
		cfg.Services.Reranker.Burst = 10
	}
	if cfg.Services.Reranker.MaxConcurrent == 0 {
		cfg.Services.Reranker.MaxConcurrent = 4
	}
	if cfg.Services.Reranker.CacheTTL == 0 {
		cfg.Services.Reranker.CacheTTL = 300
	}

	// Guardrail defaults
	if cfg.Guardrails.MinRelevanceScore == 0 {
		cfg.Guardrails.MinRelevanceScore = 0.30
	}
	if cfg.Guardrails.MaxDocumentsPerSource == 0 {
		cfg.Guardrails.MaxDocumentsPerSource = 10
	}
	if cfg.Guardrails.MaxContextChars == 0 {
		cfg.Guardrails.MaxContextChars = 16000
	}
	if cfg.Guardrails.RequireMinDocs == 0 {
		cfg.Guardrails.RequireMinDocs = 1
	}
	if cfg.Guardrails.MinConfidence == 0 {
		cfg.Guardrails.MinConfidence = 0.25
	}
	if cfg.Guardrails.MetricsBufferSize == 0 {
		cfg.Guardrails.MetricsBufferSize = 1000
	}

	// Cache defaults
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 300
	}
	if cfg.Cache.Prefix == "" {
		cfg.Cache.Prefix = "finqa:retrieval:"
	}

	// Stage defaults
	for key, stage := range cfg.Stages {
		if stage.Timeout == 0 {
			stage.Timeout = 30000
		}
		if stage.MaxRetries == 0 {
			stage.MaxRetries = 3
		}
		cfg.Stages[key] = stage
	}

	// Alerting defaults
	if cfg.Alerting.EmptyRateThreshold == 0 {
		cfg.Alerting.EmptyRateThreshold = 0.5
	}
	if cfg.Alerting.LowScoreRateThreshold == 0 {
		cfg.Alerting.LowScoreRateThreshold = 0.6
	}
	if cfg.Alerting.MinSampleSize == 0 {
		cfg.Alerting.MinSampleSize = 20
	}
	if cfg.Alerting.Cooldown == 0 {
		cfg.Alerting.Cooldown = 900
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// validateConfig validates critical configuration fields. The service refuses
// to start on invalid values; configuration is never patched at request time.
func validateConfig(cfg *Config) error {
	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}

	if len(cfg.Database.Elasticsearch.Addresses) == 0 && cfg.Database.Elasticsearch.URL == "" {
		return fmt.Errorf("database.elasticsearch.addresses or url is required")
	}

	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}

	if cfg.Services.DenseSearch.BaseURL == "" {
		return fmt.Errorf("services.dense_search.base_url is required")
	}

	if cfg.Search.DenseWeight < 0 || cfg.Search.SparseWeight < 0 {
		return fmt.Errorf("search weights must be non-negative")
	}
	if math.Abs(cfg.Search.DenseWeight+cfg.Search.SparseWeight-1.0) > 1e-9 {
		return fmt.Errorf("search.dense_weight and search.sparse_weight must sum to 1.0")
	}
	if cfg.Search.KDefault < 1 {
		return fmt.Errorf("search.k_default must be positive")
	}
	if cfg.Search.MaxSteps < 1 {
		return fmt.Errorf("search.max_steps must be positive")
	}

	if cfg.Guardrails.MinRelevanceScore < 0 || cfg.Guardrails.MinRelevanceScore > 1 {
		return fmt.Errorf("guardrails.min_relevance_score must be within [0,1]")
	}
	if cfg.Guardrails.MinConfidence < 0 || cfg.Guardrails.MinConfidence > 1 {
		return fmt.Errorf("guardrails.min_confidence must be within [0,1]")
	}
	if cfg.Guardrails.MaxDocumentsPerSource < 1 {
		return fmt.Errorf("guardrails.max_documents_per_source must be positive")
	}
	if cfg.Guardrails.MaxContextChars < 1 {
		return fmt.Errorf("guardrails.max_context_chars must be positive")
	}
	if cfg.Guardrails.RequireMinDocs < 0 {
		return fmt.Errorf("guardrails.require_min_docs must not be negative")
	}
	if cfg.Guardrails.MetricsBufferSize < 1 {
		return fmt.Errorf("guardrails.metrics_buffer_size must be positive")
	}

	if cfg.Alerting.EmptyRateThreshold < 0 || cfg.Alerting.EmptyRateThreshold > 1 {
		return fmt.Errorf("alerting.empty_rate_threshold must be within [0,1]")
	}
	if cfg.Alerting.LowScoreRateThreshold < 0 || cfg.Alerting.LowScoreRateThreshold > 1 {
		return fmt.Errorf("alerting.low_score_rate_threshold must be within [0,1]")
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetStageConfig retrieves stage-specific configuration with fallback to defaults
func GetStageConfig(cfg *Config, stageName string) StageConfig {
	if stage, exists := cfg.Stages[stageName]; exists {
		return stage
	}

	// Return default stage config if not found
	return StageConfig{
		Enabled:    true,
		Timeout:    30000,
		MaxRetries: 3,
	}
}

// IsStageEnabled checks if a specific pipeline stage is enabled
func IsStageEnabled(cfg *Config, stageName string) bool {
	if stage, exists := cfg.Stages[stageName]; exists {
		return stage.Enabled
	}
	return true
}
