// internal/sources/rerank-http/config.go
package rerankhttp

import "time"

type Config struct {
	// BaseURL of the pairwise scoring service, without trailing slash.
	BaseURL string

	// ScorePath is appended to BaseURL for scoring calls.
	ScorePath string

	// APIKey is sent as a bearer token when non-empty.
	APIKey string

	Timeout time.Duration

	// Outbound call budget. The scorer sits on the hot path of every
	// reranked request, so calls are throttled client-side.
	RequestsPerSecond float64
	Burst             int

	// Scored (query, text) pairs are memoized for CacheTTL.
	CacheTTL     time.Duration
	CacheCleanup time.Duration
}

func LoadConfig() *Config {
	return &Config{
		BaseURL:           "http://localhost:8092",
		ScorePath:         "/v1/score",
		Timeout:           3 * time.Second,
		RequestsPerSecond: 10,
		Burst:             5,
		CacheTTL:          5 * time.Minute,
		CacheCleanup:      10 * time.Minute,
	}
}
