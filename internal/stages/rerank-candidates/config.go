// internal/stages/rerank-candidates/config.go
package rerankcandidates

import "time"

type Config struct {
	// Blend weights for finalScore. Fixed by contract at 0.7/0.3; kept in
	// config so tests can pin them explicitly.
	RerankWeight  float64
	InitialWeight float64

	// ScoreThreshold drops candidates whose finalScore falls below it.
	ScoreThreshold float64

	// MaxConcurrent bounds in-flight scorer calls per rerank.
	MaxConcurrent int

	// CallTimeout bounds each individual scorer call.
	CallTimeout time.Duration

	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		RerankWeight:   0.7,
		InitialWeight:  0.3,
		ScoreThreshold: 0.0,
		MaxConcurrent:  4,
		CallTimeout:    3 * time.Second,
		Timeout:        15 * time.Second,
	}
}
