// internal/stages/fuse-scores/config.go
package fusescores

import "time"

type Config struct {
	TopConfidenceDocs int // pool size for the overall confidence mean
	Timeout           time.Duration
}

func LoadConfig() *Config {
	return &Config{
		TopConfidenceDocs: 5,
		Timeout:           5 * time.Second,
	}
}
