// internal/stages/decompose-query/config.go
package decomposequery

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 2 * time.Second,
	}
}
