// internal/stages/select-policy/config.go
package selectpolicy

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 2 * time.Second,
	}
}
