// internal/server/config.go
package server

import "time"

type Config struct {
	Port           int
	RequestTimeout time.Duration
	AllowedOrigins []string
}

func LoadConfig() *Config {
	return &Config{
		Port:           8080,
		RequestTimeout: 60 * time.Second,
		AllowedOrigins: []string{"http://localhost:*"},
	}
}
