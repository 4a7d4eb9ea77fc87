// internal/sources/dense-http/config.go
package densehttp

import "time"

type Config struct {
	// BaseURL of the vector-search service, without trailing slash.
	BaseURL string

	// SearchPath is appended to BaseURL for similarity lookups.
	SearchPath string

	// APIKey is sent as a bearer token when non-empty.
	APIKey string

	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		BaseURL:    "http://localhost:8091",
		SearchPath: "/v1/search",
		Timeout:    3 * time.Second,
	}
}
