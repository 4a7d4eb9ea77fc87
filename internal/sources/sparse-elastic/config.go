// internal/sources/sparse-elastic/config.go
package sparseelastic

import "time"

type Config struct {
	// TextField is the _source field holding the snippet text. Every other
	// _source field is carried through as document metadata.
	TextField string

	// SearchFields are the multi_match targets, with boosts.
	SearchFields []string

	// Timeout guards a single search when the caller supplied no deadline.
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		TextField:    "text",
		SearchFields: []string{"text^3", "title^2", "section"},
		Timeout:      5 * time.Second,
	}
}
