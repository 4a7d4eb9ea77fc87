// internal/sources/metric-store/config.go
package metricstore

import "time"

type Config struct {
	// MaxRecords bounds a single fetch; tickers-only predicates can match
	// arbitrarily many rows for long-listed companies.
	MaxRecords int

	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		MaxRecords: 200,
		Timeout:    5 * time.Second,
	}
}
