// internal/orchestrator/config.go
package orchestrator

import (
	"time"

	"finqa-retrieval/internal/models"
)

type Config struct {
	// MaxSteps caps how many decomposed steps actually execute.
	MaxSteps int

	// CacheTTL bounds full-response memoization.
	CacheTTL time.Duration

	// Timeout is the end-to-end budget when the caller carries no deadline.
	Timeout time.Duration

	// Collections and Indexes name the dense collection and sparse index
	// searched for each document source.
	Collections map[models.SourceType]string
	Indexes     map[models.SourceType]string
}

func LoadConfig() *Config {
	return &Config{
		MaxSteps: 5,
		CacheTTL: 60 * time.Second,
		Timeout:  30 * time.Second,
		Collections: map[models.SourceType]string{
			models.SourceSECNarrative: "sec_chunks",
			models.SourceUploaded:     "uploaded_chunks",
			models.SourcePortfolio:    "portfolio_chunks",
			models.SourceMacro:        "macro_chunks",
			models.SourceForecast:     "forecast_chunks",
		},
		Indexes: map[models.SourceType]string{
			models.SourceSECNarrative: "sec_filings",
			models.SourceUploaded:     "uploaded_docs",
			models.SourcePortfolio:    "portfolio_docs",
			models.SourceMacro:        "macro_series",
			models.SourceForecast:     "forecast_notes",
		},
	}
}
