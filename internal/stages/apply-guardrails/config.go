// internal/stages/apply-guardrails/config.go
package applyguardrails

import "time"

type Config struct {
	// MinRelevanceScore drops fused documents scoring below it.
	MinRelevanceScore float64

	// MaxDocumentsPerSource caps each source's share of the final list.
	MaxDocumentsPerSource int

	// MaxContextChars budgets the downstream synthesis context.
	MaxContextChars int

	// RequireMinDocs triggers a warning when the surviving total falls
	// below it. Refusal itself is the decision stage's call.
	RequireMinDocs int

	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		MinRelevanceScore:     0.30,
		MaxDocumentsPerSource: 10,
		MaxContextChars:       16000,
		RequireMinDocs:        1,
		Timeout:               5 * time.Second,
	}
}
