// internal/stages/grounded-decision/config.go
package groundeddecision

import "time"

type Config struct {
	// MinConfidence is the refusal floor for overall confidence.
	MinConfidence float64

	// RequireMinDocs is the minimum surviving document count.
	RequireMinDocs int

	// ContradictionOverlap is the token-overlap share above which two
	// excerpts are compared for one-sided negation.
	ContradictionOverlap float64

	// MaxComparedDocs bounds the pairwise contradiction scan.
	MaxComparedDocs int

	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		MinConfidence:        0.25,
		RequireMinDocs:       1,
		ContradictionOverlap: 0.30,
		MaxComparedDocs:      20,
		Timeout:              5 * time.Second,
	}
}
