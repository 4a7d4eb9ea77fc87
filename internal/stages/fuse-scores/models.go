// internal/stages/fuse-scores/models.go
package fusescores

import "finqa-retrieval/internal/models"

type Input struct {
	Result *models.RetrievalResult `json:"result"`
	// Policy scales the effective source weights; nil leaves the base table
	// untouched.
	Policy *models.RetrievalPolicy `json:"policy,omitempty"`
}

type Output struct {
	Fused             []models.FusedDocument `json:"fused"`
	OverallConfidence float64                `json:"overallConfidence"`
}
