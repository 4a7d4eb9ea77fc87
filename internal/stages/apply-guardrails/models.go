// internal/stages/apply-guardrails/models.go
package applyguardrails

import "finqa-retrieval/internal/models"

type Input struct {
	Result *models.RetrievalResult `json:"result"`
	Intent models.QueryIntent      `json:"intent"`
}

type Output struct {
	Fused []models.FusedDocument `json:"fused"`

	// DroppedLowScore counts documents removed for scoring below the
	// relevance floor; CappedSources lists sources that hit their cap.
	DroppedLowScore int      `json:"droppedLowScore"`
	CappedSources   []string `json:"cappedSources,omitempty"`

	// BelowMinDocs flags that the surviving total is under the warning
	// threshold. The decision stage owns the actual refusal.
	BelowMinDocs bool `json:"belowMinDocs"`
}
