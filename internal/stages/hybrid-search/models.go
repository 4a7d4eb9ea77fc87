// internal/stages/hybrid-search/models.go
package hybridsearch

import "finqa-retrieval/internal/models"

type Input struct {
	Query      string            `json:"query"`
	SourceType models.SourceType `json:"sourceType"`

	// Collection and Index name the dense collection and sparse index to
	// search. The orchestrator derives both from the source type.
	Collection string `json:"collection"`
	Index      string `json:"index"`

	// Limit overrides the configured kFinal when positive.
	Limit int `json:"limit,omitempty"`

	// Filter is passed verbatim to both collaborators (section bias,
	// ticker scoping). Interpretation is the collaborator's concern.
	Filter map[string]interface{} `json:"filter,omitempty"`
}

type Output struct {
	// Documents carry the combined score in RawScore, bounded to [0,1].
	Documents []models.RetrievedDocument `json:"documents"`

	// Degraded lists branches that failed, as "stage:source:branch" tags.
	Degraded []string `json:"degraded,omitempty"`
}
