// internal/stages/select-policy/models.go
package selectpolicy

import "finqa-retrieval/internal/models"

type Input struct {
	Query string `json:"query"`

	// IntentHint optionally pins the intent upstream (for example from a
	// conversational planner). Unknown hints are ignored with a warning.
	IntentHint string `json:"intentHint,omitempty"`
}

type Output struct {
	Intent         models.QueryIntent     `json:"intent"`
	Policy         models.RetrievalPolicy `json:"policy"`
	RewrittenQuery string                 `json:"rewrittenQuery"`
}
