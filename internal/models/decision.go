// internal/models/decision.go
package models

// GroundedDecision is the final gate verdict: whether the evidence supports
// answering at all. Contradictions and MissingInfo are advisory; only
// confidence and document count flip ShouldAnswer.
type GroundedDecision struct {
	ShouldAnswer      bool     `json:"shouldAnswer"`
	Confidence        float64  `json:"confidence"`
	Reason            string   `json:"reason"`
	Contradictions    []string `json:"contradictions,omitempty"`
	MissingInfo       []string `json:"missingInfo,omitempty"`
	SuggestedResponse string   `json:"suggestedResponse,omitempty"`
}
