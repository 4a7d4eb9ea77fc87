// internal/models/result.go
package models

// RetrievalResult aggregates everything the pipeline has gathered for one
// query. It accumulates per-source documents during the step phase; fusion
// fills Fused and OverallConfidence; guardrails filter and truncate. No
// other stage mutates it.
type RetrievalResult struct {
	DocsBySource      map[SourceType][]RetrievedDocument `json:"docsBySource"`
	Fused             []FusedDocument                    `json:"fused,omitempty"`
	Metrics           []MetricRecord                     `json:"metrics,omitempty"`
	Facts             []FactRecord                       `json:"facts,omitempty"`
	OverallConfidence float64                            `json:"overallConfidence"`
	StepsRun          int                                `json:"stepsRun"`
	Degraded          []string                           `json:"degraded,omitempty"`
}

// NewRetrievalResult returns an empty result ready to accumulate documents.
func NewRetrievalResult() *RetrievalResult {
	return &RetrievalResult{
		DocsBySource: make(map[SourceType][]RetrievedDocument),
	}
}

// AddDocuments appends documents under their source type.
func (r *RetrievalResult) AddDocuments(source SourceType, docs []RetrievedDocument) {
	if len(docs) == 0 {
		return
	}
	r.DocsBySource[source] = append(r.DocsBySource[source], docs...)
}

// MarkDegraded records a stage that degraded to empty output.
func (r *RetrievalResult) MarkDegraded(stage string) {
	r.Degraded = append(r.Degraded, stage)
}

// TotalDocuments counts documents across all sources.
func (r *RetrievalResult) TotalDocuments() int {
	total := 0
	for _, docs := range r.DocsBySource {
		total += len(docs)
	}
	return total
}
