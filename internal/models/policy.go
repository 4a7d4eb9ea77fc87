// internal/models/policy.go
package models

import "fmt"

// QueryIntent classifies what the analyst is asking for.
type QueryIntent string

const (
	IntentMetricLookup QueryIntent = "metric_lookup"
	IntentWhy          QueryIntent = "why"
	IntentCompare      QueryIntent = "compare"
	IntentRisk         QueryIntent = "risk"
	IntentForecast     QueryIntent = "forecast"
	IntentGeneral      QueryIntent = "general"
)

// KnownIntents lists every intent the policy table must cover.
func KnownIntents() []QueryIntent {
	return []QueryIntent{
		IntentMetricLookup,
		IntentWhy,
		IntentCompare,
		IntentRisk,
		IntentForecast,
		IntentGeneral,
	}
}

// ParseQueryIntent validates a raw intent tag.
func ParseQueryIntent(raw string) (QueryIntent, error) {
	qi := QueryIntent(raw)
	switch qi {
	case IntentMetricLookup, IntentWhy, IntentCompare, IntentRisk, IntentForecast, IntentGeneral:
		return qi, nil
	}
	return "", fmt.Errorf("unknown query intent: %q", raw)
}

// RetrievalPolicy bundles the retrieval knobs selected for one intent.
// Policies are immutable after startup; stages read, never write.
type RetrievalPolicy struct {
	Intent            QueryIntent        `json:"intent"`
	UseMultiHop       bool               `json:"useMultiHop"`
	KDocs             int                `json:"kDocs"`
	NarrativeWeight   float64            `json:"narrativeWeight"`
	MetricWeight      float64            `json:"metricWeight"`
	UseReranking      bool               `json:"useReranking"`
	SourceCaps        map[SourceType]int `json:"sourceCaps,omitempty"`
	BiasSections      []string           `json:"biasSections,omitempty"`
	RequireSamePeriod bool               `json:"requireSamePeriod"`
	RequireSameUnits  bool               `json:"requireSameUnits"`
}

// SourceCap returns the per-source document cap, or 0 when uncapped.
func (p RetrievalPolicy) SourceCap(source SourceType) int {
	if p.SourceCaps == nil {
		return 0
	}
	return p.SourceCaps[source]
}
