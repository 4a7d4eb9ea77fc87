// internal/models/request.go
package models

import "time"

// ParsedQuery is the orchestrator's input: the analyst question plus the
// tickers and optional intent hint an upstream parser already extracted.
type ParsedQuery struct {
	Query          string   `json:"query"`
	Tickers        []string `json:"tickers,omitempty"`
	IntentHint     string   `json:"intentHint,omitempty"`
	ConversationID string   `json:"conversationId,omitempty"`
}

// RetrievalResponse is the contract handed to the downstream answer
// generator: ranked fused evidence plus the grounded decision about whether
// answering is warranted at all.
type RetrievalResponse struct {
	RequestID         string           `json:"requestId"`
	Query             string           `json:"query"`
	Intent            QueryIntent      `json:"intent"`
	Complexity        QueryComplexity  `json:"complexity"`
	Documents         []FusedDocument  `json:"documents"`
	Metrics           []MetricRecord   `json:"metrics,omitempty"`
	Facts             []FactRecord     `json:"facts,omitempty"`
	OverallConfidence float64          `json:"overallConfidence"`
	Decision          GroundedDecision `json:"decision"`
	Truncated         bool             `json:"truncated"`
	Degraded          []string         `json:"degraded,omitempty"`
	ElapsedMs         int64            `json:"elapsedMs"`
	CachedAt          *time.Time       `json:"cachedAt,omitempty"`
}
