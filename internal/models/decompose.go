// internal/models/decompose.go
package models

import "fmt"

// RetrievalType routes a decomposed step to exactly one step handler.
// The set is closed; the orchestrator switches exhaustively over it and
// rejects anything else instead of falling through silently.
type RetrievalType string

const (
	RetrievalMetrics   RetrievalType = "metrics"
	RetrievalNarrative RetrievalType = "narrative"
	RetrievalMacro     RetrievalType = "macro"
	RetrievalPortfolio RetrievalType = "portfolio"
	RetrievalForecast  RetrievalType = "forecast"
)

// KnownRetrievalTypes lists every step type in decomposition order.
func KnownRetrievalTypes() []RetrievalType {
	return []RetrievalType{
		RetrievalMetrics,
		RetrievalNarrative,
		RetrievalMacro,
		RetrievalPortfolio,
		RetrievalForecast,
	}
}

// ParseRetrievalType validates a raw step type tag.
func ParseRetrievalType(raw string) (RetrievalType, error) {
	rt := RetrievalType(raw)
	switch rt {
	case RetrievalMetrics, RetrievalNarrative, RetrievalMacro, RetrievalPortfolio, RetrievalForecast:
		return rt, nil
	}
	return "", fmt.Errorf("unknown retrieval type: %q", raw)
}

// QueryComplexity grades how many evidence categories a query spans.
type QueryComplexity string

const (
	ComplexitySimple   QueryComplexity = "simple"
	ComplexityModerate QueryComplexity = "moderate"
	ComplexityComplex  QueryComplexity = "complex"
)

// QueryStep is one retrieval task in a decomposed query. DependsOn names the
// step numbers that must complete before this step runs, letting independent
// steps execute in the same wave.
type QueryStep struct {
	StepNumber    int           `json:"stepNumber"`
	SubQuery      string        `json:"subQuery"`
	RetrievalType RetrievalType `json:"retrievalType"`
	Tickers       []string      `json:"tickers,omitempty"`
	DependsOn     []int         `json:"dependsOn,omitempty"`
}

// DecomposedQuery is the full execution plan for one analyst question.
type DecomposedQuery struct {
	Original   string          `json:"original"`
	Complexity QueryComplexity `json:"complexity"`
	Steps      []QueryStep     `json:"steps"`
}
