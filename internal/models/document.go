// internal/models/document.go
package models

import (
	"fmt"
	"sort"
	"strings"
)

// SourceType tags every retrieved document with the corpus it came from.
// The set is closed; anything else is rejected at the adapter boundary.
type SourceType string

const (
	SourceSQL          SourceType = "sql"
	SourceSECNarrative SourceType = "sec_narrative"
	SourcePortfolio    SourceType = "portfolio"
	SourceUploaded     SourceType = "uploaded"
	SourceMacro        SourceType = "macro"
	SourceForecast     SourceType = "forecast"
)

// KnownSourceTypes lists every valid source tag in fusion weight order.
func KnownSourceTypes() []SourceType {
	return []SourceType{
		SourceSQL,
		SourceSECNarrative,
		SourcePortfolio,
		SourceUploaded,
		SourceMacro,
		SourceForecast,
	}
}

// ParseSourceType validates a raw source tag.
func ParseSourceType(raw string) (SourceType, error) {
	st := SourceType(raw)
	switch st {
	case SourceSQL, SourceSECNarrative, SourcePortfolio, SourceUploaded, SourceMacro, SourceForecast:
		return st, nil
	}
	return "", fmt.Errorf("unknown source type: %q", raw)
}

// SearchHit is the raw unit returned by dense and sparse searchers before
// it is tagged with a source type.
type SearchHit struct {
	Text     string                 `json:"text"`
	Score    float64                `json:"score"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// RetrievedDocument is a snippet returned by one retrieval branch. Values are
// treated as immutable once returned; stages build new copies instead of
// mutating in place.
type RetrievedDocument struct {
	Text       string                 `json:"text"`
	SourceType SourceType             `json:"sourceType"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	RawScore   *float64               `json:"rawScore,omitempty"`
}

// Key returns the identity used for cross-branch merging: the text plus the
// canonicalized metadata. Two hits for the same underlying snippet collapse
// to one key regardless of which branch produced them.
func (d RetrievedDocument) Key() string {
	if len(d.Metadata) == 0 {
		return d.Text
	}
	keys := make([]string, 0, len(d.Metadata))
	for k := range d.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(d.Text)
	for _, k := range keys {
		fmt.Fprintf(&b, "|%s=%v", k, d.Metadata[k])
	}
	return b.String()
}

// RawScoreValue returns the raw score or ok=false when the branch reported none.
func (d RetrievedDocument) RawScoreValue() (float64, bool) {
	if d.RawScore == nil {
		return 0, false
	}
	return *d.RawScore, true
}

// Float64Ptr is a small helper for building documents with raw scores.
func Float64Ptr(v float64) *float64 {
	return &v
}

// ConfidenceLevel buckets a fused score for downstream consumers.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// ConfidenceForScore maps a fused score onto its level: high at 0.7 and
// above, medium at 0.4 and above, low otherwise.
func ConfidenceForScore(fused float64) ConfidenceLevel {
	switch {
	case fused >= 0.7:
		return ConfidenceHigh
	case fused >= 0.4:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// FusedDocument wraps a retrieved document with its fusion outcome.
// FusedScore is always NormalizedScore times SourceWeight and stays in [0,1].
type FusedDocument struct {
	Document        RetrievedDocument `json:"document"`
	SourceWeight    float64           `json:"sourceWeight"`
	NormalizedScore float64           `json:"normalizedScore"`
	FusedScore      float64           `json:"fusedScore"`
	Confidence      ConfidenceLevel   `json:"confidence"`
}
