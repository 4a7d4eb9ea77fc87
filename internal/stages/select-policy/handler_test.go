// internal/stages/select-policy/handler_test.go
package selectpolicy

import (
	"context"
	"testing"

	"finqa-retrieval/internal/common/logger"
	"finqa-retrieval/internal/models"
	"finqa-retrieval/pkg/policyregistry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func newTestHandler(t *testing.T) *Handler {
	registry, err := policyregistry.New("")
	require.NoError(t, err)
	return NewHandler(LoadConfig(), registry, logger.NewTestLogger(t))
}

// ==========================
// Intent Detection Tests
// ==========================

func TestDetectIntent_PriorityOrder(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected models.QueryIntent
	}{
		{
			name:     "forecast keywords",
			query:    "what is the revenue outlook for AAPL",
			expected: models.IntentForecast,
		},
		{
			name:     "forecast beats risk",
			query:    "what risks could derail next year guidance",
			expected: models.IntentForecast,
		},
		{
			name:     "risk keywords",
			query:    "main risk factors for MSFT",
			expected: models.IntentRisk,
		},
		{
			name:     "risk beats compare",
			query:    "compare supply chain exposure across vendors",
			expected: models.IntentRisk,
		},
		{
			name:     "compare keywords",
			query:    "AAPL versus MSFT gross margin",
			expected: models.IntentCompare,
		},
		{
			name:     "compare beats why",
			query:    "explain the difference between the two segments",
			expected: models.IntentCompare,
		},
		{
			name:     "why keywords",
			query:    "why did operating costs increase",
			expected: models.IntentWhy,
		},
		{
			name:     "what drove phrasing",
			query:    "what drove the decline in services",
			expected: models.IntentWhy,
		},
		{
			name:     "metric regex",
			query:    "AAPL net income for FY2023",
			expected: models.IntentMetricLookup,
		},
		{
			name:     "metric abbreviation",
			query:    "TSLA fcf in 2022",
			expected: models.IntentMetricLookup,
		},
		{
			name:     "general fallback",
			query:    "tell me about the company",
			expected: models.IntentGeneral,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectIntent(tt.query))
		})
	}
}

func TestDetectIntent_WordBoundaries(t *testing.T) {
	// Substrings inside larger words must not trip a keyword group:
	// "goodwill" is not "will" and "comparable" is not "compare".
	assert.Equal(t, models.IntentGeneral, DetectIntent("goodwill impairment details"))
	assert.Equal(t, models.IntentGeneral, DetectIntent("comparable store openings"))
}

// ==========================
// Handler Tests
// ==========================

func TestHandler_Execute_SelectsPolicyForIntent(t *testing.T) {
	handler := newTestHandler(t)

	output, err := handler.Execute(context.Background(), &Input{
		Query: "why did gross margin contract",
	})
	require.NoError(t, err)

	assert.Equal(t, models.IntentWhy, output.Intent)
	assert.Equal(t, models.IntentWhy, output.Policy.Intent)
	assert.True(t, output.Policy.UseMultiHop)
	assert.True(t, output.Policy.UseReranking)
}

func TestHandler_Execute_HintOverridesKeywords(t *testing.T) {
	handler := newTestHandler(t)

	// The text reads as a metric lookup, but the caller pinned risk.
	output, err := handler.Execute(context.Background(), &Input{
		Query:      "AAPL revenue for 2023",
		IntentHint: "risk",
	})
	require.NoError(t, err)
	assert.Equal(t, models.IntentRisk, output.Intent)
}

func TestHandler_Execute_UnknownHintFallsBackToKeywords(t *testing.T) {
	handler := newTestHandler(t)

	output, err := handler.Execute(context.Background(), &Input{
		Query:      "AAPL revenue for 2023",
		IntentHint: "sentiment",
	})
	require.NoError(t, err)
	assert.Equal(t, models.IntentMetricLookup, output.Intent)
}

func TestHandler_Execute_InvalidInput(t *testing.T) {
	handler := newTestHandler(t)

	output, err := handler.Execute(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilInput)
	assert.Nil(t, output)

	output, err = handler.Execute(context.Background(), &Input{Query: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuery)
	assert.Nil(t, output)
}

// ==========================
// Rewrite Tests
// ==========================

func TestRewrite_AppendsFixedSuffix(t *testing.T) {
	rewritten := Rewrite("compare AAPL and MSFT margins", models.IntentCompare)
	assert.Equal(t, "compare AAPL and MSFT margins. ensure same reporting period and units", rewritten)

	rewritten = Rewrite("AAPL revenue 2023", models.IntentMetricLookup)
	assert.Equal(t, "AAPL revenue 2023. return exact reported figures with units and fiscal period", rewritten)
}

func TestRewrite_GeneralPassesThrough(t *testing.T) {
	assert.Equal(t, "tell me about AAPL", Rewrite("tell me about AAPL", models.IntentGeneral))
}

func TestHandler_Execute_RewriteFlowsIntoOutput(t *testing.T) {
	handler := newTestHandler(t)

	output, err := handler.Execute(context.Background(), &Input{
		Query: "AAPL versus MSFT operating margin",
	})
	require.NoError(t, err)
	assert.Equal(t, models.IntentCompare, output.Intent)
	assert.Equal(t,
		"AAPL versus MSFT operating margin. ensure same reporting period and units",
		output.RewrittenQuery)
}
