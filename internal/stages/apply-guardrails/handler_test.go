// internal/stages/apply-guardrails/handler_test.go
package applyguardrails

import (
	"context"
	"strings"
	"testing"

	"finqa-retrieval/internal/common/logger"
	"finqa-retrieval/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func newTestHandler(t *testing.T) *Handler {
	return NewHandler(LoadConfig(), NewRecorder(16), logger.NewTestLogger(t))
}

func fused(text string, source models.SourceType, score float64) models.FusedDocument {
	return models.FusedDocument{
		Document: models.RetrievedDocument{
			Text:       text,
			SourceType: source,
		},
		FusedScore: score,
		Confidence: models.ConfidenceForScore(score),
	}
}

func resultWithFused(docs ...models.FusedDocument) *models.RetrievalResult {
	result := models.NewRetrievalResult()
	result.Fused = docs
	return result
}

// ==========================
// Guardrail Gate Tests
// ==========================

func TestHandler_Execute_DropsBelowRelevanceFloor(t *testing.T) {
	handler := newTestHandler(t)

	result := resultWithFused(
		fused("strong", models.SourceSQL, 0.9),
		fused("borderline", models.SourceSECNarrative, 0.30),
		fused("weak", models.SourceSECNarrative, 0.29),
	)

	output, err := handler.Execute(context.Background(), &Input{Result: result, Intent: models.IntentGeneral})
	require.NoError(t, err)

	require.Len(t, output.Fused, 2)
	assert.Equal(t, "strong", output.Fused[0].Document.Text)
	assert.Equal(t, "borderline", output.Fused[1].Document.Text)
	assert.Equal(t, 1, output.DroppedLowScore)

	// The gate writes back into the shared result.
	assert.Equal(t, output.Fused, result.Fused)
}

func TestHandler_Execute_CapsPerSource(t *testing.T) {
	cfg := LoadConfig()
	cfg.MaxDocumentsPerSource = 2
	handler := NewHandler(cfg, NewRecorder(16), logger.NewTestLogger(t))

	result := resultWithFused(
		fused("n1", models.SourceSECNarrative, 0.9),
		fused("n2", models.SourceSECNarrative, 0.8),
		fused("n3", models.SourceSECNarrative, 0.7),
		fused("n4", models.SourceSECNarrative, 0.6),
		fused("s1", models.SourceSQL, 0.5),
	)

	output, err := handler.Execute(context.Background(), &Input{Result: result, Intent: models.IntentWhy})
	require.NoError(t, err)

	require.Len(t, output.Fused, 3)
	assert.Equal(t, "n1", output.Fused[0].Document.Text)
	assert.Equal(t, "n2", output.Fused[1].Document.Text)
	assert.Equal(t, "s1", output.Fused[2].Document.Text)
	assert.Equal(t, []string{"sec_narrative"}, output.CappedSources)
}

func TestHandler_Execute_WarnsBelowMinDocs(t *testing.T) {
	cfg := LoadConfig()
	cfg.RequireMinDocs = 2
	handler := NewHandler(cfg, NewRecorder(16), logger.NewTestLogger(t))

	result := resultWithFused(fused("only", models.SourceSQL, 0.9))

	output, err := handler.Execute(context.Background(), &Input{Result: result, Intent: models.IntentGeneral})
	require.NoError(t, err)
	assert.True(t, output.BelowMinDocs)
	assert.Len(t, output.Fused, 1)
}

func TestHandler_Execute_NilInput(t *testing.T) {
	handler := newTestHandler(t)

	_, err := handler.Execute(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilInput)

	_, err = handler.Execute(context.Background(), &Input{})
	assert.ErrorIs(t, err, ErrNilInput)
}

// ==========================
// Context Truncation Tests
// ==========================

func TestHandler_TruncateContext_GreedyStopAtFirstOverflow(t *testing.T) {
	handler := newTestHandler(t)

	docs := []models.FusedDocument{
		fused(strings.Repeat("a", 6000), models.SourceSQL, 0.9),
		fused(strings.Repeat("b", 5000), models.SourceSECNarrative, 0.8),
		fused(strings.Repeat("c", 5000), models.SourceSECNarrative, 0.7),
		fused(strings.Repeat("d", 5000), models.SourceMacro, 0.6),
	}

	kept, truncated := handler.TruncateContext(docs, 15000)
	assert.True(t, truncated)
	require.Len(t, kept, 2)
	assert.InDelta(t, 0.9, kept[0].FusedScore, 1e-9)
	assert.InDelta(t, 0.8, kept[1].FusedScore, 1e-9)
}

func TestHandler_TruncateContext_FitsWithoutTruncation(t *testing.T) {
	handler := newTestHandler(t)

	docs := []models.FusedDocument{
		fused("short", models.SourceSQL, 0.9),
		fused("texts", models.SourceMacro, 0.5),
	}

	kept, truncated := handler.TruncateContext(docs, 100)
	assert.False(t, truncated)
	assert.Len(t, kept, 2)
}

func TestHandler_TruncateContext_SortsByScoreFirst(t *testing.T) {
	handler := newTestHandler(t)

	// Input arrives unsorted; the budget must go to the best documents.
	docs := []models.FusedDocument{
		fused(strings.Repeat("l", 90), models.SourceMacro, 0.2),
		fused(strings.Repeat("h", 90), models.SourceSQL, 0.9),
	}

	kept, truncated := handler.TruncateContext(docs, 100)
	assert.True(t, truncated)
	require.Len(t, kept, 1)
	assert.InDelta(t, 0.9, kept[0].FusedScore, 1e-9)
}

func TestHandler_TruncateContext_ZeroBudgetUsesConfig(t *testing.T) {
	cfg := LoadConfig()
	cfg.MaxContextChars = 10
	handler := NewHandler(cfg, NewRecorder(16), logger.NewTestLogger(t))

	docs := []models.FusedDocument{
		fused("0123456789ab", models.SourceSQL, 0.9),
	}

	kept, truncated := handler.TruncateContext(docs, 0)
	assert.True(t, truncated)
	assert.Empty(t, kept)
}
