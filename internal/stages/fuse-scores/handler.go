// internal/stages/fuse-scores/handler.go
package fusescores

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"finqa-retrieval/internal/common/logger"
	"finqa-retrieval/internal/models"
)

const (
	StageName = "fuse-scores"

	// Documents that arrive without a raw score sit at the midpoint instead
	// of distorting the scale detection for the rest of the list.
	missingScoreNormalized = 0.5
)

var (
	ErrNilInput = errors.New("input cannot be nil")
)

// baseSourceWeights ranks corpora by trustworthiness. Deterministic SQL
// figures outrank audited filings, which outrank analyst uploads, macro
// commentary and model-generated forecasts.
var baseSourceWeights = map[models.SourceType]float64{
	models.SourceSQL:          1.0,
	models.SourceSECNarrative: 0.9,
	models.SourcePortfolio:    0.8,
	models.SourceUploaded:     0.7,
	models.SourceMacro:        0.6,
	models.SourceForecast:     0.5,
}

type Handler struct {
	config *Config
	logger logger.Logger
}

func NewHandler(config *Config, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		logger: log.WithFields(map[string]interface{}{"stage": StageName}),
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

func (h *Handler) execute(_ context.Context, input *Input) (*Output, error) {
	if input == nil || input.Result == nil {
		return nil, ErrNilInput
	}

	start := time.Now()
	result := input.Result

	var fused []models.FusedDocument

	// Iterate the closed source set in its declared order so ties later
	// break on a stable retrieval order, not map iteration.
	for _, source := range models.KnownSourceTypes() {
		docs := result.DocsBySource[source]
		if len(docs) == 0 {
			continue
		}
		fused = append(fused, h.fuseSource(docs, source, input.Policy)...)
	}

	// Stable descending sort: equal fused scores keep their original
	// retrieval order.
	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].FusedScore > fused[j].FusedScore
	})

	overall := h.overallConfidence(fused)

	result.Fused = fused
	result.OverallConfidence = overall

	h.logger.Info("fusion completed", map[string]interface{}{
		"documentCount":     len(fused),
		"overallConfidence": overall,
		"durationMs":        time.Since(start).Milliseconds(),
	})

	return &Output{Fused: fused, OverallConfidence: overall}, nil
}

// fuseSource normalizes one source's scores and applies its effective weight.
// Every fused score is normalized x weight, so it stays within [0,1].
func (h *Handler) fuseSource(docs []models.RetrievedDocument, source models.SourceType, policy *models.RetrievalPolicy) []models.FusedDocument {
	weight := effectiveWeight(source, policy)
	normalized := normalizeScores(docs)

	out := make([]models.FusedDocument, len(docs))
	for i, doc := range docs {
		fusedScore := normalized[i] * weight
		out[i] = models.FusedDocument{
			Document:        doc,
			SourceWeight:    weight,
			NormalizedScore: normalized[i],
			FusedScore:      fusedScore,
			Confidence:      models.ConfidenceForScore(fusedScore),
		}
	}
	return out
}

// overallConfidence is the mean fused score of the strongest documents:
// top min(TopConfidenceDocs, N) of the sorted list, 0 for an empty set.
func (h *Handler) overallConfidence(sorted []models.FusedDocument) float64 {
	if len(sorted) == 0 {
		return 0
	}

	pool := h.config.TopConfidenceDocs
	if pool > len(sorted) {
		pool = len(sorted)
	}

	sum := 0.0
	for _, fd := range sorted[:pool] {
		sum += fd.FusedScore
	}
	return sum / float64(pool)
}

// normalizeScores maps one source's raw scores into [0,1]. Lists whose
// maximum exceeds 1.0 are assumed to be distances and pass through
// 1/(1+score); anything else min-max scales, with a constant list mapping
// to 1.0. Scale detection by magnitude alone can misread a uniformly
// low-distance list as similarities; collaborators that can declare their
// score semantics should.
func normalizeScores(docs []models.RetrievedDocument) []float64 {
	out := make([]float64, len(docs))
	if len(docs) == 0 {
		return out
	}

	maxRaw := 0.0
	minRaw := 0.0
	first := true
	for _, doc := range docs {
		v, ok := doc.RawScoreValue()
		if !ok {
			continue
		}
		if first {
			maxRaw, minRaw = v, v
			first = false
			continue
		}
		if v > maxRaw {
			maxRaw = v
		}
		if v < minRaw {
			minRaw = v
		}
	}

	// No document carried a score at all.
	if first {
		for i := range out {
			out[i] = missingScoreNormalized
		}
		return out
	}

	distanceMode := maxRaw > 1.0

	for i, doc := range docs {
		v, ok := doc.RawScoreValue()
		if !ok {
			out[i] = missingScoreNormalized
			continue
		}
		if distanceMode {
			out[i] = 1.0 / (1.0 + math.Max(0, v))
			continue
		}
		if maxRaw == minRaw {
			out[i] = 1.0
			continue
		}
		out[i] = (v - minRaw) / (maxRaw - minRaw)
	}
	return out
}

// effectiveWeight scales the base table by the policy's category weights:
// the metric weight covers the SQL corpus, the narrative weight covers
// filing text and analyst uploads. Weights multiply, so the result never
// leaves [0,1].
func effectiveWeight(source models.SourceType, policy *models.RetrievalPolicy) float64 {
	weight := baseSourceWeights[source]
	if policy == nil {
		return weight
	}

	switch source {
	case models.SourceSQL:
		weight *= clamp01(policy.MetricWeight)
	case models.SourceSECNarrative, models.SourceUploaded:
		weight *= clamp01(policy.NarrativeWeight)
	}
	return weight
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
