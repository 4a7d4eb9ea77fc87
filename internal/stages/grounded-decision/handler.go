// internal/stages/grounded-decision/handler.go
package groundeddecision

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"finqa-retrieval/internal/common/logger"
	"finqa-retrieval/internal/common/metrics"
	"finqa-retrieval/internal/models"
)

const StageName = "grounded-decision"

var ErrNilInput = errors.New("nil input")

const refusalResponse = "I don't have enough reliable information to answer this. " +
	"Try naming specific companies or narrowing the time period."

// financialTermPattern flags queries that clearly ask about financial
// measures; such a query with zero resolved tickers is missing information.
var financialTermPattern = regexp.MustCompile(`(?i)\b(revenue|revenues|sales|eps|earnings|net\s+income|margin|margins|ebitda|cash\s+flow|fcf|capex|opex|profit|dividend|dividends|debt)\b`)

// negationMarkers is checked after tokenize folds "n't" into "not".
var negationMarkers = map[string]bool{
	"not": true, "no": true, "never": true, "neither": true,
	"nor": true, "without": true, "cannot": true,
}

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

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
	if input == nil || input.Result == nil {
		return nil, ErrNilInput
	}
	return h.execute(ctx, input)
}

func (h *Handler) execute(_ context.Context, input *Input) (*Output, error) {
	result := input.Result
	decision := models.GroundedDecision{Confidence: result.OverallConfidence}

	totalDocs := len(result.Fused)
	switch {
	case result.OverallConfidence < h.config.MinConfidence:
		decision.ShouldAnswer = false
		decision.Reason = fmt.Sprintf("overall confidence %.2f below floor %.2f",
			result.OverallConfidence, h.config.MinConfidence)
		decision.SuggestedResponse = refusalResponse
		metrics.RefusalsTotal.WithLabelValues("low_confidence").Inc()

	case totalDocs < h.config.RequireMinDocs:
		decision.ShouldAnswer = false
		decision.Reason = fmt.Sprintf("%d supporting documents, need at least %d",
			totalDocs, h.config.RequireMinDocs)
		decision.SuggestedResponse = refusalResponse
		metrics.RefusalsTotal.WithLabelValues("insufficient_docs").Inc()

	default:
		decision.ShouldAnswer = true
		decision.Reason = "evidence sufficient"
		decision.Contradictions = h.findContradictions(result.Fused)
		decision.MissingInfo = h.findMissingInfo(input)
	}

	h.logger.Info("grounded decision made", map[string]interface{}{
		"intent":         string(input.Intent),
		"shouldAnswer":   decision.ShouldAnswer,
		"confidence":     decision.Confidence,
		"reason":         decision.Reason,
		"contradictions": len(decision.Contradictions),
		"missingInfo":    decision.MissingInfo,
	})

	return &Output{Decision: decision}, nil
}

// findContradictions scans document pairs for high token overlap where
// exactly one side carries negation markers. Purely advisory.
func (h *Handler) findContradictions(fused []models.FusedDocument) []string {
	limit := len(fused)
	if h.config.MaxComparedDocs > 0 && limit > h.config.MaxComparedDocs {
		limit = h.config.MaxComparedDocs
	}

	type tokenized struct {
		tokens  map[string]bool
		negated bool
	}
	docs := make([]tokenized, limit)
	for i := 0; i < limit; i++ {
		tokens := tokenize(fused[i].Document.Text)
		docs[i] = tokenized{tokens: tokens, negated: hasNegation(tokens)}
	}

	var contradictions []string
	for i := 0; i < limit; i++ {
		for j := i + 1; j < limit; j++ {
			if docs[i].negated == docs[j].negated {
				continue
			}
			overlap := tokenOverlap(docs[i].tokens, docs[j].tokens)
			if overlap < h.config.ContradictionOverlap {
				continue
			}
			contradictions = append(contradictions, fmt.Sprintf(
				"documents %d (%s) and %d (%s) overlap %.0f%% but disagree on negation",
				i+1, fused[i].Document.SourceType,
				j+1, fused[j].Document.SourceType,
				overlap*100))
		}
	}
	return contradictions
}

func (h *Handler) findMissingInfo(input *Input) []string {
	var missing []string
	result := input.Result

	if len(input.Tickers) > 0 && len(result.Metrics) == 0 {
		missing = append(missing, fmt.Sprintf(
			"no metric records retrieved for tickers %s", strings.Join(input.Tickers, ", ")))
	}
	if len(input.Tickers) == 0 && financialTermPattern.MatchString(input.Query) {
		missing = append(missing, "query names financial measures but no tickers were resolved")
	}

	if input.Policy != nil && len(result.Metrics) > 1 {
		if input.Policy.RequireSamePeriod {
			periods := make(map[string]bool)
			for _, rec := range result.Metrics {
				if rec.Period != "" {
					periods[rec.Period] = true
				}
			}
			if len(periods) > 1 {
				missing = append(missing, "metric records span different reporting periods")
			}
		}
		if input.Policy.RequireSameUnits {
			unitsByMetric := make(map[string]map[string]bool)
			for _, rec := range result.Metrics {
				if rec.Unit == "" {
					continue
				}
				if unitsByMetric[rec.Metric] == nil {
					unitsByMetric[rec.Metric] = make(map[string]bool)
				}
				unitsByMetric[rec.Metric][rec.Unit] = true
			}
			for metric, units := range unitsByMetric {
				if len(units) > 1 {
					missing = append(missing, fmt.Sprintf("metric %q reported in mixed units", metric))
					break
				}
			}
		}
	}

	return missing
}

func tokenize(text string) map[string]bool {
	folded := strings.ReplaceAll(strings.ToLower(text), "n't", " not")
	tokens := make(map[string]bool)
	for _, tok := range tokenPattern.FindAllString(folded, -1) {
		tokens[tok] = true
	}
	return tokens
}

func hasNegation(tokens map[string]bool) bool {
	for marker := range negationMarkers {
		if tokens[marker] {
			return true
		}
	}
	return false
}

// tokenOverlap is the shared-token share relative to the smaller set.
func tokenOverlap(a, b map[string]bool) float64 {
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	if len(small) == 0 {
		return 0
	}
	shared := 0
	for tok := range small {
		if large[tok] {
			shared++
		}
	}
	return float64(shared) / float64(len(small))
}
