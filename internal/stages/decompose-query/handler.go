// internal/stages/decompose-query/handler.go
package decomposequery

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"finqa-retrieval/internal/common/logger"
	"finqa-retrieval/internal/models"
)

const StageName = "decompose-query"

var (
	ErrNilInput   = errors.New("nil input")
	ErrEmptyQuery = errors.New("empty query")
)

// Category keyword groups. The first four add a retrieval step when they
// match; compare only counts toward complexity.
var (
	narrativePattern = regexp.MustCompile(`(?i)\b(why|how\s+did|how\s+has|explain|what\s+drove|what\s+caused|reason|reasons|driver|drivers|because)\b`)
	comparePattern   = regexp.MustCompile(`(?i)\b(compare|compared|comparison|versus|vs|relative\s+to|difference\s+between|against)\b`)
	macroPattern     = regexp.MustCompile(`(?i)\b(inflation|interest\s+rates?|rate\s+hikes?|gdp|macro|macroeconomic|economy|economic|fed|federal\s+reserve|unemployment|recession|tariffs?|currency|fx)\b`)
	portfolioPattern = regexp.MustCompile(`(?i)\b(portfolio|holdings?|positions?|allocation|allocations|weighting|weightings|my\s+stocks)\b`)
	forecastPattern  = regexp.MustCompile(`(?i)\b(forecast|forecasts|predict|predicts|prediction|outlook|guidance|expect|expects|expected|project|projects|projected|projection|projections|next\s+(year|quarter)|will)\b`)
)

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
	if input == nil {
		return nil, ErrNilInput
	}
	return h.execute(ctx, input)
}

func (h *Handler) execute(_ context.Context, input *Input) (*Output, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	decomposed := Decompose(query, input.Tickers)

	h.logger.Info("query decomposed", map[string]interface{}{
		"complexity": string(decomposed.Complexity),
		"steps":      len(decomposed.Steps),
		"tickers":    input.Tickers,
	})

	return &Output{Decomposed: decomposed}, nil
}

// Decompose plans the retrieval steps for one query. The metrics step always
// comes first; every other step depends on it and on nothing else, so the
// scheduler can run them in a single concurrent wave.
func Decompose(query string, tickers []string) models.DecomposedQuery {
	steps := []models.QueryStep{
		{
			StepNumber:    1,
			SubQuery:      query,
			RetrievalType: models.RetrievalMetrics,
			Tickers:       tickers,
		},
	}

	conditional := []struct {
		retrievalType models.RetrievalType
		pattern       *regexp.Regexp
	}{
		{models.RetrievalNarrative, narrativePattern},
		{models.RetrievalMacro, macroPattern},
		{models.RetrievalPortfolio, portfolioPattern},
		{models.RetrievalForecast, forecastPattern},
	}

	for _, c := range conditional {
		if !c.pattern.MatchString(query) {
			continue
		}
		steps = append(steps, models.QueryStep{
			StepNumber:    len(steps) + 1,
			SubQuery:      query,
			RetrievalType: c.retrievalType,
			Tickers:       tickers,
			DependsOn:     []int{1},
		})
	}

	return models.DecomposedQuery{
		Original:   query,
		Complexity: Classify(query),
		Steps:      steps,
	}
}

// Classify grades complexity by how many disjoint category keyword groups
// the query matches: 0-1 simple, 2-3 moderate, 4 or more complex.
func Classify(query string) models.QueryComplexity {
	groups := []*regexp.Regexp{
		narrativePattern,
		comparePattern,
		macroPattern,
		portfolioPattern,
		forecastPattern,
	}

	matched := 0
	for _, g := range groups {
		if g.MatchString(query) {
			matched++
		}
	}

	switch {
	case matched <= 1:
		return models.ComplexitySimple
	case matched <= 3:
		return models.ComplexityModerate
	default:
		return models.ComplexityComplex
	}
}
