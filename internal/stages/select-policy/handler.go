// internal/stages/select-policy/handler.go
package selectpolicy

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"finqa-retrieval/internal/common/logger"
	"finqa-retrieval/internal/models"
	"finqa-retrieval/pkg/policyregistry"
)

const StageName = "select-policy"

var (
	ErrNilInput   = errors.New("nil input")
	ErrEmptyQuery = errors.New("empty query")
)

// Intent keyword groups, checked in priority order. The first group that
// matches wins; the metric regex is the next-to-last resort before general.
var (
	forecastPattern = regexp.MustCompile(`(?i)\b(forecast|forecasts|predict|predicts|prediction|outlook|guidance|expect|expects|expected|project|projects|projected|projection|projections|next\s+(year|quarter)|will)\b`)
	riskPattern     = regexp.MustCompile(`(?i)\b(risk|risks|risky|exposure|exposures|threat|threats|uncertainty|uncertainties|headwind|headwinds|downside)\b`)
	comparePattern  = regexp.MustCompile(`(?i)\b(compare|compared|comparison|versus|vs|relative\s+to|difference\s+between|against)\b`)
	whyPattern      = regexp.MustCompile(`(?i)\b(why|how\s+did|how\s+has|explain|what\s+drove|what\s+caused|reason|reasons|driver|drivers|because)\b`)
	metricPattern   = regexp.MustCompile(`(?i)\b(revenue|revenues|sales|eps|earnings|net\s+income|operating\s+income|gross\s+margin|operating\s+margin|margin|margins|ebitda|free\s+cash\s+flow|fcf|cash\s+flow|capex|opex|profit|profitability|dividend|dividends|debt|assets|liabilities)\b`)
)

// rewriteSuffixes holds the instruction appended per intent. Downstream
// retrieval passes the rewritten text through verbatim.
var rewriteSuffixes = map[models.QueryIntent]string{
	models.IntentMetricLookup: "return exact reported figures with units and fiscal period",
	models.IntentWhy:          "focus on management explanations and stated drivers",
	models.IntentCompare:      "ensure same reporting period and units",
	models.IntentRisk:         "focus on disclosed risk factors and exposures",
	models.IntentForecast:     "prefer stated guidance and clearly labeled projections",
}

type Handler struct {
	config   *Config
	registry *policyregistry.Registry
	logger   logger.Logger
}

func NewHandler(config *Config, registry *policyregistry.Registry, log logger.Logger) *Handler {
	return &Handler{
		config:   config,
		registry: registry,
		logger:   log.WithFields(map[string]interface{}{"stage": StageName}),
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

	intent, fromHint := h.resolveIntent(query, input.IntentHint)
	policy := h.registry.Get(intent)

	output := &Output{
		Intent:         intent,
		Policy:         policy,
		RewrittenQuery: Rewrite(query, intent),
	}

	h.logger.Info("policy selected", map[string]interface{}{
		"intent":      string(intent),
		"fromHint":    fromHint,
		"useMultiHop": policy.UseMultiHop,
		"kDocs":       policy.KDocs,
		"reranking":   policy.UseReranking,
	})

	return output, nil
}

func (h *Handler) resolveIntent(query, hint string) (models.QueryIntent, bool) {
	if hint != "" {
		if intent, err := models.ParseQueryIntent(hint); err == nil {
			return intent, true
		}
		h.logger.Warn("ignoring unknown intent hint", map[string]interface{}{
			"hint": hint,
		})
	}
	return DetectIntent(query), false
}

// DetectIntent classifies a query by first-match keyword group, highest
// priority first.
func DetectIntent(query string) models.QueryIntent {
	switch {
	case forecastPattern.MatchString(query):
		return models.IntentForecast
	case riskPattern.MatchString(query):
		return models.IntentRisk
	case comparePattern.MatchString(query):
		return models.IntentCompare
	case whyPattern.MatchString(query):
		return models.IntentWhy
	case metricPattern.MatchString(query):
		return models.IntentMetricLookup
	default:
		return models.IntentGeneral
	}
}

// Rewrite appends the fixed instructional suffix for the intent. Intents
// without a suffix (general) pass the query through untouched.
func Rewrite(query string, intent models.QueryIntent) string {
	suffix, ok := rewriteSuffixes[intent]
	if !ok {
		return query
	}
	return query + ". " + suffix
}
