// internal/orchestrator/orchestrator.go
package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "finqa-retrieval/internal/common/errors"
	"finqa-retrieval/internal/common/logger"
	"finqa-retrieval/internal/common/metrics"
	"finqa-retrieval/internal/common/observability"
	"finqa-retrieval/internal/models"
	applyguardrails "finqa-retrieval/internal/stages/apply-guardrails"
	decomposequery "finqa-retrieval/internal/stages/decompose-query"
	fusescores "finqa-retrieval/internal/stages/fuse-scores"
	groundeddecision "finqa-retrieval/internal/stages/grounded-decision"
	hybridsearch "finqa-retrieval/internal/stages/hybrid-search"
	parsetimefilter "finqa-retrieval/internal/stages/parse-time-filter"
	rerankcandidates "finqa-retrieval/internal/stages/rerank-candidates"
	selectpolicy "finqa-retrieval/internal/stages/select-policy"
)

var (
	ErrNilInput   = errors.New("nil input")
	ErrEmptyQuery = errors.New("empty query")
)

// MetricStore serves deterministic financial rows for the metrics step.
type MetricStore interface {
	FetchMetrics(ctx context.Context, tickers []string) ([]models.MetricRecord, error)
	FetchFacts(ctx context.Context, tickers []string) ([]models.FactRecord, error)
}

// Dependencies collects every collaborator the pipeline calls. All fields
// except the stage handlers are optional: a nil MetricStore skips metric
// steps, a nil Cache disables response caching, a nil Observability skips
// OTel recording.
type Dependencies struct {
	SelectPolicy *selectpolicy.Handler
	ParseTime    *parsetimefilter.Handler
	Decompose    *decomposequery.Handler
	Hybrid       *hybridsearch.Handler
	Rerank       *rerankcandidates.Handler
	Fuse         *fusescores.Handler
	Guardrails   *applyguardrails.Handler
	Decide       *groundeddecision.Handler

	MetricStore   MetricStore
	Cache         ResultCache
	Observability *observability.Observability
}

// Orchestrator runs the full retrieval pipeline for one parsed query:
// policy selection, decomposition, concurrent retrieval waves, reranking,
// fusion, guardrails, and the grounded answer/refuse decision.
type Orchestrator struct {
	config  *Config
	deps    Dependencies
	logger  logger.Logger
	degrade *apperrors.DegradeHandler
}

func New(config *Config, deps Dependencies, log logger.Logger) *Orchestrator {
	scoped := log.WithFields(map[string]interface{}{"component": "orchestrator"})
	return &Orchestrator{
		config:  config,
		deps:    deps,
		logger:  scoped,
		degrade: apperrors.NewDegradeHandler(scoped),
	}
}

// Process answers one retrieval request end to end. It returns an error only
// for invalid input or a cancelled context; degraded collaborators produce a
// degraded response instead.
func (o *Orchestrator) Process(ctx context.Context, parsed *models.ParsedQuery) (*models.RetrievalResponse, error) {
	if parsed == nil {
		return nil, ErrNilInput
	}
	if strings.TrimSpace(parsed.Query) == "" {
		return nil, ErrEmptyQuery
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline && o.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	requestID := uuid.New().String()
	log := o.logger.WithFields(map[string]interface{}{"requestId": requestID})

	cacheKey := CacheKey(parsed.Query, parsed.Tickers)
	if o.deps.Cache != nil {
		if cached, ok := o.deps.Cache.Get(ctx, cacheKey); ok {
			metrics.CacheRequestsTotal.WithLabelValues("hit").Inc()
			o.recordRequest(ctx, string(cached.Intent), "cache_hit")
			log.Info("serving cached response", map[string]interface{}{
				"intent":    string(cached.Intent),
				"documents": len(cached.Documents),
			})
			cached.RequestID = requestID
			return cached, nil
		}
		metrics.CacheRequestsTotal.WithLabelValues("miss").Inc()
	}

	policyOut, err := o.timedSelectPolicy(ctx, parsed)
	if err != nil {
		return nil, err
	}
	intent := policyOut.Intent
	policy := policyOut.Policy

	metrics.RequestsActive.WithLabelValues(string(intent)).Inc()
	defer metrics.RequestsActive.WithLabelValues(string(intent)).Dec()

	// Time expressions are parsed from the analyst's own words; the
	// rewritten query only steers search relevance.
	timeOut, err := o.timedParseTime(ctx, parsed.Query)
	if err != nil {
		return nil, err
	}

	decomposeOut, err := o.timedDecompose(ctx, policyOut.RewrittenQuery, parsed.Tickers)
	if err != nil {
		return nil, err
	}
	decomposed := decomposeOut.Decomposed

	result := models.NewRetrievalResult()
	steps := o.planSteps(decomposed, policy, parsed.Tickers, intent)

	stepsRun, err := o.runSteps(ctx, steps, policy, result)
	if err != nil {
		return nil, err
	}
	result.StepsRun = stepsRun

	if policy.UseReranking && o.deps.Rerank != nil {
		rerankStart := time.Now()
		o.deps.Rerank.ExecuteMultiSource(ctx, policyOut.RewrittenQuery, result, &policy)
		o.observeStage(ctx, rerankcandidates.StageName, time.Since(rerankStart))
	}

	if timeOut.Filter != nil {
		for source, docs := range result.DocsBySource {
			result.DocsBySource[source] = o.deps.ParseTime.Apply(timeOut.Filter, docs)
		}
	}

	if err := o.timedFuse(ctx, result, &policy); err != nil {
		return nil, err
	}

	truncated, err := o.timedGuardrails(ctx, result, intent)
	if err != nil {
		return nil, err
	}

	decision, err := o.timedDecide(ctx, parsed, intent, result, &policy)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	response := &models.RetrievalResponse{
		RequestID:         requestID,
		Query:             parsed.Query,
		Intent:            intent,
		Complexity:        decomposed.Complexity,
		Documents:         result.Fused,
		Metrics:           result.Metrics,
		Facts:             result.Facts,
		OverallConfidence: result.OverallConfidence,
		Decision:          decision,
		Truncated:         truncated,
		Degraded:          result.Degraded,
		ElapsedMs:         elapsed.Milliseconds(),
	}

	status := "answered"
	if !decision.ShouldAnswer {
		status = "refused"
	}
	metrics.RetrievalRequestsTotal.WithLabelValues(string(intent), status).Inc()
	o.recordRequest(ctx, string(intent), status)

	// The recorder mirrors the document and confidence histograms.
	o.recordRetrieval(result, intent, elapsed)

	log.Info("retrieval completed", map[string]interface{}{
		"intent":            string(intent),
		"complexity":        string(decomposed.Complexity),
		"stepsRun":          stepsRun,
		"documents":         len(result.Fused),
		"overallConfidence": result.OverallConfidence,
		"shouldAnswer":      decision.ShouldAnswer,
		"degraded":          result.Degraded,
		"elapsedMs":         elapsed.Milliseconds(),
	})

	if o.deps.Cache != nil {
		now := time.Now().UTC()
		entry := *response
		entry.CachedAt = &now
		o.deps.Cache.Set(ctx, cacheKey, &entry)
	}

	return response, nil
}

func (o *Orchestrator) timedSelectPolicy(ctx context.Context, parsed *models.ParsedQuery) (*selectpolicy.Output, error) {
	start := time.Now()
	out, err := o.deps.SelectPolicy.Execute(ctx, &selectpolicy.Input{
		Query:      parsed.Query,
		IntentHint: parsed.IntentHint,
	})
	o.observeStage(ctx, selectpolicy.StageName, time.Since(start))
	return out, err
}

func (o *Orchestrator) timedParseTime(ctx context.Context, query string) (*parsetimefilter.Output, error) {
	start := time.Now()
	out, err := o.deps.ParseTime.Execute(ctx, &parsetimefilter.Input{Query: query})
	o.observeStage(ctx, parsetimefilter.StageName, time.Since(start))
	return out, err
}

func (o *Orchestrator) timedDecompose(ctx context.Context, query string, tickers []string) (*decomposequery.Output, error) {
	start := time.Now()
	out, err := o.deps.Decompose.Execute(ctx, &decomposequery.Input{Query: query, Tickers: tickers})
	o.observeStage(ctx, decomposequery.StageName, time.Since(start))
	return out, err
}

func (o *Orchestrator) timedFuse(ctx context.Context, result *models.RetrievalResult, policy *models.RetrievalPolicy) error {
	start := time.Now()
	_, err := o.deps.Fuse.Execute(ctx, &fusescores.Input{Result: result, Policy: policy})
	o.observeStage(ctx, fusescores.StageName, time.Since(start))
	return err
}

func (o *Orchestrator) timedGuardrails(ctx context.Context, result *models.RetrievalResult, intent models.QueryIntent) (bool, error) {
	start := time.Now()
	defer func() {
		o.observeStage(ctx, applyguardrails.StageName, time.Since(start))
	}()

	if _, err := o.deps.Guardrails.Execute(ctx, &applyguardrails.Input{Result: result, Intent: intent}); err != nil {
		return false, err
	}
	docs, truncated := o.deps.Guardrails.TruncateContext(result.Fused, 0)
	result.Fused = docs
	return truncated, nil
}

func (o *Orchestrator) timedDecide(ctx context.Context, parsed *models.ParsedQuery, intent models.QueryIntent, result *models.RetrievalResult, policy *models.RetrievalPolicy) (models.GroundedDecision, error) {
	start := time.Now()
	out, err := o.deps.Decide.Execute(ctx, &groundeddecision.Input{
		Query:   parsed.Query,
		Intent:  intent,
		Result:  result,
		Policy:  policy,
		Tickers: parsed.Tickers,
	})
	o.observeStage(ctx, groundeddecision.StageName, time.Since(start))
	if err != nil {
		return models.GroundedDecision{}, err
	}
	return out.Decision, nil
}

func (o *Orchestrator) observeStage(ctx context.Context, stage string, duration time.Duration) {
	metrics.StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
	if o.deps.Observability != nil {
		o.deps.Observability.RecordStageDuration(ctx, stage, duration)
	}
}

func (o *Orchestrator) recordRequest(ctx context.Context, intent, status string) {
	if o.deps.Observability != nil {
		o.deps.Observability.RecordRequest(ctx, intent, status)
	}
}

func (o *Orchestrator) recordRetrieval(result *models.RetrievalResult, intent models.QueryIntent, elapsed time.Duration) {
	if o.deps.Guardrails == nil {
		return
	}
	recorder := o.deps.Guardrails.Recorder()
	if recorder == nil {
		return
	}

	sourceCounts := make(map[string]int, len(result.DocsBySource))
	for source, docs := range result.DocsBySource {
		if len(docs) > 0 {
			sourceCounts[string(source)] = len(docs)
		}
	}

	recorder.LogRetrieval(applyguardrails.RetrievalRecord{
		Timestamp:         time.Now().UTC(),
		Intent:            string(intent),
		TotalDocs:         len(result.Fused),
		SourceCounts:      sourceCounts,
		OverallConfidence: result.OverallConfidence,
		Degraded:          result.Degraded,
		ElapsedMs:         elapsed.Milliseconds(),
	})
}
