// internal/orchestrator/steps.go
package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	apperrors "finqa-retrieval/internal/common/errors"
	"finqa-retrieval/internal/models"
	hybridsearch "finqa-retrieval/internal/stages/hybrid-search"
)

// stepSources maps each document step to the source types it searches.
// Narrative evidence lives in filings and in analyst-uploaded documents.
var stepSources = map[models.RetrievalType][]models.SourceType{
	models.RetrievalNarrative: {models.SourceSECNarrative, models.SourceUploaded},
	models.RetrievalMacro:     {models.SourceMacro},
	models.RetrievalPortfolio: {models.SourcePortfolio},
	models.RetrievalForecast:  {models.SourceForecast},
}

// planSteps trims the decomposed plan to what this request actually runs.
func (o *Orchestrator) planSteps(decomposed models.DecomposedQuery, policy models.RetrievalPolicy, tickers []string, intent models.QueryIntent) []models.QueryStep {
	steps := decomposed.Steps

	multiHop := policy.UseMultiHop && decomposed.Complexity != models.ComplexitySimple
	if !multiHop {
		var kept []models.QueryStep
		var firstDoc *models.QueryStep
		for i := range steps {
			if steps[i].RetrievalType == models.RetrievalMetrics {
				kept = append(kept, steps[i])
			} else if firstDoc == nil {
				firstDoc = &steps[i]
			}
		}
		if firstDoc != nil {
			kept = append(kept, *firstDoc)
		}
		steps = kept
	}

	// A metric lookup with zero resolved tickers cannot match any rows;
	// running document steps would only pad a guaranteed refusal.
	if intent == models.IntentMetricLookup && len(tickers) == 0 {
		var kept []models.QueryStep
		for _, step := range steps {
			if step.RetrievalType == models.RetrievalMetrics {
				kept = append(kept, step)
			}
		}
		steps = kept
	}

	if o.config.MaxSteps > 0 && len(steps) > o.config.MaxSteps {
		o.logger.Warn("step plan capped", map[string]interface{}{
			"planned": len(steps),
			"cap":     o.config.MaxSteps,
		})
		steps = steps[:o.config.MaxSteps]
	}

	return steps
}

// runStep executes one step and absorbs its failure: anything short of
// context cancellation degrades the result instead of aborting the run.
func (o *Orchestrator) runStep(ctx context.Context, step models.QueryStep, policy models.RetrievalPolicy, result *models.RetrievalResult, mu *sync.Mutex) error {
	start := time.Now()

	var err error
	switch step.RetrievalType {
	case models.RetrievalMetrics:
		err = o.runMetricsStep(ctx, step, result, mu)
	case models.RetrievalNarrative, models.RetrievalMacro, models.RetrievalPortfolio, models.RetrievalForecast:
		err = o.runDocumentStep(ctx, step, policy, result, mu)
	default:
		err = apperrors.NewUnknownRetrievalTypeError(string(step.RetrievalType))
	}

	o.observeStage(ctx, "step-"+string(step.RetrievalType), time.Since(start))

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		tag := fmt.Sprintf("step:%d:%s", step.StepNumber, step.RetrievalType)
		o.degrade.HandleStageError(tag, err)
		mu.Lock()
		result.MarkDegraded(tag)
		mu.Unlock()
	}
	return nil
}

func (o *Orchestrator) runMetricsStep(ctx context.Context, step models.QueryStep, result *models.RetrievalResult, mu *sync.Mutex) error {
	if o.deps.MetricStore == nil || len(step.Tickers) == 0 {
		return nil
	}

	metricRecords, err := o.deps.MetricStore.FetchMetrics(ctx, step.Tickers)
	if err != nil {
		return err
	}

	factRecords, err := o.deps.MetricStore.FetchFacts(ctx, step.Tickers)
	if err != nil {
		// Facts only enrich; metric rows alone still serve the step.
		o.logger.Warn("fact fetch failed", map[string]interface{}{"error": err.Error()})
		mu.Lock()
		result.MarkDegraded("metric-store:facts")
		mu.Unlock()
		factRecords = nil
	}

	docs := renderRecordDocuments(metricRecords, factRecords)

	mu.Lock()
	defer mu.Unlock()
	result.Metrics = append(result.Metrics, metricRecords...)
	result.Facts = append(result.Facts, factRecords...)
	result.AddDocuments(models.SourceSQL, docs)
	return nil
}

func (o *Orchestrator) runDocumentStep(ctx context.Context, step models.QueryStep, policy models.RetrievalPolicy, result *models.RetrievalResult, mu *sync.Mutex) error {
	if o.deps.Hybrid == nil {
		return nil
	}

	for _, source := range stepSources[step.RetrievalType] {
		output, err := o.deps.Hybrid.Execute(ctx, &hybridsearch.Input{
			Query:      step.SubQuery,
			SourceType: source,
			Collection: o.config.Collections[source],
			Index:      o.config.Indexes[source],
			Limit:      policy.KDocs,
			Filter:     searchFilter(source, step.Tickers, policy.BiasSections),
		})
		if err != nil {
			return err
		}

		mu.Lock()
		result.AddDocuments(source, output.Documents)
		for _, tag := range output.Degraded {
			result.MarkDegraded(tag)
		}
		mu.Unlock()
	}
	return nil
}

// searchFilter scopes a branch search. Macro series are economy-wide and
// never ticker-scoped; section bias only applies to document stores that
// carry filing sections.
func searchFilter(source models.SourceType, tickers []string, biasSections []string) map[string]interface{} {
	filter := make(map[string]interface{})
	if len(tickers) > 0 && source != models.SourceMacro {
		filter["ticker"] = tickers
	}
	if len(biasSections) > 0 && (source == models.SourceSECNarrative || source == models.SourceUploaded) {
		filter["section"] = biasSections
	}
	if len(filter) == 0 {
		return nil
	}
	return filter
}

// renderRecordDocuments turns deterministic rows into sql-source documents.
// Exact rows enter fusion at full raw score.
func renderRecordDocuments(metricRecords []models.MetricRecord, factRecords []models.FactRecord) []models.RetrievedDocument {
	docs := make([]models.RetrievedDocument, 0, len(metricRecords)+len(factRecords))

	for _, rec := range metricRecords {
		metadata := map[string]interface{}{
			"ticker":      rec.Ticker,
			"metric":      rec.Metric,
			"fiscal_year": rec.FiscalYear,
			"period":      rec.Period,
		}
		if rec.FiscalQuarter > 0 {
			metadata["fiscal_quarter"] = rec.FiscalQuarter
		}
		docs = append(docs, models.RetrievedDocument{
			Text:       formatMetricText(rec),
			SourceType: models.SourceSQL,
			Metadata:   metadata,
			RawScore:   models.Float64Ptr(1.0),
		})
	}

	for _, rec := range factRecords {
		// Facts stay current regardless of filing period, so their
		// timestamp deliberately sits outside the time-filter keys.
		docs = append(docs, models.RetrievedDocument{
			Text:       fmt.Sprintf("%s %s: %s (as of %s).", rec.Ticker, rec.Label, rec.Value, rec.AsOf.Format("2006-01-02")),
			SourceType: models.SourceSQL,
			Metadata: map[string]interface{}{
				"ticker": rec.Ticker,
				"label":  rec.Label,
				"as_of":  rec.AsOf.Format("2006-01-02"),
			},
			RawScore: models.Float64Ptr(1.0),
		})
	}

	return docs
}

func formatMetricText(rec models.MetricRecord) string {
	value := strconv.FormatFloat(rec.Value, 'f', -1, 64)
	if rec.FiscalQuarter > 0 {
		return fmt.Sprintf("%s %s was %s %s in Q%d FY%d.", rec.Ticker, rec.Metric, value, rec.Unit, rec.FiscalQuarter, rec.FiscalYear)
	}
	return fmt.Sprintf("%s %s was %s %s in FY%d.", rec.Ticker, rec.Metric, value, rec.Unit, rec.FiscalYear)
}
