// internal/orchestrator/multihop_test.go
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finqa-retrieval/internal/common/logger"
	"finqa-retrieval/internal/models"
	hybridsearch "finqa-retrieval/internal/stages/hybrid-search"
)

// callLog records collaborator invocations across goroutines so tests can
// assert wave ordering.
type callLog struct {
	mu     sync.Mutex
	events []string
}

func (l *callLog) record(event string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.events))
	copy(out, l.events)
	return out
}

func (l *callLog) firstIndex(event string) int {
	for i, e := range l.snapshot() {
		if e == event {
			return i
		}
	}
	return -1
}

type fakeMetricStore struct {
	log        *callLog
	metrics    []models.MetricRecord
	facts      []models.FactRecord
	metricsErr error
	factsErr   error
	blockCtx   bool

	mu          sync.Mutex
	metricCalls int
}

func (s *fakeMetricStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metricCalls
}

func (s *fakeMetricStore) FetchMetrics(ctx context.Context, tickers []string) ([]models.MetricRecord, error) {
	s.mu.Lock()
	s.metricCalls++
	s.mu.Unlock()
	if s.log != nil {
		s.log.record("metrics")
	}
	if s.blockCtx {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.metricsErr != nil {
		return nil, s.metricsErr
	}
	return s.metrics, nil
}

func (s *fakeMetricStore) FetchFacts(ctx context.Context, tickers []string) ([]models.FactRecord, error) {
	if s.factsErr != nil {
		return nil, s.factsErr
	}
	return s.facts, nil
}

type fakeDense struct {
	log  *callLog
	hits map[string][]models.SearchHit
	err  error
}

func (d *fakeDense) SearchDense(ctx context.Context, query, collection string, limit int, filter map[string]interface{}) ([]models.SearchHit, error) {
	if d.log != nil {
		d.log.record("dense:" + query)
	}
	if d.err != nil {
		return nil, d.err
	}
	return d.hits[query], nil
}

type fakeSparse struct {
	log  *callLog
	hits map[string][]models.SearchHit
	err  error
}

func (s *fakeSparse) SearchSparse(ctx context.Context, query, index string, limit int, filter map[string]interface{}) ([]models.SearchHit, error) {
	if s.log != nil {
		s.log.record("sparse:" + query)
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.hits[query], nil
}

func hit(text string, score float64) models.SearchHit {
	return models.SearchHit{Text: text, Score: score, Metadata: map[string]interface{}{"ticker": "AAPL"}}
}

func newStepOrchestrator(t *testing.T, store MetricStore, dense hybridsearch.DenseSearcher, sparse hybridsearch.SparseSearcher) *Orchestrator {
	t.Helper()
	log := logger.NewTestLogger(t)
	return New(LoadConfig(), Dependencies{
		Hybrid:      hybridsearch.NewHandler(hybridsearch.LoadConfig(), dense, sparse, log),
		MetricStore: store,
	}, log)
}

func TestRunSteps_DependentsWaitForMetricsWave(t *testing.T) {
	log := &callLog{}
	store := &fakeMetricStore{
		log:     log,
		metrics: []models.MetricRecord{{Ticker: "AAPL", Metric: "revenue", Value: 383285, Unit: "USD millions", FiscalYear: 2023, Period: "FY2023"}},
	}
	dense := &fakeDense{log: log, hits: map[string][]models.SearchHit{
		"margin drivers":     {hit("margins compressed on mix shift", 0.9)},
		"guidance next year": {hit("management guided revenue up mid single digits", 0.8)},
	}}
	sparse := &fakeSparse{log: log, hits: map[string][]models.SearchHit{}}

	o := newStepOrchestrator(t, store, dense, sparse)
	result := models.NewRetrievalResult()

	steps := []models.QueryStep{
		{StepNumber: 1, SubQuery: "margin drivers", RetrievalType: models.RetrievalMetrics, Tickers: []string{"AAPL"}},
		{StepNumber: 2, SubQuery: "margin drivers", RetrievalType: models.RetrievalNarrative, Tickers: []string{"AAPL"}, DependsOn: []int{1}},
		{StepNumber: 3, SubQuery: "guidance next year", RetrievalType: models.RetrievalForecast, Tickers: []string{"AAPL"}, DependsOn: []int{1}},
	}

	stepsRun, err := o.runSteps(context.Background(), steps, models.RetrievalPolicy{KDocs: 4}, result)
	require.NoError(t, err)
	assert.Equal(t, 3, stepsRun)

	events := log.snapshot()
	require.NotEmpty(t, events)
	assert.Equal(t, "metrics", events[0])

	// Both dependent steps ran after the metrics wave completed.
	narrativeAt := log.firstIndex("dense:margin drivers")
	forecastAt := log.firstIndex("dense:guidance next year")
	assert.Greater(t, narrativeAt, 0)
	assert.Greater(t, forecastAt, 0)

	assert.Len(t, result.Metrics, 1)
	assert.NotEmpty(t, result.DocsBySource[models.SourceSQL])
	assert.NotEmpty(t, result.DocsBySource[models.SourceSECNarrative])
	assert.NotEmpty(t, result.DocsBySource[models.SourceForecast])
}

func TestRunSteps_DropsStepsWithUnmetDependencies(t *testing.T) {
	store := &fakeMetricStore{metrics: []models.MetricRecord{{Ticker: "AAPL", Metric: "eps", Value: 6.13, Unit: "USD", FiscalYear: 2023, Period: "FY2023"}}}
	dense := &fakeDense{}
	sparse := &fakeSparse{}

	o := newStepOrchestrator(t, store, dense, sparse)
	result := models.NewRetrievalResult()

	steps := []models.QueryStep{
		{StepNumber: 1, SubQuery: "eps", RetrievalType: models.RetrievalMetrics, Tickers: []string{"AAPL"}},
		{StepNumber: 2, SubQuery: "eps", RetrievalType: models.RetrievalNarrative, DependsOn: []int{7}},
	}

	stepsRun, err := o.runSteps(context.Background(), steps, models.RetrievalPolicy{KDocs: 4}, result)
	require.NoError(t, err)

	assert.Equal(t, 1, stepsRun)
	assert.Empty(t, result.DocsBySource[models.SourceSECNarrative])
}

func TestRunSteps_FailedStepDegradesAndDependentsStillRun(t *testing.T) {
	store := &fakeMetricStore{metricsErr: errors.New("connection refused")}
	dense := &fakeDense{hits: map[string][]models.SearchHit{
		"why did margins fall": {hit("freight costs normalized", 0.7)},
	}}
	sparse := &fakeSparse{}

	o := newStepOrchestrator(t, store, dense, sparse)
	result := models.NewRetrievalResult()

	steps := []models.QueryStep{
		{StepNumber: 1, SubQuery: "why did margins fall", RetrievalType: models.RetrievalMetrics, Tickers: []string{"AAPL"}},
		{StepNumber: 2, SubQuery: "why did margins fall", RetrievalType: models.RetrievalNarrative, Tickers: []string{"AAPL"}, DependsOn: []int{1}},
	}

	stepsRun, err := o.runSteps(context.Background(), steps, models.RetrievalPolicy{KDocs: 4}, result)
	require.NoError(t, err)

	assert.Equal(t, 2, stepsRun)
	assert.Contains(t, result.Degraded, "step:1:metrics")
	assert.Empty(t, result.Metrics)
	assert.NotEmpty(t, result.DocsBySource[models.SourceSECNarrative])
}

func TestRunSteps_UnknownRetrievalTypeDegrades(t *testing.T) {
	o := newStepOrchestrator(t, &fakeMetricStore{}, &fakeDense{}, &fakeSparse{})
	result := models.NewRetrievalResult()

	steps := []models.QueryStep{
		{StepNumber: 1, SubQuery: "anything", RetrievalType: models.RetrievalType("graph"), Tickers: []string{"AAPL"}},
	}

	stepsRun, err := o.runSteps(context.Background(), steps, models.RetrievalPolicy{}, result)
	require.NoError(t, err)

	assert.Equal(t, 1, stepsRun)
	assert.Contains(t, result.Degraded, "step:1:graph")
}

func TestRunSteps_ContextCancellationPropagates(t *testing.T) {
	store := &fakeMetricStore{blockCtx: true}
	o := newStepOrchestrator(t, store, &fakeDense{}, &fakeSparse{})
	result := models.NewRetrievalResult()

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()

	steps := []models.QueryStep{
		{StepNumber: 1, SubQuery: "blocked", RetrievalType: models.RetrievalMetrics, Tickers: []string{"AAPL"}},
	}

	_, err := o.runSteps(ctx, steps, models.RetrievalPolicy{}, result)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunSteps_EmptyPlan(t *testing.T) {
	o := newStepOrchestrator(t, &fakeMetricStore{}, &fakeDense{}, &fakeSparse{})

	stepsRun, err := o.runSteps(context.Background(), nil, models.RetrievalPolicy{}, models.NewRetrievalResult())
	require.NoError(t, err)
	assert.Zero(t, stepsRun)
}
