// internal/server/handlers_test.go
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finqa-retrieval/internal/common/logger"
	"finqa-retrieval/internal/models"
	"finqa-retrieval/internal/orchestrator"
	applyguardrails "finqa-retrieval/internal/stages/apply-guardrails"
	"finqa-retrieval/pkg/policyregistry"
)

// ==========================
// Mock Processor
// ==========================

type MockProcessor struct {
	mu          sync.Mutex
	calls       []*models.ParsedQuery
	ProcessFunc func(ctx context.Context, parsed *models.ParsedQuery) (*models.RetrievalResponse, error)
}

func (m *MockProcessor) Process(ctx context.Context, parsed *models.ParsedQuery) (*models.RetrievalResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, parsed)
	m.mu.Unlock()

	if m.ProcessFunc != nil {
		return m.ProcessFunc(ctx, parsed)
	}
	return &models.RetrievalResponse{
		RequestID: "req-test",
		Query:     parsed.Query,
		Intent:    models.IntentMetricLookup,
		Decision:  models.GroundedDecision{ShouldAnswer: true, Confidence: 0.9, Reason: "sufficient evidence"},
	}, nil
}

func (m *MockProcessor) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *MockProcessor) lastCall() *models.ParsedQuery {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	return m.calls[len(m.calls)-1]
}

// ==========================
// Test Helpers
// ==========================

func newTestDeps(t *testing.T, proc Processor) *Dependencies {
	t.Helper()
	registry, err := policyregistry.New("")
	require.NoError(t, err)
	return &Dependencies{
		Config:    LoadConfig(),
		Retrieval: proc,
		Recorder:  applyguardrails.NewRecorder(16),
		Policies:  registry,
		Logger:    logger.NewTestLogger(t),
		Checks:    map[string]HealthChecker{},
	}
}

func doRequest(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

// ==========================
// Retrieve Endpoint Tests
// ==========================

func TestRetrieveHandler_Success(t *testing.T) {
	proc := &MockProcessor{}
	router := SetupRoutes(newTestDeps(t, proc))

	w := doRequest(t, router, http.MethodPost, "/api/v1/retrieve", RetrieveRequest{
		Query:   "What was AAPL revenue in FY2023?",
		Tickers: []string{"AAPL"},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
	assert.Equal(t, "req-test", w.Header().Get("X-Request-Id"))

	var resp models.RetrievalResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "req-test", resp.RequestID)
	assert.True(t, resp.Decision.ShouldAnswer)

	require.Equal(t, 1, proc.callCount())
	parsed := proc.lastCall()
	assert.Equal(t, "What was AAPL revenue in FY2023?", parsed.Query)
	assert.Equal(t, []string{"AAPL"}, parsed.Tickers)
}

func TestRetrieveHandler_PassesHintAndConversation(t *testing.T) {
	proc := &MockProcessor{}
	router := SetupRoutes(newTestDeps(t, proc))

	w := doRequest(t, router, http.MethodPost, "/api/v1/retrieve", RetrieveRequest{
		Query:          "Why did margins move?",
		IntentHint:     "why",
		ConversationID: "conv-42",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	parsed := proc.lastCall()
	require.NotNil(t, parsed)
	assert.Equal(t, "why", parsed.IntentHint)
	assert.Equal(t, "conv-42", parsed.ConversationID)
}

func TestRetrieveHandler_InvalidJSON(t *testing.T) {
	proc := &MockProcessor{}
	router := SetupRoutes(newTestDeps(t, proc))

	w := doRequest(t, router, http.MethodPost, "/api/v1/retrieve", "{not json")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, "invalid_json", resp.Error)
	assert.Zero(t, proc.callCount())
}

func TestRetrieveHandler_ValidationFailures(t *testing.T) {
	tests := []struct {
		name      string
		req       RetrieveRequest
		wantField string
	}{
		{
			name:      "missing query",
			req:       RetrieveRequest{Tickers: []string{"AAPL"}},
			wantField: "Query",
		},
		{
			name: "query too long",
			req: RetrieveRequest{
				Query: strings.Repeat("x", 2001),
			},
			wantField: "Query",
		},
		{
			name: "too many tickers",
			req: RetrieveRequest{
				Query:   "compare everything",
				Tickers: make21Tickers(),
			},
			wantField: "Tickers",
		},
		{
			name: "empty ticker entry",
			req: RetrieveRequest{
				Query:   "compare",
				Tickers: []string{"AAPL", ""},
			},
			wantField: "Tickers[1]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := &MockProcessor{}
			router := SetupRoutes(newTestDeps(t, proc))

			w := doRequest(t, router, http.MethodPost, "/api/v1/retrieve", tt.req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			resp := decodeError(t, w)
			assert.Equal(t, "validation_failed", resp.Error)
			assert.Contains(t, resp.Details, tt.wantField)
			assert.Zero(t, proc.callCount())
		})
	}
}

func make21Tickers() []string {
	out := make([]string, 21)
	for i := range out {
		out[i] = "TICK"
	}
	return out
}

func TestRetrieveHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		procErr    error
		wantStatus int
		wantError  string
	}{
		{
			name:       "empty query sentinel",
			procErr:    orchestrator.ErrEmptyQuery,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_query",
		},
		{
			name:       "nil input sentinel",
			procErr:    orchestrator.ErrNilInput,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_query",
		},
		{
			name:       "deadline exceeded",
			procErr:    context.DeadlineExceeded,
			wantStatus: http.StatusGatewayTimeout,
			wantError:  "timeout",
		},
		{
			name:       "unexpected failure",
			procErr:    assert.AnError,
			wantStatus: http.StatusInternalServerError,
			wantError:  "retrieval_failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := &MockProcessor{
				ProcessFunc: func(ctx context.Context, parsed *models.ParsedQuery) (*models.RetrievalResponse, error) {
					return nil, tt.procErr
				},
			}
			router := SetupRoutes(newTestDeps(t, proc))

			w := doRequest(t, router, http.MethodPost, "/api/v1/retrieve", RetrieveRequest{Query: "anything"})

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeError(t, w)
			assert.Equal(t, tt.wantError, resp.Error)
		})
	}
}

// ==========================
// Health Endpoint Tests
// ==========================

func TestHealthCheck(t *testing.T) {
	router := SetupRoutes(newTestDeps(t, &MockProcessor{}))

	w := doRequest(t, router, http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestReadinessCheck(t *testing.T) {
	t.Run("all dependencies healthy", func(t *testing.T) {
		deps := newTestDeps(t, &MockProcessor{})
		deps.Checks = map[string]HealthChecker{
			"postgres": func(ctx context.Context) error { return nil },
			"redis":    func(ctx context.Context) error { return nil },
		}
		router := SetupRoutes(deps)

		w := doRequest(t, router, http.MethodGet, "/readyz", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp map[string]interface{}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "ready", resp["status"])

		checks := resp["checks"].(map[string]interface{})
		assert.Equal(t, "healthy", checks["postgres"])
		assert.Equal(t, "healthy", checks["redis"])
	})

	t.Run("failing dependency flips status", func(t *testing.T) {
		deps := newTestDeps(t, &MockProcessor{})
		deps.Checks = map[string]HealthChecker{
			"postgres":      func(ctx context.Context) error { return nil },
			"elasticsearch": func(ctx context.Context) error { return assert.AnError },
		}
		router := SetupRoutes(deps)

		w := doRequest(t, router, http.MethodGet, "/readyz", nil)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		var resp map[string]interface{}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "not_ready", resp["status"])

		checks := resp["checks"].(map[string]interface{})
		assert.Equal(t, "healthy", checks["postgres"])
		assert.Equal(t, "unhealthy", checks["elasticsearch"])
	})

	t.Run("no checks registered is ready", func(t *testing.T) {
		router := SetupRoutes(newTestDeps(t, &MockProcessor{}))

		w := doRequest(t, router, http.MethodGet, "/readyz", nil)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

// ==========================
// Stats and Policies Tests
// ==========================

func TestStatsHandler(t *testing.T) {
	deps := newTestDeps(t, &MockProcessor{})
	for i := 0; i < 3; i++ {
		deps.Recorder.LogRetrieval(applyguardrails.RetrievalRecord{
			Timestamp:         time.Now().UTC(),
			Intent:            "metric_lookup",
			TotalDocs:         4,
			OverallConfidence: 0.8,
			ElapsedMs:         120,
		})
	}
	router := SetupRoutes(deps)

	w := doRequest(t, router, http.MethodGet, "/api/v1/stats", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var stats applyguardrails.SummaryStats
	require.NoError(t, json.NewDecoder(w.Body).Decode(&stats))
	assert.Equal(t, 3, stats.WindowSize)
	assert.Equal(t, int64(3), stats.TotalRecorded)
	assert.InDelta(t, 4.0, stats.AvgDocs, 1e-9)
	assert.Zero(t, stats.EmptyRate)
}

func TestPoliciesHandler(t *testing.T) {
	router := SetupRoutes(newTestDeps(t, &MockProcessor{}))

	w := doRequest(t, router, http.MethodGet, "/api/v1/policies", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var policies map[string]models.RetrievalPolicy
	require.NoError(t, json.NewDecoder(w.Body).Decode(&policies))

	require.Contains(t, policies, "metric_lookup")
	assert.Equal(t, 5, policies["metric_lookup"].KDocs)
	assert.False(t, policies["metric_lookup"].UseMultiHop)

	require.Contains(t, policies, "why")
	assert.True(t, policies["why"].UseReranking)
}

// ==========================
// Routing Tests
// ==========================

func TestNotFoundIsJSON(t *testing.T) {
	router := SetupRoutes(newTestDeps(t, &MockProcessor{}))

	w := doRequest(t, router, http.MethodGet, "/api/v1/nope", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, "not_found", resp.Error)
}

func TestMetricsEndpointExposed(t *testing.T) {
	router := SetupRoutes(newTestDeps(t, &MockProcessor{}))

	w := doRequest(t, router, http.MethodGet, "/metrics", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
