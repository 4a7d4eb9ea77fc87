// internal/sources/dense-http/client_test.go
package densehttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finqa-retrieval/internal/common/logger"
)

func newTestClient(t *testing.T, serverURL string) *Client {
	config := LoadConfig()
	config.BaseURL = serverURL
	config.APIKey = "test-key"
	config.Timeout = 2 * time.Second
	return NewClient(config, logger.NewTestLogger(t))
}

func TestClient_SearchDense_ParsesResults(t *testing.T) {
	var captured searchRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/search", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"results": [
				{"text": "Services revenue grew 14%.", "score": 0.91, "metadata": {"ticker": "AAPL", "fiscal_year": 2023}},
				{"text": "", "score": 0.90},
				{"text": "Hardware demand softened.", "score": 0.72}
			]
		}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	hits, err := client.SearchDense(context.Background(), "services growth", "sec_chunks", 8, map[string]interface{}{"ticker": "AAPL"})
	require.NoError(t, err)

	assert.Equal(t, "services growth", captured.Query)
	assert.Equal(t, "sec_chunks", captured.Collection)
	assert.Equal(t, 8, captured.Limit)
	assert.Equal(t, "AAPL", captured.Filter["ticker"])

	require.Len(t, hits, 2)
	assert.Equal(t, "Services revenue grew 14%.", hits[0].Text)
	assert.InDelta(t, 0.91, hits[0].Score, 1e-9)
	assert.Equal(t, "AAPL", hits[0].Metadata["ticker"])
	assert.Equal(t, "Hardware demand softened.", hits[1].Text)
}

func TestClient_SearchDense_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.SearchDense(context.Background(), "anything", "sec_chunks", 8, nil)
	assert.ErrorIs(t, err, ErrSearchFailed)
	assert.Contains(t, err.Error(), "502")
}

func TestClient_SearchDense_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := client.SearchDense(ctx, "anything", "sec_chunks", 8, nil)
	assert.ErrorIs(t, err, ErrSearchTimeout)
}

func TestClient_SearchDense_RequiresCollection(t *testing.T) {
	client := newTestClient(t, "http://localhost:0")
	_, err := client.SearchDense(context.Background(), "anything", "", 8, nil)
	assert.ErrorIs(t, err, ErrMissingCollection)
}
