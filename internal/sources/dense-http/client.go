// internal/sources/dense-http/client.go
package densehttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"finqa-retrieval/internal/common/httpclient"
	"finqa-retrieval/internal/common/logger"
	"finqa-retrieval/internal/models"
)

var (
	ErrMissingCollection = errors.New("collection name is required")
	ErrSearchTimeout     = errors.New("DENSE_SEARCH_TIMEOUT")
	ErrSearchFailed      = errors.New("DENSE_SEARCH_FAILED")
)

// Client talks to the embedding/vector-search service over JSON HTTP.
// Scores come back as the service reports them (cosine similarity or
// distance); normalization happens downstream.
type Client struct {
	config *Config
	http   *httpclient.Client
	logger logger.Logger
}

func NewClient(config *Config, log logger.Logger) *Client {
	return &Client{
		config: config,
		http:   httpclient.NewClient(config.Timeout),
		logger: log.WithFields(map[string]interface{}{"source": "dense-http"}),
	}
}

type searchRequest struct {
	Query      string                 `json:"query"`
	Collection string                 `json:"collection"`
	Limit      int                    `json:"limit"`
	Filter     map[string]interface{} `json:"filter,omitempty"`
}

func (c *Client) SearchDense(ctx context.Context, query, collection string, limit int, filter map[string]interface{}) ([]models.SearchHit, error) {
	if collection == "" {
		return nil, ErrMissingCollection
	}

	body, err := json.Marshal(searchRequest{
		Query:      query,
		Collection: collection,
		Limit:      limit,
		Filter:     filter,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+c.config.SearchPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if httpclient.IsTimeout(ctx, err) {
			return nil, ErrSearchTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: vector search returned %d", ErrSearchFailed, resp.StatusCode)
	}

	var parsed struct {
		Results []models.SearchHit `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrSearchFailed, err)
	}

	hits := make([]models.SearchHit, 0, len(parsed.Results))
	for _, hit := range parsed.Results {
		if hit.Text == "" {
			c.logger.Debug("dropping result without text", map[string]interface{}{"collection": collection})
			continue
		}
		hits = append(hits, hit)
	}

	c.logger.Debug("dense search completed", map[string]interface{}{
		"collection": collection,
		"returned":   len(hits),
	})

	return hits, nil
}
