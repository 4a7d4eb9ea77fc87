// internal/sources/sparse-elastic/searcher.go
package sparseelastic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"finqa-retrieval/internal/common/logger"
	"finqa-retrieval/internal/models"
)

var (
	ErrMissingIndex  = errors.New("index name is required")
	ErrIndexNotFound = errors.New("INDEX_NOT_FOUND")
	ErrSearchFailed  = errors.New("SEARCH_QUERY_FAILED")
)

// Searcher runs BM25 lookups against Elasticsearch. Raw _score values are
// passed through untouched; normalization happens downstream.
type Searcher struct {
	config *Config
	client *elasticsearch.Client
	logger logger.Logger
}

func NewSearcher(config *Config, client *elasticsearch.Client, log logger.Logger) *Searcher {
	return &Searcher{
		config: config,
		client: client,
		logger: log.WithFields(map[string]interface{}{"source": "sparse-elastic"}),
	}
}

func (s *Searcher) SearchSparse(ctx context.Context, query, index string, limit int, filter map[string]interface{}) ([]models.SearchHit, error) {
	if index == "" {
		return nil, ErrMissingIndex
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(buildSearchBody(query, s.config.SearchFields, filter))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}

	req := esapi.SearchRequest{
		Index: []string{index},
		Body:  bytes.NewReader(body),
		Size:  &limit,
	}

	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		if res.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, index)
		}
		return nil, fmt.Errorf("%w: %s", ErrSearchFailed, res.Status())
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrSearchFailed, err)
	}

	hits := make([]models.SearchHit, 0, len(sr.Hits.Hits))
	for _, hit := range sr.Hits.Hits {
		text, ok := hit.Source[s.config.TextField].(string)
		if !ok || text == "" {
			s.logger.Debug("dropping hit without text", map[string]interface{}{"index": index})
			continue
		}
		metadata := make(map[string]interface{}, len(hit.Source)-1)
		for field, value := range hit.Source {
			if field == s.config.TextField {
				continue
			}
			metadata[field] = value
		}
		score := 0.0
		if hit.Score != nil {
			score = *hit.Score
		}
		hits = append(hits, models.SearchHit{Text: text, Score: score, Metadata: metadata})
	}

	s.logger.Debug("sparse search completed", map[string]interface{}{
		"index":     index,
		"totalHits": sr.Hits.Total.Value,
		"returned":  len(hits),
	})

	return hits, nil
}

type searchResponse struct {
	Took int64 `json:"took"`
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		MaxScore *float64 `json:"max_score"`
		Hits     []struct {
			Score  *float64               `json:"_score"`
			Source map[string]interface{} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}
