// internal/sources/rerank-http/client.go
package rerankhttp

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"finqa-retrieval/internal/common/httpclient"
	"finqa-retrieval/internal/common/logger"
)

var (
	ErrScoreTimeout = errors.New("RERANK_SCORE_TIMEOUT")
	ErrScoreFailed  = errors.New("RERANK_SCORE_FAILED")
)

// Client scores (query, text) pairs against the reranking service. Calls
// are rate limited and resolved pairs are memoized, so repeated candidates
// across requests skip the network entirely.
type Client struct {
	config  *Config
	http    *httpclient.Client
	limiter *rate.Limiter
	memo    *gocache.Cache
	logger  logger.Logger
}

func NewClient(config *Config, log logger.Logger) *Client {
	burst := config.Burst
	if burst <= 0 {
		burst = 5
	}
	return &Client{
		config:  config,
		http:    httpclient.NewClient(config.Timeout),
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), burst),
		memo:    gocache.New(config.CacheTTL, config.CacheCleanup),
		logger:  log.WithFields(map[string]interface{}{"source": "rerank-http"}),
	}
}

type scoreRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

type scoreResponse struct {
	Scores []float64 `json:"scores"`
}

// Score returns one relevance score per text, aligned with the input order.
func (c *Client) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	scores := make([]float64, len(texts))
	var missing []int
	for i, text := range texts {
		if cached, found := c.memo.Get(memoKey(query, text)); found {
			scores[i] = cached.(float64)
			continue
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		c.logger.Debug("all pairs memoized", map[string]interface{}{"pairs": len(texts)})
		return scores, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScoreTimeout, err)
	}

	request := scoreRequest{Query: query, Texts: make([]string, len(missing))}
	for i, idx := range missing {
		request.Texts[i] = texts[idx]
	}

	fresh, err := c.call(ctx, request)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missing) {
		return nil, fmt.Errorf("%w: got %d scores for %d texts", ErrScoreFailed, len(fresh), len(missing))
	}

	for i, idx := range missing {
		scores[idx] = fresh[i]
		c.memo.Set(memoKey(query, texts[idx]), fresh[i], gocache.DefaultExpiration)
	}

	return scores, nil
}

func (c *Client) call(ctx context.Context, request scoreRequest) ([]float64, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScoreFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+c.config.ScorePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScoreFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if httpclient.IsTimeout(ctx, err) {
			return nil, ErrScoreTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrScoreFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: scorer returned %d", ErrScoreFailed, resp.StatusCode)
	}

	var parsed scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrScoreFailed, err)
	}
	return parsed.Scores, nil
}

func memoKey(query, text string) string {
	sum := sha256.Sum256([]byte(query + "\x1f" + text))
	return hex.EncodeToString(sum[:])
}
