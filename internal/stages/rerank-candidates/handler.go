// internal/stages/rerank-candidates/handler.go
package rerankcandidates

import (
	"context"
	"errors"
	"fmt"
	"sort"

	apperrors "finqa-retrieval/internal/common/errors"
	"finqa-retrieval/internal/common/logger"
	"finqa-retrieval/internal/common/metrics"
	"finqa-retrieval/internal/models"

	"golang.org/x/sync/errgroup"
)

const StageName = "rerank-candidates"

// missingInitialScore stands in for candidates that arrive unscored.
const missingInitialScore = 0.5

var (
	ErrNilInput   = errors.New("nil input")
	ErrEmptyQuery = errors.New("empty query")
)

// PairScorer scores (query, text) relevance pairs. Implementations may
// batch; the stage sends one text per call and bounds concurrency.
type PairScorer interface {
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
}

type Handler struct {
	config *Config
	scorer PairScorer
	logger logger.Logger
}

func NewHandler(config *Config, scorer PairScorer, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		scorer: scorer,
		logger: log.WithFields(map[string]interface{}{"stage": StageName}),
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil {
		return nil, ErrNilInput
	}
	if input.Query == "" {
		return nil, ErrEmptyQuery
	}
	return h.execute(ctx, input)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if len(input.Documents) == 0 {
		return &Output{}, nil
	}

	scores, err := h.scoreAll(ctx, input.Query, input.Documents)
	if err != nil {
		metrics.StageDegradedTotal.WithLabelValues(StageName, string(apperrors.ErrCodeRerankFailed)).Inc()
		h.logger.Warn("scorer unavailable, falling back to initial order", map[string]interface{}{
			"candidates": len(input.Documents),
			"error":      err.Error(),
		})
		return fallbackOutput(input.Documents), nil
	}

	reranked := make([]RerankedDocument, len(input.Documents))
	for i, doc := range input.Documents {
		initial := initialScore(doc)
		reranked[i] = RerankedDocument{
			Document:     doc,
			RerankScore:  scores[i],
			InitialScore: initial,
			FinalScore:   h.config.RerankWeight*scores[i] + h.config.InitialWeight*initial,
		}
	}

	kept := reranked[:0]
	for _, rd := range reranked {
		if rd.FinalScore >= input.ScoreThreshold {
			kept = append(kept, rd)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].FinalScore > kept[j].FinalScore
	})
	if input.TopK > 0 && len(kept) > input.TopK {
		kept = kept[:input.TopK]
	}

	h.logger.Debug("rerank completed", map[string]interface{}{
		"candidates": len(input.Documents),
		"kept":       len(kept),
	})

	return &Output{Documents: kept}, nil
}

// scoreAll dispatches one scorer call per candidate with bounded
// concurrency. The first failure cancels the remaining calls.
func (h *Handler) scoreAll(ctx context.Context, query string, docs []models.RetrievedDocument) ([]float64, error) {
	scores := make([]float64, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.config.MaxConcurrent)

	for i, doc := range docs {
		i, text := i, doc.Text
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, h.config.CallTimeout)
			defer cancel()

			vals, err := h.scorer.Score(callCtx, query, []string{text})
			if err != nil {
				return err
			}
			if len(vals) != 1 {
				return fmt.Errorf("scorer returned %d scores for 1 text", len(vals))
			}
			scores[i] = vals[0]
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

// ExecuteMultiSource reranks each source's list independently, truncating
// to the policy's per-source cap, and records per-source fallbacks on the
// result. It never fails the request.
func (h *Handler) ExecuteMultiSource(ctx context.Context, query string, result *models.RetrievalResult, policy *models.RetrievalPolicy) {
	if result == nil {
		return
	}

	for _, source := range models.KnownSourceTypes() {
		docs := result.DocsBySource[source]
		if len(docs) == 0 {
			continue
		}

		topK := 0
		if policy != nil {
			topK = policy.SourceCap(source)
		}

		output, err := h.Execute(ctx, &Input{
			Query:          query,
			Documents:      docs,
			TopK:           topK,
			ScoreThreshold: h.config.ScoreThreshold,
		})
		if err != nil {
			// Only invalid input reaches here; leave the source untouched.
			h.logger.Warn("skipping rerank for source", map[string]interface{}{
				"source": string(source),
				"error":  err.Error(),
			})
			continue
		}

		result.DocsBySource[source] = output.AsRetrieved()
		if output.FellBack {
			result.MarkDegraded(StageName + ":" + string(source))
		}
	}
}

func fallbackOutput(docs []models.RetrievedDocument) *Output {
	out := &Output{Documents: make([]RerankedDocument, len(docs)), FellBack: true}
	for i, doc := range docs {
		initial := initialScore(doc)
		out.Documents[i] = RerankedDocument{
			Document:     doc,
			InitialScore: initial,
			FinalScore:   initial,
		}
	}
	return out
}

func initialScore(doc models.RetrievedDocument) float64 {
	if score, ok := doc.RawScoreValue(); ok {
		return score
	}
	return missingInitialScore
}
