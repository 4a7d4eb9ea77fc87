// internal/stages/hybrid-search/handler.go
package hybridsearch

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"sync"

	apperrors "finqa-retrieval/internal/common/errors"
	"finqa-retrieval/internal/common/logger"
	"finqa-retrieval/internal/common/metrics"
	"finqa-retrieval/internal/models"
)

const StageName = "hybrid-search"

var (
	ErrNilInput          = errors.New("nil input")
	ErrEmptyQuery        = errors.New("empty query")
	ErrMissingSourceType = errors.New("missing source type")
)

// DenseSearcher retrieves by embedding similarity from a vector collection.
type DenseSearcher interface {
	SearchDense(ctx context.Context, query, collection string, limit int, filter map[string]interface{}) ([]models.SearchHit, error)
}

// SparseSearcher retrieves by lexical match from a keyword index.
type SparseSearcher interface {
	SearchSparse(ctx context.Context, query, index string, limit int, filter map[string]interface{}) ([]models.SearchHit, error)
}

type Handler struct {
	config *Config
	dense  DenseSearcher
	sparse SparseSearcher
	logger logger.Logger
}

func NewHandler(config *Config, dense DenseSearcher, sparse SparseSearcher, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		dense:  dense,
		sparse: sparse,
		logger: log.WithFields(map[string]interface{}{"stage": StageName}),
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil {
		return nil, ErrNilInput
	}
	if strings.TrimSpace(input.Query) == "" {
		return nil, ErrEmptyQuery
	}
	if input.SourceType == "" {
		return nil, ErrMissingSourceType
	}
	return h.execute(ctx, input)
}

type branchResult struct {
	hits     []models.SearchHit
	err      error
	timedOut bool
}

// execute fans out to both branches, normalizes each independently, and
// merges per document key. A failed branch degrades to empty and is
// recorded; the merge itself never fails.
func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	var wg sync.WaitGroup
	var dense, sparse branchResult

	wg.Add(2)
	go func() {
		defer wg.Done()
		branchCtx, cancel := context.WithTimeout(ctx, h.config.BranchTimeout)
		defer cancel()
		dense.hits, dense.err = h.dense.SearchDense(branchCtx, input.Query, input.Collection, h.config.KDense, input.Filter)
		if dense.err != nil && branchCtx.Err() == context.DeadlineExceeded {
			dense.timedOut = true
		}
	}()
	go func() {
		defer wg.Done()
		branchCtx, cancel := context.WithTimeout(ctx, h.config.BranchTimeout)
		defer cancel()
		sparse.hits, sparse.err = h.sparse.SearchSparse(branchCtx, input.Query, input.Index, h.config.KSparse, input.Filter)
		if sparse.err != nil && branchCtx.Err() == context.DeadlineExceeded {
			sparse.timedOut = true
		}
	}()
	wg.Wait()

	var degraded []string
	if dense.err != nil {
		degraded = append(degraded, h.recordBranchFailure(input.SourceType, "dense", dense))
		dense.hits = nil
	}
	if sparse.err != nil {
		degraded = append(degraded, h.recordBranchFailure(input.SourceType, "sparse", sparse))
		sparse.hits = nil
	}

	kFinal := input.Limit
	if kFinal <= 0 {
		kFinal = h.config.KFinal
	}
	documents := h.merge(input.SourceType, dense.hits, sparse.hits, kFinal)

	h.logger.Debug("hybrid merge completed", map[string]interface{}{
		"source":     string(input.SourceType),
		"denseHits":  len(dense.hits),
		"sparseHits": len(sparse.hits),
		"merged":     len(documents),
		"degraded":   degraded,
	})

	return &Output{Documents: documents, Degraded: degraded}, nil
}

func (h *Handler) recordBranchFailure(source models.SourceType, branch string, res branchResult) string {
	code := apperrors.ErrCodeDenseSearchFailed
	switch {
	case branch == "dense" && res.timedOut:
		code = apperrors.ErrCodeDenseSearchTimeout
	case branch == "sparse" && res.timedOut:
		code = apperrors.ErrCodeSparseSearchTimeout
	case branch == "sparse":
		code = apperrors.ErrCodeSparseSearchFailed
	}

	metrics.StageDegradedTotal.WithLabelValues(StageName, string(code)).Inc()
	h.logger.Warn("search branch degraded to empty", map[string]interface{}{
		"source": string(source),
		"branch": branch,
		"error":  res.err.Error(),
	})

	return StageName + ":" + string(source) + ":" + branch
}

type mergedEntry struct {
	doc   models.RetrievedDocument
	score float64
}

// merge sums weighted normalized scores per document key. Entries keep
// first-seen order (dense branch first), so equal combined scores sort
// deterministically regardless of which branch was slower.
func (h *Handler) merge(source models.SourceType, denseHits, sparseHits []models.SearchHit, kFinal int) []models.RetrievedDocument {
	denseNorm := normalizeHits(denseHits)
	sparseNorm := normalizeHits(sparseHits)

	index := make(map[string]int)
	var entries []*mergedEntry

	accumulate := func(hits []models.SearchHit, norm []float64, weight float64) {
		for i, hit := range hits {
			doc := models.RetrievedDocument{
				Text:       hit.Text,
				SourceType: source,
				Metadata:   hit.Metadata,
			}
			key := doc.Key()
			if at, ok := index[key]; ok {
				entries[at].score += weight * norm[i]
				continue
			}
			index[key] = len(entries)
			entries = append(entries, &mergedEntry{doc: doc, score: weight * norm[i]})
		}
	}
	accumulate(denseHits, denseNorm, h.config.DenseWeight)
	accumulate(sparseHits, sparseNorm, h.config.SparseWeight)

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].score > entries[j].score
	})
	if kFinal > 0 && len(entries) > kFinal {
		entries = entries[:kFinal]
	}

	documents := make([]models.RetrievedDocument, len(entries))
	for i, e := range entries {
		e.doc.RawScore = models.Float64Ptr(e.score)
		documents[i] = e.doc
	}
	return documents
}

// normalizeHits maps one branch's raw scores to [0,1]: unbounded distances
// (max > 1.0) via 1/(1+s), bounded similarities via min-max, constant lists
// to 1.0 uniformly.
func normalizeHits(hits []models.SearchHit) []float64 {
	if len(hits) == 0 {
		return nil
	}

	minScore, maxScore := hits[0].Score, hits[0].Score
	for _, hit := range hits[1:] {
		if hit.Score < minScore {
			minScore = hit.Score
		}
		if hit.Score > maxScore {
			maxScore = hit.Score
		}
	}

	normalized := make([]float64, len(hits))
	switch {
	case maxScore > 1.0:
		for i, hit := range hits {
			normalized[i] = 1.0 / (1.0 + math.Max(0, hit.Score))
		}
	case maxScore == minScore:
		for i := range hits {
			normalized[i] = 1.0
		}
	default:
		for i, hit := range hits {
			normalized[i] = (hit.Score - minScore) / (maxScore - minScore)
		}
	}
	return normalized
}
