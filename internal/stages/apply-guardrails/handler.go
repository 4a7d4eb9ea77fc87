// internal/stages/apply-guardrails/handler.go
package applyguardrails

import (
	"context"
	"errors"
	"sort"

	"finqa-retrieval/internal/common/logger"
	"finqa-retrieval/internal/models"
)

const StageName = "apply-guardrails"

var ErrNilInput = errors.New("nil input")

type Handler struct {
	config   *Config
	recorder *Recorder
	logger   logger.Logger
}

func NewHandler(config *Config, recorder *Recorder, log logger.Logger) *Handler {
	return &Handler{
		config:   config,
		recorder: recorder,
		logger:   log.WithFields(map[string]interface{}{"stage": StageName}),
	}
}

// Recorder exposes the stage's metrics recorder for periodic consumers
// (summary endpoint, alerting).
func (h *Handler) Recorder() *Recorder {
	return h.recorder
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil || input.Result == nil {
		return nil, ErrNilInput
	}
	return h.execute(ctx, input)
}

func (h *Handler) execute(_ context.Context, input *Input) (*Output, error) {
	output := &Output{}
	perSource := make(map[models.SourceType]int)
	capped := make(map[models.SourceType]bool)
	kept := make([]models.FusedDocument, 0, len(input.Result.Fused))

	for _, fd := range input.Result.Fused {
		if fd.FusedScore < h.config.MinRelevanceScore {
			output.DroppedLowScore++
			continue
		}
		source := fd.Document.SourceType
		if h.config.MaxDocumentsPerSource > 0 && perSource[source] >= h.config.MaxDocumentsPerSource {
			if !capped[source] {
				capped[source] = true
				output.CappedSources = append(output.CappedSources, string(source))
			}
			continue
		}
		perSource[source]++
		kept = append(kept, fd)
	}

	output.Fused = kept
	input.Result.Fused = kept

	if len(kept) < h.config.RequireMinDocs {
		output.BelowMinDocs = true
		h.logger.Warn("surviving documents below minimum", map[string]interface{}{
			"intent":    string(input.Intent),
			"surviving": len(kept),
			"required":  h.config.RequireMinDocs,
			"dropped":   output.DroppedLowScore,
		})
	}

	h.logger.Debug("guardrails applied", map[string]interface{}{
		"intent":          string(input.Intent),
		"kept":            len(kept),
		"droppedLowScore": output.DroppedLowScore,
		"cappedSources":   output.CappedSources,
	})

	return output, nil
}

// TruncateContext greedily accepts documents by descending fused score while
// the running character total stays within maxChars, and stops at the first
// document that would overflow the budget.
func (h *Handler) TruncateContext(docs []models.FusedDocument, maxChars int) ([]models.FusedDocument, bool) {
	if maxChars <= 0 {
		maxChars = h.config.MaxContextChars
	}

	ordered := make([]models.FusedDocument, len(docs))
	copy(ordered, docs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].FusedScore > ordered[j].FusedScore
	})

	total := 0
	for i, fd := range ordered {
		total += len(fd.Document.Text)
		if total > maxChars {
			return ordered[:i], true
		}
	}
	return ordered, false
}
