// internal/stages/rerank-candidates/models.go
package rerankcandidates

import "finqa-retrieval/internal/models"

type Input struct {
	Query     string                     `json:"query"`
	Documents []models.RetrievedDocument `json:"documents"`

	// TopK truncates the reranked list when positive.
	TopK int `json:"topK,omitempty"`

	// ScoreThreshold drops candidates whose finalScore falls below it.
	// Zero keeps every non-negative score.
	ScoreThreshold float64 `json:"scoreThreshold,omitempty"`
}

// RerankedDocument carries the score decomposition for one candidate.
type RerankedDocument struct {
	Document     models.RetrievedDocument `json:"document"`
	RerankScore  float64                  `json:"rerankScore"`
	InitialScore float64                  `json:"initialScore"`
	FinalScore   float64                  `json:"finalScore"`
}

type Output struct {
	Documents []RerankedDocument `json:"documents"`

	// FellBack reports that the scorer failed and the input came back
	// unchanged with finalScore = initialScore.
	FellBack bool `json:"fellBack,omitempty"`
}

// AsRetrieved converts the reranked list back to retrieval documents with
// finalScore as the raw score, for the downstream fusion stage. Scorers may
// emit unbounded logits; a score above 1.0 would flip the fusion normalizer
// into distance mode, so lists that leave [0,1] are min-max rescaled first.
func (o *Output) AsRetrieved() []models.RetrievedDocument {
	if len(o.Documents) == 0 {
		return nil
	}

	minScore, maxScore := o.Documents[0].FinalScore, o.Documents[0].FinalScore
	for _, rd := range o.Documents[1:] {
		if rd.FinalScore < minScore {
			minScore = rd.FinalScore
		}
		if rd.FinalScore > maxScore {
			maxScore = rd.FinalScore
		}
	}
	rescale := minScore < 0 || maxScore > 1

	docs := make([]models.RetrievedDocument, len(o.Documents))
	for i, rd := range o.Documents {
		score := rd.FinalScore
		if rescale {
			score = 1.0
			if maxScore > minScore {
				score = (rd.FinalScore - minScore) / (maxScore - minScore)
			}
		}
		doc := rd.Document
		doc.RawScore = models.Float64Ptr(score)
		docs[i] = doc
	}
	return docs
}
