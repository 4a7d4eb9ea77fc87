// internal/stages/parse-time-filter/models.go
package parsetimefilter

import "finqa-retrieval/internal/models"

type Input struct {
	Query string `json:"query"`
}

type Output struct {
	// Filter is nil when the query names no recognizable period.
	Filter *models.TimeFilter `json:"filter,omitempty"`

	// Expressions lists the temporal phrases that matched, in the order
	// they were recognized. Logged for data-quality review.
	Expressions []string `json:"expressions,omitempty"`
}
