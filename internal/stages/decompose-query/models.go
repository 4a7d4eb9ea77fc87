// internal/stages/decompose-query/models.go
package decomposequery

import "finqa-retrieval/internal/models"

type Input struct {
	Query   string   `json:"query"`
	Tickers []string `json:"tickers,omitempty"`
}

type Output struct {
	Decomposed models.DecomposedQuery `json:"decomposed"`
}
