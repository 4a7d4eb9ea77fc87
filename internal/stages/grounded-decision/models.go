// internal/stages/grounded-decision/models.go
package groundeddecision

import "finqa-retrieval/internal/models"

type Input struct {
	Query   string                  `json:"query"`
	Intent  models.QueryIntent      `json:"intent"`
	Result  *models.RetrievalResult `json:"result"`
	Policy  *models.RetrievalPolicy `json:"policy,omitempty"`
	Tickers []string                `json:"tickers,omitempty"`
}

type Output struct {
	Decision models.GroundedDecision `json:"decision"`
}
