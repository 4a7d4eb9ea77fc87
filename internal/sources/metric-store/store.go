// internal/sources/metric-store/store.go
package metricstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"finqa-retrieval/internal/common/logger"
	"finqa-retrieval/internal/models"
)

var ErrQueryFailed = errors.New("METRIC_QUERY_FAILED")

const metricsQuery = `
	SELECT ticker, metric, value, unit, fiscal_year, fiscal_quarter, period
	FROM financial_metrics
	WHERE ticker = ANY($1)
	ORDER BY ticker, fiscal_year DESC, fiscal_quarter DESC
	LIMIT $2`

const factsQuery = `
	SELECT ticker, label, value, as_of
	FROM company_facts
	WHERE ticker = ANY($1)
	ORDER BY ticker, as_of DESC
	LIMIT $2`

// Store reads deterministic financial data from Postgres. It only reads;
// ingestion is owned by the document pipeline upstream.
type Store struct {
	config *Config
	db     *sql.DB
	logger logger.Logger
}

func NewStore(config *Config, db *sql.DB, log logger.Logger) *Store {
	return &Store{
		config: config,
		db:     db,
		logger: log.WithFields(map[string]interface{}{"source": "metric-store"}),
	}
}

func (s *Store) FetchMetrics(ctx context.Context, tickers []string) ([]models.MetricRecord, error) {
	normalized := normalizeTickers(tickers)
	if len(normalized) == 0 {
		return nil, nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, metricsQuery, pq.Array(normalized), s.config.MaxRecords)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	defer rows.Close()

	var records []models.MetricRecord
	for rows.Next() {
		var rec models.MetricRecord
		var quarter sql.NullInt64
		if err := rows.Scan(&rec.Ticker, &rec.Metric, &rec.Value, &rec.Unit, &rec.FiscalYear, &quarter, &rec.Period); err != nil {
			return nil, fmt.Errorf("%w: scan metric row: %v", ErrQueryFailed, err)
		}
		if quarter.Valid {
			rec.FiscalQuarter = int(quarter.Int64)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}

	s.logger.Debug("metrics fetched", map[string]interface{}{
		"tickers": normalized,
		"records": len(records),
	})
	return records, nil
}

func (s *Store) FetchFacts(ctx context.Context, tickers []string) ([]models.FactRecord, error) {
	normalized := normalizeTickers(tickers)
	if len(normalized) == 0 {
		return nil, nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, factsQuery, pq.Array(normalized), s.config.MaxRecords)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	defer rows.Close()

	var records []models.FactRecord
	for rows.Next() {
		var rec models.FactRecord
		if err := rows.Scan(&rec.Ticker, &rec.Label, &rec.Value, &rec.AsOf); err != nil {
			return nil, fmt.Errorf("%w: scan fact row: %v", ErrQueryFailed, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}

	s.logger.Debug("facts fetched", map[string]interface{}{
		"tickers": normalized,
		"records": len(records),
	})
	return records, nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.config.Timeout)
}

func normalizeTickers(tickers []string) []string {
	normalized := make([]string, 0, len(tickers))
	seen := make(map[string]bool, len(tickers))
	for _, ticker := range tickers {
		cleaned := strings.ToUpper(strings.TrimSpace(ticker))
		if cleaned == "" || seen[cleaned] {
			continue
		}
		seen[cleaned] = true
		normalized = append(normalized, cleaned)
	}
	return normalized
}
