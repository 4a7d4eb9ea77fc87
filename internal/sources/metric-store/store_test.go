// internal/sources/metric-store/store_test.go
package metricstore

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finqa-retrieval/internal/common/logger"
)

const expectMetricsQuery = `SELECT ticker, metric, value, unit, fiscal_year, fiscal_quarter, period FROM financial_metrics WHERE ticker = ANY\(\$1\) ORDER BY ticker, fiscal_year DESC, fiscal_quarter DESC LIMIT \$2`

const expectFactsQuery = `SELECT ticker, label, value, as_of FROM company_facts WHERE ticker = ANY\(\$1\) ORDER BY ticker, as_of DESC LIMIT \$2`

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock, *sql.DB) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewStore(LoadConfig(), db, logger.NewTestLogger(t)), mock, db
}

func TestStore_FetchMetrics(t *testing.T) {
	store, mock, db := newTestStore(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{
		"ticker", "metric", "value", "unit", "fiscal_year", "fiscal_quarter", "period",
	}).
		AddRow("AAPL", "revenue", 383.29, "USD_B", 2023, nil, "FY2023").
		AddRow("AAPL", "revenue", 119.58, "USD_B", 2024, 1, "Q1 FY2024")

	mock.ExpectQuery(expectMetricsQuery).
		WithArgs(pq.Array([]string{"AAPL"}), 200).
		WillReturnRows(rows)

	records, err := store.FetchMetrics(context.Background(), []string{"AAPL"})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "AAPL", records[0].Ticker)
	assert.Equal(t, "revenue", records[0].Metric)
	assert.InDelta(t, 383.29, records[0].Value, 1e-9)
	assert.Equal(t, 2023, records[0].FiscalYear)
	assert.Zero(t, records[0].FiscalQuarter) // annual row carries NULL quarter
	assert.Equal(t, "FY2023", records[0].Period)

	assert.Equal(t, 1, records[1].FiscalQuarter)
	assert.Equal(t, "Q1 FY2024", records[1].Period)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_FetchMetrics_NormalizesTickers(t *testing.T) {
	store, mock, db := newTestStore(t)
	defer db.Close()

	mock.ExpectQuery(expectMetricsQuery).
		WithArgs(pq.Array([]string{"AAPL", "MSFT"}), 200).
		WillReturnRows(sqlmock.NewRows([]string{
			"ticker", "metric", "value", "unit", "fiscal_year", "fiscal_quarter", "period",
		}))

	records, err := store.FetchMetrics(context.Background(), []string{" aapl ", "", "MSFT", "aapl"})
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_FetchMetrics_NoTickersSkipsQuery(t *testing.T) {
	store, mock, db := newTestStore(t)
	defer db.Close()

	records, err := store.FetchMetrics(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_FetchMetrics_QueryError(t *testing.T) {
	store, mock, db := newTestStore(t)
	defer db.Close()

	mock.ExpectQuery(expectMetricsQuery).
		WithArgs(pq.Array([]string{"AAPL"}), 200).
		WillReturnError(errors.New("connection reset"))

	_, err := store.FetchMetrics(context.Background(), []string{"AAPL"})
	assert.ErrorIs(t, err, ErrQueryFailed)
}

func TestStore_FetchFacts(t *testing.T) {
	store, mock, db := newTestStore(t)
	defer db.Close()

	asOf := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"ticker", "label", "value", "as_of"}).
		AddRow("AAPL", "headquarters", "Cupertino, CA", asOf).
		AddRow("AAPL", "ceo", "Tim Cook", asOf)

	mock.ExpectQuery(expectFactsQuery).
		WithArgs(pq.Array([]string{"AAPL"}), 200).
		WillReturnRows(rows)

	records, err := store.FetchFacts(context.Background(), []string{"AAPL"})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "headquarters", records[0].Label)
	assert.Equal(t, "Cupertino, CA", records[0].Value)
	assert.True(t, records[0].AsOf.Equal(asOf))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_FetchFacts_ScanError(t *testing.T) {
	store, mock, db := newTestStore(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"ticker", "label", "value", "as_of"}).
		AddRow("AAPL", "headquarters", "Cupertino, CA", "not-a-time")

	mock.ExpectQuery(expectFactsQuery).
		WithArgs(pq.Array([]string{"AAPL"}), 200).
		WillReturnRows(rows)

	_, err := store.FetchFacts(context.Background(), []string{"AAPL"})
	assert.ErrorIs(t, err, ErrQueryFailed)
}
