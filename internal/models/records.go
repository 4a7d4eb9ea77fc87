// internal/models/records.go
package models

import "time"

// MetricRecord is one deterministic financial figure from the metric store.
type MetricRecord struct {
	Ticker        string  `json:"ticker"`
	Metric        string  `json:"metric"`
	Value         float64 `json:"value"`
	Unit          string  `json:"unit"`
	FiscalYear    int     `json:"fiscalYear"`
	FiscalQuarter int     `json:"fiscalQuarter,omitempty"` // 0 means full year
	Period        string  `json:"period"`
}

// FactRecord is one qualitative company fact from the metric store.
type FactRecord struct {
	Ticker string    `json:"ticker"`
	Label  string    `json:"label"`
	Value  string    `json:"value"`
	AsOf   time.Time `json:"asOf"`
}
