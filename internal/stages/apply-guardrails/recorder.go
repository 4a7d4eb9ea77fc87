// internal/stages/apply-guardrails/recorder.go
package applyguardrails

import (
	"sync"
	"time"

	"finqa-retrieval/internal/common/metrics"
)

// defaultLowScoreBelow marks a retrieval as low-score when its overall
// confidence sits under the medium-confidence floor.
const defaultLowScoreBelow = 0.4

// RetrievalRecord is one append-only observation of a completed retrieval.
type RetrievalRecord struct {
	Timestamp         time.Time      `json:"timestamp"`
	Intent            string         `json:"intent"`
	TotalDocs         int            `json:"totalDocs"`
	SourceCounts      map[string]int `json:"sourceCounts,omitempty"`
	OverallConfidence float64        `json:"overallConfidence"`
	Degraded          []string       `json:"degraded,omitempty"`
	ElapsedMs         int64          `json:"elapsedMs"`
}

// SummaryStats aggregates the recorder's current window.
type SummaryStats struct {
	WindowSize    int     `json:"windowSize"`
	TotalRecorded int64   `json:"totalRecorded"`
	AvgDocs       float64 `json:"avgDocs"`
	AvgConfidence float64 `json:"avgConfidence"`
	AvgElapsedMs  float64 `json:"avgElapsedMs"`
	LowScoreRate  float64 `json:"lowScoreRate"`
	EmptyRate     float64 `json:"emptyRate"`
}

// Recorder keeps the last capacity retrieval records in a ring buffer. It
// replaces an unbounded in-memory log: appends from overlapping in-flight
// queries are serialized by the mutex and old entries are overwritten.
type Recorder struct {
	mu            sync.Mutex
	records       []RetrievalRecord
	next          int
	filled        bool
	total         int64
	lowScoreBelow float64
}

func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = 1
	}
	return &Recorder{
		records:       make([]RetrievalRecord, capacity),
		lowScoreBelow: defaultLowScoreBelow,
	}
}

// LogRetrieval appends one record and mirrors it into the prometheus
// collectors.
func (r *Recorder) LogRetrieval(rec RetrievalRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	r.mu.Lock()
	r.records[r.next] = rec
	r.next++
	if r.next == len(r.records) {
		r.next = 0
		r.filled = true
	}
	r.total++
	r.mu.Unlock()

	metrics.DocumentsReturned.WithLabelValues(rec.Intent).Observe(float64(rec.TotalDocs))
	metrics.OverallConfidence.WithLabelValues(rec.Intent).Observe(rec.OverallConfidence)
}

// Snapshot returns the window's records, oldest first.
func (r *Recorder) Snapshot() []RetrievalRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.filled {
		out := make([]RetrievalRecord, r.next)
		copy(out, r.records[:r.next])
		return out
	}

	out := make([]RetrievalRecord, 0, len(r.records))
	out = append(out, r.records[r.next:]...)
	out = append(out, r.records[:r.next]...)
	return out
}

// SummaryStats aggregates rolling averages and failure rates over the
// current window.
func (r *Recorder) SummaryStats() SummaryStats {
	r.mu.Lock()
	window := len(r.records)
	if !r.filled {
		window = r.next
	}
	stats := SummaryStats{WindowSize: window, TotalRecorded: r.total}
	if window == 0 {
		r.mu.Unlock()
		return stats
	}

	var docs, confidence, elapsed float64
	var lowScore, empty int
	for i := 0; i < window; i++ {
		rec := r.records[i]
		docs += float64(rec.TotalDocs)
		confidence += rec.OverallConfidence
		elapsed += float64(rec.ElapsedMs)
		if rec.OverallConfidence < r.lowScoreBelow {
			lowScore++
		}
		if rec.TotalDocs == 0 {
			empty++
		}
	}
	r.mu.Unlock()

	n := float64(window)
	stats.AvgDocs = docs / n
	stats.AvgConfidence = confidence / n
	stats.AvgElapsedMs = elapsed / n
	stats.LowScoreRate = float64(lowScore) / n
	stats.EmptyRate = float64(empty) / n
	return stats
}
