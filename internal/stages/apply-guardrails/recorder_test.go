// internal/stages/apply-guardrails/recorder_test.go
package applyguardrails

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_RingOverwritesOldest(t *testing.T) {
	recorder := NewRecorder(3)

	for i := 1; i <= 5; i++ {
		recorder.LogRetrieval(RetrievalRecord{
			Intent:    fmt.Sprintf("r%d", i),
			TotalDocs: i,
		})
	}

	snapshot := recorder.Snapshot()
	require.Len(t, snapshot, 3)
	assert.Equal(t, "r3", snapshot[0].Intent)
	assert.Equal(t, "r4", snapshot[1].Intent)
	assert.Equal(t, "r5", snapshot[2].Intent)

	stats := recorder.SummaryStats()
	assert.Equal(t, int64(5), stats.TotalRecorded)
	assert.Equal(t, 3, stats.WindowSize)
}

func TestRecorder_SummaryStats(t *testing.T) {
	recorder := NewRecorder(10)

	recorder.LogRetrieval(RetrievalRecord{Intent: "a", TotalDocs: 4, OverallConfidence: 0.8, ElapsedMs: 100})
	recorder.LogRetrieval(RetrievalRecord{Intent: "b", TotalDocs: 0, OverallConfidence: 0.1, ElapsedMs: 300})
	recorder.LogRetrieval(RetrievalRecord{Intent: "c", TotalDocs: 2, OverallConfidence: 0.5, ElapsedMs: 200})

	stats := recorder.SummaryStats()
	assert.Equal(t, 3, stats.WindowSize)
	assert.InDelta(t, 2.0, stats.AvgDocs, 1e-9)
	assert.InDelta(t, (0.8+0.1+0.5)/3, stats.AvgConfidence, 1e-9)
	assert.InDelta(t, 200.0, stats.AvgElapsedMs, 1e-9)

	// One of three is empty; one of three sits below the 0.4 floor.
	assert.InDelta(t, 1.0/3.0, stats.EmptyRate, 1e-9)
	assert.InDelta(t, 1.0/3.0, stats.LowScoreRate, 1e-9)
}

func TestRecorder_EmptyWindow(t *testing.T) {
	recorder := NewRecorder(4)

	stats := recorder.SummaryStats()
	assert.Zero(t, stats.WindowSize)
	assert.Zero(t, stats.AvgDocs)
	assert.Empty(t, recorder.Snapshot())
}

func TestRecorder_ConcurrentAppends(t *testing.T) {
	recorder := NewRecorder(64)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				recorder.LogRetrieval(RetrievalRecord{Intent: "load", TotalDocs: 1, OverallConfidence: 0.9})
			}
		}()
	}
	wg.Wait()

	stats := recorder.SummaryStats()
	assert.Equal(t, int64(400), stats.TotalRecorded)
	assert.Equal(t, 64, stats.WindowSize)
	assert.Len(t, recorder.Snapshot(), 64)
}
