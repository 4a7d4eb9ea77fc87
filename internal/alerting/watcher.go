// internal/alerting/watcher.go
package alerting

import (
	"context"
	"time"

	applyguardrails "finqa-retrieval/internal/stages/apply-guardrails"
)

// Watch polls the recorder on the configured interval until the context is
// cancelled. It is the only caller of CheckAndAlert in production, keeping
// alert evaluation entirely off the request path.
func (a *Alerter) Watch(ctx context.Context, recorder *applyguardrails.Recorder) {
	interval := a.config.CheckInterval
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.logger.Info("quality watcher started", map[string]interface{}{
		"interval":      interval.String(),
		"minSampleSize": a.config.MinSampleSize,
	})

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("quality watcher stopped", nil)
			return
		case <-ticker.C:
			a.CheckAndAlert(ctx, recorder.SummaryStats())
		}
	}
}
