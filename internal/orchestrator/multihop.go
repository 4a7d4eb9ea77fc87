// internal/orchestrator/multihop.go
package orchestrator

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"finqa-retrieval/internal/models"
)

// runSteps schedules plan steps in dependency waves: every step whose
// dependencies have completed runs concurrently with its wave peers, then
// the next wave is computed. A step that fails still counts as completed
// so dependents are not starved; only context cancellation stops the run.
func (o *Orchestrator) runSteps(ctx context.Context, steps []models.QueryStep, policy models.RetrievalPolicy, result *models.RetrievalResult) (int, error) {
	if len(steps) == 0 {
		return 0, nil
	}

	var mu sync.Mutex
	done := make(map[int]bool, len(steps))
	pending := make([]models.QueryStep, len(steps))
	copy(pending, steps)

	stepsRun := 0
	for len(pending) > 0 {
		var wave []models.QueryStep
		var blocked []models.QueryStep
		for _, step := range pending {
			if dependenciesMet(step, done) {
				wave = append(wave, step)
			} else {
				blocked = append(blocked, step)
			}
		}

		if len(wave) == 0 {
			// Remaining steps reference steps that were never planned.
			o.logger.Warn("dropping steps with unmet dependencies", map[string]interface{}{
				"dropped": len(blocked),
			})
			break
		}

		g, waveCtx := errgroup.WithContext(ctx)
		for _, step := range wave {
			step := step
			g.Go(func() error {
				return o.runStep(waveCtx, step, policy, result, &mu)
			})
		}
		if err := g.Wait(); err != nil {
			return stepsRun, err
		}

		for _, step := range wave {
			done[step.StepNumber] = true
			stepsRun++
		}
		pending = blocked
	}

	return stepsRun, nil
}

func dependenciesMet(step models.QueryStep, done map[int]bool) bool {
	for _, dep := range step.DependsOn {
		if !done[dep] {
			return false
		}
	}
	return true
}
