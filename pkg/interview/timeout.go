package interview

import (
	"context"
	"time"

	"github.com/harunnryd/interviewer/pkg/metrics"
)

// runStageTimeout fires the stage timeout hook once Script.Timeout elapsed,
// independent of answer progress.
func (a *Agent) runStageTimeout(ctx context.Context) {
	timer := time.NewTimer(a.script.Timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	a.mu.Lock()
	fire := !a.transitioning && a.holdsLock
	a.mu.Unlock()
	if !fire {
		return
	}
	a.log.Info("stage_timeout", "timeout", a.script.Timeout.String())
	a.record(metrics.EventStageTimeout, nil)
	a.runHook("on_stage_timeout", func() { a.stage.OnStageTimeout(a.context(), a) })
}
