package interview

import (
	"context"
	"time"

	"github.com/harunnryd/interviewer/pkg/metrics"
)

type idleAction int

const (
	idleWait idleAction = iota
	idleReaskQ1
	idleNudgeQ1
	idleNudgeQ2
	idleBothAnswered
)

// runIdleWatchdog ticks until ctx is cancelled or a tick reports the stage is over.
func (a *Agent) runIdleWatchdog(ctx context.Context) {
	ticker := time.NewTicker(a.timing.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if done := a.idleTick(ctx); done {
			a.log.Debug("idle_watchdog_stopped")
			return
		}
	}
}

// idleTick runs one watchdog step and reports whether the watchdog should stop.
//
// silenceSince measures genuinely unanswered time and drives the re-ask;
// lastNudgeAt only throttles nudges, so a nudge never postpones the re-ask.
func (a *Agent) idleTick(ctx context.Context) bool {
	now := a.now()

	a.mu.Lock()
	if a.transitioning || !a.holdsLock {
		a.mu.Unlock()
		return true
	}
	if a.agentBusy || a.processing {
		a.silenceSince = now
		a.lastNudgeAt = now
		a.mu.Unlock()
		return false
	}
	silentFor := now.Sub(a.silenceSince)
	sinceNudge := silentFor
	if !a.lastNudgeAt.IsZero() {
		sinceNudge = now.Sub(a.lastNudgeAt)
	}
	q1, q2 := a.q1Answered, a.q2Answered
	action := idleWait
	switch {
	case !q1:
		if silentFor >= a.timing.Q1SkipTimeout {
			action = idleReaskQ1
		} else if silentFor >= a.timing.IdleTimeout && sinceNudge >= a.timing.IdleTimeout {
			action = idleNudgeQ1
		}
	case !q2:
		if silentFor >= a.timing.IdleTimeout && sinceNudge >= a.timing.IdleTimeout {
			action = idleNudgeQ2
		}
	default:
		if silentFor >= a.timing.IdleTimeout {
			action = idleBothAnswered
		}
	}
	a.mu.Unlock()

	a.log.Debug("idle_tick",
		"silent_s", elapsedSeconds(silentFor),
		"since_nudge_s", elapsedSeconds(sinceNudge),
		"q1", q1,
		"q2", q2,
	)

	switch action {
	case idleReaskQ1:
		a.log.Info("q1_reask", "silent_s", elapsedSeconds(silentFor))
		a.record(metrics.EventReask, map[string]any{"silent_s": elapsedSeconds(silentFor)})
		_ = a.say(ctx, a.script.ReaskQ1, true)
		a.mu.Lock()
		a.silenceSince = a.now()
		a.lastNudgeAt = a.silenceSince
		a.mu.Unlock()
	case idleNudgeQ1, idleNudgeQ2:
		line, question := a.script.NudgeQ1, "q1"
		if action == idleNudgeQ2 {
			line, question = a.script.NudgeQ2, "q2"
		}
		a.log.Info("nudge", "question", question, "silent_s", elapsedSeconds(silentFor))
		a.record(metrics.EventNudge, map[string]any{"question": question})
		_ = a.say(ctx, line, true)
		// A nudge is not an answer: the silence clock keeps running.
		a.mu.Lock()
		a.lastNudgeAt = a.now()
		a.mu.Unlock()
	case idleBothAnswered:
		a.log.Info("both_answered_idle", "silent_s", elapsedSeconds(silentFor))
		a.runHook("on_both_answered_idle", func() { a.stage.OnBothAnsweredIdle(a.context(), a) })
		a.mu.Lock()
		if !a.transitioning {
			a.silenceSince = a.now()
		}
		a.mu.Unlock()
	}
	return false
}
