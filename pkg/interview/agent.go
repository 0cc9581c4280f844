package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harunnryd/interviewer/pkg/errorsx"
	"github.com/harunnryd/interviewer/pkg/logging"
	"github.com/harunnryd/interviewer/pkg/metrics"
	"github.com/harunnryd/interviewer/pkg/redact"
	"github.com/harunnryd/interviewer/pkg/turn"
)

// Stage supplies the per-stage reactions of an Agent.
// Hooks are called with the agent's session context, never while the agent mutex is held.
type Stage interface {
	OnQ2Answered(ctx context.Context, a *Agent)
	OnBothAnsweredIdle(ctx context.Context, a *Agent)
	OnStageTimeout(ctx context.Context, a *Agent)
}

// EnterHook is implemented by stages that act once the enter sequence completed.
type EnterHook interface {
	OnEntered(ctx context.Context, a *Agent)
}

// Transitioner receives control when an agent hands off or finishes the interview.
type Transitioner interface {
	Advance(ctx context.Context, from *Agent) error
	Complete(from *Agent)
}

type AgentOptions struct {
	Timing   Timing
	Logger   *slog.Logger
	Observer metrics.Observer
	Clock    func() time.Time
	Next     Transitioner
}

// Agent drives one interview stage: it owns the answer state, the busy flags
// and the two watchdogs, and holds the SessionLock while active.
type Agent struct {
	id      string
	script  Script
	stage   Stage
	session Session
	timing  Timing
	next    Transitioner
	log     *slog.Logger
	obs     metrics.Observer
	now     func() time.Time
	phase   *turn.Tracker

	mu            sync.Mutex
	q1Answered    bool
	q2Answered    bool
	processing    bool
	agentBusy     bool
	transitioning bool
	holdsLock     bool
	exited        bool
	silenceSince  time.Time
	lastNudgeAt   time.Time
	publisher     Publisher
	baseCtx       context.Context
	stopWatchdogs context.CancelFunc

	watchdogs sync.WaitGroup
}

func NewAgent(script Script, stage Stage, session Session, opts AgentOptions) (*Agent, error) {
	if err := script.Validate(); err != nil {
		return nil, err
	}
	if stage == nil {
		return nil, errors.New("stage reactions are required")
	}
	if err := session.validate(); err != nil {
		return nil, err
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	obs := opts.Observer
	if obs == nil {
		obs = metrics.NoopObserver{}
	}
	id := uuid.NewString()
	a := &Agent{
		id:      id,
		script:  script,
		stage:   stage,
		session: session,
		timing:  opts.Timing.normalize(),
		next:    opts.Next,
		log: logging.NewComponentLogger(opts.Logger, "stage_agent").With(
			slog.String("stage", script.Stage),
			slog.String("agent_id", id),
		),
		obs: obs,
		now: clock,
	}
	a.phase = turn.NewTracker(turn.PhaseListenerFunc(a.onPhaseChange))
	a.silenceSince = clock()
	return a, nil
}

func (a *Agent) ID() string           { return a.id }
func (a *Agent) Script() Script       { return a.script }
func (a *Agent) Phase() turn.Phase    { return a.phase.Phase() }
func (a *Agent) Logger() *slog.Logger { return a.log }

// HoldsLock reports whether this agent currently owns the SessionLock.
func (a *Agent) HoldsLock() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.holdsLock
}

// Transitioning reports whether a handoff or close has begun.
func (a *Agent) Transitioning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.transitioning
}

// Answered reports which of the two questions have been answered.
func (a *Agent) Answered() (q1, q2 bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.q1Answered, a.q2Answered
}

// Processing reports whether a turn is being handled right now.
func (a *Agent) Processing() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.processing
}

// Wait blocks until both watchdogs returned. Never call it from a hook.
func (a *Agent) Wait() {
	a.watchdogs.Wait()
}

// OnEnter acquires the SessionLock, speaks the greeting and starts the watchdogs.
// The only error is a failed lock acquisition, which callers treat as fatal.
func (a *Agent) OnEnter(ctx context.Context) error {
	if a.HoldsLock() {
		a.log.Warn("enter_ignored", "reason", "already holding lock")
		return nil
	}

	a.log.Info("stage_entering")
	if err := a.session.Lock.Acquire(ctx); err != nil {
		a.log.Error("lock_acquire_failed", "reason", errorsx.Reason(err), "error", err)
		return err
	}

	watchCtx, stop := context.WithCancel(ctx)
	a.mu.Lock()
	if a.exited {
		a.mu.Unlock()
		stop()
		a.session.Lock.Release()
		a.log.Info("enter_abandoned", "reason", "exited while waiting for lock")
		return nil
	}
	a.holdsLock = true
	a.baseCtx = ctx
	a.stopWatchdogs = stop
	a.mu.Unlock()
	a.log.Info("lock_acquired")
	a.advancePhase(turn.PhaseAwaitingQ1, "lock acquired")

	if pub, err := a.session.participant(); err != nil {
		err = errorsx.Wrap(err, errorsx.ReasonPublisherUnavailable)
		a.log.Error("publisher_unavailable", "reason", errorsx.Reason(err), "error", err)
	} else {
		a.mu.Lock()
		a.publisher = pub
		a.mu.Unlock()
	}

	_ = a.say(ctx, a.script.Greeting, false)

	a.mu.Lock()
	a.silenceSince = a.now()
	start := watchCtx.Err() == nil && a.holdsLock && !a.transitioning
	a.mu.Unlock()
	if !start {
		a.log.Info("watchdogs_not_started", "reason", "stage ended during greeting")
		return nil
	}
	a.log.Info("silence_clock_started")

	a.goWatchdog("idle", func() { a.runIdleWatchdog(watchCtx) })
	a.goWatchdog("stage_timeout", func() { a.runStageTimeout(watchCtx) })
	a.record(metrics.EventStageEntered, nil)

	if hook, ok := a.stage.(EnterHook); ok {
		a.runHook("on_entered", func() { hook.OnEntered(ctx, a) })
	}
	return nil
}

// OnExit cancels the watchdogs and releases the lock if this agent holds it.
// Safe to call repeatedly and before OnEnter finished.
func (a *Agent) OnExit() {
	a.mu.Lock()
	a.exited = true
	stop := a.stopWatchdogs
	release := a.holdsLock
	a.holdsLock = false
	a.mu.Unlock()

	if stop != nil {
		stop()
	}
	if release {
		a.session.Lock.Release()
		a.log.Info("lock_released", "via", "on_exit")
	}
	a.advancePhase(turn.PhaseClosed, "exit")
}

// OnAgentSpeechStarted marks the agent busy; the idle watchdog pauses while busy.
func (a *Agent) OnAgentSpeechStarted() {
	a.mu.Lock()
	a.agentBusy = true
	a.mu.Unlock()
	a.log.Debug("agent_speech_started")
}

// OnAgentSpeechEnded clears the busy flag. The silence clock is left alone.
func (a *Agent) OnAgentSpeechEnded() {
	a.mu.Lock()
	a.agentBusy = false
	a.mu.Unlock()
	a.log.Debug("agent_speech_ended")
}

type answerStep int

const (
	answerNone answerStep = iota
	answerQ1
	answerQ2
)

// OnUserTurnCompleted handles one completed participant utterance.
// Turns arriving while another is handled are dropped, not queued.
func (a *Agent) OnUserTurnCompleted(ctx context.Context, transcript string) {
	a.mu.Lock()
	if !a.holdsLock || a.transitioning || a.processing {
		holds, transitioning, processing := a.holdsLock, a.transitioning, a.processing
		a.mu.Unlock()
		a.log.Info("turn_ignored",
			"holds_lock", holds,
			"transitioning", transitioning,
			"processing", processing,
		)
		a.record(metrics.EventTurnIgnored, nil)
		return
	}
	a.processing = true
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.processing = false
		a.mu.Unlock()
	}()
	defer a.recoverPanic("turn_handler")

	words := WordCount(transcript)
	a.log.Info("turn_received", "words", words, "transcript", redact.Preview(transcript, 160))

	a.mu.Lock()
	a.silenceSince = a.now()
	if words < a.timing.MinAnswerWords {
		a.mu.Unlock()
		a.log.Info("turn_too_short", "min_words", a.timing.MinAnswerWords)
		a.record(metrics.EventTurnNoise, map[string]any{"words": words})
		return
	}
	if a.transitioning {
		a.mu.Unlock()
		return
	}
	step := answerNone
	switch {
	case !a.q1Answered:
		a.q1Answered = true
		step = answerQ1
	case !a.q2Answered:
		a.q2Answered = true
		step = answerQ2
	}
	a.mu.Unlock()

	switch step {
	case answerQ1:
		a.log.Info("q1_answered")
		a.record(metrics.EventTurnAccepted, map[string]any{"question": "q1", "words": words})
		a.advancePhase(turn.PhaseAwaitingQ2, "q1 answered")
		_ = a.say(ctx, a.script.AckQ1, false)
		// AckQ1 poses Q2, so the wait for Q2 starts after it was spoken.
		a.mu.Lock()
		a.silenceSince = a.now()
		a.mu.Unlock()
		a.log.Info("q2_asked")
	case answerQ2:
		a.log.Info("q2_answered")
		a.record(metrics.EventTurnAccepted, map[string]any{"question": "q2", "words": words})
		a.advancePhase(turn.PhaseBothAnswered, "q2 answered")
		a.runHook("on_q2_answered", func() { a.stage.OnQ2Answered(a.context(), a) })
	default:
		a.log.Info("turn_after_both_answered")
	}
}

// Say speaks a line through the session speaker. Stage hooks use it for custom lines.
func (a *Agent) Say(ctx context.Context, line string, interruptible bool) error {
	return a.say(ctx, line, interruptible)
}

func (a *Agent) say(ctx context.Context, line string, interruptible bool) error {
	a.log.Info("line_speaking", "interruptible", interruptible, "line", redact.Preview(line, 60))
	if err := a.session.Speaker.Say(ctx, line, interruptible); err != nil {
		err = errorsx.Wrap(fmt.Errorf("say line: %w", err), errorsx.ReasonSpeak)
		if ctx.Err() != nil {
			a.log.Info("line_cancelled", "error", err)
		} else {
			a.log.Warn("line_failed", "reason", errorsx.Reason(err), "error", err)
		}
		return err
	}
	return nil
}

// Handoff ends this stage and passes control to the next one.
// Only the first terminal action of an agent takes effect.
func (a *Agent) Handoff() {
	if !a.beginTransition("handoff") {
		return
	}
	a.record(metrics.EventHandoff, nil)
	a.releaseLock("handoff")
	if a.next == nil {
		a.log.Warn("handoff_without_coordinator")
		return
	}
	if err := a.next.Advance(a.context(), a); err != nil {
		a.log.Error("handoff_failed", "reason", errorsx.Reason(err), "error", err)
	}
}

// Close ends the interview: speaks the closing line and publishes interview_complete.
// The lock stays held until OnExit.
func (a *Agent) Close(line string) {
	if !a.beginTransition("close") {
		return
	}
	ctx := a.context()
	a.record(metrics.EventClose, map[string]any{"line": redact.Preview(line, 60)})
	_ = a.say(ctx, line, false)
	a.publish(ctx, Event{Event: EventInterviewComplete})
	if a.next != nil {
		a.next.Complete(a)
	}
}

// PublishStageChanged tells the participant which stage is now running.
func (a *Agent) PublishStageChanged(ctx context.Context) {
	a.publish(ctx, Event{Event: EventStageChanged, Stage: a.script.Stage})
}

func (a *Agent) beginTransition(kind string) bool {
	a.mu.Lock()
	if a.transitioning {
		a.mu.Unlock()
		a.log.Info("transition_skipped", "kind", kind, "reason", "already transitioning")
		return false
	}
	a.transitioning = true
	stop := a.stopWatchdogs
	a.mu.Unlock()

	if stop != nil {
		stop()
	}
	a.log.Info("transition_started", "kind", kind)
	a.advancePhase(turn.PhaseTransitioning, kind)
	return true
}

func (a *Agent) releaseLock(via string) {
	a.mu.Lock()
	release := a.holdsLock
	a.holdsLock = false
	a.mu.Unlock()
	if release {
		a.session.Lock.Release()
		a.log.Info("lock_released", "via", via)
	}
}

func (a *Agent) context() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.baseCtx == nil {
		return context.Background()
	}
	return a.baseCtx
}

func (a *Agent) advancePhase(to turn.Phase, reason string) {
	if err := a.phase.Transition(to, reason); err != nil {
		a.log.Debug("phase_unchanged", "to", to.String(), "error", err)
	}
}

func (a *Agent) onPhaseChange(ev turn.PhaseChange) {
	a.record(metrics.EventPhaseChange, map[string]any{
		"from":   ev.From.String(),
		"to":     ev.To.String(),
		"reason": ev.Reason,
	})
}

func (a *Agent) goWatchdog(name string, fn func()) {
	a.watchdogs.Add(1)
	go func() {
		defer a.watchdogs.Done()
		defer a.recoverPanic(name + "_watchdog")
		fn()
	}()
}

func (a *Agent) runHook(name string, fn func()) {
	defer a.recoverPanic(name)
	fn()
}

func (a *Agent) recoverPanic(task string) {
	if r := recover(); r != nil {
		err := errorsx.New(errorsx.ReasonHookPanic, "%s panicked: %v", task, r)
		a.log.Error("task_panic", "task", task, "reason", errorsx.Reason(err), "error", err)
	}
}
