package interview

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harunnryd/interviewer/pkg/errorsx"
	"github.com/harunnryd/interviewer/pkg/logging"
	"github.com/harunnryd/interviewer/pkg/metrics"
	"github.com/harunnryd/interviewer/pkg/turn"
)

func TestAgentEnterSpeaksGreetingAndHoldsLock(t *testing.T) {
	h := newHarness(t, longScript(IntroScript()), IntroStage{}, manualTiming())
	h.enter(t)

	lines := h.speaker.Lines()
	if len(lines) != 1 || lines[0].text != IntroScript().Greeting {
		t.Fatalf("expected greeting only, got %+v", lines)
	}
	if lines[0].interruptible {
		t.Fatalf("greeting must not be interruptible")
	}
	if !h.agent.HoldsLock() || !h.lock.Held() {
		t.Fatalf("expected agent to hold the session lock")
	}
	if h.agent.Phase() != turn.PhaseAwaitingQ1 {
		t.Fatalf("expected AWAITING_Q1, got %s", h.agent.Phase())
	}
	if h.obs.Count(metrics.EventStageEntered) != 1 {
		t.Fatalf("expected one stage_entered event")
	}
}

func TestAgentDoubleEnterDoesNotDeadlockOrReacquire(t *testing.T) {
	h := newHarness(t, longScript(IntroScript()), IntroStage{}, manualTiming())
	h.enter(t)

	done := make(chan error, 1)
	go func() { done <- h.agent.OnEnter(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("second enter: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("second OnEnter blocked")
	}
	if got := h.speaker.Count(IntroScript().Greeting); got != 1 {
		t.Fatalf("expected greeting once, got %d", got)
	}

	h.agent.OnExit()
	if h.lock.Held() {
		t.Fatalf("expected lock released after exit")
	}
	if !h.lock.TryAcquire() {
		t.Fatalf("expected lock to be free")
	}
	// A second exit must not release a lock owned by someone else.
	h.agent.OnExit()
	if !h.lock.Held() {
		t.Fatalf("second OnExit released a foreign lock")
	}
	h.lock.Release()
}

func TestAgentEnterWaitsForLock(t *testing.T) {
	h := newHarness(t, longScript(IntroScript()), IntroStage{}, manualTiming())
	if !h.lock.TryAcquire() {
		t.Fatalf("expected free lock")
	}

	done := make(chan error, 1)
	go func() { done <- h.agent.OnEnter(context.Background()) }()
	time.Sleep(30 * time.Millisecond)
	if len(h.speaker.Lines()) != 0 {
		t.Fatalf("greeting spoken before lock was free")
	}
	h.lock.Release()
	if err := <-done; err != nil {
		t.Fatalf("enter: %v", err)
	}
	if h.speaker.Count(IntroScript().Greeting) != 1 {
		t.Fatalf("expected greeting after lock release")
	}
}

func TestAgentEnterFailsWhenContextEnds(t *testing.T) {
	h := newHarness(t, longScript(IntroScript()), IntroStage{}, manualTiming())
	h.lock.TryAcquire()
	defer h.lock.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := h.agent.OnEnter(ctx)
	if !errorsx.HasReason(err, errorsx.ReasonLockAcquire) {
		t.Fatalf("expected lock_acquire error, got %v", err)
	}
	if h.agent.HoldsLock() {
		t.Fatalf("agent must not hold the lock")
	}
}

func TestAgentExitWhileWaitingForLock(t *testing.T) {
	h := newHarness(t, longScript(IntroScript()), IntroStage{}, manualTiming())
	h.lock.TryAcquire()

	done := make(chan error, 1)
	go func() { done <- h.agent.OnEnter(context.Background()) }()
	time.Sleep(10 * time.Millisecond)
	h.agent.OnExit()
	h.lock.Release()

	if err := <-done; err != nil {
		t.Fatalf("enter: %v", err)
	}
	if h.lock.Held() || h.agent.HoldsLock() {
		t.Fatalf("abandoned enter must give the lock back")
	}
	if len(h.speaker.Lines()) != 0 {
		t.Fatalf("abandoned enter must not speak")
	}
}

func TestAgentIgnoresShortTranscripts(t *testing.T) {
	h := newHarness(t, longScript(IntroScript()), IntroStage{}, manualTiming())
	h.enter(t)

	for _, transcript := range []string{"um", "   ", ""} {
		h.agent.OnUserTurnCompleted(context.Background(), transcript)
	}
	if q1, q2 := h.agent.Answered(); q1 || q2 {
		t.Fatalf("short transcripts must not answer questions")
	}
	if got := len(h.speaker.Lines()); got != 1 {
		t.Fatalf("short transcripts must not speak, got %d lines", got)
	}
	if got := h.obs.Count(metrics.EventTurnNoise); got != 3 {
		t.Fatalf("expected 3 noise events, got %d", got)
	}
}

func TestAgentIgnoresTurnsWithoutLock(t *testing.T) {
	h := newHarness(t, longScript(IntroScript()), IntroStage{}, manualTiming())
	h.agent.OnUserTurnCompleted(context.Background(), "hello there friend")
	if q1, _ := h.agent.Answered(); q1 {
		t.Fatalf("turn before enter must be ignored")
	}
	if h.obs.Count(metrics.EventTurnIgnored) != 1 {
		t.Fatalf("expected turn_ignored event")
	}
}

func TestAgentFirstAnswerAcknowledgesAndResetsSilence(t *testing.T) {
	script := longScript(IntroScript())
	h := newHarness(t, script, IntroStage{}, manualTiming())
	h.enter(t)

	h.clock.Advance(7 * time.Second)
	var atAck time.Time
	h.speaker.onSay = func(line string) {
		if line != script.AckQ1 {
			return
		}
		h.agent.mu.Lock()
		atAck = h.agent.silenceSince
		h.agent.mu.Unlock()
		h.clock.Advance(4 * time.Second)
	}
	accepted := h.clock.Now()

	h.agent.OnUserTurnCompleted(context.Background(), "My name is Alex and I want to practice")

	if q1, q2 := h.agent.Answered(); !q1 || q2 {
		t.Fatalf("expected only Q1 answered, got q1=%v q2=%v", q1, q2)
	}
	lines := h.speaker.Lines()
	if len(lines) != 2 || lines[1].text != script.AckQ1 || lines[1].interruptible {
		t.Fatalf("expected non-interruptible ackQ1, got %+v", lines)
	}
	if !atAck.Equal(accepted) {
		t.Fatalf("silence clock not reset on accept: %v != %v", atAck, accepted)
	}
	h.agent.mu.Lock()
	after := h.agent.silenceSince
	h.agent.mu.Unlock()
	if !after.Equal(h.clock.Now()) {
		t.Fatalf("silence clock not reset after ack: %v != %v", after, h.clock.Now())
	}
	if h.agent.Phase() != turn.PhaseAwaitingQ2 {
		t.Fatalf("expected AWAITING_Q2, got %s", h.agent.Phase())
	}
}

func TestAgentDefaultReactionAcknowledgesQ2(t *testing.T) {
	script := longScript(IntroScript())
	h := newHarness(t, script, Reactions{}, manualTiming())
	h.enter(t)

	h.agent.OnUserTurnCompleted(context.Background(), "first answer here")
	h.agent.OnUserTurnCompleted(context.Background(), "second answer here")

	if q1, q2 := h.agent.Answered(); !q1 || !q2 {
		t.Fatalf("expected both answered")
	}
	if h.speaker.Count(script.AckQ2) != 1 {
		t.Fatalf("expected ackQ2 once, got %+v", h.speaker.Lines())
	}
	if h.agent.Transitioning() {
		t.Fatalf("default reactions must not transition")
	}
}

func TestAgentNoEffectsAfterTransition(t *testing.T) {
	script := longScript(IntroScript())
	h := newHarness(t, script, IntroStage{}, manualTiming())
	h.enter(t)

	h.agent.Handoff()
	h.agent.Handoff()
	IntroStage{}.OnStageTimeout(context.Background(), h.agent)

	if advances, _ := h.next.Counts(); advances != 1 {
		t.Fatalf("expected one advance, got %d", advances)
	}
	if h.obs.Count(metrics.EventHandoff) != 1 {
		t.Fatalf("expected one handoff event")
	}
	before := len(h.speaker.Lines())

	h.agent.OnUserTurnCompleted(context.Background(), "a late answer arrives")
	h.clock.Advance(time.Minute)
	if stop := h.agent.idleTick(context.Background()); !stop {
		t.Fatalf("idle tick must stop once transitioning")
	}
	if got := len(h.speaker.Lines()); got != before {
		t.Fatalf("no line may be spoken after transition, got %d new", got-before)
	}
	if q1, _ := h.agent.Answered(); q1 {
		t.Fatalf("turns after transition must not answer")
	}
	if h.lock.Held() {
		t.Fatalf("handoff must release the lock")
	}
}

type panickingStage struct {
	Reactions
}

func (panickingStage) OnQ2Answered(context.Context, *Agent) { panic("boom") }

func TestAgentRecoversHookPanic(t *testing.T) {
	h := newHarness(t, longScript(IntroScript()), panickingStage{}, manualTiming())
	h.enter(t)

	h.agent.OnUserTurnCompleted(context.Background(), "first answer here")
	h.agent.OnUserTurnCompleted(context.Background(), "second answer here")
	h.agent.OnUserTurnCompleted(context.Background(), "third answer here")

	if h.obs.Count(metrics.EventTurnIgnored) != 0 {
		t.Fatalf("processing flag leaked after panic")
	}
	if q1, q2 := h.agent.Answered(); !q1 || !q2 {
		t.Fatalf("answers lost after panic")
	}
}

func TestAgentPublishFailureIsRecorded(t *testing.T) {
	h := newHarness(t, longScript(ExperienceScript()), ExperienceStage{Closing: DefaultClosingLines()}, manualTiming())
	h.pub.err = errors.New("data channel closed")
	h.enter(t)

	if h.obs.Count(metrics.EventPublishFailed) != 1 {
		t.Fatalf("expected publish_failed event")
	}
	if !h.agent.HoldsLock() {
		t.Fatalf("publish failure must not affect the stage")
	}
}

func TestAgentWithoutRoomStillRuns(t *testing.T) {
	speaker := &captureSpeaker{}
	lock := NewSessionLock()
	agent, err := NewAgent(longScript(ExperienceScript()), ExperienceStage{Closing: DefaultClosingLines()},
		Session{Speaker: speaker, Lock: lock},
		AgentOptions{Timing: manualTiming(), Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("new agent: %v", err)
	}
	defer agent.OnExit()

	if err := agent.OnEnter(context.Background()); err != nil {
		t.Fatalf("enter: %v", err)
	}
	agent.OnUserTurnCompleted(context.Background(), "I ran a shop")
	agent.OnUserTurnCompleted(context.Background(), "A hard winter season")
	if speaker.Count(DefaultClosingLines().Answered) != 1 {
		t.Fatalf("expected closing line without a room, got %+v", speaker.Lines())
	}
}

func TestNewAgentValidates(t *testing.T) {
	session := Session{Speaker: &captureSpeaker{}, Lock: NewSessionLock()}
	bad := IntroScript()
	bad.ReaskQ1 = ""
	if _, err := NewAgent(bad, IntroStage{}, session, AgentOptions{}); !errorsx.HasReason(err, errorsx.ReasonConfigInvalid) {
		t.Fatalf("expected config_invalid, got %v", err)
	}
	if _, err := NewAgent(IntroScript(), nil, session, AgentOptions{}); err == nil {
		t.Fatalf("expected error for missing stage")
	}
	if _, err := NewAgent(IntroScript(), IntroStage{}, Session{Speaker: &captureSpeaker{}}, AgentOptions{}); err == nil {
		t.Fatalf("expected error for missing lock")
	}
}

func TestAgentStageTimeoutHandsOff(t *testing.T) {
	script := IntroScript()
	script.Timeout = 30 * time.Millisecond
	h := newHarness(t, script, IntroStage{}, manualTiming())
	h.enter(t)

	eventually(t, "stage timeout handoff", func() bool {
		advances, _ := h.next.Counts()
		return advances == 1
	})
	if h.obs.Count(metrics.EventStageTimeout) != 1 {
		t.Fatalf("expected one stage_timeout event")
	}
	h.agent.Wait()
}

func TestAgentIdleWatchdogNudgesOnRealClock(t *testing.T) {
	script := longScript(IntroScript())
	timing := Timing{
		IdleTimeout:    20 * time.Millisecond,
		Q1SkipTimeout:  time.Hour,
		TickInterval:   5 * time.Millisecond,
		MinAnswerWords: 2,
	}
	h := newHarness(t, script, IntroStage{}, timing)
	h.agent.now = time.Now
	h.enter(t)

	eventually(t, "nudge", func() bool { return h.speaker.Count(script.NudgeQ1) >= 1 })
	h.agent.OnExit()
	h.agent.Wait()
	if h.speaker.Count(script.ReaskQ1) != 0 {
		t.Fatalf("re-ask must wait for the skip timeout")
	}
}
