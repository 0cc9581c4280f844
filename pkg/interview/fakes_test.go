package interview

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/harunnryd/interviewer/pkg/logging"
	"github.com/harunnryd/interviewer/pkg/metrics"
)

type spokenLine struct {
	text          string
	interruptible bool
}

type captureSpeaker struct {
	mu     sync.Mutex
	lines  []spokenLine
	onSay  func(line string)
	failOn string
}

func (s *captureSpeaker) Say(ctx context.Context, line string, interruptible bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.onSay != nil {
		s.onSay(line)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn != "" && line == s.failOn {
		return errors.New("speaker down")
	}
	s.lines = append(s.lines, spokenLine{text: line, interruptible: interruptible})
	return nil
}

func (s *captureSpeaker) Lines() []spokenLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]spokenLine(nil), s.lines...)
}

func (s *captureSpeaker) Count(line string) int {
	n := 0
	for _, l := range s.Lines() {
		if l.text == line {
			n++
		}
	}
	return n
}

type capturePublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, payload []byte) error {
	if p.err != nil {
		return p.err
	}
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return err
	}
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
	return nil
}

func (p *capturePublisher) Count(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ev := range p.events {
		if ev.Event == name {
			n++
		}
	}
	return n
}

func (p *capturePublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

type staticRoom struct {
	pub Publisher
	err error
}

func (r staticRoom) LocalParticipant() (Publisher, error) {
	return r.pub, r.err
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingNext struct {
	mu        sync.Mutex
	advances  int
	completes int
}

func (n *recordingNext) Advance(_ context.Context, from *Agent) error {
	n.mu.Lock()
	n.advances++
	n.mu.Unlock()
	from.OnExit()
	return nil
}

func (n *recordingNext) Complete(*Agent) {
	n.mu.Lock()
	n.completes++
	n.mu.Unlock()
}

func (n *recordingNext) Counts() (advances, completes int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.advances, n.completes
}

type harness struct {
	agent   *Agent
	speaker *captureSpeaker
	pub     *capturePublisher
	lock    *SessionLock
	clock   *fakeClock
	obs     *metrics.MemoryObserver
	next    *recordingNext
}

// manualTiming keeps the watchdog goroutines parked so tests drive idleTick themselves.
func manualTiming() Timing {
	t := DefaultTiming()
	t.TickInterval = time.Hour
	return t
}

func newHarness(t *testing.T, script Script, stage Stage, timing Timing) *harness {
	t.Helper()
	h := &harness{
		speaker: &captureSpeaker{},
		pub:     &capturePublisher{},
		lock:    NewSessionLock(),
		clock:   newFakeClock(),
		obs:     metrics.NewMemoryObserver(),
		next:    &recordingNext{},
	}
	session := Session{Speaker: h.speaker, Room: staticRoom{pub: h.pub}, Lock: h.lock}
	agent, err := NewAgent(script, stage, session, AgentOptions{
		Timing:   timing,
		Logger:   logging.Discard(),
		Observer: h.obs,
		Clock:    h.clock.Now,
		Next:     h.next,
	})
	if err != nil {
		t.Fatalf("new agent: %v", err)
	}
	h.agent = agent
	t.Cleanup(func() {
		agent.OnExit()
		agent.Wait()
	})
	return h
}

// longScript keeps the stage timeout out of the way.
func longScript(s Script) Script {
	s.Timeout = time.Hour
	return s
}

func (h *harness) enter(t *testing.T) {
	t.Helper()
	if err := h.agent.OnEnter(context.Background()); err != nil {
		t.Fatalf("on enter: %v", err)
	}
}

func (h *harness) markAnswered() {
	h.agent.mu.Lock()
	h.agent.q1Answered = true
	h.agent.q2Answered = true
	h.agent.mu.Unlock()
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
