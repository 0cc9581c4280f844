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
)

type CoordinatorOptions struct {
	Timing   Timing
	Logger   *slog.Logger
	Observer metrics.Observer
	Clock    func() time.Time
}

// Coordinator owns the current-stage slot of one interview and moves it
// through the stage plan. It implements Transitioner for its agents.
type Coordinator struct {
	id      string
	plan    []StageDefinition
	session Session
	opts    CoordinatorOptions
	base    *slog.Logger
	log     *slog.Logger

	mu      sync.Mutex
	current *Agent
	index   int
	closed  bool
	err     error

	done     chan struct{}
	doneOnce sync.Once
	entering sync.WaitGroup
}

func NewCoordinator(plan []StageDefinition, session Session, opts CoordinatorOptions) (*Coordinator, error) {
	if len(plan) == 0 {
		return nil, errors.New("stage plan is empty")
	}
	for i, def := range plan {
		if err := def.Script.Validate(); err != nil {
			return nil, fmt.Errorf("stage %d: %w", i, err)
		}
		if def.Stage == nil {
			return nil, fmt.Errorf("stage %d (%s): reactions are required", i, def.Script.Stage)
		}
	}
	if err := session.validate(); err != nil {
		return nil, err
	}
	if opts.Observer == nil {
		opts.Observer = metrics.NoopObserver{}
	}
	id := uuid.NewString()
	base := opts.Logger
	if base == nil {
		base = slog.Default()
	}
	base = base.With(slog.String("interview_id", id))
	return &Coordinator{
		id:      id,
		plan:    plan,
		session: session,
		opts:    opts,
		base:    base,
		log:     logging.NewComponentLogger(base, "coordinator"),
		index:   -1,
		done:    make(chan struct{}),
	}, nil
}

func (c *Coordinator) ID() string { return c.id }

// Start installs the first stage and enters it in the background.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.index >= 0 || c.closed {
		c.mu.Unlock()
		return errors.New("coordinator already started")
	}
	agent, err := c.newAgent(0)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.current = agent
	c.index = 0
	c.mu.Unlock()

	c.log.Info("interview_started", "stages", len(c.plan))
	c.enter(ctx, agent)
	return nil
}

// Current returns the agent in the current-stage slot, or nil before Start.
func (c *Coordinator) Current() *Agent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Advance tears down from and enters the next stage. With no stage left the
// interview completes. Calls from an agent that is no longer current are rejected.
func (c *Coordinator) Advance(ctx context.Context, from *Agent) error {
	c.mu.Lock()
	if c.current != from {
		c.mu.Unlock()
		err := errorsx.New(errorsx.ReasonStaleAgent, "advance from stale agent %s", from.ID())
		c.log.Warn("advance_rejected", "reason", errorsx.Reason(err), "error", err)
		return err
	}
	if c.closed {
		c.mu.Unlock()
		c.log.Info("advance_ignored", "reason", "coordinator closed")
		return nil
	}
	nextIndex := c.index + 1
	if nextIndex >= len(c.plan) {
		c.mu.Unlock()
		c.log.Info("plan_exhausted", "from", from.Script().Stage)
		c.Complete(from)
		return nil
	}
	agent, err := c.newAgent(nextIndex)
	if err != nil {
		c.mu.Unlock()
		c.fail(err)
		return err
	}
	c.current = agent
	c.index = nextIndex
	c.mu.Unlock()

	from.OnExit()
	c.log.Info("stage_installed", "from", from.Script().Stage, "to", agent.Script().Stage)
	c.enter(ctx, agent)
	return nil
}

// Complete marks the interview as finished. Only the first call has an effect.
func (c *Coordinator) Complete(from *Agent) {
	c.doneOnce.Do(func() {
		stage := ""
		if from != nil {
			stage = from.Script().Stage
		}
		c.log.Info("interview_complete", "stage", stage)
		close(c.done)
	})
}

// Done is closed when the interview completed, failed or was closed.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

// Err returns the fatal error that ended the interview, if any.
func (c *Coordinator) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Wait blocks until the interview ended or ctx is done.
func (c *Coordinator) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close runs the session teardown: the current agent exits and no further
// stage is installed. Safe to call more than once.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	agent := c.current
	c.mu.Unlock()

	if agent != nil {
		agent.OnExit()
	}
	c.Complete(agent)
	c.log.Info("interview_closed")
}

// Drain closes the interview and waits for pending enter sequences and watchdogs.
func (c *Coordinator) Drain(ctx context.Context) error {
	c.Close()
	finished := make(chan struct{})
	go func() {
		c.entering.Wait()
		if agent := c.Current(); agent != nil {
			agent.Wait()
		}
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnUserTurnCompleted forwards a completed utterance to the current agent.
func (c *Coordinator) OnUserTurnCompleted(ctx context.Context, transcript string) {
	if agent := c.Current(); agent != nil {
		agent.OnUserTurnCompleted(ctx, transcript)
		return
	}
	c.log.Info("turn_dropped", "reason", "no current stage")
}

func (c *Coordinator) OnAgentSpeechStarted() {
	if agent := c.Current(); agent != nil {
		agent.OnAgentSpeechStarted()
	}
}

func (c *Coordinator) OnAgentSpeechEnded() {
	if agent := c.Current(); agent != nil {
		agent.OnAgentSpeechEnded()
	}
}

func (c *Coordinator) newAgent(index int) (*Agent, error) {
	def := c.plan[index]
	return NewAgent(def.Script, def.Stage, c.session, AgentOptions{
		Timing:   c.opts.Timing,
		Logger:   c.base,
		Observer: c.opts.Observer,
		Clock:    c.opts.Clock,
		Next:     c,
	})
}

func (c *Coordinator) enter(ctx context.Context, agent *Agent) {
	c.entering.Add(1)
	go func() {
		defer c.entering.Done()
		err := agent.OnEnter(ctx)
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled):
			// Hangup or shutdown before the stage got the floor.
			c.log.Info("stage_enter_cancelled", "stage", agent.Script().Stage)
		default:
			c.fail(fmt.Errorf("enter stage %s: %w", agent.Script().Stage, err))
		}
	}()
}

func (c *Coordinator) fail(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
	c.log.Error("interview_failed", "reason", errorsx.Reason(err), "error", err)
	c.doneOnce.Do(func() { close(c.done) })
}
