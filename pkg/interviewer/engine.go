package interviewer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/interviewer/pkg/interview"
	"github.com/harunnryd/interviewer/pkg/logging"
	"github.com/harunnryd/interviewer/pkg/metrics"
	"github.com/harunnryd/interviewer/pkg/observers"
	"github.com/harunnryd/interviewer/pkg/redact"
	"github.com/harunnryd/interviewer/pkg/runner"
	"github.com/harunnryd/interviewer/pkg/transports"
)

type EngineOptions struct {
	Config    Config
	Providers *ProviderRegistry
	// Transport and Speaker override the configured providers when set.
	Transport transports.Transport
	Speaker   SpeechProvider
	Logger    *slog.Logger
	Observer  metrics.Observer
	Clock     func() time.Time
	BannerOut io.Writer
}

// Engine hosts one interview: it wires the speaker, the participant
// transport and the stage coordinator, and tears them down on exit.
type Engine struct {
	cfg       Config
	log       *slog.Logger
	transport transports.Transport
	speaker   SpeechProvider
	coord     *interview.Coordinator
	asyncObs  *metrics.AsyncObserver
	runner    *runner.LifecycleRunner

	turns sync.WaitGroup
}

func NewEngine(opts EngineOptions) (*Engine, error) {
	cfg := opts.Config
	redact.SetEnabled(cfg.Privacy.RedactPII)

	log := opts.Logger
	if log == nil {
		log = logging.InitLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
	}

	providers := opts.Providers
	if providers == nil {
		providers = DefaultProviders(io.Discard)
	}
	transport := opts.Transport
	if transport == nil {
		t, err := providers.BuildTransport(cfg.Transport.Provider, cfg)
		if err != nil {
			return nil, err
		}
		transport = t
	}
	speaker := opts.Speaker
	if speaker == nil {
		s, err := providers.BuildSpeech(cfg.Speech.Provider, cfg)
		if err != nil {
			return nil, err
		}
		speaker = s
	}

	plan, err := cfg.Plan()
	if err != nil {
		return nil, err
	}

	asyncObs := metrics.NewAsyncObserver(observers.NewMultiObserver(
		observers.NewLoggerObserver(logging.NewComponentLogger(log, "events")),
		opts.Observer,
	), 1024)

	session := interview.Session{
		Speaker: speaker,
		Room:    transportRoom{transport: transport},
		Lock:    interview.NewSessionLock(),
	}
	coord, err := interview.NewCoordinator(plan, session, interview.CoordinatorOptions{
		Timing:   cfg.Timing(),
		Logger:   log,
		Observer: asyncObs,
		Clock:    opts.Clock,
	})
	if err != nil {
		asyncObs.Close()
		return nil, err
	}
	speaker.AddListener(coord)

	e := &Engine{
		cfg:       cfg,
		log:       logging.NewComponentLogger(log, "engine").With(slog.String("interview_id", coord.ID())),
		transport: transport,
		speaker:   speaker,
		coord:     coord,
		asyncObs:  asyncObs,
	}
	e.runner = runner.NewLifecycleRunner(runner.DrainFunc(e.drain), runner.Hooks{
		OnStart: func() { e.log.Info("interview_engine_started") },
		OnStop:  func() { e.log.Info("interview_engine_stopped") },
	}, cfg.DrainTimeout()).WithBanner(opts.BannerOut)

	e.log.Info("interview_engine_init",
		"environment", cfg.Environment,
		"transport", transport.Name(),
		"speech", speaker.Name(),
		"stages", len(plan),
	)
	return e, nil
}

// Run serves the interview until it completes, the participant hangs up or ctx ends.
func (e *Engine) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := e.transport.Start(ctx); err != nil {
		return fmt.Errorf("start transport: %w", err)
	}
	if rr, ok := e.transport.(transports.ReadyReporter); ok {
		e.log.Info("transport_ready", "fields", rr.ReadyFields())
	}
	go e.routeTransport(ctx, cancel)

	if err := e.coord.Start(ctx); err != nil {
		return err
	}
	go func() {
		select {
		case <-e.coord.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	runErr := e.runner.Run(ctx)
	if err := e.coord.Err(); err != nil {
		return err
	}
	return runErr
}

// Stop ends the interview early.
func (e *Engine) Stop() error {
	return e.runner.Stop()
}

func (e *Engine) Coordinator() *interview.Coordinator { return e.coord }

func (e *Engine) Transport() transports.Transport { return e.transport }

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) routeTransport(ctx context.Context, hangup context.CancelFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-e.transport.Recv():
			if !ok {
				return
			}
			switch msg.Type {
			case transports.MessageTranscript:
				text := msg.Transcript()
				// Handled off the receive loop so barge-in stays responsive.
				// The agent drops turns that arrive while one is being handled.
				e.turns.Add(1)
				go func() {
					defer e.turns.Done()
					e.coord.OnUserTurnCompleted(ctx, text)
				}()
			case transports.MessageSpeechStarted:
				if e.speaker.Interrupt() {
					e.log.Info("barge_in", "speech", e.speaker.Name())
				}
			case transports.MessageSpeechEnded:
				e.log.Debug("participant_speech_ended")
			case transports.MessageHangup:
				e.log.Info("participant_hangup")
				hangup()
				return
			}
		}
	}
}

func (e *Engine) drain(ctx context.Context) error {
	var errs []error
	if err := e.coord.Drain(ctx); err != nil {
		errs = append(errs, fmt.Errorf("coordinator: %w", err))
	}
	done := make(chan struct{})
	go func() {
		e.turns.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("turn handlers: %w", ctx.Err()))
	}
	if err := e.transport.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("transport: %w", err))
	}
	e.asyncObs.Close()
	return errors.Join(errs...)
}

type transportRoom struct {
	transport transports.Transport
}

func (r transportRoom) LocalParticipant() (interview.Publisher, error) {
	if r.transport == nil {
		return nil, interview.ErrNoRoom
	}
	return r.transport, nil
}
