package mock

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/interviewer/pkg/interview"
	"github.com/harunnryd/interviewer/pkg/logging"
)

type SpeakerConfig struct {
	// WordsPerMinute paces delivery; zero speaks instantly.
	WordsPerMinute int    `mapstructure:"words_per_minute"`
	Prefix         string `mapstructure:"prefix"`
}

// Speaker simulates text-to-speech by writing lines to an io.Writer and
// taking as long as a speaker at WordsPerMinute would.
type Speaker struct {
	cfg SpeakerConfig
	out io.Writer
	log *slog.Logger

	speakMu sync.Mutex

	mu        sync.Mutex
	listeners []interview.SpeechListener
	current   *utterance
	lines     []string
}

type utterance struct {
	interruptible bool
	interrupted   chan struct{}
	once          sync.Once
}

func NewSpeaker(cfg SpeakerConfig, out io.Writer) *Speaker {
	if out == nil {
		out = io.Discard
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "interviewer: "
	}
	return &Speaker{cfg: cfg, out: out, log: logging.NewComponentLogger(nil, "mock_speaker")}
}

// WithLogger replaces the base logger; the component attr is kept.
func (s *Speaker) WithLogger(base *slog.Logger) *Speaker {
	s.log = logging.NewComponentLogger(base, "mock_speaker")
	return s
}

func (s *Speaker) Name() string { return "mock_speaker" }

// AddListener registers a receiver of speech start and end notifications.
func (s *Speaker) AddListener(l interview.SpeechListener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

// Say speaks one line. Lines are delivered one at a time in call order.
func (s *Speaker) Say(ctx context.Context, line string, interruptible bool) error {
	s.speakMu.Lock()
	defer s.speakMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	u := &utterance{interruptible: interruptible, interrupted: make(chan struct{})}
	s.mu.Lock()
	s.current = u
	s.lines = append(s.lines, line)
	listeners := append([]interview.SpeechListener(nil), s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		l.OnAgentSpeechStarted()
	}
	defer func() {
		s.mu.Lock()
		s.current = nil
		s.mu.Unlock()
		for _, l := range listeners {
			l.OnAgentSpeechEnded()
		}
	}()

	if _, err := fmt.Fprintln(s.out, s.cfg.Prefix+line); err != nil {
		return fmt.Errorf("write line: %w", err)
	}

	d := s.duration(line)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-u.interrupted:
		s.log.Debug("line_interrupted", "words", len(strings.Fields(line)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Interrupt cuts the current line short if it was spoken as interruptible.
// It reports whether a line was interrupted.
func (s *Speaker) Interrupt() bool {
	s.mu.Lock()
	u := s.current
	s.mu.Unlock()
	if u == nil || !u.interruptible {
		return false
	}
	u.once.Do(func() { close(u.interrupted) })
	return true
}

// Lines returns every line passed to Say so far.
func (s *Speaker) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

func (s *Speaker) duration(line string) time.Duration {
	if s.cfg.WordsPerMinute <= 0 {
		return 0
	}
	words := len(strings.Fields(line))
	return time.Duration(words) * time.Minute / time.Duration(s.cfg.WordsPerMinute)
}
