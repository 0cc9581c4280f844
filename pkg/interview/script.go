package interview

import (
	"fmt"
	"strings"
	"time"

	"github.com/harunnryd/interviewer/pkg/errorsx"
)

// Script is the fixed spoken material of one stage.
type Script struct {
	Stage    string
	Greeting string
	AckQ1    string // also poses Q2
	AckQ2    string
	NudgeQ1  string
	NudgeQ2  string
	ReaskQ1  string
	Timeout  time.Duration
}

// Validate checks that every line is present and the timeout is positive.
func (s Script) Validate() error {
	lines := []struct {
		name string
		text string
	}{
		{"greeting", s.Greeting},
		{"ack_q1", s.AckQ1},
		{"ack_q2", s.AckQ2},
		{"nudge_q1", s.NudgeQ1},
		{"nudge_q2", s.NudgeQ2},
		{"reask_q1", s.ReaskQ1},
	}
	if strings.TrimSpace(s.Stage) == "" {
		return errorsx.New(errorsx.ReasonConfigInvalid, "script stage name is required")
	}
	for _, l := range lines {
		if strings.TrimSpace(l.text) == "" {
			return errorsx.New(errorsx.ReasonConfigInvalid, "script %s: %s is required", s.Stage, l.name)
		}
	}
	if s.Timeout <= 0 {
		return errorsx.New(errorsx.ReasonConfigInvalid, "script %s: timeout must be positive, got %s", s.Stage, s.Timeout)
	}
	return nil
}

func (s Script) String() string {
	return fmt.Sprintf("%s (timeout %s)", s.Stage, s.Timeout)
}

// Timing holds the process-wide turn-taking tunables.
type Timing struct {
	IdleTimeout    time.Duration // silence before a nudge
	Q1SkipTimeout  time.Duration // silence before Q1 is asked again
	TickInterval   time.Duration // idle watchdog period
	MinAnswerWords int           // shorter transcripts are treated as noise
}

// DefaultTiming returns the production tunables.
func DefaultTiming() Timing {
	return Timing{
		IdleTimeout:    10 * time.Second,
		Q1SkipTimeout:  40 * time.Second,
		TickInterval:   time.Second,
		MinAnswerWords: 2,
	}
}

func (t Timing) normalize() Timing {
	def := DefaultTiming()
	if t.IdleTimeout <= 0 {
		t.IdleTimeout = def.IdleTimeout
	}
	if t.Q1SkipTimeout <= 0 {
		t.Q1SkipTimeout = def.Q1SkipTimeout
	}
	if t.TickInterval <= 0 {
		t.TickInterval = def.TickInterval
	}
	if t.MinAnswerWords <= 0 {
		t.MinAnswerWords = def.MinAnswerWords
	}
	return t
}
