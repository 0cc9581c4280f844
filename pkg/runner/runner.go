package runner

import (
	"bytes"
	"context"
	"io"

	"github.com/dimiro1/banner"
)

type State int

const (
	StateNew State = iota
	StateStarting
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type Runner interface {
	Run(ctx context.Context) error
	Stop() error
	State() State
}

type Hooks struct {
	OnStart func()
	OnStop  func()
}

// Drainer ends in-flight work; ctx carries the drain deadline.
type Drainer interface {
	Drain(ctx context.Context) error
}

// DrainFunc adapts a function to Drainer.
type DrainFunc func(ctx context.Context) error

func (f DrainFunc) Drain(ctx context.Context) error { return f(ctx) }

const EngineVersion = "dev"

// PrintBanner writes the startup banner. A nil writer prints nothing.
func PrintBanner(w io.Writer) {
	if w == nil {
		return
	}
	tpl := "{{ .Title \"INTERVIEW\" \"\" 0 }}\nVersion: " + EngineVersion + "\n"
	banner.Init(w, true, false, bytes.NewBufferString(tpl))
}
