package observers

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/harunnryd/interviewer/pkg/metrics"
)

func TestLoggerObserverWritesTags(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	obs := NewLoggerObserver(log)
	obs.RecordEvent(metrics.MetricsEvent{
		Name: metrics.EventNudge,
		Time: time.Now(),
		Tags: map[string]string{"stage": "intro"},
	})
	out := buf.String()
	if !strings.Contains(out, "name=nudge") || !strings.Contains(out, "stage=intro") {
		t.Fatalf("unexpected log output %q", out)
	}
}

func TestMultiObserverSkipsNil(t *testing.T) {
	a := metrics.NewMemoryObserver()
	b := metrics.NewMemoryObserver()
	multi := NewMultiObserver(a, nil, b)
	multi.RecordEvent(metrics.MetricsEvent{Name: metrics.EventHandoff})
	if a.Count(metrics.EventHandoff) != 1 || b.Count(metrics.EventHandoff) != 1 {
		t.Fatalf("expected both observers to receive the event")
	}
}
