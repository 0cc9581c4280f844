package metrics

import (
	"testing"
	"time"
)

func TestAsyncObserverDeliversBeforeClose(t *testing.T) {
	mem := NewMemoryObserver()
	obs := NewAsyncObserver(mem, 8)
	for i := 0; i < 3; i++ {
		obs.RecordEvent(MetricsEvent{Name: EventNudge, Time: time.Now()})
	}
	obs.Close()
	if got := mem.Count(EventNudge); got != 3 {
		t.Fatalf("expected 3 nudges, got %d", got)
	}
	obs.RecordEvent(MetricsEvent{Name: EventNudge})
	if got := mem.Count(EventNudge); got != 3 {
		t.Fatalf("expected closed observer to drop events, got %d", got)
	}
}
