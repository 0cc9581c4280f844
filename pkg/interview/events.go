package interview

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/harunnryd/interviewer/pkg/errorsx"
	"github.com/harunnryd/interviewer/pkg/metrics"
)

const (
	EventStageChanged      = "stage_changed"
	EventInterviewComplete = "interview_complete"
)

// Event is the JSON payload published to the participant.
type Event struct {
	Event string `json:"event"`
	Stage string `json:"stage,omitempty"`
}

// publish is best-effort: failures are logged and recorded, never retried.
func (a *Agent) publish(ctx context.Context, ev Event) {
	a.mu.Lock()
	pub := a.publisher
	a.mu.Unlock()
	if pub == nil {
		a.log.Warn("event_dropped_no_publisher", "event", ev.Event)
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		a.log.Error("event_encode_failed", "event", ev.Event, "error", err)
		return
	}
	if err := pub.Publish(ctx, payload); err != nil {
		err = errorsx.Wrap(fmt.Errorf("publish %s: %w", ev.Event, err), errorsx.ReasonPublish)
		a.log.Error("event_publish_failed", "event", ev.Event, "reason", errorsx.Reason(err), "error", err)
		a.record(metrics.EventPublishFailed, map[string]any{"event": ev.Event})
		return
	}
	a.log.Info("event_published", "event", ev.Event, "payload", string(payload))
}

func (a *Agent) record(name string, fields map[string]any) {
	a.obs.RecordEvent(metrics.MetricsEvent{
		Name: name,
		Time: a.now(),
		Tags: map[string]string{
			"stage":    a.script.Stage,
			"agent_id": a.id,
		},
		Fields: fields,
	})
}

func elapsedSeconds(d time.Duration) float64 {
	return float64(d.Round(100*time.Millisecond)) / float64(time.Second)
}
