package metrics

import "time"

// Event names recorded by stage agents and the coordinator.
const (
	EventTurnAccepted  = "turn_accepted"
	EventTurnNoise     = "turn_noise"
	EventTurnIgnored   = "turn_ignored"
	EventNudge         = "nudge"
	EventReask         = "reask"
	EventStageTimeout  = "stage_timeout"
	EventHandoff       = "handoff"
	EventClose         = "close"
	EventPhaseChange   = "phase_change"
	EventPublishFailed = "publish_failed"
	EventStageEntered  = "stage_entered"
)

type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}
