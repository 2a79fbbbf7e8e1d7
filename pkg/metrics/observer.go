package metrics

import "time"

// Event names emitted by the call pipeline.
const (
	EventTurnStarted = "turn_started"
	EventSTTDone     = "stt_done"
	EventLLMDone     = "llm_done"
	EventTTSDone     = "tts_done"
	EventTurnDone    = "turn_done"

	EventBreakerOpen   = "breaker_open"
	EventBreakerClose  = "breaker_close"
	EventBreakerDenied = "breaker_denied"
	EventRateLimit     = "rate_limit"

	EventCallStarted = "call_started"
	EventCallEnded   = "call_ended"
)

// Tag keys shared across events.
const (
	TagCallID    = "call_id"
	TagTraceID   = "trace_id"
	TagProvider  = "provider"
	TagComponent = "component"
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

// OrNoop returns obs, or a NoopObserver when obs is nil.
func OrNoop(obs Observer) Observer {
	if obs == nil {
		return NoopObserver{}
	}
	return obs
}

// CallEvent builds an event tagged with the call identity.
func CallEvent(name, callID, traceID string, fields map[string]any) MetricsEvent {
	return MetricsEvent{
		Name: name,
		Time: time.Now(),
		Tags: map[string]string{
			TagCallID:  callID,
			TagTraceID: traceID,
		},
		Fields: fields,
	}
}
