package observers

import (
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/callagent/pkg/metrics"
)

// TurnLatencyObserver logs one summary line per finished turn with the
// time spent in each collaborator stage.
type TurnLatencyObserver struct {
	mu     sync.Mutex
	traces map[string]*turnTrace
	log    *slog.Logger
}

type turnTrace struct {
	started time.Time
	stt     time.Time
	llm     time.Time
	tts     time.Time
	traceID string
}

func NewTurnLatencyObserver(log *slog.Logger) *TurnLatencyObserver {
	if log == nil {
		log = slog.Default()
	}
	return &TurnLatencyObserver{
		traces: make(map[string]*turnTrace),
		log:    log,
	}
}

func (o *TurnLatencyObserver) RecordEvent(ev metrics.MetricsEvent) {
	callID := ev.Tags[metrics.TagCallID]
	if callID == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if ev.Name == metrics.EventTurnStarted {
		o.traces[callID] = &turnTrace{started: ev.Time, traceID: ev.Tags[metrics.TagTraceID]}
		return
	}
	t := o.traces[callID]
	if t == nil {
		return
	}
	switch ev.Name {
	case metrics.EventSTTDone:
		t.stt = ev.Time
	case metrics.EventLLMDone:
		t.llm = ev.Time
	case metrics.EventTTSDone:
		t.tts = ev.Time
	case metrics.EventTurnDone:
		outcome, _ := ev.Fields["outcome"].(string)
		o.log.Info("turn_latency",
			"call_id", callID,
			"trace_id", t.traceID,
			"outcome", outcome,
			"stt_ms", durationMs(t.started, t.stt),
			"llm_ms", durationMs(t.stt, t.llm),
			"tts_ms", durationMs(t.llm, t.tts),
			"total_ms", durationMs(t.started, ev.Time),
		)
		delete(o.traces, callID)
	}
}

func durationMs(a, b time.Time) int64 {
	if a.IsZero() || b.IsZero() {
		return -1
	}
	return b.Sub(a).Milliseconds()
}
