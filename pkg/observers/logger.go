package observers

import (
	"context"
	"log/slog"
	"sort"

	"github.com/harunnryd/callagent/pkg/metrics"
	"github.com/harunnryd/callagent/pkg/redact"
)

// eventLevels raises call boundaries and vendor trouble above the debug
// stream of per-stage timings.
var eventLevels = map[string]slog.Level{
	metrics.EventCallStarted:   slog.LevelInfo,
	metrics.EventCallEnded:     slog.LevelInfo,
	metrics.EventBreakerClose:  slog.LevelInfo,
	metrics.EventRateLimit:     slog.LevelWarn,
	metrics.EventBreakerOpen:   slog.LevelWarn,
	metrics.EventBreakerDenied: slog.LevelWarn,
}

// LoggerObserver mirrors call events into the structured log.
type LoggerObserver struct {
	log *slog.Logger
}

func NewLoggerObserver(log *slog.Logger) *LoggerObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LoggerObserver{log: log}
}

func (o *LoggerObserver) RecordEvent(ev metrics.MetricsEvent) {
	level, ok := eventLevels[ev.Name]
	if !ok {
		level = slog.LevelDebug
	}
	ctx := context.Background()
	if !o.log.Enabled(ctx, level) {
		return
	}
	attrs := make([]slog.Attr, 0, 2+len(ev.Tags)+len(ev.Fields))
	attrs = append(attrs, slog.String("event", ev.Name), slog.Time("at", ev.Time))
	if ev.Value != 0 {
		attrs = append(attrs, slog.Float64("value", ev.Value))
	}
	for _, k := range sortedKeys(ev.Tags) {
		attrs = append(attrs, slog.String(k, ev.Tags[k]))
	}
	fields := redact.Fields(ev.Fields)
	for _, k := range sortedKeys(fields) {
		attrs = append(attrs, slog.Any(k, fields[k]))
	}
	o.log.LogAttrs(ctx, level, "call_event", attrs...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MultiObserver fans one event out to several sinks in order.
type MultiObserver struct {
	sinks []metrics.Observer
}

func NewMultiObserver(sinks ...metrics.Observer) *MultiObserver {
	kept := make([]metrics.Observer, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &MultiObserver{sinks: kept}
}

func (m *MultiObserver) RecordEvent(ev metrics.MetricsEvent) {
	for _, s := range m.sinks {
		s.RecordEvent(ev)
	}
}
