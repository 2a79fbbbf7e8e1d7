package metrics

import "testing"

func TestAsyncObserverDeliversBeforeClose(t *testing.T) {
	mem := NewMemoryObserver()
	async := NewAsyncObserver(mem, 8)
	async.RecordEvent(CallEvent(EventTurnStarted, "call-1", "trace-1", nil))
	async.RecordEvent(CallEvent(EventTurnDone, "call-1", "trace-1", nil))
	async.Close()

	names := mem.Names()
	if len(names) != 2 || names[0] != EventTurnStarted || names[1] != EventTurnDone {
		t.Fatalf("unexpected events %v", names)
	}
	async.RecordEvent(CallEvent(EventTurnDone, "call-1", "trace-1", nil))
	if len(mem.Events()) != 2 {
		t.Fatalf("expected events after close to be ignored")
	}
	if s := async.Stats(); s.Delivered != 2 || s.Dropped != 0 || s.Failed != 0 {
		t.Fatalf("unexpected stats %+v", s)
	}
	async.Close()
}

type panicObserver struct{ after int }

func (p *panicObserver) RecordEvent(MetricsEvent) {
	if p.after == 0 {
		panic("sink broke")
	}
	p.after--
}

func TestAsyncObserverSurvivesPanickingSink(t *testing.T) {
	async := NewAsyncObserver(&panicObserver{after: 1}, 8)
	for i := 0; i < 3; i++ {
		async.RecordEvent(MetricsEvent{Name: EventTurnDone})
	}
	async.Close()
	if s := async.Stats(); s.Delivered != 1 || s.Failed != 2 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestCallEventTags(t *testing.T) {
	ev := CallEvent(EventCallStarted, "call-9", "trace-9", map[string]any{"language": "en"})
	if ev.Tags[TagCallID] != "call-9" || ev.Tags[TagTraceID] != "trace-9" {
		t.Fatalf("unexpected tags %v", ev.Tags)
	}
	if ev.Time.IsZero() {
		t.Fatalf("expected timestamp")
	}
}

func TestOrNoop(t *testing.T) {
	OrNoop(nil).RecordEvent(MetricsEvent{Name: "x"})
}
