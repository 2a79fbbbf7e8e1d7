package session

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/harunnryd/callagent/pkg/store"
	"github.com/harunnryd/callagent/pkg/turn"
)

func TestAccumulatorDrainStartsNextUtterance(t *testing.T) {
	var acc Accumulator
	acc.Append([]byte{1, 2})
	acc.Append([]byte{3})
	if acc.Len() != 3 {
		t.Fatalf("expected 3 bytes, got %d", acc.Len())
	}
	got := acc.Drain()
	if len(got) != 3 || got[2] != 3 || acc.Len() != 0 {
		t.Fatalf("unexpected drain %v (len %d)", got, acc.Len())
	}
	acc.Append([]byte{9})
	if got[0] != 1 {
		t.Fatalf("drained bytes changed by later append: %v", got)
	}
}

func TestAccumulatorResetDiscards(t *testing.T) {
	var acc Accumulator
	acc.Append(make([]byte, 64))
	acc.Reset()
	if acc.Len() != 0 || len(acc.Drain()) != 0 {
		t.Fatalf("expected empty buffer after reset")
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestDisconnectDropsBufferedAudio(t *testing.T) {
	var logs syncBuffer
	runner := newGateRunner()
	pool := turn.NewDispatcher(turn.DispatcherOptions{})
	defer pool.Close()
	c, err := Open(context.Background(), Deps{
		Runner:    runner,
		Pool:      pool,
		Lifecycle: NewLifecycle(store.NewMemory(), nil, nil),
		Sender:    &sentLog{},
		Logger:    slog.New(slog.NewTextHandler(&logs, nil)),
	}, "conn-1", "trace-1", nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	c.HandleAudio(make([]byte, 1500))
	waitFor(t, c, func(s Snapshot) bool { return s.Buffered == 1500 })
	c.Close(1000)
	<-c.Done()

	if !strings.Contains(logs.String(), "buffered_audio_dropped") || !strings.Contains(logs.String(), "bytes=1500") {
		t.Fatalf("expected dropped audio to be logged, got %q", logs.String())
	}
	if len(runner.Sizes()) != 0 {
		t.Fatalf("expected no turn for audio left at disconnect")
	}
}
