package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Memory is an in-process Store.
type Memory struct {
	mu          sync.Mutex
	calls       map[string]Call
	transcripts map[string][]Transcript
}

func NewMemory() *Memory {
	return &Memory{
		calls:       make(map[string]Call),
		transcripts: make(map[string][]Transcript),
	}
}

func (m *Memory) CreateCall(_ context.Context) (Call, error) {
	call := newCall(time.Now())
	m.mu.Lock()
	m.calls[call.ID] = call
	m.mu.Unlock()
	return call, nil
}

func (m *Memory) FinishCall(_ context.Context, id string, end time.Time) (Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	call, ok := m.calls[id]
	if !ok {
		return Call{}, fmt.Errorf("finish call %s: %w", id, ErrNotFound)
	}
	end = end.UTC()
	call.EndTime = &end
	m.calls[id] = call
	return call, nil
}

func (m *Memory) GetCall(_ context.Context, id string) (Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	call, ok := m.calls[id]
	if !ok {
		return Call{}, fmt.Errorf("get call %s: %w", id, ErrNotFound)
	}
	return call, nil
}

func (m *Memory) AddTranscript(_ context.Context, callID, text string, isUser bool) (Transcript, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.calls[callID]; !ok {
		return Transcript{}, fmt.Errorf("add transcript for %s: %w", callID, ErrNotFound)
	}
	tr := newTranscript(callID, text, isUser, time.Now())
	m.transcripts[callID] = append(m.transcripts[callID], tr)
	return tr, nil
}

func (m *Memory) ListTranscripts(_ context.Context, callID string) ([]Transcript, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Transcript, len(m.transcripts[callID]))
	copy(out, m.transcripts[callID])
	return out, nil
}

func (m *Memory) Close() error { return nil }

var _ Store = (*Memory)(nil)
