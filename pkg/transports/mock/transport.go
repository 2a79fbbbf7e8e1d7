package mock

import (
	"context"
	"errors"
	"net/url"
	"sync"

	"github.com/harunnryd/callagent/pkg/errorsx"
	"github.com/harunnryd/callagent/pkg/frames"
	"github.com/harunnryd/callagent/pkg/transports"
)

var ErrConnClosed = errors.New("mock: connection closed")

// Sent is one message the agent delivered to a caller.
type Sent struct {
	ConnID  string
	Message transports.Message
}

// Transport plays scripted callers against the agent without a network.
// Tests drive it with Dial, Speak, EndSpeech and Hangup, then read replies
// from Sent or History.
type Transport struct {
	inbound  chan frames.Frame
	outbound chan Sent

	mu      sync.Mutex
	stopped bool
	open    map[string]bool
	history map[string][]transports.Message
	closes  map[string]int
}

func New() *Transport {
	return &Transport{
		inbound:  make(chan frames.Frame, 256),
		outbound: make(chan Sent, 256),
		open:     make(map[string]bool),
		history:  make(map[string][]transports.Message),
		closes:   make(map[string]int),
	}
}

func (t *Transport) Name() string { return "mock" }

// Start closes the inbound stream once ctx ends.
func (t *Transport) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		<-ctx.Done()
		_ = t.Stop()
	}()
	return nil
}

func (t *Transport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.stopped {
		t.stopped = true
		close(t.inbound)
	}
	return nil
}

func (t *Transport) Recv() <-chan frames.Frame { return t.inbound }

// Send fails once the caller hung up or the transport stopped. The outbound
// channel never blocks the agent; History keeps every message regardless.
func (t *Transport) Send(connID string, msg transports.Message) error {
	t.mu.Lock()
	if t.stopped || !t.open[connID] {
		t.mu.Unlock()
		return errorsx.Wrap(ErrConnClosed, errorsx.ReasonTransportSend)
	}
	t.history[connID] = append(t.history[connID], msg)
	t.mu.Unlock()
	select {
	case t.outbound <- Sent{ConnID: connID, Message: msg}:
	default:
	}
	return nil
}

// CloseConn records the server-side close and answers with the disconnect a
// well-behaved caller would send back.
func (t *Transport) CloseConn(connID string, code int, _ string) error {
	t.mu.Lock()
	if t.stopped || !t.open[connID] {
		t.mu.Unlock()
		return errorsx.Wrap(ErrConnClosed, errorsx.ReasonTransportSend)
	}
	t.closes[connID] = code
	t.mu.Unlock()
	t.Push(frames.NewDisconnectFrame(connID, code))
	return nil
}

// Closed reports the code the agent closed connID with, if it did.
func (t *Transport) Closed(connID string) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	code, ok := t.closes[connID]
	return code, ok
}

// Push delivers a raw frame as if it came off the wire.
func (t *Transport) Push(f frames.Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	switch f.Kind() {
	case frames.KindConnect:
		t.open[f.ConnID()] = true
	case frames.KindDisconnect:
		delete(t.open, f.ConnID())
	}
	select {
	case t.inbound <- f:
	default:
	}
}

func (t *Transport) Dial(connID, traceID string, params url.Values) {
	t.Push(frames.NewConnectFrame(connID, traceID, params))
}

func (t *Transport) Speak(connID string, audio []byte) {
	t.Push(frames.NewAudioFrame(connID, audio))
}

func (t *Transport) EndSpeech(connID string) {
	t.Push(frames.NewControlFrame(connID, []byte(`{"end_of_speech": true}`)))
}

func (t *Transport) Hangup(connID string, code int) {
	t.Push(frames.NewDisconnectFrame(connID, code))
}

func (t *Transport) Sent() <-chan Sent { return t.outbound }

// History returns a copy of everything sent to connID so far.
func (t *Transport) History(connID string) []transports.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]transports.Message(nil), t.history[connID]...)
}

var _ transports.Transport = (*Transport)(nil)
