package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"

	"github.com/harunnryd/callagent/pkg/conversation"
	"github.com/harunnryd/callagent/pkg/errorsx"
	"github.com/harunnryd/callagent/pkg/logging"
	"github.com/harunnryd/callagent/pkg/store"
	"github.com/harunnryd/callagent/pkg/transports"
	"github.com/harunnryd/callagent/pkg/turn"
)

// TurnRunner executes one turn. *turn.Processor implements it.
type TurnRunner interface {
	Process(ctx context.Context, t turn.Turn) turn.Outcome
	MinAudioBytes() int
}

// Submitter offloads work. *turn.Dispatcher implements it.
type Submitter interface {
	Submit(job turn.Job) error
}

// Sender delivers outbound messages. Every transports.Transport implements it.
type Sender interface {
	Send(connID string, msg transports.Message) error
}

type Deps struct {
	Runner    TurnRunner
	Pool      Submitter
	Lifecycle *Lifecycle
	Sender    Sender
	Defaults  Params
	Logger    *slog.Logger
}

// Snapshot is a consistent view of a session's admission state.
type Snapshot struct {
	Busy     bool
	Buffered int
	Turns    int
}

type controlMessage struct {
	EndOfSpeech bool `json:"end_of_speech"`
}

type event interface{}

type audioEvent struct{ data []byte }

type controlEvent struct{ raw []byte }

type turnDoneEvent struct{ outcome turn.Outcome }

type snapshotEvent struct{ reply chan Snapshot }

type closeEvent struct{ code int }

// Controller owns one connection. All state is confined to its run loop;
// public methods only enqueue events, so frames are handled in arrival order.
type Controller struct {
	connID  string
	traceID string
	call    store.Call
	params  Params
	deps    Deps
	log     *slog.Logger
	notify  turn.Notifier

	inbox chan event
	done  chan struct{}

	// Owned by run.
	acc     Accumulator
	history *conversation.Context
	busy    bool
	turns   int
}

// Open creates the call, acknowledges the connection and starts the session loop.
func Open(ctx context.Context, deps Deps, connID, traceID string, query url.Values) (*Controller, error) {
	if deps.Runner == nil || deps.Pool == nil || deps.Lifecycle == nil || deps.Sender == nil {
		return nil, errors.New("session: incomplete dependencies")
	}
	base := deps.Logger
	if base == nil {
		base = slog.Default()
	}
	params := ParseParams(query, deps.Defaults)
	notify := turn.NotifierFunc(func(msg transports.Message) error {
		return deps.Sender.Send(connID, msg)
	})
	call, err := deps.Lifecycle.Connect(ctx, traceID, params, notify)
	if err != nil {
		return nil, err
	}
	c := &Controller{
		connID:  connID,
		traceID: traceID,
		call:    call,
		params:  params,
		deps:    deps,
		log:     logging.NewCallLogger(logging.NewComponentLogger(base, "session"), call.ID, traceID).With(slog.String("conn_id", connID)),
		notify:  notify,
		inbox:   make(chan event, 256),
		done:    make(chan struct{}),
		history: conversation.New(),
	}
	go c.run()
	return c, nil
}

func (c *Controller) ConnID() string  { return c.connID }
func (c *Controller) Call() store.Call { return c.call }
func (c *Controller) Params() Params   { return c.params }

// Done is closed once the session has processed its disconnect.
func (c *Controller) Done() <-chan struct{} { return c.done }

func (c *Controller) HandleAudio(data []byte) { c.post(audioEvent{data: data}) }

func (c *Controller) HandleControl(raw []byte) { c.post(controlEvent{raw: raw}) }

// Close finalizes the call. A turn still in flight keeps running and cleans
// up after itself; its messages are dropped by the transport.
func (c *Controller) Close(code int) { c.post(closeEvent{code: code}) }

// Snapshot returns the admission state as seen by the run loop.
func (c *Controller) Snapshot() (Snapshot, bool) {
	reply := make(chan Snapshot, 1)
	if !c.post(snapshotEvent{reply: reply}) {
		return Snapshot{}, false
	}
	select {
	case s := <-reply:
		return s, true
	case <-c.done:
		return Snapshot{}, false
	}
}

func (c *Controller) post(ev event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.inbox <- ev:
		return true
	case <-c.done:
		return false
	}
}

func (c *Controller) run() {
	for ev := range c.inbox {
		switch e := ev.(type) {
		case audioEvent:
			c.acc.Append(e.data)
			c.log.Debug("audio_buffered",
				slog.Int("bytes", len(e.data)),
				slog.Int("buffered", c.acc.Len()))
		case controlEvent:
			c.onControl(e.raw)
		case turnDoneEvent:
			c.busy = false
			c.turns++
			c.log.Debug("turn_released",
				slog.String("outcome", e.outcome.Status.String()),
				slog.Int("buffered", c.acc.Len()))
		case snapshotEvent:
			e.reply <- Snapshot{Busy: c.busy, Buffered: c.acc.Len(), Turns: c.turns}
		case closeEvent:
			c.finish(e.code)
			return
		}
	}
}

func (c *Controller) onControl(raw []byte) {
	var msg controlMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.log.Warn("control_parse_failed", slog.String("error", err.Error()))
		return
	}
	if !msg.EndOfSpeech {
		return
	}
	if c.busy || c.acc.Len() == 0 {
		c.log.Info("end_of_speech_ignored",
			slog.Bool("busy", c.busy),
			slog.Int("buffered", c.acc.Len()))
		return
	}
	c.startTurn()
}

func (c *Controller) startTurn() {
	data := c.acc.Drain()
	if len(data) < c.deps.Runner.MinAudioBytes() {
		c.log.Info("buffer_too_small", slog.Int("bytes", len(data)))
		return
	}
	c.busy = true
	t := turn.Turn{
		CallID:   c.call.ID,
		TraceID:  c.traceID,
		Audio:    data,
		Language: c.params.Language,
		Voice:    c.params.Voice,
		Speed:    c.params.Speed,
		History:  c.history,
		Notify:   c.notify,
	}
	err := c.deps.Pool.Submit(func(ctx context.Context) {
		var out turn.Outcome
		defer func() {
			c.post(turnDoneEvent{outcome: out})
		}()
		out = c.deps.Runner.Process(ctx, t)
	})
	if err != nil {
		c.busy = false
		c.log.Error("turn_submit_failed", errorsx.LogAttrs(err)...)
		if nerr := c.notify.Notify(transports.ErrorNotice("Error processing audio: " + err.Error())); nerr != nil {
			c.log.Debug("notify_failed", slog.String("error", nerr.Error()))
		}
		return
	}
	c.log.Info("turn_started", slog.Int("bytes", len(data)))
}

func (c *Controller) finish(code int) {
	defer close(c.done)
	if n := c.acc.Len(); n > 0 {
		c.log.Info("buffered_audio_dropped", slog.Int("bytes", n))
		c.acc.Reset()
	}
	if _, err := c.deps.Lifecycle.Disconnect(context.Background(), c.call, c.traceID, code); err != nil {
		c.log.Warn("disconnect_persist_failed", errorsx.LogAttrs(err)...)
	}
}
