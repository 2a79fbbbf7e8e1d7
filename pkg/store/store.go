// Package store persists calls and their transcripts.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// ErrNotFound is returned when a call does not exist.
var ErrNotFound = errors.New("store: not found")

// Call is one browser connection from connect to disconnect.
type Call struct {
	ID        string     `msgpack:"id"`
	StartTime time.Time  `msgpack:"start_time"`
	EndTime   *time.Time `msgpack:"end_time,omitempty"`
}

// Duration returns how long the call lasted, or has lasted so far.
func (c Call) Duration(now time.Time) time.Duration {
	if c.EndTime != nil {
		return c.EndTime.Sub(c.StartTime)
	}
	return now.Sub(c.StartTime)
}

// Transcript is one recognized user utterance or one generated reply.
type Transcript struct {
	ID        string    `msgpack:"id"`
	CallID    string    `msgpack:"call_id"`
	Text      string    `msgpack:"text"`
	IsUser    bool      `msgpack:"is_user"`
	Timestamp time.Time `msgpack:"timestamp"`
}

// Store is the persistence boundary for calls and transcripts. Writes are
// independent; there is no transaction spanning a user row and its reply.
type Store interface {
	CreateCall(ctx context.Context) (Call, error)
	FinishCall(ctx context.Context, id string, end time.Time) (Call, error)
	GetCall(ctx context.Context, id string) (Call, error)
	AddTranscript(ctx context.Context, callID, text string, isUser bool) (Transcript, error)
	// ListTranscripts returns a call's transcripts ordered by timestamp.
	ListTranscripts(ctx context.Context, callID string) ([]Transcript, error)
	Close() error
}

func newCall(now time.Time) Call {
	return Call{ID: uuid.NewString(), StartTime: now.UTC()}
}

func newTranscript(callID, text string, isUser bool, now time.Time) Transcript {
	return Transcript{
		ID:        ulid.Make().String(),
		CallID:    callID,
		Text:      text,
		IsUser:    isUser,
		Timestamp: now.UTC(),
	}
}
