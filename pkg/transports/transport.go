package transports

import (
	"context"

	"github.com/harunnryd/callagent/pkg/frames"
)

// Transport defines the I/O boundary between browser connections and the
// agent. Implementations are responsible for their own network lifecycle.
type Transport interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Recv() <-chan frames.Frame
	// Send queues one JSON control message for the connection.
	Send(connID string, msg Message) error
	// CloseConn ends the connection from the server side after messages
	// already queued for it are written.
	CloseConn(connID string, code int, reason string) error
}

// Drainer is implemented by transports that can refuse new connections
// while existing ones finish.
type Drainer interface {
	SetDraining(bool)
}

// ReadyReporter allows transports to expose readiness metadata.
// Implementations are optional and used for informational logging only.
type ReadyReporter interface {
	ReadyFields() map[string]any
}

// Senders attached to transcript messages.
const (
	SenderUser   = "user"
	SenderAI     = "ai"
	SenderSystem = "system"
)

const (
	ConnectedText = "Connected to AI Call Agent"
	NoMatchText   = "Could not understand audio. Please speak clearly."
)

// Message is one outbound JSON control message. Unset fields are omitted so
// each constructor yields exactly its own shape.
type Message struct {
	Type       string  `json:"type,omitempty"`
	Message    string  `json:"message,omitempty"`
	Language   string  `json:"language,omitempty"`
	Voice      string  `json:"voice,omitempty"`
	Speed      float64 `json:"speed,omitempty"`
	Transcript string  `json:"transcript,omitempty"`
	Sender     string  `json:"sender,omitempty"`
	AudioURL   string  `json:"audio_url,omitempty"`
	Error      bool    `json:"error,omitempty"`
}

func ConnectionAck(language, voice string, speed float64) Message {
	return Message{Type: "connection", Message: ConnectedText, Language: language, Voice: voice, Speed: speed}
}

func UserTranscript(text string) Message {
	return Message{Transcript: text, Sender: SenderUser}
}

func AITranscript(text string) Message {
	return Message{Transcript: text, Sender: SenderAI}
}

func NoMatchNotice() Message {
	return Message{Transcript: NoMatchText, Sender: SenderSystem}
}

func AudioReady(url string) Message {
	return Message{AudioURL: url}
}

// ErrorNotice reports a failed turn with a human-readable reason.
func ErrorNotice(text string) Message {
	return Message{Transcript: text, Sender: SenderSystem, Error: true}
}
