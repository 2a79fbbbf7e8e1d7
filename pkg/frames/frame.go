package frames

import "net/url"

type Kind string

const (
	KindConnect    Kind = "connect"
	KindAudio      Kind = "audio"
	KindControl    Kind = "control"
	KindDisconnect Kind = "disconnect"
)

// Websocket close codes used for disconnects.
const (
	CloseGoingAway     = 1001
	// CloseAbnormal is reported when a connection drops without a close frame.
	CloseAbnormal      = 1006
	CloseInternalError = 1011
)

// Frame is one inbound transport event for a connection.
type Frame interface {
	Kind() Kind
	ConnID() string
}

// ConnectFrame opens a connection. Params are the raw query values of the upgrade
// request.
type ConnectFrame struct {
	connID  string
	traceID string
	params  url.Values
}

func NewConnectFrame(connID, traceID string, params url.Values) ConnectFrame {
	return ConnectFrame{connID: connID, traceID: traceID, params: cloneValues(params)}
}

func (c ConnectFrame) Kind() Kind         { return KindConnect }
func (c ConnectFrame) ConnID() string     { return c.connID }
func (c ConnectFrame) TraceID() string    { return c.traceID }
func (c ConnectFrame) Params() url.Values { return cloneValues(c.params) }

// AudioFrame carries one binary message verbatim.
type AudioFrame struct {
	connID string
	data   []byte
}

// NewAudioFrame copies data so the transport can reuse its read buffer.
func NewAudioFrame(connID string, data []byte) AudioFrame {
	return AudioFrame{connID: connID, data: append([]byte(nil), data...)}
}

func (a AudioFrame) Kind() Kind     { return KindAudio }
func (a AudioFrame) ConnID() string { return a.connID }
func (a AudioFrame) Data() []byte   { return a.data }
func (a AudioFrame) Len() int       { return len(a.data) }

// ControlFrame carries one text message. It is not parsed here.
type ControlFrame struct {
	connID string
	raw    []byte
}

func NewControlFrame(connID string, raw []byte) ControlFrame {
	return ControlFrame{connID: connID, raw: append([]byte(nil), raw...)}
}

func (c ControlFrame) Kind() Kind     { return KindControl }
func (c ControlFrame) ConnID() string { return c.connID }
func (c ControlFrame) Raw() []byte    { return c.raw }

type DisconnectFrame struct {
	connID string
	code   int
}

func NewDisconnectFrame(connID string, code int) DisconnectFrame {
	return DisconnectFrame{connID: connID, code: code}
}

func (d DisconnectFrame) Kind() Kind     { return KindDisconnect }
func (d DisconnectFrame) ConnID() string { return d.connID }
func (d DisconnectFrame) Code() int      { return d.code }

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
