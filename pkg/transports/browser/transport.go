package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/harunnryd/callagent/pkg/errorsx"
	"github.com/harunnryd/callagent/pkg/frames"
	"github.com/harunnryd/callagent/pkg/logging"
	"github.com/harunnryd/callagent/pkg/transports"
)

type Config struct {
	ServerAddr     string   `mapstructure:"server_addr"`
	WebsocketPath  string   `mapstructure:"ws_path"`
	MediaPath      string   `mapstructure:"media_path"`
	MediaDir       string   `mapstructure:"media_dir"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	SendQueue      int      `mapstructure:"send_queue"`
	MaxMessageSize int64    `mapstructure:"max_message_bytes"`
}

func (c Config) withDefaults() Config {
	if c.ServerAddr == "" {
		c.ServerAddr = ":8080"
	}
	if c.WebsocketPath == "" {
		c.WebsocketPath = "/ws/call/"
	}
	if c.MediaPath == "" {
		c.MediaPath = "/media/"
	}
	if !strings.HasSuffix(c.MediaPath, "/") {
		c.MediaPath += "/"
	}
	if c.SendQueue <= 0 {
		c.SendQueue = 64
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 8 << 20
	}
	return c
}

// Transport accepts browser websocket connections. Binary messages are audio,
// text messages are control JSON.
type Transport struct {
	cfg      Config
	server   *http.Server
	upgrader websocket.Upgrader
	logger   *slog.Logger

	recvMu sync.RWMutex
	recvCh chan frames.Frame
	done   chan struct{}
	once   sync.Once

	mu    sync.Mutex
	conns map[string]*conn

	draining atomic.Bool
}

func New(cfg Config) *Transport {
	cfg = cfg.withDefaults()
	t := &Transport{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		logger: logging.NewComponentLogger(slog.Default(), "browser_transport"),
		recvCh: make(chan frames.Frame, 512),
		done:   make(chan struct{}),
		conns:  make(map[string]*conn),
	}
	t.upgrader.CheckOrigin = t.checkOrigin
	return t
}

func (t *Transport) Name() string { return "browser" }

func (t *Transport) Recv() <-chan frames.Frame { return t.recvCh }

func (t *Transport) ReadyFields() map[string]any {
	return map[string]any{
		"server_addr": t.cfg.ServerAddr,
		"ws_path":     t.cfg.WebsocketPath,
		"media_path":  t.cfg.MediaPath,
	}
}

// Handler returns the routes served by the transport.
func (t *Transport) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(t.cfg.WebsocketPath, t)
	if t.cfg.MediaDir != "" {
		mux.Handle(t.cfg.MediaPath, http.StripPrefix(t.cfg.MediaPath, http.FileServer(http.Dir(t.cfg.MediaDir))))
	}
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if t.draining.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (t *Transport) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	t.server = &http.Server{
		Addr:              t.cfg.ServerAddr,
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           t.Handler(),
	}
	go func() {
		<-ctx.Done()
		_ = t.server.Close()
	}()
	go func() {
		if err := t.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.logger.Error("browser_transport_server_error", slog.String("error", err.Error()))
		}
	}()
	return nil
}

func (t *Transport) Stop() error {
	t.draining.Store(true)
	if t.server != nil {
		_ = t.server.Close()
	}
	t.mu.Lock()
	for _, c := range t.conns {
		_ = c.close()
	}
	t.conns = make(map[string]*conn)
	t.mu.Unlock()
	t.once.Do(func() {
		close(t.done)
		t.recvMu.Lock()
		close(t.recvCh)
		t.recvMu.Unlock()
	})
	return nil
}

// SetDraining makes the transport refuse new upgrades.
func (t *Transport) SetDraining(v bool) { t.draining.Store(v) }

func (t *Transport) Send(connID string, msg transports.Message) error {
	t.mu.Lock()
	c := t.conns[connID]
	t.mu.Unlock()
	if c == nil {
		return errorsx.Wrap(fmt.Errorf("connection %s not found", connID), errorsx.ReasonTransportSend)
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := c.enqueue(outbound{data: b}); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonTransportSend)
	}
	return nil
}

// CloseConn writes a close frame once the send queue ahead of it is flushed.
// The read side then sees the caller's close reply, or times out, and reports
// the disconnect as usual.
func (t *Transport) CloseConn(connID string, code int, reason string) error {
	t.mu.Lock()
	c := t.conns[connID]
	t.mu.Unlock()
	if c == nil {
		return errorsx.Wrap(fmt.Errorf("connection %s not found", connID), errorsx.ReasonTransportSend)
	}
	if err := c.enqueue(outbound{closeCode: code, reason: reason}); err != nil {
		_ = c.ws.Close()
		return errorsx.Wrap(err, errorsx.ReasonTransportSend)
	}
	return nil
}

func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if t.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	ws, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.logger.Warn("browser_upgrade_failed", slog.String("error", err.Error()))
		return
	}
	ws.SetReadLimit(t.cfg.MaxMessageSize)

	connID := uuid.NewString()
	traceID := uuid.NewString()
	c := t.attach(connID, ws)
	t.logger.Info("browser_connected",
		slog.String("conn_id", connID),
		slog.String("trace_id", traceID),
		slog.String("remote_addr", r.RemoteAddr))
	t.emit(frames.NewConnectFrame(connID, traceID, r.URL.Query()))

	code := frames.CloseAbnormal
	for {
		kind, msg, err := ws.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				code = ce.Code
			}
			break
		}
		switch kind {
		case websocket.BinaryMessage:
			t.emit(frames.NewAudioFrame(connID, msg))
		case websocket.TextMessage:
			t.emit(frames.NewControlFrame(connID, msg))
		}
	}
	t.detach(connID, c)
	t.logger.Info("browser_disconnected",
		slog.String("conn_id", connID),
		slog.Int("code", code))
	t.emit(frames.NewDisconnectFrame(connID, code))
}

func (t *Transport) emit(f frames.Frame) {
	t.recvMu.RLock()
	defer t.recvMu.RUnlock()
	select {
	case <-t.done:
		return
	default:
	}
	select {
	case t.recvCh <- f:
	case <-t.done:
	}
}

func (t *Transport) attach(connID string, ws *websocket.Conn) *conn {
	c := &conn{ws: ws, sendCh: make(chan outbound, t.cfg.SendQueue), logger: t.logger}
	t.mu.Lock()
	t.conns[connID] = c
	t.mu.Unlock()
	go c.loop()
	return c
}

func (t *Transport) detach(connID string, c *conn) {
	t.mu.Lock()
	if t.conns[connID] == c {
		delete(t.conns, connID)
	}
	t.mu.Unlock()
	_ = c.close()
}

func (t *Transport) checkOrigin(r *http.Request) bool {
	if len(t.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	origin = strings.TrimRight(origin, "/")
	originHost := strings.TrimPrefix(origin, "https://")
	originHost = strings.TrimPrefix(originHost, "http://")
	for _, allowed := range t.cfg.AllowedOrigins {
		a := strings.TrimRight(strings.TrimSpace(allowed), "/")
		switch {
		case a == "":
			continue
		case a == "*":
			return true
		case strings.HasPrefix(a, "http://") || strings.HasPrefix(a, "https://"):
			if strings.EqualFold(a, origin) {
				return true
			}
		case strings.EqualFold(a, originHost):
			return true
		}
	}
	return false
}

const (
	writeWait  = 10 * time.Second
	closeGrace = 5 * time.Second
)

// outbound is either a text message or, when closeCode is set, a request to
// close the connection.
type outbound struct {
	data      []byte
	closeCode int
	reason    string
}

// conn owns the write side of one websocket. Writes go through a single
// goroutine because gorilla connections allow only one concurrent writer.
type conn struct {
	ws      *websocket.Conn
	sendCh  chan outbound
	logger  *slog.Logger
	mu      sync.Mutex
	closed  bool
	closing bool
}

var (
	errSendQueueFull = errors.New("send queue full")
	errConnClosed    = errors.New("connection closed")
)

func (c *conn) enqueue(out outbound) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.closing {
		return errConnClosed
	}
	select {
	case c.sendCh <- out:
		if out.closeCode != 0 {
			c.closing = true
		}
		return nil
	default:
		return errSendQueueFull
	}
}

func (c *conn) loop() {
	defer func() {
		for range c.sendCh {
		}
	}()
	for out := range c.sendCh {
		deadline := time.Now().Add(writeWait)
		if out.closeCode != 0 {
			msg := websocket.FormatCloseMessage(out.closeCode, out.reason)
			if err := c.ws.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
				_ = c.ws.Close()
				return
			}
			// net.Conn deadlines are safe to set while the reader is blocked.
			_ = c.ws.UnderlyingConn().SetReadDeadline(time.Now().Add(closeGrace))
			return
		}
		_ = c.ws.SetWriteDeadline(deadline)
		if err := c.ws.WriteMessage(websocket.TextMessage, out.data); err != nil {
			c.logger.Warn("browser_write_failed", slog.String("error", err.Error()))
			_ = c.ws.Close()
			return
		}
	}
}

func (c *conn) close() error {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.sendCh)
	}
	c.mu.Unlock()
	return c.ws.Close()
}

var (
	_ transports.Transport     = (*Transport)(nil)
	_ transports.Drainer       = (*Transport)(nil)
	_ transports.ReadyReporter = (*Transport)(nil)
)
