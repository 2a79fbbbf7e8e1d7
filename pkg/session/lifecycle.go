package session

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/harunnryd/callagent/pkg/errorsx"
	"github.com/harunnryd/callagent/pkg/logging"
	"github.com/harunnryd/callagent/pkg/metrics"
	"github.com/harunnryd/callagent/pkg/store"
	"github.com/harunnryd/callagent/pkg/transports"
	"github.com/harunnryd/callagent/pkg/turn"
)

// Params is the per-call configuration taken from the connection query.
type Params struct {
	Language string  `mapstructure:"language"`
	Voice    string  `mapstructure:"voice"`
	Speed    float64 `mapstructure:"speed"`
}

func DefaultParams() Params {
	return Params{Language: "en", Voice: "female", Speed: 1.3}
}

// ParseParams reads language, voice and speed from q, falling back to
// defaults for anything missing or unusable.
func ParseParams(q url.Values, defaults Params) Params {
	base := DefaultParams()
	if defaults.Language != "" {
		base.Language = defaults.Language
	}
	if defaults.Voice != "" {
		base.Voice = defaults.Voice
	}
	if defaults.Speed > 0 {
		base.Speed = defaults.Speed
	}
	p := base
	if v := strings.TrimSpace(q.Get("language")); v != "" {
		p.Language = v
	}
	if v := strings.TrimSpace(q.Get("voice")); v != "" {
		p.Voice = v
	}
	if v := strings.TrimSpace(q.Get("speed")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			p.Speed = f
		}
	}
	return p
}

// Lifecycle creates the call record on connect and stamps its end on
// disconnect.
type Lifecycle struct {
	store  store.Store
	obs    metrics.Observer
	logger *slog.Logger
	now    func() time.Time
}

func NewLifecycle(st store.Store, obs metrics.Observer, logger *slog.Logger) *Lifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lifecycle{
		store:  st,
		obs:    metrics.OrNoop(obs),
		logger: logging.NewComponentLogger(logger, "call_lifecycle"),
		now:    time.Now,
	}
}

// Connect persists a new call and acknowledges the effective params.
func (l *Lifecycle) Connect(ctx context.Context, traceID string, p Params, n turn.Notifier) (store.Call, error) {
	call, err := l.store.CreateCall(ctx)
	if err != nil {
		return store.Call{}, errorsx.Wrap(err, errorsx.ReasonStoreWrite)
	}
	log := logging.NewCallLogger(l.logger, call.ID, traceID)
	log.Info("call_started",
		slog.String("language", p.Language),
		slog.String("voice", p.Voice),
		slog.Float64("speed", p.Speed))
	l.obs.RecordEvent(metrics.CallEvent(metrics.EventCallStarted, call.ID, traceID, map[string]any{
		"language": p.Language,
		"voice":    p.Voice,
		"speed":    p.Speed,
	}))
	if err := n.Notify(transports.ConnectionAck(p.Language, p.Voice, p.Speed)); err != nil {
		log.Warn("connection_ack_failed", slog.String("error", err.Error()))
	}
	return call, nil
}

// Disconnect records the end time of call.
func (l *Lifecycle) Disconnect(ctx context.Context, call store.Call, traceID string, code int) (store.Call, error) {
	log := logging.NewCallLogger(l.logger, call.ID, traceID)
	ended, err := l.store.FinishCall(ctx, call.ID, l.now())
	if err != nil {
		log.Error("call_finish_failed",
			slog.Int("code", code),
			slog.String("error", err.Error()))
		return call, errorsx.Wrap(err, errorsx.ReasonStoreWrite)
	}
	dur := ended.Duration(l.now())
	log.Info("call_ended",
		slog.Int("code", code),
		slog.Int64("duration_ms", dur.Milliseconds()))
	l.obs.RecordEvent(metrics.CallEvent(metrics.EventCallEnded, call.ID, traceID, map[string]any{
		"code":        code,
		"duration_ms": dur.Milliseconds(),
	}))
	return ended, nil
}
