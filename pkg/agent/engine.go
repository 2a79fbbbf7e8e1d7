package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/callagent/pkg/errorsx"
	"github.com/harunnryd/callagent/pkg/frames"
	"github.com/harunnryd/callagent/pkg/llm"
	"github.com/harunnryd/callagent/pkg/logging"
	"github.com/harunnryd/callagent/pkg/metrics"
	"github.com/harunnryd/callagent/pkg/observers"
	"github.com/harunnryd/callagent/pkg/redact"
	"github.com/harunnryd/callagent/pkg/runner"
	"github.com/harunnryd/callagent/pkg/session"
	"github.com/harunnryd/callagent/pkg/storage"
	"github.com/harunnryd/callagent/pkg/store"
	"github.com/harunnryd/callagent/pkg/transports"
	"github.com/harunnryd/callagent/pkg/transports/browser"
	mocktransport "github.com/harunnryd/callagent/pkg/transports/mock"
	"github.com/harunnryd/callagent/pkg/turn"
)

type Options struct {
	Config Config
	// Providers defaults to a registry with the builtins installed.
	Providers *ProviderRegistry
	// Transport defaults to the one named by transport.provider.
	Transport transports.Transport
	// Store defaults to Badger under storage.db. A store passed in is not
	// closed by the engine.
	Store  store.Store
	Logger *slog.Logger
	// Banner receives the startup banner; nil prints nothing.
	Banner io.Writer
}

// Engine wires the transport to per-connection sessions and runs turns on a
// shared worker pool.
type Engine struct {
	cfg        Config
	logger     *slog.Logger
	transport  transports.Transport
	providers  *ProviderRegistry
	store      store.Store
	ownsStore  bool
	dispatcher *turn.Dispatcher
	processor  *turn.Processor
	registry   *session.Registry
	asyncObs   *metrics.AsyncObserver
	timeline   *observers.TimelineObserver
	runner     *runner.LifecycleRunner
	ctx        context.Context
	cancel     context.CancelFunc
	drainOnce  sync.Once
	drainErr   error
}

func NewEngine(ctx context.Context, opts Options) (_ *Engine, err error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = logging.InitLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
		slog.SetDefault(logger)
	}
	redact.SetEnabled(cfg.Privacy.RedactPII)

	logger.Info("callagent_init",
		"environment", cfg.Environment,
		"stt_provider", cfg.Vendors.STT.Provider,
		"llm_provider", cfg.Vendors.LLM.Provider,
		"tts_provider", cfg.Vendors.TTS.Provider,
		"media_provider", cfg.Storage.Media.Provider,
		"transport", cfg.Transport.Provider,
	)

	var cleanup []func()
	defer func() {
		if err != nil {
			for i := len(cleanup) - 1; i >= 0; i-- {
				cleanup[i]()
			}
		}
	}()

	providers := opts.Providers
	if providers == nil {
		providers = NewProviderRegistry()
		RegisterBuiltins(providers)
	}

	obsList := []metrics.Observer{
		observers.NewLoggerObserver(logger),
		observers.NewTurnLatencyObserver(logger),
	}
	var timeline *observers.TimelineObserver
	sweepStaleFiles(cfg, logger)
	if dir := strings.TrimSpace(cfg.Observability.TimelineDir); dir != "" {
		timeline = observers.NewTimelineObserver(dir)
		obsList = append(obsList, timeline)
		cleanup = append(cleanup, func() { _ = timeline.Close() })
	}
	asyncObs := metrics.NewAsyncObserver(observers.NewMultiObserver(obsList...), 2048)
	cleanup = append(cleanup, asyncObs.Close)

	media, err := providers.BuildMedia(cfg)
	if err != nil {
		return nil, fmt.Errorf("media store: %w", err)
	}
	recognizer, err := providers.BuildSTT(cfg)
	if err != nil {
		return nil, fmt.Errorf("stt: %w", err)
	}
	responder, err := providers.BuildLLM(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	if cb, ok := responder.(*llm.CircuitBreakerResponder); ok {
		cb.SetObserver(asyncObs)
	}
	synthesizer, err := providers.BuildTTS(cfg)
	if err != nil {
		return nil, fmt.Errorf("tts: %w", err)
	}
	temp, err := storage.NewLocal(cfg.Storage.TempDir)
	if err != nil {
		return nil, fmt.Errorf("temp dir: %w", err)
	}

	st := opts.Store
	ownsStore := false
	if st == nil {
		db, derr := store.NewBadger(store.BadgerOptions{
			Dir:      cfg.Storage.DB.Dir,
			InMemory: cfg.Storage.DB.InMemory,
			Logger:   logger,
		})
		if derr != nil {
			return nil, derr
		}
		st, ownsStore = db, true
		cleanup = append(cleanup, func() { _ = db.Close() })
	}

	processor, err := turn.NewProcessor(turn.Config{
		MinAudioBytes: cfg.Session.MinAudioBytes,
		HistoryWindow: cfg.Session.HistoryWindow,
		SystemPrompt:  cfg.Session.SystemPrompt,
		FallbackReply: cfg.Session.FallbackReply,
		NormalizeRate: cfg.Audio.NormalizeRate,
	}, turn.Deps{
		STT:    recognizer,
		LLM:    responder,
		TTS:    synthesizer,
		Store:  st,
		Temp:   temp,
		Media:  media,
		Obs:    asyncObs,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	transport := opts.Transport
	if transport == nil {
		transport, err = buildTransport(cfg, media)
		if err != nil {
			return nil, err
		}
	}

	dispatcher := turn.NewDispatcher(turn.DispatcherOptions{
		Concurrency: cfg.Workers.Concurrency,
		QueueSize:   cfg.Workers.QueueSize,
		Timeout:     time.Duration(cfg.Workers.TurnTimeoutMS) * time.Millisecond,
	})

	lifecycle := session.NewLifecycle(st, asyncObs, logger)
	registry := session.NewRegistry(func(ctx context.Context, connID, traceID string, query url.Values) (*session.Controller, error) {
		return session.Open(ctx, session.Deps{
			Runner:    processor,
			Pool:      dispatcher,
			Lifecycle: lifecycle,
			Sender:    transport,
			Defaults:  cfg.Session.Defaults,
			Logger:    logger,
		}, connID, traceID, query)
	})

	engineCtx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "engine"),
		transport:  transport,
		providers:  providers,
		store:      st,
		ownsStore:  ownsStore,
		dispatcher: dispatcher,
		processor:  processor,
		registry:   registry,
		asyncObs:   asyncObs,
		timeline:   timeline,
		ctx:        engineCtx,
		cancel:     cancel,
	}

	drainTimeout := e.drainTimeout()
	e.runner = runner.NewLifecycleRunner(e, runner.Hooks{
		OnStart: e.onStart,
		OnStop:  e.onStop,
	}, drainTimeout+10*time.Second)
	e.runner.Banner = opts.Banner
	return e, nil
}

func buildTransport(cfg Config, media storage.MediaStore) (transports.Transport, error) {
	switch providerKey(cfg.Transport.Provider) {
	case "browser":
		bc := cfg.Transport.Config
		if local, ok := media.FileStore.(*storage.Local); ok && bc.MediaDir == "" {
			bc.MediaDir = local.Root()
		}
		return browser.New(bc), nil
	case "mock":
		return mocktransport.New(), nil
	default:
		return nil, fmt.Errorf("transport provider not registered: %s", cfg.Transport.Provider)
	}
}

func (e *Engine) drainTimeout() time.Duration {
	if e.cfg.Shutdown.DrainTimeoutMS > 0 {
		return time.Duration(e.cfg.Shutdown.DrainTimeoutMS) * time.Millisecond
	}
	return 10 * time.Second
}

// Start begins accepting connections. It returns once the transport is up;
// the engine runs until ctx is cancelled or Stop is called.
func (e *Engine) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := e.transport.Start(ctx); err != nil {
		return err
	}
	go e.route(ctx)
	go func() {
		if err := e.runner.Run(ctx); err != nil {
			e.logger.Warn("runner_stopped", "error", err)
		}
	}()
	return nil
}

// Stop drains sessions and releases every resource the engine owns.
func (e *Engine) Stop() error {
	err := e.runner.Stop()
	e.cancel()
	return err
}

func (e *Engine) onStart() {
	fields := []any{"message", "Call agent ready"}
	if rr, ok := e.transport.(transports.ReadyReporter); ok {
		for k, v := range rr.ReadyFields() {
			fields = append(fields, k, v)
		}
	}
	e.logger.Info("engine_ready", fields...)
}

func (e *Engine) onStop() {
	e.asyncObs.Close()
	if e.timeline != nil {
		_ = e.timeline.Close()
	}
	stats := e.asyncObs.Stats()
	e.logger.Info("shutdown",
		"goroutines", runtime.NumGoroutine(),
		"active_calls", e.registry.Count(),
		"delivered_events", stats.Delivered,
		"dropped_events", stats.Dropped,
		"failed_events", stats.Failed)
}

// Drain stops admitting connections and waits for live calls to hang up.
// Calls still open when the drain timeout expires are closed with 1001.
// In-flight turns finish before the store is closed.
func (e *Engine) Drain() error {
	e.drainOnce.Do(func() {
		if d, ok := e.transport.(transports.Drainer); ok {
			d.SetDraining(true)
		}
		e.registry.SetDraining(true)

		ctx, cancel := context.WithTimeout(context.Background(), e.drainTimeout())
		defer cancel()
		if !e.registry.WaitForEmpty(ctx, 200*time.Millisecond) {
			live := e.registry.List()
			e.logger.Warn("drain_timeout", "active_calls", len(live))
			e.registry.CloseAll(frames.CloseGoingAway)
			for _, c := range live {
				<-c.Done()
			}
		}

		var errs []error
		if err := e.transport.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop transport: %w", err))
		}
		e.dispatcher.Close()
		if e.ownsStore {
			if err := e.store.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close store: %w", err))
			}
		}
		e.drainErr = errors.Join(errs...)
	})
	return e.drainErr
}

func (e *Engine) route(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-e.transport.Recv():
			if !ok {
				return
			}
			e.dispatch(f)
		}
	}
}

func (e *Engine) dispatch(f frames.Frame) {
	switch fr := f.(type) {
	case frames.ConnectFrame:
		if _, _, err := e.registry.Create(e.ctx, fr.ConnID(), fr.TraceID(), fr.Params()); err != nil {
			e.logger.Error("session_open_failed", append([]any{
				"conn_id", fr.ConnID(),
				"trace_id", fr.TraceID(),
			}, errorsx.LogAttrs(err)...)...)
			e.reject(fr.ConnID(), err)
		}
	case frames.AudioFrame:
		if s, ok := e.registry.Get(fr.ConnID()); ok {
			s.HandleAudio(fr.Data())
			return
		}
		e.logger.Debug("audio_without_session", "conn_id", fr.ConnID(), "bytes", fr.Len())
	case frames.ControlFrame:
		if s, ok := e.registry.Get(fr.ConnID()); ok {
			s.HandleControl(fr.Raw())
			return
		}
		e.logger.Debug("control_without_session", "conn_id", fr.ConnID())
	case frames.DisconnectFrame:
		e.registry.Remove(fr.ConnID(), fr.Code())
	}
}

// reject tells the caller why no session was opened and closes the
// connection so it stops streaming audio nobody will read.
func (e *Engine) reject(connID string, cause error) {
	code, text := frames.CloseInternalError, "Could not start the call"
	if errors.Is(cause, session.ErrDraining) {
		code, text = frames.CloseGoingAway, "Server is shutting down"
	}
	if err := e.transport.Send(connID, transports.ErrorNotice(text)); err != nil {
		e.logger.Debug("reject_notice_failed", "conn_id", connID, "error", err)
	}
	if err := e.transport.CloseConn(connID, code, text); err != nil {
		e.logger.Warn("reject_close_failed", append([]any{"conn_id", connID}, errorsx.LogAttrs(err)...)...)
	}
}

func (e *Engine) Config() Config                  { return e.cfg }
func (e *Engine) Transport() transports.Transport { return e.transport }
func (e *Engine) Registry() *session.Registry     { return e.registry }
func (e *Engine) Store() store.Store              { return e.store }
func (e *Engine) ProviderRegistry() *ProviderRegistry {
	return e.providers
}

// Health reports whether the engine is accepting calls.
func (e *Engine) Health() error {
	if e.registry.Draining() {
		return errors.New("draining")
	}
	if s := e.runner.State(); s != runner.StateRunning {
		return fmt.Errorf("engine %s", s)
	}
	return nil
}

// staleClipAge is how long a recognition clip may outlive its turn before a
// restart removes it.
const staleClipAge = time.Hour

// sweepStaleFiles removes expired timelines and clips orphaned by a crash.
func sweepStaleFiles(cfg Config, logger *slog.Logger) {
	rules := []observers.RetentionRule{{
		Dir:    cfg.Storage.TempDir,
		Prefix: storage.TempClipPrefix,
		Suffix: ".wav",
		MaxAge: staleClipAge,
	}}
	if cfg.Observability.RetentionDays > 0 {
		rules = append(rules, observers.RetentionRule{
			Dir:    cfg.Observability.TimelineDir,
			Suffix: ".jsonl",
			MaxAge: time.Duration(cfg.Observability.RetentionDays) * 24 * time.Hour,
		})
	}
	removed, err := observers.Sweep(rules, time.Now())
	if err != nil {
		logger.Warn("retention_sweep_failed", errorsx.LogAttrs(err)...)
	}
	for dir, n := range removed {
		logger.Info("retention_swept", "dir", dir, "files", n)
	}
}
