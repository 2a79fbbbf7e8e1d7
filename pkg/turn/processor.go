package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/harunnryd/callagent/pkg/adapters/stt"
	"github.com/harunnryd/callagent/pkg/adapters/tts"
	"github.com/harunnryd/callagent/pkg/audio"
	"github.com/harunnryd/callagent/pkg/conversation"
	"github.com/harunnryd/callagent/pkg/errorsx"
	"github.com/harunnryd/callagent/pkg/llm"
	"github.com/harunnryd/callagent/pkg/logging"
	"github.com/harunnryd/callagent/pkg/metrics"
	"github.com/harunnryd/callagent/pkg/redact"
	"github.com/harunnryd/callagent/pkg/storage"
	"github.com/harunnryd/callagent/pkg/store"
	"github.com/harunnryd/callagent/pkg/transports"
)

// DefaultMinAudioBytes is the smallest buffer worth transcribing. Anything
// shorter cannot hold a usable WAV clip.
const DefaultMinAudioBytes = 1000

const errorPrefix = "Error processing audio: "

type Status int

const (
	// Skipped means the buffer was too small; nothing was sent or stored.
	Skipped Status = iota
	NoMatch
	Completed
	Failed
)

func (s Status) String() string {
	switch s {
	case Skipped:
		return "skipped"
	case NoMatch:
		return "no_match"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Notifier delivers outbound messages for the turn's connection.
type Notifier interface {
	Notify(msg transports.Message) error
}

type NotifierFunc func(msg transports.Message) error

func (f NotifierFunc) Notify(msg transports.Message) error { return f(msg) }

// Turn is one utterance handed over by a session.
type Turn struct {
	CallID   string
	TraceID  string
	Audio    []byte
	Language string
	Voice    string
	Speed    float64
	History  *conversation.Context
	Notify   Notifier
}

type Outcome struct {
	Status   Status
	AudioURL string
	Err      error
}

type Config struct {
	MinAudioBytes int
	HistoryWindow int
	SystemPrompt  string
	FallbackReply string
	// NormalizeRate resamples inbound WAV clips before recognition; zero disables it.
	NormalizeRate int
}

func (c Config) withDefaults() Config {
	if c.MinAudioBytes <= 0 {
		c.MinAudioBytes = DefaultMinAudioBytes
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = conversation.DefaultWindow
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = conversation.DefaultSystemInstruction
	}
	if c.FallbackReply == "" {
		c.FallbackReply = llm.DefaultFallbackReply
	}
	return c
}

type Deps struct {
	STT   stt.Recognizer
	LLM   llm.Responder
	TTS   tts.Synthesizer
	Store store.Store
	// Temp holds the per-turn clip; recognizers read it by path.
	Temp   *storage.Local
	Media  storage.MediaStore
	Obs    metrics.Observer
	Logger *slog.Logger
}

// Processor runs one utterance through recognition, the model and synthesis.
// It is safe for concurrent use across sessions.
type Processor struct {
	cfg    Config
	deps   Deps
	obs    metrics.Observer
	logger *slog.Logger
}

func NewProcessor(cfg Config, deps Deps) (*Processor, error) {
	switch {
	case deps.STT == nil:
		return nil, errors.New("turn: missing recognizer")
	case deps.LLM == nil:
		return nil, errors.New("turn: missing responder")
	case deps.TTS == nil:
		return nil, errors.New("turn: missing synthesizer")
	case deps.Store == nil:
		return nil, errors.New("turn: missing store")
	case deps.Temp == nil || deps.Media.FileStore == nil:
		return nil, errors.New("turn: missing file storage")
	}
	base := deps.Logger
	if base == nil {
		base = slog.Default()
	}
	return &Processor{
		cfg:    cfg.withDefaults(),
		deps:   deps,
		obs:    metrics.OrNoop(deps.Obs),
		logger: logging.NewComponentLogger(base, "turn_processor"),
	}, nil
}

// MinAudioBytes reports the validation threshold in effect.
func (p *Processor) MinAudioBytes() int { return p.cfg.MinAudioBytes }

// Process runs the turn to completion. It never panics and always removes the
// temporary clip before returning.
func (p *Processor) Process(ctx context.Context, t Turn) (out Outcome) {
	log := logging.NewCallLogger(p.logger, t.CallID, t.TraceID)
	start := time.Now()
	if t.History == nil {
		t.History = conversation.New()
	}
	if t.Notify == nil {
		t.Notify = NotifierFunc(func(transports.Message) error { return nil })
	}

	if len(t.Audio) < p.cfg.MinAudioBytes {
		log.Debug("turn_skipped", slog.Int("bytes", len(t.Audio)))
		return Outcome{Status: Skipped}
	}

	p.record(metrics.EventTurnStarted, t, map[string]any{"bytes": len(t.Audio)})
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%v", r)
			log.Error("turn_panic", slog.String("error", err.Error()))
			p.notify(log, t, transports.ErrorNotice(errorPrefix+err.Error()))
			out = Outcome{Status: Failed, Err: err}
		}
		p.record(metrics.EventTurnDone, t, map[string]any{
			"outcome":  out.Status.String(),
			"total_ms": time.Since(start).Milliseconds(),
		})
		log.Info("turn_done",
			slog.String("outcome", out.Status.String()),
			slog.Int64("total_ms", time.Since(start).Milliseconds()))
	}()

	clipName := storage.TempClipName(t.CallID)
	// Registered before the write: a write that fails midway still leaves a file.
	// The turn context may already be cancelled; removal must still happen.
	defer func() {
		if err := p.deps.Temp.Delete(context.Background(), clipName); err != nil {
			log.Warn("temp_clip_cleanup_failed", errorsx.LogAttrs(err)...)
		}
	}()
	if err := storage.Put(ctx, p.deps.Temp, clipName, p.prepareClip(log, t.Audio)); err != nil {
		return p.fail(log, t, errorsx.Wrap(err, errorsx.ReasonArtifactWrite))
	}

	sttStart := time.Now()
	res := p.deps.STT.Recognize(ctx, p.deps.Temp.Path(clipName), t.Language).Normalize()
	p.record(metrics.EventSTTDone, t, map[string]any{
		"status":      res.Status.String(),
		"duration_ms": time.Since(sttStart).Milliseconds(),
	})
	switch res.Status {
	case stt.StatusNoMatch:
		log.Info("stt_no_match")
		p.notify(log, t, transports.NoMatchNotice())
		return Outcome{Status: NoMatch}
	case stt.StatusEngineError:
		errText := "unknown"
		if res.Err != nil {
			errText = res.Err.Error()
		}
		log.Error("stt_engine_error",
			slog.String("provider", p.deps.STT.Name()),
			slog.String("reason", string(errorsx.ReasonSTTEngine)),
			slog.String("error", errText))
		p.notify(log, t, transports.NoMatchNotice())
		return Outcome{Status: NoMatch, Err: res.Err}
	}

	text := res.Text
	log.Info("stt_recognized", slog.String("text", redact.Preview(text, 80)))
	if _, err := p.deps.Store.AddTranscript(ctx, t.CallID, text, true); err != nil {
		return p.fail(log, t, errorsx.Wrap(err, errorsx.ReasonStoreWrite))
	}
	t.History.AppendUser(text)
	p.notify(log, t, transports.UserTranscript(text))

	reply := p.converse(ctx, log, t)

	if _, err := p.deps.Store.AddTranscript(ctx, t.CallID, reply, false); err != nil {
		return p.fail(log, t, errorsx.Wrap(err, errorsx.ReasonStoreWrite))
	}
	t.History.AppendAI(reply)
	p.notify(log, t, transports.AITranscript(reply))

	clip, err := p.synthesize(ctx, log, t, reply)
	if err != nil {
		return p.fail(log, t, err)
	}
	name := storage.ResponseName(t.CallID, clip.Format)
	if err := storage.Put(ctx, p.deps.Media, name, clip.Data); err != nil {
		return p.fail(log, t, errorsx.Wrap(err, errorsx.ReasonArtifactWrite))
	}
	url := p.deps.Media.URL(name)
	p.notify(log, t, transports.AudioReady(url))
	return Outcome{Status: Completed, AudioURL: url}
}

func (p *Processor) prepareClip(log *slog.Logger, data []byte) []byte {
	if p.cfg.NormalizeRate <= 0 {
		return data
	}
	out, info, err := audio.NormalizeWAV(data, p.cfg.NormalizeRate)
	if err != nil {
		log.Warn("wav_validation_failed", slog.String("error", err.Error()))
		return data
	}
	log.Debug("wav_normalized",
		slog.Int("sample_rate", info.SampleRate),
		slog.Int("channels", info.Channels),
		slog.Float64("duration_s", info.Duration()))
	return out
}

func (p *Processor) converse(ctx context.Context, log *slog.Logger, t Turn) string {
	llmStart := time.Now()
	prompt := t.History.Prompt(p.cfg.SystemPrompt, p.cfg.HistoryWindow)
	reply, err := p.deps.LLM.Generate(ctx, prompt)
	fallback := false
	if err != nil || reply == "" {
		if err == nil {
			err = errors.New("empty reply")
		}
		log.Warn("llm_generate_failed",
			slog.String("provider", p.deps.LLM.Name()),
			slog.String("reason", string(errorsx.ReasonLLMGenerate)),
			slog.String("error", err.Error()))
		reply = p.cfg.FallbackReply
		fallback = true
	}
	p.record(metrics.EventLLMDone, t, map[string]any{
		"fallback":    fallback,
		"duration_ms": time.Since(llmStart).Milliseconds(),
	})
	return reply
}

// synthesize tries the session voice first, then the plain language voice once.
func (p *Processor) synthesize(ctx context.Context, log *slog.Logger, t Turn, text string) (tts.Audio, error) {
	ttsStart := time.Now()
	voice := tts.Voice{Language: t.Language, Gender: t.Voice, Speed: t.Speed}
	clip, err := p.deps.TTS.Synthesize(ctx, text, voice)
	fallback := false
	if err != nil || len(clip.Data) == 0 {
		if err == nil {
			err = errors.New("empty audio")
		}
		log.Warn("tts_primary_failed",
			slog.String("provider", p.deps.TTS.Name()),
			slog.String("reason", string(errorsx.ReasonTTSPrimary)),
			slog.String("error", err.Error()))
		fallback = true
		clip, err = p.deps.TTS.Synthesize(ctx, text, tts.DefaultVoice(t.Language))
		if err == nil && len(clip.Data) == 0 {
			err = errors.New("empty audio")
		}
		if err != nil {
			return tts.Audio{}, errorsx.Wrap(err, errorsx.ReasonTTSFallback)
		}
	}
	p.record(metrics.EventTTSDone, t, map[string]any{
		"fallback":    fallback,
		"bytes":       len(clip.Data),
		"duration_ms": time.Since(ttsStart).Milliseconds(),
	})
	return clip, nil
}

func (p *Processor) fail(log *slog.Logger, t Turn, err error) Outcome {
	log.Error("turn_failed", errorsx.LogAttrs(err)...)
	p.notify(log, t, transports.ErrorNotice(errorPrefix+err.Error()))
	return Outcome{Status: Failed, Err: err}
}

// notify delivers msg. A closed connection is expected after disconnect, so
// failures are only logged.
func (p *Processor) notify(log *slog.Logger, t Turn, msg transports.Message) {
	if err := t.Notify.Notify(msg); err != nil {
		log.Debug("notify_failed", slog.String("error", err.Error()))
	}
}

func (p *Processor) record(name string, t Turn, fields map[string]any) {
	ev := metrics.CallEvent(name, t.CallID, t.TraceID, fields)
	p.obs.RecordEvent(ev)
}
