package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/harunnryd/callagent/pkg/adapters/stt"
	"github.com/harunnryd/callagent/pkg/errorsx"
	"github.com/harunnryd/callagent/pkg/logging"
	"github.com/harunnryd/callagent/pkg/resilience"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

const defaultModel = "nova-2"

type Config struct {
	APIKey      string `mapstructure:"api_key"`
	Model       string `mapstructure:"model"`
	SmartFormat bool   `mapstructure:"smart_format"`
	MaxRetries  int    `mapstructure:"max_retries"`
}

// transcribeFunc uploads one clip and returns the raw response.
type transcribeFunc func(ctx context.Context, path string, opts *interfaces.PreRecordedTranscriptionOptions) (any, error)

// Recognizer transcribes finished clips with the prerecorded endpoint.
type Recognizer struct {
	cfg        Config
	transcribe transcribeFunc
	retry      resilience.RetryPolicy
	logger     *slog.Logger
}

func New(cfg Config) (*Recognizer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("missing deepgram api key")
	}
	c := client.NewREST(cfg.APIKey, &interfaces.ClientOptions{})
	dg := api.New(c)
	fn := func(ctx context.Context, path string, opts *interfaces.PreRecordedTranscriptionOptions) (any, error) {
		return dg.FromFile(ctx, path, opts)
	}
	return newRecognizer(cfg, fn), nil
}

func newRecognizer(cfg Config, fn transcribeFunc) *Recognizer {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	return &Recognizer{
		cfg:        cfg,
		transcribe: fn,
		retry:      resilience.NewRetryPolicy(cfg.MaxRetries, 200*time.Millisecond),
		logger:     logging.NewComponentLogger(slog.Default(), "deepgram_stt"),
	}
}

func (r *Recognizer) Name() string { return "deepgram_stt" }

func (r *Recognizer) Recognize(ctx context.Context, clipPath, language string) stt.Result {
	opts := &interfaces.PreRecordedTranscriptionOptions{
		Model:       r.cfg.Model,
		Language:    language,
		Punctuate:   true,
		SmartFormat: r.cfg.SmartFormat,
	}
	var raw any
	err := r.retry.Do(ctx, func(ctx context.Context) error {
		var callErr error
		raw, callErr = r.transcribe(ctx, clipPath, opts)
		return callErr
	})
	if err != nil {
		r.logger.Error("deepgram_transcribe_failed",
			slog.String("language", language),
			slog.String("error", err.Error()))
		return stt.EngineError(errorsx.Wrap(err, errorsx.ReasonSTTEngine))
	}
	text, err := firstTranscript(raw)
	if err != nil {
		return stt.EngineError(errorsx.Wrap(err, errorsx.ReasonSTTEngine))
	}
	r.logger.Debug("deepgram_transcribed",
		slog.String("language", language),
		slog.Int("chars", len(text)))
	return stt.Recognized(text).Normalize()
}

type prerecordedResult struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// firstTranscript reads the top alternative of the first channel.
func firstTranscript(raw any) (string, error) {
	if raw == nil {
		return "", errors.New("empty deepgram response")
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return "", err
	}
	var res prerecordedResult
	if err := json.Unmarshal(b, &res); err != nil {
		return "", err
	}
	if len(res.Results.Channels) == 0 || len(res.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	return strings.TrimSpace(res.Results.Channels[0].Alternatives[0].Transcript), nil
}

var _ stt.Recognizer = (*Recognizer)(nil)
