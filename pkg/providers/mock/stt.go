package mock

import (
	"context"
	"errors"
	"os"

	"github.com/harunnryd/callagent/pkg/adapters/stt"
)

type STTConfig struct {
	Transcript string `mapstructure:"transcript"`
	// NoMatch makes every request return a no-match result.
	NoMatch bool `mapstructure:"no_match"`
	// Error makes every request fail with this message.
	Error string `mapstructure:"error"`
}

// Recognizer returns canned results after checking the clip exists.
type Recognizer struct {
	cfg STTConfig
}

func NewSTT(cfg STTConfig) *Recognizer {
	if cfg.Transcript == "" {
		cfg.Transcript = "mock transcript"
	}
	return &Recognizer{cfg: cfg}
}

func (r *Recognizer) Name() string { return "mock_stt" }

func (r *Recognizer) Recognize(ctx context.Context, clipPath, _ string) stt.Result {
	if err := ctx.Err(); err != nil {
		return stt.EngineError(err)
	}
	if _, err := os.Stat(clipPath); err != nil {
		return stt.EngineError(err)
	}
	switch {
	case r.cfg.Error != "":
		return stt.EngineError(errors.New(r.cfg.Error))
	case r.cfg.NoMatch:
		return stt.NoMatch()
	default:
		return stt.Recognized(r.cfg.Transcript)
	}
}

var _ stt.Recognizer = (*Recognizer)(nil)
