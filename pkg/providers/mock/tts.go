package mock

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/harunnryd/callagent/pkg/adapters/tts"
)

type TTSConfig struct {
	// Data is returned as the synthesized clip.
	Data   string `mapstructure:"data"`
	Format string `mapstructure:"format"`
	// FailTimes makes the first N requests fail.
	FailTimes int `mapstructure:"fail_times"`
}

// Synthesizer returns a canned clip.
type Synthesizer struct {
	cfg   TTSConfig
	calls atomic.Int64
}

func NewTTS(cfg TTSConfig) *Synthesizer {
	if cfg.Data == "" {
		cfg.Data = "mock audio"
	}
	if cfg.Format == "" {
		cfg.Format = "mp3"
	}
	return &Synthesizer{cfg: cfg}
}

func (s *Synthesizer) Name() string { return "mock_tts" }

// Calls returns how many requests were made.
func (s *Synthesizer) Calls() int { return int(s.calls.Load()) }

func (s *Synthesizer) Synthesize(ctx context.Context, text string, voice tts.Voice) (tts.Audio, error) {
	n := s.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return tts.Audio{}, err
	}
	if int(n) <= s.cfg.FailTimes {
		return tts.Audio{}, fmt.Errorf("mock tts failure %d", n)
	}
	return tts.Audio{Data: []byte(s.cfg.Data), Format: s.cfg.Format}, nil
}

var _ tts.Synthesizer = (*Synthesizer)(nil)
