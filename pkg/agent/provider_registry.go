package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harunnryd/callagent/pkg/adapters/stt"
	"github.com/harunnryd/callagent/pkg/adapters/tts"
	"github.com/harunnryd/callagent/pkg/configutil"
	"github.com/harunnryd/callagent/pkg/llm"
	"github.com/harunnryd/callagent/pkg/resilience"
	"github.com/harunnryd/callagent/pkg/storage"
)

type STTFactory func(cfg Config) (stt.Recognizer, error)
type LLMFactory func(ctx context.Context, cfg Config) (llm.Responder, error)
type TTSFactory func(cfg Config) (tts.Synthesizer, error)
type MediaFactory func(cfg Config) (storage.MediaStore, error)

// ProviderRegistry maps provider names from the config to constructors.
// Names are case-insensitive.
type ProviderRegistry struct {
	stt   map[string]STTFactory
	llm   map[string]LLMFactory
	tts   map[string]TTSFactory
	media map[string]MediaFactory
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		stt:   make(map[string]STTFactory),
		llm:   make(map[string]LLMFactory),
		tts:   make(map[string]TTSFactory),
		media: make(map[string]MediaFactory),
	}
}

func providerKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (r *ProviderRegistry) RegisterSTT(name string, factory STTFactory) {
	r.stt[providerKey(name)] = factory
}

func (r *ProviderRegistry) RegisterLLM(name string, factory LLMFactory) {
	r.llm[providerKey(name)] = factory
}

func (r *ProviderRegistry) RegisterTTS(name string, factory TTSFactory) {
	r.tts[providerKey(name)] = factory
}

func (r *ProviderRegistry) RegisterMedia(name string, factory MediaFactory) {
	r.media[providerKey(name)] = factory
}

func (r *ProviderRegistry) BuildSTT(cfg Config) (stt.Recognizer, error) {
	fn := r.stt[providerKey(cfg.Vendors.STT.Provider)]
	if fn == nil {
		return nil, fmt.Errorf("stt provider not registered: %s", cfg.Vendors.STT.Provider)
	}
	return fn(cfg)
}

func (r *ProviderRegistry) BuildLLM(ctx context.Context, cfg Config) (llm.Responder, error) {
	fn := r.llm[providerKey(cfg.Vendors.LLM.Provider)]
	if fn == nil {
		return nil, fmt.Errorf("llm provider not registered: %s", cfg.Vendors.LLM.Provider)
	}
	return fn(ctx, cfg)
}

func (r *ProviderRegistry) BuildTTS(cfg Config) (tts.Synthesizer, error) {
	fn := r.tts[providerKey(cfg.Vendors.TTS.Provider)]
	if fn == nil {
		return nil, fmt.Errorf("tts provider not registered: %s", cfg.Vendors.TTS.Provider)
	}
	return fn(cfg)
}

func (r *ProviderRegistry) BuildMedia(cfg Config) (storage.MediaStore, error) {
	fn := r.media[providerKey(cfg.Storage.Media.Provider)]
	if fn == nil {
		return storage.MediaStore{}, fmt.Errorf("media provider not registered: %s", cfg.Storage.Media.Provider)
	}
	return fn(cfg)
}

// breakerSettings are accepted by every remote LLM provider.
type breakerSettings struct {
	UseCircuitBreaker *bool `mapstructure:"use_circuit_breaker"`
	CircuitThreshold  int   `mapstructure:"circuit_threshold"`
	CircuitCooldownMS int   `mapstructure:"circuit_cooldown_ms"`
	MaxRetries        *int  `mapstructure:"max_retries"`
	RetryBackoffMS    int   `mapstructure:"retry_backoff_ms"`
}

var breakerKeys = []string{"use_circuit_breaker", "circuit_threshold", "circuit_cooldown_ms", "max_retries", "retry_backoff_ms"}

// wrapResponder retries transient errors and trips a breaker on repeated rate limits.
func wrapResponder(inner llm.Responder, s breakerSettings) llm.Responder {
	out := inner
	if retries := configutil.IntValue(s.MaxRetries, 1); retries > 0 {
		policy := resilience.NewRetryPolicy(retries, configutil.Millis(s.RetryBackoffMS, 200*time.Millisecond))
		out = llm.NewRetryResponder(out, policy)
	}
	if configutil.BoolValue(s.UseCircuitBreaker, true) {
		breaker := resilience.NewCircuitBreaker(s.CircuitThreshold, configutil.Millis(s.CircuitCooldownMS, 30*time.Second))
		out = llm.NewCircuitBreakerResponder(out, breaker)
	}
	return out
}
