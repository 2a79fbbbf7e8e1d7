package agent

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/harunnryd/callagent/pkg/conversation"
	"github.com/harunnryd/callagent/pkg/errorsx"
	"github.com/harunnryd/callagent/pkg/llm"
	"github.com/harunnryd/callagent/pkg/session"
	"github.com/harunnryd/callagent/pkg/transports/browser"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Environment   string              `mapstructure:"environment"`
	LogLevel      string              `mapstructure:"log_level"`
	LogFormat     string              `mapstructure:"log_format"`
	Transport     TransportConfig     `mapstructure:"transport"`
	Session       SessionConfig       `mapstructure:"session"`
	Workers       WorkersConfig       `mapstructure:"workers"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Audio         AudioConfig         `mapstructure:"audio"`
	Vendors       VendorsConfig       `mapstructure:"vendors"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Privacy       PrivacyConfig       `mapstructure:"privacy"`
	Shutdown      ShutdownConfig      `mapstructure:"shutdown"`
}

// VendorConfig selects a provider by name and carries its free-form settings.
type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type VendorsConfig struct {
	STT VendorConfig `mapstructure:"stt"`
	LLM VendorConfig `mapstructure:"llm"`
	TTS VendorConfig `mapstructure:"tts"`
}

type TransportConfig struct {
	// Provider is "browser" or "mock".
	Provider       string `mapstructure:"provider"`
	browser.Config `mapstructure:",squash"`
}

type SessionConfig struct {
	MinAudioBytes int            `mapstructure:"min_audio_bytes"`
	HistoryWindow int            `mapstructure:"history_window"`
	SystemPrompt  string         `mapstructure:"system_prompt"`
	FallbackReply string         `mapstructure:"fallback_reply"`
	Defaults      session.Params `mapstructure:"defaults"`
}

type WorkersConfig struct {
	Concurrency   int `mapstructure:"concurrency"`
	QueueSize     int `mapstructure:"queue_size"`
	TurnTimeoutMS int `mapstructure:"turn_timeout_ms"`
}

type StorageConfig struct {
	TempDir string       `mapstructure:"temp_dir"`
	Media   VendorConfig `mapstructure:"media"`
	DB      DBConfig     `mapstructure:"db"`
}

type DBConfig struct {
	Dir      string `mapstructure:"dir"`
	InMemory bool   `mapstructure:"in_memory"`
}

type AudioConfig struct {
	// NormalizeRate resamples inbound WAV before recognition; 0 disables it.
	NormalizeRate int `mapstructure:"normalize_rate"`
}

type ObservabilityConfig struct {
	TimelineDir   string `mapstructure:"timeline_dir"`
	RetentionDays int    `mapstructure:"retention_days"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

type ShutdownConfig struct {
	DrainTimeoutMS int `mapstructure:"drain_timeout_ms"`
}

// LoadConfig reads the YAML file at path. A .env file in the working
// directory is loaded first so ${VAR} references in the file resolve.
func LoadConfig(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	defaults := session.DefaultParams()
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("transport.provider", "browser")
	v.SetDefault("transport.server_addr", ":8080")
	v.SetDefault("transport.ws_path", "/ws/call/")
	v.SetDefault("transport.media_path", "/media/")
	v.SetDefault("transport.allowed_origins", []string{})
	v.SetDefault("transport.send_queue", 64)
	v.SetDefault("transport.max_message_bytes", 8<<20)
	v.SetDefault("session.min_audio_bytes", 1000)
	v.SetDefault("session.history_window", conversation.DefaultWindow)
	v.SetDefault("session.system_prompt", conversation.DefaultSystemInstruction)
	v.SetDefault("session.fallback_reply", llm.DefaultFallbackReply)
	v.SetDefault("session.defaults.language", defaults.Language)
	v.SetDefault("session.defaults.voice", defaults.Voice)
	v.SetDefault("session.defaults.speed", defaults.Speed)
	v.SetDefault("workers.concurrency", 4)
	v.SetDefault("workers.queue_size", 64)
	v.SetDefault("workers.turn_timeout_ms", 60000)
	v.SetDefault("storage.temp_dir", "temp")
	v.SetDefault("storage.media.provider", "local")
	v.SetDefault("storage.db.dir", "data/calls")
	v.SetDefault("storage.db.in_memory", false)
	v.SetDefault("audio.normalize_rate", 16000)
	v.SetDefault("vendors.stt.provider", "deepgram")
	v.SetDefault("vendors.llm.provider", "gemini")
	v.SetDefault("vendors.tts.provider", "gtts")
	v.SetDefault("observability.timeline_dir", "")
	v.SetDefault("observability.retention_days", 0)
	v.SetDefault("privacy.redact_pii", true)
	v.SetDefault("shutdown.drain_timeout_ms", 10000)
}

func (c *Config) Validate() error {
	var errs []error
	require := func(value, path string) {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, fmt.Errorf("%s is required", path))
		}
	}
	require(c.Transport.Provider, "transport.provider")
	require(c.Vendors.STT.Provider, "vendors.stt.provider")
	require(c.Vendors.LLM.Provider, "vendors.llm.provider")
	require(c.Vendors.TTS.Provider, "vendors.tts.provider")
	require(c.Storage.Media.Provider, "storage.media.provider")
	require(c.Storage.TempDir, "storage.temp_dir")
	if !c.Storage.DB.InMemory {
		require(c.Storage.DB.Dir, "storage.db.dir")
	}
	if c.Workers.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("workers.concurrency must be positive, got %d", c.Workers.Concurrency))
	}
	if c.Workers.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("workers.queue_size must be positive, got %d", c.Workers.QueueSize))
	}
	if c.Session.MinAudioBytes < 0 {
		errs = append(errs, fmt.Errorf("session.min_audio_bytes must not be negative, got %d", c.Session.MinAudioBytes))
	}
	if c.Session.Defaults.Speed <= 0 {
		errs = append(errs, fmt.Errorf("session.defaults.speed must be positive, got %g", c.Session.Defaults.Speed))
	}
	if c.Audio.NormalizeRate < 0 {
		errs = append(errs, fmt.Errorf("audio.normalize_rate must not be negative, got %d", c.Audio.NormalizeRate))
	}
	if len(errs) == 0 {
		return nil
	}
	return errorsx.Wrap(errors.Join(errs...), errorsx.ReasonConfig)
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.Vendors.STT.Settings = expandSettings(cfg.Vendors.STT.Settings)
	cfg.Vendors.LLM.Settings = expandSettings(cfg.Vendors.LLM.Settings)
	cfg.Vendors.TTS.Settings = expandSettings(cfg.Vendors.TTS.Settings)
	cfg.Storage.Media.Settings = expandSettings(cfg.Storage.Media.Settings)
}

func expandSettings(settings map[string]any) map[string]any {
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		return expandSettings(val)
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			if ks, ok := k.(string); ok {
				out[ks] = expandAny(v)
			}
		}
		return out
	default:
		return v
	}
}

// expandValue walks typed config fields; settings maps are handled separately.
func expandValue(v reflect.Value) {
	switch v.Kind() {
	case reflect.Pointer:
		if !v.IsNil() {
			expandValue(v.Elem())
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	}
}
