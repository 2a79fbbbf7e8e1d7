package agent

import (
	"context"
	"errors"

	"github.com/harunnryd/callagent/pkg/adapters/stt"
	"github.com/harunnryd/callagent/pkg/adapters/tts"
	"github.com/harunnryd/callagent/pkg/configutil"
	"github.com/harunnryd/callagent/pkg/llm"
	"github.com/harunnryd/callagent/pkg/providers/deepgram"
	"github.com/harunnryd/callagent/pkg/providers/elevenlabs"
	"github.com/harunnryd/callagent/pkg/providers/gemini"
	"github.com/harunnryd/callagent/pkg/providers/gtts"
	"github.com/harunnryd/callagent/pkg/providers/mock"
	"github.com/harunnryd/callagent/pkg/providers/openai"
	"github.com/harunnryd/callagent/pkg/storage"
)

const (
	sttSettingsPath   = "vendors.stt.settings"
	llmSettingsPath   = "vendors.llm.settings"
	ttsSettingsPath   = "vendors.tts.settings"
	mediaSettingsPath = "storage.media.settings"
)

// RegisterBuiltins installs every provider shipped with the agent.
func RegisterBuiltins(reg *ProviderRegistry) {
	reg.RegisterSTT("deepgram", func(cfg Config) (stt.Recognizer, error) {
		var s struct {
			APIKey      string `mapstructure:"api_key"`
			Model       string `mapstructure:"model"`
			SmartFormat *bool  `mapstructure:"smart_format"`
			MaxRetries  int    `mapstructure:"max_retries"`
		}
		if err := configutil.Decode(sttSettingsPath, cfg.Vendors.STT.Settings, configutil.Schema{
			Required: []string{"api_key"},
			Optional: []string{"model", "smart_format", "max_retries"},
		}, &s); err != nil {
			return nil, err
		}
		if err := configutil.RequireString(s.APIKey, sttSettingsPath+".api_key"); err != nil {
			return nil, err
		}
		return deepgram.New(deepgram.Config{
			APIKey:      s.APIKey,
			Model:       s.Model,
			SmartFormat: configutil.BoolValue(s.SmartFormat, true),
			MaxRetries:  s.MaxRetries,
		})
	})

	reg.RegisterSTT("mock", func(cfg Config) (stt.Recognizer, error) {
		var s mock.STTConfig
		if err := configutil.Decode(sttSettingsPath, cfg.Vendors.STT.Settings, configutil.Schema{
			Optional: []string{"transcript", "no_match", "error"},
		}, &s); err != nil {
			return nil, err
		}
		return mock.NewSTT(s), nil
	})

	reg.RegisterLLM("gemini", func(ctx context.Context, cfg Config) (llm.Responder, error) {
		settings := cfg.Vendors.LLM.Settings
		var s gemini.Config
		if err := configutil.Decode(llmSettingsPath, settings, configutil.Schema{
			Required: []string{"api_key"},
			Optional: append([]string{"model"}, breakerKeys...),
		}, &s); err != nil {
			return nil, err
		}
		var b breakerSettings
		if err := configutil.DecodeSettings(settings, &b); err != nil {
			return nil, err
		}
		adapter, err := gemini.NewAdapter(ctx, s)
		if err != nil {
			return nil, err
		}
		return wrapResponder(adapter, b), nil
	})

	reg.RegisterLLM("openai", func(_ context.Context, cfg Config) (llm.Responder, error) {
		settings := cfg.Vendors.LLM.Settings
		var s openai.Config
		if err := configutil.Decode(llmSettingsPath, settings, configutil.Schema{
			Required: []string{"api_key"},
			Optional: append([]string{"model", "base_url"}, breakerKeys...),
		}, &s); err != nil {
			return nil, err
		}
		var b breakerSettings
		if err := configutil.DecodeSettings(settings, &b); err != nil {
			return nil, err
		}
		return wrapResponder(openai.NewAdapter(s), b), nil
	})

	reg.RegisterLLM("mock", func(_ context.Context, cfg Config) (llm.Responder, error) {
		var s mock.LLMConfig
		if err := configutil.Decode(llmSettingsPath, cfg.Vendors.LLM.Settings, configutil.Schema{
			Optional: []string{"response_text", "error"},
		}, &s); err != nil {
			return nil, err
		}
		return mock.NewLLM(s), nil
	})

	reg.RegisterTTS("gtts", func(cfg Config) (tts.Synthesizer, error) {
		var s gtts.Config
		if err := configutil.Decode(ttsSettingsPath, cfg.Vendors.TTS.Settings, configutil.Schema{
			Optional: []string{"base_url", "user_agent"},
		}, &s); err != nil {
			return nil, err
		}
		return gtts.New(s), nil
	})

	reg.RegisterTTS("elevenlabs", func(cfg Config) (tts.Synthesizer, error) {
		var s elevenlabs.Config
		if err := configutil.Decode(ttsSettingsPath, cfg.Vendors.TTS.Settings, configutil.Schema{
			Required: []string{"api_key", "voice_id"},
			Optional: []string{"voice_id_male", "model_id", "output_format", "base_url"},
		}, &s); err != nil {
			return nil, err
		}
		return elevenlabs.New(s)
	})

	reg.RegisterTTS("mock", func(cfg Config) (tts.Synthesizer, error) {
		var s mock.TTSConfig
		if err := configutil.Decode(ttsSettingsPath, cfg.Vendors.TTS.Settings, configutil.Schema{
			Optional: []string{"data", "format", "fail_times"},
		}, &s); err != nil {
			return nil, err
		}
		return mock.NewTTS(s), nil
	})

	reg.RegisterMedia("local", func(cfg Config) (storage.MediaStore, error) {
		var s struct {
			Dir     string `mapstructure:"dir"`
			BaseURL string `mapstructure:"base_url"`
		}
		if err := configutil.Decode(mediaSettingsPath, cfg.Storage.Media.Settings, configutil.Schema{
			Optional: []string{"dir", "base_url"},
		}, &s); err != nil {
			return storage.MediaStore{}, err
		}
		if s.Dir == "" {
			s.Dir = "media"
		}
		if s.BaseURL == "" {
			s.BaseURL = cfg.Transport.MediaPath
		}
		local, err := storage.NewLocal(s.Dir)
		if err != nil {
			return storage.MediaStore{}, err
		}
		return storage.MediaStore{FileStore: local, BaseURL: s.BaseURL}, nil
	})

	reg.RegisterMedia("s3", func(cfg Config) (storage.MediaStore, error) {
		var s struct {
			storage.S3Config `mapstructure:",squash"`
			BaseURL          string `mapstructure:"base_url"`
		}
		if err := configutil.Decode(mediaSettingsPath, cfg.Storage.Media.Settings, configutil.Schema{
			Required: []string{"bucket", "base_url"},
			Optional: []string{"prefix", "region", "endpoint", "access_key_id", "secret_access_key", "use_path_style", "content_type"},
		}, &s); err != nil {
			return storage.MediaStore{}, err
		}
		if s.ContentType == "" {
			s.ContentType = "audio/mpeg"
		}
		if s.AccessKeyID == "" || s.SecretAccessKey == "" {
			return storage.MediaStore{}, errors.New(mediaSettingsPath + ": access_key_id and secret_access_key are required")
		}
		store := storage.NewS3(storage.NewS3Client(s.S3Config), s.Bucket, s.Prefix).WithContentType(s.ContentType)
		return storage.MediaStore{FileStore: store, BaseURL: s.BaseURL}, nil
	})
}
