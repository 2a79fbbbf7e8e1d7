package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/harunnryd/callagent/pkg/adapters/tts"
	"github.com/harunnryd/callagent/pkg/logging"
	"github.com/harunnryd/callagent/pkg/resilience"
)

type Config struct {
	APIKey       string `mapstructure:"api_key"`
	VoiceID      string `mapstructure:"voice_id"`
	VoiceIDMale  string `mapstructure:"voice_id_male"`
	ModelID      string `mapstructure:"model_id"`
	OutputFormat string `mapstructure:"output_format"`
	BaseURL      string `mapstructure:"base_url"`
}

// Synthesizer opens one stream-input session per reply and collects the
// audio until the server marks it final.
type Synthesizer struct {
	cfg    Config
	dialer websocket.Dialer
	logger *slog.Logger
}

func New(cfg Config) (*Synthesizer, error) {
	if cfg.APIKey == "" || cfg.VoiceID == "" {
		return nil, errors.New("missing elevenlabs config")
	}
	if cfg.VoiceIDMale == "" {
		cfg.VoiceIDMale = cfg.VoiceID
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "mp3_44100_128"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "wss://api.elevenlabs.io"
	}
	return &Synthesizer{
		cfg:    cfg,
		dialer: websocket.Dialer{Proxy: http.ProxyFromEnvironment},
		logger: logging.NewComponentLogger(slog.Default(), "elevenlabs_tts"),
	}, nil
}

func (s *Synthesizer) Name() string { return "elevenlabs_tts" }

func (s *Synthesizer) Synthesize(ctx context.Context, text string, voice tts.Voice) (tts.Audio, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return tts.Audio{}, errors.New("elevenlabs: empty text")
	}
	voiceID := s.cfg.VoiceID
	if voice.IsMale() {
		voiceID = s.cfg.VoiceIDMale
	}
	conn, resp, err := s.dialer.DialContext(ctx, s.buildURL(voiceID), http.Header{
		"xi-api-key": []string{s.cfg.APIKey},
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			return tts.Audio{}, resilience.RateLimitError{Provider: "elevenlabs", Message: resp.Status}
		}
		return tts.Audio{}, fmt.Errorf("elevenlabs dial: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	messages := []map[string]any{
		{
			"text": " ",
			"voice_settings": map[string]any{
				"stability":        0.5,
				"similarity_boost": 0.8,
				"speed":            clampSpeed(voice.Speed),
			},
		},
		{"text": text + " ", "try_trigger_generation": true},
		{"text": ""},
	}
	for _, m := range messages {
		if err := conn.WriteJSON(m); err != nil {
			return tts.Audio{}, s.connErr(ctx, err)
		}
	}

	var out []byte
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) && len(out) > 0 {
				break
			}
			return tts.Audio{}, s.connErr(ctx, err)
		}
		chunk, final, err := decodeMessage(data)
		if err != nil {
			return tts.Audio{}, err
		}
		out = append(out, chunk...)
		if final {
			break
		}
	}
	if len(out) == 0 {
		return tts.Audio{}, errors.New("elevenlabs returned no audio")
	}
	s.logger.Debug("elevenlabs_synthesized",
		slog.String("voice_id", voiceID),
		slog.Int("size_bytes", len(out)))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return tts.Audio{Data: out, Format: formatExt(s.cfg.OutputFormat)}, nil
}

func (s *Synthesizer) connErr(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	return err
}

func (s *Synthesizer) buildURL(voiceID string) string {
	q := url.Values{}
	if s.cfg.ModelID != "" {
		q.Set("model_id", s.cfg.ModelID)
	}
	q.Set("output_format", s.cfg.OutputFormat)
	return strings.TrimRight(s.cfg.BaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(voiceID) + "/stream-input?" + q.Encode()
}

type streamMessage struct {
	Audio   *string `json:"audio"`
	IsFinal *bool   `json:"isFinal"`
	Error   string  `json:"error"`
	Message string  `json:"message"`
}

func decodeMessage(data []byte) ([]byte, bool, error) {
	var msg streamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, false, fmt.Errorf("elevenlabs message: %w", err)
	}
	if msg.Error != "" {
		return nil, false, fmt.Errorf("elevenlabs: %s: %s", msg.Error, msg.Message)
	}
	var raw []byte
	if msg.Audio != nil && *msg.Audio != "" {
		b, err := base64.StdEncoding.DecodeString(*msg.Audio)
		if err != nil {
			return nil, false, fmt.Errorf("elevenlabs audio decode: %w", err)
		}
		raw = b
	}
	return raw, msg.IsFinal != nil && *msg.IsFinal, nil
}

// clampSpeed keeps the multiplier inside the range the voice settings accept.
func clampSpeed(v float64) float64 {
	switch {
	case v <= 0:
		return 1.0
	case v < 0.7:
		return 0.7
	case v > 1.2:
		return 1.2
	default:
		return v
	}
}

func formatExt(outputFormat string) string {
	if i := strings.IndexByte(outputFormat, '_'); i > 0 {
		return outputFormat[:i]
	}
	return outputFormat
}

var _ tts.Synthesizer = (*Synthesizer)(nil)
