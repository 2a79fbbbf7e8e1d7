package gtts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/harunnryd/callagent/pkg/adapters/tts"
	"github.com/harunnryd/callagent/pkg/audio"
	"github.com/harunnryd/callagent/pkg/logging"
	"github.com/harunnryd/callagent/pkg/resilience"
)

// maxChunkRunes is the longest text the endpoint accepts per request.
const maxChunkRunes = 100

type Config struct {
	// BaseURL is a format string receiving the accent TLD.
	BaseURL   string `mapstructure:"base_url"`
	UserAgent string `mapstructure:"user_agent"`
}

// Synthesizer speaks text through the Google Translate voice endpoint.
type Synthesizer struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

func New(cfg Config) *Synthesizer {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://translate.google.%s"
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Mozilla/5.0"
	}
	return &Synthesizer{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logging.NewComponentLogger(slog.Default(), "gtts"),
	}
}

func (s *Synthesizer) Name() string { return "gtts" }

func (s *Synthesizer) Synthesize(ctx context.Context, text string, voice tts.Voice) (tts.Audio, error) {
	parts := chunkText(text, maxChunkRunes)
	if len(parts) == 0 {
		return tts.Audio{}, errors.New("gtts: empty text")
	}
	lang := voice.Language
	if lang == "" {
		lang = "en"
	}
	base := fmt.Sprintf(s.cfg.BaseURL, voice.Accent())
	var buf bytes.Buffer
	for i, part := range parts {
		if err := s.fetch(ctx, base, lang, part, i, len(parts), &buf); err != nil {
			return tts.Audio{}, err
		}
	}
	data := buf.Bytes()
	if voice.Speed > 1 {
		fast, err := audio.SpeedUpMP3(data, voice.Speed)
		if err != nil {
			s.logger.Warn("gtts_speedup_skipped",
				slog.Float64("speed", voice.Speed),
				slog.String("error", err.Error()))
		} else {
			data = fast
		}
	}
	return tts.Audio{Data: data, Format: "mp3"}, nil
}

func (s *Synthesizer) fetch(ctx context.Context, base, lang, text string, idx, total int, w io.Writer) error {
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("client", "tw-ob")
	q.Set("tl", lang)
	q.Set("q", text)
	q.Set("total", fmt.Sprint(total))
	q.Set("idx", fmt.Sprint(idx))
	q.Set("textlen", fmt.Sprint(utf8.RuneCountInString(text)))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/translate_tts?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		return resilience.RateLimitError{Provider: "gtts", Message: resp.Status}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gtts status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

// chunkText packs words into chunks of at most max runes, closing a chunk
// after sentence punctuation. Words longer than max are split.
func chunkText(text string, max int) []string {
	var out []string
	var cur []rune
	flush := func() {
		if s := strings.TrimSpace(string(cur)); s != "" {
			out = append(out, s)
		}
		cur = cur[:0]
	}
	for _, word := range strings.Fields(text) {
		w := []rune(word)
		for len(w) > max {
			flush()
			out = append(out, string(w[:max]))
			w = w[max:]
		}
		if len(cur) > 0 && len(cur)+1+len(w) > max {
			flush()
		}
		if len(cur) > 0 {
			cur = append(cur, ' ')
		}
		cur = append(cur, w...)
		if strings.ContainsRune(".!?", w[len(w)-1]) {
			flush()
		}
	}
	flush()
	return out
}

var _ tts.Synthesizer = (*Synthesizer)(nil)
