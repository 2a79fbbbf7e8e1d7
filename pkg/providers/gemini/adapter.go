package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/harunnryd/callagent/pkg/errorsx"
	"github.com/harunnryd/callagent/pkg/llm"
	"github.com/harunnryd/callagent/pkg/resilience"
	"google.golang.org/genai"
)

const DefaultModel = "gemini-flash-latest"

type Config struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type generateFunc func(ctx context.Context, model string, contents []*genai.Content) (*genai.GenerateContentResponse, error)

// Adapter answers prompts with a single GenerateContent call.
type Adapter struct {
	model    string
	generate generateFunc
}

func NewAdapter(ctx context.Context, cfg Config) (*Adapter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("missing gemini api key")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	return newAdapter(cfg.Model, func(ctx context.Context, model string, contents []*genai.Content) (*genai.GenerateContentResponse, error) {
		return client.Models.GenerateContent(ctx, model, contents, nil)
	}), nil
}

func newAdapter(model string, fn generateFunc) *Adapter {
	if model == "" {
		model = DefaultModel
	}
	return &Adapter{model: model, generate: fn}
}

func (a *Adapter) Name() string { return "gemini" }

func (a *Adapter) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := a.generate(ctx, a.model, genai.Text(prompt))
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
			return "", errorsx.Wrap(resilience.RateLimitError{Provider: "gemini", Message: apiErr.Message}, errorsx.ReasonLLMRateLimit)
		}
		return "", fmt.Errorf("genai generate: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini returned no candidates")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", errors.New("gemini returned empty text")
	}
	return text, nil
}

var _ llm.Responder = (*Adapter)(nil)
