package mock

import (
	"context"
	"errors"

	"github.com/harunnryd/callagent/pkg/llm"
)

type LLMConfig struct {
	ResponseText string `mapstructure:"response_text"`
	Error        string `mapstructure:"error"`
}

// Responder answers every prompt with the same reply.
type Responder struct {
	cfg LLMConfig
}

func NewLLM(cfg LLMConfig) *Responder {
	if cfg.ResponseText == "" {
		cfg.ResponseText = "mock response"
	}
	return &Responder{cfg: cfg}
}

func (r *Responder) Name() string { return "mock_llm" }

func (r *Responder) Generate(ctx context.Context, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if r.cfg.Error != "" {
		return "", errors.New(r.cfg.Error)
	}
	return r.cfg.ResponseText, nil
}

var _ llm.Responder = (*Responder)(nil)
