package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harunnryd/callagent/pkg/errorsx"
	"github.com/harunnryd/callagent/pkg/metrics"
	"github.com/harunnryd/callagent/pkg/resilience"
)

type stubResponder struct {
	errs  []error
	reply string
	calls int
}

func (s *stubResponder) Name() string { return "stub" }

func (s *stubResponder) Generate(context.Context, string) (string, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return "", err
	}
	return s.reply, nil
}

func TestRetryResponderRecovers(t *testing.T) {
	inner := &stubResponder{errs: []error{errors.New("timeout")}, reply: "hi there"}
	r := NewRetryResponder(inner, resilience.RetryPolicy{MaxRetries: 2, Backoff: time.Millisecond})
	got, err := r.Generate(context.Background(), "prompt")
	if err != nil || got != "hi there" {
		t.Fatalf("expected recovery, got %q (%v)", got, err)
	}
	if inner.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", inner.calls)
	}
}

func TestRetryResponderGivesUp(t *testing.T) {
	boom := errors.New("boom")
	inner := &stubResponder{errs: []error{boom, boom, boom}}
	r := NewRetryResponder(inner, resilience.RetryPolicy{MaxRetries: 2, Backoff: time.Millisecond})
	if _, err := r.Generate(context.Background(), "prompt"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
}

func TestCircuitBreakerResponderDeniesWhenOpen(t *testing.T) {
	inner := &stubResponder{errs: []error{resilience.RateLimitError{Provider: "stub"}}}
	obs := metrics.NewMemoryObserver()
	cb := NewCircuitBreakerResponder(inner, resilience.NewCircuitBreaker(1, time.Hour))
	cb.SetObserver(obs)

	if _, err := cb.Generate(context.Background(), "p"); !resilience.IsRateLimit(err) {
		t.Fatalf("expected rate limit, got %v", err)
	}
	if _, err := cb.Generate(context.Background(), "p"); !resilience.IsRateLimit(err) || !errorsx.HasReason(err, errorsx.ReasonLLMRateLimit) {
		t.Fatalf("expected tagged denial while open, got %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected inner called once, got %d", inner.calls)
	}
	names := obs.Names()
	if len(names) != 3 || names[0] != metrics.EventRateLimit || names[1] != metrics.EventBreakerOpen || names[2] != metrics.EventBreakerDenied {
		t.Fatalf("unexpected events %v", names)
	}
}
