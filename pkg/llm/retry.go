package llm

import (
	"context"
	"fmt"

	"github.com/harunnryd/callagent/pkg/resilience"
)

// RetryResponder retries transient failures of inner with backoff.
type RetryResponder struct {
	inner  Responder
	policy resilience.RetryPolicy
}

func NewRetryResponder(inner Responder, policy resilience.RetryPolicy) *RetryResponder {
	return &RetryResponder{inner: inner, policy: policy}
}

func (r *RetryResponder) Name() string { return r.inner.Name() }

func (r *RetryResponder) Generate(ctx context.Context, prompt string) (string, error) {
	var reply string
	attempts := 0
	err := r.policy.Do(ctx, func(ctx context.Context) error {
		attempts++
		var err error
		reply, err = r.inner.Generate(ctx, prompt)
		return err
	})
	if err != nil {
		if attempts > 1 {
			return "", fmt.Errorf("%s failed after %d attempts: %w", r.inner.Name(), attempts, err)
		}
		return "", err
	}
	return reply, nil
}
