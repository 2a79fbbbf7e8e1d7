package llm

import (
	"context"
	"sync"
	"time"

	"github.com/harunnryd/callagent/pkg/errorsx"
	"github.com/harunnryd/callagent/pkg/metrics"
	"github.com/harunnryd/callagent/pkg/resilience"
)

// CircuitBreakerResponder fails fast while the vendor is rate limiting us.
// Denied turns get a RateLimitError, which the turn processor answers with
// the fallback reply.
type CircuitBreakerResponder struct {
	inner   Responder
	breaker *resilience.CircuitBreaker
	obs     metrics.Observer

	mu   sync.Mutex
	last resilience.BreakerState
}

func NewCircuitBreakerResponder(inner Responder, breaker *resilience.CircuitBreaker) *CircuitBreakerResponder {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(3, 30*time.Second)
	}
	return &CircuitBreakerResponder{inner: inner, breaker: breaker, obs: metrics.NoopObserver{}}
}

func (a *CircuitBreakerResponder) Name() string { return a.inner.Name() }

func (a *CircuitBreakerResponder) SetObserver(obs metrics.Observer) { a.obs = metrics.OrNoop(obs) }

func (a *CircuitBreakerResponder) Generate(ctx context.Context, prompt string) (string, error) {
	if a.observe() == resilience.BreakerOpen {
		a.record(metrics.EventBreakerDenied)
		return "", errorsx.Wrap(resilience.RateLimitError{Provider: a.Name(), Message: "circuit open"}, errorsx.ReasonLLMRateLimit)
	}
	reply, err := a.inner.Generate(ctx, prompt)
	if err != nil {
		if resilience.IsRateLimit(err) {
			a.record(metrics.EventRateLimit)
		}
		a.breaker.OnError(err)
		a.observe()
		return "", err
	}
	a.breaker.OnSuccess()
	a.observe()
	return reply, nil
}

// observe reads the breaker state and emits an event when it flipped since
// the previous call.
func (a *CircuitBreakerResponder) observe() resilience.BreakerState {
	state := a.breaker.State()
	a.mu.Lock()
	prev := a.last
	a.last = state
	a.mu.Unlock()
	switch {
	case prev == state:
	case state == resilience.BreakerOpen:
		a.record(metrics.EventBreakerOpen)
	default:
		a.record(metrics.EventBreakerClose)
	}
	return state
}

func (a *CircuitBreakerResponder) record(name string) {
	a.obs.RecordEvent(metrics.MetricsEvent{
		Name: name,
		Time: time.Now(),
		Tags: map[string]string{
			metrics.TagProvider:  a.inner.Name(),
			metrics.TagComponent: "llm",
		},
	})
}
