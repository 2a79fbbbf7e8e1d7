package session

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harunnryd/callagent/pkg/frames"
)

// ErrDraining is returned when a connection arrives during shutdown.
var ErrDraining = errors.New("session registry draining")

// Factory opens the session for a new connection.
type Factory func(ctx context.Context, connID, traceID string, query url.Values) (*Controller, error)

// Registry tracks live sessions by connection id.
type Registry struct {
	sessions sync.Map
	count    atomic.Int64
	factory  Factory
	draining atomic.Bool
}

func NewRegistry(factory Factory) *Registry {
	return &Registry{factory: factory}
}

// Create opens a session unless one already exists for connID.
func (r *Registry) Create(ctx context.Context, connID, traceID string, query url.Values) (*Controller, bool, error) {
	if connID == "" {
		return nil, false, errors.New("missing connection id")
	}
	if v, ok := r.sessions.Load(connID); ok {
		return v.(*Controller), false, nil
	}
	if r.draining.Load() {
		return nil, false, ErrDraining
	}
	sess, err := r.factory(ctx, connID, traceID, query)
	if err != nil {
		return nil, false, err
	}
	actual, loaded := r.sessions.LoadOrStore(connID, sess)
	if loaded {
		sess.Close(frames.CloseAbnormal)
		return actual.(*Controller), false, nil
	}
	r.count.Add(1)
	return sess, true, nil
}

func (r *Registry) Get(connID string) (*Controller, bool) {
	if v, ok := r.sessions.Load(connID); ok {
		return v.(*Controller), true
	}
	return nil, false
}

// Remove closes the session for connID with the given close code.
func (r *Registry) Remove(connID string, code int) {
	if v, ok := r.sessions.LoadAndDelete(connID); ok {
		v.(*Controller).Close(code)
		r.count.Add(-1)
	}
}

// List returns the live sessions in no particular order.
func (r *Registry) List() []*Controller {
	var out []*Controller
	r.sessions.Range(func(_, value any) bool {
		out = append(out, value.(*Controller))
		return true
	})
	return out
}

func (r *Registry) CloseAll(code int) {
	r.sessions.Range(func(key, value any) bool {
		if connID, ok := key.(string); ok {
			r.Remove(connID, code)
		}
		return true
	})
}

func (r *Registry) Count() int64 {
	return r.count.Load()
}

func (r *Registry) SetDraining(v bool) {
	r.draining.Store(v)
}

func (r *Registry) Draining() bool {
	return r.draining.Load()
}

func (r *Registry) WaitForEmpty(ctx context.Context, interval time.Duration) bool {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if r.Count() == 0 {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}
