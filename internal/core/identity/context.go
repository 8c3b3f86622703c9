package identity

import (
	"context"
	"sync"

	"github.com/rl1809/item-catalog/internal/core/domain"
)

type ctxKey struct{}

// scope is the per-request slot. Release empties it, so a context that
// outlives its request no longer yields the identity.
type scope struct {
	mu       sync.RWMutex
	identity *domain.Identity
}

// ReleaseFunc ends a binding. Calling it more than once is harmless.
type ReleaseFunc func()

// Bind returns a child of parent that carries id until release is called.
func Bind(parent context.Context, id domain.Identity) (context.Context, ReleaseFunc) {
	s := &scope{identity: &id}
	release := func() {
		s.mu.Lock()
		s.identity = nil
		s.mu.Unlock()
	}
	return context.WithValue(parent, ctxKey{}, s), release
}

// FromContext returns the identity bound to ctx, if any.
func FromContext(ctx context.Context) (domain.Identity, bool) {
	s, ok := ctx.Value(ctxKey{}).(*scope)
	if !ok {
		return domain.Identity{}, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return domain.Identity{}, false
	}
	return *s.identity, true
}

// Run binds id for the duration of fn and releases it on every exit path,
// panics included.
func Run(parent context.Context, id domain.Identity, fn func(ctx context.Context) error) error {
	ctx, release := Bind(parent, id)
	defer release()
	return fn(ctx)
}
