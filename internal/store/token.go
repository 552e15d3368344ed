package store

import (
	"context"
	"sync"
)

// Token scopes store writes to the lifetime of a view. Once cancelled, no write guarded by the
// token is ever applied, even if its response is already on the way.
type Token struct {
	mu        sync.Mutex
	cancelled bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewToken returns a live token.
func NewToken() *Token {
	ctx, cancel := context.WithCancel(context.Background())
	return &Token{ctx: ctx, cancel: cancel}
}

// Cancel invalidates the token. It is idempotent, and when it returns any write racing with it
// has either completed or been discarded.
func (t *Token) Cancel() {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.cancelled = true
	t.mu.Unlock()
	t.cancel()
}

// Alive reports whether writes guarded by this token are still accepted.
func (t *Token) Alive() bool {
	if t == nil {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.cancelled
}

// Done is closed when the token is cancelled.
func (t *Token) Done() <-chan struct{} {
	if t == nil {
		return nil
	}
	return t.ctx.Done()
}

// Bind derives a context that is also cancelled when the token is, so requests issued on
// behalf of a torn-down view are aborted where the transport allows it.
func (t *Token) Bind(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	if t == nil {
		return ctx, cancel
	}
	stop := context.AfterFunc(t.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (t *Token) guard(apply func()) bool {
	if t == nil {
		apply()
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled {
		return false
	}
	apply()
	return true
}
