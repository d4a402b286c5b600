// Package trackctx carries call-scoped tracking state in a context.Context:
// the enable/disable flags and the acting user.
package trackctx

import (
	"context"
	"sync"
)

// GlobalKey is the flag key that switches tracking for every scope.
const GlobalKey = "*"

type flagsKey struct{}

type actorKey struct{}

// Flags is a mutable flag store owned by one logical unit of work, such as an
// HTTP request. Unset keys read as enabled.
type Flags struct {
	mu     sync.RWMutex
	values map[string]bool
}

// NewFlags returns an empty flag store.
func NewFlags() *Flags {
	return &Flags{values: make(map[string]bool)}
}

// Get returns the flag for key and whether it was set.
func (f *Flags) Get(key string) (bool, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	v, ok := f.values[key]

	return v, ok
}

// Set stores the flag for key.
func (f *Flags) Set(key string, enabled bool) {
	f.mu.Lock()
	f.values[key] = enabled
	f.mu.Unlock()
}

// Unset removes key so it reads as enabled again.
func (f *Flags) Unset(key string) {
	f.mu.Lock()
	delete(f.values, key)
	f.mu.Unlock()
}

// Enabled reports whether tracking is on for scope under these flags.
func (f *Flags) Enabled(scope string) bool {
	if v, ok := f.Get(GlobalKey); ok && !v {
		return false
	}

	if v, ok := f.Get(scope); ok && !v {
		return false
	}

	return true
}

// WithFlags attaches a fresh flag store to ctx.
func WithFlags(ctx context.Context) (context.Context, *Flags) {
	f := NewFlags()

	return context.WithValue(ctx, flagsKey{}, f), f
}

// FlagsFrom returns the flag store attached to ctx, if any.
func FlagsFrom(ctx context.Context) (*Flags, bool) {
	f, ok := ctx.Value(flagsKey{}).(*Flags)

	return f, ok
}

// Enabled reports whether tracking is on for scope in ctx. A context without
// flags has tracking enabled.
func Enabled(ctx context.Context, scope string) bool {
	f, ok := FlagsFrom(ctx)
	if !ok {
		return true
	}

	return f.Enabled(scope)
}

// WithTrackingDisabled runs fn with tracking off for scope (GlobalKey for
// every scope) and restores the previous flag when fn returns or panics.
// If ctx has no flag store, fn gets a child context with its own.
func WithTrackingDisabled(ctx context.Context, scope string, fn func(context.Context) error) error {
	return withFlag(ctx, scope, false, fn)
}

// WithTrackingEnabled is the inverse of WithTrackingDisabled.
func WithTrackingEnabled(ctx context.Context, scope string, fn func(context.Context) error) error {
	return withFlag(ctx, scope, true, fn)
}

func withFlag(ctx context.Context, key string, enabled bool, fn func(context.Context) error) error {
	f, ok := FlagsFrom(ctx)
	if !ok {
		ctx, f = WithFlags(ctx)
	}

	prev, had := f.Get(key)
	f.Set(key, enabled)

	defer func() {
		if had {
			f.Set(key, prev)
		} else {
			f.Unset(key)
		}
	}()

	return fn(ctx)
}

// WithActor records who performs the work in ctx.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// Actor returns the actor recorded in ctx, or "".
func Actor(ctx context.Context) string {
	a, _ := ctx.Value(actorKey{}).(string)

	return a
}
