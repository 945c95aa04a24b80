// Package groutine spawns goroutines labeled for pprof and joinable by
// the spawner.
package groutine

import (
	"context"
	"runtime/pprof"
)

type nameKey struct{}

// Go runs fn on a new goroutine carrying name as a pprof label, so
// long-lived workers are identifiable in goroutine profiles. The name
// also travels in fn's context for log correlation. The returned channel
// closes when fn returns.
func Go(parent context.Context, name string, fn func(ctx context.Context)) <-chan struct{} {
	if parent == nil {
		parent = context.Background()
	}
	done := make(chan struct{})
	go pprof.Do(parent, pprof.Labels("goroutine_name", name), func(ctx context.Context) {
		defer close(done)
		fn(context.WithValue(ctx, nameKey{}, name))
	})
	return done
}

// Name returns the label Go stored in ctx, or "" when ctx did not come
// from Go.
func Name(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if s, ok := ctx.Value(nameKey{}).(string); ok {
		return s
	}
	return ""
}
