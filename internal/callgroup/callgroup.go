// Package callgroup coalesces concurrent calls that share a key.
//
// The watcher uses it so that a burst of filesystem events for one input
// file triggers a single index rebuild; every caller that arrived while the
// rebuild was running receives its result. Once the call returns the key is
// forgotten and the next call starts fresh work.
package callgroup

import (
	"context"
	"sync"
)

// Result is the outcome of a coalesced call.
type Result[V any] struct {
	Val V
	Err error
	// Shared is true when the caller joined a call started by someone else.
	Shared bool
}

// Group coalesces concurrent calls by key. The zero value is ready to use.
type Group[K comparable, V any] struct {
	mu    sync.Mutex
	calls map[K]*call[V]
}

type call[V any] struct {
	done chan struct{}
	val  V
	err  error
}

// DoChan runs fn unless a call for key is already in flight, in which case
// the caller joins it. The returned channel receives exactly one value and
// is never closed.
func (g *Group[K, V]) DoChan(key K, fn func() (V, error)) <-chan Result[V] {
	ch := make(chan Result[V], 1)

	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[K]*call[V])
	}
	if c, ok := g.calls[key]; ok {
		g.mu.Unlock()
		go func() {
			<-c.done
			ch <- Result[V]{Val: c.val, Err: c.err, Shared: true}
		}()
		return ch
	}

	c := &call[V]{done: make(chan struct{})}
	g.calls[key] = c
	g.mu.Unlock()

	go func() {
		c.val, c.err = fn()

		g.mu.Lock()
		delete(g.calls, key)
		g.mu.Unlock()

		close(c.done)
		ch <- Result[V]{Val: c.val, Err: c.err}
	}()
	return ch
}

// Do is DoChan that waits for the result. If ctx ends first, Do returns the
// context error; the in-flight call keeps running for the other callers.
func (g *Group[K, V]) Do(ctx context.Context, key K, fn func() (V, error)) (V, bool, error) {
	select {
	case res := <-g.DoChan(key, fn):
		return res.Val, res.Shared, res.Err
	case <-ctx.Done():
		var zero V
		return zero, false, ctx.Err()
	}
}
