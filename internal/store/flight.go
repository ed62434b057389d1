package store

import (
	"context"
	"sync"

	"routemaster/internal/api"
)

type call[V any] struct {
	done    chan struct{}
	val     V
	err     error
	waiters int
	cancel  context.CancelFunc
}

// flightGroup collapses concurrent fetches of one key into a single request.
// The fetch runs detached from any one caller and is canceled only when every
// caller waiting on it has given up.
type flightGroup[K comparable, V any] struct {
	mu    sync.Mutex
	calls map[K]*call[V]
}

// do joins the in-flight fetch for key or starts one. settle runs once with the
// outcome before any waiter is released; it is skipped when the fetch was
// abandoned. shared reports whether this caller attached to an existing fetch.
func (g *flightGroup[K, V]) do(
	ctx context.Context,
	key K,
	fetch func(context.Context) (V, error),
	settle func(V, error),
) (v V, shared bool, err error) {
	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[K]*call[V])
	}
	c, shared := g.calls[key]
	if !shared {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		c = &call[V]{done: make(chan struct{}), cancel: cancel}
		g.calls[key] = c
		go g.run(fctx, key, c, fetch, settle)
	}
	c.waiters++
	g.mu.Unlock()

	select {
	case <-c.done:
		return c.val, shared, c.err
	case <-ctx.Done():
		g.mu.Lock()
		c.waiters--
		if c.waiters == 0 {
			c.cancel()
			if g.calls[key] == c {
				delete(g.calls, key)
			}
		}
		g.mu.Unlock()
		var zero V
		return zero, shared, canceledErr(ctx.Err())
	}
}

func (g *flightGroup[K, V]) run(
	ctx context.Context,
	key K,
	c *call[V],
	fetch func(context.Context) (V, error),
	settle func(V, error),
) {
	v, err := fetch(ctx)

	g.mu.Lock()
	abandoned := c.waiters == 0
	g.mu.Unlock()

	if !abandoned && settle != nil && !api.IsCanceled(err) {
		settle(v, err)
	}

	g.mu.Lock()
	if g.calls[key] == c {
		delete(g.calls, key)
	}
	c.val, c.err = v, err
	g.mu.Unlock()

	c.cancel()
	close(c.done)
}

// inFlight reports whether a fetch for key is running.
func (g *flightGroup[K, V]) inFlight(key K) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.calls[key]
	return ok
}
