package store

import (
	"context"
	"sync"
	"sync/atomic"

	"routemaster/internal/metrics"
	"routemaster/internal/observable"
)

type slotState int

const (
	slotEmpty slotState = iota
	slotReady
	slotFailed
)

// slot one cached query result. value is authoritative; subject mirrors it
// for watchers.
type slot[V any] struct {
	state   slotState
	value   V
	err     error
	subject *observable.Subject[V]
}

// queryCache maps a key holding every parameter that shapes a result to a
// slot. Slots are created lazily and live as long as the store.
//
// Writes are serialized by writeMu so watchers observe them in the same order
// as the slot values change; reads only take mu. Observers must not write to
// the cache they watch from inside the callback.
type queryCache[K comparable, V any] struct {
	name    string
	empty   func() V
	metrics *metrics.Metrics

	// transient failures leave the slot empty instead of failed
	transient bool

	writeMu sync.Mutex
	mu      sync.Mutex
	slots   map[K]*slot[V]
	flights flightGroup[K, V]
}

func newQueryCache[K comparable, V any](name string, empty func() V, m *metrics.Metrics) *queryCache[K, V] {
	return &queryCache[K, V]{
		name:    name,
		empty:   empty,
		metrics: m,
		slots:   make(map[K]*slot[V]),
	}
}

// slotFor must be called with mu held.
func (c *queryCache[K, V]) slotFor(key K) *slot[V] {
	s, ok := c.slots[key]
	if !ok {
		s = &slot[V]{subject: observable.NewSubject(c.empty())}
		c.slots[key] = s
	}
	return s
}

// settled returns the outcome stored for key, if any.
func (c *queryCache[K, V]) settled(key K) (V, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.slotFor(key)
	switch s.state {
	case slotReady:
		return s.value, true, nil
	case slotFailed:
		var zero V
		return zero, true, s.err
	}
	var zero V
	return zero, false, nil
}

// load serves key from memory, or fetches it exactly once for all concurrent
// callers. A failed slot keeps its error until refresh.
func (c *queryCache[K, V]) load(ctx context.Context, key K, fetch func(context.Context) (V, error)) (V, error) {
	if v, ok, err := c.settled(key); ok {
		c.metrics.CacheLookup(c.name, metrics.ResultHit)
		return v, err
	}

	var hit atomic.Bool
	v, shared, err := c.flights.do(ctx, key, func(ctx context.Context) (V, error) {
		// the previous flight may have settled between the check above and do
		if v, ok, err := c.settled(key); ok {
			hit.Store(true)
			return v, err
		}
		return fetch(ctx)
	}, func(v V, err error) {
		if !hit.Load() {
			c.settle(key, v, err)
		}
	})
	switch {
	case shared:
		c.metrics.CacheLookup(c.name, metrics.ResultShared)
	case hit.Load():
		c.metrics.CacheLookup(c.name, metrics.ResultHit)
	default:
		c.metrics.CacheLookup(c.name, metrics.ResultMiss)
	}
	return v, err
}

// refresh re-fetches key regardless of its state. A failure keeps an existing
// value; only a slot with no value turns failed.
func (c *queryCache[K, V]) refresh(ctx context.Context, key K, fetch func(context.Context) (V, error)) (V, error) {
	v, _, err := c.flights.do(ctx, key, fetch, func(v V, err error) { c.settle(key, v, err) })
	return v, err
}

func (c *queryCache[K, V]) settle(key K, v V, err error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	s := c.slotFor(key)
	if err != nil {
		if s.state == slotReady || c.transient {
			c.mu.Unlock()
			return
		}
		s.state = slotFailed
		s.err = err
		subject := s.subject
		c.mu.Unlock()
		subject.Error(err)
		return
	}
	if s.state == slotFailed {
		s.subject = observable.NewSubject(c.empty())
		s.err = nil
	}
	s.state = slotReady
	s.value = v
	subject := s.subject
	c.mu.Unlock()
	subject.Set(v)
}

// peek returns the value of a ready slot.
func (c *queryCache[K, V]) peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[key]
	if !ok || s.state != slotReady {
		var zero V
		return zero, false
	}
	return s.value, true
}

// readyKeys lists keys of populated slots accepted by match (nil matches all).
func (c *queryCache[K, V]) readyKeys(match func(key K) bool) []K {
	c.mu.Lock()
	defer c.mu.Unlock()
	var keys []K
	for k, s := range c.slots {
		if s.state == slotReady && (match == nil || match(k)) {
			keys = append(keys, k)
		}
	}
	return keys
}

// patch rewrites every ready slot accepted by match. fn must return a new value
// rather than mutate v; returning false leaves the slot untouched.
func (c *queryCache[K, V]) patch(match func(key K) bool, fn func(key K, v V) (V, bool)) int {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	type change struct {
		subject *observable.Subject[V]
		value   V
	}
	var changes []change

	c.mu.Lock()
	for k, s := range c.slots {
		if s.state != slotReady || (match != nil && !match(k)) {
			continue
		}
		next, ok := fn(k, s.value)
		if !ok {
			continue
		}
		s.value = next
		changes = append(changes, change{subject: s.subject, value: next})
	}
	c.mu.Unlock()

	for _, ch := range changes {
		ch.subject.Set(ch.value)
	}
	return len(changes)
}

// reset returns key to the empty state; watchers receive the empty value.
func (c *queryCache[K, V]) reset(key K) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	s, ok := c.slots[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	if s.state == slotFailed {
		s.subject = observable.NewSubject(c.empty())
	}
	s.state = slotEmpty
	s.err = nil
	s.value = c.empty()
	subject, v := s.subject, s.value
	c.mu.Unlock()
	subject.Set(v)
}

// watch attaches to the slot for key, creating it empty if needed. It reports
// whether the slot still needs a first load.
func (c *queryCache[K, V]) watch(key K, next func(V), onErr func(error)) (observable.Subscription, bool) {
	c.mu.Lock()
	s := c.slotFor(key)
	subject, empty := s.subject, s.state == slotEmpty
	c.mu.Unlock()
	return subject.Subscribe(next, onErr), empty
}

// entityCache by-id cache for one entity type. Every write publishes a fresh
// map snapshot; published maps are never mutated.
type entityCache[T any] struct {
	name    string
	idOf    func(T) string
	metrics *metrics.Metrics

	writeMu sync.Mutex
	mu      sync.RWMutex
	items   map[string]T
	subject *observable.Subject[map[string]T]
	flights flightGroup[string, T]
}

func newEntityCache[T any](name string, idOf func(T) string, m *metrics.Metrics) *entityCache[T] {
	return &entityCache[T]{
		name:    name,
		idOf:    idOf,
		metrics: m,
		items:   map[string]T{},
		subject: observable.NewSubject(map[string]T{}),
	}
}

func (c *entityCache[T]) get(id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[id]
	return v, ok
}

// partition splits ids into cached entities (in request order) and missing ids.
// Duplicate ids are reported once.
func (c *entityCache[T]) partition(ids []string) (found []T, missing []string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if v, ok := c.items[id]; ok {
			found = append(found, v)
		} else {
			missing = append(missing, id)
		}
	}
	return found, missing
}

func (c *entityCache[T]) all() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]T, 0, len(c.items))
	for _, v := range c.items {
		out = append(out, v)
	}
	return out
}

func (c *entityCache[T]) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// write applies fn to a private copy of the map and publishes it.
func (c *entityCache[T]) write(fn func(items map[string]T)) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	next := make(map[string]T, len(c.items)+1)
	for k, v := range c.items {
		next[k] = v
	}
	fn(next)
	c.items = next
	c.mu.Unlock()

	c.subject.Set(next)
}

func (c *entityCache[T]) merge(items ...T) {
	if len(items) == 0 {
		return
	}
	c.write(func(m map[string]T) {
		for _, it := range items {
			m[c.idOf(it)] = it
		}
	})
}

func (c *entityCache[T]) put(item T) {
	c.merge(item)
}

func (c *entityCache[T]) remove(id string) {
	c.write(func(m map[string]T) { delete(m, id) })
}

// load serves id from the cache or fetches exactly that entity once for all
// concurrent callers.
func (c *entityCache[T]) load(ctx context.Context, id string, fetch func(context.Context) (T, error)) (T, error) {
	if v, ok := c.get(id); ok {
		c.metrics.CacheLookup(c.name, metrics.ResultHit)
		return v, nil
	}
	v, shared, err := c.flights.do(ctx, id, func(ctx context.Context) (T, error) {
		if v, ok := c.get(id); ok {
			return v, nil
		}
		return fetch(ctx)
	}, func(v T, err error) {
		if err == nil {
			c.put(v)
		}
	})
	if shared {
		c.metrics.CacheLookup(c.name, metrics.ResultShared)
	} else {
		c.metrics.CacheLookup(c.name, metrics.ResultMiss)
	}
	return v, err
}

// watch delivers the entity for id (ok=false while absent) on every cache write.
func (c *entityCache[T]) watch(id string, next func(T, bool), onErr func(error)) observable.Subscription {
	return c.subject.Subscribe(func(m map[string]T) {
		v, ok := m[id]
		next(v, ok)
	}, onErr)
}

// optimisticUpdate writes edit(current) into the cache before send runs and
// restores the exact previous value if send fails or is canceled. An entity
// that is not cached is left alone; send still runs.
func optimisticUpdate[T any](cache *entityCache[T], id string, edit func(T) T, send func() error) error {
	prev, existed := cache.get(id)
	if existed {
		cache.put(edit(prev))
	}
	if err := send(); err != nil {
		if existed {
			cache.put(prev)
		}
		return err
	}
	return nil
}

// optimisticRemove drops id from the cache before send runs and re-inserts it
// if send fails or is canceled.
func optimisticRemove[T any](cache *entityCache[T], id string, send func() error) error {
	prev, existed := cache.get(id)
	if existed {
		cache.remove(id)
	}
	if err := send(); err != nil {
		if existed {
			cache.put(prev)
		}
		return err
	}
	return nil
}
