// Package observable holds Subject, the push-based value container every store
// keeps its cache slots in.
//
// A Subject holds one current value. Set replaces it and synchronously notifies
// all subscribers in subscription order. Subscribe delivers the current value
// before any later one, so a late subscriber never misses the state it attached
// to. Error terminates the stream: subscribers are told once, later Set calls
// are ignored and new subscribers receive the error immediately.
//
// Observers run on the goroutine that called Set and must not call Set or Error
// on the same Subject.
package observable

import "sync"

// Subscription detaches an observer.
type Subscription interface {
	Unsubscribe()
}

type observer[T any] struct {
	id    uint64
	next  func(T)
	onErr func(error)
}

// Subject reactive single-slot container
type Subject[T any] struct {
	// emit serializes deliveries so every observer sees Set calls in order.
	emit sync.Mutex

	mu        sync.RWMutex
	value     T
	err       error
	seq       uint64
	observers []observer[T]
}

// NewSubject creates a Subject holding initial.
func NewSubject[T any](initial T) *Subject[T] {
	return &Subject[T]{value: initial}
}

// Get returns the current value.
func (s *Subject[T]) Get() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Err returns the terminal error, if any.
func (s *Subject[T]) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Set stores v and notifies subscribers. It is a no-op after Error.
func (s *Subject[T]) Set(v T) {
	s.emit.Lock()
	defer s.emit.Unlock()

	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return
	}
	s.value = v
	obs := append([]observer[T](nil), s.observers...)
	s.mu.Unlock()

	for _, o := range obs {
		if o.next != nil {
			o.next(v)
		}
	}
}

// Error terminates the stream with err.
func (s *Subject[T]) Error(err error) {
	s.emit.Lock()
	defer s.emit.Unlock()

	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return
	}
	s.err = err
	obs := s.observers
	s.observers = nil
	s.mu.Unlock()

	for _, o := range obs {
		if o.onErr != nil {
			o.onErr(err)
		}
	}
}

// Subscribe registers next/onErr (either may be nil). The current value, or the
// terminal error, is delivered before Subscribe returns.
func (s *Subject[T]) Subscribe(next func(T), onErr func(error)) Subscription {
	s.emit.Lock()
	defer s.emit.Unlock()

	s.mu.Lock()
	if s.err != nil {
		err := s.err
		s.mu.Unlock()
		if onErr != nil {
			onErr(err)
		}
		return noopSubscription{}
	}
	s.seq++
	id := s.seq
	s.observers = append(s.observers, observer[T]{id: id, next: next, onErr: onErr})
	v := s.value
	s.mu.Unlock()

	if next != nil {
		next(v)
	}
	return &subscription[T]{subject: s, id: id}
}

func (s *Subject[T]) observerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.observers)
}

func (s *Subject[T]) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, o := range s.observers {
		if o.id == id {
			s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
			return
		}
	}
}

type subscription[T any] struct {
	subject *Subject[T]
	id      uint64
	once    sync.Once
}

func (s *subscription[T]) Unsubscribe() {
	s.once.Do(func() { s.subject.remove(s.id) })
}

type noopSubscription struct{}

func (noopSubscription) Unsubscribe() {}
