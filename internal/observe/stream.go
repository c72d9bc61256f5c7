// Package observe is a small synchronous publish/subscribe registry.
// Subscribing returns a Subscription whose Dispose removes the handler.
package observe

import "sync"

// Source is the subscribe side of a stream.
type Source[T any] interface {
	// Subscribe registers handler and returns its subscription handle.
	Subscribe(handler func(T)) *Subscription
}

// Stream delivers published values to every registered handler, in
// registration order, on the publishing goroutine.
type Stream[T any] struct {
	mu       sync.Mutex
	nextID   uint64
	handlers []handlerEntry[T]
}

type handlerEntry[T any] struct {
	id uint64
	fn func(T)
}

// NewStream creates an empty stream.
func NewStream[T any]() *Stream[T] {
	return &Stream[T]{}
}

// Subscribe registers handler. A nil handler yields an inert subscription.
func (s *Stream[T]) Subscribe(handler func(T)) *Subscription {
	if handler == nil {
		return &Subscription{}
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.handlers = append(s.handlers, handlerEntry[T]{id: id, fn: handler})
	s.mu.Unlock()

	return &Subscription{cancel: func() { s.remove(id) }}
}

// Publish sends v to a snapshot of the current handlers. Handlers may
// subscribe or dispose during delivery; the change applies to the next
// Publish.
func (s *Stream[T]) Publish(v T) {
	s.mu.Lock()
	if len(s.handlers) == 0 {
		s.mu.Unlock()
		return
	}
	snapshot := make([]handlerEntry[T], len(s.handlers))
	copy(snapshot, s.handlers)
	s.mu.Unlock()

	for _, h := range snapshot {
		h.fn(v)
	}
}

// Len returns the number of live subscriptions.
func (s *Stream[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}

func (s *Stream[T]) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, h := range s.handlers {
		if h.id == id {
			s.handlers = append(s.handlers[:i], s.handlers[i+1:]...)
			return
		}
	}
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Dispose removes the subscription. It is safe to call more than once
// and on a nil receiver.
func (s *Subscription) Dispose() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// Group disposes a set of subscriptions together.
type Group struct {
	mu   sync.Mutex
	subs []*Subscription
}

// Add tracks subs for disposal.
func (g *Group) Add(subs ...*Subscription) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subs = append(g.subs, subs...)
}

// Dispose disposes every tracked subscription and empties the group.
func (g *Group) Dispose() {
	g.mu.Lock()
	subs := g.subs
	g.subs = nil
	g.mu.Unlock()

	for _, s := range subs {
		s.Dispose()
	}
}
