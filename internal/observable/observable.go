// Package observable provides a minimal push-based broadcast primitive:
// publish a value, deliver it to every current subscriber. It replaces ad hoc
// event-emitter patterns with an explicit subscribe/unsubscribe contract.
package observable

import "sync"

// Unsubscribe removes a subscription. Safe to call more than once.
type Unsubscribe func()

// Observable broadcasts values of type T to subscribers. Deliveries are
// serialized: every subscriber sees values in publish order, and a replay on
// Subscribe cannot interleave with a concurrent Publish. Callbacks must not
// call Subscribe or Publish on the same Observable.
type Observable[T any] struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[int]func(T)

	deliverMu sync.Mutex // serializes all deliveries, including replays

	hasLast bool
	last    T
}

// New creates an empty Observable.
func New[T any]() *Observable[T] {
	return &Observable[T]{listeners: make(map[int]func(T))}
}

// Subscribe registers fn and returns its unsubscribe handle. If a value was
// already published, fn is invoked immediately with the latest one so late
// subscribers do not wait a full publish cycle.
func (o *Observable[T]) Subscribe(fn func(T)) Unsubscribe {
	o.deliverMu.Lock()
	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.listeners[id] = fn
	replay := o.hasLast
	last := o.last
	o.mu.Unlock()

	if replay {
		fn(last)
	}
	o.deliverMu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.listeners, id)
		o.mu.Unlock()
	}
}

// Publish delivers v to all current subscribers, synchronously. Subscriber
// order within one publish is unspecified; across publishes every subscriber
// sees values in publish order.
func (o *Observable[T]) Publish(v T) {
	o.deliverMu.Lock()
	defer o.deliverMu.Unlock()

	o.mu.Lock()
	o.last = v
	o.hasLast = true
	fns := make([]func(T), 0, len(o.listeners))
	for _, fn := range o.listeners {
		fns = append(fns, fn)
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Latest returns the most recently published value, if any.
func (o *Observable[T]) Latest() (T, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.last, o.hasLast
}

// Len returns the number of active subscribers.
func (o *Observable[T]) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.listeners)
}
