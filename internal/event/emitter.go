// Package event provides a small typed publish/subscribe primitive used by
// the playback clock and everything that listens to it.
package event

// Handler receives one emitted value.
type Handler[T any] func(T)

type subscription[T any] struct {
	fn     Handler[T]
	active bool
}

// Emitter delivers values synchronously to subscribers in subscription order.
// It is not safe for concurrent use; all calls are expected on the owning
// event loop.
type Emitter[T any] struct {
	subs []*subscription[T]
}

// On registers fn and returns a function that removes it. The returned
// function may be called any number of times, including from inside fn.
func (e *Emitter[T]) On(fn Handler[T]) (off func()) {
	s := &subscription[T]{fn: fn, active: true}
	e.subs = append(e.subs, s)
	return func() {
		if !s.active {
			return
		}
		s.active = false
		for i, cur := range e.subs {
			if cur == s {
				e.subs = append(e.subs[:i:i], e.subs[i+1:]...)
				break
			}
		}
	}
}

// Once registers fn for a single delivery.
func (e *Emitter[T]) Once(fn Handler[T]) (off func()) {
	var unsubscribe func()
	unsubscribe = e.On(func(v T) {
		unsubscribe()
		fn(v)
	})
	return unsubscribe
}

// Emit calls every handler registered at the moment of the call. Handlers
// removed during delivery are skipped.
func (e *Emitter[T]) Emit(v T) {
	if len(e.subs) == 0 {
		return
	}
	snapshot := make([]*subscription[T], len(e.subs))
	copy(snapshot, e.subs)
	for _, s := range snapshot {
		if s.active {
			s.fn(v)
		}
	}
}

// Len reports the number of active subscribers.
func (e *Emitter[T]) Len() int {
	return len(e.subs)
}

// Clear drops all subscribers.
func (e *Emitter[T]) Clear() {
	for _, s := range e.subs {
		s.active = false
	}
	e.subs = nil
}
