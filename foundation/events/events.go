// Package events allows for the registering and receiving of events. Every
// subscriber gets its own unbounded queue so a slow receiver never loses or
// reorders a message and never blocks the sender.
package events

import (
	"fmt"
	"sync"
)

// Events maintains a mapping of unique id and queues so goroutines can
// register and receive events.
type Events[T any] struct {
	m  map[string]*subscriber[T]
	mu sync.RWMutex
}

// New constructs an events for registering and receiving events.
func New[T any]() *Events[T] {
	return &Events[T]{
		m: make(map[string]*subscriber[T]),
	}
}

// Shutdown closes and removes all channels that were provided by the call to
// Acquire.
func (evt *Events[T]) Shutdown() {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	for id, sub := range evt.m {
		delete(evt.m, id)
		sub.stop()
	}
}

// Acquire takes a unique id and returns a channel that can be used to receive
// events in the order they were sent. The channel is closed on Release.
func (evt *Events[T]) Acquire(id string) <-chan T {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	if sub, exists := evt.m[id]; exists {
		return sub.ch
	}

	sub := newSubscriber[T]()
	evt.m[id] = sub

	return sub.ch
}

// Release closes and removes the channel that was provided by the call to
// Acquire. Undelivered events are dropped.
func (evt *Events[T]) Release(id string) error {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	sub, exists := evt.m[id]
	if !exists {
		return fmt.Errorf("id %q does not exist", id)
	}

	delete(evt.m, id)
	sub.stop()

	return nil
}

// Send queues the value for every registered subscriber. Send never blocks
// waiting for a receiver.
func (evt *Events[T]) Send(v T) {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	for _, sub := range evt.m {
		sub.push(v)
	}
}

// Len returns the number of registered subscribers.
func (evt *Events[T]) Len() int {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	return len(evt.m)
}

// =============================================================================

// subscriber owns a queue and the goroutine pumping it into the channel.
type subscriber[T any] struct {
	ch     chan T
	mu     sync.Mutex
	queue  []T
	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newSubscriber[T any]() *subscriber[T] {
	sub := subscriber[T]{
		ch:     make(chan T),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	go sub.pump()

	return &sub
}

func (sub *subscriber[T]) push(v T) {
	sub.mu.Lock()
	sub.queue = append(sub.queue, v)
	sub.mu.Unlock()

	select {
	case sub.signal <- struct{}{}:
	default:
	}
}

func (sub *subscriber[T]) stop() {
	sub.once.Do(func() {
		close(sub.done)
	})
}

// pump delivers queued values in order until the subscriber is stopped. It
// is the only writer to the channel so it is the one to close it.
func (sub *subscriber[T]) pump() {
	defer close(sub.ch)

	for {
		sub.mu.Lock()
		if len(sub.queue) == 0 {
			sub.mu.Unlock()

			select {
			case <-sub.signal:
				continue
			case <-sub.done:
				return
			}
		}

		v := sub.queue[0]
		var zero T
		sub.queue[0] = zero
		sub.queue = sub.queue[1:]
		sub.mu.Unlock()

		select {
		case sub.ch <- v:
		case <-sub.done:
			return
		}
	}
}
