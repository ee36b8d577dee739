// Package events fans out the messages of the blockchain core to any number
// of registered receivers, such as websocket clients.
package events

import (
	"fmt"
	"sync"

	"go.uber.org/atomic"
)

// bufferSize is how many messages a receiver can fall behind before new
// messages are dropped for it.
const bufferSize = 100

// Events maps receiver ids to the channels their messages are sent on.
type Events struct {
	mu      sync.RWMutex
	m       map[string]chan string
	closed  bool
	dropped atomic.Int64
}

// New constructs an empty set of receivers.
func New() *Events {
	return &Events{
		m: make(map[string]chan string),
	}
}

// Acquire registers the id and returns the channel its messages arrive on.
// Acquiring an id twice returns the same channel. After Shutdown the
// returned channel is already closed.
func (evt *Events) Acquire(id string) <-chan string {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	if ch, exists := evt.m[id]; exists {
		return ch
	}

	ch := make(chan string, bufferSize)
	if evt.closed {
		close(ch)
		return ch
	}

	evt.m[id] = ch
	return ch
}

// Release closes the channel of the id and forgets it.
func (evt *Events) Release(id string) error {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	ch, exists := evt.m[id]
	if !exists {
		return fmt.Errorf("id %q does not exist", id)
	}

	delete(evt.m, id)
	close(ch)

	return nil
}

// Send hands the message to every receiver without blocking. A receiver
// with a full buffer misses the message.
func (evt *Events) Send(s string) {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	for _, ch := range evt.m {
		select {
		case ch <- s:
		default:
			evt.dropped.Inc()
		}
	}
}

// Len returns the number of registered receivers.
func (evt *Events) Len() int {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	return len(evt.m)
}

// Dropped returns the number of messages receivers missed.
func (evt *Events) Dropped() int64 {
	return evt.dropped.Load()
}

// Shutdown closes every receiver's channel. Receivers acquired later get a
// closed channel.
func (evt *Events) Shutdown() {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	evt.closed = true
	for id, ch := range evt.m {
		delete(evt.m, id)
		close(ch)
	}
}
