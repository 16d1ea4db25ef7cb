// Package broadcast provides a generic publish/subscribe primitive that replays
// a bounded history of recent values to every new subscriber.
//
// A Broadcaster keeps the last N values it was sent. A subscriber attaching at
// any point first receives that buffer, in the order the values were sent, and
// then every value sent after it attached. Attaching is atomic with respect to
// Send, so a subscriber never misses a value and never sees one twice.
//
// # Usage
//
//	b := broadcast.New[string](broadcast.WithBufferSize(100))
//	b.Send("first")
//
//	sub := b.Subscribe()
//	defer sub.Close()
//	for v := range sub.C() {
//	    fmt.Println(v)
//	}
//
// # Delivery
//
// Every subscription owns an unbounded FIFO queue drained by its own goroutine.
// Send only appends to those queues, so a slow reader delays nothing but
// itself and values are never dropped. Delivery order for a subscription is
// the order in which Send was called, which for concurrent producers is the
// order their calls reached the broadcaster.
package broadcast

import "sync"

// Option configures a Broadcaster.
type Option func(*options)

type options struct {
	bufferSize int
}

// WithBufferSize sets how many of the most recent values are replayed to new
// subscribers. Zero or a negative size keeps every value.
func WithBufferSize(n int) Option {
	return func(o *options) {
		o.bufferSize = n
	}
}

// Broadcaster multicasts values of type T with bounded replay.
// The zero value is not usable; create one with New.
type Broadcaster[T any] struct {
	mu          sync.Mutex
	bufferSize  int
	buffer      []T
	subscribers []*Subscription[T]
	completed   bool
}

// New creates a Broadcaster.
func New[T any](opts ...Option) *Broadcaster[T] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Broadcaster[T]{bufferSize: o.bufferSize}
}

// BufferSize returns the replay capacity, or 0 when unbounded.
func (b *Broadcaster[T]) BufferSize() int {
	if b.bufferSize < 0 {
		return 0
	}
	return b.bufferSize
}

// Send records v in the replay buffer and delivers it to every attached
// subscription in subscription order. Send after Complete is a no-op.
func (b *Broadcaster[T]) Send(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.completed {
		return
	}

	b.buffer = append(b.buffer, v)
	if b.bufferSize > 0 && len(b.buffer) > b.bufferSize {
		// FIFO eviction; copy so the backing array does not grow without bound
		evict := len(b.buffer) - b.bufferSize
		var zero T
		for i := 0; i < evict; i++ {
			b.buffer[i] = zero
		}
		b.buffer = append(b.buffer[:0:0], b.buffer[evict:]...)
	}

	for _, sub := range b.subscribers {
		sub.push(v)
	}
}

// Subscribe attaches a new subscription. The current buffer is queued on it
// before any later Send is delivered.
func (b *Broadcaster[T]) Subscribe() *Subscription[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := newSubscription(b, b.buffer)
	if b.completed {
		sub.finish()
		return sub
	}

	b.subscribers = append(b.subscribers, sub)
	return sub
}

// ClearBuffer empties the replay buffer. Values already queued on existing
// subscriptions are still delivered.
func (b *Broadcaster[T]) ClearBuffer() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buffer = nil
}

// Complete signals that no more values will be sent. Every open subscription
// delivers what it has queued and then closes its channel.
func (b *Broadcaster[T]) Complete() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.completed {
		return
	}
	b.completed = true

	for _, sub := range b.subscribers {
		sub.finish()
	}
	b.subscribers = nil
}

// Completed reports whether Complete has been called.
func (b *Broadcaster[T]) Completed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.completed
}

// Snapshot returns a copy of the replay buffer, oldest first.
func (b *Broadcaster[T]) Snapshot() []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]T, len(b.buffer))
	copy(out, b.buffer)
	return out
}

// Len returns the number of buffered values.
func (b *Broadcaster[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buffer)
}

// Subscribers returns the number of attached subscriptions.
func (b *Broadcaster[T]) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// detach removes sub from the fan-out list.
func (b *Broadcaster[T]) detach(sub *Subscription[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subscribers {
		if s == sub {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			return
		}
	}
}
