package broadcast

import "sync"

// Subscription is one subscriber's view of a Broadcaster.
type Subscription[T any] struct {
	b *Broadcaster[T]

	mu       sync.Mutex
	queue    []T
	finished bool

	wake chan struct{}
	stop chan struct{}
	out  chan T

	closeOnce sync.Once
}

func newSubscription[T any](b *Broadcaster[T], replay []T) *Subscription[T] {
	s := &Subscription[T]{
		b:     b,
		queue: append([]T(nil), replay...),
		wake:  make(chan struct{}, 1),
		stop:  make(chan struct{}),
		out:   make(chan T),
	}
	go s.pump()
	return s
}

// C returns the channel values are delivered on. It is closed after the
// broadcaster completes and the queue drains, or when Close is called.
func (s *Subscription[T]) C() <-chan T {
	return s.out
}

// Close detaches the subscription and closes its channel. Values still queued
// are discarded. Close is safe to call more than once.
func (s *Subscription[T]) Close() {
	s.closeOnce.Do(func() {
		s.b.detach(s)
		close(s.stop)
	})
}

// Pending returns the number of values queued but not yet received.
func (s *Subscription[T]) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Subscription[T]) push(v T) {
	s.mu.Lock()
	s.queue = append(s.queue, v)
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription[T]) finish() {
	s.mu.Lock()
	s.finished = true
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription[T]) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription[T]) pump() {
	defer close(s.out)

	var zero T
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			finished := s.finished
			s.mu.Unlock()
			if finished {
				return
			}
			select {
			case <-s.wake:
				continue
			case <-s.stop:
				return
			}
		}
		v := s.queue[0]
		s.queue[0] = zero
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- v:
		case <-s.stop:
			return
		}
	}
}
