package docstore

import (
	"context"
	"sync"
)

// Snapshot is one emission of a watch: the full matching set, or the error
// that stopped it from being read.
type Snapshot struct {
	Records []Record
	Err     error
}

// Subscription delivers snapshots through a one-slot channel. A slow reader
// only ever sees the newest snapshot.
type Subscription struct {
	query Query

	mu     sync.Mutex
	ch     chan Snapshot
	done   chan struct{}
	closed bool

	once    sync.Once
	onClose func(*Subscription)
}

func newSubscription(q Query, onClose func(*Subscription)) *Subscription {
	return &Subscription{
		query:   q,
		ch:      make(chan Snapshot, 1),
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

// C is closed after Close.
func (s *Subscription) C() <-chan Snapshot {
	return s.ch
}

// Done is closed after Close.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Query returns the watched query.
func (s *Subscription) Query() Query {
	return s.query
}

// Close stops delivery. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		if s.onClose != nil {
			s.onClose(s)
		}
		close(s.done)
	})
}

// refresh computes a snapshot and replaces whatever is pending in the slot.
// Computing under the lock keeps the last delivered snapshot the newest one.
func (s *Subscription) refresh(read func() Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	snap := read()
	select {
	case <-s.ch:
	default:
	}
	s.ch <- snap
}

func (s *Subscription) closeWith(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()
}
