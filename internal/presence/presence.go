// Package presence tracks self-reported online state. Sessions write it and
// followers receive live updates for one peer each.
package presence

import (
	"context"
	"sync"
	"time"

	"chatlink-service/internal/models"
)

// Store persists presence and streams changes for one user.
type Store interface {
	SetPresence(ctx context.Context, userID string, online bool, at time.Time) error
	Get(ctx context.Context, userID string) (models.Presence, error)
	Follow(ctx context.Context, userID string) (*Feed, error)
}

// Feed delivers presence updates for one user through a one-slot channel;
// a slow reader only sees the newest state.
type Feed struct {
	mu     sync.Mutex
	ch     chan models.Presence
	done   chan struct{}
	closed bool
	once   sync.Once
	stop   func()
}

func newFeed(stop func()) *Feed {
	return &Feed{
		ch:   make(chan models.Presence, 1),
		done: make(chan struct{}),
		stop: stop,
	}
}

// C is closed after Close.
func (f *Feed) C() <-chan models.Presence {
	return f.ch
}

func (f *Feed) Done() <-chan struct{} {
	return f.done
}

// Close ends the feed. It is safe to call more than once.
func (f *Feed) Close() {
	f.once.Do(func() {
		f.mu.Lock()
		f.closed = true
		close(f.ch)
		f.mu.Unlock()
		if f.stop != nil {
			f.stop()
		}
		close(f.done)
	})
}

func (f *Feed) send(p models.Presence) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case <-f.ch:
	default:
	}
	f.ch <- p
}
