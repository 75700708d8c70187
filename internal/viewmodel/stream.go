// Package viewmodel projects docstore watches into live, consistent state that
// the WebSocket layer streams to clients.
package viewmodel

import "sync"

// Publisher fans a value out to any number of listeners. New listeners first
// receive the latest value. Each listener holds one pending value, so a slow
// reader skips intermediate states instead of blocking the publisher.
type Publisher[T any] struct {
	mu        sync.Mutex
	latest    T
	has       bool
	listeners map[chan T]struct{}
}

func NewPublisher[T any]() *Publisher[T] {
	return &Publisher[T]{listeners: make(map[chan T]struct{})}
}

func (p *Publisher[T]) Publish(v T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latest = v
	p.has = true
	for ch := range p.listeners {
		offer(ch, v)
	}
}

// Latest returns the last published value.
func (p *Publisher[T]) Latest() (T, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest, p.has
}

// Subscribe returns a channel of states and the function that releases it.
// The channel is closed on release.
func (p *Publisher[T]) Subscribe() (<-chan T, func()) {
	ch := make(chan T, 1)
	p.mu.Lock()
	if p.has {
		ch <- p.latest
	}
	p.listeners[ch] = struct{}{}
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, ch)
			close(ch)
			p.mu.Unlock()
		})
	}
}

func offer[T any](ch chan T, v T) {
	select {
	case <-ch:
	default:
	}
	ch <- v
}

// Scope collects teardown functions. Dispose runs them in reverse order of
// registration; each runs exactly once and the scope can be reused after.
type Scope struct {
	mu  sync.Mutex
	fns []func()
}

func (s *Scope) Add(fn func()) {
	s.mu.Lock()
	s.fns = append(s.fns, fn)
	s.mu.Unlock()
}

func (s *Scope) Dispose() {
	s.mu.Lock()
	fns := s.fns
	s.fns = nil
	s.mu.Unlock()
	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}

// Len reports how many teardowns are pending.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fns)
}
