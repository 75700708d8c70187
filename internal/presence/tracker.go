package presence

import (
	"context"
	"sync"
	"time"

	"chatlink-service/internal/logger"
	"chatlink-service/internal/models"
	"chatlink-service/internal/observability"
)

const writeTimeout = 5 * time.Second

// Tracker owns the presence sessions of this process. A user is online while
// at least one of their sessions is visible.
type Tracker struct {
	store    Store
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]map[*Session]struct{}
}

func NewTracker(store Store, heartbeat time.Duration) *Tracker {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &Tracker{
		store:    store,
		interval: heartbeat,
		now:      func() time.Time { return time.Now().UTC() },
		sessions: make(map[string]map[*Session]struct{}),
	}
}

// Session is one live connection of a user.
type Session struct {
	tracker *Tracker
	userID  string

	mu      sync.Mutex
	visible bool
	stopped bool

	wake chan struct{}
	done chan struct{}
}

// Start writes the user online and begins heartbeats until Stop or ctx ends.
func (t *Tracker) Start(ctx context.Context, userID string) (*Session, error) {
	s := &Session{
		tracker: t,
		userID:  userID,
		visible: true,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	t.mu.Lock()
	set := t.sessions[userID]
	if set == nil {
		set = make(map[*Session]struct{})
		t.sessions[userID] = set
	}
	set[s] = struct{}{}
	t.mu.Unlock()

	if err := t.write(ctx, userID); err != nil {
		t.remove(s)
		return nil, err
	}
	go s.heartbeat(ctx)
	return s, nil
}

// Get returns the stored presence of userID.
func (t *Tracker) Get(ctx context.Context, userID string) (models.Presence, error) {
	return t.store.Get(ctx, userID)
}

// Follow streams the presence of userID. Each call gets its own feed.
func (t *Tracker) Follow(ctx context.Context, userID string) (*Feed, error) {
	return t.store.Follow(ctx, userID)
}

// SetOffline marks userID offline regardless of live sessions, e.g. on logout.
func (t *Tracker) SetOffline(ctx context.Context, userID string) error {
	return t.store.SetPresence(ctx, userID, false, t.now())
}

// online reports whether any session of userID is visible.
func (t *Tracker) online(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for s := range t.sessions[userID] {
		if s.isVisible() {
			return true
		}
	}
	return false
}

func (t *Tracker) write(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	online := t.online(userID)
	err := t.store.SetPresence(ctx, userID, online, t.now())
	observability.IncPresenceWrite(online, err)
	return err
}

func (t *Tracker) remove(s *Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if set, ok := t.sessions[s.userID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(t.sessions, s.userID)
		}
	}
}

func (s *Session) isVisible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible && !s.stopped
}

// SetVisible records a visibility change and writes the resulting state.
func (s *Session) SetVisible(ctx context.Context, visible bool) error {
	s.mu.Lock()
	if s.stopped || s.visible == visible {
		s.mu.Unlock()
		return nil
	}
	s.visible = visible
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return s.tracker.write(ctx, s.userID)
}

// Stop ends heartbeats and writes the user's state without this session.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.done)
	s.tracker.remove(s)
	return s.tracker.write(ctx, s.userID)
}

func (s *Session) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(s.tracker.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			if err := s.Stop(context.Background()); err != nil {
				logger.Errorf("presence stop for %s: %v", s.userID, err)
			}
			return
		case <-s.wake:
			ticker.Reset(s.tracker.interval)
		case <-ticker.C:
			if !s.isVisible() {
				continue
			}
			if err := s.tracker.write(ctx, s.userID); err != nil {
				logger.Errorf("presence heartbeat for %s: %v", s.userID, err)
			}
		}
	}
}
