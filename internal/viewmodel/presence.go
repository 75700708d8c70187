package viewmodel

import (
	"context"
	"maps"
	"sync"

	"chatlink-service/internal/models"
	"chatlink-service/internal/observability"
	"chatlink-service/internal/presence"
)

// Follower opens a presence feed for one user.
type Follower interface {
	Follow(ctx context.Context, userID string) (*presence.Feed, error)
}

// PresenceState maps followed peer ids to their latest presence.
type PresenceState struct {
	Peers map[string]models.Presence `json:"peers"`
}

// PresenceView multiplexes independent presence feeds, one per followed peer.
type PresenceView struct {
	follower Follower
	pub      *Publisher[PresenceState]

	mu    sync.Mutex
	feeds map[string]*Scope
	peers map[string]models.Presence
}

func NewPresenceView(follower Follower) *PresenceView {
	return &PresenceView{
		follower: follower,
		pub:      NewPublisher[PresenceState](),
		feeds:    make(map[string]*Scope),
		peers:    make(map[string]models.Presence),
	}
}

func (v *PresenceView) States() (<-chan PresenceState, func()) {
	return v.pub.Subscribe()
}

// Follow starts following peerID. Following a peer twice keeps one feed.
func (v *PresenceView) Follow(ctx context.Context, peerID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.feeds[peerID]; ok {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	feed, err := v.follower.Follow(ctx, peerID)
	if err != nil {
		cancel()
		return err
	}
	observability.IncWatch("presence")
	scope := &Scope{}
	scope.Add(func() { observability.DecWatch("presence") })
	scope.Add(cancel)
	scope.Add(feed.Close)
	v.feeds[peerID] = scope

	go func() {
		for p := range feed.C() {
			v.update(peerID, scope, p)
		}
	}()
	return nil
}

func (v *PresenceView) update(peerID string, owner *Scope, p models.Presence) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.feeds[peerID] != owner {
		return
	}
	p.UserID = peerID
	v.peers[peerID] = p
	v.publish()
}

func (v *PresenceView) Unfollow(peerID string) {
	v.mu.Lock()
	scope, ok := v.feeds[peerID]
	delete(v.feeds, peerID)
	if _, had := v.peers[peerID]; had {
		delete(v.peers, peerID)
		v.publish()
	}
	v.mu.Unlock()
	if ok {
		scope.Dispose()
	}
}

// Following reports how many peers are followed.
func (v *PresenceView) Following() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.feeds)
}

func (v *PresenceView) Close() {
	v.mu.Lock()
	feeds := v.feeds
	v.feeds = make(map[string]*Scope)
	v.peers = make(map[string]models.Presence)
	v.mu.Unlock()
	for _, scope := range feeds {
		scope.Dispose()
	}
}

// publish sends a copy of the peer map. Callers hold v.mu.
func (v *PresenceView) publish() {
	v.pub.Publish(PresenceState{Peers: maps.Clone(v.peers)})
}
