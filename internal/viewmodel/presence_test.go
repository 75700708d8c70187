package viewmodel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatlink-service/internal/presence"
)

func TestPresenceViewFollowsPeers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	store := presence.NewUserDocStore(f.users)

	view := NewPresenceView(store)
	defer view.Close()
	states, release := view.States()
	defer release()

	require.NoError(t, view.Follow(ctx, "u2"))
	require.NoError(t, view.Follow(ctx, "u3"))
	require.NoError(t, view.Follow(ctx, "u2"))
	assert.Equal(t, 2, view.Following())

	require.NoError(t, store.SetPresence(ctx, "u2", true, base0.Add(time.Minute)))
	s := await(t, states, func(s PresenceState) bool { return s.Peers["u2"].IsOnline })
	_, ok := s.Peers["u3"]
	assert.True(t, ok)

	view.Unfollow("u2")
	assert.Equal(t, 1, view.Following())
	s = await(t, states, func(s PresenceState) bool {
		_, ok := s.Peers["u2"]
		return !ok
	})
	assert.Contains(t, s.Peers, "u3")
}
