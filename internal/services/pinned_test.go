package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatlink-service/internal/errs"
	"chatlink-service/internal/models"
)

func TestPinSurvivesEdit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	chat := f.connect(t, "u1", "u2")
	msg, err := f.chats.SendMessage(ctx, "u1", chat.ID, models.MessageInput{Text: "important"})
	require.NoError(t, err)

	pin, err := f.pins.Pin(ctx, "u2", chat.ID, msg.ID, "", "")
	require.NoError(t, err)
	assert.Equal(t, "important", pin.Content)
	assert.Equal(t, "Alice", pin.SenderName)
	assert.Equal(t, "u2", pin.PinnedBy)

	_, err = f.chats.EditMessage(ctx, "u1", chat.ID, msg.ID, "changed")
	require.NoError(t, err)

	pins, err := f.pins.List(ctx, "u1", chat.ID, 0)
	require.NoError(t, err)
	require.Len(t, pins, 1)
	assert.Equal(t, "important", pins[0].Content)
}

func TestPinAllowsDuplicatesAndOrdersNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	chat := f.connect(t, "u1", "u2")

	var ids []string
	for i := 0; i < 4; i++ {
		pin, err := f.pins.Pin(ctx, "u1", chat.ID, "m1", "same", "Alice")
		require.NoError(t, err)
		ids = append(ids, pin.ID)
	}

	inline, err := f.pins.List(ctx, "u1", chat.ID, models.InlinePinLimit)
	require.NoError(t, err)
	require.Len(t, inline, 3)
	assert.Equal(t, ids[3], inline[0].ID)

	all, err := f.pins.List(ctx, "u2", chat.ID, 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	mine, err := f.pins.ListMine(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, mine, 4)
}

func TestPinRequiresParticipant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	chat := f.connect(t, "u1", "u2")

	_, err := f.pins.Pin(ctx, "u3", chat.ID, "m1", "x", "y")
	assert.ErrorIs(t, err, errs.ErrPermission)

	_, err = f.pins.Pin(ctx, "u1", chat.ID, "", "x", "y")
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = f.pins.Pin(ctx, "u1", chat.ID, "missing", "", "")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestUnpin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	chat := f.connect(t, "u1", "u2")
	pin, err := f.pins.Pin(ctx, "u1", chat.ID, "m1", "x", "Alice")
	require.NoError(t, err)

	assert.ErrorIs(t, f.pins.Unpin(ctx, "u3", pin.ID), errs.ErrPermission)
	require.NoError(t, f.pins.Unpin(ctx, "u2", pin.ID))
	assert.ErrorIs(t, f.pins.Unpin(ctx, "u2", pin.ID), errs.ErrNotFound)
}
