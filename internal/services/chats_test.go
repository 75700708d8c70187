package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatlink-service/internal/errs"
	"chatlink-service/internal/models"
)

func TestSendMessageAppendsAndUpdatesSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	chat := f.connect(t, "u1", "u2")

	msg, err := f.chats.SendMessage(ctx, "u1", chat.ID, models.MessageInput{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, models.MessageText, msg.Kind)
	assert.Equal(t, "hello", msg.Text)

	msgs, err := f.messageRepo.List(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Text)
	assert.Equal(t, models.MessageText, msgs[0].Kind)

	stored, err := f.chatRepo.Get(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", stored.LastMessage)
	require.NotNil(t, stored.LastMessageAt)
	assert.True(t, msg.CreatedAt.Equal(*stored.LastMessageAt))

	notes := f.notificationsOf("u2", models.NotificationNewMessage)
	require.Len(t, notes, 1)
	assert.Equal(t, chat.ID, notes[0].RelatedID)
	assert.Equal(t, "hello", notes[0].Message)
}

func TestSendMessageRejectsBlankText(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	chat := f.connect(t, "u1", "u2")

	_, err := f.chats.SendMessage(ctx, "u1", chat.ID, models.MessageInput{Text: "   "})
	assert.ErrorIs(t, err, errs.ErrValidation)

	msgs, err := f.messageRepo.List(ctx, chat.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestSendMessageChecksMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	chat := f.connect(t, "u1", "u2")

	_, err := f.chats.SendMessage(ctx, "u3", chat.ID, models.MessageInput{Text: "hi"})
	assert.ErrorIs(t, err, errs.ErrPermission)

	_, err = f.chats.SendMessage(ctx, "u1", "nope", models.MessageInput{Text: "hi"})
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = f.chats.SendMessage(ctx, "", chat.ID, models.MessageInput{Text: "hi"})
	assert.ErrorIs(t, err, errs.ErrUnauthenticated)
}

func TestSendImageMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	chat := f.connect(t, "u1", "u2")

	f.prober.On("Probe", mock.Anything, "https://img.example.com/cat.png").Return(nil).Once()
	msg, err := f.chats.SendMessage(ctx, "u1", chat.ID, models.MessageInput{ImageURL: "https://img.example.com/cat.png"})
	require.NoError(t, err)
	assert.Equal(t, models.MessageImage, msg.Kind)
	assert.Empty(t, msg.Text)

	stored, err := f.chatRepo.Get(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ImageSummary, stored.LastMessage)

	f.prober.On("Probe", mock.Anything, "https://img.example.com/broken").
		Return(errs.Validation("image could not be decoded")).Once()
	_, err = f.chats.SendMessage(ctx, "u1", chat.ID, models.MessageInput{Text: "look", ImageURL: "https://img.example.com/broken"})
	assert.ErrorIs(t, err, errs.ErrValidation)

	msgs, err := f.messageRepo.List(ctx, chat.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
	f.prober.AssertExpectations(t)
}

func TestSelfChatMessageSendsNoNotification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	chat, _, err := f.chats.CreateChat(ctx, "u1", "u1")
	require.NoError(t, err)
	_, err = f.chats.SendMessage(ctx, "u1", chat.ID, models.MessageInput{Text: "note to self"})
	require.NoError(t, err)

	assert.Empty(t, f.notificationsOf("u1", models.NotificationNewMessage))
}

func TestCreateSelfChatIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, created, err := f.chats.CreateChat(ctx, "u1", "u1")
	require.NoError(t, err)
	assert.True(t, created)
	_, err = f.chats.SendMessage(ctx, "u1", first.ID, models.MessageInput{Text: "remember milk"})
	require.NoError(t, err)

	second, created, err := f.chats.CreateChat(ctx, "u1", "u1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "remember milk", second.LastMessage)

	chats, err := f.chatRepo.ListForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, chats, 1)
}

func TestConversationScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.requests.Send(ctx, "u1", "u2")
	require.NoError(t, err)
	_, err = f.requests.Respond(ctx, "u2", res.Request.ID, true)
	require.NoError(t, err)

	chatID := models.ChatIDFor("u1", "u2")
	_, err = f.chats.SendMessage(ctx, "u1", chatID, models.MessageInput{Text: "hi"})
	require.NoError(t, err)
	_, err = f.chats.SendMessage(ctx, "u2", chatID, models.MessageInput{Text: "hello back"})
	require.NoError(t, err)

	chats, err := f.chatRepo.ListForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.ElementsMatch(t, []string{"u1", "u2"}, chats[0].ParticipantIDs)
	assert.Equal(t, "hello back", chats[0].LastMessage)

	msgs, err := f.chats.Messages(ctx, "u2", chatID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].Text)
	assert.Equal(t, "hello back", msgs[1].Text)
}

func TestEditMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	chat := f.connect(t, "u1", "u2")
	msg, err := f.chats.SendMessage(ctx, "u1", chat.ID, models.MessageInput{Text: "helo"})
	require.NoError(t, err)

	_, err = f.chats.EditMessage(ctx, "u2", chat.ID, msg.ID, "hijacked")
	assert.ErrorIs(t, err, errs.ErrPermission)

	_, err = f.chats.EditMessage(ctx, "u1", chat.ID, msg.ID, "  ")
	assert.ErrorIs(t, err, errs.ErrValidation)

	edited, err := f.chats.EditMessage(ctx, "u1", chat.ID, msg.ID, " hello ")
	require.NoError(t, err)
	assert.Equal(t, "hello", edited.Text)
	assert.True(t, edited.Edited)
	require.NotNil(t, edited.EditedAt)

	stored, err := f.messageRepo.Get(ctx, chat.ID, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", stored.Text)
	assert.True(t, stored.Edited)

	_, err = f.chats.EditMessage(ctx, "u1", chat.ID, "missing", "x")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestEditImageMessageIsInvalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	chat := f.connect(t, "u1", "u2")
	f.prober.On("Probe", mock.Anything, mock.Anything).Return(nil)

	msg, err := f.chats.SendMessage(ctx, "u1", chat.ID, models.MessageInput{ImageURL: "https://img.example.com/a.gif", Text: "caption"})
	require.NoError(t, err)
	assert.Equal(t, "caption", msg.Text)

	_, err = f.chats.EditMessage(ctx, "u1", chat.ID, msg.ID, "new caption")
	assert.ErrorIs(t, err, errs.ErrInvalidState)
}

func TestListChatsEnrichesAndOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	withBob := f.connect(t, "u1", "u2")
	withCarol := f.connect(t, "u1", "u3")
	self, _, err := f.chats.CreateChat(ctx, "u1", "u1")
	require.NoError(t, err)

	_, err = f.chats.SendMessage(ctx, "u1", withCarol.ID, models.MessageInput{Text: "first"})
	require.NoError(t, err)
	_, err = f.chats.SendMessage(ctx, "u1", withBob.ID, models.MessageInput{Text: "second"})
	require.NoError(t, err)

	list, err := f.chats.ListChats(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, withBob.ID, list[0].ID)
	assert.Equal(t, "Bob", list[0].OtherUser.DisplayName)
	assert.Equal(t, withCarol.ID, list[1].ID)
	assert.Equal(t, self.ID, list[2].ID)
	assert.True(t, list[2].IsSelfChat)
	assert.Equal(t, "u1", list[2].OtherUser.ID)
}

func TestSortChatsPutsSilentChatsLast(t *testing.T) {
	t1 := base.Add(time.Minute)
	t2 := base.Add(2 * time.Minute)
	chats := []models.ChatSummary{
		{Chat: models.Chat{ID: "silent-old", CreatedAt: base}},
		{Chat: models.Chat{ID: "older", LastMessageAt: &t1}},
		{Chat: models.Chat{ID: "silent-new", CreatedAt: t2}},
		{Chat: models.Chat{ID: "newer", LastMessageAt: &t2}},
	}
	SortChats(chats)

	var ids []string
	for _, c := range chats {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"newer", "older", "silent-new", "silent-old"}, ids)
}

func TestSortMessagesByCreatedAtThenID(t *testing.T) {
	msgs := []models.Message{
		{ID: "b", CreatedAt: base},
		{ID: "c", CreatedAt: base.Add(-time.Second)},
		{ID: "a", CreatedAt: base},
	}
	SortMessages(msgs)
	assert.Equal(t, "c", msgs[0].ID)
	assert.Equal(t, "a", msgs[1].ID)
	assert.Equal(t, "b", msgs[2].ID)
}
