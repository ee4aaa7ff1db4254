package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shifalink/portal-client/internal/api"
)

func msg(id, sender int64, content string) api.Message {
	return api.Message{
		ID:        id,
		ChatID:    1,
		SenderID:  sender,
		Content:   content,
		CreatedAt: time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC).Add(time.Duration(id) * time.Minute),
	}
}

func TestAppendKeepsIDOrder(t *testing.T) {
	s := NewChats()
	assert.True(t, s.Append("chat-a", msg(3, 2, "three")))
	assert.True(t, s.Append("chat-a", msg(1, 1, "one")))
	assert.True(t, s.Append("chat-a", msg(2, 2, "two")))

	got := s.Messages("chat-a")
	require.Len(t, got, 3)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, int64(2), got[1].ID)
	assert.Equal(t, int64(3), got[2].ID)
}

// A message fetched via REST and then echoed over push stays a single entry.
func TestAppendDuplicateIsNoOp(t *testing.T) {
	s := NewChats()
	s.Set("chat-a", []api.Message{msg(1, 1, "hello")})

	assert.False(t, s.Append("chat-a", msg(1, 1, "hello")))
	assert.Len(t, s.Messages("chat-a"), 1)
}

func TestSetSortsBaseline(t *testing.T) {
	s := NewChats()
	s.Set("chat-a", []api.Message{msg(5, 1, "e"), msg(2, 2, "b"), msg(4, 1, "d")})
	got := s.Messages("chat-a")
	require.Len(t, got, 3)
	assert.Equal(t, int64(2), got[0].ID)
	assert.Equal(t, int64(5), got[2].ID)
}

func TestMarkMessageRead(t *testing.T) {
	s := NewChats()
	s.Set("chat-a", []api.Message{msg(1, 2, "hi"), msg(2, 2, "there")})

	assert.Equal(t, 2, s.UnreadCount("chat-a", 1))
	assert.True(t, s.MarkMessageRead("chat-a", 1))
	assert.False(t, s.MarkMessageRead("chat-a", 1), "second mark is a no-op")
	assert.Equal(t, 1, s.UnreadCount("chat-a", 1))
	assert.False(t, s.MarkMessageRead("chat-a", 99))
}

func TestUnreadCountExcludesOwnMessages(t *testing.T) {
	s := NewChats()
	s.Set("chat-a", []api.Message{msg(1, 1, "mine"), msg(2, 2, "theirs")})
	assert.Equal(t, 1, s.UnreadCount("chat-a", 1))
}

func TestDropAndClear(t *testing.T) {
	s := NewChats()
	s.Set("chat-a", []api.Message{msg(1, 1, "a")})
	s.Set("chat-b", []api.Message{msg(2, 2, "b")})

	s.Drop("chat-a")
	assert.Empty(t, s.Messages("chat-a"))
	assert.Len(t, s.Messages("chat-b"), 1)

	s.Clear()
	assert.Empty(t, s.Messages("chat-b"))
}
