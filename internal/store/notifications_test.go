package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shifalink/portal-client/internal/api"
)

func notif(id string) api.Notification {
	return api.Notification{
		ID:   id,
		Type: "appointment.created",
		Data: api.NotificationData{Message: "New appointment"},
	}
}

func TestAddDedupsOnID(t *testing.T) {
	s := NewNotifications()
	assert.True(t, s.Add(notif("n1")))
	assert.False(t, s.Add(notif("n1")), "duplicate id insert must be a no-op")
	assert.Len(t, s.List(), 1)
	assert.Equal(t, 1, s.UnreadCount())
}

func TestAddPrependsNewestFirst(t *testing.T) {
	s := NewNotifications()
	s.Add(notif("n1"))
	s.Add(notif("n2"))
	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, "n2", list[0].ID)
}

func TestMarkReadIdempotent(t *testing.T) {
	s := NewNotifications()
	s.Add(notif("n1"))
	s.Add(notif("n2"))

	assert.True(t, s.MarkRead("n1"))
	assert.Equal(t, 1, s.UnreadCount())

	// Second call leaves unreadCount unchanged.
	assert.False(t, s.MarkRead("n1"))
	assert.Equal(t, 1, s.UnreadCount())

	assert.False(t, s.MarkRead("missing"))
}

func TestMarkAllRead(t *testing.T) {
	s := NewNotifications()
	for i := 0; i < 4; i++ {
		s.Add(notif(fmt.Sprintf("n%d", i)))
	}
	s.MarkRead("n0")
	s.MarkAllRead()
	assert.Equal(t, 0, s.UnreadCount())
	for _, n := range s.List() {
		assert.NotNil(t, n.ReadAt)
	}
}

func TestSetReplacesBaseline(t *testing.T) {
	s := NewNotifications()
	s.Add(notif("stale"))

	read := time.Now().UTC()
	s.Set([]api.Notification{
		notif("n1"),
		{ID: "n2", ReadAt: &read},
	})
	assert.Len(t, s.List(), 2)
	assert.Equal(t, 1, s.UnreadCount())
}

func TestClear(t *testing.T) {
	s := NewNotifications()
	s.Add(notif("n1"))
	s.Clear()
	assert.Empty(t, s.List())
	assert.Zero(t, s.UnreadCount())
}
