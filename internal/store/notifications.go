// Package store holds the client-side collections rendered by the UI:
// notifications, chat messages and appointments. Each store has one logical
// writer (the reconciler or a direct user action) and many readers; readers
// never mutate.
package store

import (
	"sync"
	"time"

	"github.com/shifalink/portal-client/internal/api"
)

// Notifications keeps the notification list newest-first with a derived
// unread counter. A given id appears at most once; UnreadCount always equals
// the number of entries with a nil ReadAt.
type Notifications struct {
	mu    sync.RWMutex
	items []api.Notification
	now   func() time.Time
}

func NewNotifications() *Notifications {
	return &Notifications{now: time.Now}
}

// Set replaces the collection with the REST baseline.
func (s *Notifications) Set(items []api.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append([]api.Notification(nil), items...)
}

// Add inserts a notification at the head. Inserting an id already present is
// a no-op and reports false.
func (s *Notifications) Add(n api.Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.items {
		if existing.ID == n.ID {
			return false
		}
	}
	s.items = append([]api.Notification{n}, s.items...)
	return true
}

// MarkRead sets ReadAt locally. Calling it again for the same id changes
// nothing. The matching REST call is the caller's responsibility; on network
// failure local state may diverge and is not retried.
func (s *Notifications) MarkRead(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id {
			if s.items[i].ReadAt != nil {
				return false
			}
			ts := s.now().UTC()
			s.items[i].ReadAt = &ts
			return true
		}
	}
	return false
}

// MarkAllRead stamps every unread entry.
func (s *Notifications) MarkAllRead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.now().UTC()
	for i := range s.items {
		if s.items[i].ReadAt == nil {
			s.items[i].ReadAt = &ts
		}
	}
}

// List returns a copy of the collection, newest first.
func (s *Notifications) List() []api.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]api.Notification(nil), s.items...)
}

// UnreadCount is derived, never stored, so it cannot drift from the list.
func (s *Notifications) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, n := range s.items {
		if n.ReadAt == nil {
			count++
		}
	}
	return count
}

// Clear empties the store on logout.
func (s *Notifications) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
}
