package store

import (
	"sort"
	"sync"
	"time"

	"github.com/shifalink/portal-client/internal/api"
)

// Chats keeps per-chat message lists ordered ascending by server-assigned id.
// A message id arriving twice (REST baseline racing the push echo) stays a
// single visible entry.
type Chats struct {
	mu       sync.RWMutex
	messages map[string][]api.Message // chat uuid -> ordered messages
	now      func() time.Time
}

func NewChats() *Chats {
	return &Chats{messages: make(map[string][]api.Message), now: time.Now}
}

// Set replaces a chat's messages with the REST baseline, sorted by id.
func (s *Chats) Set(chatUUID string, msgs []api.Message) {
	sorted := append([]api.Message(nil), msgs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[chatUUID] = sorted
}

// Append inserts a message in id order. A duplicate id is a no-op and
// reports false.
func (s *Chats) Append(chatUUID string, msg api.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[chatUUID]
	idx := sort.Search(len(msgs), func(i int) bool { return msgs[i].ID >= msg.ID })
	if idx < len(msgs) && msgs[idx].ID == msg.ID {
		return false
	}
	msgs = append(msgs, api.Message{})
	copy(msgs[idx+1:], msgs[idx:])
	msgs[idx] = msg
	s.messages[chatUUID] = msgs
	return true
}

// MarkMessageRead stamps ReadAt on a message; already-read is a no-op.
func (s *Chats) MarkMessageRead(chatUUID string, messageID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[chatUUID]
	for i := range msgs {
		if msgs[i].ID == messageID {
			if msgs[i].ReadAt != nil {
				return false
			}
			ts := s.now().UTC()
			msgs[i].ReadAt = &ts
			return true
		}
	}
	return false
}

// Messages returns a copy of a chat's messages in display order.
func (s *Chats) Messages(chatUUID string) []api.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]api.Message(nil), s.messages[chatUUID]...)
}

// UnreadCount counts messages not yet read that were sent by someone else.
func (s *Chats) UnreadCount(chatUUID string, selfID int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, m := range s.messages[chatUUID] {
		if m.ReadAt == nil && m.SenderID != selfID {
			count++
		}
	}
	return count
}

// Drop forgets one chat's messages, e.g. when its page unmounts.
func (s *Chats) Drop(chatUUID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.messages, chatUUID)
}

// Clear empties the store on logout.
func (s *Chats) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = make(map[string][]api.Message)
}
