package realtime

import "sync"

// recencySet tracks idempotency keys already applied. It holds at most
// capacity keys and evicts the oldest insertion first, so a long-lived
// session cannot grow it without bound. Duplicate deliveries arrive close
// together in practice; anything older than the window is treated as new.
type recencySet struct {
	mu       sync.Mutex
	capacity int
	keys     map[string]struct{}
	order    []string
	head     int
}

func newRecencySet(capacity int) *recencySet {
	if capacity <= 0 {
		capacity = 1024
	}
	return &recencySet{
		capacity: capacity,
		keys:     make(map[string]struct{}, capacity),
		order:    make([]string, 0, capacity),
	}
}

// Seen reports whether key was applied within the retained window.
func (s *recencySet) Seen(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[key]
	return ok
}

// Add records key, evicting the oldest entry when full. Adding a key already
// present is a no-op.
func (s *recencySet) Add(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return
	}
	if len(s.order) < s.capacity {
		s.order = append(s.order, key)
	} else {
		delete(s.keys, s.order[s.head])
		s.order[s.head] = key
		s.head = (s.head + 1) % s.capacity
	}
	s.keys[key] = struct{}{}
}

// Len is the number of retained keys.
func (s *recencySet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}
