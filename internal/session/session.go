// Package session holds the authenticated user state observed by the REST
// client and the realtime connection manager. The auth flow is the only
// writer; everything else watches.
package session

import (
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session is the current authentication state as a value. A live socket
// connection exists iff Authenticated is true and Token is non-empty.
type Session struct {
	UserID        int64
	Token         string
	Authenticated bool
}

// Store owns the single Session per running client and notifies watchers on
// every change. Watchers run synchronously in the order they registered.
type Store struct {
	mu       sync.RWMutex
	current  Session
	watchers map[int]func(Session)
	nextID   int
}

func NewStore() *Store {
	return &Store{watchers: make(map[int]func(Session))}
}

// Current returns a copy of the session state.
func (s *Store) Current() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// SetAuth records a successful login or registration.
func (s *Store) SetAuth(userID int64, token string) {
	s.mu.Lock()
	s.current = Session{UserID: userID, Token: token, Authenticated: token != ""}
	s.mu.Unlock()
	s.notify()
}

// SetToken rotates the bearer token after a refresh, keeping the user.
func (s *Store) SetToken(token string) {
	s.mu.Lock()
	s.current.Token = token
	s.current.Authenticated = token != ""
	s.mu.Unlock()
	s.notify()
}

// Clear drops the session on logout or refresh failure.
func (s *Store) Clear() {
	s.mu.Lock()
	s.current = Session{}
	s.mu.Unlock()
	s.notify()
}

// Watch registers fn to run after every session change. The returned func
// removes the watcher and is safe to call more than once.
func (s *Store) Watch(fn func(Session)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify() {
	s.mu.RLock()
	current := s.current
	fns := make([]func(Session), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(current)
	}
}

// TokenExpiry extracts the exp claim without verifying the signature; the
// server is the authority, the client only schedules a refresh ahead of it.
func TokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// TokenSubject extracts the sub claim as a user id, when present.
func TokenSubject(token string) (int64, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return 0, false
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
