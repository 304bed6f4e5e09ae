// Package session tracks which players are signed in. A Session is created at
// sign-in and torn down at sign-out or expiry; subscribers hear about every
// such transition.
package session

import (
	"context"
	"sync"
	"time"

	"coinPusherAPI/internal/types/leaderboard"
	"coinPusherAPI/internal/types/user"

	"github.com/google/uuid"
)

type EventType string

const (
	EventSignedIn  EventType = "signed_in"
	EventSignedOut EventType = "signed_out"
	EventExpired   EventType = "expired"
)

type Event struct {
	Type    EventType
	Session *Session
}

type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time

	mu        sync.RWMutex
	identity  user.Identity
	expiresAt time.Time
	view      *leaderboard.View
	ended     bool
}

func (s *Session) Identity() user.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

func (s *Session) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt
}

// Ended reports whether the session was signed out or expired.
func (s *Session) Ended() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ended
}

// View returns the last leaderboard view stored on the session, or nil.
func (s *Session) View() *leaderboard.View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

func (s *Session) SetView(v *leaderboard.View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = v
}

func (s *Session) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = true
	s.view = nil
}

type Manager struct {
	ttl time.Duration
	now func() time.Time

	mu        sync.RWMutex
	byUser    map[string]*Session
	listeners map[int]func(Event)
	nextID    int
}

func NewManager(ttl time.Duration) *Manager {
	return &Manager{
		ttl:       ttl,
		now:       time.Now,
		byUser:    make(map[string]*Session),
		listeners: make(map[int]func(Event)),
	}
}

// SetClock replaces the clock used for expiry.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// SignIn opens a session for the identity, or renews the user's live one.
func (m *Manager) SignIn(identity user.Identity) *Session {
	m.mu.Lock()
	now := m.now()
	var expired *Session
	if s, ok := m.byUser[identity.ID]; ok {
		if now.Before(s.ExpiresAt()) {
			s.mu.Lock()
			s.identity = identity
			s.expiresAt = now.Add(m.ttl)
			s.mu.Unlock()
			m.mu.Unlock()
			return s
		}
		delete(m.byUser, identity.ID)
		s.end()
		expired = s
	}

	s := &Session{
		ID:        uuid.NewString(),
		UserID:    identity.ID,
		CreatedAt: now,
		identity:  identity,
		expiresAt: now.Add(m.ttl),
	}
	m.byUser[identity.ID] = s
	m.mu.Unlock()

	if expired != nil {
		m.emit(Event{Type: EventExpired, Session: expired})
	}
	m.emit(Event{Type: EventSignedIn, Session: s})
	return s
}

// SignOut ends the user's session. It reports whether one was open.
func (m *Manager) SignOut(userID string) bool {
	m.mu.Lock()
	s, ok := m.byUser[userID]
	if ok {
		delete(m.byUser, userID)
		s.end()
	}
	m.mu.Unlock()

	if ok {
		m.emit(Event{Type: EventSignedOut, Session: s})
	}
	return ok
}

// Active returns the user's live session, or nil.
func (m *Manager) Active(userID string) *Session {
	m.mu.Lock()
	s, ok := m.byUser[userID]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	if m.now().Before(s.ExpiresAt()) {
		m.mu.Unlock()
		return s
	}
	delete(m.byUser, userID)
	s.end()
	m.mu.Unlock()

	m.emit(Event{Type: EventExpired, Session: s})
	return nil
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byUser)
}

// Subscribe registers fn for session transitions. Listeners run on the
// goroutine that caused the transition, outside the Manager's lock.
func (m *Manager) Subscribe(fn func(Event)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

func (m *Manager) emit(e Event) {
	m.mu.RLock()
	fns := make([]func(Event), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.RUnlock()

	for _, fn := range fns {
		fn(e)
	}
}

// Expire removes every session past its expiry and returns how many it removed.
func (m *Manager) Expire() int {
	m.mu.Lock()
	now := m.now()
	var expired []*Session
	for userID, s := range m.byUser {
		if !now.Before(s.ExpiresAt()) {
			delete(m.byUser, userID)
			s.end()
			expired = append(expired, s)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		m.emit(Event{Type: EventExpired, Session: s})
	}
	return len(expired)
}

// Cleanup expires sessions every interval until ctx ends.
func (m *Manager) Cleanup(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Expire()
		}
	}
}
