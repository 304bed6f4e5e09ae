package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"coinPusherAPI/internal/types/leaderboard"
	"coinPusherAPI/internal/types/user"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestManager() (*Manager, *manualClock) {
	clock := &manualClock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	m := NewManager(time.Hour)
	m.SetClock(clock.Now)
	return m, clock
}

func recordEvents(m *Manager) func() []EventType {
	var mu sync.Mutex
	var events []EventType
	m.Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e.Type)
	})
	return func() []EventType {
		mu.Lock()
		defer mu.Unlock()
		return append([]EventType(nil), events...)
	}
}

func TestSignInAndOut(t *testing.T) {
	m, _ := newTestManager()
	events := recordEvents(m)

	s := m.SignIn(user.Identity{ID: "user_a", Username: "alice"})
	require.NotNil(t, s)
	assert.Equal(t, "user_a", s.UserID)
	assert.Equal(t, "alice", s.Identity().Username)
	assert.Same(t, s, m.Active("user_a"))
	assert.Equal(t, 1, m.Count())

	// Signing in again renews the same session quietly.
	again := m.SignIn(user.Identity{ID: "user_a", Username: "alice2"})
	assert.Same(t, s, again)
	assert.Equal(t, "alice2", s.Identity().Username)

	assert.True(t, m.SignOut("user_a"))
	assert.False(t, m.SignOut("user_a"))
	assert.True(t, s.Ended())
	assert.Nil(t, m.Active("user_a"))

	assert.Equal(t, []EventType{EventSignedIn, EventSignedOut}, events())
}

func TestSignOutDropsCachedView(t *testing.T) {
	m, _ := newTestManager()
	s := m.SignIn(user.Identity{ID: "user_a"})
	s.SetView(&leaderboard.View{})
	require.NotNil(t, s.View())

	m.SignOut("user_a")
	assert.Nil(t, s.View())
}

func TestExpiry(t *testing.T) {
	m, clock := newTestManager()
	events := recordEvents(m)

	s := m.SignIn(user.Identity{ID: "user_a"})
	m.SignIn(user.Identity{ID: "user_b"})

	clock.Advance(30 * time.Minute)
	m.SignIn(user.Identity{ID: "user_b"})
	clock.Advance(45 * time.Minute)

	assert.Nil(t, m.Active("user_a"))
	assert.True(t, s.Ended())
	assert.NotNil(t, m.Active("user_b"))

	clock.Advance(time.Hour)
	assert.Equal(t, 1, m.Expire())
	assert.Equal(t, 0, m.Count())

	assert.Equal(t, []EventType{EventSignedIn, EventSignedIn, EventExpired, EventExpired}, events())
}

func TestSignInAfterExpiryStartsFreshSession(t *testing.T) {
	m, clock := newTestManager()
	events := recordEvents(m)

	old := m.SignIn(user.Identity{ID: "user_a"})
	clock.Advance(2 * time.Hour)
	fresh := m.SignIn(user.Identity{ID: "user_a"})

	assert.NotEqual(t, old.ID, fresh.ID)
	assert.True(t, old.Ended())
	assert.False(t, fresh.Ended())
	assert.Equal(t, []EventType{EventSignedIn, EventExpired, EventSignedIn}, events())
}

func TestUnsubscribe(t *testing.T) {
	m, _ := newTestManager()
	calls := 0
	unsubscribe := m.Subscribe(func(Event) { calls++ })

	m.SignIn(user.Identity{ID: "user_a"})
	unsubscribe()
	unsubscribe()
	m.SignOut("user_a")

	assert.Equal(t, 1, calls)
}

func TestCleanupStopsWithContext(t *testing.T) {
	m, _ := newTestManager()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Cleanup(ctx, time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup did not stop")
	}
}
