// Package memory is an in-process Store used for local development and tests.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"coinPusherAPI/internal/store"
	"coinPusherAPI/internal/types/leaderboard"
	"coinPusherAPI/internal/types/notification"
	"coinPusherAPI/internal/types/user"

	"github.com/google/uuid"
)

type Store struct {
	mu       sync.Mutex
	users    map[string]*user.User
	entries  []*leaderboard.ScoreEntry
	devices  map[string]map[string]notification.DeviceToken
	seq      int64
	last     time.Time
	now      func() time.Time
	watchers map[chan struct{}]struct{}

	// FailNext, when set, makes the next mutating call fail with this error
	// before anything is written.
	FailNext error
}

func New() *Store {
	return &Store{
		users:    make(map[string]*user.User),
		devices:  make(map[string]map[string]notification.DeviceToken),
		now:      time.Now,
		watchers: make(map[chan struct{}]struct{}),
	}
}

// SetClock replaces the wall clock. Timestamps handed out stay monotonic even
// if the clock moves backwards.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// tick must be called with mu held.
func (s *Store) tick() time.Time {
	t := s.now().UTC()
	if t.Before(s.last) {
		t = s.last
	}
	s.last = t
	return t
}

func (s *Store) takeFailure() error {
	err := s.FailNext
	s.FailNext = nil
	return err
}

func (s *Store) GetUser(ctx context.Context, id string) (*user.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyUser(u), nil
}

func (s *Store) UpsertUser(ctx context.Context, identity *user.Identity) (*user.User, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return nil, false, err
	}

	now := s.tick()
	u, ok := s.users[identity.ID]
	if !ok {
		u = &user.User{ID: identity.ID, CreatedAt: now}
		s.users[identity.ID] = u
	}
	u.DisplayName = identity.DisplayName
	u.Username = identity.Username
	u.Email = identity.Email
	u.AvatarURL = identity.AvatarURL
	u.LastLogin = now

	return copyUser(u), !ok, nil
}

func (s *Store) SubmitScore(ctx context.Context, sub *store.Submission) (*leaderboard.ScoreEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	if err := s.takeFailure(); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	u, ok := s.users[sub.UserID]
	if !ok {
		s.mu.Unlock()
		return nil, store.ErrNotFound
	}
	if store.TotalOverflows(u.TotalScore, sub.Score) {
		s.mu.Unlock()
		return nil, store.ErrScoreOverflow
	}

	now := s.tick()
	s.seq++
	entry := &leaderboard.ScoreEntry{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		Username:  u.Username,
		AvatarURL: u.AvatarURL,
		Score:     sub.Score,
		Extra:     maps.Clone(sub.Extra),
		CreatedAt: now,
		Seq:       s.seq,
	}
	s.entries = append(s.entries, entry)

	u.GamesPlayed++
	u.TotalScore += sub.Score
	u.HighestScore = max(u.HighestScore, sub.Score)
	score := sub.Score
	u.LastScore = &score
	u.LastPlayed = &now

	out := copyEntry(entry)
	s.mu.Unlock()

	s.notify()
	return out, nil
}

func (s *Store) TopScores(ctx context.Context, limit int) ([]*leaderboard.ScoreEntry, error) {
	return s.query(ctx, limit, func(*leaderboard.ScoreEntry) bool { return true })
}

func (s *Store) UserScores(ctx context.Context, userID string, limit int) ([]*leaderboard.ScoreEntry, error) {
	return s.query(ctx, limit, func(e *leaderboard.ScoreEntry) bool { return e.UserID == userID })
}

func (s *Store) query(ctx context.Context, limit int, keep func(*leaderboard.ScoreEntry) bool) ([]*leaderboard.ScoreEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*leaderboard.ScoreEntry
	for _, e := range s.entries {
		if keep(e) {
			matched = append(matched, e)
		}
	}
	slices.SortStableFunc(matched, func(a, b *leaderboard.ScoreEntry) int {
		switch {
		case store.Less(a, b):
			return -1
		case store.Less(b, a):
			return 1
		}
		return 0
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]*leaderboard.ScoreEntry, 0, len(matched))
	for _, e := range matched {
		out = append(out, copyEntry(e))
	}
	return out, nil
}

func (s *Store) Watch(ctx context.Context) (<-chan struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	internal := make(chan struct{}, 1)
	s.mu.Lock()
	s.watchers[internal] = struct{}{}
	s.mu.Unlock()

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer func() {
			s.mu.Lock()
			delete(s.watchers, internal)
			s.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case <-internal:
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out, nil
}

// notify must be called without mu held.
func (s *Store) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for w := range s.watchers {
		select {
		case w <- struct{}{}:
		default:
		}
	}
}

func (s *Store) RegisterDevice(ctx context.Context, userID string, token notification.DeviceToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return store.ErrNotFound
	}
	if s.devices[userID] == nil {
		s.devices[userID] = make(map[string]notification.DeviceToken)
	}
	token.UpdatedAt = s.tick()
	s.devices[userID][token.Token] = token
	return nil
}

func (s *Store) DeviceTokens(ctx context.Context, userID string) ([]notification.DeviceToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens := slices.Collect(maps.Values(s.devices[userID]))
	slices.SortFunc(tokens, func(a, b notification.DeviceToken) int { return a.UpdatedAt.Compare(b.UpdatedAt) })
	return tokens, nil
}

// ScoreCount returns how many entries a user has; used to check invariants.
func (s *Store) ScoreCount(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if e.UserID == userID {
			n++
		}
	}
	return n
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() error { return nil }

func copyUser(u *user.User) *user.User {
	c := *u
	if u.LastScore != nil {
		v := *u.LastScore
		c.LastScore = &v
	}
	if u.LastPlayed != nil {
		v := *u.LastPlayed
		c.LastPlayed = &v
	}
	return &c
}

func copyEntry(e *leaderboard.ScoreEntry) *leaderboard.ScoreEntry {
	c := *e
	c.Extra = maps.Clone(e.Extra)
	return &c
}
