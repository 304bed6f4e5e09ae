package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"coinPusherAPI/internal/metrics"
	"coinPusherAPI/internal/session"
	"coinPusherAPI/internal/store"
	"coinPusherAPI/internal/types/leaderboard"
	"coinPusherAPI/internal/types/machine"
	"coinPusherAPI/internal/types/user"
)

const (
	DefaultTopLimit  = 10
	DefaultUserLimit = 5
	MaxLimit         = 100
)

// Fields a ScoreEntry sets itself; submission extras may not use them.
var reservedExtraFields = []string{"userId", "username", "avatarUrl", "score", "createdAt"}

// ScoreObserver hears about every committed score.
type ScoreObserver interface {
	ScoreSubmitted(entry *leaderboard.ScoreEntry)
}

type LeaderboardService struct {
	store    store.Store
	observer ScoreObserver
}

func NewLeaderboardService(s store.Store) *LeaderboardService {
	return &LeaderboardService{store: s}
}

// SetObserver attaches a listener for committed scores, e.g. the push dispatcher.
func (s *LeaderboardService) SetObserver(o ScoreObserver) {
	s.observer = o
}

// resolveLimit applies the default for 0 and caps at MaxLimit.
func resolveLimit(n, def int) (int, error) {
	switch {
	case n == 0:
		return def, nil
	case n < 0:
		return 0, invalidInput("limit must be positive, got %d", n)
	case n > MaxLimit:
		return MaxLimit, nil
	}
	return n, nil
}

// GetTopScores returns the best n entries overall, ranked 1..n.
func (s *LeaderboardService) GetTopScores(ctx context.Context, n int) ([]*leaderboard.RankedScore, error) {
	limit, err := resolveLimit(n, DefaultTopLimit)
	if err != nil {
		return nil, err
	}

	entries, err := s.store.TopScores(ctx, limit)
	if err != nil {
		log.Printf("GetTopScores: %v", err)
		return nil, storeError("get top scores", err)
	}
	return leaderboard.Rank(entries), nil
}

// GetUserScores returns up to n of one user's entries in leaderboard order.
// Ranks are positions within this list only. An empty userID yields an empty list.
func (s *LeaderboardService) GetUserScores(ctx context.Context, userID string, n int) ([]*leaderboard.RankedScore, error) {
	limit, err := resolveLimit(n, DefaultUserLimit)
	if err != nil {
		return nil, err
	}
	if userID == "" {
		return []*leaderboard.RankedScore{}, nil
	}

	entries, err := s.store.UserScores(ctx, userID, limit)
	if err != nil {
		log.Printf("GetUserScores: user %s: %v", userID, err)
		return nil, storeError("get user scores", err)
	}
	return leaderboard.Rank(entries), nil
}

// ParseScore accepts only finite, non-negative whole numbers.
func ParseScore(v float64) (int64, error) {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return 0, invalidInput("score must be finite")
	case v < 0:
		return 0, invalidInput("score must not be negative")
	case v != math.Trunc(v):
		return 0, invalidInput("score must be a whole number")
	case v > float64(store.MaxScore):
		return 0, invalidInput("score must not exceed %d", store.MaxScore)
	}
	return int64(v), nil
}

func validateExtra(extra map[string]any) error {
	for _, field := range reservedExtraFields {
		if _, ok := extra[field]; ok {
			return invalidInput("extra field %q is reserved", field)
		}
	}

	raw, ok := extra["machineId"]
	if !ok {
		return nil
	}
	var id int
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) {
			return invalidInput("machineId must be a whole number")
		}
		id = int(v)
	case int:
		id = v
	case int64:
		id = int(v)
	default:
		return invalidInput("machineId must be a number")
	}
	if _, ok := machine.Find(id); !ok {
		return invalidInput("unknown machine %d", id)
	}
	return nil
}

// SubmitScore records a finished game for userID and returns the new entry's ID.
func (s *LeaderboardService) SubmitScore(ctx context.Context, userID string, score int64, extra map[string]any) (string, error) {
	entry, err := s.submit(ctx, userID, score, extra)
	if err != nil {
		return "", err
	}
	return entry.ID, nil
}

// SubmitForSession records a score for the session's player. A nil or ended
// session fails with ErrUnauthorized.
func (s *LeaderboardService) SubmitForSession(ctx context.Context, sess *session.Session, score int64, extra map[string]any) (*leaderboard.ScoreEntry, error) {
	if sess == nil || sess.Ended() {
		metrics.ScoresSubmitted.WithLabelValues("unauthorized").Inc()
		return nil, ErrUnauthorized
	}
	return s.submit(ctx, sess.UserID, score, extra)
}

func (s *LeaderboardService) submit(ctx context.Context, userID string, score int64, extra map[string]any) (*leaderboard.ScoreEntry, error) {
	if userID == "" {
		metrics.ScoresSubmitted.WithLabelValues("invalid").Inc()
		return nil, invalidInput("user id is required")
	}
	if score < 0 {
		metrics.ScoresSubmitted.WithLabelValues("invalid").Inc()
		return nil, invalidInput("score must not be negative")
	}
	if score > store.MaxScore {
		metrics.ScoresSubmitted.WithLabelValues("invalid").Inc()
		return nil, invalidInput("score must not exceed %d", store.MaxScore)
	}
	if err := validateExtra(extra); err != nil {
		metrics.ScoresSubmitted.WithLabelValues("invalid").Inc()
		return nil, err
	}

	entry, err := s.store.SubmitScore(ctx, &store.Submission{
		UserID: userID,
		Score:  score,
		Extra:  extra,
	})
	if err != nil {
		err = storeError("submit score", err)
		switch {
		case errors.Is(err, ErrUserNotFound):
			metrics.ScoresSubmitted.WithLabelValues("user_not_found").Inc()
		case errors.Is(err, ErrInvalidInput):
			metrics.ScoresSubmitted.WithLabelValues("invalid").Inc()
		default:
			metrics.ScoresSubmitted.WithLabelValues("error").Inc()
		}
		log.Printf("SubmitScore: user %s: %v", userID, err)
		return nil, err
	}

	metrics.ScoresSubmitted.WithLabelValues("ok").Inc()
	log.Printf("SubmitScore: user %s scored %d (entry %s)", userID, score, entry.ID)

	if s.observer != nil {
		s.observer.ScoreSubmitted(entry)
	}
	return entry, nil
}

// RegisterOrUpdateUser creates the player on first sign-in or refreshes their
// descriptive fields. Counters are never touched.
func (s *LeaderboardService) RegisterOrUpdateUser(ctx context.Context, identity *user.Identity) (*user.User, bool, error) {
	if identity == nil || identity.ID == "" {
		return nil, false, invalidInput("identity id is required")
	}
	id := *identity
	id.Normalize()

	u, created, err := s.store.UpsertUser(ctx, &id)
	if err != nil {
		log.Printf("RegisterOrUpdateUser: user %s: %v", id.ID, err)
		return nil, false, fmt.Errorf("register user: %w: %w", ErrTransient, err)
	}
	if created {
		log.Printf("RegisterOrUpdateUser: created user %s (%s)", u.ID, u.Username)
	}
	return u, created, nil
}

func (s *LeaderboardService) GetUserProfile(ctx context.Context, userID string) (*user.User, error) {
	if userID == "" {
		return nil, ErrUserNotFound
	}
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, storeError("get user profile", err)
	}
	return u, nil
}

// Refresh re-reads the top scores and, when a session is given, that player's
// scores. The result replaces the session's cached view.
func (s *LeaderboardService) Refresh(ctx context.Context, sess *session.Session) (*leaderboard.View, error) {
	top, err := s.GetTopScores(ctx, DefaultTopLimit)
	if err != nil {
		return nil, err
	}

	view := &leaderboard.View{
		TopScores:   top,
		UserScores:  []*leaderboard.RankedScore{},
		RefreshedAt: time.Now().UTC(),
	}
	if sess != nil {
		view.UserScores, err = s.GetUserScores(ctx, sess.UserID, DefaultUserLimit)
		if err != nil {
			return nil, err
		}
		sess.SetView(view)
	}
	return view, nil
}

func (s *LeaderboardService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
