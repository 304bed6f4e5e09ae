// Package store defines the document-store contract the leaderboard is built on.
package store

import (
	"context"
	"errors"
	"math"

	"coinPusherAPI/internal/types/leaderboard"
	"coinPusherAPI/internal/types/notification"
	"coinPusherAPI/internal/types/user"
)

// ErrNotFound is returned when a keyed record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrScoreOverflow is returned when a submission would push a user's total
// past what an int64 holds. Nothing is written.
var ErrScoreOverflow = errors.New("total score out of range")

// MaxScore is the largest single score accepted. It is exact as a float64,
// so JSON clients round-trip it unchanged.
const MaxScore int64 = 1 << 53

// TotalOverflows reports whether adding score to total exceeds int64.
func TotalOverflows(total, score int64) bool {
	return score > 0 && total > math.MaxInt64-score
}

// Submission is a score about to be recorded for an existing user.
type Submission struct {
	UserID string
	Score  int64
	Extra  map[string]any
}

// Store is a durable home for users and score entries.
//
// SubmitScore must apply the entry insert and the user aggregate update as a
// single transaction: either both are visible afterwards or neither is. The
// entry's Username and AvatarURL are copied from the user record read inside
// that transaction, and CreatedAt comes from the store's clock.
type Store interface {
	GetUser(ctx context.Context, id string) (*user.User, error)
	// UpsertUser creates the user with zeroed counters, or refreshes only the
	// descriptive fields and last login of an existing one.
	UpsertUser(ctx context.Context, identity *user.Identity) (u *user.User, created bool, err error)
	SubmitScore(ctx context.Context, sub *Submission) (*leaderboard.ScoreEntry, error)
	TopScores(ctx context.Context, limit int) ([]*leaderboard.ScoreEntry, error)
	UserScores(ctx context.Context, userID string, limit int) ([]*leaderboard.ScoreEntry, error)
	// Watch returns a channel that receives a value after score entries are
	// committed. The channel is closed when ctx ends or the feed is lost.
	Watch(ctx context.Context) (<-chan struct{}, error)

	RegisterDevice(ctx context.Context, userID string, token notification.DeviceToken) error
	DeviceTokens(ctx context.Context, userID string) ([]notification.DeviceToken, error)

	Ping(ctx context.Context) error
	Close() error
}

// Less reports whether a ranks ahead of b: higher score first, then earlier
// creation, then earlier insertion.
func Less(a, b *leaderboard.ScoreEntry) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.Seq < b.Seq
}
