package memory

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"coinPusherAPI/internal/store"
	"coinPusherAPI/internal/types/notification"
	"coinPusherAPI/internal/types/user"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestampsStayMonotonic(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	times := []time.Time{base, base.Add(-time.Hour), base}
	i := 0
	s.SetClock(func() time.Time {
		ts := times[min(i, len(times)-1)]
		i++
		return ts
	})

	_, _, err := s.UpsertUser(ctx, &user.Identity{ID: "u"})
	require.NoError(t, err)
	a, err := s.SubmitScore(ctx, &store.Submission{UserID: "u", Score: 5})
	require.NoError(t, err)
	b, err := s.SubmitScore(ctx, &store.Submission{UserID: "u", Score: 5})
	require.NoError(t, err)

	assert.False(t, b.CreatedAt.Before(a.CreatedAt))
	assert.Less(t, a.Seq, b.Seq)

	top, err := s.TopScores(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, a.ID, top[0].ID)
	assert.Equal(t, b.ID, top[1].ID)
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, _, err := s.UpsertUser(ctx, &user.Identity{ID: "u", Username: "neo"})
	require.NoError(t, err)

	entry, err := s.SubmitScore(ctx, &store.Submission{UserID: "u", Score: 1, Extra: map[string]any{"k": "v"}})
	require.NoError(t, err)
	entry.Extra["k"] = "changed"
	entry.Score = 999

	top, err := s.TopScores(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), top[0].Score)
	assert.Equal(t, "v", top[0].Extra["k"])
}

func TestFailNextIsConsumedOnce(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	s.FailNext = boom
	_, _, err := s.UpsertUser(ctx, &user.Identity{ID: "u"})
	assert.ErrorIs(t, err, boom)
	_, err = s.GetUser(ctx, "u")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, _, err = s.UpsertUser(ctx, &user.Identity{ID: "u"})
	require.NoError(t, err)
}

func TestWatchSignalsAndCloses(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	_, _, err := s.UpsertUser(context.Background(), &user.Identity{ID: "u"})
	require.NoError(t, err)

	signals, err := s.Watch(ctx)
	require.NoError(t, err)

	_, err = s.SubmitScore(context.Background(), &store.Submission{UserID: "u", Score: 3})
	require.NoError(t, err)

	select {
	case <-signals:
	case <-time.After(time.Second):
		t.Fatal("no signal after submit")
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-signals:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestDevicesRequireUser(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.RegisterDevice(ctx, "u", notification.DeviceToken{Token: "t"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, _, err = s.UpsertUser(ctx, &user.Identity{ID: "u"})
	require.NoError(t, err)
	require.NoError(t, s.RegisterDevice(ctx, "u", notification.DeviceToken{Token: "t", Platform: "web"}))

	tokens, err := s.DeviceTokens(ctx, "u")
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.False(t, tokens[0].UpdatedAt.IsZero())
}

func TestSubmitRefusesTotalOverflow(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, _, err := s.UpsertUser(ctx, &user.Identity{ID: "user_a", Username: "alice"})
	require.NoError(t, err)

	_, err = s.SubmitScore(ctx, &store.Submission{UserID: "user_a", Score: math.MaxInt64 - 10})
	require.NoError(t, err)
	_, err = s.SubmitScore(ctx, &store.Submission{UserID: "user_a", Score: 11})
	assert.ErrorIs(t, err, store.ErrScoreOverflow)

	u, err := s.GetUser(ctx, "user_a")
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64-10), u.TotalScore)
	assert.Equal(t, int64(1), u.GamesPlayed)
	assert.Equal(t, 1, s.ScoreCount("user_a"))

	_, err = s.SubmitScore(ctx, &store.Submission{UserID: "user_a", Score: 10})
	require.NoError(t, err)
}
