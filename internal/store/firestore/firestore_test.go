package firestore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"testing"
	"time"

	"coinPusherAPI/internal/store"
	"coinPusherAPI/internal/types/notification"
	"coinPusherAPI/internal/types/user"

	"cloud.google.com/go/firestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const emulatorProject = "coinpusher-test"

// setupTestStore starts the Firestore emulator. Set FIRESTORE_INTEGRATION=1 to run.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("FIRESTORE_INTEGRATION") != "1" {
		t.Skip("set FIRESTORE_INTEGRATION=1 to run Firestore emulator tests")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "gcr.io/google.com/cloudsdktool/google-cloud-cli:emulators",
			ExposedPorts: []string{"8080/tcp"},
			Cmd: []string{
				"gcloud", "beta", "emulators", "firestore", "start",
				"--host-port=0.0.0.0:8080",
				"--project=" + emulatorProject,
			},
			WaitingFor: wait.ForLog("Dev App Server is now running").
				WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err, "Failed to start Firestore emulator")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate Firestore emulator: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "8080/tcp")
	require.NoError(t, err)

	// The client library connects without credentials when this is set.
	t.Setenv("FIRESTORE_EMULATOR_HOST", fmt.Sprintf("%s:%s", host, port.Port()))
	client, err := firestore.NewClient(ctx, emulatorProject)
	require.NoError(t, err)

	s := New(client)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFirestoreStore(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	t.Run("upsert keeps counters", func(t *testing.T) {
		u, created, err := s.UpsertUser(ctx, &user.Identity{ID: "user_a", DisplayName: "Alice", Username: "alice"})
		require.NoError(t, err)
		assert.True(t, created)
		assert.Zero(t, u.GamesPlayed)
		assert.False(t, u.CreatedAt.IsZero())

		u, created, err = s.UpsertUser(ctx, &user.Identity{ID: "user_a", DisplayName: "Alice", Username: "alice2"})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, "alice2", u.Username)
	})

	t.Run("submit updates aggregates", func(t *testing.T) {
		for _, score := range []int64{50, 120, 30} {
			entry, err := s.SubmitScore(ctx, &store.Submission{UserID: "user_a", Score: score})
			require.NoError(t, err)
			assert.Equal(t, "alice2", entry.Username)
			assert.Equal(t, score, entry.Score)
			assert.False(t, entry.CreatedAt.IsZero())
		}

		u, err := s.GetUser(ctx, "user_a")
		require.NoError(t, err)
		assert.Equal(t, int64(200), u.TotalScore)
		assert.Equal(t, int64(120), u.HighestScore)
		assert.Equal(t, int64(3), u.GamesPlayed)
		require.NotNil(t, u.LastScore)
		assert.Equal(t, int64(30), *u.LastScore)
		assert.NotNil(t, u.LastPlayed)

		scores, err := s.UserScores(ctx, "user_a", 5)
		require.NoError(t, err)
		require.Len(t, scores, 3)
		assert.Equal(t, []int64{120, 50, 30}, []int64{scores[0].Score, scores[1].Score, scores[2].Score})
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := s.SubmitScore(ctx, &store.Submission{UserID: "ghost", Score: 10})
		assert.ErrorIs(t, err, store.ErrNotFound)

		_, err = s.GetUser(ctx, "ghost")
		assert.ErrorIs(t, err, store.ErrNotFound)

		scores, err := s.UserScores(ctx, "ghost", 5)
		require.NoError(t, err)
		assert.Empty(t, scores)
	})

	t.Run("missing highest score reads as zero", func(t *testing.T) {
		_, err := s.client.Collection(usersCollection).Doc("user_legacy").Set(ctx, map[string]any{
			"username":    "legacy",
			"totalScore":  0,
			"gamesPlayed": 0,
		})
		require.NoError(t, err)

		_, err = s.SubmitScore(ctx, &store.Submission{UserID: "user_legacy", Score: 5})
		require.NoError(t, err)

		u, err := s.GetUser(ctx, "user_legacy")
		require.NoError(t, err)
		assert.Equal(t, int64(5), u.HighestScore)
		assert.Equal(t, int64(1), u.GamesPlayed)
	})

	t.Run("extra keeps its fields but not reserved ones", func(t *testing.T) {
		entry, err := s.SubmitScore(ctx, &store.Submission{
			UserID: "user_a",
			Score:  1,
			Extra:  map[string]any{"machineId": 2, "score": 999, "username": "admin"},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), entry.Score)
		assert.Equal(t, "alice2", entry.Username)
		assert.Equal(t, map[string]any{"machineId": int64(2)}, entry.Extra)

		scores, err := s.UserScores(ctx, "user_a", 10)
		require.NoError(t, err)
		last := scores[len(scores)-1]
		assert.Equal(t, entry.ID, last.ID)
		assert.Equal(t, map[string]any{"machineId": int64(2)}, last.Extra)
	})

	t.Run("ties rank by submission", func(t *testing.T) {
		_, _, err := s.UpsertUser(ctx, &user.Identity{ID: "user_b", Username: "bob"})
		require.NoError(t, err)
		first, err := s.SubmitScore(ctx, &store.Submission{UserID: "user_b", Score: 500})
		require.NoError(t, err)
		second, err := s.SubmitScore(ctx, &store.Submission{UserID: "user_a", Score: 500})
		require.NoError(t, err)

		top, err := s.TopScores(ctx, 2)
		require.NoError(t, err)
		require.Len(t, top, 2)
		assert.Equal(t, first.ID, top[0].ID)
		assert.Equal(t, second.ID, top[1].ID)
	})

	t.Run("concurrent submissions", func(t *testing.T) {
		_, _, err := s.UpsertUser(ctx, &user.Identity{ID: "user_c", Username: "carol"})
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 1; i <= 5; i++ {
			wg.Add(1)
			go func(score int64) {
				defer wg.Done()
				_, err := s.SubmitScore(ctx, &store.Submission{UserID: "user_c", Score: score})
				assert.NoError(t, err)
			}(int64(i))
		}
		wg.Wait()

		u, err := s.GetUser(ctx, "user_c")
		require.NoError(t, err)
		assert.Equal(t, int64(15), u.TotalScore)
		assert.Equal(t, int64(5), u.HighestScore)
		assert.Equal(t, int64(5), u.GamesPlayed)
	})

	t.Run("total overflow is refused", func(t *testing.T) {
		_, _, err := s.UpsertUser(ctx, &user.Identity{ID: "user_big", Username: "big"})
		require.NoError(t, err)
		_, err = s.SubmitScore(ctx, &store.Submission{UserID: "user_big", Score: math.MaxInt64 - 10})
		require.NoError(t, err)

		_, err = s.SubmitScore(ctx, &store.Submission{UserID: "user_big", Score: 11})
		assert.ErrorIs(t, err, store.ErrScoreOverflow)

		u, err := s.GetUser(ctx, "user_big")
		require.NoError(t, err)
		assert.Equal(t, int64(math.MaxInt64-10), u.TotalScore)
		assert.Equal(t, int64(1), u.GamesPlayed)
	})

	t.Run("committed submit survives failed read back", func(t *testing.T) {
		_, _, err := s.UpsertUser(ctx, &user.Identity{ID: "user_d", Username: "dave", AvatarURL: "https://avatars.example.com/dave"})
		require.NoError(t, err)

		s.getDoc = func(context.Context, *firestore.DocumentRef) (*firestore.DocumentSnapshot, error) {
			return nil, status.Error(codes.Unavailable, "connection reset")
		}
		defer func() {
			s.getDoc = func(ctx context.Context, ref *firestore.DocumentRef) (*firestore.DocumentSnapshot, error) {
				return ref.Get(ctx)
			}
		}()

		entry, err := s.SubmitScore(ctx, &store.Submission{UserID: "user_d", Score: 77, Extra: map[string]any{"machineId": 3}})
		require.NoError(t, err)
		assert.NotEmpty(t, entry.ID)
		assert.Equal(t, "dave", entry.Username)
		assert.Equal(t, "https://avatars.example.com/dave", entry.AvatarURL)
		assert.Equal(t, int64(77), entry.Score)
		assert.Equal(t, 3, entry.Extra["machineId"])
		assert.False(t, entry.CreatedAt.IsZero())

		scores, err := s.UserScores(ctx, "user_d", 5)
		require.NoError(t, err)
		require.Len(t, scores, 1)
		assert.Equal(t, entry.ID, scores[0].ID)
	})

	t.Run("watch signals commits", func(t *testing.T) {
		watchCtx, cancel := context.WithCancel(ctx)
		signals, err := s.Watch(watchCtx)
		require.NoError(t, err)

		// The listener's first snapshot may already report the newest document.
		drain := time.After(500 * time.Millisecond)
	initial:
		for {
			select {
			case <-signals:
			case <-drain:
				break initial
			}
		}

		_, err = s.SubmitScore(ctx, &store.Submission{UserID: "user_a", Score: 7})
		require.NoError(t, err)

		select {
		case <-signals:
		case <-time.After(5 * time.Second):
			t.Fatal("no signal after commit")
		}

		cancel()
		for range signals {
		}
	})

	t.Run("device tokens", func(t *testing.T) {
		err := s.RegisterDevice(ctx, "ghost", notification.DeviceToken{Token: "x"})
		assert.True(t, errors.Is(err, store.ErrNotFound))

		require.NoError(t, s.RegisterDevice(ctx, "user_a", notification.DeviceToken{Token: "tok", Platform: "android"}))
		require.NoError(t, s.RegisterDevice(ctx, "user_a", notification.DeviceToken{Token: "tok", Platform: "ios"}))
		tokens, err := s.DeviceTokens(ctx, "user_a")
		require.NoError(t, err)
		require.Len(t, tokens, 1)
		assert.Equal(t, "ios", tokens[0].Platform)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, s.Ping(ctx))
	})
}
