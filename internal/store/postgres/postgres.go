// Package postgres stores users and score entries in PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"coinPusherAPI/internal/store"
	"coinPusherAPI/internal/types/leaderboard"
	"coinPusherAPI/internal/types/notification"
	"coinPusherAPI/internal/types/user"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const scoreChannel = "score_entries"

type Store struct {
	db *pgxpool.Pool
}

type PoolOptions struct {
	MaxConns int32
	MinConns int32
}

// Connect opens a pool, checks it and applies the schema.
func Connect(ctx context.Context, dbURL string, opts PoolOptions) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	if opts.MaxConns > 0 {
		poolConfig.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		poolConfig.MinConns = opts.MinConns
	}
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := New(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

const userColumns = `id, display_name, username, email, avatar_url, total_score, highest_score,
	games_played, last_score, last_played, last_login, created_at`

func scanUser(row pgx.Row, u *user.User, extra ...any) error {
	dest := []any{
		&u.ID,
		&u.DisplayName,
		&u.Username,
		&u.Email,
		&u.AvatarURL,
		&u.TotalScore,
		&u.HighestScore,
		&u.GamesPlayed,
		&u.LastScore,
		&u.LastPlayed,
		&u.LastLogin,
		&u.CreatedAt,
	}
	return row.Scan(append(dest, extra...)...)
}

func (s *Store) GetUser(ctx context.Context, id string) (*user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	u := &user.User{}
	if err := scanUser(s.db.QueryRow(ctx, query, id), u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func (s *Store) UpsertUser(ctx context.Context, identity *user.Identity) (*user.User, bool, error) {
	query := `
	INSERT INTO users (id, display_name, username, email, avatar_url, last_login, created_at)
	VALUES ($1, $2, $3, $4, $5, clock_timestamp(), clock_timestamp())
	ON CONFLICT (id) DO UPDATE SET
		display_name = EXCLUDED.display_name,
		username = EXCLUDED.username,
		email = EXCLUDED.email,
		avatar_url = EXCLUDED.avatar_url,
		last_login = EXCLUDED.last_login
	RETURNING ` + userColumns + `, (xmax = 0) AS created
	`

	u := &user.User{}
	var created bool
	err := scanUser(s.db.QueryRow(ctx, query,
		identity.ID,
		identity.DisplayName,
		identity.Username,
		identity.Email,
		identity.AvatarURL,
	), u, &created)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert user: %w", err)
	}
	return u, created, nil
}

func (s *Store) SubmitScore(ctx context.Context, sub *store.Submission) (*leaderboard.ScoreEntry, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Row lock serializes concurrent submissions for the same user.
	entry := &leaderboard.ScoreEntry{
		ID:     uuid.NewString(),
		UserID: sub.UserID,
		Score:  sub.Score,
		Extra:  sub.Extra,
	}
	var total int64
	err = tx.QueryRow(ctx, `SELECT username, avatar_url, total_score FROM users WHERE id = $1 FOR UPDATE`, sub.UserID).
		Scan(&entry.Username, &entry.AvatarURL, &total)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock user: %w", err)
	}
	if store.TotalOverflows(total, sub.Score) {
		return nil, store.ErrScoreOverflow
	}

	var extra any
	if len(sub.Extra) > 0 {
		extra = sub.Extra
	}
	insertQuery := `
	INSERT INTO score_entries (id, user_id, username, avatar_url, score, extra)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING seq, created_at
	`
	err = tx.QueryRow(ctx, insertQuery,
		entry.ID,
		entry.UserID,
		entry.Username,
		entry.AvatarURL,
		entry.Score,
		extra,
	).Scan(&entry.Seq, &entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert score entry: %w", err)
	}

	updateQuery := `
	UPDATE users SET
		games_played = games_played + 1,
		total_score = total_score + $2,
		highest_score = GREATEST(highest_score, $2),
		last_score = $2,
		last_played = $3
	WHERE id = $1
	`
	if _, err := tx.Exec(ctx, updateQuery, sub.UserID, sub.Score, entry.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to update user stats: %w", err)
	}

	// Delivered to listeners only once the transaction commits.
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, scoreChannel, entry.ID); err != nil {
		return nil, fmt.Errorf("failed to queue score notification: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit score: %w", err)
	}
	return entry, nil
}

const entryColumns = `id, user_id, username, avatar_url, score, extra, created_at, seq`

func (s *Store) TopScores(ctx context.Context, limit int) ([]*leaderboard.ScoreEntry, error) {
	query := `
	SELECT ` + entryColumns + `
	FROM score_entries
	ORDER BY score DESC, created_at ASC, seq ASC
	LIMIT $1
	`
	return s.queryEntries(ctx, query, limit)
}

func (s *Store) UserScores(ctx context.Context, userID string, limit int) ([]*leaderboard.ScoreEntry, error) {
	query := `
	SELECT ` + entryColumns + `
	FROM score_entries
	WHERE user_id = $2
	ORDER BY score DESC, created_at ASC, seq ASC
	LIMIT $1
	`
	return s.queryEntries(ctx, query, limit, userID)
}

func (s *Store) queryEntries(ctx context.Context, query string, limit int, args ...any) ([]*leaderboard.ScoreEntry, error) {
	rows, err := s.db.Query(ctx, query, append([]any{limit}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch scores: %w", err)
	}
	defer rows.Close()

	entries := []*leaderboard.ScoreEntry{}
	for rows.Next() {
		entry := &leaderboard.ScoreEntry{}
		err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&entry.Username,
			&entry.AvatarURL,
			&entry.Score,
			&entry.Extra,
			&entry.CreatedAt,
			&entry.Seq,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read scores: %w", err)
	}
	return entries, nil
}

// Watch holds one pooled connection in LISTEN mode until ctx ends.
func (s *Store) Watch(ctx context.Context) (<-chan struct{}, error) {
	conn, err := s.db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire listener connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+scoreChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	signals := make(chan struct{}, 1)
	go func() {
		defer close(signals)
		defer func() {
			unlistenCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := conn.Exec(unlistenCtx, "UNLISTEN *"); err != nil {
				// Don't hand a connection with a live LISTEN back to the pool.
				conn.Hijack().Close(unlistenCtx)
				return
			}
			conn.Release()
		}()

		for {
			_, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("Postgres watch: listener dropped: %v", err)
				}
				return
			}
			select {
			case signals <- struct{}{}:
			default:
			}
		}
	}()
	return signals, nil
}

func (s *Store) RegisterDevice(ctx context.Context, userID string, token notification.DeviceToken) error {
	query := `
	INSERT INTO device_tokens (token, user_id, platform, updated_at)
	SELECT $1, id, $3, clock_timestamp() FROM users WHERE id = $2
	ON CONFLICT (token) DO UPDATE SET
		user_id = EXCLUDED.user_id,
		platform = EXCLUDED.platform,
		updated_at = EXCLUDED.updated_at
	`
	result, err := s.db.Exec(ctx, query, token.Token, userID, token.Platform)
	if err != nil {
		return fmt.Errorf("failed to register device: %w", err)
	}
	if result.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeviceTokens(ctx context.Context, userID string) ([]notification.DeviceToken, error) {
	rows, err := s.db.Query(ctx, `
	SELECT token, platform, updated_at FROM device_tokens
	WHERE user_id = $1
	ORDER BY updated_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch device tokens: %w", err)
	}
	defer rows.Close()

	var tokens []notification.DeviceToken
	for rows.Next() {
		var t notification.DeviceToken
		if err := rows.Scan(&t.Token, &t.Platform, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *Store) Close() error {
	log.Println("Closing database connection pool...")
	s.db.Close()
	return nil
}
