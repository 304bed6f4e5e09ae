// Package firestore keeps users and score entries in Cloud Firestore, the
// hosted document database the game front-end was first built on.
package firestore

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

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	usersCollection       = "users"
	leaderboardCollection = "leaderboard"
	devicesCollection     = "devices"
)

// Fields written by the store itself; submission extras never overwrite them.
var reservedFields = map[string]bool{
	"userId":    true,
	"username":  true,
	"avatarUrl": true,
	"score":     true,
	"createdAt": true,
}

type Store struct {
	client *firestore.Client
	// getDoc reads a single document; replaced in tests.
	getDoc func(ctx context.Context, ref *firestore.DocumentRef) (*firestore.DocumentSnapshot, error)
}

func New(client *firestore.Client) *Store {
	return &Store{
		client: client,
		getDoc: func(ctx context.Context, ref *firestore.DocumentRef) (*firestore.DocumentSnapshot, error) {
			return ref.Get(ctx)
		},
	}
}

type userDoc struct {
	DisplayName  string     `firestore:"displayName"`
	Username     string     `firestore:"username"`
	Email        string     `firestore:"email"`
	AvatarURL    string     `firestore:"avatarUrl"`
	TotalScore   int64      `firestore:"totalScore"`
	HighestScore int64      `firestore:"highestScore"`
	GamesPlayed  int64      `firestore:"gamesPlayed"`
	LastScore    *int64     `firestore:"lastScore"`
	LastPlayed   *time.Time `firestore:"lastPlayed"`
	LastLogin    time.Time  `firestore:"lastLogin"`
	CreatedAt    time.Time  `firestore:"createdAt"`
}

func (d *userDoc) toUser(id string) *user.User {
	return &user.User{
		ID:           id,
		DisplayName:  d.DisplayName,
		Username:     d.Username,
		Email:        d.Email,
		AvatarURL:    d.AvatarURL,
		TotalScore:   d.TotalScore,
		HighestScore: d.HighestScore,
		GamesPlayed:  d.GamesPlayed,
		LastScore:    d.LastScore,
		LastPlayed:   d.LastPlayed,
		LastLogin:    d.LastLogin,
		CreatedAt:    d.CreatedAt,
	}
}

type entryDoc struct {
	UserID    string    `firestore:"userId"`
	Username  string    `firestore:"username"`
	AvatarURL string    `firestore:"avatarUrl"`
	Score     int64     `firestore:"score"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func (s *Store) users() *firestore.CollectionRef {
	return s.client.Collection(usersCollection)
}

func (s *Store) leaderboard() *firestore.CollectionRef {
	return s.client.Collection(leaderboardCollection)
}

func (s *Store) GetUser(ctx context.Context, id string) (*user.User, error) {
	snap, err := s.users().Doc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return decodeUser(snap)
}

func decodeUser(snap *firestore.DocumentSnapshot) (*user.User, error) {
	var doc userDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode user %s: %w", snap.Ref.ID, err)
	}
	return doc.toUser(snap.Ref.ID), nil
}

func (s *Store) UpsertUser(ctx context.Context, identity *user.Identity) (*user.User, bool, error) {
	ref := s.users().Doc(identity.ID)
	created := false

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		created = false
		_, err := tx.Get(ref)
		switch {
		case isNotFound(err):
			created = true
			return tx.Create(ref, map[string]any{
				"displayName":  identity.DisplayName,
				"username":     identity.Username,
				"email":        identity.Email,
				"avatarUrl":    identity.AvatarURL,
				"totalScore":   0,
				"highestScore": 0,
				"gamesPlayed":  0,
				"lastLogin":    firestore.ServerTimestamp,
				"createdAt":    firestore.ServerTimestamp,
			})
		case err != nil:
			return err
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "displayName", Value: identity.DisplayName},
			{Path: "username", Value: identity.Username},
			{Path: "email", Value: identity.Email},
			{Path: "avatarUrl", Value: identity.AvatarURL},
			{Path: "lastLogin", Value: firestore.ServerTimestamp},
		})
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert user: %w", err)
	}

	u, err := s.GetUser(ctx, identity.ID)
	if err != nil {
		return nil, false, err
	}
	return u, created, nil
}

func (s *Store) SubmitScore(ctx context.Context, sub *store.Submission) (*leaderboard.ScoreEntry, error) {
	userRef := s.users().Doc(sub.UserID)
	entryRef := s.leaderboard().Doc(uuid.NewString())
	var u userDoc

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		u = userDoc{}
		snap, err := tx.Get(userRef)
		if err != nil {
			if isNotFound(err) {
				return store.ErrNotFound
			}
			return err
		}
		if err := snap.DataTo(&u); err != nil {
			return fmt.Errorf("failed to decode user: %w", err)
		}
		if store.TotalOverflows(u.TotalScore, sub.Score) {
			return store.ErrScoreOverflow
		}

		data := make(map[string]any, len(sub.Extra)+5)
		for k, v := range sub.Extra {
			if !reservedFields[k] {
				data[k] = v
			}
		}
		data["userId"] = sub.UserID
		data["username"] = u.Username
		data["avatarUrl"] = u.AvatarURL
		data["score"] = sub.Score
		data["createdAt"] = firestore.ServerTimestamp
		if err := tx.Create(entryRef, data); err != nil {
			return err
		}

		updates := []firestore.Update{
			{Path: "gamesPlayed", Value: firestore.Increment(1)},
			{Path: "totalScore", Value: firestore.Increment(sub.Score)},
			{Path: "lastScore", Value: sub.Score},
			{Path: "lastPlayed", Value: firestore.ServerTimestamp},
		}
		// A user document without highestScore decodes as 0.
		if sub.Score > u.HighestScore {
			updates = append(updates, firestore.Update{Path: "highestScore", Value: sub.Score})
		}
		return tx.Update(userRef, updates)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to submit score: %w", err)
	}

	// Committed: from here on the submission must not be reported as failed.
	entry := &leaderboard.ScoreEntry{
		ID:        entryRef.ID,
		UserID:    sub.UserID,
		Username:  u.Username,
		AvatarURL: u.AvatarURL,
		Score:     sub.Score,
		CreatedAt: time.Now().UTC(),
	}
	for k, v := range sub.Extra {
		if reservedFields[k] {
			continue
		}
		if entry.Extra == nil {
			entry.Extra = make(map[string]any)
		}
		entry.Extra[k] = v
	}

	snap, err := s.getDoc(ctx, entryRef)
	if err != nil {
		log.Printf("Firestore: read back of committed entry %s failed, using local time: %v", entryRef.ID, err)
		return entry, nil
	}
	stored, err := decodeEntry(snap)
	if err != nil {
		log.Printf("Firestore: decode of committed entry %s failed: %v", entryRef.ID, err)
		return entry, nil
	}
	return stored, nil
}

func decodeEntry(snap *firestore.DocumentSnapshot) (*leaderboard.ScoreEntry, error) {
	var doc entryDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode score entry %s: %w", snap.Ref.ID, err)
	}

	var extra map[string]any
	for k, v := range snap.Data() {
		if reservedFields[k] {
			continue
		}
		if extra == nil {
			extra = make(map[string]any)
		}
		extra[k] = v
	}

	return &leaderboard.ScoreEntry{
		ID:        snap.Ref.ID,
		UserID:    doc.UserID,
		Username:  doc.Username,
		AvatarURL: doc.AvatarURL,
		Score:     doc.Score,
		Extra:     extra,
		CreatedAt: doc.CreatedAt,
	}, nil
}

func (s *Store) TopScores(ctx context.Context, limit int) ([]*leaderboard.ScoreEntry, error) {
	q := s.leaderboard().
		OrderBy("score", firestore.Desc).
		OrderBy("createdAt", firestore.Asc).
		Limit(limit)
	return collectEntries(q.Documents(ctx))
}

func (s *Store) UserScores(ctx context.Context, userID string, limit int) ([]*leaderboard.ScoreEntry, error) {
	q := s.leaderboard().
		Where("userId", "==", userID).
		OrderBy("score", firestore.Desc).
		OrderBy("createdAt", firestore.Asc).
		Limit(limit)
	return collectEntries(q.Documents(ctx))
}

func collectEntries(it *firestore.DocumentIterator) ([]*leaderboard.ScoreEntry, error) {
	defer it.Stop()

	entries := []*leaderboard.ScoreEntry{}
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to fetch scores: %w", err)
		}
		entry, err := decodeEntry(snap)
		if err != nil {
			return nil, err
		}
		entry.Seq = int64(len(entries))
		entries = append(entries, entry)
	}
	return entries, nil
}

// Watch listens to the newest leaderboard document; every insert changes it.
func (s *Store) Watch(ctx context.Context) (<-chan struct{}, error) {
	q := s.leaderboard().OrderBy("createdAt", firestore.Desc).Limit(1)
	it := q.Snapshots(ctx)

	signals := make(chan struct{}, 1)
	go func() {
		defer close(signals)
		defer it.Stop()

		for {
			snap, err := it.Next()
			if err != nil {
				if ctx.Err() == nil && err != iterator.Done {
					log.Printf("Firestore watch: listener dropped: %v", err)
				}
				return
			}
			if len(snap.Changes) == 0 {
				continue
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
	userRef := s.users().Doc(userID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(userRef); err != nil {
			if isNotFound(err) {
				return store.ErrNotFound
			}
			return err
		}
		return tx.Set(userRef.Collection(devicesCollection).Doc(token.Token), map[string]any{
			"platform":  token.Platform,
			"updatedAt": firestore.ServerTimestamp,
		})
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.ErrNotFound
		}
		return fmt.Errorf("failed to register device: %w", err)
	}
	return nil
}

func (s *Store) DeviceTokens(ctx context.Context, userID string) ([]notification.DeviceToken, error) {
	it := s.users().Doc(userID).Collection(devicesCollection).OrderBy("updatedAt", firestore.Asc).Documents(ctx)
	defer it.Stop()

	var tokens []notification.DeviceToken
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to fetch device tokens: %w", err)
		}
		var doc struct {
			Platform  string    `firestore:"platform"`
			UpdatedAt time.Time `firestore:"updatedAt"`
		}
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode device token: %w", err)
		}
		tokens = append(tokens, notification.DeviceToken{
			Token:     snap.Ref.ID,
			Platform:  doc.Platform,
			UpdatedAt: doc.UpdatedAt,
		})
	}
	return tokens, nil
}

func (s *Store) Ping(ctx context.Context) error {
	it := s.users().Limit(1).Documents(ctx)
	defer it.Stop()
	if _, err := it.Next(); err != nil && err != iterator.Done {
		return err
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
