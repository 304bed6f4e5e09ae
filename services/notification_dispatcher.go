package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"coinPusherAPI/internal/metrics"
	"coinPusherAPI/internal/store"
	"coinPusherAPI/internal/types/leaderboard"
	"coinPusherAPI/internal/types/notification"
)

type PushNotificationProvider interface {
	SendPush(ctx context.Context, tokens []notification.DeviceToken, title, body string, data map[string]any) error
}

// NotificationDispatcher tells players when a new score lands on the board.
// Jobs are queued without blocking the submitter and sent by a small worker pool.
type NotificationDispatcher struct {
	store        store.Store
	pushProvider PushNotificationProvider
	topLimit     int
	workers      int
	jobQueue     chan *leaderboard.ScoreEntry
	stopChan     chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
	mu           sync.RWMutex
}

func NewNotificationDispatcher(s store.Store, topLimit int) *NotificationDispatcher {
	if topLimit <= 0 {
		topLimit = DefaultTopLimit
	}
	d := &NotificationDispatcher{
		store:    s,
		topLimit: min(topLimit, MaxLimit),
		workers:  3,
		jobQueue: make(chan *leaderboard.ScoreEntry, 100),
		stopChan: make(chan struct{}),
	}
	d.startWorkers()
	return d
}

// Allow injecting the real FCM provider from main.go
func (d *NotificationDispatcher) SetPushProvider(provider PushNotificationProvider) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pushProvider = provider
}

func (d *NotificationDispatcher) provider() PushNotificationProvider {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.pushProvider
}

func (d *NotificationDispatcher) startWorkers() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
}

func (d *NotificationDispatcher) worker(id int) {
	defer d.wg.Done()
	for {
		select {
		case entry := <-d.jobQueue:
			d.processEntry(entry)
		case <-d.stopChan:
			return
		}
	}
}

// ScoreSubmitted queues a check for the new entry. A full queue drops it.
func (d *NotificationDispatcher) ScoreSubmitted(entry *leaderboard.ScoreEntry) {
	select {
	case <-d.stopChan:
		return
	default:
	}

	select {
	case d.jobQueue <- entry:
	default:
		metrics.PushNotifications.WithLabelValues("dropped").Inc()
		log.Printf("Failed to queue push for entry %s: queue full", entry.ID)
	}
}

func (d *NotificationDispatcher) processEntry(entry *leaderboard.ScoreEntry) {
	provider := d.provider()
	if provider == nil {
		metrics.PushNotifications.WithLabelValues("skipped").Inc()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	top, err := d.store.TopScores(ctx, d.topLimit)
	if err != nil {
		metrics.PushNotifications.WithLabelValues("failed").Inc()
		log.Printf("Push check failed for entry %s: %v", entry.ID, err)
		return
	}
	rank := 0
	for i, e := range top {
		if e.ID == entry.ID {
			rank = i + 1
			break
		}
	}
	if rank == 0 {
		metrics.PushNotifications.WithLabelValues("skipped").Inc()
		return
	}

	tokens, err := d.store.DeviceTokens(ctx, entry.UserID)
	if err != nil {
		metrics.PushNotifications.WithLabelValues("failed").Inc()
		log.Printf("Failed to load device tokens for user %s: %v", entry.UserID, err)
		return
	}
	if len(tokens) == 0 {
		metrics.PushNotifications.WithLabelValues("skipped").Inc()
		return
	}

	body := fmt.Sprintf("Your score of %d is #%d on the leaderboard", entry.Score, rank)
	data := map[string]any{
		"entryId": entry.ID,
		"rank":    rank,
		"score":   entry.Score,
	}
	if err := provider.SendPush(ctx, tokens, "New high score!", body, data); err != nil {
		metrics.PushNotifications.WithLabelValues("failed").Inc()
		log.Printf("Push failed for user %s: %v", entry.UserID, err)
		return
	}
	metrics.PushNotifications.WithLabelValues("sent").Inc()
}

// RegisterDevice stores a push token for a signed-in player.
func (d *NotificationDispatcher) RegisterDevice(ctx context.Context, userID string, req *notification.RegisterDeviceRequest) error {
	if req == nil || strings.TrimSpace(req.Token) == "" {
		return invalidInput("device token is required")
	}
	platform := strings.ToLower(strings.TrimSpace(req.Platform))
	switch platform {
	case "", "android", "ios", "web":
	default:
		return invalidInput("unknown platform %q", req.Platform)
	}

	err := d.store.RegisterDevice(ctx, userID, notification.DeviceToken{
		Token:    strings.TrimSpace(req.Token),
		Platform: platform,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		log.Printf("RegisterDevice: user %s: %v", userID, err)
		return storeError("register device", err)
	}
	return nil
}

// Stop the dispatcher gracefully
func (d *NotificationDispatcher) Stop() {
	d.stopOnce.Do(func() {
		log.Println("Stopping notification dispatcher...")
		close(d.stopChan)
		d.wg.Wait()
		log.Println("Notification dispatcher stopped")
	})
}
