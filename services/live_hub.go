// The hub owns one store watch and every live subscriber. Subscribers are added
// and removed through channels and only the Run loop touches the subscriber
// map, the same shape as a websocket game session.
package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"coinPusherAPI/internal/metrics"
	"coinPusherAPI/internal/store"
	"coinPusherAPI/internal/types/leaderboard"
)

const defaultWatchRetry = 2 * time.Second

// Subscription is a standing top-n query. The first list arrives immediately;
// after that a list is delivered only when the membership or order of the top
// n changes. Slow readers see the latest list and skip intermediate ones.
type Subscription struct {
	hub   *LiveHub
	limit int

	updates chan []*leaderboard.RankedScore
	done    chan struct{}
	last    []*leaderboard.RankedScore // owned by the hub loop

	closeOnce  sync.Once
	finishOnce sync.Once
	mu         sync.Mutex
	err        error
}

func (s *Subscription) Limit() int { return s.limit }

// Updates is closed when the subscription ends.
func (s *Subscription) Updates() <-chan []*leaderboard.RankedScore { return s.updates }

func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err is nil after Close or hub shutdown, ErrTransient when the feed dropped.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close releases the subscription. Once Close returns no further list is
// delivered. Safe to call more than once and from any goroutine.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		select {
		case s.hub.unregister <- s:
		case <-s.done:
		case <-s.hub.stopped:
		}
		<-s.done
		for range s.updates {
		}
	})
}

func (s *Subscription) finish(err error) {
	s.finishOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.updates)
		close(s.done)
	})
}

// deliver replaces any undelivered list with the new one.
func (s *Subscription) deliver(list []*leaderboard.RankedScore) {
	s.last = list
	select {
	case s.updates <- list:
		return
	default:
	}
	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- list:
	default:
	}
}

type LiveHub struct {
	store      store.Store
	maxLimit   int
	retryDelay time.Duration

	register   chan *Subscription
	unregister chan *Subscription
	subs       map[*Subscription]bool
	stopped    chan struct{}
}

func NewLiveHub(s store.Store, maxLimit int) *LiveHub {
	if maxLimit <= 0 || maxLimit > MaxLimit {
		maxLimit = MaxLimit
	}
	return &LiveHub{
		store:      s,
		maxLimit:   maxLimit,
		retryDelay: defaultWatchRetry,
		register:   make(chan *Subscription),
		unregister: make(chan *Subscription),
		subs:       make(map[*Subscription]bool),
		stopped:    make(chan struct{}),
	}
}

// SetRetryDelay changes how long the hub waits before re-opening a dropped watch.
func (h *LiveHub) SetRetryDelay(d time.Duration) {
	h.retryDelay = d
}

// Subscribe opens a live top-n subscription. It is closed automatically when
// ctx ends; callers that outlive ctx must call Close themselves.
func (h *LiveHub) Subscribe(ctx context.Context, n int) (*Subscription, error) {
	limit, err := resolveLimit(n, DefaultTopLimit)
	if err != nil {
		return nil, err
	}
	limit = min(limit, h.maxLimit)

	sub := &Subscription{
		hub:     h,
		limit:   limit,
		updates: make(chan []*leaderboard.RankedScore, 1),
		done:    make(chan struct{}),
	}

	select {
	case h.register <- sub:
	case <-h.stopped:
		return nil, fmt.Errorf("subscribe: %w: live hub stopped", ErrTransient)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

// Run serves subscribers until ctx ends; every open subscription is then closed.
func (h *LiveHub) Run(ctx context.Context) {
	defer close(h.stopped)
	defer h.closeAll(nil)

	var signals <-chan struct{}
	var retry <-chan time.Time

	watch := func() bool {
		ch, err := h.store.Watch(ctx)
		if err != nil {
			log.Printf("LiveHub: failed to watch scores: %v", err)
			retry = time.After(h.retryDelay)
			return false
		}
		signals = ch
		return true
	}
	watch()

	for {
		select {
		case <-ctx.Done():
			return

		case sub := <-h.register:
			h.subs[sub] = true
			metrics.LiveSubscribers.Inc()
			h.deliverInitial(ctx, sub)

		case sub := <-h.unregister:
			h.remove(sub, nil)

		case _, ok := <-signals:
			if !ok {
				if ctx.Err() != nil {
					return
				}
				log.Printf("LiveHub: score feed dropped, closing %d subscriptions", len(h.subs))
				signals = nil
				h.closeAll(fmt.Errorf("live scores: %w: feed dropped", ErrTransient))
				retry = time.After(h.retryDelay)
				continue
			}
			h.refresh(ctx)

		case <-retry:
			retry = nil
			// Scores committed while the feed was down produced no signal.
			if watch() {
				h.refresh(ctx)
			}
		}
	}
}

func (h *LiveHub) deliverInitial(ctx context.Context, sub *Subscription) {
	entries, err := h.store.TopScores(ctx, sub.limit)
	if err != nil {
		log.Printf("LiveHub: initial top scores: %v", err)
		h.remove(sub, storeError("live scores", err))
		return
	}
	sub.deliver(leaderboard.Rank(entries))
}

// refresh queries once for the largest limit and slices per subscriber.
func (h *LiveHub) refresh(ctx context.Context) {
	if len(h.subs) == 0 {
		return
	}
	widest := 0
	for sub := range h.subs {
		widest = max(widest, sub.limit)
	}

	entries, err := h.store.TopScores(ctx, widest)
	if err != nil {
		log.Printf("LiveHub: refresh top scores: %v", err)
		return
	}

	for sub := range h.subs {
		top := entries
		if len(top) > sub.limit {
			top = top[:sub.limit]
		}
		list := leaderboard.Rank(top)
		if !leaderboard.SameOrder(list, sub.last) {
			sub.deliver(list)
		}
	}
}

func (h *LiveHub) remove(sub *Subscription, err error) {
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	metrics.LiveSubscribers.Dec()
	sub.finish(err)
}

func (h *LiveHub) closeAll(err error) {
	for sub := range h.subs {
		h.remove(sub, err)
	}
}
