// Package feed implements an in-process change feed: one Hub fans out
// todo events to the subscribers of each list.
package feed

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/idilsaglam/tada/internal/backend"
	"github.com/idilsaglam/tada/internal/logging"
	"github.com/idilsaglam/tada/internal/metrics"
)

const subscriberBuffer = 256

var _ backend.Feed = (*Hub)(nil)

// Hub is safe for concurrent use.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscription]struct{}
	logger *log.Logger
	rec    metrics.Recorder
	total  int
}

// NewHub returns an empty hub. A nil logger discards output.
func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		subs:   make(map[string]map[*subscription]struct{}),
		logger: logging.OrDiscard(logger),
		rec:    metrics.Nop{},
	}
}

// Instrument reports the live subscriber count to rec.
func (h *Hub) Instrument(rec metrics.Recorder) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rec = rec
	rec.Subscribers(h.total)
}

type subscription struct {
	hub    *Hub
	listID string
	ch     chan backend.Event
	done   chan struct{}
	once   sync.Once
}

// Subscribe registers handler for events of listID. Events are delivered in
// publish order on a dedicated goroutine until the subscription is closed or
// ctx is cancelled.
func (h *Hub) Subscribe(ctx context.Context, listID string, handler func(backend.Event)) (backend.Subscription, error) {
	sub := &subscription{
		hub:    h,
		listID: listID,
		ch:     make(chan backend.Event, subscriberBuffer),
		done:   make(chan struct{}),
	}
	h.mu.Lock()
	if h.subs[listID] == nil {
		h.subs[listID] = make(map[*subscription]struct{})
	}
	h.subs[listID][sub] = struct{}{}
	h.total++
	h.rec.Subscribers(h.total)
	h.mu.Unlock()
	h.logger.Debug("subscribed", "list", listID)

	go func() {
		for {
			select {
			case ev := <-sub.ch:
				handler(ev)
			case <-sub.done:
				return
			case <-ctx.Done():
				_ = sub.Close()
				return
			}
		}
	}()
	return sub, nil
}

// Publish delivers ev to every subscriber of ev.ListID without blocking.
// A subscriber whose buffer is full has already fallen behind; it is
// closed rather than handed a gap, and its Done channel tells it so.
func (h *Hub) Publish(ev backend.Event) {
	h.mu.RLock()
	targets := make([]*subscription, 0, len(h.subs[ev.ListID]))
	for sub := range h.subs[ev.ListID] {
		targets = append(targets, sub)
	}
	rec := h.rec
	h.mu.RUnlock()

	for _, sub := range targets {
		select {
		case sub.ch <- ev:
		case <-sub.done:
		default:
			h.logger.Warn("dropping slow subscriber", "list", ev.ListID, "buffered", len(sub.ch))
			rec.FeedEvent(string(ev.Kind), true)
			_ = sub.Close()
		}
	}
}

// Subscribers reports how many subscriptions listID has.
func (h *Hub) Subscribers(listID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[listID])
}

// Done is closed once the subscription ends, whether closed by its owner or
// dropped by the hub for falling behind.
func (s *subscription) Done() <-chan struct{} { return s.done }

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs[s.listID], s)
		if len(s.hub.subs[s.listID]) == 0 {
			delete(s.hub.subs, s.listID)
		}
		s.hub.total--
		s.hub.rec.Subscribers(s.hub.total)
		s.hub.mu.Unlock()
		close(s.done)
		s.hub.logger.Debug("unsubscribed", "list", s.listID)
	})
	return nil
}
