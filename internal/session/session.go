// Package session owns the state of the open list: it applies optimistic
// edits, settles them against the dispatcher and folds the change feed into
// the same entity store.
//
// Every state transition happens under one mutex and backend I/O never does.
// Each settlement carries its own pre-state and the epoch of the list it was
// issued against, so late results from a list that is no longer open are
// dropped instead of applied.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/idilsaglam/tada/internal/backend"
	"github.com/idilsaglam/tada/internal/dispatch"
	"github.com/idilsaglam/tada/internal/entity"
	"github.com/idilsaglam/tada/internal/logging"
	"github.com/idilsaglam/tada/internal/metrics"
	"github.com/idilsaglam/tada/internal/model"
	"github.com/idilsaglam/tada/internal/view"
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("session closed")

// ErrFeedDropped is recorded when the change feed ends a subscription the
// session still holds.
var ErrFeedDropped = errors.New("change feed dropped the subscription")

// Options configures New. Every field is optional.
type Options struct {
	Logger  *log.Logger
	Metrics metrics.Recorder
	// Now stamps optimistic completions.
	Now func() time.Time
	// Search tunes View.
	Search view.Options
}

// Session is safe for concurrent use.
type Session struct {
	disp    *dispatch.Dispatcher
	feed    backend.Feed
	logger  *log.Logger
	metrics metrics.Recorder
	now     func() time.Time
	search  view.Options

	// base outlives individual Open calls and scopes feed subscriptions.
	base   context.Context
	cancel context.CancelFunc

	changes chan struct{}

	mu      sync.Mutex
	store   *entity.Store
	epoch   uint64
	sub     backend.Subscription
	backlog []backend.Event
	pending map[uint64]*pending
	// latest maps an item id to its most recent local completion write.
	latest map[string]uint64
	nextID uint64
	closed bool
}

// New returns a session with no list open. feed may be nil, in which case
// only local and dispatcher results reach the store.
func New(disp *dispatch.Dispatcher, feed backend.Feed, opts Options) *Session {
	rec := opts.Metrics
	if rec == nil {
		rec = metrics.Nop{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	base, cancel := context.WithCancel(context.Background())
	return &Session{
		disp:    disp,
		feed:    feed,
		logger:  logging.OrDiscard(opts.Logger),
		metrics: rec,
		now:     now,
		search:  opts.Search,
		base:    base,
		cancel:  cancel,
		changes: make(chan struct{}, 1),
		store:   entity.New(),
		pending: make(map[uint64]*pending),
		latest:  make(map[string]uint64),
	}
}

// Changes fires after the store changed. Notifications coalesce: a reader
// that falls behind sees one signal for many changes.
func (s *Session) Changes() <-chan struct{} { return s.changes }

func (s *Session) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// Open makes listID the active list. It drops the previous list's contents
// and subscription, subscribes to listID and loads it. Results of anything
// still in flight for the previous list are discarded when they land.
func (s *Session) Open(ctx context.Context, listID string) error {
	if listID == "" {
		return model.Invalid("list", "empty id")
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.epoch++
	ep := s.epoch
	old := s.sub
	s.sub = nil
	s.resetLocked()
	s.store.Scope(listID)
	s.store.SetLoading(true)
	s.mu.Unlock()
	s.notify()

	if old != nil {
		_ = old.Close()
	}
	s.logger.Debug("opening list", "list", listID, "epoch", ep)

	if s.feed != nil {
		sub, err := s.feed.Subscribe(s.base, listID, s.handler(ep, listID))
		if err != nil {
			err = model.AsBackend("subscribe", err)
			s.fail(ep, err)
			return fmt.Errorf("subscribe to list: %w", err)
		}
		s.mu.Lock()
		if s.epoch != ep {
			s.mu.Unlock()
			_ = sub.Close()
			return nil
		}
		s.sub = sub
		s.mu.Unlock()
		if e, ok := sub.(backend.Ender); ok {
			go s.watch(ep, listID, sub, e.Done())
		}
	}

	items, err := s.disp.FetchTodos(ctx, listID)
	if err != nil {
		s.fail(ep, err)
		return fmt.Errorf("load list: %w", err)
	}

	s.mu.Lock()
	if s.epoch != ep {
		s.mu.Unlock()
		return nil
	}
	s.store.ReplaceAll(items)
	s.store.SetLoading(false)
	// Events that raced the fetch are newer than or equal to it.
	for _, ev := range s.backlog {
		s.applyLocked(ev)
	}
	s.backlog = nil
	s.mu.Unlock()
	s.notify()
	s.logger.Info("list open", "list", listID, "items", len(items))
	return nil
}

func (s *Session) fail(ep uint64, err error) {
	s.mu.Lock()
	if s.epoch == ep {
		s.store.SetLoading(false)
		s.store.SetErr(err)
		s.backlog = nil
	}
	s.mu.Unlock()
	s.notify()
	s.logger.Error("list load failed", "err", err)
}

// watch reports a subscription that ended while it was still current.
func (s *Session) watch(ep uint64, listID string, sub backend.Subscription, done <-chan struct{}) {
	<-done
	s.mu.Lock()
	current := s.epoch == ep && s.sub == sub
	s.mu.Unlock()
	if current {
		s.FeedError(listID, ErrFeedDropped)
	}
}

// Reload fetches the active list again and replaces the local contents.
func (s *Session) Reload(ctx context.Context) error {
	s.mu.Lock()
	listID, ep := s.store.ListID(), s.epoch
	s.mu.Unlock()
	if listID == "" {
		return errNoList
	}
	items, err := s.disp.FetchTodos(ctx, listID)
	if err != nil {
		s.fail(ep, err)
		return fmt.Errorf("reload list: %w", err)
	}
	s.mu.Lock()
	if s.epoch == ep {
		s.store.ReplaceAll(items)
		s.store.SetErr(nil)
		s.reapplyPendingLocked()
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// Close drops the active list and its subscription. The session cannot be
// reopened afterwards.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.epoch++
	old := s.sub
	s.sub = nil
	s.resetLocked()
	s.mu.Unlock()
	s.cancel()
	s.notify()
	if old != nil {
		return old.Close()
	}
	return nil
}

func (s *Session) resetLocked() {
	s.store.Clear()
	s.backlog = nil
	s.pending = make(map[uint64]*pending)
	s.latest = make(map[string]uint64)
}

// ListID is the active list, "" when none is open.
func (s *Session) ListID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.ListID()
}

// Items returns copies of the store contents in insertion order.
func (s *Session) Items() []model.Todo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Items()
}

// Get returns a copy of one item.
func (s *Session) Get(id string) (model.Todo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Get(id)
}

// Loading reports whether the initial fetch is still running.
func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Loading()
}

// Err is the last load or feed error of the active list.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Err()
}

// Version changes whenever the store does.
func (s *Session) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Version()
}

// View projects the current contents through query.
func (s *Session) View(query string) view.View {
	return view.Project(s.Items(), query, s.search)
}

// Pending is the number of unsettled optimistic toggles.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

var errNoList = model.Invalid("list", "no list open")

// scope returns the active list and epoch, or an error when none is open.
func (s *Session) scope() (string, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", 0, ErrClosed
	}
	if s.store.ListID() == "" {
		return "", 0, errNoList
	}
	return s.store.ListID(), s.epoch, nil
}
