package session

import (
	"github.com/idilsaglam/tada/internal/backend"
)

// handler folds feed events for listID into the store while epoch ep is
// current. Events that raced the initial fetch are queued and replayed
// after it.
func (s *Session) handler(ep uint64, listID string) func(backend.Event) {
	return func(ev backend.Event) {
		s.mu.Lock()
		if s.epoch != ep || (ev.ListID != "" && ev.ListID != listID) {
			s.mu.Unlock()
			s.metrics.FeedEvent(string(ev.Kind), true)
			return
		}
		if s.store.Loading() {
			s.backlog = append(s.backlog, ev)
			s.mu.Unlock()
			return
		}
		s.applyLocked(ev)
		s.mu.Unlock()
		s.metrics.FeedEvent(string(ev.Kind), false)
		s.notify()
	}
}

func (s *Session) applyLocked(ev backend.Event) {
	switch ev.Kind {
	case backend.EventInsert, backend.EventUpdate:
		if ev.Todo == nil {
			s.logger.Warn("feed event without record", "kind", ev.Kind, "todo", ev.ID)
			return
		}
		s.absorbLocked(*ev.Todo)
	case backend.EventDelete:
		id := ev.ID
		if id == "" && ev.Todo != nil {
			id = ev.Todo.ID
		}
		s.store.Remove(id)
	default:
		s.logger.Warn("unknown feed event", "kind", ev.Kind)
	}
}

// FeedError records a transport failure of listID's subscription. Errors
// for lists other than the open one are ignored.
func (s *Session) FeedError(listID string, err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	if s.store.ListID() != listID {
		s.mu.Unlock()
		return
	}
	s.store.SetErr(err)
	s.mu.Unlock()
	s.logger.Error("change feed failed", "list", listID, "err", err)
	s.notify()
}
