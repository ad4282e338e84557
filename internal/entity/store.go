// Package entity holds the normalized in-memory todos of the list that is
// currently open. Every operation is total: unknown ids are ignored, since
// concurrent deletes from other sessions are expected.
//
// Store is not safe for concurrent use; its owner serializes access.
package entity

import (
	"github.com/idilsaglam/tada/internal/model"
)

// Store maps todo id to todo for one list, remembering insertion order.
type Store struct {
	listID  string
	items   map[string]model.Todo
	order   []string
	loading bool
	err     error
	version uint64
}

// New returns an empty store scoped to no list.
func New() *Store {
	return &Store{items: make(map[string]model.Todo)}
}

// Scope clears the store and binds it to listID.
func (s *Store) Scope(listID string) {
	s.Clear()
	s.listID = listID
}

// ListID is the list the contents belong to ("" when closed).
func (s *Store) ListID() string { return s.listID }

// ReplaceAll swaps the contents for items, keeping their order.
// Items of other lists are skipped.
func (s *Store) ReplaceAll(items []model.Todo) {
	s.items = make(map[string]model.Todo, len(items))
	s.order = s.order[:0]
	for _, it := range items {
		if !s.accepts(it) {
			continue
		}
		if _, dup := s.items[it.ID]; !dup {
			s.order = append(s.order, it.ID)
		}
		s.items[it.ID] = it.Clone()
	}
	s.bump()
}

// Upsert replaces the item with the same id or appends it.
func (s *Store) Upsert(it model.Todo) {
	if !s.accepts(it) {
		return
	}
	if _, ok := s.items[it.ID]; !ok {
		s.order = append(s.order, it.ID)
	}
	s.items[it.ID] = it.Clone()
	s.bump()
}

// Remove drops id; unknown ids are a no-op.
func (s *Store) Remove(id string) {
	if _, ok := s.items[id]; !ok {
		return
	}
	delete(s.items, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.bump()
}

// Patch applies p to id. Absent ids are ignored so late events that
// reference deleted items cannot resurrect them.
func (s *Store) Patch(id string, p model.Patch) bool {
	it, ok := s.items[id]
	if !ok {
		return false
	}
	p.Apply(&it)
	s.items[id] = it
	s.bump()
	return true
}

// Clear empties the store and forgets the list scope, loading flag and error.
func (s *Store) Clear() {
	s.items = make(map[string]model.Todo)
	s.order = nil
	s.listID = ""
	s.loading = false
	s.err = nil
	s.bump()
}

// Get returns a copy of the item.
func (s *Store) Get(id string) (model.Todo, bool) {
	it, ok := s.items[id]
	if !ok {
		return model.Todo{}, false
	}
	return it.Clone(), true
}

// Items returns copies in insertion order.
func (s *Store) Items() []model.Todo {
	out := make([]model.Todo, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id].Clone())
	}
	return out
}

func (s *Store) Len() int { return len(s.items) }

func (s *Store) Loading() bool { return s.loading }

func (s *Store) SetLoading(v bool) {
	s.loading = v
	s.bump()
}

// Err is the last recorded error, if any.
func (s *Store) Err() error { return s.err }

func (s *Store) SetErr(err error) {
	s.err = err
	s.bump()
}

// Version increases on every change and lets readers skip recomputation.
func (s *Store) Version() uint64 { return s.version }

func (s *Store) accepts(it model.Todo) bool {
	if it.ID == "" {
		return false
	}
	return s.listID == "" || it.ListID == "" || it.ListID == s.listID
}

func (s *Store) bump() { s.version++ }
