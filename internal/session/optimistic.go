package session

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/idilsaglam/tada/internal/dispatch"
	"github.com/idilsaglam/tada/internal/model"
)

// pending is one unsettled optimistic toggle.
type pending struct {
	id      uint64
	itemID  string
	pre     model.Completion
	applied model.Completion
}

// Op is an optimistic mutation that has been applied locally and still has
// to be dispatched. Do runs it once; later calls return the first result.
type Op struct {
	once sync.Once
	run  func(context.Context) error
	err  error
}

// Do dispatches the mutation and settles the local state.
func (o *Op) Do(ctx context.Context) error {
	o.once.Do(func() { o.err = o.run(ctx) })
	return o.err
}

func errUnknownItem(id string) error {
	return model.Invalid("id", fmt.Sprintf("%q is not in the open list", id))
}

// BeginToggle sets the completion of id locally and returns the dispatch.
func (s *Session) BeginToggle(id string, completed bool) (*Op, error) {
	return s.beginToggle(id, func(bool) bool { return completed })
}

// BeginFlip inverts whatever completion id shows right now.
func (s *Session) BeginFlip(id string) (*Op, error) {
	return s.beginToggle(id, func(cur bool) bool { return !cur })
}

// Toggle sets the completion of id and waits for the backend. On failure
// the local flag is restored as described on settleToggle.
func (s *Session) Toggle(ctx context.Context, id string, completed bool) error {
	op, err := s.BeginToggle(id, completed)
	if err != nil {
		return err
	}
	return op.Do(ctx)
}

// Flip is the blocking form of BeginFlip.
func (s *Session) Flip(ctx context.Context, id string) error {
	op, err := s.BeginFlip(id)
	if err != nil {
		return err
	}
	return op.Do(ctx)
}

func (s *Session) beginToggle(id string, target func(cur bool) bool) (*Op, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if s.store.ListID() == "" {
		s.mu.Unlock()
		return nil, errNoList
	}
	it, ok := s.store.Get(id)
	if !ok {
		s.mu.Unlock()
		return nil, errUnknownItem(id)
	}
	completed := target(it.Completed)
	applied := model.CompletionAt(completed, s.now())
	if it.Completed == completed {
		applied = it.Completion()
	}
	s.nextID++
	p := &pending{
		id:      s.nextID,
		itemID:  id,
		pre:     it.Completion(),
		applied: applied,
	}
	s.pending[p.id] = p
	s.latest[id] = p.id
	s.store.Patch(id, model.Patch{Completion: &applied})
	s.mu.Unlock()
	s.notify()

	return &Op{run: func(ctx context.Context) error {
		rec, err := s.disp.Toggle(ctx, id, completed)
		s.settleToggle(p.id, rec, err)
		return err
	}}, nil
}

// settleToggle resolves mutation mid. A failure restores the pre-state only
// when mid is still the item's latest local completion write and the item
// still shows what mid wrote. When a later toggle of the same item is still
// pending, the pre-state is handed to it instead, so that one's failure
// restores the state from before both.
func (s *Session) settleToggle(mid uint64, rec model.Todo, err error) {
	s.mu.Lock()
	p, ok := s.pending[mid]
	if !ok {
		s.mu.Unlock()
		s.logger.Debug("dropping stale toggle result", "mutation", mid)
		return
	}
	delete(s.pending, mid)

	if err == nil {
		if s.latest[p.itemID] == mid {
			delete(s.latest, p.itemID)
		}
		if _, exists := s.store.Get(p.itemID); exists && rec.ID == p.itemID {
			s.absorbLocked(rec)
		}
		s.mu.Unlock()
		s.notify()
		return
	}

	rolledBack := false
	if next := s.adjacentLocked(p.itemID, mid, 1); next != nil {
		next.pre = p.pre
	} else if s.latest[p.itemID] == mid {
		if prev := s.adjacentLocked(p.itemID, mid, -1); prev != nil {
			s.latest[p.itemID] = prev.id
		} else {
			delete(s.latest, p.itemID)
		}
		if cur, ok := s.store.Get(p.itemID); ok && cur.Completion().Equal(p.applied) {
			pre := p.pre
			s.store.Patch(p.itemID, model.Patch{Completion: &pre})
			rolledBack = true
		}
	}
	s.mu.Unlock()

	if rolledBack {
		s.metrics.Rollback("toggle")
		s.notify()
	}
	s.logger.Warn("toggle failed", "todo", p.itemID, "rolled_back", rolledBack, "err", err)
}

// adjacentLocked finds the closest pending toggle of itemID after (dir > 0)
// or before (dir < 0) mutation mid.
func (s *Session) adjacentLocked(itemID string, mid uint64, dir int) *pending {
	var best *pending
	for _, p := range s.pending {
		if p.itemID != itemID {
			continue
		}
		switch {
		case dir > 0 && p.id > mid && (best == nil || p.id < best.id):
			best = p
		case dir < 0 && p.id < mid && (best == nil || p.id > best.id):
			best = p
		}
	}
	return best
}

// absorbLocked upserts an authoritative record while keeping the optimistic
// completion of a toggle that is still in flight.
func (s *Session) absorbLocked(t model.Todo) {
	if mid, ok := s.latest[t.ID]; ok {
		s.rebaseLocked(t.ID, t.Completion())
		if p, ok := s.pending[mid]; ok {
			c := p.applied
			model.Patch{Completion: &c}.Apply(&t)
		}
	}
	s.store.Upsert(t)
}

// reapplyPendingLocked restores in-flight optimistic completions after the
// store was replaced wholesale.
func (s *Session) reapplyPendingLocked() {
	for itemID, mid := range s.latest {
		if cur, ok := s.store.Get(itemID); ok {
			s.rebaseLocked(itemID, cur.Completion())
		}
		if p, ok := s.pending[mid]; ok {
			c := p.applied
			s.store.Patch(itemID, model.Patch{Completion: &c})
		}
	}
}

// rebaseLocked makes c the state the oldest pending toggle of itemID rolls
// back to. Later toggles keep the optimistic state they were started from.
func (s *Session) rebaseLocked(itemID string, c model.Completion) {
	var first *pending
	for _, p := range s.pending {
		if p.itemID == itemID && (first == nil || p.id < first.id) {
			first = p
		}
	}
	if first != nil {
		first.pre = c
	}
}

// BeginReorder rearranges the given items into the order of ids. The items
// keep the set of positions they already occupy; only the assignment
// changes, and only changed positions are dispatched. Unknown ids are
// skipped, duplicates are rejected.
//
// A failed reorder is not rolled back. The local order stays as requested
// and the failure is reported, logged and counted.
func (s *Session) BeginReorder(ids []string) (*Op, error) {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return nil, model.Invalid("order", fmt.Sprintf("duplicate id %q", id))
		}
		seen[id] = struct{}{}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if s.store.ListID() == "" {
		s.mu.Unlock()
		return nil, errNoList
	}
	ep := s.epoch
	known := make([]model.Todo, 0, len(ids))
	for _, id := range ids {
		if it, ok := s.store.Get(id); ok {
			known = append(known, it)
		}
	}
	positions := make([]int, len(known))
	for i, it := range known {
		positions[i] = it.Position
	}
	slices.Sort(positions)
	// Positions held by items outside the reorder must not be reused when
	// duplicates among the participants are spread apart.
	occupied := make(map[int]struct{})
	for _, it := range s.store.Items() {
		if _, moving := seen[it.ID]; !moving {
			occupied[it.Position] = struct{}{}
		}
	}
	for i := 1; i < len(positions); i++ {
		if positions[i] > positions[i-1] {
			continue
		}
		next := positions[i-1] + 1
		for {
			if _, taken := occupied[next]; !taken {
				break
			}
			next++
		}
		positions[i] = next
	}
	var moves []dispatch.Move
	for i, it := range known {
		if it.Position == positions[i] {
			continue
		}
		pos := positions[i]
		s.store.Patch(it.ID, model.Patch{Position: &pos})
		moves = append(moves, dispatch.Move{ID: it.ID, Position: pos})
	}
	s.mu.Unlock()
	if len(moves) > 0 {
		s.notify()
	}

	return &Op{run: func(ctx context.Context) error {
		if len(moves) == 0 {
			return nil
		}
		recs, err := s.disp.Reorder(ctx, moves)
		s.settleReorder(ep, recs, err)
		return err
	}}, nil
}

// Reorder is the blocking form of BeginReorder.
func (s *Session) Reorder(ctx context.Context, ids []string) error {
	op, err := s.BeginReorder(ids)
	if err != nil {
		return err
	}
	return op.Do(ctx)
}

func (s *Session) settleReorder(ep uint64, recs []model.Todo, err error) {
	if err != nil {
		s.metrics.Unreconciled("reorder")
		s.logger.Warn("reorder failed, keeping local order", "err", err)
		return
	}
	s.mu.Lock()
	if s.epoch != ep {
		s.mu.Unlock()
		return
	}
	for _, rec := range recs {
		if _, ok := s.store.Get(rec.ID); ok {
			s.absorbLocked(rec)
		}
	}
	s.mu.Unlock()
	s.notify()
}

// Move drags the active item id to index within the active partition.
// Out-of-range indexes clamp to the ends.
func (s *Session) Move(ctx context.Context, id string, index int) error {
	order := s.View("").ActiveIDs()
	at := slices.Index(order, id)
	if at < 0 {
		if _, ok := s.Get(id); ok {
			return model.Invalid("id", "completed items cannot be moved")
		}
		if s.ListID() == "" {
			return errNoList
		}
		return errUnknownItem(id)
	}
	order = slices.Delete(order, at, at+1)
	index = max(0, min(index, len(order)))
	order = slices.Insert(order, index, id)
	return s.Reorder(ctx, order)
}
