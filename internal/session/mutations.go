package session

import (
	"context"
	"fmt"

	"github.com/idilsaglam/tada/internal/model"
)

// The mutations below are not optimistic: nothing changes locally until
// the backend answers, so a failure means nothing happened.

// Add appends a todo to the open list.
func (s *Session) Add(ctx context.Context, text string) (model.Todo, error) {
	text = model.NormalizeText(text)
	if text == "" {
		return model.Todo{}, model.Invalid("text", "empty")
	}
	listID, ep, err := s.scope()
	if err != nil {
		return model.Todo{}, err
	}
	t, err := s.disp.Add(ctx, listID, text)
	if err != nil {
		return model.Todo{}, fmt.Errorf("add todo: %w", err)
	}
	s.mu.Lock()
	if s.epoch == ep {
		s.absorbLocked(t)
	}
	s.mu.Unlock()
	s.notify()
	return t, nil
}

// Edit replaces the text of id. Unchanged text is a no-op.
func (s *Session) Edit(ctx context.Context, id, text string) (model.Todo, error) {
	text = model.NormalizeText(text)
	if text == "" {
		return model.Todo{}, model.Invalid("text", "empty")
	}
	_, ep, err := s.scope()
	if err != nil {
		return model.Todo{}, err
	}
	cur, ok := s.Get(id)
	if !ok {
		return model.Todo{}, errUnknownItem(id)
	}
	if cur.Text == text {
		return cur, nil
	}
	t, err := s.disp.Edit(ctx, id, text)
	if err != nil {
		return model.Todo{}, fmt.Errorf("edit todo: %w", err)
	}
	s.mu.Lock()
	if _, exists := s.store.Get(id); exists && s.epoch == ep {
		s.absorbLocked(t)
	}
	s.mu.Unlock()
	s.notify()
	return t, nil
}

// Delete removes id.
func (s *Session) Delete(ctx context.Context, id string) error {
	_, ep, err := s.scope()
	if err != nil {
		return err
	}
	if _, err := s.disp.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete todo: %w", err)
	}
	s.mu.Lock()
	if s.epoch == ep {
		s.store.Remove(id)
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// ClearCompleted removes every completed todo of the open list and returns
// the removed ids.
func (s *Session) ClearCompleted(ctx context.Context) ([]string, error) {
	listID, ep, err := s.scope()
	if err != nil {
		return nil, err
	}
	ids, err := s.disp.ClearCompleted(ctx, listID)
	if err != nil {
		return nil, fmt.Errorf("clear completed: %w", err)
	}
	s.mu.Lock()
	if s.epoch == ep {
		for _, id := range ids {
			s.store.Remove(id)
		}
	}
	s.mu.Unlock()
	s.notify()
	return ids, nil
}
