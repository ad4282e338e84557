package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/idilsaglam/tada/internal/backend"
	"github.com/idilsaglam/tada/internal/model"
)

const todoColumns = `id, list_id, text, is_completed, completed_at, sort_order, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTodo(r rowScanner) (model.Todo, error) {
	var (
		t         model.Todo
		completed sql.NullInt64
		created   int64
		updated   int64
	)
	if err := r.Scan(&t.ID, &t.ListID, &t.Text, &t.Completed, &completed, &t.Position, &created, &updated); err != nil {
		return model.Todo{}, err
	}
	if completed.Valid {
		ts := fromStamp(completed.Int64)
		t.CompletedAt = &ts
	}
	t.CreatedAt = fromStamp(created)
	t.UpdatedAt = fromStamp(updated)
	return t, nil
}

// ListTodos returns the todos of listID ordered by sort position.
func (s *Store) ListTodos(ctx context.Context, listID string) ([]model.Todo, error) {
	rows, err := s.query(ctx, s.db, `SELECT `+todoColumns+` FROM todos WHERE list_id = ? ORDER BY sort_order, created_at, id`, listID)
	if err != nil {
		return nil, fmt.Errorf("select todos: %w", err)
	}
	defer func() { _ = rows.Close() }()
	out := []model.Todo{}
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan todo: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) getTodo(ctx context.Context, q queryer, id string) (model.Todo, error) {
	t, err := scanTodo(s.queryRow(ctx, q, `SELECT `+todoColumns+` FROM todos WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Todo{}, notFound("todo", id)
	}
	if err != nil {
		return model.Todo{}, fmt.Errorf("select todo: %w", err)
	}
	return t, nil
}

// CreateTodo appends a todo at the end of the list (max position + 1).
func (s *Store) CreateTodo(ctx context.Context, listID, text string) (model.Todo, error) {
	text = model.NormalizeText(text)
	if text == "" {
		return model.Todo{}, model.Invalid("text", "must not be empty")
	}
	var created model.Todo
	err := s.inTx(ctx, func(tx *sql.Tx, emit func(backend.Event)) error {
		if _, err := s.getList(ctx, tx, listID); err != nil {
			return err
		}
		var next int
		if err := s.queryRow(ctx, tx, `SELECT COALESCE(MAX(sort_order), -1) + 1 FROM todos WHERE list_id = ?`, listID).Scan(&next); err != nil {
			return fmt.Errorf("next position: %w", err)
		}
		now := s.stamp()
		created = model.Todo{
			ID:        newID(),
			ListID:    listID,
			Text:      text,
			Position:  next,
			CreatedAt: fromStamp(now),
			UpdatedAt: fromStamp(now),
		}
		if _, err := s.exec(ctx, tx, `INSERT INTO todos (`+todoColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			created.ID, created.ListID, created.Text, false, nil, created.Position, now, now); err != nil {
			return fmt.Errorf("insert todo: %w", err)
		}
		ev := created.Clone()
		emit(backend.Event{Kind: backend.EventInsert, ListID: listID, ID: created.ID, Todo: &ev})
		return nil
	})
	if err != nil {
		return model.Todo{}, err
	}
	s.logger.Debug("todo created", "list", listID, "todo", created.ID, "position", created.Position)
	return created, nil
}

// UpdateTodo applies u to one record and returns the stored result.
func (s *Store) UpdateTodo(ctx context.Context, id string, u backend.TodoUpdate) (model.Todo, error) {
	var updated model.Todo
	err := s.inTx(ctx, func(tx *sql.Tx, emit func(backend.Event)) error {
		cur, err := s.getTodo(ctx, tx, id)
		if err != nil {
			return err
		}
		if u.Text != nil {
			text := model.NormalizeText(*u.Text)
			if text == "" {
				return model.Invalid("text", "must not be empty")
			}
			u.Text = &text
		}
		switch {
		case u.Completion == nil || !u.Completion.Completed:
		case cur.Completed:
			// Completing a completed todo keeps its original timestamp.
			c := cur.Completion()
			u.Completion = &c
		case u.Completion.CompletedAt == nil:
			c := model.CompletionAt(true, s.now())
			u.Completion = &c
		}
		now := s.stamp()
		updatedAt := fromStamp(now)
		model.Patch{Text: u.Text, Completion: u.Completion, Position: u.Position, UpdatedAt: &updatedAt}.Apply(&cur)

		var completedAt any
		if cur.CompletedAt != nil {
			completedAt = cur.CompletedAt.UTC().UnixNano()
		}
		if _, err := s.exec(ctx, tx, `UPDATE todos SET text = ?, is_completed = ?, completed_at = ?, sort_order = ?, updated_at = ? WHERE id = ?`,
			cur.Text, cur.Completed, completedAt, cur.Position, now, id); err != nil {
			return fmt.Errorf("update todo: %w", err)
		}
		// Reload so the caller sees exactly what the database holds.
		updated, err = s.getTodo(ctx, tx, id)
		if err != nil {
			return err
		}
		ev := updated.Clone()
		emit(backend.Event{Kind: backend.EventUpdate, ListID: updated.ListID, ID: id, Todo: &ev})
		return nil
	})
	if err != nil {
		return model.Todo{}, err
	}
	return updated, nil
}

// DeleteTodo removes one record.
func (s *Store) DeleteTodo(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx, emit func(backend.Event)) error {
		cur, err := s.getTodo(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := s.exec(ctx, tx, `DELETE FROM todos WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete todo: %w", err)
		}
		emit(backend.Event{Kind: backend.EventDelete, ListID: cur.ListID, ID: id})
		return nil
	})
}

// DeleteCompleted removes every completed todo of listID and returns their ids.
func (s *Store) DeleteCompleted(ctx context.Context, listID string) ([]string, error) {
	var ids []string
	err := s.inTx(ctx, func(tx *sql.Tx, emit func(backend.Event)) error {
		rows, err := s.query(ctx, tx, `SELECT id FROM todos WHERE list_id = ? AND is_completed = ? ORDER BY sort_order`, listID, true)
		if err != nil {
			return fmt.Errorf("select completed: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return fmt.Errorf("scan id: %w", err)
			}
			ids = append(ids, id)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if _, err := s.exec(ctx, tx, `DELETE FROM todos WHERE list_id = ? AND is_completed = ?`, listID, true); err != nil {
			return fmt.Errorf("delete completed: %w", err)
		}
		for _, id := range ids {
			emit(backend.Event{Kind: backend.EventDelete, ListID: listID, ID: id})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}
