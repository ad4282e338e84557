package sqlstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idilsaglam/tada/internal/backend"
	"github.com/idilsaglam/tada/internal/model"
)

type capture struct {
	mu     sync.Mutex
	events []backend.Event
}

func (c *capture) Publish(ev backend.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *capture) kinds() []backend.EventKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]backend.EventKind, 0, len(c.events))
	for _, ev := range c.events {
		out = append(out, ev.Kind)
	}
	return out
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestStore(t *testing.T) (*Store, *capture, *clock) {
	t.Helper()
	pub := &capture{}
	clk := &clock{t: time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)}
	s, err := OpenSQLite(context.Background(), ":memory:", WithPublisher(pub), WithClock(clk.now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, pub, clk
}

func newList(t *testing.T, s *Store) model.List {
	t.Helper()
	l, err := s.CreateList(context.Background(), " Groceries ", "u1")
	require.NoError(t, err)
	return l
}

func TestRebind(t *testing.T) {
	assert.Equal(t, "a = ? AND b = ?", sqliteDialect.rebind("a = ? AND b = ?"))
	assert.Equal(t, "a = $1 AND b = $2", postgresDialect.rebind("a = ? AND b = ?"))
	_, err := dialectFor("oracle")
	assert.Error(t, err)
}

func TestCreateTodoAppendsAtEnd(t *testing.T) {
	s, pub, _ := newTestStore(t)
	ctx := context.Background()
	l := newList(t, s)
	assert.Equal(t, "Groceries", l.Name)

	a, err := s.CreateTodo(ctx, l.ID, "  milk ")
	require.NoError(t, err)
	b, err := s.CreateTodo(ctx, l.ID, "eggs")
	require.NoError(t, err)

	assert.Equal(t, "milk", a.Text)
	assert.Equal(t, 0, a.Position)
	assert.Equal(t, 1, b.Position)
	assert.False(t, a.Completed)
	assert.Nil(t, a.CompletedAt)
	assert.Equal(t, []backend.EventKind{backend.EventInsert, backend.EventInsert}, pub.kinds())

	todos, err := s.ListTodos(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, todos, 2)
	assert.Equal(t, a.ID, todos[0].ID)
	assert.Equal(t, b.ID, todos[1].ID)
}

func TestCreateTodoUnknownList(t *testing.T) {
	s, pub, _ := newTestStore(t)
	_, err := s.CreateTodo(context.Background(), "missing", "milk")
	assert.True(t, errors.Is(err, model.ErrNotFound))
	assert.Empty(t, pub.kinds())
}

func TestUpdateTodoCompletion(t *testing.T) {
	s, pub, clk := newTestStore(t)
	ctx := context.Background()
	l := newList(t, s)
	a, err := s.CreateTodo(ctx, l.ID, "milk")
	require.NoError(t, err)

	clk.t = clk.t.Add(time.Minute)
	done := model.Completion{Completed: true}
	got, err := s.UpdateTodo(ctx, a.ID, backend.TodoUpdate{Completion: &done})
	require.NoError(t, err)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(clk.t))
	assert.True(t, got.UpdatedAt.Equal(clk.t))

	undone := model.Completion{}
	got, err = s.UpdateTodo(ctx, a.ID, backend.TodoUpdate{Completion: &undone})
	require.NoError(t, err)
	assert.False(t, got.Completed)
	assert.Nil(t, got.CompletedAt)
	assert.Equal(t, backend.EventUpdate, pub.kinds()[2])

	_, err = s.UpdateTodo(ctx, "nope", backend.TodoUpdate{Completion: &done})
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestCompletingTwiceKeepsTimestamp(t *testing.T) {
	s, _, clk := newTestStore(t)
	ctx := context.Background()
	l := newList(t, s)
	a, err := s.CreateTodo(ctx, l.ID, "milk")
	require.NoError(t, err)

	first := model.CompletionAt(true, clk.t)
	got, err := s.UpdateTodo(ctx, a.ID, backend.TodoUpdate{Completion: &first})
	require.NoError(t, err)
	require.NotNil(t, got.CompletedAt)
	completedAt := *got.CompletedAt

	clk.t = clk.t.Add(time.Hour)
	again := model.CompletionAt(true, clk.t)
	got, err = s.UpdateTodo(ctx, a.ID, backend.TodoUpdate{Completion: &again})
	require.NoError(t, err)
	assert.True(t, got.Completed)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(completedAt))
}

func TestUpdateTodoRejectsEmptyText(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	l := newList(t, s)
	a, err := s.CreateTodo(ctx, l.ID, "milk")
	require.NoError(t, err)
	blank := "   "
	_, err = s.UpdateTodo(ctx, a.ID, backend.TodoUpdate{Text: &blank})
	assert.True(t, model.IsValidation(err))
}

func TestDeleteCompletedLeavesActiveUntouched(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	l := newList(t, s)
	var ids []string
	for _, text := range []string{"a", "b", "c", "d"} {
		td, err := s.CreateTodo(ctx, l.ID, text)
		require.NoError(t, err)
		ids = append(ids, td.ID)
	}
	done := model.Completion{Completed: true}
	for _, id := range []string{ids[1], ids[3]} {
		_, err := s.UpdateTodo(ctx, id, backend.TodoUpdate{Completion: &done})
		require.NoError(t, err)
	}

	removed, err := s.DeleteCompleted(ctx, l.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{ids[1], ids[3]}, removed)

	left, err := s.ListTodos(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, left, 2)
	assert.Equal(t, ids[0], left[0].ID)
	assert.Equal(t, 0, left[0].Position)
	assert.Equal(t, ids[2], left[1].ID)
	assert.Equal(t, 2, left[1].Position)
}

func TestDeleteTodo(t *testing.T) {
	s, pub, _ := newTestStore(t)
	ctx := context.Background()
	l := newList(t, s)
	a, err := s.CreateTodo(ctx, l.ID, "milk")
	require.NoError(t, err)
	require.NoError(t, s.DeleteTodo(ctx, a.ID))
	assert.True(t, errors.Is(s.DeleteTodo(ctx, a.ID), model.ErrNotFound))
	assert.Equal(t, backend.EventDelete, pub.kinds()[1])
}

func TestListsSharingAndMembers(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.UpsertProfile(ctx, model.Profile{ID: "u1", Email: "Owner@Example.com"})
	require.NoError(t, err)
	_, err = s.UpsertProfile(ctx, model.Profile{ID: "u2", Email: "friend@example.com", DisplayName: "Friend"})
	require.NoError(t, err)
	l := newList(t, s)

	_, err = s.ShareByEmail(ctx, l.ID, "nobody@example.com")
	assert.True(t, errors.Is(err, model.ErrNotFound))

	sh, err := s.ShareByEmail(ctx, l.ID, " FRIEND@example.com ")
	require.NoError(t, err)
	assert.Equal(t, "u2", sh.SharedWithID)

	_, err = s.ShareByEmail(ctx, l.ID, "friend@example.com")
	assert.True(t, errors.Is(err, model.ErrConflict))

	members, err := s.Members(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "u1", members[0].ID)
	assert.Equal(t, "owner@example.com", members[0].Email)
	assert.Equal(t, "Friend", members[1].Label())

	lists, err := s.ListLists(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, lists, 1)
	lists, err = s.ListLists(ctx, "u3")
	require.NoError(t, err)
	assert.Empty(t, lists)

	require.NoError(t, s.DeleteShare(ctx, sh.ID))
	assert.True(t, errors.Is(s.DeleteShare(ctx, sh.ID), model.ErrNotFound))
}

func TestRenameAndDeleteList(t *testing.T) {
	s, pub, _ := newTestStore(t)
	ctx := context.Background()
	l := newList(t, s)
	_, err := s.CreateTodo(ctx, l.ID, "milk")
	require.NoError(t, err)

	renamed, err := s.RenameList(ctx, l.ID, "Weekend")
	require.NoError(t, err)
	assert.Equal(t, "Weekend", renamed.Name)
	_, err = s.RenameList(ctx, l.ID, " ")
	assert.True(t, model.IsValidation(err))

	require.NoError(t, s.DeleteList(ctx, l.ID))
	_, err = s.GetList(ctx, l.ID)
	assert.True(t, errors.Is(err, model.ErrNotFound))
	todos, err := s.ListTodos(ctx, l.ID)
	require.NoError(t, err)
	assert.Empty(t, todos)
	assert.Equal(t, backend.EventDelete, pub.kinds()[len(pub.kinds())-1])
}

func TestInvites(t *testing.T) {
	s, _, clk := newTestStore(t)
	ctx := context.Background()
	l := newList(t, s)

	inv, err := s.CreateInvite(ctx, l.ID, "u1", time.Hour)
	require.NoError(t, err)
	assert.Len(t, inv.Token, 32)

	got, err := s.AcceptInvite(ctx, inv.Token, "u2")
	require.NoError(t, err)
	assert.Equal(t, l.ID, got)
	// Accepting twice is harmless.
	_, err = s.AcceptInvite(ctx, inv.Token, "u2")
	require.NoError(t, err)
	shares, err := s.ListShares(ctx, l.ID)
	require.NoError(t, err)
	assert.Len(t, shares, 1)

	_, err = s.AcceptInvite(ctx, "bogus", "u3")
	assert.True(t, errors.Is(err, model.ErrInvalidInvite))

	clk.t = clk.t.Add(2 * time.Hour)
	_, err = s.AcceptInvite(ctx, inv.Token, "u3")
	assert.True(t, errors.Is(err, model.ErrInvalidInvite))
}
