package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/idilsaglam/tada/internal/backend"
	"github.com/idilsaglam/tada/internal/backend/sqlstore"
	"github.com/idilsaglam/tada/internal/dispatch"
	"github.com/idilsaglam/tada/internal/feed"
	"github.com/idilsaglam/tada/internal/model"
)

var errDown = errors.New("backend unavailable")

// faulty fails updates of chosen ids and can hold creates until released.
type faulty struct {
	backend.Store
	mu      sync.Mutex
	fail    map[string]bool
	holdAdd chan struct{}
	entered chan struct{}
}

func (f *faulty) failUpdates(ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		f.fail[id] = true
	}
}

func (f *faulty) UpdateTodo(ctx context.Context, id string, u backend.TodoUpdate) (model.Todo, error) {
	f.mu.Lock()
	bad := f.fail[id]
	f.mu.Unlock()
	if bad {
		return model.Todo{}, errDown
	}
	return f.Store.UpdateTodo(ctx, id, u)
}

func (f *faulty) CreateTodo(ctx context.Context, listID, text string) (model.Todo, error) {
	f.mu.Lock()
	hold, entered := f.holdAdd, f.entered
	f.mu.Unlock()
	if hold != nil {
		entered <- struct{}{}
		<-hold
	}
	return f.Store.CreateTodo(ctx, listID, text)
}

// manualFeed hands events to the current subscriber synchronously.
type manualFeed struct {
	mu      sync.Mutex
	listID  string
	handler func(backend.Event)
	closed  int
}

type manualSub struct{ f *manualFeed }

func (s manualSub) Close() error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	s.f.handler = nil
	s.f.closed++
	return nil
}

func (f *manualFeed) Subscribe(_ context.Context, listID string, h func(backend.Event)) (backend.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listID, f.handler = listID, h
	return manualSub{f}, nil
}

func (f *manualFeed) emit(ev backend.Event) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

type harness struct {
	db   *sqlstore.Store
	be   *faulty
	sess *Session
	list model.List
}

var fixedNow = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

func newHarness(t *testing.T, fd backend.Feed, pub sqlstore.Publisher) *harness {
	t.Helper()
	ctx := context.Background()
	var opts []sqlstore.Option
	if pub != nil {
		opts = append(opts, sqlstore.WithPublisher(pub))
	}
	db, err := sqlstore.OpenSQLite(ctx, ":memory:", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	be := &faulty{Store: db, fail: map[string]bool{}}
	disp := dispatch.New(be, backend.StaticIdentity("u1"), nil)
	sess := New(disp, fd, Options{Now: func() time.Time { return fixedNow }})
	t.Cleanup(func() { _ = sess.Close() })
	l, err := db.CreateList(ctx, "Groceries", "u1")
	require.NoError(t, err)
	return &harness{db: db, be: be, sess: sess, list: l}
}

// seed creates todos with the given texts and opens the list.
func (h *harness) seed(t *testing.T, texts ...string) []model.Todo {
	t.Helper()
	ctx := context.Background()
	out := make([]model.Todo, 0, len(texts))
	for _, text := range texts {
		td, err := h.db.CreateTodo(ctx, h.list.ID, text)
		require.NoError(t, err)
		out = append(out, td)
	}
	require.NoError(t, h.sess.Open(ctx, h.list.ID))
	return out
}

func (h *harness) completed(t *testing.T, id string) model.Todo {
	t.Helper()
	it, ok := h.sess.Get(id)
	require.True(t, ok, "todo %s missing", id)
	return it
}

func TestOpenLoadsList(t *testing.T) {
	h := newHarness(t, nil, nil)
	todos := h.seed(t, "milk", "eggs")
	assert.Equal(t, h.list.ID, h.sess.ListID())
	assert.False(t, h.sess.Loading())
	assert.NoError(t, h.sess.Err())
	v := h.sess.View("")
	assert.Equal(t, []string{todos[0].ID, todos[1].ID}, v.ActiveIDs())
}

func TestOpenUnknownListStaysEmpty(t *testing.T) {
	h := newHarness(t, nil, nil)
	require.NoError(t, h.sess.Open(context.Background(), "nope"))
	assert.Empty(t, h.sess.Items())
}

func TestToggleRollbackIsExactInverse(t *testing.T) {
	h := newHarness(t, nil, nil)
	todos := h.seed(t, "milk", "eggs")
	a := todos[0]
	before := h.completed(t, a.ID)

	op, err := h.sess.BeginToggle(a.ID, true)
	require.NoError(t, err)
	got := h.completed(t, a.ID)
	assert.True(t, got.Completed, "toggle applies before dispatch")
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(fixedNow))
	assert.Equal(t, 1, h.sess.Pending())

	h.be.failUpdates(a.ID)
	err = op.Do(context.Background())
	var be *model.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "toggle", be.Op)

	after := h.completed(t, a.ID)
	assert.False(t, after.Completed)
	assert.Nil(t, after.CompletedAt)
	assert.Equal(t, before, after)
	assert.Equal(t, 0, h.sess.Pending())

	// Do is idempotent.
	assert.Equal(t, err, op.Do(context.Background()))
}

func TestToggleSuccessKeepsState(t *testing.T) {
	h := newHarness(t, nil, nil)
	a := h.seed(t, "milk")[0]
	require.NoError(t, h.sess.Toggle(context.Background(), a.ID, true))
	got := h.completed(t, a.ID)
	assert.True(t, got.Completed)
	assert.NotNil(t, got.CompletedAt)

	require.NoError(t, h.sess.Flip(context.Background(), a.ID))
	got = h.completed(t, a.ID)
	assert.False(t, got.Completed)
	assert.Nil(t, got.CompletedAt)
}

func TestToggleUnknownItemIsLocal(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.seed(t, "milk")
	err := h.sess.Toggle(context.Background(), "ghost", true)
	assert.True(t, model.IsValidation(err))
}

func TestOverlappingTogglesLaterFailsFirst(t *testing.T) {
	h := newHarness(t, nil, nil)
	a := h.seed(t, "milk")[0]

	op1, err := h.sess.BeginToggle(a.ID, true)
	require.NoError(t, err)
	op2, err := h.sess.BeginFlip(a.ID)
	require.NoError(t, err)
	assert.False(t, h.completed(t, a.ID).Completed, "second toggle uses the visible value")

	h.be.failUpdates(a.ID)
	require.Error(t, op2.Do(context.Background()))
	assert.True(t, h.completed(t, a.ID).Completed, "op2 restores what it saw")

	require.Error(t, op1.Do(context.Background()))
	got := h.completed(t, a.ID)
	assert.False(t, got.Completed)
	assert.Nil(t, got.CompletedAt)
}

func TestOverlappingTogglesEarlierFailsFirst(t *testing.T) {
	h := newHarness(t, nil, nil)
	a := h.seed(t, "milk")[0]

	op1, err := h.sess.BeginToggle(a.ID, true)
	require.NoError(t, err)
	op2, err := h.sess.BeginToggle(a.ID, true)
	require.NoError(t, err)

	h.be.failUpdates(a.ID)
	require.Error(t, op1.Do(context.Background()))
	assert.True(t, h.completed(t, a.ID).Completed, "op2 is still in flight")
	require.Error(t, op2.Do(context.Background()))
	assert.False(t, h.completed(t, a.ID).Completed, "op2 inherits op1's pre-state")
}

func TestEarlierFailureAfterLaterSuccessKeepsLaterWrite(t *testing.T) {
	h := newHarness(t, nil, nil)
	a := h.seed(t, "milk")[0]

	op1, err := h.sess.BeginToggle(a.ID, true)
	require.NoError(t, err)
	op2, err := h.sess.BeginToggle(a.ID, false)
	require.NoError(t, err)
	require.NoError(t, op2.Do(context.Background()))

	h.be.failUpdates(a.ID)
	require.Error(t, op1.Do(context.Background()))
	assert.False(t, h.completed(t, a.ID).Completed)
}

func TestTogglesOnDifferentItemsAreIndependent(t *testing.T) {
	h := newHarness(t, nil, nil)
	todos := h.seed(t, "milk", "eggs")
	a, b := todos[0], todos[1]

	opA, err := h.sess.BeginToggle(a.ID, true)
	require.NoError(t, err)
	opB, err := h.sess.BeginToggle(b.ID, true)
	require.NoError(t, err)

	h.be.failUpdates(a.ID)
	require.Error(t, opA.Do(context.Background()))
	require.NoError(t, opB.Do(context.Background()))
	assert.False(t, h.completed(t, a.ID).Completed)
	assert.True(t, h.completed(t, b.ID).Completed)
}

func TestRemoteDeleteWinsOverInFlightToggle(t *testing.T) {
	for _, fail := range []bool{true, false} {
		t.Run(fmt.Sprintf("fail=%v", fail), func(t *testing.T) {
			fd := &manualFeed{}
			h := newHarness(t, fd, nil)
			a := h.seed(t, "milk", "eggs")[0]

			op, err := h.sess.BeginToggle(a.ID, true)
			require.NoError(t, err)
			fd.emit(backend.Event{Kind: backend.EventDelete, ListID: h.list.ID, ID: a.ID})
			_, ok := h.sess.Get(a.ID)
			require.False(t, ok)

			if fail {
				h.be.failUpdates(a.ID)
			}
			_ = op.Do(context.Background())
			_, ok = h.sess.Get(a.ID)
			assert.False(t, ok)
		})
	}
}

func TestFeedUpdateKeepsInFlightCompletion(t *testing.T) {
	fd := &manualFeed{}
	h := newHarness(t, fd, nil)
	a := h.seed(t, "milk")[0]

	op, err := h.sess.BeginToggle(a.ID, true)
	require.NoError(t, err)
	remote := a
	remote.Text = "oat milk"
	fd.emit(backend.Event{Kind: backend.EventUpdate, ListID: h.list.ID, ID: a.ID, Todo: &remote})

	got := h.completed(t, a.ID)
	assert.Equal(t, "oat milk", got.Text)
	assert.True(t, got.Completed)

	h.be.failUpdates(a.ID)
	require.Error(t, op.Do(context.Background()))
	got = h.completed(t, a.ID)
	assert.Equal(t, "oat milk", got.Text)
	assert.False(t, got.Completed)
}

func TestFailedToggleAfterFeedConfirmationKeepsServerState(t *testing.T) {
	fd := &manualFeed{}
	h := newHarness(t, fd, nil)
	a := h.seed(t, "milk")[0]

	op, err := h.sess.BeginToggle(a.ID, true)
	require.NoError(t, err)
	earlier := fixedNow.Add(-time.Hour)
	remote := a
	remote.Completed, remote.CompletedAt = true, &earlier
	fd.emit(backend.Event{Kind: backend.EventUpdate, ListID: h.list.ID, ID: a.ID, Todo: &remote})

	h.be.failUpdates(a.ID)
	require.Error(t, op.Do(context.Background()))
	got := h.completed(t, a.ID)
	assert.True(t, got.Completed)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(earlier))
}

func TestCompletingCompletedTodoKeepsTimestamp(t *testing.T) {
	h := newHarness(t, nil, nil)
	a := h.seed(t, "milk")[0]
	earlier := fixedNow.Add(-time.Hour)
	done := model.Completion{Completed: true, CompletedAt: &earlier}
	_, err := h.db.UpdateTodo(context.Background(), a.ID, backend.TodoUpdate{Completion: &done})
	require.NoError(t, err)
	require.NoError(t, h.sess.Reload(context.Background()))

	op, err := h.sess.BeginToggle(a.ID, true)
	require.NoError(t, err)
	got := h.completed(t, a.ID)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(earlier), "optimistic state keeps the timestamp")

	require.NoError(t, op.Do(context.Background()))
	got = h.completed(t, a.ID)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(earlier), "stored state keeps the timestamp")
}

func TestFeedEventsForOtherListsAreDropped(t *testing.T) {
	fd := &manualFeed{}
	h := newHarness(t, fd, nil)
	h.seed(t, "milk")
	stray := model.Todo{ID: "x", ListID: "other", Text: "stray"}
	fd.emit(backend.Event{Kind: backend.EventInsert, ListID: "other", ID: "x", Todo: &stray})
	assert.Len(t, h.sess.Items(), 1)
}

func TestReorderScenario(t *testing.T) {
	h := newHarness(t, nil, nil)
	todos := h.seed(t, "a", "b", "c")
	a, b, c := todos[0].ID, todos[1].ID, todos[2].ID

	require.NoError(t, h.sess.Reorder(context.Background(), []string{b, a, c}))
	assert.Equal(t, []string{b, a, c}, h.sess.View("").ActiveIDs())

	stored, err := h.db.ListTodos(context.Background(), h.list.ID)
	require.NoError(t, err)
	assert.Equal(t, b, stored[0].ID)
	assert.Equal(t, a, stored[1].ID)
}

func TestReorderFailureKeepsLocalOrder(t *testing.T) {
	h := newHarness(t, nil, nil)
	todos := h.seed(t, "a", "b", "c")
	a, b, c := todos[0].ID, todos[1].ID, todos[2].ID

	h.be.failUpdates(b)
	err := h.sess.Reorder(context.Background(), []string{b, a, c})
	var be *model.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "reorder", be.Op)
	assert.Equal(t, []string{b, a, c}, h.sess.View("").ActiveIDs())
}

func TestReorderAvoidsPositionsOfOtherItems(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	todos := h.seed(t, "a", "b", "c")
	a, b, c := todos[0], todos[1], todos[2]

	shared, next := a.Position, a.Position+1
	_, err := h.db.UpdateTodo(ctx, b.ID, backend.TodoUpdate{Position: &shared})
	require.NoError(t, err)
	_, err = h.db.UpdateTodo(ctx, c.ID, backend.TodoUpdate{Position: &next})
	require.NoError(t, err)
	require.NoError(t, h.sess.Reload(ctx))

	require.NoError(t, h.sess.Reorder(ctx, []string{b.ID, a.ID}))
	pos := map[string]int{}
	for _, it := range h.sess.Items() {
		pos[it.ID] = it.Position
	}
	assert.Len(t, pos, 3)
	assert.Less(t, pos[b.ID], pos[a.ID])
	assert.NotEqual(t, pos[a.ID], pos[c.ID])
	assert.NotEqual(t, pos[b.ID], pos[c.ID])
	assert.Equal(t, next, pos[c.ID])
}

func TestReorderRejectsDuplicates(t *testing.T) {
	h := newHarness(t, nil, nil)
	todos := h.seed(t, "a", "b")
	err := h.sess.Reorder(context.Background(), []string{todos[0].ID, todos[0].ID})
	assert.True(t, model.IsValidation(err))
}

func TestReorderSkipsUnknownIDs(t *testing.T) {
	h := newHarness(t, nil, nil)
	todos := h.seed(t, "a", "b")
	require.NoError(t, h.sess.Reorder(context.Background(), []string{"ghost", todos[1].ID, todos[0].ID}))
	assert.Equal(t, []string{todos[1].ID, todos[0].ID}, h.sess.View("").ActiveIDs())
}

func TestMove(t *testing.T) {
	h := newHarness(t, nil, nil)
	todos := h.seed(t, "a", "b", "c")
	a, b, c := todos[0].ID, todos[1].ID, todos[2].ID

	require.NoError(t, h.sess.Move(context.Background(), c, 0))
	assert.Equal(t, []string{c, a, b}, h.sess.View("").ActiveIDs())
	require.NoError(t, h.sess.Move(context.Background(), c, 99))
	assert.Equal(t, []string{a, b, c}, h.sess.View("").ActiveIDs())

	require.NoError(t, h.sess.Toggle(context.Background(), a, true))
	assert.True(t, model.IsValidation(h.sess.Move(context.Background(), a, 0)))
}

func TestReorderPermutationProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		h := newHarness(t, nil, nil)
		n := rapid.IntRange(1, 6).Draw(rt, "n")
		texts := make([]string, n)
		for i := range texts {
			texts[i] = fmt.Sprintf("item %d", i)
		}
		todos := h.seed(t, texts...)
		ids := make([]string, n)
		for i, td := range todos {
			ids[i] = td.ID
		}
		perm := rapid.Permutation(ids).Draw(rt, "perm")
		if err := h.sess.Reorder(context.Background(), perm); err != nil {
			rt.Fatalf("reorder: %v", err)
		}
		got := h.sess.View("").ActiveIDs()
		if fmt.Sprint(got) != fmt.Sprint(perm) {
			rt.Fatalf("active order %v, want %v", got, perm)
		}
	})
}

func TestNonOptimisticMutations(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	a := h.seed(t, "milk")[0]

	_, err := h.sess.Add(ctx, "   ")
	assert.True(t, model.IsValidation(err))

	b, err := h.sess.Add(ctx, "  eggs ")
	require.NoError(t, err)
	assert.Equal(t, "eggs", b.Text)
	assert.Len(t, h.sess.Items(), 2)

	same, err := h.sess.Edit(ctx, a.ID, "milk")
	require.NoError(t, err)
	assert.True(t, a.UpdatedAt.Equal(same.UpdatedAt))

	edited, err := h.sess.Edit(ctx, a.ID, "oat milk")
	require.NoError(t, err)
	assert.Equal(t, "oat milk", h.completed(t, a.ID).Text)
	assert.Equal(t, edited.ID, a.ID)

	require.NoError(t, h.sess.Delete(ctx, b.ID))
	_, ok := h.sess.Get(b.ID)
	assert.False(t, ok)

	err = h.sess.Delete(ctx, b.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestClearCompletedLeavesActiveUntouched(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	todos := h.seed(t, "a", "b", "c", "d")
	require.NoError(t, h.sess.Toggle(ctx, todos[1].ID, true))
	require.NoError(t, h.sess.Toggle(ctx, todos[3].ID, true))

	removed, err := h.sess.ClearCompleted(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{todos[1].ID, todos[3].ID}, removed)

	v := h.sess.View("")
	assert.Equal(t, []string{todos[0].ID, todos[2].ID}, v.ActiveIDs())
	assert.Empty(t, v.Completed)
	assert.Equal(t, todos[0].Position, v.Active[0].Position)
	assert.Equal(t, todos[2].Position, v.Active[1].Position)
}

func TestStaleSettlementsAfterSwitch(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	a := h.seed(t, "milk")[0]
	other, err := h.db.CreateList(ctx, "Hardware", "u1")
	require.NoError(t, err)

	op, err := h.sess.BeginToggle(a.ID, true)
	require.NoError(t, err)

	hold, entered := make(chan struct{}), make(chan struct{}, 1)
	h.be.mu.Lock()
	h.be.holdAdd, h.be.entered = hold, entered
	h.be.mu.Unlock()
	added := make(chan error, 1)
	go func() {
		_, err := h.sess.Add(ctx, "nails")
		added <- err
	}()
	<-entered

	require.NoError(t, h.sess.Open(ctx, other.ID))
	h.be.failUpdates(a.ID)
	require.Error(t, op.Do(ctx))
	close(hold)
	require.NoError(t, <-added)

	assert.Equal(t, other.ID, h.sess.ListID())
	assert.Empty(t, h.sess.Items(), "nothing from the previous list leaks in")
}

func TestSubscriptionFollowsActiveList(t *testing.T) {
	hub := feed.NewHub(nil)
	h := newHarness(t, hub, hub)
	ctx := context.Background()
	h.seed(t, "milk")
	other, err := h.db.CreateList(ctx, "Hardware", "u1")
	require.NoError(t, err)

	assert.Equal(t, 1, hub.Subscribers(h.list.ID))
	require.NoError(t, h.sess.Open(ctx, other.ID))
	assert.Equal(t, 0, hub.Subscribers(h.list.ID))
	assert.Equal(t, 1, hub.Subscribers(other.ID))

	require.NoError(t, h.sess.Close())
	assert.Equal(t, 0, hub.Subscribers(other.ID))
	assert.ErrorIs(t, h.sess.Open(ctx, h.list.ID), ErrClosed)
}

func TestRemoteChangesArriveThroughHub(t *testing.T) {
	hub := feed.NewHub(nil)
	h := newHarness(t, hub, hub)
	ctx := context.Background()
	h.seed(t, "milk")

	remote, err := h.db.CreateTodo(ctx, h.list.ID, "bread")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, ok := h.sess.Get(remote.ID)
		return ok
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, h.db.DeleteTodo(ctx, remote.ID))
	require.Eventually(t, func() bool {
		_, ok := h.sess.Get(remote.ID)
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestChangesCoalesce(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.seed(t, "milk")
	// Several changes, one pending signal.
	_, _ = h.sess.Add(context.Background(), "eggs")
	_, _ = h.sess.Add(context.Background(), "bread")
	select {
	case <-h.sess.Changes():
	default:
		t.Fatal("expected a change signal")
	}
	select {
	case <-h.sess.Changes():
		t.Fatal("signals should coalesce")
	default:
	}
}

func TestFeedErrorRecorded(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.seed(t, "milk")
	h.sess.FeedError("other", errDown)
	assert.NoError(t, h.sess.Err())
	h.sess.FeedError(h.list.ID, errDown)
	assert.ErrorIs(t, h.sess.Err(), errDown)
}

func TestOperationsWithoutList(t *testing.T) {
	h := newHarness(t, nil, nil)
	_, err := h.sess.Add(context.Background(), "milk")
	assert.True(t, model.IsValidation(err))
	_, err = h.sess.BeginReorder(nil)
	assert.True(t, model.IsValidation(err))
	assert.True(t, model.IsValidation(h.sess.Open(context.Background(), "")))
}

// endingFeed hands out subscriptions the test can end from the feed side.
type endingFeed struct {
	mu   sync.Mutex
	subs []*endingSub
}

type endingSub struct {
	done chan struct{}
	once sync.Once
}

func (s *endingSub) Done() <-chan struct{} { return s.done }

func (s *endingSub) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (f *endingFeed) Subscribe(context.Context, string, func(backend.Event)) (backend.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := &endingSub{done: make(chan struct{})}
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *endingFeed) last() *endingSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[len(f.subs)-1]
}

func TestDroppedSubscriptionSurfacesError(t *testing.T) {
	fd := &endingFeed{}
	h := newHarness(t, fd, nil)
	h.seed(t, "milk")
	require.NoError(t, h.sess.Err())

	_ = fd.last().Close()
	require.Eventually(t, func() bool { return errors.Is(h.sess.Err(), ErrFeedDropped) }, time.Second, 5*time.Millisecond)
}

func TestReplacedSubscriptionIsNotAnError(t *testing.T) {
	fd := &endingFeed{}
	h := newHarness(t, fd, nil)
	h.seed(t, "milk")
	first := fd.last()

	other, err := h.db.CreateList(context.Background(), "Hardware", "u1")
	require.NoError(t, err)
	require.NoError(t, h.sess.Open(context.Background(), other.ID))
	<-first.Done()
	time.Sleep(20 * time.Millisecond)
	assert.NoError(t, h.sess.Err())
}
