// Package dispatch sends mutation intents to the authoritative store. It is
// a stateless request/response boundary: no optimistic state, no retries.
// Every failure comes back as a *model.BackendError.
package dispatch

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/idilsaglam/tada/internal/backend"
	"github.com/idilsaglam/tada/internal/metrics"
	"github.com/idilsaglam/tada/internal/model"
)

// reorderParallelism bounds concurrent position updates of one batch.
const reorderParallelism = 4

// Move sets one todo's sort position.
type Move struct {
	ID       string `json:"id"`
	Position int    `json:"position"`
}

// Dispatcher is safe for concurrent use.
type Dispatcher struct {
	store    backend.Store
	identity backend.Identity
	metrics  metrics.Recorder
	now      func() time.Time
}

// New returns a dispatcher over store. identity attributes created lists
// and invites; rec may be nil.
func New(store backend.Store, identity backend.Identity, rec metrics.Recorder) *Dispatcher {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Dispatcher{store: store, identity: identity, metrics: rec, now: time.Now}
}

func (d *Dispatcher) observe(op string, start time.Time, err error) error {
	d.metrics.Dispatch(op, time.Since(start), err)
	return model.AsBackend(op, err)
}

// FetchTodos loads the full list, ordered by position.
func (d *Dispatcher) FetchTodos(ctx context.Context, listID string) ([]model.Todo, error) {
	start := time.Now()
	items, err := d.store.ListTodos(ctx, listID)
	return items, d.observe("fetch", start, err)
}

// Add creates a todo at the end of listID. text must already be trimmed and non-empty.
func (d *Dispatcher) Add(ctx context.Context, listID, text string) (model.Todo, error) {
	start := time.Now()
	t, err := d.store.CreateTodo(ctx, listID, text)
	return t, d.observe("add", start, err)
}

// Toggle sets the completion flag; the timestamp follows the flag.
func (d *Dispatcher) Toggle(ctx context.Context, id string, completed bool) (model.Todo, error) {
	start := time.Now()
	c := model.CompletionAt(completed, d.now())
	t, err := d.store.UpdateTodo(ctx, id, backend.TodoUpdate{Completion: &c})
	return t, d.observe("toggle", start, err)
}

// Edit replaces the text.
func (d *Dispatcher) Edit(ctx context.Context, id, text string) (model.Todo, error) {
	start := time.Now()
	t, err := d.store.UpdateTodo(ctx, id, backend.TodoUpdate{Text: &text})
	return t, d.observe("edit", start, err)
}

// Delete removes a todo and returns its id.
func (d *Dispatcher) Delete(ctx context.Context, id string) (string, error) {
	start := time.Now()
	err := d.store.DeleteTodo(ctx, id)
	if err != nil {
		return "", d.observe("delete", start, err)
	}
	return id, d.observe("delete", start, nil)
}

// ClearCompleted removes every completed todo of listID.
func (d *Dispatcher) ClearCompleted(ctx context.Context, listID string) ([]string, error) {
	start := time.Now()
	ids, err := d.store.DeleteCompleted(ctx, listID)
	return ids, d.observe("clear_completed", start, err)
}

// Reorder applies a batch of position updates as one logical operation.
// Any failed update fails the whole batch; updates that already landed
// stay applied at the store.
func (d *Dispatcher) Reorder(ctx context.Context, moves []Move) ([]model.Todo, error) {
	start := time.Now()
	out := make([]model.Todo, len(moves))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reorderParallelism)
	for i, mv := range moves {
		g.Go(func() error {
			pos := mv.Position
			t, err := d.store.UpdateTodo(gctx, mv.ID, backend.TodoUpdate{Position: &pos})
			if err != nil {
				return err
			}
			out[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, d.observe("reorder", start, err)
	}
	return out, d.observe("reorder", start, nil)
}
