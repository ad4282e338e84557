// Package backend declares the boundaries the sync engine talks to: the
// authoritative store, the per-list change feed and the identity provider.
package backend

import (
	"context"
	"time"

	"github.com/idilsaglam/tada/internal/model"
)

// TodoUpdate is a single-record update. Nil fields are left untouched.
type TodoUpdate struct {
	Text       *string           `json:"text,omitempty"`
	Completion *model.Completion `json:"completion,omitempty"`
	Position   *int              `json:"sort_order,omitempty"`
}

// TodoStore is the authoritative store for todo records.
type TodoStore interface {
	ListTodos(ctx context.Context, listID string) ([]model.Todo, error)
	CreateTodo(ctx context.Context, listID, text string) (model.Todo, error)
	UpdateTodo(ctx context.Context, id string, u TodoUpdate) (model.Todo, error)
	DeleteTodo(ctx context.Context, id string) error
	DeleteCompleted(ctx context.Context, listID string) ([]string, error)
}

// ListStore covers lists, sharing and invite links.
type ListStore interface {
	ListLists(ctx context.Context, userID string) ([]model.List, error)
	GetList(ctx context.Context, id string) (model.List, error)
	CreateList(ctx context.Context, name, ownerID string) (model.List, error)
	RenameList(ctx context.Context, id, name string) (model.List, error)
	DeleteList(ctx context.Context, id string) error

	ListShares(ctx context.Context, listID string) ([]model.Share, error)
	ShareByEmail(ctx context.Context, listID, email string) (model.Share, error)
	DeleteShare(ctx context.Context, shareID string) error
	Members(ctx context.Context, listID string) ([]model.Profile, error)
	UpsertProfile(ctx context.Context, p model.Profile) (model.Profile, error)

	CreateInvite(ctx context.Context, listID, createdBy string, ttl time.Duration) (model.InviteLink, error)
	AcceptInvite(ctx context.Context, token, userID string) (string, error)
}

// Store is everything the client needs from the authoritative side.
type Store interface {
	TodoStore
	ListStore
}

// EventKind tells the merger how to fold an event.
type EventKind string

const (
	EventInsert EventKind = "INSERT"
	EventUpdate EventKind = "UPDATE"
	EventDelete EventKind = "DELETE"
)

// Event is one change notification for a todo of a list. Todo carries the
// full record for inserts and updates; ID is set for every kind.
type Event struct {
	Kind   EventKind   `json:"kind"`
	ListID string      `json:"list_id"`
	ID     string      `json:"id"`
	Todo   *model.Todo `json:"todo,omitempty"`
}

// Subscription is a live feed registration. Close stops delivery and is
// safe to call more than once.
type Subscription interface {
	Close() error
}

// Ender is implemented by subscriptions that can end on their own, for
// example when the feed drops a subscriber that fell behind.
type Ender interface {
	Done() <-chan struct{}
}

// Feed delivers change events for one list per subscription. The handler
// may be called from any goroutine but never concurrently for the same
// subscription.
type Feed interface {
	Subscribe(ctx context.Context, listID string, handler func(Event)) (Subscription, error)
}

// Identity supplies the current user id used to attribute created records.
type Identity interface {
	CurrentUser(ctx context.Context) (string, error)
}

// StaticIdentity is a fixed user id.
type StaticIdentity string

func (s StaticIdentity) CurrentUser(context.Context) (string, error) { return string(s), nil }
