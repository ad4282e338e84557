package model

import (
	"strings"
	"time"
)

// Todo is one entry of a shared list.
// ID is assigned by the authoritative store and never changes afterwards.
type Todo struct {
	ID          string     `json:"id"`
	ListID      string     `json:"list_id"`
	Text        string     `json:"text"`
	Completed   bool       `json:"is_completed"`
	CompletedAt *time.Time `json:"completed_at"`
	Position    int        `json:"sort_order"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Completion keeps the flag and its timestamp together so the pair
// can only change as a unit.
type Completion struct {
	Completed   bool       `json:"is_completed"`
	CompletedAt *time.Time `json:"completed_at"`
}

// CompletionAt derives the completion pair for a target flag.
func CompletionAt(completed bool, now time.Time) Completion {
	if !completed {
		return Completion{}
	}
	ts := now.UTC()
	return Completion{Completed: true, CompletedAt: &ts}
}

// Completion returns the item's current completion pair.
func (t Todo) Completion() Completion {
	return Completion{Completed: t.Completed, CompletedAt: cloneTime(t.CompletedAt)}
}

// Equal reports whether two completion pairs are identical, timestamps included.
func (c Completion) Equal(o Completion) bool {
	if c.Completed != o.Completed {
		return false
	}
	switch {
	case c.CompletedAt == nil && o.CompletedAt == nil:
		return true
	case c.CompletedAt == nil || o.CompletedAt == nil:
		return false
	}
	return c.CompletedAt.Equal(*o.CompletedAt)
}

// Clone returns a deep copy; the timestamp pointer is not shared.
func (t Todo) Clone() Todo {
	t.CompletedAt = cloneTime(t.CompletedAt)
	return t
}

// Patch is a partial update. Nil fields are left alone.
type Patch struct {
	Text       *string
	Completion *Completion
	Position   *int
	UpdatedAt  *time.Time
}

// Apply writes the set fields of p onto t.
func (p Patch) Apply(t *Todo) {
	if p.Text != nil {
		t.Text = *p.Text
	}
	if p.Completion != nil {
		t.Completed = p.Completion.Completed
		t.CompletedAt = cloneTime(p.Completion.CompletedAt)
	}
	if p.Position != nil {
		t.Position = *p.Position
	}
	if p.UpdatedAt != nil {
		t.UpdatedAt = *p.UpdatedAt
	}
}

// NormalizeText trims surrounding whitespace; callers reject the empty result.
func NormalizeText(s string) string { return strings.TrimSpace(s) }

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
