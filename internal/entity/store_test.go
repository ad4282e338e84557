package entity

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/idilsaglam/tada/internal/model"
)

func todo(id, text string, pos int) model.Todo {
	return model.Todo{ID: id, ListID: "l1", Text: text, Position: pos}
}

func TestUpsertReplacesOrAppends(t *testing.T) {
	s := New()
	s.Scope("l1")
	s.Upsert(todo("a", "milk", 0))
	s.Upsert(todo("b", "eggs", 1))
	s.Upsert(todo("a", "oat milk", 0))

	items := s.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].ID)
	assert.Equal(t, "oat milk", items[0].Text)
	assert.Equal(t, "b", items[1].ID)
}

func TestUpsertIgnoresOtherLists(t *testing.T) {
	s := New()
	s.Scope("l1")
	other := todo("x", "nope", 0)
	other.ListID = "l2"
	s.Upsert(other)
	assert.Equal(t, 0, s.Len())
}

func TestRemoveUnknownIsNoop(t *testing.T) {
	s := New()
	s.Scope("l1")
	s.Upsert(todo("a", "milk", 0))
	v := s.Version()
	s.Remove("zzz")
	assert.Equal(t, v, s.Version())
	assert.Equal(t, 1, s.Len())
}

func TestPatchAbsentIsNoop(t *testing.T) {
	s := New()
	s.Scope("l1")
	text := "ghost"
	assert.False(t, s.Patch("a", model.Patch{Text: &text}))
	assert.Equal(t, 0, s.Len())
}

func TestPatchCompletion(t *testing.T) {
	s := New()
	s.Scope("l1")
	s.Upsert(todo("a", "milk", 0))
	c := model.CompletionAt(true, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	require.True(t, s.Patch("a", model.Patch{Completion: &c}))

	got, ok := s.Get("a")
	require.True(t, ok)
	assert.True(t, got.Completed)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.Completion().Equal(c))
}

func TestGetReturnsCopies(t *testing.T) {
	s := New()
	s.Scope("l1")
	ts := time.Now()
	it := todo("a", "milk", 0)
	it.Completed, it.CompletedAt = true, &ts
	s.Upsert(it)

	got, _ := s.Get("a")
	*got.CompletedAt = ts.Add(time.Hour)
	again, _ := s.Get("a")
	assert.True(t, again.CompletedAt.Equal(ts))
}

func TestClearResetsEverything(t *testing.T) {
	s := New()
	s.Scope("l1")
	s.Upsert(todo("a", "milk", 0))
	s.SetLoading(true)
	s.SetErr(fmt.Errorf("boom"))
	s.Clear()

	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.ListID())
	assert.False(t, s.Loading())
	assert.NoError(t, s.Err())
}

func TestReplaceAllDropsDuplicates(t *testing.T) {
	s := New()
	s.Scope("l1")
	s.ReplaceAll([]model.Todo{todo("a", "one", 0), todo("b", "two", 1), todo("a", "three", 2)})
	items := s.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "three", items[0].Text)
}

type op struct {
	remove bool
	item   model.Todo
}

func opGen() *rapid.Generator[op] {
	return rapid.Custom(func(t *rapid.T) op {
		id := rapid.SampledFrom([]string{"a", "b", "c", "d"}).Draw(t, "id")
		return op{
			remove: rapid.Bool().Draw(t, "remove"),
			item:   todo(id, rapid.StringMatching(`[a-z]{1,8}`).Draw(t, "text"), rapid.IntRange(0, 20).Draw(t, "pos")),
		}
	})
}

func apply(s *Store, o op) {
	if o.remove {
		s.Remove(o.item.ID)
		return
	}
	s.Upsert(o.item)
}

// Replaying each event twice converges to the same contents as applying it once.
func TestUpsertRemoveIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ops := rapid.SliceOf(opGen()).Draw(t, "ops")

		once := New()
		once.Scope("l1")
		twice := New()
		twice.Scope("l1")
		for _, o := range ops {
			apply(once, o)
			apply(twice, o)
			apply(twice, o)
		}
		if fmt.Sprint(once.Items()) != fmt.Sprint(twice.Items()) {
			t.Fatalf("replay diverged:\n%v\n%v", once.Items(), twice.Items())
		}
	})
}

// The store content always equals a fold of the same events over a plain map.
func TestStoreMatchesFold(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ops := rapid.SliceOf(opGen()).Draw(t, "ops")
		s := New()
		s.Scope("l1")
		want := map[string]model.Todo{}
		for _, o := range ops {
			apply(s, o)
			if o.remove {
				delete(want, o.item.ID)
			} else {
				want[o.item.ID] = o.item
			}
		}
		if s.Len() != len(want) {
			t.Fatalf("len %d, want %d", s.Len(), len(want))
		}
		for id, w := range want {
			got, ok := s.Get(id)
			if !ok || got.Text != w.Text || got.Position != w.Position {
				t.Fatalf("item %s: got %+v want %+v", id, got, w)
			}
		}
	})
}
