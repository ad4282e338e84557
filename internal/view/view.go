// Package view derives what a list looks like on screen from the entity
// store contents and a search query. Nothing here mutates its input.
package view

import (
	"slices"
	"strings"

	"github.com/idilsaglam/tada/internal/model"
)

// DefaultThreshold is the share of the query length that may be edited
// away when matching approximately.
const DefaultThreshold = 0.4

// Options tunes Project. The zero value uses DefaultThreshold.
type Options struct {
	Threshold float64
}

func (o Options) threshold() float64 {
	if o.Threshold <= 0 {
		return DefaultThreshold
	}
	return o.Threshold
}

// View is the projected list.
type View struct {
	Query     string
	Active    []model.Todo
	Completed []model.Todo
	Counts    Counts
}

// Counts summarises the unfiltered list.
type Counts struct {
	Done    int
	Pending int
	Total   int
}

// Matched is the number of items that passed the query.
func (v View) Matched() int { return len(v.Active) + len(v.Completed) }

// Empty reports whether nothing passed the query.
func (v View) Empty() bool { return v.Matched() == 0 }

// Project filters items by query, partitions them by completion and
// orders each partition by position, then id.
func Project(items []model.Todo, query string, opts Options) View {
	q := strings.TrimSpace(query)
	v := View{Query: q}
	m := newMatcher(q, opts.threshold())
	for _, it := range items {
		if it.Completed {
			v.Counts.Done++
		} else {
			v.Counts.Pending++
		}
		if !m.match(it.Text) {
			continue
		}
		if it.Completed {
			v.Completed = append(v.Completed, it.Clone())
		} else {
			v.Active = append(v.Active, it.Clone())
		}
	}
	v.Counts.Total = len(items)
	slices.SortStableFunc(v.Active, byPosition)
	slices.SortStableFunc(v.Completed, byPosition)
	return v
}

// ActiveIDs returns the ids of the active partition in display order.
func (v View) ActiveIDs() []string {
	ids := make([]string, len(v.Active))
	for i, it := range v.Active {
		ids[i] = it.ID
	}
	return ids
}

// Rows is the active partition followed by the completed one, the order
// every renderer numbers items in.
func (v View) Rows() []model.Todo {
	return append(slices.Clone(v.Active), v.Completed...)
}

func byPosition(a, b model.Todo) int {
	if a.Position != b.Position {
		if a.Position < b.Position {
			return -1
		}
		return 1
	}
	return strings.Compare(a.ID, b.ID)
}
