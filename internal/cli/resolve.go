package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/idilsaglam/tada/internal/model"
	"github.com/idilsaglam/tada/internal/view"
)

// resolveList finds a list by id, unique id prefix or case-insensitive
// name. An empty ref means --list, then the last opened list.
func (a *App) resolveList(ctx context.Context, c *conn, ref string) (model.List, error) {
	if ref == "" {
		ref = a.List
	}
	if ref == "" {
		last, err := a.state.LastList()
		if err != nil {
			return model.List{}, err
		}
		if last == "" {
			return model.List{}, usagef("no list selected (pass --list or run `tada open <list>`)")
		}
		ref = last
	}
	lists, err := c.disp.Lists(ctx)
	if err != nil {
		return model.List{}, fmt.Errorf("load lists: %w", err)
	}
	var byName, byPrefix []model.List
	for _, l := range lists {
		switch {
		case l.ID == ref:
			return l, nil
		case strings.EqualFold(l.Name, ref):
			byName = append(byName, l)
		case strings.HasPrefix(l.ID, ref):
			byPrefix = append(byPrefix, l)
		}
	}
	for _, hits := range [][]model.List{byName, byPrefix} {
		switch len(hits) {
		case 0:
			continue
		case 1:
			return hits[0], nil
		default:
			return model.List{}, usagef("%q matches %d lists, use the id", ref, len(hits))
		}
	}
	return model.List{}, fmt.Errorf("list %q: %w", ref, model.ErrNotFound)
}

// resolveTodo finds a todo by its 1-based number in v.Rows, its id or a
// unique id prefix.
func resolveTodo(v view.View, ref string) (model.Todo, error) {
	rows := v.Rows()
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(rows) {
			return model.Todo{}, usagef("index out of range: have %d, got %d", len(rows), n)
		}
		return rows[n-1], nil
	}
	var hits []model.Todo
	for _, it := range rows {
		if it.ID == ref {
			return it, nil
		}
		if strings.HasPrefix(it.ID, ref) {
			hits = append(hits, it)
		}
	}
	switch len(hits) {
	case 1:
		return hits[0], nil
	case 0:
		return model.Todo{}, fmt.Errorf("todo %q: %w", ref, model.ErrNotFound)
	}
	return model.Todo{}, usagef("%q matches %d todos, use more of the id", ref, len(hits))
}
