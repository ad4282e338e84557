package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/idilsaglam/tada/internal/model"
	"github.com/idilsaglam/tada/internal/session"
	"github.com/idilsaglam/tada/internal/tui"
	"github.com/idilsaglam/tada/internal/ui"
)

// withList connects, opens the list named by ref (or the default one) in
// a fresh session and runs fn against it.
func (a *App) withList(cmd *cobra.Command, ref string, live bool, fn func(ctx context.Context, s *session.Session, l model.List) error) error {
	ctx := cmd.Context()
	c, err := a.connect(ctx, live)
	if err != nil {
		return err
	}
	defer func() { _ = c.close() }()
	l, err := a.resolveList(ctx, c, ref)
	if err != nil {
		return err
	}
	s := a.session(c)
	defer func() { _ = s.Close() }()
	if err := s.Open(ctx, l.ID); err != nil {
		return err
	}
	return fn(ctx, s, l)
}

func (a *App) render(s *session.Session, l model.List, query string) {
	ui.RenderView(a.out, l.Name, s.View(query))
}

func newOpenCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "open <list>",
		Short: "Select the list later commands act on and show it",
		Args:  nargs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withList(cmd, args[0], false, func(_ context.Context, s *session.Session, l model.List) error {
				if err := app.state.RememberList(l.ID); err != nil {
					return fmt.Errorf("save state: %w", err)
				}
				app.render(s, l, "")
				return nil
			})
		},
	}
}

func newLsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "Show the list",
		Args:  nargs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withList(cmd, "", false, func(_ context.Context, s *session.Session, l model.List) error {
				app.render(s, l, "")
				return nil
			})
		},
	}
}

func newSearchCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query...>",
		Short: "Show the todos that approximately match query",
		Args:  nargs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return app.withList(cmd, "", false, func(_ context.Context, s *session.Session, l model.List) error {
				app.render(s, l, query)
				return nil
			})
		},
	}
}

func newAddCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "add <text...>",
		Short: "Add a todo (text can be multiple words)",
		Args:  nargs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			return app.withList(cmd, "", false, func(ctx context.Context, s *session.Session, l model.List) error {
				if _, err := s.Add(ctx, text); err != nil {
					return err
				}
				ui.OK("added")
				return nil
			})
		},
	}
}

func newDoneCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "done <ref>",
		Short: "Toggle completion of a todo (number from `tada ls`, or id)",
		Args:  nargs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withList(cmd, "", false, func(ctx context.Context, s *session.Session, l model.List) error {
				t, err := resolveTodo(s.View(""), args[0])
				if err != nil {
					return err
				}
				if err := s.Flip(ctx, t.ID); err != nil {
					return fmt.Errorf("toggle: %w", err)
				}
				if t.Completed {
					ui.OK("reopened")
				} else {
					ui.OK("done")
				}
				return nil
			})
		},
	}
}

func newEditCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <ref> <text...>",
		Short: "Replace the text of a todo",
		Args:  nargs(cobra.MinimumNArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args[1:], " ")
			return app.withList(cmd, "", false, func(ctx context.Context, s *session.Session, l model.List) error {
				t, err := resolveTodo(s.View(""), args[0])
				if err != nil {
					return err
				}
				if _, err := s.Edit(ctx, t.ID, text); err != nil {
					return err
				}
				ui.OK("edited")
				return nil
			})
		},
	}
}

func newRmCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <ref>",
		Short: "Remove a todo",
		Args:  nargs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withList(cmd, "", false, func(ctx context.Context, s *session.Session, l model.List) error {
				t, err := resolveTodo(s.View(""), args[0])
				if err != nil {
					return err
				}
				if err := s.Delete(ctx, t.ID); err != nil {
					return err
				}
				ui.OK("removed")
				return nil
			})
		},
	}
}

func newMvCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "mv <ref> <position>",
		Short: "Move an active todo to a 1-based position among the active todos",
		Args:  nargs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := strconv.Atoi(args[1])
			if err != nil {
				return usagef("mv: not a number: %s", args[1])
			}
			return app.withList(cmd, "", false, func(ctx context.Context, s *session.Session, l model.List) error {
				t, err := resolveTodo(s.View(""), args[0])
				if err != nil {
					return err
				}
				if err := s.Move(ctx, t.ID, pos-1); err != nil {
					return fmt.Errorf("move: %w", err)
				}
				ui.OK("moved")
				return nil
			})
		},
	}
}

func newClearCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every completed todo",
		Args:  nargs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withList(cmd, "", false, func(ctx context.Context, s *session.Session, l model.List) error {
				ids, err := s.ClearCompleted(ctx)
				if err != nil {
					return err
				}
				ui.OK(fmt.Sprintf("cleared %d", len(ids)))
				return nil
			})
		},
	}
}

func newTUICmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "tui [list]",
		Short: "Interactive list with live updates",
		Args:  nargs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := ""
			if len(args) == 1 {
				ref = args[0]
			}
			return runTUI(cmd, app, ref)
		},
	}
}

func runTUI(cmd *cobra.Command, app *App, ref string) error {
	return app.withList(cmd, ref, true, func(ctx context.Context, s *session.Session, l model.List) error {
		if err := app.state.RememberList(l.ID); err != nil {
			app.logger.Warn("could not save last list", "err", err)
		}
		return tui.Run(ctx, s, l.Name)
	})
}
