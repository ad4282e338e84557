package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/idilsaglam/tada/internal/dispatch"
	"github.com/idilsaglam/tada/internal/model"
	"github.com/idilsaglam/tada/internal/ui"
)

func (a *App) withConn(cmd *cobra.Command, fn func(ctx context.Context, c *conn) error) error {
	ctx := cmd.Context()
	c, err := a.connect(ctx, false)
	if err != nil {
		return err
	}
	defer func() { _ = c.close() }()
	return fn(ctx, c)
}

func newListsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "lists",
		Short: "Show the lists you own or collaborate on",
		Args:  nargs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withConn(cmd, func(ctx context.Context, c *conn) error {
				lists, err := c.disp.Lists(ctx)
				if err != nil {
					return fmt.Errorf("load lists: %w", err)
				}
				last, _ := app.state.LastList()
				ui.Lists(app.out, lists, last)
				return nil
			})
		},
	}
}

func newListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Create, rename, delete and share lists",
	}
	cmd.AddCommand(newListNewCmd(app))
	cmd.AddCommand(newListRenameCmd(app))
	cmd.AddCommand(newListRmCmd(app))
	cmd.AddCommand(newListMembersCmd(app))
	cmd.AddCommand(newListShareCmd(app))
	cmd.AddCommand(newListUnshareCmd(app))
	cmd.AddCommand(newListInviteCmd(app))
	cmd.AddCommand(newListJoinCmd(app))
	return cmd
}

func newListNewCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "new <name...>",
		Short: "Create a list and select it",
		Args:  nargs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withConn(cmd, func(ctx context.Context, c *conn) error {
				l, err := c.disp.CreateList(ctx, strings.Join(args, " "))
				if err != nil {
					return fmt.Errorf("create list: %w", err)
				}
				if err := app.state.RememberList(l.ID); err != nil {
					return fmt.Errorf("save state: %w", err)
				}
				ui.OK(fmt.Sprintf("created %s (%s)", l.Name, l.ID))
				return nil
			})
		},
	}
}

func newListRenameCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <list> <name...>",
		Short: "Rename a list",
		Args:  nargs(cobra.MinimumNArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withConn(cmd, func(ctx context.Context, c *conn) error {
				l, err := app.resolveList(ctx, c, args[0])
				if err != nil {
					return err
				}
				l, err = c.disp.RenameList(ctx, l.ID, strings.Join(args[1:], " "))
				if err != nil {
					return fmt.Errorf("rename list: %w", err)
				}
				ui.OK("renamed to " + l.Name)
				return nil
			})
		},
	}
}

func newListRmCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <list>",
		Short: "Delete a list and its todos",
		Args:  nargs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withConn(cmd, func(ctx context.Context, c *conn) error {
				l, err := app.resolveList(ctx, c, args[0])
				if err != nil {
					return err
				}
				if err := c.disp.DeleteList(ctx, l.ID); err != nil {
					return fmt.Errorf("delete list: %w", err)
				}
				if last, _ := app.state.LastList(); last == l.ID {
					if err := app.state.RememberList(""); err != nil {
						app.logger.Warn("could not reset last list", "err", err)
					}
				}
				ui.OK("deleted " + l.Name)
				return nil
			})
		},
	}
}

func newListMembersCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "members [list]",
		Short: "Show who can see a list",
		Args:  nargs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withConn(cmd, func(ctx context.Context, c *conn) error {
				l, err := app.resolveList(ctx, c, optional(args))
				if err != nil {
					return err
				}
				members, err := c.disp.Members(ctx, l.ID)
				if err != nil {
					return fmt.Errorf("members: %w", err)
				}
				t := ui.Current()
				for _, p := range members {
					role := ""
					if p.ID == l.OwnerID {
						role = ui.C(t.Accent, " (owner)")
					}
					fmt.Fprintf(app.out, "%s %s%s  %s\n", t.SymUnchecked, p.Label(), role, ui.C(t.Muted, p.Email))
				}
				return nil
			})
		},
	}
}

func newListShareCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "share <list> <email>",
		Short: "Share a list with a registered user",
		Args:  nargs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withConn(cmd, func(ctx context.Context, c *conn) error {
				l, err := app.resolveList(ctx, c, args[0])
				if err != nil {
					return err
				}
				if _, err := c.disp.Share(ctx, l.ID, args[1]); err != nil {
					return fmt.Errorf("share: %w", err)
				}
				ui.OK(fmt.Sprintf("shared %s with %s", l.Name, args[1]))
				return nil
			})
		},
	}
}

func newListUnshareCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "unshare <list> <email|user id|share id>",
		Short: "Revoke a collaborator's access",
		Args:  nargs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withConn(cmd, func(ctx context.Context, c *conn) error {
				l, err := app.resolveList(ctx, c, args[0])
				if err != nil {
					return err
				}
				shares, err := c.disp.Shares(ctx, l.ID)
				if err != nil {
					return fmt.Errorf("shares: %w", err)
				}
				who := args[1]
				for _, sh := range shares {
					if sh.ID != who && sh.SharedWithID != who && (sh.Profile == nil || !strings.EqualFold(sh.Profile.Email, who)) {
						continue
					}
					if err := c.disp.Unshare(ctx, sh.ID); err != nil {
						return fmt.Errorf("unshare: %w", err)
					}
					ui.OK("unshared " + who)
					return nil
				}
				return fmt.Errorf("%s has no share on %s: %w", who, l.Name, model.ErrNotFound)
			})
		},
	}
}

func newListInviteCmd(app *App) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "invite [list]",
		Short: "Create an invite token others can join with",
		Args:  nargs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withConn(cmd, func(ctx context.Context, c *conn) error {
				l, err := app.resolveList(ctx, c, optional(args))
				if err != nil {
					return err
				}
				inv, err := c.disp.Invite(ctx, l.ID, ttl)
				if err != nil {
					return fmt.Errorf("invite: %w", err)
				}
				fmt.Fprintln(app.out, inv.Token)
				ui.OK(fmt.Sprintf("invite to %s expires %s", l.Name, inv.ExpiresAt.Local().Format(time.DateTime)))
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", dispatch.DefaultInviteTTL, "How long the invite stays valid")
	return cmd
}

func newListJoinCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "join <token>",
		Short: "Accept an invite and select the list",
		Args:  nargs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withConn(cmd, func(ctx context.Context, c *conn) error {
				listID, err := c.disp.AcceptInvite(ctx, args[0])
				if err != nil {
					return fmt.Errorf("join: %w", err)
				}
				if err := app.state.RememberList(listID); err != nil {
					return fmt.Errorf("save state: %w", err)
				}
				ui.OK("joined " + listID)
				return nil
			})
		},
	}
}

func optional(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
