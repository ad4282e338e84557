package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/idilsaglam/tada/internal/auth"
	"github.com/idilsaglam/tada/internal/ui"
)

func newAuthCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the token that identifies you",
	}
	cmd.AddCommand(newAuthLoginCmd(app))
	cmd.AddCommand(newAuthLogoutCmd(app))
	cmd.AddCommand(newAuthStatusCmd(app))
	cmd.AddCommand(newAuthWhoamiCmd(app))
	return cmd
}

func newAuthLoginCmd(app *App) *cobra.Command {
	var email, name string
	cmd := &cobra.Command{
		Use:   "login [token]",
		Short: "Save a token (read from stdin when omitted)",
		Long: strings.TrimSpace(`
Save a bearer token. A JWT's "sub" claim is your user id; any other token
is used as the user id itself. With --email the profile collaborators share
lists with is registered too.`),
		Args: nargs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := optional(args)
			if token == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return usagef("login: no token given")
				}
				token = line
			}
			if err := app.creds.Set(token, nil); err != nil {
				return usagef("login: %v", err)
			}
			uid, err := app.creds.CurrentUser(cmd.Context())
			if err != nil {
				return err
			}
			ui.OK("logged in as " + uid)
			if email == "" {
				return nil
			}
			return app.withConn(cmd, func(ctx context.Context, c *conn) error {
				p, err := c.disp.RegisterProfile(ctx, email, name)
				if err != nil {
					return fmt.Errorf("register profile: %w", err)
				}
				ui.OK("registered " + p.Label())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Register this email for the user")
	cmd.Flags().StringVar(&name, "name", "", "Display name to register with --email")
	return cmd
}

func newAuthLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved token",
		Args:  nargs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.creds.Delete(); err != nil {
				return err
			}
			ui.OK("logged out")
			return nil
		},
	}
}

func newAuthStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show where the token comes from and when it expires",
		Args:  nargs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ti, err := app.creds.Get()
			if err != nil {
				return err
			}
			if ti == nil {
				return auth.ErrNotLoggedIn
			}
			t := ui.Current()
			fmt.Fprintf(app.out, "user    %s\n", ti.Subject())
			fmt.Fprintf(app.out, "source  %s\n", ti.Source)
			switch {
			case ti.ExpiresAt == nil:
				fmt.Fprintf(app.out, "expires %s\n", ui.C(t.Muted, "never"))
			case ti.Expired(time.Now()):
				fmt.Fprintf(app.out, "expires %s\n", ui.C(t.Error, "expired "+ti.ExpiresAt.Local().Format(time.DateTime)))
			default:
				fmt.Fprintf(app.out, "expires %s\n", ti.ExpiresAt.Local().Format(time.DateTime))
			}
			return nil
		},
	}
}

func newAuthWhoamiCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print your user id",
		Args:  nargs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := app.creds.CurrentUser(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(app.out, uid)
			return nil
		},
	}
}
