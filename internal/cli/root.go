// Package cli is the tada command line. Every command returns an error and
// Execute maps it to an exit code: 0 ok, 1 error, 2 usage.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/idilsaglam/tada/internal/auth"
	"github.com/idilsaglam/tada/internal/config"
	"github.com/idilsaglam/tada/internal/logging"
	"github.com/idilsaglam/tada/internal/model"
	"github.com/idilsaglam/tada/internal/store/jsonstore"
	"github.com/idilsaglam/tada/internal/ui"
)

// App holds the root flags and what PersistentPreRunE derives from them.
type App struct {
	Dir     string
	List    string
	NoColor bool

	// flag values for config keys, applied only when set on the command line
	overrides map[string]*string

	cfg    *config.Config
	logger *log.Logger
	creds  *auth.Credentials
	state  *jsonstore.Store
	out    io.Writer
}

// usageError marks a mistake in how the command was invoked.
type usageError struct{ error }

func usagef(format string, args ...any) error { return usageError{fmt.Errorf(format, args...)} }

// ExitCode maps an error returned by a command to the process exit code.
func ExitCode(err error) int {
	var ue usageError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &ue), model.IsValidation(err):
		return 2
	case strings.HasPrefix(err.Error(), "unknown command"), strings.HasPrefix(err.Error(), "unknown flag"):
		return 2
	}
	return 1
}

// flagKeys maps root flags to config keys.
var flagKeys = map[string]string{
	"driver":    "driver",
	"dsn":       "dsn",
	"server":    "server_url",
	"theme":     "theme",
	"log-level": "log_level",
}

func NewRootCmd() *cobra.Command {
	app := &App{overrides: map[string]*string{}}

	cmd := &cobra.Command{
		Use:           "tada",
		Short:         "Shared todo lists that stay in sync",
		SilenceUsage:  true,
		SilenceErrors: true,
		Example: strings.TrimSpace(`
  tada list new Groceries
  tada add "Buy milk"
  tada ls
  tada done 1
  tada search mlk
  tada tui
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			// No subcommand => interactive list when one was opened before.
			if last, _ := app.state.LastList(); last != "" {
				return runTUI(cmd, app, "")
			}
			return cmd.Help()
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError{err} })

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return app.setup(cmd)
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&app.Dir, "dir", "", "Config and state directory (default ~/.tada)")
	pf.StringVarP(&app.List, "list", "l", "", "List to act on (id, id prefix or name; default: last opened)")
	pf.BoolVar(&app.NoColor, "no-color", false, "Disable colored output")
	for flag, key := range flagKeys {
		v := new(string)
		app.overrides[flag] = v
		pf.StringVar(v, flag, "", "Override config key "+key)
	}

	cmd.AddCommand(newListsCmd(app))
	cmd.AddCommand(newListCmd(app))
	cmd.AddCommand(newOpenCmd(app))
	cmd.AddCommand(newLsCmd(app))
	cmd.AddCommand(newAddCmd(app))
	cmd.AddCommand(newDoneCmd(app))
	cmd.AddCommand(newEditCmd(app))
	cmd.AddCommand(newRmCmd(app))
	cmd.AddCommand(newMvCmd(app))
	cmd.AddCommand(newClearCmd(app))
	cmd.AddCommand(newSearchCmd(app))
	cmd.AddCommand(newAuthCmd(app))
	cmd.AddCommand(newConfigCmd(app))
	cmd.AddCommand(newTUICmd(app))
	return cmd
}

// setup loads the config and applies flag overrides on top of it.
func (a *App) setup(cmd *cobra.Command) error {
	dir := a.Dir
	if dir == "" {
		d, err := config.DefaultDir()
		if err != nil {
			return err
		}
		dir = d
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}
	for flag, key := range flagKeys {
		if !cmd.Flags().Changed(flag) {
			continue
		}
		if err := cfg.Set(key, *a.overrides[flag]); err != nil {
			return usagef("--%s: %v", flag, err)
		}
	}
	// config subcommands stay usable so a broken file can be repaired.
	if err := cfg.Validate(); err != nil && !underConfig(cmd) {
		return usagef("config: %v", err)
	}
	if err := ui.SetTheme(cfg.Theme); err != nil {
		return usagef("theme: %v", err)
	}
	if a.NoColor {
		ui.SetColorForcing(false, true)
	}
	a.cfg = cfg
	a.logger = logging.New(cmd.ErrOrStderr(), logging.Options{Level: cfg.LogLevel, Prefix: "tada"})
	a.creds = &auth.Credentials{Dir: cfg.Dir}
	a.state = jsonstore.New(cfg.Dir)
	a.out = cmd.OutOrStdout()
	return nil
}

func underConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Name() == "config" {
			return true
		}
	}
	return false
}

// Execute runs the command line and returns the exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	ui.Stdout, ui.Stderr = stdout, stderr
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	err := cmd.ExecuteContext(ctx)
	if err != nil {
		ui.Fail(err.Error())
		if errors.Is(err, auth.ErrNotLoggedIn) {
			ui.Hint("set TADA_TOKEN or run `tada auth login <token>`")
		}
	}
	return ExitCode(err)
}

// nargs wraps a cobra arity check so violations count as usage errors.
func nargs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return usageError{fmt.Errorf("%s: %w (usage: %s)", cmd.Name(), err, cmd.UseLine())}
		}
		return nil
	}
}
