package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/idilsaglam/tada/internal/config"
	"github.com/idilsaglam/tada/internal/ui"
)

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and write ~/.tada/config.toml",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the merged configuration",
		Args:  nargs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, key := range config.Keys() {
				v, _ := app.cfg.Get(key)
				fmt.Fprintf(app.out, "%-16s %s\n", key, v)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Print one key",
		Args:  nargs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := app.cfg.Get(args[0])
			if err != nil {
				return usageError{err}
			}
			fmt.Fprintln(app.out, v)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Save one key to the config file",
		Args:  nargs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Start from the file alone so env and flag overrides are not persisted.
			file, err := config.LoadFile(app.cfg.Dir)
			if err != nil {
				return err
			}
			if err := file.Set(args[0], args[1]); err != nil {
				return usageError{err}
			}
			if err := file.Validate(); err != nil {
				return usageError{err}
			}
			if err := file.Save(); err != nil {
				return err
			}
			ui.OK(fmt.Sprintf("%s = %s", args[0], args[1]))
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Args:  nargs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(app.out, app.cfg.Path())
			return nil
		},
	})
	return cmd
}
