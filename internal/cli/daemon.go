package cli

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/idilsaglam/tada/internal/backend/sqlstore"
	"github.com/idilsaglam/tada/internal/config"
	"github.com/idilsaglam/tada/internal/feed"
	"github.com/idilsaglam/tada/internal/logging"
	"github.com/idilsaglam/tada/internal/metrics"
	"github.com/idilsaglam/tada/internal/server"
	"github.com/idilsaglam/tada/internal/ui"
)

// NewDaemonCmd is the tadad root: the HTTP and websocket server the http
// driver talks to.
func NewDaemonCmd() *cobra.Command {
	var (
		dir       string
		noMetrics bool
		jsonLogs  bool
	)
	overrides := map[string]*string{}

	cmd := &cobra.Command{
		Use:           "tadad",
		Short:         "Serve shared todo lists over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError{err} })

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the server until interrupted",
		Long: `Run the server until interrupted.

The server trusts the caller. A bearer token is read as a JWT only to take
its "sub" claim as the user id: the signature and expiry are not verified.
Run tadad behind a proxy that authenticates requests, or on a trusted
network only.`,
		Args: nargs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
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
			for flag, key := range map[string]string{"listen": "listen_addr", "driver": "driver", "dsn": "dsn", "log-level": "log_level"} {
				if cmd.Flags().Changed(flag) {
					if err := cfg.Set(key, *overrides[flag]); err != nil {
						return usagef("--%s: %v", flag, err)
					}
				}
			}
			if cfg.Driver == config.DriverHTTP {
				return usagef("tadad needs a database driver (sqlite or postgres), not http")
			}
			if err := cfg.Validate(); err != nil {
				return usagef("config: %v", err)
			}
			return serveWith(cmd.Context(), cfg, cmd.ErrOrStderr(), !noMetrics, jsonLogs)
		},
	}
	f := serve.Flags()
	f.StringVar(&dir, "dir", "", "Config directory (default ~/.tada)")
	f.BoolVar(&noMetrics, "no-metrics", false, "Do not expose /metrics")
	f.BoolVar(&jsonLogs, "json-logs", false, "Log as JSON")
	for flag, help := range map[string]string{
		"listen":    "Address to listen on",
		"driver":    "Database driver (sqlite|postgres)",
		"dsn":       "Database path or connection string",
		"log-level": "Log level (debug|info|warn|error)",
	} {
		v := new(string)
		overrides[flag] = v
		f.StringVar(v, flag, "", help)
	}
	cmd.AddCommand(serve)
	return cmd
}

func serveWith(ctx context.Context, cfg *config.Config, logOut io.Writer, withMetrics, jsonLogs bool) error {
	logger := logging.New(logOut, logging.Options{Level: cfg.LogLevel, Prefix: "tadad", ReportTimestamp: true, JSON: jsonLogs})

	var (
		rec  metrics.Recorder = metrics.Nop{}
		opts server.Options
	)
	if withMetrics {
		prom := metrics.NewPrometheus()
		rec = prom
		opts.MetricsHandler = prom.Handler()
	}
	opts.Logger = logger
	opts.Metrics = rec

	hub := feed.NewHub(logger)
	hub.Instrument(rec)
	storeOpts := []sqlstore.Option{sqlstore.WithPublisher(hub), sqlstore.WithLogger(logger)}
	var (
		st  *sqlstore.Store
		err error
	)
	if cfg.Driver == config.DriverPostgres {
		st, err = sqlstore.OpenPostgres(ctx, cfg.DSN, storeOpts...)
	} else {
		st, err = sqlstore.OpenSQLite(ctx, cfg.DSN, storeOpts...)
	}
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	logger.Info("starting", "driver", cfg.Driver, "addr", cfg.ListenAddr, "metrics", withMetrics)
	logger.Warn("bearer tokens are not verified; the sub claim is trusted as is")
	err = server.New(st, hub, opts).Run(ctx, cfg.ListenAddr)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ExecuteDaemon runs tadad and returns the exit code.
func ExecuteDaemon(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	ui.Stdout, ui.Stderr = stdout, stderr
	cmd := NewDaemonCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	err := cmd.ExecuteContext(ctx)
	if err != nil {
		ui.Fail(strings.TrimSpace(err.Error()))
	}
	return ExitCode(err)
}
