package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"vidtube/cmd/internal/app"
	"vidtube/cmd/internal/errutil"
)

type serveOptions struct {
	addr      string
	logLevel  string
	logFormat string
	migrate   bool
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "listen address (overrides VIDTUBE_HTTP_ADDR)")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	cmd.Flags().StringVar(&opts.logFormat, "log-format", "", "log format: json or pretty")
	cmd.Flags().BoolVar(&opts.migrate, "migrate", false, "apply database migrations before serving")

	return cmd
}

// serveConfig applies flag overrides to the environment config.
func serveConfig(opts serveOptions) app.Config {
	cfg := app.LoadConfig()
	if opts.addr != "" {
		cfg.HTTPAddr = opts.addr
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.LogFormat = opts.logFormat
	}
	if opts.migrate {
		cfg.DBAutoMigrate = true
	}
	return cfg
}

func runServe(cmd *cobra.Command, opts serveOptions) error {
	cfg := serveConfig(opts)
	log := app.NewLogger(cfg.LogLevel, cfg.LogFormat, cmd.OutOrStdout())

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		errutil.LogError(log, "server.init.fail", err)
		return err
	}

	return a.Run(ctx)
}
