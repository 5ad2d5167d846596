package main

import (
	"fmt"
	"log/slog"

	"github.com/nao1215/somnia-auditor/internal/audit"
	"github.com/nao1215/somnia-auditor/internal/config"
	"github.com/nao1215/somnia-auditor/internal/database"
	"github.com/nao1215/somnia-auditor/internal/log"
	"github.com/nao1215/somnia-auditor/internal/server"
	"github.com/spf13/cobra"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the audit API over HTTP",
		Long: `Serve exposes audits over a local JSON HTTP API.

Endpoints:
  POST /audits                 run an audit: {"path": "...", "recursive": true, "include_libs": false}
  GET  /audits                 list audited paths
  GET  /audits?target=<path>   list the audit history of a path
  GET  /audits/{id}            full JSON report
  GET  /audits/{id}/report.md  Markdown report
  GET  /audits/{id}/report.sarif SARIF log
  GET  /healthz                health check

The API runs tools on paths of this machine, so it listens on the loopback
interface by default.

Examples:
  # Serve on 127.0.0.1:9001
  somnia-auditor serve

  # Run tools in Docker and allow two audits at once
  somnia-auditor serve --docker --max-audits 2`,
		Args: cobra.NoArgs,
		RunE: runServeCmd,
	}

	cmd.Flags().String("addr", config.DefaultServeAddress,
		"Listen address")
	cmd.Flags().Int("max-audits", 1,
		"Number of audits that may run at the same time")
	cmd.Flags().Bool("log-json", false,
		"Write logs as JSON lines for log collectors")

	addToolFlags(cmd)

	return cmd
}

// runServeCmd executes the serve command.
func runServeCmd(cmd *cobra.Command, _ []string) error {
	addr, err := cmd.Flags().GetString("addr")
	if err != nil {
		return err
	}
	maxAudits, err := cmd.Flags().GetInt("max-audits")
	if err != nil {
		return err
	}
	logJSON, err := cmd.Flags().GetBool("log-json")
	if err != nil {
		return err
	}

	cfg := config.NewConfig()
	if err := applyToolFlags(cmd, cfg); err != nil {
		return err
	}
	if err := applyConfigFile(cmd, cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := log.NewSecureLogger(cmd.ErrOrStderr(), cfg.Verbose)
	if logJSON {
		logger = log.NewSecureJSONLogger(cmd.ErrOrStderr(), cfg.Verbose)
	}
	slog.SetDefault(logger)

	var store server.Store
	if cfg.SaveToDB {
		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		store = db
	}

	srv := server.New(
		audit.New(cfg, audit.WithLogger(logger)),
		store,
		server.WithLogger(logger),
		server.WithVersion(getVersion()),
		server.WithMaxConcurrentAudits(maxAudits),
	)

	ctx, stop := signalContext(cmd)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Serving audit API on http://%s\n", addr)
	return srv.ListenAndServe(ctx, addr)
}
