package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/nao1215/somnia-auditor/internal/audit"
	"github.com/nao1215/somnia-auditor/internal/config"
	"github.com/nao1215/somnia-auditor/internal/database"
	"github.com/nao1215/somnia-auditor/internal/log"
	"github.com/nao1215/somnia-auditor/internal/model"
	"github.com/nao1215/somnia-auditor/internal/report"
	"github.com/spf13/cobra"
)

// errConflictingRecursion is returned for --recursive together with --no-recursive.
var errConflictingRecursion = errors.New("--recursive and --no-recursive cannot be used together")

// NewAuditCmd creates the audit command.
func NewAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit [path]",
		Short: "Audit Solidity contracts with Slither and Solhint",
		Long: `Audit runs an offline audit of a .sol file, a directory or a project root.

Every discovered contract is analyzed by:
- Slither, for vulnerabilities and gas inefficiencies
- Solhint, for best practices and style

Dependency and build folders (node_modules, lib, out, cache, artifacts, ...)
are skipped unless --include-libs is given. The report is written to
audit-report-YYYYMMDD_HHMMSS.md unless -o is given.

The command exits with status 1 when no .sol files are found or when at
least one vulnerability is reported, so it can gate CI pipelines.

Examples:
  # Audit the current project
  somnia-auditor audit

  # Audit a single directory without recursion
  somnia-auditor audit contracts --no-recursive

  # Write a SARIF log for code scanning
  somnia-auditor audit --sarif -o results.sarif

  # Run the tools from a container and add an AI summary
  somnia-auditor audit --docker --ai-summary

Configuration file (.somnia-auditor.yaml) example:
  exclude: [mocks, test]
  slither:
    exclude_detectors: [naming-convention]
  ignore:
    - rule: reentrancy-events
      path: contracts/legacy
      reason: audited in 2024`,
		Args: cobra.MaximumNArgs(1),
		RunE: runAuditCmd,
	}

	// Discovery flags
	cmd.Flags().BoolP(config.FlagRecursive, "r", true,
		"Recursive directory scan")
	cmd.Flags().Bool("no-recursive", false,
		"Only audit the top level of a directory")
	cmd.Flags().Bool(config.FlagIncludeLibs, false,
		"Also audit library folders (node_modules, lib, .deps)")
	cmd.Flags().StringSlice("exclude", nil,
		"Extra directory names or relative path prefixes to skip (repeatable)")

	// Report flags
	cmd.Flags().StringP("output", "o", "",
		"Custom output file path for the report")
	cmd.Flags().BoolP("quiet", "q", false,
		"Suppress progress output")
	cmd.Flags().BoolP("json", "j", false,
		"Write the report as JSON (mutually exclusive with --sarif)")
	cmd.Flags().Bool("sarif", false,
		"Write the report as SARIF 2.1.0 (mutually exclusive with --json)")

	addToolFlags(cmd)

	return cmd
}

// runAuditCmd executes the audit command.
func runAuditCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildAuditConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := log.NewSecureLogger(cmd.ErrOrStderr(), cfg.Verbose)
	slog.SetDefault(logger)

	ctx, stop := signalContext(cmd)
	defer stop()

	return runAudit(ctx, cfg, cmd.OutOrStdout(), logger)
}

// signalContext returns the command context canceled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// buildAuditConfig creates a Config from the audit flags and the project
// configuration file.
func buildAuditConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	if len(args) > 0 {
		cfg.Target = args[0]
	}

	var err error
	flags := cmd.Flags()

	if cfg.Recursive, err = flags.GetBool(config.FlagRecursive); err != nil {
		return nil, err
	}
	noRecursive, err := flags.GetBool("no-recursive")
	if err != nil {
		return nil, err
	}
	if noRecursive {
		if flags.Changed(config.FlagRecursive) && cfg.Recursive {
			return nil, errConflictingRecursion
		}
		cfg.Recursive = false
	}

	if cfg.IncludeLibs, err = flags.GetBool(config.FlagIncludeLibs); err != nil {
		return nil, err
	}
	if cfg.Excludes, err = flags.GetStringSlice("exclude"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	if cfg.Quiet, err = flags.GetBool("quiet"); err != nil {
		return nil, err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.SARIFReport, err = flags.GetBool("sarif"); err != nil {
		return nil, err
	}

	if err := applyToolFlags(cmd, cfg); err != nil {
		return nil, err
	}
	if err := applyConfigFile(cmd, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runAudit performs the audit, writes the report file, stores the audit in
// the history database and prints the summary. It returns
// audit.ErrVulnerabilitiesFound when the report contains vulnerabilities.
func runAudit(ctx context.Context, cfg *config.Config, out io.Writer, logger *slog.Logger, opts ...audit.Option) error {
	// progress lines are shown relative to where the command runs
	cwd, err := os.Getwd()
	if err != nil {
		cwd = ""
	}
	auditOpts := []audit.Option{
		audit.WithLogger(logger),
		audit.WithProgress(progressPrinter(out, cwd, cfg.Quiet)),
	}
	auditor := audit.New(cfg, append(auditOpts, opts...)...)

	rep, err := auditor.Run(ctx, audit.RequestFromConfig(cfg))
	if err != nil {
		return err
	}

	// saved first so that the report file carries the history id
	if cfg.SaveToDB {
		if err := saveAudit(ctx, cfg.DBDir, rep, logger); err != nil {
			logger.Warn("failed to save audit history", "error", err)
		}
	}

	reportPath := cfg.ReportPath(rep.DateScanned)
	if err := writeReportFile(cfg.Format(), reportPath, rep); err != nil {
		return err
	}
	logger.Info("report written", "path", reportPath, "format", cfg.Format())

	if !cfg.Quiet {
		if _, err := report.NewSummaryWriter(out, report.WithReportPath(reportPath)).Write(rep); err != nil {
			return fmt.Errorf("failed to print summary: %w", err)
		}
	}

	if rep.Summary.Vulnerabilities > 0 {
		return fmt.Errorf("%d %w", rep.Summary.Vulnerabilities, audit.ErrVulnerabilitiesFound)
	}
	return nil
}

// progressPrinter prints the per-file progress lines with paths relative to
// base. Files outside base keep their full path. Quiet disables it.
func progressPrinter(out io.Writer, base string, quiet bool) audit.Progress {
	if quiet {
		return audit.Progress{}
	}
	return audit.Progress{
		Started: func(files []string) {
			fmt.Fprintf(out, "Scanning %d files...\n", len(files))
		},
		FileDone: func(result *model.FileResult, _ int) {
			fmt.Fprintf(out, "  - %s\n", model.RelativePath(base, result.Path))
			if result.HasErrors() {
				fmt.Fprintf(out, "    Errors in %s\n", filepath.Base(result.Path))
			}
		},
	}
}

// writeReportFile writes rep to path in the given format.
func writeReportFile(format config.ReportFormat, path string, rep *model.AuditReport) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Reports name vulnerable code paths, so only the owner may read them.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // user-chosen output path
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}

	w, err := report.NewFileWriter(format, f, getVersion())
	if err != nil {
		_ = f.Close()
		return err
	}
	if _, err := w.Write(rep); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	return f.Close()
}

// saveAudit stores rep in the history database under dbDir.
func saveAudit(ctx context.Context, dbDir string, rep *model.AuditReport, logger *slog.Logger) error {
	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	id, err := db.SaveAudit(ctx, rep)
	if err != nil {
		return err
	}
	logger.Debug("audit saved to history", "id", id, "target", rep.Target, "db", db.Path())
	return nil
}
