package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/nao1215/somnia-auditor/internal/audit"
	"github.com/nao1215/somnia-auditor/internal/config"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for somnia-auditor.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "somnia-auditor",
		Short: "Smart contract auditing tool for Solidity projects",
		Long: `somnia-auditor audits Solidity smart contracts offline.

It runs Slither (vulnerability scanner) and Solhint (linter) on every .sol
file of a project and writes one report that groups the findings into
Vulnerabilities, Inefficiencies and Best Practices.

Both tools must be installed on the host, or use --docker to run them from
a container image.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().String("data-dir", "",
		"Directory of the audit history database (default: "+config.XDGDataDir()+")")

	cmd.AddCommand(NewAuditCmd())
	cmd.AddCommand(NewCompareCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command and exits with status 1 on any error,
// including an audit that found vulnerabilities.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		if msg := errorMessage(err); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(1)
	}
}

// errorMessage returns the text printed for err. Vulnerabilities are already
// reported by the summary, so they print nothing.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, audit.ErrVulnerabilitiesFound):
		return ""
	case errors.Is(err, audit.ErrNoSolidityFiles):
		return "No .sol files found."
	default:
		return err.Error()
	}
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// getDataDir returns --data-dir, or the XDG data directory when unset.
func getDataDir(cmd *cobra.Command) string {
	dir, err := cmd.Flags().GetString("data-dir")
	if err != nil {
		dir, err = cmd.Root().PersistentFlags().GetString("data-dir")
		if err != nil {
			dir = ""
		}
	}
	if dir == "" {
		return config.XDGDataDir()
	}
	return dir
}
