package main

import (
	"context"
	"fmt"
	"io"
	"runtime/debug"
	"time"

	"github.com/nao1215/somnia-auditor/internal/analyzer"
	"github.com/nao1215/somnia-auditor/internal/config"
	"github.com/spf13/cobra"
)

// Version information set at build time via ldflags.
var (
	version = ""
	commit  = ""
	date    = ""
)

// toolVersionTimeout bounds each "--version" probe. slither imports
// crytic-compile on start, which can take a few seconds.
const toolVersionTimeout = 20 * time.Second

// getVersion returns version string.
// Priority: ldflags > debug.ReadBuildInfo > "(devel)"
func getVersion() string {
	if version != "" {
		return version
	}
	if buildInfo, ok := debug.ReadBuildInfo(); ok && buildInfo.Main.Version != "" {
		return buildInfo.Main.Version
	}
	return "(devel)"
}

// buildSetting returns a VCS setting from the build info, or "unknown".
func buildSetting(key string) string {
	if buildInfo, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range buildInfo.Settings {
			if setting.Key == key {
				return setting.Value
			}
		}
	}
	return "unknown"
}

func getCommit() string {
	if commit != "" {
		return commit
	}
	rev := buildSetting("vcs.revision")
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}

func getDate() string {
	if date != "" {
		return date
	}
	return buildSetting("vcs.time")
}

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	return newVersionCmd(analyzer.NewExecRunner())
}

func newVersionCmd(runner analyzer.CommandRunner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long: `Print the version, commit hash, and build date of somnia-auditor.

With --tools, also report the slither and solhint versions found on PATH.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "somnia-auditor version %s\n", getVersion())
			fmt.Fprintf(out, "  commit: %s\n", getCommit())
			fmt.Fprintf(out, "  built:  %s\n", getDate())

			tools, err := cmd.Flags().GetBool("tools")
			if err != nil {
				return err
			}
			if tools {
				ctx := cmd.Context()
				if ctx == nil {
					ctx = context.Background()
				}
				printToolVersions(ctx, out, runner)
			}
			return nil
		},
	}

	cmd.Flags().Bool("tools", false, "Also print the installed slither and solhint versions")

	return cmd
}

// printToolVersions prints one line per analysis tool.
// A tool that cannot be run is reported, not treated as an error.
func printToolVersions(ctx context.Context, out io.Writer, runner analyzer.CommandRunner) {
	for _, tool := range []string{config.DefaultSlitherBinary, config.DefaultSolhintBinary} {
		probeCtx, cancel := context.WithTimeout(ctx, toolVersionTimeout)
		v, err := analyzer.ToolVersion(probeCtx, runner, tool)
		cancel()
		if err != nil {
			v = "not available (" + err.Error() + ")"
		}
		fmt.Fprintf(out, "  %-8s %s\n", tool+":", v)
	}
}
