package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nao1215/somnia-auditor/internal/analyzer"
	"github.com/nao1215/somnia-auditor/internal/config"
	"github.com/spf13/cobra"
)

//go:embed templates/somnia-auditor.yaml
var configTemplate embed.FS

// configFileName is the default configuration file name.
const configFileName = config.DefaultConfigFile

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new somnia-auditor configuration file",
		Long: `Initialize creates a new .somnia-auditor.yaml configuration file in the current directory.

The generated file includes:
- Default discovery settings and tool timeouts
- Commented examples for Slither detectors and Solhint rules
- Commented examples for ignore rules

With --solhint, a default .solhint.json is written next to it as well.

Examples:
  # Create .somnia-auditor.yaml in current directory
  somnia-auditor init

  # Create config file at a specific path
  somnia-auditor init -o configs/audit.yaml

  # Also write .solhint.json, overwriting existing files
  somnia-auditor init --solhint -f`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", configFileName,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing files")
	cmd.Flags().Bool("solhint", false,
		"Also write the default "+analyzer.SolhintConfigFile)

	return cmd
}

// initFile is a file written by init.
type initFile struct {
	path    string
	content []byte
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}
	withSolhint, err := cmd.Flags().GetBool("solhint")
	if err != nil {
		return err
	}

	content, err := configTemplate.ReadFile("templates/somnia-auditor.yaml")
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	files := []initFile{{outputPath, content}}
	if withSolhint {
		solhint, err := analyzer.MarshalSolhintConfig(analyzer.DefaultSolhintConfig())
		if err != nil {
			return err
		}
		solhintPath := filepath.Join(filepath.Dir(outputPath), analyzer.SolhintConfigFile)
		files = append(files, initFile{solhintPath, solhint})
	}

	// Check every file first so that nothing is written on conflict
	if !force {
		for _, f := range files {
			if _, err := os.Stat(f.path); err == nil {
				return fmt.Errorf("file already exists: %s (use -f to overwrite)", f.path)
			}
		}
	}

	out := cmd.OutOrStdout()
	for _, f := range files {
		if err := writeConfigFile(f.path, f.content); err != nil {
			return err
		}
		fmt.Fprintf(out, "Created configuration file: %s\n", f.path)
	}

	fmt.Fprintln(out, "\nEdit this file to configure project-specific settings such as:")
	fmt.Fprintln(out, "  - Folders to exclude from the audit")
	fmt.Fprintln(out, "  - Slither detectors to skip")
	fmt.Fprintln(out, "  - Accepted findings with a documented reason")

	return nil
}

// writeConfigFile writes content to path, creating parent directories.
func writeConfigFile(path string, content []byte) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, content, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
