package main

import (
	"errors"
	"fmt"

	"github.com/nao1215/somnia-auditor/internal/config"
	"github.com/spf13/cobra"
)

// addToolFlags registers the flags shared by audit and serve: how the tools
// run, the AI summary and the history database.
func addToolFlags(cmd *cobra.Command) {
	// Tool execution flags
	cmd.Flags().Int(config.FlagJobs, config.DefaultJobs,
		"Number of files analyzed concurrently")
	cmd.Flags().DurationP(config.FlagTimeout, "t", config.DefaultToolTimeout,
		"Timeout for each Slither or Solhint run")
	cmd.Flags().Bool(config.FlagDocker, false,
		"Run Slither and Solhint inside a Docker container")
	cmd.Flags().String(config.FlagDockerImage, config.DefaultDockerImage,
		"Docker image providing slither and solhint")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: "+config.DefaultConfigFile+" in current or home directory)")

	// AI summary flags
	cmd.Flags().Bool(config.FlagAISummary, false,
		"Add an AI-written summary section (requires an OpenAI API key)")
	cmd.Flags().String(config.FlagAIModel, config.DefaultAIModel,
		"Chat model used for the AI summary")
	cmd.Flags().String("api-key", "",
		"OpenAI API key (default: $"+config.APIKeyEnv+")")

	// History flags
	cmd.Flags().Bool("no-history", false,
		"Do not save the audit to the history database")
}

// applyToolFlags copies the flags registered by addToolFlags into cfg.
func applyToolFlags(cmd *cobra.Command, cfg *config.Config) error {
	var err error
	flags := cmd.Flags()

	if cfg.Jobs, err = flags.GetInt(config.FlagJobs); err != nil {
		return err
	}
	if cfg.Timeout, err = flags.GetDuration(config.FlagTimeout); err != nil {
		return err
	}
	if cfg.Docker, err = flags.GetBool(config.FlagDocker); err != nil {
		return err
	}
	if cfg.DockerImage, err = flags.GetString(config.FlagDockerImage); err != nil {
		return err
	}
	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return err
	}
	if cfg.AISummary, err = flags.GetBool(config.FlagAISummary); err != nil {
		return err
	}
	if cfg.AIModel, err = flags.GetString(config.FlagAIModel); err != nil {
		return err
	}
	if cfg.APIKey, err = flags.GetString("api-key"); err != nil {
		return err
	}

	noHistory, err := flags.GetBool("no-history")
	if err != nil {
		return err
	}
	cfg.SaveToDB = !noHistory
	cfg.DBDir = getDataDir(cmd)
	cfg.Verbose = getVerboseFlag(cmd)

	return nil
}

// applyConfigFile merges the project configuration file into cfg.
// An explicit --config path must exist; otherwise a missing file is fine.
// Flags given on the command line win over file values.
func applyConfigFile(cmd *cobra.Command, cfg *config.Config) error {
	explicit := cfg.ConfigFilePath != ""
	path := config.FindConfigFile(cfg.ConfigFilePath)
	if path == "" {
		if explicit {
			return fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
		}
		return nil
	}

	f, err := config.LoadConfigFile(path)
	if err != nil {
		if errors.Is(err, config.ErrConfigNotFound) && !explicit {
			return nil
		}
		return fmt.Errorf("failed to load config file %s: %w", path, err)
	}

	cfg.MergeFile(f, flagChanged(cmd))
	return nil
}

// flagChanged reports whether a flag was given on the command line.
// --no-recursive counts as setting --recursive.
func flagChanged(cmd *cobra.Command) func(string) bool {
	return func(name string) bool {
		if name == config.FlagRecursive && cmd.Flags().Changed("no-recursive") {
			return true
		}
		return cmd.Flags().Changed(name)
	}
}
