package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default project configuration file name.
const DefaultConfigFile = ".somnia-auditor.yaml"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// File represents the structure of the .somnia-auditor.yaml file.
// Pointer fields distinguish "unset" from the zero value so that the file
// can turn a default off.
type File struct {
	Recursive   *bool         `yaml:"recursive,omitempty"`
	IncludeLibs bool          `yaml:"include_libs,omitempty"`
	Exclude     []string      `yaml:"exclude,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
	Jobs        int           `yaml:"jobs,omitempty"`
	Slither     SlitherFile   `yaml:"slither,omitempty"`
	Solhint     SolhintFile   `yaml:"solhint,omitempty"`
	Ignore      []IgnoreRule  `yaml:"ignore,omitempty"`
	Docker      DockerFile    `yaml:"docker,omitempty"`
	AI          AIFile        `yaml:"ai,omitempty"`
}

// SlitherFile is the slither section of the project file.
type SlitherFile struct {
	Binary           string   `yaml:"binary,omitempty"`
	Args             []string `yaml:"args,omitempty"`
	ExcludeDetectors []string `yaml:"exclude_detectors,omitempty"`
}

// SolhintFile is the solhint section of the project file.
type SolhintFile struct {
	Binary       string         `yaml:"binary,omitempty"`
	CreateConfig *bool          `yaml:"create_config,omitempty"`
	Rules        map[string]any `yaml:"rules,omitempty"`
}

// DockerFile is the docker section of the project file.
type DockerFile struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Image   string `yaml:"image,omitempty"`
}

// AIFile is the ai section of the project file.
// The API key is deliberately absent; it comes from the environment or a flag.
type AIFile struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Model   string `yaml:"model,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`
}

// LoadConfigFile loads the project configuration from a YAML file.
// If the file does not exist, it returns ErrConfigNotFound.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, err
	}
	return &cf, nil
}

// FindConfigFile searches for the configuration file in the following order:
// 1. If configPath is specified, use it directly
// 2. Look for .somnia-auditor.yaml in the current directory
// 3. Look for .somnia-auditor.yaml in the user's home directory
// 4. Look for config.yaml in the XDG config directory
//
// Returns the path to the configuration file if found, or empty string if not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	var candidates []string
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, DefaultConfigFile))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, DefaultConfigFile))
	}
	candidates = append(candidates, filepath.Join(XDGConfigDir(), "config.yaml"))

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// Flag names that the project file can also set. MergeFile consults them to
// let explicit flags win over file values.
const (
	FlagRecursive   = "recursive"
	FlagIncludeLibs = "include-libs"
	FlagTimeout     = "timeout"
	FlagJobs        = "jobs"
	FlagDocker      = "docker"
	FlagDockerImage = "docker-image"
	FlagAISummary   = "ai-summary"
	FlagAIModel     = "ai-model"
)

// MergeFile copies values from the project file into c for every option
// whose flag was not set explicitly. isSet reports whether a flag was given
// on the command line; nil means no flag was given. Exclude lists and ignore
// rules are additive.
func (c *Config) MergeFile(f *File, isSet func(flag string) bool) {
	if f == nil {
		return
	}
	if isSet == nil {
		isSet = func(string) bool { return false }
	}

	if f.Recursive != nil && !isSet(FlagRecursive) {
		c.Recursive = *f.Recursive
	}
	if f.IncludeLibs && !isSet(FlagIncludeLibs) {
		c.IncludeLibs = true
	}
	if f.Timeout > 0 && !isSet(FlagTimeout) {
		c.Timeout = f.Timeout
	}
	if f.Jobs > 0 && !isSet(FlagJobs) {
		c.Jobs = f.Jobs
	}
	c.Excludes = append(append([]string{}, f.Exclude...), c.Excludes...)

	if f.Slither.Binary != "" {
		c.Slither.Binary = f.Slither.Binary
	}
	c.Slither.Args = append(c.Slither.Args, f.Slither.Args...)
	c.Slither.ExcludeDetectors = append(c.Slither.ExcludeDetectors, f.Slither.ExcludeDetectors...)

	if f.Solhint.Binary != "" {
		c.Solhint.Binary = f.Solhint.Binary
	}
	if f.Solhint.CreateConfig != nil {
		c.Solhint.CreateConfig = *f.Solhint.CreateConfig
	}
	if len(f.Solhint.Rules) > 0 {
		if c.Solhint.Rules == nil {
			c.Solhint.Rules = make(map[string]any, len(f.Solhint.Rules))
		}
		for k, v := range f.Solhint.Rules {
			c.Solhint.Rules[k] = v
		}
	}

	c.IgnoreRules = append(c.IgnoreRules, f.Ignore...)

	if f.Docker.Enabled && !isSet(FlagDocker) {
		c.Docker = true
	}
	if f.Docker.Image != "" && !isSet(FlagDockerImage) {
		c.DockerImage = f.Docker.Image
	}

	if f.AI.Enabled && !isSet(FlagAISummary) {
		c.AISummary = true
	}
	if f.AI.Model != "" && !isSet(FlagAIModel) {
		c.AIModel = f.AI.Model
	}
	if f.AI.BaseURL != "" {
		c.AIBaseURL = f.AI.BaseURL
	}
}

// ResolveAPIKey returns the explicit key or the OPENAI_API_KEY value.
func (c *Config) ResolveAPIKey() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	return os.Getenv(APIKeyEnv)
}
