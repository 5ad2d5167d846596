package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "somnia-auditor"

	// DefaultToolTimeout bounds a single Slither or Solhint run.
	// Slither compiles the contract first, which dominates the runtime on
	// projects with many imports.
	DefaultToolTimeout = 5 * time.Minute

	// DefaultJobs keeps files strictly sequential.
	DefaultJobs = 1

	// DefaultDockerImage ships both slither and solhint.
	DefaultDockerImage = "trailofbits/eth-security-toolbox"

	// DefaultAIModel is the chat model used for the AI summary.
	DefaultAIModel = "gpt-4o-mini"

	// DefaultSlitherBinary is the executable name of the vulnerability scanner.
	DefaultSlitherBinary = "slither"

	// DefaultSolhintBinary is the executable name of the linter.
	DefaultSolhintBinary = "solhint"

	// DefaultServeAddress is the listen address of the serve command.
	DefaultServeAddress = "127.0.0.1:9001"

	// APIKeyEnv is the environment variable holding the OpenAI API key.
	APIKeyEnv = "OPENAI_API_KEY"
)

// ReportFormat selects the report writer.
type ReportFormat string

const (
	// FormatMarkdown is the default human-readable report.
	FormatMarkdown ReportFormat = "markdown"
	// FormatJSON is the full report as JSON.
	FormatJSON ReportFormat = "json"
	// FormatSARIF is a SARIF 2.1.0 log for code scanning integrations.
	FormatSARIF ReportFormat = "sarif"
)

// Extension returns the file extension, without dot, for the format.
func (f ReportFormat) Extension() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatSARIF:
		return "sarif"
	default:
		return "md"
	}
}

// Config holds all options of an audit run.
// It is populated from CLI flags, optionally merged with the project file,
// and passed down explicitly rather than kept as global state.
type Config struct {
	// Target is the file or directory to audit.
	Target string

	// Recursive walks subdirectories when Target is a directory.
	Recursive bool

	// IncludeLibs re-admits library folders (node_modules, lib, .deps).
	IncludeLibs bool

	// Excludes are extra directory names or relative path prefixes to skip.
	Excludes []string

	// Jobs is the number of files analyzed concurrently.
	Jobs int

	// Timeout bounds each individual tool invocation.
	Timeout time.Duration

	// ReportFile is where the report is written. Empty means a timestamped
	// name in the working directory.
	ReportFile string

	// Quiet suppresses progress output on stdout.
	Quiet bool

	// Verbose enables debug logging.
	Verbose bool

	// JSONReport writes the report as JSON. Mutually exclusive with SARIFReport.
	JSONReport bool

	// SARIFReport writes the report as SARIF 2.1.0.
	SARIFReport bool

	// Docker runs both tools inside a container instead of on the host.
	Docker bool

	// DockerImage is the image used when Docker is set.
	DockerImage string

	// AISummary requests an AI-written summary section.
	AISummary bool

	// AIModel is the chat model for the summary.
	AIModel string

	// AIBaseURL overrides the OpenAI API endpoint.
	AIBaseURL string

	// APIKey is the OpenAI API key. Falls back to OPENAI_API_KEY.
	APIKey string

	// SaveToDB stores the audit in the history database.
	SaveToDB bool

	// DBDir is the directory holding the history database.
	DBDir string

	// ConfigFilePath is the explicit project file path given by --config.
	ConfigFilePath string

	// Slither holds vulnerability scanner options.
	Slither SlitherOptions

	// Solhint holds linter options.
	Solhint SolhintOptions

	// IgnoreRules drop matching findings from the report.
	IgnoreRules []IgnoreRule
}

// SlitherOptions configures the vulnerability scanner invocation.
type SlitherOptions struct {
	// Binary is the executable name or path.
	Binary string
	// Args are appended to every invocation.
	Args []string
	// ExcludeDetectors are passed as --exclude.
	ExcludeDetectors []string
}

// SolhintOptions configures the linter invocation.
type SolhintOptions struct {
	// Binary is the executable name or path.
	Binary string
	// CreateConfig writes a default .solhint.json when none is found.
	CreateConfig bool
	// Rules override entries of the default rule set.
	Rules map[string]any
}

// IgnoreRule suppresses findings by rule id, path prefix or both.
type IgnoreRule struct {
	// Rule is the detector or rule id. Empty matches every rule.
	Rule string `yaml:"rule,omitempty" json:"rule,omitempty"`
	// Path is a slash-separated path prefix relative to the target. Empty
	// matches every file.
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
	// Reason documents why the finding is accepted.
	Reason string `yaml:"reason,omitempty" json:"reason,omitempty"`
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Target:      ".",
		Recursive:   true,
		Jobs:        DefaultJobs,
		Timeout:     DefaultToolTimeout,
		DockerImage: DefaultDockerImage,
		AIModel:     DefaultAIModel,
		SaveToDB:    true,
		DBDir:       XDGDataDir(),
		Slither: SlitherOptions{
			Binary: DefaultSlitherBinary,
		},
		Solhint: SolhintOptions{
			Binary:       DefaultSolhintBinary,
			CreateConfig: true,
		},
	}
}

// Format returns the report format selected by the flags.
func (c *Config) Format() ReportFormat {
	switch {
	case c.JSONReport:
		return FormatJSON
	case c.SARIFReport:
		return FormatSARIF
	default:
		return FormatMarkdown
	}
}

// ReportPath returns ReportFile, or the default timestamped file name for
// the selected format when it is empty.
func (c *Config) ReportPath(now time.Time) string {
	if c.ReportFile != "" {
		return c.ReportFile
	}
	return DefaultReportName(c.Format(), now)
}

// DefaultReportName returns audit-report-YYYYMMDD_HHMMSS.<ext>.
func DefaultReportName(format ReportFormat, now time.Time) string {
	return fmt.Sprintf("audit-report-%s.%s", now.Format("20060102_150405"), format.Extension())
}

// Mode describes how the tools are executed, for the report header.
func (c *Config) Mode() string {
	if c.Docker {
		return fmt.Sprintf("Docker (%s)", c.DockerImage)
	}
	return "Offline (Slither, Solhint)"
}

// XDGDataDir returns the XDG data directory for somnia-auditor.
// On Linux: ~/.local/share/somnia-auditor
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for somnia-auditor.
// On Linux: ~/.config/somnia-auditor
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns the first problem found.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Target) == "" {
		return ErrNoTarget
	}

	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.Jobs <= 0 {
		return ErrInvalidJobs
	}

	if c.JSONReport && c.SARIFReport {
		return ErrConflictingReportFormats
	}

	if c.Docker && strings.TrimSpace(c.DockerImage) == "" {
		return ErrEmptyDockerImage
	}

	for i, r := range c.IgnoreRules {
		if r.Rule == "" && r.Path == "" {
			return fmt.Errorf("ignore rule %d: %w", i+1, ErrInvalidIgnoreRule)
		}
	}

	return nil
}
