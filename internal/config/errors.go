package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrNoTarget is returned when the audit path is empty.
	ErrNoTarget = errors.New("no target specified: provide a .sol file or a directory")

	// ErrInvalidTimeout is returned when the per-tool timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidJobs is returned when the number of parallel jobs is not positive.
	ErrInvalidJobs = errors.New("invalid jobs: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --sarif are given.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --sarif cannot be used together")

	// ErrEmptyDockerImage is returned when docker mode is on without an image.
	ErrEmptyDockerImage = errors.New("docker mode requires a non-empty image")

	// ErrInvalidIgnoreRule is returned when an ignore rule has neither rule nor path.
	ErrInvalidIgnoreRule = errors.New("ignore rule needs a rule id or a path")
)
