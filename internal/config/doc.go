// Package config provides configuration structures and utilities for
// somnia-auditor. It defines the options of an audit run (discovery, tool
// invocation, sandboxing, report output and history) and the optional
// .somnia-auditor.yaml project file that supplies defaults for them.
package config
