// Package analyzer wraps the external Solidity analysis tools.
//
// Slither is the vulnerability scanner and Solhint the linter. Both are run
// as subprocesses through a CommandRunner, so the same adapters work on the
// host (ExecRunner) and inside a container (see package docker). Tool
// failures are reported as data in model.ToolResult.Error rather than as Go
// errors, because one broken file must not stop an audit.
package analyzer
