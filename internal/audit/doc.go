// Package audit runs a complete audit of a Solidity target.
//
// An Auditor discovers the .sol files of a target, runs each one through the
// analysis pipeline (Slither, Solhint, suppression) with bounded concurrency,
// optionally asks the assistant for a summary, and returns the finished
// model.AuditReport. Both the CLI and the HTTP server drive audits through it.
package audit
