// Package model defines the core data structures used throughout somnia-auditor.
//
// This package contains the following main types:
//   - Finding: A single issue reported by an external analyzer
//   - ToolResult: The findings (or failure) of one analyzer on one file
//   - FileResult: Slither and Solhint results for one Solidity file
//   - AuditReport: The complete result of an audit run
//   - Summary: Category totals used by the report and the exit code
//
// Models live in their own package because analyzer, pipeline, report and
// database all exchange them. They serialize to JSON for the JSON report
// and for history storage.
package model
