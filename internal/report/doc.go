// Package report renders audit results.
//
// MarkdownWriter produces the default audit report file. JSONWriter and
// SARIFWriter produce machine-readable output for CI systems, and
// SummaryWriter prints the short block shown on the terminal after an audit.
// The compare helpers diff two stored audits by finding fingerprint.
//
// NewFileWriter picks the Writer for a report file format.
package report
