// Package database stores audit history in a local SQLite file.
//
// Every completed audit is saved as a JSON document together with its
// category totals, keyed by the audited target path. The compare command and
// the HTTP server read the history back to diff audits and serve old reports.
//
// The driver is modernc.org/sqlite, so the binary stays CGO-free.
package database
