// Package server exposes audits over a small JSON HTTP API.
//
// The API is meant for local tooling such as editor plugins and CI helpers,
// so it binds to the loopback interface by default. Audits run through the
// same audit.Auditor as the CLI and are stored in the history database.
package server
