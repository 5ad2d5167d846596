// Package main provides the entry point for the somnia-auditor CLI.
//
// somnia-auditor audits Solidity contracts by running Slither and Solhint
// on every contract file and merging their findings into one categorized
// report: Vulnerabilities, Inefficiencies and Best Practices.
//
// Usage:
//
//	somnia-auditor audit [path]
//	somnia-auditor compare [path]
//	somnia-auditor serve
//
// See --help for all available options.
package main

func main() {
	Execute()
}
