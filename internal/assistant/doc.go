// Package assistant produces the optional AI summary of an audit.
//
// The summary is requested from an OpenAI compatible chat completions
// endpoint. A missing key or a failed request never fails the audit: the
// returned text explains why the summary is unavailable instead.
package assistant
