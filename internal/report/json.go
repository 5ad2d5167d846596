package report

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/nao1215/somnia-auditor/internal/model"
)

// JSONWriter outputs the bare audit report as JSON.
// HTML escaping is off because slither messages quote Solidity source,
// which is full of "<", ">" and "&".
type JSONWriter struct {
	baseWriter
	pretty bool
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithPrettyPrint indents the output by two spaces.
func WithPrettyPrint() JSONWriterOption {
	return func(w *JSONWriter) {
		w.pretty = true
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the report followed by a newline.
func (w *JSONWriter) Write(report *model.AuditReport) (int, error) {
	return w.encode(report)
}

func (w *JSONWriter) encode(v any) (int, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if w.pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return 0, err
	}
	return w.output.Write(buf.Bytes())
}

// JSONReport is the document written by --json and served by the API:
// the audit plus the version of the tool that produced it.
type JSONReport struct {
	Version string             `json:"version"`
	Report  *model.AuditReport `json:"report"`
}

// FullJSONWriter writes JSONReport documents.
type FullJSONWriter struct {
	*JSONWriter
	version string
}

// NewFullJSONWriter creates a writer that stamps every report with version.
func NewFullJSONWriter(output io.Writer, version string, opts ...JSONWriterOption) *FullJSONWriter {
	return &FullJSONWriter{
		JSONWriter: NewJSONWriter(output, opts...),
		version:    version,
	}
}

// Write outputs the report wrapped in a JSONReport.
func (w *FullJSONWriter) Write(report *model.AuditReport) (int, error) {
	return w.encode(&JSONReport{Version: w.version, Report: report})
}
