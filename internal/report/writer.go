package report

import (
	"fmt"
	"io"

	"github.com/nao1215/somnia-auditor/internal/config"
	"github.com/nao1215/somnia-auditor/internal/model"
)

// Writer renders an audit report to some output.
// Implementations return the number of bytes written.
type Writer interface {
	Write(report *model.AuditReport) (int, error)
}

// baseWriter holds the destination shared by all writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// NewFileWriter returns the writer used for the report file of the given
// format. version is recorded in the JSON and SARIF outputs.
func NewFileWriter(format config.ReportFormat, output io.Writer, version string) (Writer, error) {
	switch format {
	case config.FormatMarkdown, "":
		return NewMarkdownWriter(output), nil
	case config.FormatJSON:
		return NewFullJSONWriter(output, version, WithPrettyPrint()), nil
	case config.FormatSARIF:
		return NewSARIFWriter(output, version), nil
	default:
		return nil, fmt.Errorf("unsupported report format %q", format)
	}
}
