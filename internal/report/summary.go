package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/nao1215/somnia-auditor/internal/model"
)

// SummaryWriter prints the short "Audit Summary:" block shown after an audit.
// Styling is applied through a lipgloss renderer bound to the output, so
// colors are dropped automatically when the output is not a terminal.
type SummaryWriter struct {
	baseWriter

	reportPath string

	title    lipgloss.Style
	line     lipgloss.Style
	alarming lipgloss.Style
	clean    lipgloss.Style
	muted    lipgloss.Style
}

// SummaryWriterOption configures a SummaryWriter.
type SummaryWriterOption func(*SummaryWriter)

// WithReportPath adds a "Report saved to" line.
func WithReportPath(path string) SummaryWriterOption {
	return func(w *SummaryWriter) {
		w.reportPath = path
	}
}

// NewSummaryWriter creates a SummaryWriter that outputs to the given writer.
func NewSummaryWriter(output io.Writer, opts ...SummaryWriterOption) *SummaryWriter {
	r := lipgloss.NewRenderer(output)
	w := &SummaryWriter{
		baseWriter: newBaseWriter(output),
		title:      r.NewStyle().Bold(true),
		line:       r.NewStyle(),
		alarming:   r.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true),
		clean:      r.NewStyle().Foreground(lipgloss.Color("#4CAF50")),
		muted:      r.NewStyle().Foreground(lipgloss.Color("#888888")),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write prints the summary of report.
func (w *SummaryWriter) Write(report *model.AuditReport) (int, error) {
	s := report.Summary
	lines := SummaryLines(s)

	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(w.title.Render("Audit Summary:"))
	sb.WriteString("\n")
	for i, l := range lines {
		style := w.line
		if i == 1 {
			// vulnerabilities decide the exit code, so they get a color either way
			if s.Vulnerabilities > 0 {
				style = w.alarming
			} else {
				style = w.clean
			}
		}
		sb.WriteString(style.Render("- " + l))
		sb.WriteString("\n")
	}
	if s.FilesWithErrors > 0 {
		sb.WriteString(w.alarming.Render(fmt.Sprintf("- Files With Errors: %d", s.FilesWithErrors)))
		sb.WriteString("\n")
	}
	if w.reportPath != "" {
		sb.WriteString(w.muted.Render("- Report saved to: " + w.reportPath))
		sb.WriteString("\n")
	}

	return io.WriteString(w.output, sb.String())
}
