package report

import (
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/nao1215/somnia-auditor/internal/model"
)

// HeaderTimeFormat is the timestamp layout of the report title.
const HeaderTimeFormat = "2006-01-02 15:04:05"

// MarkdownWriter outputs the audit report as Markdown.
// This is the default report format written next to the audited project.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the full report in Markdown format.
func (w *MarkdownWriter) Write(report *model.AuditReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	for _, fr := range report.Results {
		if fr == nil {
			continue
		}
		w.writeFile(md, report.Target, fr)
	}
	w.writeAISummary(md, report)
	w.writeSummary(md, report)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.AuditReport) {
	md.H1("Audit Report - " + report.DateScanned.Format(HeaderTimeFormat))
	md.PlainText("")

	files := make([]string, 0, len(report.Files))
	for _, f := range report.Files {
		files = append(files, model.RelativePath(report.Target, f))
	}
	md.PlainTextf("%s: %d (%s)", markdown.Bold("Files Scanned"), len(report.Files), strings.Join(files, ", "))
	md.PlainText("")
	md.PlainTextf("%s: %s", markdown.Bold("Mode"), report.Mode)
	md.PlainText("")
}

// writeFile writes the per-file section. Slither categories are skipped when
// Slither failed, and Solhint only ever contributes best practices.
func (w *MarkdownWriter) writeFile(md *markdown.Markdown, target string, fr *model.FileResult) {
	md.H2(fr.DisplayPath(target))
	md.PlainText("")

	if fr.Error != "" {
		md.H3("Pipeline Error")
		md.PlainText(fr.Error)
		md.PlainText("")
	}

	if s := fr.Slither; s != nil {
		switch {
		case s.HasError():
			md.H3("Slither Error")
			md.PlainText(s.Error)
			md.PlainText("")
		default:
			if s.Warning != "" {
				md.H3("Slither Warning")
				md.PlainText(s.Warning)
				md.PlainText("")
			}
			for _, c := range model.Categories {
				w.writeFindings(md, c.Title(), s.Findings(c))
			}
		}
	}

	if s := fr.Solhint; s != nil {
		if s.HasError() {
			md.H3("Solhint Error")
			md.PlainText(s.Error)
			md.PlainText("")
		} else {
			w.writeFindings(md, "Best Practices (Solhint)", s.BestPractices)
		}
	}
}

func (w *MarkdownWriter) writeFindings(md *markdown.Markdown, title string, findings []model.Finding) {
	if len(findings) == 0 {
		return
	}
	md.H3(title)
	items := make([]string, 0, len(findings))
	for _, f := range findings {
		items = append(items, FindingLine(f))
	}
	md.BulletList(items...)
	md.PlainText("")
}

// FindingLine renders a finding as "**Severity**: message at location".
// Runs of whitespace in the message are collapsed so multi-line detector
// descriptions stay on one bullet.
func FindingLine(f model.Finding) string {
	return markdown.Bold(f.Severity) + ": " + collapseSpace(f.Message) + " at " + f.Location
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func (w *MarkdownWriter) writeAISummary(md *markdown.Markdown, report *model.AuditReport) {
	if strings.TrimSpace(report.AISummary) == "" {
		return
	}
	md.H2("AI Summary")
	md.PlainText("")
	md.PlainText(strings.TrimSpace(report.AISummary))
	md.PlainText("")
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.AuditReport) {
	s := report.Summary

	md.H2("Summary")
	md.BulletList(SummaryLines(s)...)
	md.PlainText("")

	if s.HasFindings() {
		w.writePieChart(md, s)
	}
	w.writeAlert(md, s)
}

// SummaryLines returns the four summary counts as "Label: N" lines.
func SummaryLines(s model.Summary) []string {
	return []string{
		"Total Issues: " + strconv.Itoa(s.TotalIssues),
		"Vulnerabilities: " + strconv.Itoa(s.Vulnerabilities),
		"Inefficiencies: " + strconv.Itoa(s.Inefficiencies),
		"Best Practices: " + strconv.Itoa(s.BestPractices),
	}
}

func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, s model.Summary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Findings by Category"),
		piechart.WithShowData(true),
	)

	for _, c := range model.Categories {
		if n := s.Count(c); n > 0 {
			chart.LabelAndIntValue(c.Title(), uint64(n))
		}
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, s model.Summary) {
	switch {
	case s.Vulnerabilities > 0:
		md.Cautionf("%d vulnerability finding(s) need review before deployment.", s.Vulnerabilities)
	case s.FilesWithErrors > 0:
		md.Importantf("Analysis failed for %d file(s). Results may be incomplete.", s.FilesWithErrors)
	case s.Inefficiencies > 0:
		md.Warningf("No vulnerabilities detected, but %d gas inefficiency finding(s) were reported.", s.Inefficiencies)
	case s.BestPractices > 0:
		md.Note("Only best practice findings detected.")
	default:
		md.Tip("No issues detected.")
	}
	md.PlainText("")
}
