package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/somnia-auditor/internal/model"
)

// Risk directions of a comparison.
const (
	DirectionImproved  = "improved"
	DirectionWorsened  = "worsened"
	DirectionUnchanged = "unchanged"
)

// compareTimeFormat is the timestamp layout used in comparison output.
const compareTimeFormat = "2006-01-02 15:04:05"

// Comparison is the difference between two audits of the same target.
type Comparison struct {
	// Target is the audited path.
	Target string `json:"target"`

	// Previous describes the older audit.
	Previous AuditMeta `json:"previous_audit"`

	// Current describes the newer audit.
	Current AuditMeta `json:"current_audit"`

	// NewFindings are present in Current but not in Previous.
	NewFindings []model.Finding `json:"new_findings"`

	// ResolvedFindings are present in Previous but not in Current.
	ResolvedFindings []model.Finding `json:"resolved_findings"`

	// UnchangedCount is the number of findings present in both.
	UnchangedCount int `json:"unchanged_count"`

	// Change holds the per-category deltas.
	Change Delta `json:"change"`
}

// AuditMeta is the part of an audit shown in a comparison.
type AuditMeta struct {
	ID          int64         `json:"id"`
	DateScanned time.Time     `json:"date_scanned"`
	Summary     model.Summary `json:"summary"`
}

// Delta is the per-category change from the previous to the current audit.
type Delta struct {
	Direction       string `json:"direction"`
	TotalIssues     int    `json:"total_issues"`
	Vulnerabilities int    `json:"vulnerabilities"`
	Inefficiencies  int    `json:"inefficiencies"`
	BestPractices   int    `json:"best_practices"`
}

// Compare diffs two audits by finding fingerprint.
// Fingerprints are treated as a multiset: a finding reported twice before and
// once now counts as one resolved finding.
func Compare(previous, current *model.AuditReport) *Comparison {
	c := &Comparison{
		Target:           current.Target,
		Previous:         metaOf(previous),
		Current:          metaOf(current),
		NewFindings:      []model.Finding{},
		ResolvedFindings: []model.Finding{},
	}

	prevCount := countFingerprints(previous.AllFindings())
	curCount := countFingerprints(current.AllFindings())

	for _, f := range current.AllFindings() {
		fp := fingerprintOf(f)
		if prevCount[fp] > 0 {
			prevCount[fp]--
			c.UnchangedCount++
			continue
		}
		c.NewFindings = append(c.NewFindings, f)
	}
	for _, f := range previous.AllFindings() {
		fp := fingerprintOf(f)
		if curCount[fp] > 0 {
			curCount[fp]--
			continue
		}
		c.ResolvedFindings = append(c.ResolvedFindings, f)
	}

	c.Change = delta(c.Previous.Summary, c.Current.Summary)
	return c
}

func metaOf(r *model.AuditReport) AuditMeta {
	return AuditMeta{ID: r.ID, DateScanned: r.DateScanned, Summary: r.Summary}
}

func fingerprintOf(f model.Finding) string {
	if f.Fingerprint != "" {
		return f.Fingerprint
	}
	return f.ComputeFingerprint()
}

func countFingerprints(findings []model.Finding) map[string]int {
	m := make(map[string]int, len(findings))
	for _, f := range findings {
		m[fingerprintOf(f)]++
	}
	return m
}

// delta weighs vulnerabilities well above inefficiencies and best practices
// when deciding the direction.
func delta(prev, cur model.Summary) Delta {
	d := Delta{
		TotalIssues:     cur.TotalIssues - prev.TotalIssues,
		Vulnerabilities: cur.Vulnerabilities - prev.Vulnerabilities,
		Inefficiencies:  cur.Inefficiencies - prev.Inefficiencies,
		BestPractices:   cur.BestPractices - prev.BestPractices,
	}
	score := func(s model.Summary) int {
		return s.Vulnerabilities*100 + s.Inefficiencies*10 + s.BestPractices
	}
	switch p, c := score(prev), score(cur); {
	case c < p:
		d.Direction = DirectionImproved
	case c > p:
		d.Direction = DirectionWorsened
	default:
		d.Direction = DirectionUnchanged
	}
	return d
}

// WriteComparisonJSON writes c as indented JSON.
func WriteComparisonJSON(w io.Writer, c *Comparison) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}

// WriteComparisonMarkdown writes c as a Markdown document.
func WriteComparisonMarkdown(w io.Writer, c *Comparison) error {
	md := markdown.NewMarkdown(w)

	md.H1("Audit Comparison: " + c.Target)
	md.PlainText("")
	md.H2("Summary")
	md.PlainText("")
	md.PlainTextf("%s %s", markdown.Bold("Risk Status:"), directionText(c.Change.Direction))
	md.PlainText("")

	p, cur, d := c.Previous.Summary, c.Current.Summary, c.Change
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Previous", "Current", "Change"},
		Rows: [][]string{
			{"Audit ID", strconv.FormatInt(c.Previous.ID, 10), strconv.FormatInt(c.Current.ID, 10), "-"},
			{"Date", c.Previous.DateScanned.Format(compareTimeFormat), c.Current.DateScanned.Format(compareTimeFormat), "-"},
			{"Vulnerabilities", strconv.Itoa(p.Vulnerabilities), strconv.Itoa(cur.Vulnerabilities), formatDelta(d.Vulnerabilities)},
			{"Inefficiencies", strconv.Itoa(p.Inefficiencies), strconv.Itoa(cur.Inefficiencies), formatDelta(d.Inefficiencies)},
			{"Best Practices", strconv.Itoa(p.BestPractices), strconv.Itoa(cur.BestPractices), formatDelta(d.BestPractices)},
			{"Total Issues", strconv.Itoa(p.TotalIssues), strconv.Itoa(cur.TotalIssues), formatDelta(d.TotalIssues)},
		},
	})
	md.PlainText("")

	if len(c.NewFindings) > 0 {
		md.H2f("New Findings (%d)", len(c.NewFindings))
		md.PlainText("")
		items := make([]string, 0, len(c.NewFindings))
		for _, f := range c.NewFindings {
			items = append(items, FindingLine(f))
		}
		md.BulletList(items...)
		md.PlainText("")
	}

	if len(c.ResolvedFindings) > 0 {
		md.H2f("Resolved Findings (%d)", len(c.ResolvedFindings))
		md.PlainText("")
		items := make([]string, 0, len(c.ResolvedFindings))
		for _, f := range c.ResolvedFindings {
			items = append(items, markdown.Strikethrough(FindingLine(f)))
		}
		md.BulletList(items...)
		md.PlainText("")
	}

	if c.UnchangedCount > 0 {
		md.HorizontalRule()
		md.PlainText("")
		md.PlainTextf("*%d findings unchanged*", c.UnchangedCount)
	}

	return md.Build()
}

// WriteComparisonText writes c in a plain terminal layout.
func WriteComparisonText(w io.Writer, c *Comparison) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Audit Comparison: %s\n", c.Target)
	sb.WriteString(strings.Repeat("=", 60))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "\nRisk Status: %s\n", directionText(c.Change.Direction))
	fmt.Fprintf(&sb, "\nPrevious audit: #%d %s\n", c.Previous.ID, c.Previous.DateScanned.Format(compareTimeFormat))
	fmt.Fprintf(&sb, "Current audit:  #%d %s\n", c.Current.ID, c.Current.DateScanned.Format(compareTimeFormat))

	p, cur, d := c.Previous.Summary, c.Current.Summary, c.Change
	sb.WriteString("\nFindings Summary:\n")
	fmt.Fprintf(&sb, "  %-16s  %-9s  %-9s  %s\n", "Category", "Previous", "Current", "Change")
	sb.WriteString("  " + strings.Repeat("-", 48) + "\n")
	rows := []struct {
		name          string
		prev, cur, dt int
	}{
		{"Vulnerabilities", p.Vulnerabilities, cur.Vulnerabilities, d.Vulnerabilities},
		{"Inefficiencies", p.Inefficiencies, cur.Inefficiencies, d.Inefficiencies},
		{"Best Practices", p.BestPractices, cur.BestPractices, d.BestPractices},
		{"Total", p.TotalIssues, cur.TotalIssues, d.TotalIssues},
	}
	for _, r := range rows {
		fmt.Fprintf(&sb, "  %-16s  %-9d  %-9d  %s\n", r.name, r.prev, r.cur, formatDelta(r.dt))
	}

	if len(c.NewFindings) > 0 {
		fmt.Fprintf(&sb, "\nNew Findings (%d):\n", len(c.NewFindings))
		for _, f := range c.NewFindings {
			fmt.Fprintf(&sb, "  [+] [%s] %s at %s\n", f.Severity, collapseSpace(f.Message), f.Location)
		}
	}
	if len(c.ResolvedFindings) > 0 {
		fmt.Fprintf(&sb, "\nResolved Findings (%d):\n", len(c.ResolvedFindings))
		for _, f := range c.ResolvedFindings {
			fmt.Fprintf(&sb, "  [-] [%s] %s at %s\n", f.Severity, collapseSpace(f.Message), f.Location)
		}
	}
	if c.UnchangedCount > 0 {
		fmt.Fprintf(&sb, "\nUnchanged: %d findings\n", c.UnchangedCount)
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func directionText(direction string) string {
	switch direction {
	case DirectionImproved:
		return "IMPROVED (fewer or less severe findings)"
	case DirectionWorsened:
		return "WORSENED (more or more severe findings)"
	default:
		return "UNCHANGED"
	}
}

func formatDelta(d int) string {
	if d > 0 {
		return "+" + strconv.Itoa(d)
	}
	return strconv.Itoa(d)
}
