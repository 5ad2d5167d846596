package model

import (
	"path/filepath"
	"time"
)

// Tool names used in findings and results.
const (
	ToolSlither = "slither"
	ToolSolhint = "solhint"
)

// ToolResult holds what one analyzer reported for one file.
// Either Error is set, or the finding slices are populated (possibly empty).
// Warning carries a non-fatal note, e.g. when output could not be parsed but
// the tool itself ran fine.
type ToolResult struct {
	// Tool is the analyzer name.
	Tool string `json:"tool"`

	// Vulnerabilities are security-relevant findings.
	Vulnerabilities []Finding `json:"vulnerabilities"`

	// Inefficiencies are gas-cost findings.
	Inefficiencies []Finding `json:"inefficiencies"`

	// BestPractices are style and lint findings.
	BestPractices []Finding `json:"best_practices"`

	// Error describes why the tool could not produce findings.
	Error string `json:"error,omitempty"`

	// Warning is a non-fatal note about the run.
	Warning string `json:"warning,omitempty"`

	// Duration is how long the tool took.
	Duration time.Duration `json:"duration"`
}

// NewToolResult creates an empty result for the named tool.
func NewToolResult(tool string) *ToolResult {
	return &ToolResult{
		Tool:            tool,
		Vulnerabilities: []Finding{},
		Inefficiencies:  []Finding{},
		BestPractices:   []Finding{},
	}
}

// NewToolError creates a failed result for the named tool.
func NewToolError(tool, message string) *ToolResult {
	r := NewToolResult(tool)
	r.Error = message
	return r
}

// Add routes a finding into the slice matching its category.
func (r *ToolResult) Add(f Finding) {
	if f.Tool == "" {
		f.Tool = r.Tool
	}
	if f.Fingerprint == "" {
		f = f.WithFingerprint()
	}
	switch f.Category {
	case CategoryVulnerability:
		r.Vulnerabilities = append(r.Vulnerabilities, f)
	case CategoryInefficiency:
		r.Inefficiencies = append(r.Inefficiencies, f)
	default:
		f.Category = CategoryBestPractice
		r.BestPractices = append(r.BestPractices, f)
	}
}

// Findings returns the findings of one category.
func (r *ToolResult) Findings(c Category) []Finding {
	if r == nil {
		return nil
	}
	switch c {
	case CategoryVulnerability:
		return r.Vulnerabilities
	case CategoryInefficiency:
		return r.Inefficiencies
	case CategoryBestPractice:
		return r.BestPractices
	default:
		return nil
	}
}

// All returns every finding in category order.
func (r *ToolResult) All() []Finding {
	if r == nil {
		return nil
	}
	all := make([]Finding, 0, r.Count())
	for _, c := range Categories {
		all = append(all, r.Findings(c)...)
	}
	return all
}

// Count returns the number of findings across all categories.
func (r *ToolResult) Count() int {
	if r == nil {
		return 0
	}
	return len(r.Vulnerabilities) + len(r.Inefficiencies) + len(r.BestPractices)
}

// HasError reports whether the tool failed.
func (r *ToolResult) HasError() bool {
	return r != nil && r.Error != ""
}

// Filter keeps only the findings for which keep returns true and reports how
// many were dropped.
func (r *ToolResult) Filter(keep func(Finding) bool) int {
	if r == nil {
		return 0
	}
	before := r.Count()
	r.Vulnerabilities = filterFindings(r.Vulnerabilities, keep)
	r.Inefficiencies = filterFindings(r.Inefficiencies, keep)
	r.BestPractices = filterFindings(r.BestPractices, keep)
	return before - r.Count()
}

func filterFindings(findings []Finding, keep func(Finding) bool) []Finding {
	out := make([]Finding, 0, len(findings))
	for _, f := range findings {
		if keep(f) {
			out = append(out, f)
		}
	}
	return out
}

// FileResult is the combined analyzer output for one Solidity file.
type FileResult struct {
	// Path is the file path as discovered.
	Path string `json:"path"`

	// Slither is the vulnerability scanner result. Nil when the tool was not run.
	Slither *ToolResult `json:"slither,omitempty"`

	// Solhint is the linter result. Nil when the tool was not run.
	Solhint *ToolResult `json:"solhint,omitempty"`

	// PerformedSteps records which pipeline steps ran.
	PerformedSteps []string `json:"performed_steps,omitempty"`

	// Error is set when a pipeline step failed outside of a tool run.
	Error string `json:"error,omitempty"`
}

// NewFileResult creates a FileResult for path.
func NewFileResult(path string) *FileResult {
	return &FileResult{Path: path}
}

// HasErrors reports whether either tool failed on this file.
func (fr *FileResult) HasErrors() bool {
	return fr.Slither.HasError() || fr.Solhint.HasError() || fr.Error != ""
}

// Findings returns every finding for the file, Slither first.
func (fr *FileResult) Findings() []Finding {
	return append(fr.Slither.All(), fr.Solhint.All()...)
}

// DisplayPath returns Path relative to root when possible.
func (fr *FileResult) DisplayPath(root string) string {
	return RelativePath(root, fr.Path)
}

// RelativePath returns path relative to root, or path unchanged when that
// is not possible or would climb out of root.
func RelativePath(root, path string) string {
	if root == "" {
		return path
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return path
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	if absRoot == absPath {
		return filepath.Base(path)
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil || rel == ".." || filepath.IsAbs(rel) || len(rel) > 2 && rel[:3] == ".."+string(filepath.Separator) {
		return path
	}
	return filepath.ToSlash(rel)
}

// AuditReport is the complete result of one audit run.
type AuditReport struct {
	// ID is the history database identifier, zero when not stored.
	ID int64 `json:"id,omitempty"`

	// Target is the absolute path that was audited.
	Target string `json:"target"`

	// DateScanned is when the audit started.
	DateScanned time.Time `json:"date_scanned"`

	// Mode describes how the tools were run, e.g. "Offline (Slither, Solhint)".
	Mode string `json:"mode"`

	// Files lists the discovered Solidity files in audit order.
	Files []string `json:"files"`

	// Results holds one entry per file, in the same order as Files.
	Results []*FileResult `json:"results"`

	// AISummary is the optional assistant summary in markdown.
	AISummary string `json:"ai_summary,omitempty"`

	// Summary holds the category totals.
	Summary Summary `json:"summary"`

	// Duration is the wall time of the audit.
	Duration time.Duration `json:"duration"`
}

// NewAuditReport creates a report for target stamped with the current time.
func NewAuditReport(target string) *AuditReport {
	return &AuditReport{
		Target:      target,
		DateScanned: time.Now(),
		Files:       []string{},
		Results:     []*FileResult{},
	}
}

// Finalize recomputes Summary from Results.
func (r *AuditReport) Finalize() {
	r.Summary = NewSummary(r.Results)
}

// AllFindings returns every finding of the audit in file order.
func (r *AuditReport) AllFindings() []Finding {
	var all []Finding
	for _, fr := range r.Results {
		if fr == nil {
			continue
		}
		all = append(all, fr.Findings()...)
	}
	return all
}
