package model

// Summary holds the category totals of an audit.
// Vulnerabilities and inefficiencies only come from Slither; best practices
// are the sum of both tools.
type Summary struct {
	// TotalIssues is the sum of the three categories.
	TotalIssues int `json:"total_issues"`

	// Vulnerabilities is the number of security findings.
	Vulnerabilities int `json:"vulnerabilities"`

	// Inefficiencies is the number of gas findings.
	Inefficiencies int `json:"inefficiencies"`

	// BestPractices is the number of style findings from both tools.
	BestPractices int `json:"best_practices"`

	// FilesScanned is the number of files that went through the tools.
	FilesScanned int `json:"files_scanned"`

	// FilesWithErrors is the number of files where at least one tool failed.
	FilesWithErrors int `json:"files_with_errors"`
}

// NewSummary counts findings over all file results.
func NewSummary(results []*FileResult) Summary {
	var s Summary
	for _, fr := range results {
		if fr == nil {
			continue
		}
		s.FilesScanned++
		if fr.HasErrors() {
			s.FilesWithErrors++
		}
		if fr.Slither != nil {
			s.Vulnerabilities += len(fr.Slither.Vulnerabilities)
			s.Inefficiencies += len(fr.Slither.Inefficiencies)
			s.BestPractices += len(fr.Slither.BestPractices)
		}
		if fr.Solhint != nil {
			s.BestPractices += len(fr.Solhint.BestPractices)
		}
	}
	s.TotalIssues = s.Vulnerabilities + s.Inefficiencies + s.BestPractices
	return s
}

// HasFindings reports whether any issue was found.
func (s Summary) HasFindings() bool {
	return s.TotalIssues > 0
}

// Count returns the total for one category.
func (s Summary) Count(c Category) int {
	switch c {
	case CategoryVulnerability:
		return s.Vulnerabilities
	case CategoryInefficiency:
		return s.Inefficiencies
	case CategoryBestPractice:
		return s.BestPractices
	default:
		return 0
	}
}
