package model

import "strings"

// Category is one of the three fixed report buckets a finding lands in.
type Category string

const (
	// CategoryVulnerability holds security-relevant findings from the scanner.
	CategoryVulnerability Category = "vulnerability"

	// CategoryInefficiency holds gas-cost findings from the scanner.
	CategoryInefficiency Category = "inefficiency"

	// CategoryBestPractice holds style and lint findings from either tool.
	CategoryBestPractice Category = "best_practice"
)

// Categories lists the buckets in report order.
var Categories = []Category{
	CategoryVulnerability,
	CategoryInefficiency,
	CategoryBestPractice,
}

// Title returns the section heading for the category.
func (c Category) Title() string {
	switch c {
	case CategoryVulnerability:
		return "Vulnerabilities"
	case CategoryInefficiency:
		return "Inefficiencies"
	case CategoryBestPractice:
		return "Best Practices"
	default:
		return "Other"
	}
}

// Level is a coarse ranking of the free-form severity strings the tools emit.
// Slither reports impact (High, Medium, Low, Informational, Optimization) and
// Solhint reports rule severity (Error, Warning).
type Level int

const (
	// LevelNote covers informational and optimization findings.
	LevelNote Level = iota
	// LevelWarning covers medium impact and lint warnings.
	LevelWarning
	// LevelError covers high impact and lint errors.
	LevelError
)

// String returns the SARIF level name.
func (l Level) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarning:
		return "warning"
	default:
		return "note"
	}
}

// SeverityLevel maps a tool severity string onto a Level.
func SeverityLevel(severity string) Level {
	switch strings.ToLower(strings.TrimSpace(severity)) {
	case "high", "critical", "error":
		return LevelError
	case "medium", "warning", "warn", "low":
		return LevelWarning
	default:
		return LevelNote
	}
}
