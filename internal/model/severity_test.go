package model

import "testing"

// TestCategoryTitle tests the section headings of each category.
func TestCategoryTitle(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		category Category
		expected string
	}{
		{CategoryVulnerability, "Vulnerabilities"},
		{CategoryInefficiency, "Inefficiencies"},
		{CategoryBestPractice, "Best Practices"},
		{Category("unknown"), "Other"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			t.Parallel()
			if got := tc.category.Title(); got != tc.expected {
				t.Errorf("got %q, expected %q", got, tc.expected)
			}
		})
	}
}

// TestSeverityLevel tests mapping tool severities onto levels.
func TestSeverityLevel(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		severity string
		expected Level
	}{
		// Slither impacts
		{"High", LevelError},
		{"Medium", LevelWarning},
		{"Low", LevelWarning},
		{"Informational", LevelNote},
		{"Optimization", LevelNote},

		// Solhint severities
		{"Error", LevelError},
		{"warning", LevelWarning},
		{" WARN ", LevelWarning},

		{"", LevelNote},
	}

	for _, tc := range testCases {
		t.Run(tc.severity, func(t *testing.T) {
			t.Parallel()
			if got := SeverityLevel(tc.severity); got != tc.expected {
				t.Errorf("SeverityLevel(%q) = %v, expected %v", tc.severity, got, tc.expected)
			}
		})
	}
}

func TestLevelString(t *testing.T) {
	t.Parallel()

	if LevelError.String() != "error" || LevelWarning.String() != "warning" || LevelNote.String() != "note" {
		t.Errorf("unexpected level names: %s %s %s", LevelError, LevelWarning, LevelNote)
	}
}
