package pipeline

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nao1215/somnia-auditor/internal/config"
	"github.com/nao1215/somnia-auditor/internal/model"
)

// InlineMarker starts an inline suppression comment:
//
//	// somnia-auditor:ignore reentrancy-eth, naming-convention
//
// The marker applies to findings on its own line or up to
// InlineWindow lines below it. Without rule ids it applies to every rule.
const InlineMarker = "somnia-auditor:ignore"

// InlineWindow is how many lines above a finding are searched for a marker.
const InlineWindow = 5

// SuppressionStep drops findings accepted through config ignore rules or
// inline markers.
type SuppressionStep struct {
	rules  []config.IgnoreRule
	root   string
	logger *slog.Logger
}

// NewSuppressionStep creates a SuppressionStep. root is the audit target,
// against which rule paths are matched.
func NewSuppressionStep(rules []config.IgnoreRule, root string, logger *slog.Logger) *SuppressionStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &SuppressionStep{rules: rules, root: root, logger: logger}
}

// Name returns the step name.
func (s *SuppressionStep) Name() string { return StepSuppression }

// Do implements Step.
func (s *SuppressionStep) Do(_ context.Context, result *model.FileResult) error {
	rel := model.RelativePath(s.root, result.Path)
	markers := readMarkers(result.Path)

	keep := func(f model.Finding) bool {
		if r, ok := s.matchRule(f, rel); ok {
			s.logger.Debug("finding suppressed by config", "rule", f.Rule, "file", rel, "reason", r.Reason)
			return false
		}
		if sameFile(f.File, result.Path) && markers.suppresses(f) {
			s.logger.Debug("finding suppressed inline", "rule", f.Rule, "file", rel, "line", f.Line)
			return false
		}
		return true
	}

	dropped := result.Slither.Filter(keep) + result.Solhint.Filter(keep)
	if dropped > 0 {
		s.logger.Debug("suppressed findings", "file", rel, "count", dropped)
	}
	return nil
}

func (s *SuppressionStep) matchRule(f model.Finding, rel string) (config.IgnoreRule, bool) {
	for _, r := range s.rules {
		if r.Rule != "" && !strings.EqualFold(r.Rule, f.Rule) {
			continue
		}
		if r.Path != "" && !underPath(rel, r.Path) {
			continue
		}
		return r, true
	}
	return config.IgnoreRule{}, false
}

// underPath reports whether the slash-separated rel is prefix itself or lies
// below it. Matching stops at path components, so "contracts/legacy" does not
// cover "contracts/legacy2".
func underPath(rel, prefix string) bool {
	p := strings.TrimSuffix(strings.TrimPrefix(filepath.ToSlash(prefix), "./"), "/")
	if p == "" || p == "." {
		return true
	}
	return rel == p || strings.HasPrefix(rel, p+"/")
}

// sameFile reports whether a finding points into the audited file. Slither
// may report elements of imported files, whose lines mean nothing here.
func sameFile(findingFile, path string) bool {
	return findingFile == "" || filepath.Base(findingFile) == filepath.Base(path)
}

// markerSet maps 1-based line numbers to the rule ids listed on them.
// An empty list means all rules.
type markerSet map[int][]string

func readMarkers(path string) markerSet {
	f, err := os.Open(path) //nolint:gosec // path comes from discovery
	if err != nil {
		return nil
	}
	defer f.Close()

	markers := markerSet{}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for line := 1; sc.Scan(); line++ {
		text := sc.Text()
		idx := strings.Index(text, InlineMarker)
		if idx < 0 {
			continue
		}
		rest := text[idx+len(InlineMarker):]
		rest = strings.TrimSuffix(strings.TrimSpace(rest), "*/")
		markers[line] = strings.FieldsFunc(rest, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		})
	}
	return markers
}

func (m markerSet) suppresses(f model.Finding) bool {
	if len(m) == 0 || f.Line <= 0 {
		return false
	}
	for line := max(1, f.Line-InlineWindow); line <= f.Line; line++ {
		rules, ok := m[line]
		if !ok {
			continue
		}
		if len(rules) == 0 {
			return true
		}
		for _, r := range rules {
			if strings.EqualFold(r, f.Rule) {
				return true
			}
		}
	}
	return false
}
