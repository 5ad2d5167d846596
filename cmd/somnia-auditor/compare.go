package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/nao1215/somnia-auditor/internal/database"
	"github.com/nao1215/somnia-auditor/internal/model"
	"github.com/nao1215/somnia-auditor/internal/report"
	"github.com/spf13/cobra"
)

// noFindingsMessage is shown in history listings for a clean audit.
const noFindingsMessage = "No findings"

// NewCompareCmd creates the compare command.
// This command compares audit results with historical data stored in the database.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare [path]",
		Short: "Compare audit results with historical data",
		Long: `Compare displays differences between the latest and a previous audit of a path.

This command reads the audit history database and shows:
- New findings that appeared since the previous audit
- Resolved findings that are no longer present
- Changes in the number of vulnerabilities, inefficiencies and best practices

Findings are matched by fingerprint, so a finding that only moved to another
line counts as unchanged. The comparison requires at least two audits of the
same path. Use 'somnia-auditor audit' to record audits.

Examples:
  # Compare the latest two audits of the current project
  somnia-auditor compare

  # List the audit history of a project
  somnia-auditor compare --list ./my-project

  # Compare with a specific historical audit by ID
  somnia-auditor compare --with-audit-id 5 ./my-project

  # Output comparison in JSON format
  somnia-auditor compare --json

  # List all audited paths in the database
  somnia-auditor compare --list-targets`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCompareCmd,
	}

	// History listing flags
	cmd.Flags().BoolP("list", "l", false,
		"List audit history for the specified path")
	cmd.Flags().BoolP("list-targets", "L", false,
		"List all audited paths in the database")

	// Comparison target flags
	cmd.Flags().Int64P("with-audit-id", "i", 0,
		"Compare with a specific audit by ID (use --list to see available IDs)")

	// Output format flags
	cmd.Flags().BoolP("json", "j", false,
		"Output comparison result in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output comparison result in Markdown format")

	return cmd
}

// runCompareCmd executes the compare command.
func runCompareCmd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	listTargets, err := flags.GetBool("list-targets")
	if err != nil {
		return err
	}
	listHistory, err := flags.GetBool("list")
	if err != nil {
		return err
	}
	withAuditID, err := flags.GetInt64("with-audit-id")
	if err != nil {
		return err
	}
	jsonOutput, err := flags.GetBool("json")
	if err != nil {
		return err
	}
	markdownOutput, err := flags.GetBool("markdown")
	if err != nil {
		return err
	}
	if jsonOutput && markdownOutput {
		return errors.New("--json and --markdown cannot be used together")
	}

	// Validate arguments before opening the database
	target := "."
	if len(args) > 0 {
		target = args[0]
	}
	target, err = filepath.Abs(target)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", target, err)
	}

	db, err := database.Open(getDataDir(cmd), database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	switch {
	case listTargets:
		return listAuditedTargets(ctx, out, db)
	case listHistory:
		return listAuditHistory(ctx, out, db, target)
	}

	comparison, err := compareAudits(ctx, db, target, withAuditID)
	if err != nil {
		return err
	}

	switch {
	case jsonOutput:
		return report.WriteComparisonJSON(out, comparison)
	case markdownOutput:
		return report.WriteComparisonMarkdown(out, comparison)
	default:
		return report.WriteComparisonText(out, comparison)
	}
}

// listAuditedTargets lists every path that has audit records in the database.
func listAuditedTargets(ctx context.Context, out io.Writer, db *database.AuditDB) error {
	targets, err := db.ListAuditedTargets(ctx)
	if err != nil {
		return fmt.Errorf("failed to list targets: %w", err)
	}

	if len(targets) == 0 {
		fmt.Fprintln(out, "No audited paths found in the database.")
		fmt.Fprintln(out, "\nUse 'somnia-auditor audit <path>' to audit a project.")
		return nil
	}

	fmt.Fprintf(out, "Audited paths (%d):\n\n", len(targets))
	for _, target := range targets {
		fmt.Fprintf(out, "  • %s\n", target)
	}
	fmt.Fprintln(out, "\nUse 'somnia-auditor compare --list <path>' to see the audit history of a path.")

	return nil
}

// listAuditHistory lists all audit records for target.
func listAuditHistory(ctx context.Context, out io.Writer, db *database.AuditDB, target string) error {
	history, err := db.GetAuditHistoryWithMetadata(ctx, target)
	if err != nil {
		return fmt.Errorf("failed to get audit history: %w", err)
	}

	if len(history) == 0 {
		fmt.Fprintf(out, "No audit history found for %s\n", target)
		fmt.Fprintln(out, "\nUse 'somnia-auditor audit' to audit this path.")
		return nil
	}

	fmt.Fprintf(out, "Audit history for %s (%d audits):\n\n", target, len(history))
	fmt.Fprintf(out, "  %-6s  %-20s  %-6s  %s\n", "ID", "Date", "Files", "Findings")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 60))

	for _, meta := range history {
		fmt.Fprintf(out, "  %-6d  %-20s  %-6d  %s\n",
			meta.ID,
			meta.Timestamp.Local().Format("2006-01-02 15:04:05"),
			meta.Summary.FilesScanned,
			formatFindingSummary(meta.Summary),
		)
	}

	fmt.Fprintln(out, "\nUse 'somnia-auditor compare <path>' to compare the latest two audits.")
	fmt.Fprintln(out, "Use 'somnia-auditor compare --with-audit-id <id> <path>' to compare with a specific audit.")

	return nil
}

// formatFindingSummary formats the category counts as "V:1 I:2 B:3".
func formatFindingSummary(s model.Summary) string {
	var parts []string
	if s.Vulnerabilities > 0 {
		parts = append(parts, fmt.Sprintf("V:%d", s.Vulnerabilities))
	}
	if s.Inefficiencies > 0 {
		parts = append(parts, fmt.Sprintf("I:%d", s.Inefficiencies))
	}
	if s.BestPractices > 0 {
		parts = append(parts, fmt.Sprintf("B:%d", s.BestPractices))
	}
	if s.FilesWithErrors > 0 {
		parts = append(parts, fmt.Sprintf("E:%d", s.FilesWithErrors))
	}

	if len(parts) == 0 {
		return noFindingsMessage
	}
	return strings.Join(parts, " ")
}

// compareAudits compares the latest audit of target with the one before it,
// or with the audit withAuditID when it is positive.
func compareAudits(ctx context.Context, db *database.AuditDB, target string, withAuditID int64) (*report.Comparison, error) {
	history, err := db.GetAuditHistory(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit history: %w", err)
	}

	if len(history) == 0 {
		return nil, fmt.Errorf("no audit history found for %s", target)
	}
	if len(history) < 2 && withAuditID == 0 {
		return nil, fmt.Errorf("at least 2 audits are required for comparison (found %d)", len(history))
	}

	current := history[0]
	var previous *model.AuditReport

	if withAuditID > 0 {
		previous, err = db.GetAuditByID(ctx, withAuditID)
		if err != nil {
			return nil, fmt.Errorf("failed to get audit with ID %d: %w", withAuditID, err)
		}
		if previous.Target != target {
			return nil, fmt.Errorf("audit ID %d belongs to %s, not %s", withAuditID, previous.Target, target)
		}
		if previous.ID == current.ID {
			return nil, fmt.Errorf("audit ID %d is the latest audit; choose an older one", withAuditID)
		}
	} else {
		previous = history[1]
	}

	return report.Compare(previous, current), nil
}
