package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/somnia-auditor/internal/model"
)

// FileName is the name of the history database inside the data directory.
const FileName = "audits.db"

// storedTimeFormat is fixed width so that timestamps sort lexically.
const storedTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// ErrAuditNotFound is returned when no stored audit matches a lookup.
var ErrAuditNotFound = errors.New("audit not found")

// AuditDB provides SQLite-based storage for audit reports.
type AuditDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures AuditDB behavior.
type Options struct {
	// CreateIfNotExists creates the directory and database file when missing.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging, which lets the server read
	// history while the CLI writes a new audit.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the history database in dbDir.
func Open(dbDir string, opts Options) (*AuditDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a missing file, mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}
	dsn += "&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	adb := &AuditDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := adb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return adb, nil
}

// Close closes the database connection.
func (adb *AuditDB) Close() error {
	return adb.db.Close()
}

// Path returns the database file path.
func (adb *AuditDB) Path() string {
	return adb.dbPath
}

func (adb *AuditDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS audits (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		target TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		mode TEXT,
		files_scanned INTEGER NOT NULL DEFAULT 0,
		total_issues INTEGER NOT NULL DEFAULT 0,
		vulnerabilities INTEGER NOT NULL DEFAULT 0,
		inefficiencies INTEGER NOT NULL DEFAULT 0,
		best_practices INTEGER NOT NULL DEFAULT 0,
		files_with_errors INTEGER NOT NULL DEFAULT 0,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audits_target ON audits(target);
	CREATE INDEX IF NOT EXISTS idx_audits_timestamp ON audits(timestamp);
	`

	_, err := adb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveAudit stores report and sets report.ID to the new row id.
func (adb *AuditDB) SaveAudit(ctx context.Context, report *model.AuditReport) (int64, error) {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize report: %w", err)
	}

	s := report.Summary
	result, err := adb.db.ExecContext(ctx, `
	INSERT INTO audits (target, timestamp, mode, files_scanned, total_issues,
		vulnerabilities, inefficiencies, best_practices, files_with_errors, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.Target,
		report.DateScanned.UTC().Format(storedTimeFormat),
		report.Mode,
		s.FilesScanned,
		s.TotalIssues,
		s.Vulnerabilities,
		s.Inefficiencies,
		s.BestPractices,
		s.FilesWithErrors,
		string(reportJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save audit: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read audit id: %w", err)
	}
	report.ID = id
	return id, nil
}

// GetLatestAudit returns the most recent audit of target.
func (adb *AuditDB) GetLatestAudit(ctx context.Context, target string) (*model.AuditReport, error) {
	row := adb.db.QueryRowContext(ctx, `
	SELECT id, report_json FROM audits
	WHERE target = ?
	ORDER BY timestamp DESC, id DESC
	LIMIT 1
	`, target)
	return scanReport(row)
}

// GetAuditByID returns the audit with the given id.
func (adb *AuditDB) GetAuditByID(ctx context.Context, id int64) (*model.AuditReport, error) {
	row := adb.db.QueryRowContext(ctx, `SELECT id, report_json FROM audits WHERE id = ?`, id)
	return scanReport(row)
}

// GetAuditHistory returns every audit of target, newest first.
// Rows whose JSON no longer decodes are skipped.
func (adb *AuditDB) GetAuditHistory(ctx context.Context, target string) ([]*model.AuditReport, error) {
	rows, err := adb.db.QueryContext(ctx, `
	SELECT id, report_json FROM audits
	WHERE target = ?
	ORDER BY timestamp DESC, id DESC
	`, target)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit history: %w", err)
	}
	defer rows.Close()

	reports := []*model.AuditReport{}
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			if errors.Is(err, errMalformedReport) {
				continue
			}
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

// AuditMetadata is the summary row of a stored audit, used for listings
// that do not need the full report.
type AuditMetadata struct {
	ID        int64         `json:"id"`
	Target    string        `json:"target"`
	Timestamp time.Time     `json:"timestamp"`
	Mode      string        `json:"mode"`
	Summary   model.Summary `json:"summary"`
}

// GetAuditHistoryWithMetadata returns the summary rows of target, newest first.
func (adb *AuditDB) GetAuditHistoryWithMetadata(ctx context.Context, target string) ([]AuditMetadata, error) {
	rows, err := adb.db.QueryContext(ctx, `
	SELECT id, target, timestamp, COALESCE(mode, ''), files_scanned, total_issues,
		vulnerabilities, inefficiencies, best_practices, files_with_errors
	FROM audits
	WHERE target = ?
	ORDER BY timestamp DESC, id DESC
	`, target)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit history: %w", err)
	}
	defer rows.Close()

	results := []AuditMetadata{}
	for rows.Next() {
		var (
			meta      AuditMetadata
			timestamp string
		)
		if err := rows.Scan(
			&meta.ID,
			&meta.Target,
			&timestamp,
			&meta.Mode,
			&meta.Summary.FilesScanned,
			&meta.Summary.TotalIssues,
			&meta.Summary.Vulnerabilities,
			&meta.Summary.Inefficiencies,
			&meta.Summary.BestPractices,
			&meta.Summary.FilesWithErrors,
		); err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}
		meta.Timestamp = parseTimestamp(timestamp)
		results = append(results, meta)
	}
	return results, rows.Err()
}

// ListAuditedTargets returns every target with at least one stored audit.
func (adb *AuditDB) ListAuditedTargets(ctx context.Context) ([]string, error) {
	rows, err := adb.db.QueryContext(ctx, `SELECT DISTINCT target FROM audits ORDER BY target`)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	defer rows.Close()

	targets := []string{}
	for rows.Next() {
		var target string
		if err := rows.Scan(&target); err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}
		targets = append(targets, target)
	}
	return targets, rows.Err()
}

var errMalformedReport = errors.New("malformed stored report")

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*model.AuditReport, error) {
	var (
		id         int64
		reportJSON string
	)
	if err := row.Scan(&id, &reportJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAuditNotFound
		}
		return nil, fmt.Errorf("failed to get audit: %w", err)
	}

	var report model.AuditReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("%w %d: %w", errMalformedReport, id, err)
	}
	report.ID = id
	return &report, nil
}

// timestampFormats lists the layouts a stored timestamp may use, most
// specific first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999",
}

// parseTimestamp returns the zero time when no layout matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
