package statestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/daimoniac/aaalint/internal/errors"
	"github.com/daimoniac/aaalint/internal/types"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements StateStoreQuery using SQLite
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite state store
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Add pragmas and optimizations for better concurrent access
	// _foreign_keys=1: Ensures CASCADE DELETE works properly
	// mode=rwc: Read/Write/Create mode
	// _journal_mode=WAL: Write-Ahead Logging allows concurrent readers and a single writer
	// _busy_timeout=3000: Wait up to 3 seconds for locks to allow metrics to succeed
	connStr := dbPath + "?_foreign_keys=1&mode=rwc&_journal_mode=WAL&_busy_timeout=3000"

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, errors.NewTransientf("failed to open sqlite database: %w", err)
	}

	// Configure connection pool for concurrent access with WAL mode
	// WAL mode supports one writer and multiple concurrent readers
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	// Verify foreign keys are enabled
	var fkEnabled int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fkEnabled); err != nil {
		db.Close()
		return nil, errors.NewTransientf("failed to check foreign keys status: %w", err)
	}
	if fkEnabled != 1 {
		db.Close()
		return nil, errors.NewTransientf("foreign keys are not enabled (got %d, expected 1)", fkEnabled)
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, errors.NewPermanentf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// initSchema creates the database schema with all tables and indexes
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS suites (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		created_at INTEGER NOT NULL DEFAULT (cast(strftime('%s', 'now') as integer))
	);

	CREATE TABLE IF NOT EXISTS tests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		suite_id INTEGER NOT NULL,
		file_path TEXT NOT NULL,
		test_name TEXT NOT NULL,
		snippet_hash TEXT NOT NULL,
		first_seen INTEGER NOT NULL,
		last_seen INTEGER NOT NULL,
		last_analysis_id INTEGER,
		next_analysis_at INTEGER,
		created_at INTEGER NOT NULL DEFAULT (cast(strftime('%s', 'now') as integer)),
		FOREIGN KEY (suite_id) REFERENCES suites(id),
		FOREIGN KEY (last_analysis_id) REFERENCES analysis_records(id),
		UNIQUE(suite_id, file_path, test_name)
	);

	CREATE TABLE IF NOT EXISTS analysis_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		test_id INTEGER NOT NULL,
		snippet_hash TEXT NOT NULL,
		analysis_duration_ms INTEGER,
		focal_method TEXT,
		issue_type TEXT NOT NULL,
		reasoning TEXT,
		raw_result TEXT,
		verdict_passed BOOLEAN NOT NULL,
		tolerated BOOLEAN NOT NULL,
		error_message TEXT,
		tolerated_issues_json TEXT, -- JSON array of ToleratedIssue objects for audit trail
		created_at INTEGER NOT NULL DEFAULT (cast(strftime('%s', 'now') as integer)),
		FOREIGN KEY (test_id) REFERENCES tests(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_tests_suite ON tests(suite_id);
	CREATE INDEX IF NOT EXISTS idx_tests_hash ON tests(snippet_hash);
	CREATE INDEX IF NOT EXISTS idx_tests_next_analysis ON tests(next_analysis_at);
	CREATE INDEX IF NOT EXISTS idx_analysis_records_test ON analysis_records(test_id);
	CREATE INDEX IF NOT EXISTS idx_analysis_records_hash ON analysis_records(snippet_hash);
	CREATE INDEX IF NOT EXISTS idx_analysis_records_created ON analysis_records(created_at);
	CREATE INDEX IF NOT EXISTS idx_analysis_records_issue ON analysis_records(issue_type);
	`

	_, err := s.db.Exec(schema)
	return err
}

// RecordAnalysis saves an analysis result with full issue details in a transaction
func (s *SQLiteStore) RecordAnalysis(ctx context.Context, record *AnalysisRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewTransientf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Create or get suite by name
	var suiteID int64
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM suites WHERE name = ?
	`, record.Suite).Scan(&suiteID)
	if err == sql.ErrNoRows {
		// Suite doesn't exist, create it
		result, err := tx.ExecContext(ctx, `
			INSERT INTO suites (name) VALUES (?)
		`, record.Suite)
		if err != nil {
			return errors.NewTransientf("failed to insert suite: %w", err)
		}
		suiteID, err = result.LastInsertId()
		if err != nil {
			return errors.NewTransientf("failed to get suite ID: %w", err)
		}
	} else if err != nil {
		return errors.NewTransientf("failed to query suite: %w", err)
	}

	// Create or update test
	nowUnix := time.Now().Unix()
	var testID int64
	var existingTestID sql.NullInt64
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM tests WHERE suite_id = ? AND file_path = ? AND test_name = ?
	`, suiteID, record.FilePath, record.TestName).Scan(&existingTestID)
	if err == sql.ErrNoRows {
		// Test doesn't exist, create it
		result, err := tx.ExecContext(ctx, `
			INSERT INTO tests (suite_id, file_path, test_name, snippet_hash, first_seen, last_seen)
			VALUES (?, ?, ?, ?, ?, ?)
		`, suiteID, record.FilePath, record.TestName, record.SnippetHash, nowUnix, nowUnix)
		if err != nil {
			return errors.NewTransientf("failed to insert test: %w", err)
		}
		testID, err = result.LastInsertId()
		if err != nil {
			return errors.NewTransientf("failed to get test ID: %w", err)
		}
	} else if err != nil {
		return errors.NewTransientf("failed to query test: %w", err)
	} else {
		// Test exists, update last_seen and the current snippet hash
		testID = existingTestID.Int64
		_, err := tx.ExecContext(ctx, `
			UPDATE tests SET last_seen = ?, snippet_hash = ? WHERE id = ?
		`, nowUnix, record.SnippetHash, testID)
		if err != nil {
			return errors.NewTransientf("failed to update test: %w", err)
		}
	}

	// Insert analysis record with tolerated issues as JSON
	toleratedJSON := "[]"
	if len(record.ToleratedIssues) > 0 {
		jsonBytes, err := json.Marshal(record.ToleratedIssues)
		if err != nil {
			return errors.NewTransientf("failed to marshal tolerated issues: %w", err)
		}
		toleratedJSON = string(jsonBytes)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO analysis_records (
			test_id, snippet_hash, analysis_duration_ms,
			focal_method, issue_type, reasoning, raw_result,
			verdict_passed, tolerated, error_message,
			tolerated_issues_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		testID, record.SnippetHash, record.AnalysisDurationMs,
		record.FocalMethod, record.IssueType, record.Reasoning, record.RawResult,
		record.VerdictPassed, record.Tolerated, record.ErrorMessage,
		toleratedJSON,
	)
	if err != nil {
		return errors.NewTransientf("failed to insert analysis record: %w", err)
	}

	analysisID, err := result.LastInsertId()
	if err != nil {
		return errors.NewTransientf("failed to get analysis record ID: %w", err)
	}

	// Update the test's last_analysis_id and next_analysis_at.
	// When no next analysis time is set, the test is due immediately and the
	// worker will push it out based on the reanalysis interval configuration.
	nextAnalysisAt := nowUnix
	if !record.NextAnalysisAt.IsZero() {
		nextAnalysisAt = record.NextAnalysisAt.Unix()
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE tests SET last_analysis_id = ?, next_analysis_at = ? WHERE id = ?
	`, analysisID, nextAnalysisAt, testID)
	if err != nil {
		return errors.NewTransientf("failed to update test last_analysis_id and next_analysis_at: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return errors.NewTransientf("failed to commit transaction: %w", err)
	}

	record.ID = analysisID
	record.TestID = testID
	return nil
}

const analysisSelectColumns = `
	ar.id, ar.test_id, ar.analysis_duration_ms,
	ar.focal_method, ar.issue_type, ar.reasoning, ar.raw_result,
	ar.verdict_passed, ar.tolerated, ar.error_message, ar.created_at,
	t.file_path, t.test_name, ar.snippet_hash, s.name,
	ar.tolerated_issues_json`

// scanAnalysisRow scans a row selected with analysisSelectColumns
func scanAnalysisRow(scan func(dest ...interface{}) error) (*AnalysisRecord, error) {
	var record AnalysisRecord
	var toleratedJSON sql.NullString

	err := scan(
		&record.ID, &record.TestID, &record.AnalysisDurationMs,
		&record.FocalMethod, &record.IssueType, &record.Reasoning, &record.RawResult,
		&record.VerdictPassed, &record.Tolerated, &record.ErrorMessage, &record.CreatedAt,
		&record.FilePath, &record.TestName, &record.SnippetHash, &record.Suite,
		&toleratedJSON,
	)
	if err != nil {
		return nil, err
	}

	if toleratedJSON.Valid && toleratedJSON.String != "" {
		var tolerated []types.ToleratedIssue
		if err := json.Unmarshal([]byte(toleratedJSON.String), &tolerated); err != nil {
			return nil, errors.NewTransientf("failed to unmarshal tolerated issues: %w", err)
		}
		record.ToleratedIssues = tolerated
	}

	return &record, nil
}

// GetLastAnalysis retrieves the most recent analysis for a snippet hash
func (s *SQLiteStore) GetLastAnalysis(ctx context.Context, snippetHash string) (*AnalysisRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+analysisSelectColumns+`
		FROM analysis_records ar
		JOIN tests t ON ar.test_id = t.id
		JOIN suites s ON t.suite_id = s.id
		WHERE ar.snippet_hash = ?
		ORDER BY ar.created_at DESC, ar.id DESC
		LIMIT 1
	`, snippetHash)

	record, err := scanAnalysisRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrAnalysisNotFound
	}
	if err != nil {
		if errors.IsTransient(err) {
			return nil, err
		}
		return nil, errors.NewTransientf("failed to query analysis record: %w", err)
	}

	return record, nil
}

// ListDueForReanalysis returns snippet hashes whose next analysis is overdue.
// Uses DISTINCT to avoid analyzing the same snippet multiple times when
// identical tests appear in multiple suites.
func (s *SQLiteStore) ListDueForReanalysis(ctx context.Context) ([]string, error) {
	nowUnix := time.Now().Unix()

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT snippet_hash
		FROM tests
		WHERE last_analysis_id IS NOT NULL AND next_analysis_at < ?
		ORDER BY snippet_hash ASC
	`, nowUnix)
	if err != nil {
		return nil, errors.NewTransientf("failed to query due for reanalysis: %w", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, errors.NewTransientf("failed to scan snippet hash: %w", err)
		}
		hashes = append(hashes, hash)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.NewTransientf("error iterating rows: %w", err)
	}

	return hashes, nil
}

// GetAnalysisHistory returns analysis history for a snippet hash
func (s *SQLiteStore) GetAnalysisHistory(ctx context.Context, snippetHash string, limit int) ([]*AnalysisRecord, error) {
	query := `
		SELECT ` + analysisSelectColumns + `
		FROM analysis_records ar
		JOIN tests t ON ar.test_id = t.id
		JOIN suites s ON t.suite_id = s.id
		WHERE ar.snippet_hash = ?
		ORDER BY ar.created_at DESC, ar.id DESC
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, snippetHash)
	if err != nil {
		return nil, errors.NewTransientf("failed to query analysis history: %w", err)
	}
	defer rows.Close()

	var records []*AnalysisRecord
	for rows.Next() {
		record, err := scanAnalysisRow(rows.Scan)
		if err != nil {
			return nil, errors.NewTransientf("failed to scan row: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.NewTransientf("error iterating rows: %w", err)
	}

	return records, nil
}

// GetAnalysis retrieves a single analysis record by ID
func (s *SQLiteStore) GetAnalysis(ctx context.Context, id int64) (*AnalysisRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+analysisSelectColumns+`
		FROM analysis_records ar
		JOIN tests t ON ar.test_id = t.id
		JOIN suites s ON t.suite_id = s.id
		WHERE ar.id = ?
	`, id)

	record, err := scanAnalysisRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrAnalysisNotFound
	}
	if err != nil {
		if errors.IsTransient(err) {
			return nil, err
		}
		return nil, errors.NewTransientf("failed to query analysis record: %w", err)
	}

	return record, nil
}

// ListAnalyses returns analysis records with optional filters
func (s *SQLiteStore) ListAnalyses(ctx context.Context, filter AnalysisFilter) ([]*AnalysisRecord, error) {
	query := `
		SELECT ` + analysisSelectColumns + `
		FROM analysis_records ar
		JOIN tests t ON ar.test_id = t.id
		JOIN suites s ON t.suite_id = s.id
		WHERE 1=1
	`
	args := []interface{}{}

	if filter.LatestOnly {
		query += " AND ar.id = t.last_analysis_id"
	}

	if filter.Suite != "" {
		query += " AND s.name = ?"
		args = append(args, filter.Suite)
	}

	if filter.VerdictPassed != nil {
		query += " AND ar.verdict_passed = ?"
		args = append(args, *filter.VerdictPassed)
	}

	if filter.MaxAge > 0 {
		query += " AND ar.created_at >= strftime('%s', 'now', '-' || ? || ' seconds')"
		args = append(args, filter.MaxAge)
	}

	query += " ORDER BY ar.created_at DESC, ar.id DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewTransientf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	var records []*AnalysisRecord
	for rows.Next() {
		record, err := scanAnalysisRow(rows.Scan)
		if err != nil {
			return nil, errors.NewTransientf("failed to scan row: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.NewTransientf("error iterating rows: %w", err)
	}

	return records, nil
}

// QueryIssues searches AAA issues across the latest analysis of each test
func (s *SQLiteStore) QueryIssues(ctx context.Context, filter IssueFilter) ([]*IssueRecord, error) {
	query := `
		SELECT ar.issue_type, ar.focal_method, ar.reasoning,
			s.name, t.file_path, t.test_name, ar.snippet_hash, ar.created_at
		FROM analysis_records ar
		JOIN tests t ON ar.test_id = t.id
		JOIN suites s ON t.suite_id = s.id
		WHERE ar.id = t.last_analysis_id
			AND ar.issue_type != ''
			AND ar.issue_type != ?
	`
	args := []interface{}{string(types.IssueGoodAAA)}

	if filter.IssueType != "" {
		query += " AND ar.issue_type = ?"
		args = append(args, filter.IssueType)
	}

	if filter.Suite != "" {
		query += " AND s.name = ?"
		args = append(args, filter.Suite)
	}

	if filter.TestName != "" {
		query += " AND t.test_name = ?"
		args = append(args, filter.TestName)
	}

	query += " ORDER BY ar.issue_type, s.name, t.file_path, t.test_name"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewTransientf("failed to query issues: %w", err)
	}
	defer rows.Close()

	var issues []*IssueRecord
	for rows.Next() {
		var issue IssueRecord
		err := rows.Scan(
			&issue.IssueType, &issue.FocalMethod, &issue.Reasoning,
			&issue.Suite, &issue.FilePath, &issue.TestName, &issue.SnippetHash, &issue.AnalyzedAt,
		)
		if err != nil {
			return nil, errors.NewTransientf("failed to scan issue: %w", err)
		}
		issues = append(issues, &issue)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.NewTransientf("error iterating rows: %w", err)
	}

	return issues, nil
}

// ListTolerations returns unique tolerated issues from analysis history.
// Returns one entry per unique suite + issue combination with the earliest
// ToleratedAt timestamp. Statement and ExpiresAt reflect historical values
// from analysis records.
func (s *SQLiteStore) ListTolerations(ctx context.Context, filter TolerationFilter) ([]*types.TolerationInfo, error) {
	query := `
		SELECT
			s.name as suite,
			ar.tolerated_issues_json
		FROM analysis_records ar
		JOIN tests t ON ar.test_id = t.id
		JOIN suites s ON t.suite_id = s.id
		WHERE ar.tolerated_issues_json IS NOT NULL
			AND ar.tolerated_issues_json != '[]'
			AND ar.tolerated_issues_json != ''
	`
	args := []interface{}{}

	if filter.Suite != "" {
		query += " AND s.name = ?"
		args = append(args, filter.Suite)
	}

	query += " ORDER BY ar.created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewTransientf("failed to query tolerations: %w", err)
	}
	defer rows.Close()

	// Build a map of unique suite+issue combinations.
	// Key: "suite:issue", Value: TolerationInfo with earliest tolerated_at
	tolerationMap := make(map[string]*types.TolerationInfo)

	for rows.Next() {
		var suite string
		var toleratedJSON sql.NullString

		if err := rows.Scan(&suite, &toleratedJSON); err != nil {
			return nil, errors.NewTransientf("failed to scan row: %w", err)
		}

		if !toleratedJSON.Valid || toleratedJSON.String == "" {
			continue
		}

		var tolerated []types.ToleratedIssue
		if err := json.Unmarshal([]byte(toleratedJSON.String), &tolerated); err != nil {
			// Skip invalid JSON
			continue
		}

		for _, ti := range tolerated {
			if filter.Issue != "" && ti.Issue != filter.Issue {
				continue
			}

			key := suite + ":" + ti.Issue
			existing, found := tolerationMap[key]
			if !found || ti.ToleratedAt.Before(existing.ToleratedAt) {
				// Keep the earliest tolerated_at timestamp
				tolerationMap[key] = &types.TolerationInfo{
					Issue:       ti.Issue,
					Statement:   ti.Statement,
					ToleratedAt: ti.ToleratedAt,
					ExpiresAt:   ti.ExpiresAt,
					Suite:       suite,
				}
			}
		}
	}

	if err := rows.Err(); err != nil {
		return nil, errors.NewTransientf("error iterating rows: %w", err)
	}

	now := time.Now()
	expiryWindow := now.Add(7 * 24 * time.Hour)

	tolerations := make([]*types.TolerationInfo, 0, len(tolerationMap))
	for _, info := range tolerationMap {
		if filter.Expired != nil {
			expired := info.ExpiresAt != nil && info.ExpiresAt.Before(now)
			if expired != *filter.Expired {
				continue
			}
		}
		if filter.ExpiringSoon != nil {
			expiringSoon := info.ExpiresAt != nil && info.ExpiresAt.After(now) && info.ExpiresAt.Before(expiryWindow)
			if expiringSoon != *filter.ExpiringSoon {
				continue
			}
		}
		tolerations = append(tolerations, info)
	}

	if filter.Limit > 0 && len(tolerations) > filter.Limit {
		tolerations = tolerations[:filter.Limit]
	}

	return tolerations, nil
}

// CountIssuesByType returns the number of tests per issue type from the latest analyses
func (s *SQLiteStore) CountIssuesByType(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ar.issue_type, COUNT(*)
		FROM analysis_records ar
		JOIN tests t ON ar.test_id = t.id
		WHERE ar.id = t.last_analysis_id AND ar.issue_type != ''
		GROUP BY ar.issue_type
	`)
	if err != nil {
		return nil, errors.NewTransientf("failed to count issues by type: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var issueType string
		var count int
		if err := rows.Scan(&issueType, &count); err != nil {
			return nil, errors.NewTransientf("failed to scan issue count: %w", err)
		}
		counts[issueType] = count
	}

	if err := rows.Err(); err != nil {
		return nil, errors.NewTransientf("error iterating rows: %w", err)
	}

	return counts, nil
}

// CountFailedVerdicts returns the number of tests whose latest analysis failed verdict evaluation
func (s *SQLiteStore) CountFailedVerdicts(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM analysis_records ar
		JOIN tests t ON ar.test_id = t.id
		WHERE ar.id = t.last_analysis_id AND ar.verdict_passed = 0
	`).Scan(&count)
	if err != nil {
		return 0, errors.NewTransientf("failed to count failed verdicts: %w", err)
	}

	return count, nil
}

// executeCleanup is a helper method for transaction management in cleanup operations
func (s *SQLiteStore) executeCleanup(ctx context.Context, operation func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewTransientf("failed to begin cleanup transaction: %w", err)
	}
	defer tx.Rollback()

	if err := operation(tx); err != nil {
		return err // Error already classified by operation
	}

	if err := tx.Commit(); err != nil {
		return errors.NewTransientf("failed to commit cleanup transaction: %w", err)
	}

	return nil
}

// CleanupExcessRecords removes excess analysis records for all tests carrying
// the given snippet hash, keeping only the most recent N records per test.
// Identical tests in multiple suites each get their own cleanup.
func (s *SQLiteStore) CleanupExcessRecords(ctx context.Context, snippetHash string, maxToKeep int) error {
	if maxToKeep <= 0 {
		return errors.NewPermanentf("maxToKeep must be positive, got %d", maxToKeep)
	}

	return s.executeCleanup(ctx, func(tx *sql.Tx) error {
		// Get all test IDs for this snippet hash
		rows, err := tx.QueryContext(ctx, `
			SELECT id FROM tests WHERE snippet_hash = ?
		`, snippetHash)
		if err != nil {
			return errors.NewTransientf("failed to query tests for cleanup: %w", err)
		}
		defer rows.Close()

		var testIDs []int64
		for rows.Next() {
			var testID int64
			if err := rows.Scan(&testID); err != nil {
				return errors.NewTransientf("failed to scan test ID: %w", err)
			}
			testIDs = append(testIDs, testID)
		}
		if err := rows.Err(); err != nil {
			return errors.NewTransientf("error iterating test rows: %w", err)
		}

		if len(testIDs) == 0 {
			// No tests exist for this snippet hash, nothing to clean up
			return nil
		}

		for _, testID := range testIDs {
			if err := s.cleanupExcessRecordsForTest(tx, ctx, testID, maxToKeep); err != nil {
				return err
			}
		}

		return nil
	})
}

// cleanupExcessRecordsForTest is a helper to clean up analysis records for a single test
func (s *SQLiteStore) cleanupExcessRecordsForTest(tx *sql.Tx, ctx context.Context, testID int64, maxToKeep int) error {
	// Get analysis IDs to keep (most recent N records)
	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM analysis_records
		WHERE test_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, testID, maxToKeep)
	if err != nil {
		return errors.NewTransientf("failed to query records to keep: %w", err)
	}
	defer rows.Close()

	var keepIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return errors.NewTransientf("failed to scan keep record ID: %w", err)
		}
		keepIDs = append(keepIDs, id)
	}

	if err := rows.Err(); err != nil {
		return errors.NewTransientf("error iterating keep record IDs: %w", err)
	}

	// If we have fewer records than the limit, nothing to clean up
	if len(keepIDs) < maxToKeep {
		return nil
	}

	// Build placeholders for the IN clause
	placeholders := make([]string, len(keepIDs))
	args := make([]interface{}, len(keepIDs)+1)
	args[0] = testID
	for i, id := range keepIDs {
		placeholders[i] = "?"
		args[i+1] = id
	}

	// Delete analysis records not in the keep list
	deleteQuery := fmt.Sprintf(`
		DELETE FROM analysis_records
		WHERE test_id = ? AND id NOT IN (%s)
	`, strings.Join(placeholders, ","))

	result, err := tx.ExecContext(ctx, deleteQuery, args...)
	if err != nil {
		return errors.NewTransientf("failed to delete excess analysis records: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		return errors.NewTransientf("failed to get deleted rows count: %w", err)
	}

	if deletedCount > 0 && len(keepIDs) > 0 {
		// Point the test at the most recent remaining record
		_, err = tx.ExecContext(ctx, `
			UPDATE tests
			SET last_analysis_id = ?
			WHERE id = ?
		`, keepIDs[0], testID)
		if err != nil {
			return errors.NewTransientf("failed to update test last_analysis_id: %w", err)
		}
	}

	return nil
}
