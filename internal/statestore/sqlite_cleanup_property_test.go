package statestore

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestExcessRecordCleanupProperty checks that cleanup preserves exactly the
// most recent N analysis records for a snippet hash.
func TestExcessRecordCleanupProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("After cleanup, only the most recent N records are preserved", prop.ForAll(
		func(hash string, suite string, testName string, recordCount int, maxToKeep int) bool {
			if recordCount < 2 {
				return true // Skip cases with less than 2 records
			}
			if maxToKeep < 1 {
				maxToKeep = 1 // Must keep at least 1 record
			}
			if maxToKeep >= recordCount {
				return true // Skip cases where we keep all records
			}

			store, cleanup := createTestStore(t)
			defer cleanup()

			ctx := context.Background()

			for i := 0; i < recordCount; i++ {
				record := &AnalysisRecord{
					Suite:              suite,
					FilePath:           "tests/test_generated.py",
					TestName:           testName,
					SnippetHash:        hash,
					IssueType:          "Good AAA",
					VerdictPassed:      true,
					AnalysisDurationMs: int64(1000 + i*100),
				}
				if err := store.RecordAnalysis(ctx, record); err != nil {
					t.Logf("Failed to record analysis %d: %v", i, err)
					return false
				}
			}

			if err := store.CleanupExcessRecords(ctx, hash, maxToKeep); err != nil {
				t.Logf("Cleanup failed: %v", err)
				return false
			}

			return countAnalysisRecords(store, hash) == maxToKeep
		},
		genValidHash(),
		genValidSuiteName(),
		genValidTestName(),
		gen.IntRange(2, 5), // At least 2 records to test cleanup
		gen.IntRange(1, 3), // Keep 1-3 records
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// TestTestReferenceConsistencyProperty checks that after cleanup the test row
// still points at the most recent remaining analysis record.
func TestTestReferenceConsistencyProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("After cleanup, last_analysis_id points to the most recent remaining record", prop.ForAll(
		func(hash string, suite string, testName string, recordCount int, maxToKeep int) bool {
			if recordCount < 2 {
				return true
			}
			if maxToKeep < 1 {
				maxToKeep = 1
			}
			if maxToKeep >= recordCount {
				return true
			}

			store, cleanup := createTestStore(t)
			defer cleanup()

			ctx := context.Background()

			var recordIDs []int64
			for i := 0; i < recordCount; i++ {
				record := &AnalysisRecord{
					Suite:         suite,
					FilePath:      "tests/test_generated.py",
					TestName:      testName,
					SnippetHash:   hash,
					IssueType:     "Good AAA",
					VerdictPassed: true,
				}
				if err := store.RecordAnalysis(ctx, record); err != nil {
					t.Logf("Failed to record analysis %d: %v", i, err)
					return false
				}
				recordIDs = append(recordIDs, record.ID)
			}

			if err := store.CleanupExcessRecords(ctx, hash, maxToKeep); err != nil {
				t.Logf("Cleanup failed: %v", err)
				return false
			}

			lastAnalysisID := getTestLastAnalysisID(store, hash)
			if lastAnalysisID == -1 {
				t.Logf("Failed to get test's last_analysis_id")
				return false
			}

			// The most recent record (highest ID) must survive cleanup
			return lastAnalysisID == recordIDs[recordCount-1]
		},
		genValidHash(),
		genValidSuiteName(),
		genValidTestName(),
		gen.IntRange(2, 5),
		gen.IntRange(1, 3),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// TestCleanupTransactionAtomicityProperty checks that a failing cleanup
// operation rolls back all of its changes.
func TestCleanupTransactionAtomicityProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("A failed cleanup operation leaves the database unchanged", prop.ForAll(
		func(hash string, suite string, testName string) bool {
			store, cleanup := createTestStore(t)
			defer cleanup()

			ctx := context.Background()

			record := &AnalysisRecord{
				Suite:         suite,
				FilePath:      "tests/test_generated.py",
				TestName:      testName,
				SnippetHash:   hash,
				IssueType:     "Good AAA",
				VerdictPassed: true,
			}
			if err := store.RecordAnalysis(ctx, record); err != nil {
				t.Logf("Failed to record analysis: %v", err)
				return false
			}

			initialCount := countAnalysisRecords(store, hash)

			// Force a failure partway through a transaction
			err := store.executeCleanup(ctx, func(tx *sql.Tx) error {
				if _, err := tx.ExecContext(ctx, `DELETE FROM analysis_records WHERE snippet_hash = ?`, hash); err != nil {
					return err
				}
				_, err := tx.ExecContext(ctx, `DELETE FROM non_existent_table WHERE id = 1`)
				return err
			})
			if err == nil {
				t.Logf("Expected operation to fail, but it succeeded")
				return false
			}

			// The delete must have been rolled back
			return countAnalysisRecords(store, hash) == initialCount
		},
		genValidHash(),
		genValidSuiteName(),
		genValidTestName(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Helper functions for property testing

func createTestStore(t *testing.T) (*SQLiteStore, func()) {
	tmpFile, err := os.CreateTemp("", "test_*.db")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	tmpFile.Close()

	store, err := NewSQLiteStore(tmpFile.Name())
	if err != nil {
		os.Remove(tmpFile.Name())
		t.Fatalf("Failed to create store: %v", err)
	}

	cleanup := func() {
		store.Close()
		os.Remove(tmpFile.Name())
	}

	return store, cleanup
}

func genValidHash() gopter.Gen {
	return gen.AlphaString().Map(func(s string) string {
		// Pad to a stable 40 character hash-looking string
		for len(s) < 40 {
			s = s + "0123456789abcdef"
		}
		return "sha1:" + s[:40]
	})
}

func genValidSuiteName() gopter.Gen {
	return gen.AlphaString().Map(func(s string) string {
		if len(s) == 0 {
			return "unit"
		}
		if len(s) > 20 {
			return s[:20]
		}
		return s
	})
}

func genValidTestName() gopter.Gen {
	return gen.AlphaString().Map(func(s string) string {
		if len(s) == 0 {
			return "test_default"
		}
		if len(s) > 30 {
			s = s[:30]
		}
		return "test_" + s
	})
}

func countAnalysisRecords(store *SQLiteStore, hash string) int {
	var count int
	err := store.db.QueryRow(`
		SELECT COUNT(id)
		FROM analysis_records
		WHERE snippet_hash = ?
	`, hash).Scan(&count)
	if err != nil {
		return -1
	}
	return count
}

func getTestLastAnalysisID(store *SQLiteStore, hash string) int64 {
	var lastAnalysisID int64
	err := store.db.QueryRow(`
		SELECT last_analysis_id
		FROM tests
		WHERE snippet_hash = ?
	`, hash).Scan(&lastAnalysisID)
	if err != nil {
		return -1
	}
	return lastAnalysisID
}
