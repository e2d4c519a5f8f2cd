package statestore

import (
	"context"
	"errors"
	"time"

	"github.com/daimoniac/aaalint/internal/types"
)

// ErrAnalysisNotFound is returned by GetLastAnalysis when no analysis record
// exists for the given snippet hash. This is a normal condition indicating the
// test has never been analyzed before. Callers should use errors.Is() to check
// for this specific error.
var ErrAnalysisNotFound = errors.New("analysis not found")

// StateStore defines the interface for persisting and querying analysis results
type StateStore interface {
	// RecordAnalysis saves an analysis result with full issue details
	RecordAnalysis(ctx context.Context, record *AnalysisRecord) error

	// GetLastAnalysis retrieves the most recent analysis for a snippet hash
	GetLastAnalysis(ctx context.Context, snippetHash string) (*AnalysisRecord, error)

	// ListDueForReanalysis returns snippet hashes whose next analysis is overdue
	ListDueForReanalysis(ctx context.Context) ([]string, error)

	// GetAnalysisHistory returns analysis history for a snippet hash
	GetAnalysisHistory(ctx context.Context, snippetHash string, limit int) ([]*AnalysisRecord, error)
}

// StateStoreQuery extends StateStore with query operations used by the API
// server and the metrics collector
type StateStoreQuery interface {
	StateStore

	// ListAnalyses returns analysis records with optional filters
	ListAnalyses(ctx context.Context, filter AnalysisFilter) ([]*AnalysisRecord, error)

	// GetAnalysis retrieves a single analysis record by ID
	GetAnalysis(ctx context.Context, id int64) (*AnalysisRecord, error)

	// QueryIssues searches AAA issues across the latest analyses
	QueryIssues(ctx context.Context, filter IssueFilter) ([]*IssueRecord, error)

	// ListTolerations returns tolerated issues with optional filters
	ListTolerations(ctx context.Context, filter TolerationFilter) ([]*types.TolerationInfo, error)

	// CountIssuesByType returns the number of tests per issue type from the latest analyses
	CountIssuesByType(ctx context.Context) (map[string]int, error)

	// CountFailedVerdicts returns the number of tests whose latest analysis failed verdict evaluation
	CountFailedVerdicts(ctx context.Context) (int, error)

	// CleanupExcessRecords removes old analysis records for a snippet hash,
	// keeping only the most recent maxToKeep records per test
	CleanupExcessRecords(ctx context.Context, snippetHash string, maxToKeep int) error
}

// AnalysisRecord represents a complete analysis result for a test snippet
type AnalysisRecord struct {
	ID                 int64
	TestID             int64
	Suite              string
	FilePath           string
	TestName           string
	SnippetHash        string
	FocalMethod        string
	IssueType          string
	Reasoning          string
	RawResult          string
	VerdictPassed      bool
	Tolerated          bool
	ErrorMessage       string
	AnalysisDurationMs int64
	NextAnalysisAt     time.Time
	CreatedAt          int64
	ToleratedIssues    []types.ToleratedIssue
}

// IssueRecord represents a single AAA issue found in a test
type IssueRecord struct {
	IssueType   string
	FocalMethod string
	Reasoning   string
	// Test information
	Suite       string
	FilePath    string
	TestName    string
	SnippetHash string
	AnalyzedAt  int64
}

// AnalysisFilter defines criteria for listing analyses
type AnalysisFilter struct {
	Suite         string
	VerdictPassed *bool
	LatestOnly    bool
	MaxAge        int // seconds, 0 means no age limit
	Limit         int
	Offset        int
}

// IssueFilter defines criteria for querying issues
type IssueFilter struct {
	IssueType string
	Suite     string
	TestName  string
	Limit     int
}

// TolerationFilter defines criteria for listing tolerations
type TolerationFilter struct {
	Issue        string
	Suite        string
	Expired      *bool
	ExpiringSoon *bool // Within 7 days
	Limit        int
}
