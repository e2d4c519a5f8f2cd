package api

import (
	"time"

	"github.com/daimoniac/aaalint/internal/statestore"
	"github.com/daimoniac/aaalint/internal/types"
)

// formatTimestamp converts a Unix timestamp to ISO8601 (RFC 3339) format.
// The output is always in UTC timezone and ends with "Z".
func formatTimestamp(unixSeconds int64) string {
	return time.Unix(unixSeconds, 0).UTC().Format(time.RFC3339)
}

// formatNullableTime converts a nullable time to ISO8601 or nil.
func formatNullableTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := t.UTC().Format(time.RFC3339)
	return &formatted
}

// ToleratedIssueResponse represents a tolerated issue for API responses.
// Timestamps are formatted as ISO8601 strings.
type ToleratedIssueResponse struct {
	Issue       string  `json:"issue"`
	Statement   string  `json:"statement"`
	ToleratedAt string  `json:"tolerated_at"` // ISO8601
	ExpiresAt   *string `json:"expires_at"`   // ISO8601 or null
}

// AnalysisRecordResponse represents an analysis record for API responses.
// Timestamps are formatted as ISO8601 strings.
type AnalysisRecordResponse struct {
	ID                 int64                    `json:"id"`
	TestID             int64                    `json:"test_id"`
	Suite              string                   `json:"suite"`
	FilePath           string                   `json:"file_path"`
	TestName           string                   `json:"test_name"`
	SnippetHash        string                   `json:"snippet_hash"`
	FocalMethod        string                   `json:"focal_method"`
	IssueType          string                   `json:"issue_type"`
	Reasoning          string                   `json:"reasoning"`
	VerdictPassed      bool                     `json:"verdict_passed"`
	Tolerated          bool                     `json:"tolerated"`
	ErrorMessage       string                   `json:"error_message"`
	AnalysisDurationMs int64                    `json:"analysis_duration_ms"`
	CreatedAt          string                   `json:"created_at"` // ISO8601
	ToleratedIssues    []ToleratedIssueResponse `json:"tolerated_issues"`
}

// IssueRecordResponse represents a detected issue for API responses.
// Timestamps are formatted as ISO8601 strings.
type IssueRecordResponse struct {
	IssueType   string `json:"issue_type"`
	FocalMethod string `json:"focal_method"`
	Reasoning   string `json:"reasoning"`
	Suite       string `json:"suite"`
	FilePath    string `json:"file_path"`
	TestName    string `json:"test_name"`
	SnippetHash string `json:"snippet_hash"`
	AnalyzedAt  string `json:"analyzed_at"` // ISO8601
}

// TolerationInfoResponse represents toleration info for API responses.
// Timestamps are formatted as ISO8601 strings.
type TolerationInfoResponse struct {
	Issue       string  `json:"issue"`
	Statement   string  `json:"statement"`
	ToleratedAt string  `json:"tolerated_at"` // ISO8601
	ExpiresAt   *string `json:"expires_at"`   // ISO8601 or null
	Suite       string  `json:"suite"`
}

// toToleratedIssueResponse converts an internal ToleratedIssue to a response DTO.
func toToleratedIssueResponse(issue types.ToleratedIssue) ToleratedIssueResponse {
	return ToleratedIssueResponse{
		Issue:       issue.Issue,
		Statement:   issue.Statement,
		ToleratedAt: issue.ToleratedAt.UTC().Format(time.RFC3339),
		ExpiresAt:   formatNullableTime(issue.ExpiresAt),
	}
}

// toAnalysisRecordResponse converts an internal AnalysisRecord to a response DTO.
func toAnalysisRecordResponse(record *statestore.AnalysisRecord) *AnalysisRecordResponse {
	if record == nil {
		return nil
	}

	toleratedIssues := make([]ToleratedIssueResponse, len(record.ToleratedIssues))
	for i, issue := range record.ToleratedIssues {
		toleratedIssues[i] = toToleratedIssueResponse(issue)
	}

	return &AnalysisRecordResponse{
		ID:                 record.ID,
		TestID:             record.TestID,
		Suite:              record.Suite,
		FilePath:           record.FilePath,
		TestName:           record.TestName,
		SnippetHash:        record.SnippetHash,
		FocalMethod:        record.FocalMethod,
		IssueType:          record.IssueType,
		Reasoning:          record.Reasoning,
		VerdictPassed:      record.VerdictPassed,
		Tolerated:          record.Tolerated,
		ErrorMessage:       record.ErrorMessage,
		AnalysisDurationMs: record.AnalysisDurationMs,
		CreatedAt:          formatTimestamp(record.CreatedAt),
		ToleratedIssues:    toleratedIssues,
	}
}

// toAnalysisRecordResponses converts a slice of records to response DTOs.
func toAnalysisRecordResponses(records []*statestore.AnalysisRecord) []*AnalysisRecordResponse {
	responses := make([]*AnalysisRecordResponse, len(records))
	for i, record := range records {
		responses[i] = toAnalysisRecordResponse(record)
	}
	return responses
}

// toIssueRecordResponse converts an internal IssueRecord to a response DTO.
func toIssueRecordResponse(issue *statestore.IssueRecord) *IssueRecordResponse {
	if issue == nil {
		return nil
	}

	return &IssueRecordResponse{
		IssueType:   issue.IssueType,
		FocalMethod: issue.FocalMethod,
		Reasoning:   issue.Reasoning,
		Suite:       issue.Suite,
		FilePath:    issue.FilePath,
		TestName:    issue.TestName,
		SnippetHash: issue.SnippetHash,
		AnalyzedAt:  formatTimestamp(issue.AnalyzedAt),
	}
}

// toIssueRecordResponses converts a slice of issues to response DTOs.
func toIssueRecordResponses(issues []*statestore.IssueRecord) []*IssueRecordResponse {
	responses := make([]*IssueRecordResponse, len(issues))
	for i, issue := range issues {
		responses[i] = toIssueRecordResponse(issue)
	}
	return responses
}

// toTolerationInfoResponse converts an internal TolerationInfo to a response DTO.
func toTolerationInfoResponse(info *types.TolerationInfo) *TolerationInfoResponse {
	if info == nil {
		return nil
	}

	return &TolerationInfoResponse{
		Issue:       info.Issue,
		Statement:   info.Statement,
		ToleratedAt: info.ToleratedAt.UTC().Format(time.RFC3339),
		ExpiresAt:   formatNullableTime(info.ExpiresAt),
		Suite:       info.Suite,
	}
}

// toTolerationInfoResponses converts a slice of toleration infos to response DTOs.
func toTolerationInfoResponses(infos []*types.TolerationInfo) []*TolerationInfoResponse {
	responses := make([]*TolerationInfoResponse, len(infos))
	for i, info := range infos {
		responses[i] = toTolerationInfoResponse(info)
	}
	return responses
}
