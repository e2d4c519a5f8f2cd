package types

import "time"

// IssueType identifies an AAA structure finding reported by the analyzer.
// The values mirror the analyzer's output vocabulary exactly.
type IssueType string

const (
	// IssueGoodAAA means the test follows the Arrange-Act-Assert pattern
	IssueGoodAAA IssueType = "Good AAA"

	// IssueMultipleAAA means the test contains more than one arrange-act-assert sequence
	IssueMultipleAAA IssueType = "Multiple AAA"

	// IssueMissingAssert means the test acts but never asserts
	IssueMissingAssert IssueType = "Missing Assert"

	// IssueAssertPrecondition means the test asserts before the act phase
	IssueAssertPrecondition IssueType = "Assert Pre-condition"

	// IssueObscureAssert means the assertion is buried in loops or branches
	IssueObscureAssert IssueType = "Obscure Assert"
)

// KnownIssueTypes returns every issue type the analyzer can report.
func KnownIssueTypes() []IssueType {
	return []IssueType{
		IssueGoodAAA,
		IssueMultipleAAA,
		IssueMissingAssert,
		IssueAssertPrecondition,
		IssueObscureAssert,
	}
}

// Known reports whether t is part of the analyzer vocabulary.
func (t IssueType) Known() bool {
	for _, known := range KnownIssueTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// IsViolation reports whether t represents an actual AAA deviation.
func (t IssueType) IsViolation() bool {
	return t != IssueGoodAAA && t != ""
}

// IssueToleration represents the canonical issue toleration type.
// This is the single source of truth for toleration data structures.
type IssueToleration struct {
	Issue     string     `yaml:"issue" json:"issue"`
	Statement string     `yaml:"statement" json:"statement"`
	ExpiresAt *time.Time `yaml:"expiresAt,omitempty" json:"expires_at,omitempty"` // nil means no expiry
}

// Active reports whether the toleration applies at the given instant.
func (t IssueToleration) Active(now time.Time) bool {
	return t.ExpiresAt == nil || t.ExpiresAt.After(now)
}

// ToleratedIssue extends IssueToleration with tracking metadata for storage.
// Used by the state store to record when and where tolerations were applied.
type ToleratedIssue struct {
	Issue       string     `json:"issue"`
	Statement   string     `json:"statement"`
	ToleratedAt time.Time  `json:"tolerated_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"` // nil means no expiry
}

// TolerationInfo extends ToleratedIssue with suite context for queries.
type TolerationInfo struct {
	Issue       string     `json:"issue"`
	Statement   string     `json:"statement"`
	ToleratedAt time.Time  `json:"tolerated_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Suite       string     `json:"suite"`
}
