package types

import "time"

// TolerationConverter provides conversion methods for IssueToleration types.
type TolerationConverter struct{}

// NewTolerationConverter creates a new TolerationConverter instance.
func NewTolerationConverter() *TolerationConverter {
	return &TolerationConverter{}
}

// ToToleratedIssue converts an IssueToleration to a ToleratedIssue with timestamp.
func (c *TolerationConverter) ToToleratedIssue(
	toleration IssueToleration,
	toleratedAt time.Time,
) ToleratedIssue {
	return ToleratedIssue{
		Issue:       toleration.Issue,
		Statement:   toleration.Statement,
		ToleratedAt: toleratedAt,
		ExpiresAt:   toleration.ExpiresAt,
	}
}

// ToToleratedIssues converts a slice of IssueTolerations to ToleratedIssues.
func (c *TolerationConverter) ToToleratedIssues(
	tolerations []IssueToleration,
	toleratedAt time.Time,
) []ToleratedIssue {
	records := make([]ToleratedIssue, len(tolerations))
	for i, toleration := range tolerations {
		records[i] = c.ToToleratedIssue(toleration, toleratedAt)
	}
	return records
}

// MergeTolerations combines default and suite-specific tolerations. A
// suite-specific entry for the same issue wins over the default one.
func MergeTolerations(defaults, specific []IssueToleration) []IssueToleration {
	merged := make([]IssueToleration, 0, len(defaults)+len(specific))
	seen := make(map[string]bool, len(specific))

	for _, t := range specific {
		merged = append(merged, t)
		seen[t.Issue] = true
	}
	for _, t := range defaults {
		if !seen[t.Issue] {
			merged = append(merged, t)
		}
	}

	return merged
}
