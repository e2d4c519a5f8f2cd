// Package report parses the XML analysis envelope returned by the analyzer
// backend into a structured result.
package report

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/daimoniac/aaalint/internal/errors"
	"github.com/daimoniac/aaalint/internal/types"
)

// Report is the parsed form of one analysis envelope
type Report struct {
	XMLName     xml.Name `xml:"analysis" json:"-"`
	FocalMethod string   `xml:"focal_method" json:"focal_method"`
	IssueType   string   `xml:"issueType" json:"issue_type"`
	Reasoning   string   `xml:"reasoning" json:"reasoning"`
	Error       string   `xml:"error" json:"error,omitempty"`
}

// IsError reports whether the envelope carries a backend error instead of a finding
func (r *Report) IsError() bool {
	return r.Error != ""
}

// Issue returns the finding as a typed issue
func (r *Report) Issue() types.IssueType {
	return types.IssueType(r.IssueType)
}

// Parse extracts and decodes the <analysis> envelope from raw analyzer output.
// Models occasionally wrap the envelope in prose or markdown fences, so the
// envelope is located by its tags rather than decoded from position zero.
func Parse(raw string) (*Report, error) {
	envelope, err := extractEnvelope(raw)
	if err != nil {
		return nil, err
	}

	var report Report
	if err := xml.Unmarshal([]byte(envelope), &report); err != nil {
		return nil, errors.NewPermanentf("failed to decode analysis envelope: %w", err)
	}

	report.FocalMethod = strings.TrimSpace(report.FocalMethod)
	report.IssueType = strings.TrimSpace(report.IssueType)
	report.Reasoning = strings.TrimSpace(report.Reasoning)
	report.Error = strings.TrimSpace(report.Error)

	if report.Error == "" && report.IssueType == "" {
		return nil, errors.NewPermanentf("analysis envelope carries neither an issue type nor an error")
	}

	if report.Error == "" && !report.Issue().Known() {
		return nil, errors.NewPermanentf("unknown issue type %q in analysis envelope", report.IssueType)
	}

	return &report, nil
}

// extractEnvelope returns the first <analysis>...</analysis> block in raw
func extractEnvelope(raw string) (string, error) {
	start := strings.Index(raw, "<analysis>")
	if start < 0 {
		return "", errors.NewPermanentf("no analysis envelope in analyzer output")
	}

	const closing = "</analysis>"
	end := strings.Index(raw[start:], closing)
	if end < 0 {
		return "", errors.NewPermanentf("unterminated analysis envelope in analyzer output")
	}

	return raw[start : start+end+len(closing)], nil
}

// ErrorEnvelope renders a backend failure in the same envelope format the
// analyzer itself uses, so downstream consumers see a single shape.
func ErrorEnvelope(detail string) string {
	var b strings.Builder
	b.WriteString("<analysis><error>")
	if err := xml.EscapeText(&b, []byte(detail)); err != nil {
		return "<analysis><error>analysis failed</error></analysis>"
	}
	b.WriteString("</error></analysis>")
	return b.String()
}

// SyntaxErrorEnvelope is the fixed envelope returned for unparseable input
func SyntaxErrorEnvelope() string {
	return "<analysis><error>Invalid Python Code</error></analysis>"
}

// String renders the report back into envelope form
func (r *Report) String() string {
	if r.IsError() {
		return ErrorEnvelope(r.Error)
	}
	return fmt.Sprintf("<analysis><focal_method>%s</focal_method><issueType>%s</issueType><reasoning>%s</reasoning></analysis>",
		r.FocalMethod, r.IssueType, r.Reasoning)
}
