package policy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/daimoniac/aaalint/internal/config"
	"github.com/daimoniac/aaalint/internal/report"
	"github.com/daimoniac/aaalint/internal/types"
)

// PolicyEngine defines the interface for verdict evaluation
type PolicyEngine interface {
	// Evaluate determines if an analysis report passes the suite policy.
	// Applies issue tolerations from the lintfile for the target suite.
	Evaluate(ctx context.Context, testRef string, rep *report.Report, tolerations []types.IssueToleration) (*PolicyDecision, error)
}

// PolicyDecision represents the result of verdict evaluation
type PolicyDecision struct {
	Passed              bool
	Reason              string
	Tolerated           bool
	ToleratedIssues     []types.ToleratedIssue
	ExpiringTolerations []ExpiringToleration
}

// ExpiringToleration represents a toleration that is expiring soon
type ExpiringToleration struct {
	Issue     string
	Statement string
	ExpiresAt time.Time
	DaysUntil int
}

// Engine implements the PolicyEngine interface using CEL expressions
type Engine struct {
	logger              *slog.Logger
	expiryWarningWindow time.Duration
	config              config.PolicyConfig
	celEnv              *cel.Env
	celProgram          cel.Program
}

// NewEngine creates a new policy engine with a CEL-based verdict policy.
//
// Available variables in the expression:
//   - issueType: the finding reported by the analyzer (e.g. "Good AAA")
//   - focalMethod: name of the method the test exercises
//   - suite: name of the suite the test belongs to
//   - isViolation: true when issueType is a deviation from the AAA pattern
//   - tolerated: true when the finding is covered by an active toleration
//   - hasError: true when the analyzer returned an error instead of a finding
func NewEngine(logger *slog.Logger, cfg config.PolicyConfig) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// Default policy: the test follows the AAA pattern or the deviation is tolerated
	if cfg.Expression == "" {
		cfg.Expression = `issueType == "Good AAA" || tolerated`
		cfg.FailureMessage = "test deviates from the AAA pattern"
	}

	env, err := cel.NewEnv(
		cel.Variable("issueType", cel.StringType),
		cel.Variable("focalMethod", cel.StringType),
		cel.Variable("suite", cel.StringType),
		cel.Variable("isViolation", cel.BoolType),
		cel.Variable("tolerated", cel.BoolType),
		cel.Variable("hasError", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile policy expression: %w", issues.Err())
	}

	// Check that the expression returns a boolean
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("policy expression must return a boolean, got %v", ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return &Engine{
		logger:              logger,
		expiryWarningWindow: 7 * 24 * time.Hour,
		config:              cfg,
		celEnv:              env,
		celProgram:          program,
	}, nil
}

// Evaluate determines if an analysis report passes the suite policy
func (e *Engine) Evaluate(ctx context.Context, testRef string, rep *report.Report, tolerations []types.IssueToleration) (*PolicyDecision, error) {
	if rep == nil {
		return nil, fmt.Errorf("analysis report is nil")
	}

	decision := &PolicyDecision{
		ToleratedIssues:     make([]types.ToleratedIssue, 0),
		ExpiringTolerations: make([]ExpiringToleration, 0),
	}

	// Build a map of active tolerations (not expired)
	now := time.Now()
	activeTolerations := make(map[string]types.IssueToleration)

	for _, toleration := range tolerations {
		if !toleration.Active(now) {
			e.logger.Debug("toleration expired",
				"issue", toleration.Issue,
				"expired_at", toleration.ExpiresAt,
				"test", testRef)
			continue
		}

		activeTolerations[toleration.Issue] = toleration

		// Check if toleration is expiring soon
		if toleration.ExpiresAt != nil {
			timeUntilExpiry := toleration.ExpiresAt.Sub(now)
			if timeUntilExpiry > 0 && timeUntilExpiry <= e.expiryWarningWindow {
				daysUntil := int(timeUntilExpiry.Hours() / 24)
				decision.ExpiringTolerations = append(decision.ExpiringTolerations, ExpiringToleration{
					Issue:     toleration.Issue,
					Statement: toleration.Statement,
					ExpiresAt: *toleration.ExpiresAt,
					DaysUntil: daysUntil,
				})

				e.logger.Warn("toleration expiring soon",
					"issue", toleration.Issue,
					"statement", toleration.Statement,
					"expires_at", toleration.ExpiresAt,
					"days_until_expiry", daysUntil,
					"test", testRef)
			}
		}
	}

	issue := rep.Issue()
	tolerated := false
	if !rep.IsError() && issue.IsViolation() {
		if toleration, ok := activeTolerations[string(issue)]; ok {
			tolerated = true
			decision.ToleratedIssues = append(decision.ToleratedIssues, types.ToleratedIssue{
				Issue:       toleration.Issue,
				Statement:   toleration.Statement,
				ToleratedAt: now,
				ExpiresAt:   toleration.ExpiresAt,
			})

			e.logger.Info("issue tolerated",
				"issue", issue,
				"statement", toleration.Statement,
				"focal_method", rep.FocalMethod,
				"test", testRef)
		}
	}
	decision.Tolerated = tolerated

	suite, _ := splitTestRef(testRef)

	celInput := map[string]interface{}{
		"issueType":   rep.IssueType,
		"focalMethod": rep.FocalMethod,
		"suite":       suite,
		"isViolation": issue.IsViolation(),
		"tolerated":   tolerated,
		"hasError":    rep.IsError(),
	}

	out, _, err := e.celProgram.Eval(celInput)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	passed, ok := out.Value().(bool)
	if !ok {
		return nil, fmt.Errorf("policy expression did not return a boolean: %v", out.Value())
	}

	decision.Passed = passed

	if passed {
		decision.Reason = fmt.Sprintf("policy passed: issue=%q (tolerated=%t)", rep.IssueType, tolerated)

		e.logger.Info("verdict evaluation passed",
			"test", testRef,
			"issue", rep.IssueType,
			"tolerated", tolerated)
	} else {
		if e.config.FailureMessage != "" {
			decision.Reason = e.config.FailureMessage
		} else {
			decision.Reason = fmt.Sprintf("policy failed: issue=%q (tolerated=%t)", rep.IssueType, tolerated)
		}

		e.logger.Warn("verdict evaluation failed",
			"test", testRef,
			"issue", rep.IssueType,
			"focal_method", rep.FocalMethod,
			"reasoning", rep.Reasoning,
			"expression", e.config.Expression)
	}

	return decision, nil
}

// SetExpiryWarningWindow sets the duration before expiry to trigger warnings
func (e *Engine) SetExpiryWarningWindow(duration time.Duration) {
	e.expiryWarningWindow = duration
}

// splitTestRef splits a "suite/file::test" reference into suite and remainder
func splitTestRef(testRef string) (string, string) {
	for i := 0; i < len(testRef); i++ {
		if testRef[i] == '/' {
			return testRef[:i], testRef[i+1:]
		}
	}
	return testRef, ""
}
