package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/daimoniac/aaalint/internal/errors"
	"github.com/daimoniac/aaalint/internal/observability"
	"github.com/daimoniac/aaalint/internal/policy"
	"github.com/daimoniac/aaalint/internal/queue"
	"github.com/daimoniac/aaalint/internal/report"
	"github.com/daimoniac/aaalint/internal/statestore"
)

// Pipeline orchestrates the complete analysis workflow
type Pipeline struct {
	worker *AnalysisWorker
	logger *slog.Logger
}

// NewPipeline creates a new pipeline instance
func NewPipeline(worker *AnalysisWorker, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		worker: worker,
		logger: logger,
	}
}

// Execute runs the complete analysis workflow for a single test snippet
func (p *Pipeline) Execute(ctx context.Context, task *queue.AnalysisTask) error {
	startTime := time.Now()
	testRef := fmt.Sprintf("%s/%s::%s", task.Suite, task.FilePath, task.TestName)

	p.logger.Info("starting analysis workflow",
		"task_id", task.ID,
		"test_ref", testRef,
		"is_reanalyze", task.IsReanalyze)

	if err := p.validateDependencies(); err != nil {
		return err
	}

	// Phase 1: Parse (AST dump + syntax validation)
	parseResult, err := p.parsePhase(ctx, task, testRef)
	if errors.IsSyntax(err) {
		// Unparseable snippets get a recorded error verdict, never a retry
		return p.recordSyntaxError(ctx, task, testRef, startTime)
	}
	if err != nil {
		return err
	}

	// Phase 2: Analysis (LLM backend)
	rawResult, err := p.analysisPhase(ctx, task, testRef, parseResult.AST)
	if err != nil {
		return err
	}

	// Phase 3: Report extraction
	rep, err := report.Parse(rawResult)
	if err != nil {
		return fmt.Errorf("failed to parse analysis report: %w", err)
	}

	// Phase 4: Verdict evaluation
	decision, err := p.policyPhase(ctx, task, testRef, rep)
	if err != nil {
		return err
	}

	// Phase 5: Persistence. The previous record must be read before the new
	// one is written, or the regression check compares the result to itself.
	previous := p.previousAnalysis(ctx, task)

	if err := p.persistencePhase(ctx, task, testRef, rep, rawResult, decision, startTime); err != nil {
		// Log error but don't fail, the analysis itself succeeded
		p.logger.Error("failed to persist analysis results", "test_ref", testRef, "error", err)
	}

	p.checkVerdictFailures(task, testRef, decision, previous)

	p.logCompletion(task, testRef, startTime, rep, decision)

	return nil
}

// validateDependencies ensures all required components are configured
func (p *Pipeline) validateDependencies() error {
	if p.worker.parser == nil {
		return fmt.Errorf("snippet parser is not configured")
	}
	if p.worker.analyzer == nil {
		return fmt.Errorf("analyzer backend is not configured")
	}
	if p.worker.policy == nil {
		return fmt.Errorf("policy engine is not configured")
	}
	if p.worker.stateStore == nil {
		return fmt.Errorf("state store is not configured")
	}
	return nil
}

// parsePhase validates the snippet and produces its AST dump
func (p *Pipeline) parsePhase(ctx context.Context, task *queue.AnalysisTask, testRef string) (*pyastResult, error) {
	p.logger.Debug("parsing snippet", "test_ref", testRef)

	result, err := p.worker.parser.Parse(ctx, []byte(task.Source))
	if err != nil {
		return nil, err
	}

	p.logger.Debug("snippet parsed",
		"test_ref", testRef,
		"ast_size", len(result.AST),
		"snippet_hash", result.Hash)

	return &pyastResult{AST: result.AST, Hash: result.Hash}, nil
}

// pyastResult carries the parse phase output
type pyastResult struct {
	AST  string
	Hash string
}

// analysisPhase sends the snippet and its AST to the LLM backend
func (p *Pipeline) analysisPhase(ctx context.Context, task *queue.AnalysisTask, testRef, astDump string) (string, error) {
	metrics := observability.GetMetrics()

	analysisStart := time.Now()
	p.logger.Debug("requesting analysis", "test_ref", testRef)

	rawResult, err := p.worker.analyzer.Analyze(ctx, task.Source, astDump)
	metrics.AnalysesTotal.Inc()
	metrics.AnalysisDuration.Observe(time.Since(analysisStart).Seconds())
	if err != nil {
		metrics.AnalysesFailed.Inc()
		return "", fmt.Errorf("analysis request failed: %w", err)
	}

	p.logger.Info("analysis completed",
		"test_ref", testRef,
		"result_size", len(rawResult),
		"duration", time.Since(analysisStart))

	return rawResult, nil
}

// policyPhase evaluates the verdict policy with suite tolerations
func (p *Pipeline) policyPhase(ctx context.Context, task *queue.AnalysisTask, testRef string, rep *report.Report) (*policy.PolicyDecision, error) {
	policyEngine, err := p.getPolicyEngineForSuite(task.Suite)
	if err != nil {
		return nil, fmt.Errorf("failed to create policy engine: %w", err)
	}

	p.logger.Debug("evaluating verdict policy", "test_ref", testRef, "tolerations", len(task.Tolerations))
	decision, err := policyEngine.Evaluate(ctx, testRef, rep, task.Tolerations)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	p.logger.Info("verdict evaluation completed",
		"test_ref", testRef,
		"passed", decision.Passed,
		"reason", decision.Reason)

	return decision, nil
}

// recordSyntaxError persists an error verdict for an unparseable snippet
func (p *Pipeline) recordSyntaxError(ctx context.Context, task *queue.AnalysisTask, testRef string, startTime time.Time) error {
	metrics := observability.GetMetrics()
	metrics.SyntaxErrors.Inc()

	p.logger.Warn("snippet rejected as invalid python", "test_ref", testRef)

	rawResult := report.SyntaxErrorEnvelope()
	rep, err := report.Parse(rawResult)
	if err != nil {
		return fmt.Errorf("failed to build syntax error report: %w", err)
	}

	decision, err := p.policyPhase(ctx, task, testRef, rep)
	if err != nil {
		return err
	}

	if err := p.persistencePhase(ctx, task, testRef, rep, rawResult, decision, startTime); err != nil {
		p.logger.Error("failed to persist syntax error verdict", "test_ref", testRef, "error", err)
	}

	return nil
}

// persistencePhase records the analysis outcome to the state store
func (p *Pipeline) persistencePhase(ctx context.Context, task *queue.AnalysisTask, testRef string, rep *report.Report, rawResult string, decision *policy.PolicyDecision, startTime time.Time) error {
	record := buildAnalysisRecord(task, rep, rawResult, decision, startTime, p.reanalyzeIntervalForSuite(task.Suite))

	p.logger.Debug("recording analysis results", "test_ref", testRef)
	if err := p.worker.stateStore.RecordAnalysis(ctx, record); err != nil {
		return err
	}

	p.logger.Info("analysis results recorded", "test_ref", testRef, "record_id", record.ID)

	p.updateVerdictMetrics(rep, decision)
	p.cleanupExcessRecords(ctx, task, testRef)

	return nil
}

// updateVerdictMetrics increments verdict and issue counters
func (p *Pipeline) updateVerdictMetrics(rep *report.Report, decision *policy.PolicyDecision) {
	metrics := observability.GetMetrics()

	if decision.Passed {
		metrics.VerdictPassed.Inc()
	} else {
		metrics.VerdictFailed.Inc()
	}

	if !rep.IsError() && rep.Issue().IsViolation() {
		metrics.IssuesFound.WithLabelValues(rep.IssueType).Inc()
	}
	if decision.Tolerated {
		metrics.ToleratedIssues.Inc()
	}
}

// cleanupExcessRecords prunes old analysis records beyond the retention limit
func (p *Pipeline) cleanupExcessRecords(ctx context.Context, task *queue.AnalysisTask, testRef string) {
	maxRecords := p.worker.storeCfg.MaxRecordsPerTest
	if maxRecords <= 0 {
		return
	}

	storeQuery, ok := p.worker.stateStore.(statestore.StateStoreQuery)
	if !ok {
		return
	}

	if err := storeQuery.CleanupExcessRecords(ctx, task.SnippetHash, maxRecords); err != nil {
		p.logger.Warn("failed to clean up excess analysis records",
			"test_ref", testRef,
			"snippet_hash", task.SnippetHash,
			"error", err)
	}
}

// previousAnalysis returns the latest recorded analysis for a reanalyzed
// snippet, or nil when there is none
func (p *Pipeline) previousAnalysis(ctx context.Context, task *queue.AnalysisTask) *statestore.AnalysisRecord {
	if !task.IsReanalyze {
		return nil
	}

	lastAnalysis, err := p.worker.stateStore.GetLastAnalysis(ctx, task.SnippetHash)
	if err != nil {
		return nil
	}
	return lastAnalysis
}

// checkVerdictFailures logs warnings and alerts for verdict failures
func (p *Pipeline) checkVerdictFailures(task *queue.AnalysisTask, testRef string, decision *policy.PolicyDecision, previous *statestore.AnalysisRecord) {
	if !decision.Passed {
		p.logger.Warn("test failed verdict evaluation",
			"test_ref", testRef,
			"tolerated_issues", len(decision.ToleratedIssues),
			"reason", decision.Reason)
	}

	// Alert if reanalysis shows a previously passing test now fails
	if task.IsReanalyze && !decision.Passed && previous != nil && previous.VerdictPassed {
		p.logger.Error("ALERT: previously passing test now fails verdict",
			"test_ref", testRef,
			"previous_analysis", previous.CreatedAt,
			"previous_issue", previous.IssueType,
			"reason", decision.Reason)
	}
}

// logCompletion logs the final workflow completion
func (p *Pipeline) logCompletion(task *queue.AnalysisTask, testRef string, startTime time.Time, rep *report.Report, decision *policy.PolicyDecision) {
	p.logger.Info("analysis workflow completed",
		"task_id", task.ID,
		"test_ref", testRef,
		"total_duration", time.Since(startTime),
		"issue", rep.IssueType,
		"focal_method", rep.FocalMethod,
		"verdict_passed", decision.Passed,
		"tolerated", decision.Tolerated)
}

// getPolicyEngineForSuite returns a policy engine for the given suite
func (p *Pipeline) getPolicyEngineForSuite(suite string) (policy.PolicyEngine, error) {
	if p.worker.lintCfg == nil {
		return p.worker.policy, nil
	}

	suitePolicy := p.worker.lintCfg.GetPolicyForSuite(suite)
	if suitePolicy == nil || suitePolicy.Expression == "" {
		return p.worker.policy, nil
	}

	p.logger.Debug("using suite-specific policy",
		"suite", suite,
		"expression", suitePolicy.Expression)

	// Create a new policy engine with the suite-specific config
	return policy.NewEngine(p.logger, *suitePolicy)
}

// reanalyzeIntervalForSuite returns the reanalysis interval for a suite
func (p *Pipeline) reanalyzeIntervalForSuite(suite string) time.Duration {
	if p.worker.lintCfg != nil {
		if interval, err := p.worker.lintCfg.GetReanalyzeInterval(suite); err == nil && interval > 0 {
			return interval
		}
	}
	if p.worker.storeCfg.ReanalyzeInterval > 0 {
		return p.worker.storeCfg.ReanalyzeInterval
	}
	return 7 * 24 * time.Hour
}

// buildAnalysisRecord constructs an AnalysisRecord from the workflow results
func buildAnalysisRecord(
	task *queue.AnalysisTask,
	rep *report.Report,
	rawResult string,
	decision *policy.PolicyDecision,
	startTime time.Time,
	reanalyzeInterval time.Duration,
) *statestore.AnalysisRecord {
	return &statestore.AnalysisRecord{
		Suite:              task.Suite,
		FilePath:           task.FilePath,
		TestName:           task.TestName,
		SnippetHash:        task.SnippetHash,
		FocalMethod:        rep.FocalMethod,
		IssueType:          rep.IssueType,
		Reasoning:          rep.Reasoning,
		RawResult:          rawResult,
		VerdictPassed:      decision.Passed,
		Tolerated:          decision.Tolerated,
		ToleratedIssues:    decision.ToleratedIssues,
		ErrorMessage:       rep.Error,
		AnalysisDurationMs: time.Since(startTime).Milliseconds(),
		NextAnalysisAt:     time.Now().Add(reanalyzeInterval),
	}
}
