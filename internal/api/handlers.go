package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/daimoniac/aaalint/internal/config"
	aaaerrors "github.com/daimoniac/aaalint/internal/errors"
	"github.com/daimoniac/aaalint/internal/observability"
	"github.com/daimoniac/aaalint/internal/queue"
	"github.com/daimoniac/aaalint/internal/report"
	"github.com/daimoniac/aaalint/internal/statestore"
	"github.com/daimoniac/aaalint/internal/version"
)

// AnalyzeRequest represents the request body for synchronous analysis
type AnalyzeRequest struct {
	Code string `json:"code"`
}

// AnalyzeResponse represents the response for synchronous analysis
type AnalyzeResponse struct {
	Message        string `json:"message"`
	AnalysisResult string `json:"analysis_result"`
}

// RootResponse is the greeting served at /
type RootResponse struct {
	Message string `json:"message"`
	Version string `json:"version"`
}

// handleRoot responds to connectivity checks from the client
// @Summary Server greeting
// @Description Confirm the server is running and report its version
// @Tags Analysis
// @Produce json
// @Success 200 {object} RootResponse
// @Router / [get]
func (s *APIServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.respondError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.respondJSON(w, http.StatusOK, RootResponse{
		Message: "Server is Running! Use the aaalint client to send data.",
		Version: version.Version,
	})
}

// handleAnalyze analyzes a submitted code snippet synchronously
// @Summary Analyze code
// @Description Analyze a Python test snippet for AAA pattern issues and return the raw analysis report
// @Tags Analysis
// @Accept json
// @Produce json
// @Param request body AnalyzeRequest true "Code to analyze"
// @Success 200 {object} AnalyzeResponse
// @Failure 400 {object} map[string]string "Invalid request body"
// @Failure 405 {object} map[string]string "Method not allowed"
// @Router /analyze [post]
func (s *APIServer) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	metrics := observability.GetMetrics()
	metrics.AnalyzeRequests.Inc()

	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.AnalyzeRequestsFailed.Inc()
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	ctx := r.Context()

	parseResult, err := s.parser.Parse(ctx, []byte(req.Code))
	if err != nil {
		metrics.AnalyzeRequestsFailed.Inc()
		if aaaerrors.IsSyntax(err) {
			metrics.SyntaxErrors.Inc()
			s.logger.Warn("analyze request rejected as invalid python")
			s.respondJSON(w, http.StatusOK, AnalyzeResponse{
				Message:        "Syntax Error",
				AnalysisResult: report.SyntaxErrorEnvelope(),
			})
			return
		}

		s.logger.Warn("analyze request rejected", "error", err.Error())
		s.respondJSON(w, http.StatusOK, AnalyzeResponse{
			Message:        "Analysis Failed",
			AnalysisResult: fmt.Sprintf("Error: %v", err),
		})
		return
	}

	start := time.Now()
	rawResult, err := s.backend.Analyze(ctx, req.Code, parseResult.AST)
	metrics.AnalysesTotal.Inc()
	metrics.AnalysisDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.AnalyzeRequestsFailed.Inc()
		metrics.AnalysesFailed.Inc()
		s.logger.Error("analyze request failed", "error", err.Error())
		s.respondJSON(w, http.StatusOK, AnalyzeResponse{
			Message:        "Analysis Failed",
			AnalysisResult: fmt.Sprintf("Error: %v", err),
		})
		return
	}

	s.logger.Info("analyze request completed",
		"snippet_hash", parseResult.Hash,
		"duration", time.Since(start))

	s.respondJSON(w, http.StatusOK, AnalyzeResponse{
		Message:        "Analysis Complete",
		AnalysisResult: rawResult,
	})
}

// handleListAnalyses lists analysis records with optional filters
// @Summary List analyses
// @Description List analysis records with optional filtering and pagination
// @Tags Analyses
// @Accept json
// @Produce json
// @Param suite query string false "Filter by suite name"
// @Param verdict_passed query boolean false "Filter by verdict status"
// @Param latest_only query boolean false "Only the latest record per test"
// @Param limit query int false "Maximum number of results" default(100)
// @Param offset query int false "Pagination offset" default(0)
// @Success 200 {array} AnalysisRecordResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Internal server error"
// @Security BearerAuth
// @Router /analyses [get]
func (s *APIServer) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	filter := statestore.AnalysisFilter{
		Suite:         parseQueryParam(r, "suite"),
		VerdictPassed: parseQueryParamBool(r, "verdict_passed"),
		Limit:         parseQueryParamInt(r, "limit", 100),
		Offset:        parseQueryParamInt(r, "offset", 0),
	}
	if latestOnly := parseQueryParamBool(r, "latest_only"); latestOnly != nil {
		filter.LatestOnly = *latestOnly
	}

	records, err := s.stateStore.ListAnalyses(r.Context(), filter)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list analyses: %v", err))
		return
	}

	s.respondJSON(w, http.StatusOK, toAnalysisRecordResponses(records))
}

// handleGetAnalysis retrieves a single analysis record by ID
// @Summary Get analysis by ID
// @Description Retrieve a single analysis record
// @Tags Analyses
// @Accept json
// @Produce json
// @Param id path int true "Analysis record ID"
// @Success 200 {object} AnalysisRecordResponse
// @Failure 400 {object} map[string]string "Invalid ID"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Analysis not found"
// @Failure 500 {object} map[string]string "Internal server error"
// @Security BearerAuth
// @Router /analyses/{id} [get]
func (s *APIServer) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	// Path format: /api/v1/analyses/{id}
	prefix := "/api/v1/analyses/"
	idStr := strings.TrimPrefix(r.URL.Path, prefix)
	if idStr == "" || strings.Contains(idStr, "/") {
		s.respondError(w, http.StatusBadRequest, "Analysis ID is required")
		return
	}

	var id int64
	if _, err := fmt.Sscanf(idStr, "%d", &id); err != nil || id <= 0 {
		s.respondError(w, http.StatusBadRequest, "Invalid analysis ID")
		return
	}

	record, err := s.stateStore.GetAnalysis(r.Context(), id)
	if err != nil {
		if errors.Is(err, statestore.ErrAnalysisNotFound) {
			s.respondError(w, http.StatusNotFound, "Analysis not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to get analysis: %v", err))
		return
	}

	s.respondJSON(w, http.StatusOK, toAnalysisRecordResponse(record))
}

// handleQueryIssues searches detected issues across all analyses
// @Summary Query issues
// @Description Search for detected AAA issues across the latest analyses
// @Tags Issues
// @Accept json
// @Produce json
// @Param issue_type query string false "Filter by issue type (e.g. Missing Assert)"
// @Param suite query string false "Filter by suite name"
// @Param test query string false "Filter by test name"
// @Param limit query int false "Maximum number of results" default(100)
// @Success 200 {array} IssueRecordResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Internal server error"
// @Security BearerAuth
// @Router /issues [get]
func (s *APIServer) handleQueryIssues(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	filter := statestore.IssueFilter{
		IssueType: parseQueryParam(r, "issue_type"),
		Suite:     parseQueryParam(r, "suite"),
		TestName:  parseQueryParam(r, "test"),
		Limit:     parseQueryParamInt(r, "limit", 100),
	}

	issues, err := s.stateStore.QueryIssues(r.Context(), filter)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to query issues: %v", err))
		return
	}

	s.respondJSON(w, http.StatusOK, toIssueRecordResponses(issues))
}

// handleListTolerations lists tolerated issues with optional filters
// @Summary List tolerations
// @Description List all issue tolerations observed in analysis records. Returns one entry per unique suite + issue combination.
// @Tags Tolerations
// @Accept json
// @Produce json
// @Param issue query string false "Filter by issue type"
// @Param suite query string false "Filter by suite name"
// @Param expired query boolean false "Filter by expiration status"
// @Param expiring_soon query boolean false "Show tolerations expiring within 7 days"
// @Param limit query int false "Maximum number of results" default(100)
// @Success 200 {array} TolerationInfoResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Internal server error"
// @Security BearerAuth
// @Router /tolerations [get]
func (s *APIServer) handleListTolerations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	filter := statestore.TolerationFilter{
		Issue:        parseQueryParam(r, "issue"),
		Suite:        parseQueryParam(r, "suite"),
		Expired:      parseQueryParamBool(r, "expired"),
		ExpiringSoon: parseQueryParamBool(r, "expiring_soon"),
		Limit:        parseQueryParamInt(r, "limit", 100),
	}

	tolerations, err := s.stateStore.ListTolerations(r.Context(), filter)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list tolerations: %v", err))
		return
	}

	s.respondJSON(w, http.StatusOK, toTolerationInfoResponses(tolerations))
}

// TriggerAnalysisRequest represents the request body for triggering reanalysis
type TriggerAnalysisRequest struct {
	Suite string `json:"suite"`
	File  string `json:"file,omitempty"`
}

// TriggerAnalysisResponse represents the response for a triggered reanalysis
type TriggerAnalysisResponse struct {
	Queued int    `json:"queued"`
	Suite  string `json:"suite"`
}

// handleTriggerAnalysis re-enqueues a suite (or one of its files) for analysis
// @Summary Trigger reanalysis
// @Description Reload the lintfile and enqueue all tests of a suite (optionally restricted to one file) for background analysis
// @Tags Analyses
// @Accept json
// @Produce json
// @Param request body TriggerAnalysisRequest true "Trigger request"
// @Success 200 {object} TriggerAnalysisResponse
// @Failure 400 {object} map[string]string "Invalid request"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "API is in read-only mode"
// @Failure 404 {object} map[string]string "Suite not found"
// @Failure 500 {object} map[string]string "Internal server error"
// @Security BearerAuth
// @Router /analyses/trigger [post]
func (s *APIServer) handleTriggerAnalysis(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req TriggerAnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	if req.Suite == "" {
		s.respondError(w, http.StatusBadRequest, "Suite must be specified")
		return
	}

	ctx := r.Context()

	// Reload the lintfile so a trigger picks up toleration and path edits
	lintConfig, err := config.ParseLintfile(s.lintfilePath)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load lintfile: %v", err))
		return
	}

	suite := lintConfig.GetSuite(req.Suite)
	if suite == nil {
		s.respondError(w, http.StatusNotFound, "Suite not found")
		return
	}

	tolerations := lintConfig.GetTolerationsForSuite(req.Suite)

	queuedCount := 0
	for _, pattern := range suite.Paths {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid suite path pattern: %v", err))
			return
		}

		for _, file := range matches {
			if req.File != "" && file != req.File {
				continue
			}

			source, err := os.ReadFile(file)
			if err != nil {
				s.logger.Error("failed to read test file for trigger",
					"file", file,
					"error", err.Error())
				continue
			}

			snippets, err := s.parser.ExtractTests(ctx, source)
			if err != nil {
				s.logger.Warn("skipping unparseable test file",
					"file", file,
					"error", err.Error())
				continue
			}

			for _, snippet := range snippets {
				task := &queue.AnalysisTask{
					ID:          fmt.Sprintf("%s-%d", snippet.Hash, time.Now().UnixNano()),
					Suite:       req.Suite,
					FilePath:    file,
					TestName:    snippet.Name,
					Source:      snippet.Source,
					SnippetHash: snippet.Hash,
					EnqueuedAt:  time.Now(),
					IsReanalyze: true,
					Tolerations: tolerations,
				}

				if err := s.taskQueue.Enqueue(ctx, task); err != nil {
					s.logger.Error("failed to enqueue analysis task",
						"file", file,
						"test", snippet.Name,
						"error", err.Error())
					continue
				}
				queuedCount++
			}
		}
	}

	s.logger.Info("triggered suite reanalysis",
		"suite", req.Suite,
		"file_filter", req.File,
		"queued", queuedCount)

	s.respondJSON(w, http.StatusOK, TriggerAnalysisResponse{
		Queued: queuedCount,
		Suite:  req.Suite,
	})
}

// handleVersion reports the server version
// @Summary Server version
// @Description Report the server's semantic version for client compatibility checks
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /version [get]
func (s *APIServer) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{
		"version": version.Version,
	})
}

// handleHealth provides health check endpoint
// @Summary Health check
// @Description Check the health status of the API server
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// handleMetrics provides Prometheus metrics endpoint
// @Summary Prometheus metrics
// @Description Expose Prometheus-compatible metrics
// @Tags Health
// @Produce plain
// @Success 200 {string} string "Prometheus metrics"
// @Router /metrics [get]
func (s *APIServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	promhttp.Handler().ServeHTTP(w, r)
}
