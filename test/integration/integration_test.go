// Package integration exercises the full analysis pipeline end to end:
// suite discovery, queueing, worker processing, persistence, and the
// query API, with only the LLM backend mocked out.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/daimoniac/aaalint/internal/api"
	"github.com/daimoniac/aaalint/internal/config"
	"github.com/daimoniac/aaalint/internal/observability"
	"github.com/daimoniac/aaalint/internal/policy"
	"github.com/daimoniac/aaalint/internal/pyast"
	"github.com/daimoniac/aaalint/internal/queue"
	"github.com/daimoniac/aaalint/internal/statestore"
	"github.com/daimoniac/aaalint/internal/watcher"
	"github.com/daimoniac/aaalint/internal/worker"
)

const goodEnvelope = "<analysis><focal_method>add_item</focal_method><issueType>Good AAA</issueType><reasoning>Clear arrange, act, assert phases.</reasoning></analysis>"

const suiteSource = `def test_add_item():
    cart = Cart()
    cart.add_item("apple", 2)
    assert cart.count() == 2

def test_remove_item():
    cart = Cart()
    cart.add_item("apple", 2)
    cart.remove_item("apple")
    assert cart.count() == 0
`

type fixedBackend struct {
	result string
}

func (b *fixedBackend) Analyze(ctx context.Context, testCode, astDump string) (string, error) {
	return b.result, nil
}

func (b *fixedBackend) HealthCheck(ctx context.Context) error {
	return nil
}

// pipelineEnv wires real components around a mocked analyzer backend
type pipelineEnv struct {
	lintCfg   *config.LintConfig
	parser    *pyast.Parser
	store     *statestore.SQLiteStore
	taskQueue *queue.InMemoryQueue
	worker    worker.Worker
	watcher   watcher.Watcher
	apiServer *api.APIServer
	lintfile  string
}

func setupPipeline(t *testing.T) *pipelineEnv {
	t.Helper()

	dir := t.TempDir()
	suitePath := filepath.Join(dir, "test_cart.py")
	if err := os.WriteFile(suitePath, []byte(suiteSource), 0o644); err != nil {
		t.Fatalf("failed to write suite file: %v", err)
	}

	lintfilePath := filepath.Join(dir, "aaalint.yml")
	lintfile := fmt.Sprintf(`version: 1
defaults:
  reanalyzeInterval: 7d
suites:
  - name: cart
    paths:
      - %q
`, filepath.Join(dir, "test_*.py"))
	if err := os.WriteFile(lintfilePath, []byte(lintfile), 0o644); err != nil {
		t.Fatalf("failed to write lintfile: %v", err)
	}

	lintCfg, err := config.ParseLintfile(lintfilePath)
	if err != nil {
		t.Fatalf("failed to parse lintfile: %v", err)
	}

	store, err := statestore.NewSQLiteStore(filepath.Join(dir, "aaalint.db"))
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	logger := observability.NewLogger("error")
	parser := pyast.NewParser()
	taskQueue := queue.NewInMemoryQueue(100)

	policyEngine, err := policy.NewEngine(logger, config.PolicyConfig{})
	if err != nil {
		t.Fatalf("failed to create policy engine: %v", err)
	}

	backend := &fixedBackend{result: goodEnvelope}

	storeCfg := config.StateStoreConfig{
		Type:              "sqlite",
		ReanalyzeInterval: 7 * 24 * time.Hour,
		MaxRecordsPerTest: 20,
	}

	workerCfg := worker.Config{RetryAttempts: 3, RetryBackoff: time.Millisecond, Concurrency: 2}
	w := worker.NewAnalysisWorker(taskQueue, parser, backend, policyEngine, store, workerCfg, storeCfg, lintCfg, logger)

	watcherCfg := watcher.Config{PollInterval: time.Hour}
	suiteWatcher := watcher.NewWatcher(lintCfg, parser, store, taskQueue, watcherCfg, logger)

	apiCfg := &config.APIConfig{Enabled: true, Port: 0}
	apiServer := api.NewAPIServer(apiCfg, store, taskQueue, parser, backend, lintfilePath, logger)

	return &pipelineEnv{
		lintCfg:   lintCfg,
		parser:    parser,
		store:     store,
		taskQueue: taskQueue,
		worker:    w,
		watcher:   suiteWatcher,
		apiServer: apiServer,
		lintfile:  lintfilePath,
	}
}

// waitForRecords polls the store until count analyses exist or the deadline passes
func waitForRecords(t *testing.T, store statestore.StateStoreQuery, count int) []*statestore.AnalysisRecord {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		records, err := store.ListAnalyses(context.Background(), statestore.AnalysisFilter{Limit: 100})
		if err != nil {
			t.Fatalf("failed to list analyses: %v", err)
		}
		if len(records) >= count {
			return records
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d analysis records", count)
	return nil
}

func TestPipeline_DiscoverAnalyzePersist(t *testing.T) {
	env := setupPipeline(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go env.worker.Start(ctx)

	if err := env.watcher.Discover(ctx); err != nil {
		t.Fatalf("discovery failed: %v", err)
	}

	records := waitForRecords(t, env.store, 2)

	names := map[string]bool{}
	for _, r := range records {
		names[r.TestName] = true
		if r.Suite != "cart" {
			t.Errorf("expected suite cart, got %s", r.Suite)
		}
		if r.IssueType != "Good AAA" {
			t.Errorf("expected issue type Good AAA, got %s", r.IssueType)
		}
		if !r.VerdictPassed {
			t.Errorf("expected verdict to pass for %s", r.TestName)
		}
	}
	if !names["test_add_item"] || !names["test_remove_item"] {
		t.Errorf("expected both tests analyzed, got %v", names)
	}

	// A second discovery pass finds nothing new
	if err := env.watcher.Discover(ctx); err != nil {
		t.Fatalf("second discovery failed: %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	records, err := env.store.ListAnalyses(context.Background(), statestore.AnalysisFilter{Limit: 100})
	if err != nil {
		t.Fatalf("failed to list analyses: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("expected 2 records after re-discovery, got %d", len(records))
	}
}

func TestPipeline_QueryAPIServesRecords(t *testing.T) {
	env := setupPipeline(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go env.worker.Start(ctx)
	if err := env.watcher.Discover(ctx); err != nil {
		t.Fatalf("discovery failed: %v", err)
	}
	waitForRecords(t, env.store, 2)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analyses?latest_only=true", nil)
	rec := httptest.NewRecorder()
	env.apiServer.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var analyses []map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&analyses); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(analyses) != 2 {
		t.Fatalf("expected 2 analyses, got %d", len(analyses))
	}

	createdAt, _ := analyses[0]["created_at"].(string)
	if !strings.HasSuffix(createdAt, "Z") {
		t.Errorf("expected ISO8601 UTC timestamp, got %q", createdAt)
	}
}

func TestPipeline_AnalyzeEndpoint(t *testing.T) {
	env := setupPipeline(t)

	body := strings.NewReader(`{"code": "def test_add_item():\n    cart = Cart()\n    cart.add_item(\"apple\", 2)\n    assert cart.count() == 2\n"}`)
	req := httptest.NewRequest(http.MethodPost, "/analyze", body)
	rec := httptest.NewRecorder()
	env.apiServer.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Message        string `json:"message"`
		AnalysisResult string `json:"analysis_result"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Message != "Analysis Complete" {
		t.Errorf("expected Analysis Complete, got %q", resp.Message)
	}
	if resp.AnalysisResult != goodEnvelope {
		t.Errorf("unexpected analysis result: %q", resp.AnalysisResult)
	}
}

func TestPipeline_SyntaxErrorThroughAnalyzeEndpoint(t *testing.T) {
	env := setupPipeline(t)

	body := strings.NewReader(`{"code": "def test_broken(:\n    pass\n"}`)
	req := httptest.NewRequest(http.MethodPost, "/analyze", body)
	rec := httptest.NewRecorder()
	env.apiServer.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Message        string `json:"message"`
		AnalysisResult string `json:"analysis_result"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Message != "Syntax Error" {
		t.Errorf("expected Syntax Error, got %q", resp.Message)
	}
	if !strings.Contains(resp.AnalysisResult, "Invalid Python Code") {
		t.Errorf("unexpected analysis result: %q", resp.AnalysisResult)
	}
}

func TestPipeline_TriggerReanalysis(t *testing.T) {
	env := setupPipeline(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go env.worker.Start(ctx)
	if err := env.watcher.Discover(ctx); err != nil {
		t.Fatalf("discovery failed: %v", err)
	}
	waitForRecords(t, env.store, 2)

	body := strings.NewReader(`{"suite": "cart"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses/trigger", body)
	rec := httptest.NewRecorder()
	env.apiServer.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Queued int    `json:"queued"`
		Suite  string `json:"suite"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Queued != 2 {
		t.Errorf("expected 2 queued tasks, got %d", resp.Queued)
	}

	// The triggered tasks eventually produce fresh records
	waitForRecords(t, env.store, 4)
}
