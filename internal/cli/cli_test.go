package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCommand executes the CLI with args and returns stdout and stderr
func runCommand(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func newAnalyzeServer(t *testing.T, result string, requests *atomic.Int64) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests != nil {
			requests.Add(1)
		}
		json.NewEncoder(w).Encode(map[string]string{
			"message":         "Analysis Complete",
			"analysis_result": result,
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestAnalyze_WritesReportToStdout(t *testing.T) {
	server := newAnalyzeServer(t, "X", nil)

	stdout, stderr, err := runCommand(t, "def test_a():\n    assert True\n",
		"analyze", "--server", server.URL)
	require.NoError(t, err)

	assert.Equal(t, "X\n", stdout)
	assert.Contains(t, stderr, "Analyzing selection...")
}

func TestAnalyze_EmptySelectionSkipsRequest(t *testing.T) {
	var requests atomic.Int64
	server := newAnalyzeServer(t, "unused", &requests)

	stdout, _, err := runCommand(t, "   \n\t\n", "analyze", "--server", server.URL)
	require.NoError(t, err)

	assert.Contains(t, stdout, "Nothing to analyze")
	assert.Equal(t, int64(0), requests.Load())
}

func TestAnalyze_ServerUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	stdout, stderr, err := runCommand(t, "def test_a(): pass\n",
		"analyze", "--server", server.URL)
	require.NoError(t, err)

	assert.Contains(t, stderr, "could not connect to analysis server")
	assert.True(t, strings.HasPrefix(stdout, "Error: "), "stdout should carry the error detail: %q", stdout)
}

func TestAnalyze_ReadsFromFile(t *testing.T) {
	var requests atomic.Int64
	server := newAnalyzeServer(t, "<analysis>ok</analysis>", &requests)

	path := filepath.Join(t.TempDir(), "test_cart.py")
	require.NoError(t, os.WriteFile(path, []byte("def test_cart():\n    assert True\n"), 0o644))

	stdout, _, err := runCommand(t, "", "analyze", path, "--server", server.URL)
	require.NoError(t, err)

	assert.Equal(t, "<analysis>ok</analysis>\n", stdout)
	assert.Equal(t, int64(1), requests.Load())
}

func TestAnalyze_LineRangeSelection(t *testing.T) {
	var receivedCode string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		receivedCode = body["code"]
		json.NewEncoder(w).Encode(map[string]string{"analysis_result": "ok"})
	}))
	defer server.Close()

	source := "line one\ndef test_b():\n    assert True\nline four\n"
	path := filepath.Join(t.TempDir(), "test_range.py")
	require.NoError(t, os.WriteFile(path, []byte(source), 0o644))

	_, _, err := runCommand(t, "", "analyze", path,
		"--start", "2", "--end", "3", "--server", server.URL)
	require.NoError(t, err)

	assert.Equal(t, "def test_b():\n    assert True", receivedCode)
}

func TestAnalyze_WritesReportToFile(t *testing.T) {
	server := newAnalyzeServer(t, "report body", nil)

	outPath := filepath.Join(t.TempDir(), "report.txt")
	stdout, _, err := runCommand(t, "def test_a(): pass\n",
		"analyze", "--server", server.URL, "--output", outPath)
	require.NoError(t, err)
	assert.Empty(t, stdout)

	content, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, "report body\n", string(content))
}

func TestAnalyze_InvalidLineRange(t *testing.T) {
	_, _, err := runCommand(t, "def test_a(): pass\n",
		"analyze", "--start", "5", "--end", "2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "before start line")
}

func TestSelectLines(t *testing.T) {
	source := "a\nb\nc\nd"

	tests := []struct {
		name  string
		start int
		end   int
		want  string
	}{
		{"full source", 0, 0, source},
		{"middle range", 2, 3, "b\nc"},
		{"open end", 3, 0, "c\nd"},
		{"open start", 0, 2, "a\nb"},
		{"end past last line", 2, 99, "b\nc\nd"},
		{"start past last line", 99, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := selectLines(source, tt.start, tt.end)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHistory_RendersRecords(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/analyses", r.URL.Path)
		json.NewEncoder(w).Encode([]map[string]any{
			{
				"id": 1, "suite": "unit", "file_path": "tests/test_cart.py",
				"test_name": "test_add", "issue_type": "Good AAA",
				"verdict_passed": true, "created_at": "2026-08-30T10:00:00Z",
			},
			{
				"id": 2, "suite": "unit", "file_path": "tests/test_cart.py",
				"test_name": "test_remove", "issue_type": "Multiple AAA",
				"verdict_passed": false, "tolerated": true, "created_at": "2026-08-30T10:01:00Z",
			},
		})
	}))
	defer server.Close()

	stdout, _, err := runCommand(t, "", "history", "--server", server.URL)
	require.NoError(t, err)

	assert.Contains(t, stdout, "PASS")
	assert.Contains(t, stdout, "test_add")
	assert.Contains(t, stdout, "FAIL")
	assert.Contains(t, stdout, "(tolerated)")
}

func TestHistory_EmptyResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{})
	}))
	defer server.Close()

	stdout, _, err := runCommand(t, "", "history", "--server", server.URL)
	require.NoError(t, err)
	assert.Contains(t, stdout, "No analyses recorded.")
}

func TestVersion_ReportsBothSides(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"message": "Server is Running! Use the aaalint client to send data.",
			"version": "1.2.0",
		})
	}))
	defer server.Close()

	stdout, _, err := runCommand(t, "", "version", "--server", server.URL)
	require.NoError(t, err)

	assert.Contains(t, stdout, "aaalint client")
	assert.Contains(t, stdout, "aaalint server 1.2.0")
}

func TestVersion_ServerDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	stdout, stderr, err := runCommand(t, "", "version", "--server", server.URL)
	require.NoError(t, err)

	assert.Contains(t, stdout, "aaalint client")
	assert.Contains(t, stderr, "server unreachable")
}
