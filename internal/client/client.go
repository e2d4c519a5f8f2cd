// Package client implements the HTTP client the aaalint CLI uses to talk to
// the analysis server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/daimoniac/aaalint/internal/version"
)

// DefaultBaseURL matches the analysis server's default listen address.
const DefaultBaseURL = "http://127.0.0.1:8000"

// Client talks to the analysis server
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ServerInfo is the greeting returned by the server root endpoint
type ServerInfo struct {
	Message string `json:"message"`
	Version string `json:"version"`
}

// AnalyzeResult is the response of the /analyze endpoint
type AnalyzeResult struct {
	Message        string `json:"message"`
	AnalysisResult string `json:"analysis_result"`
}

// AnalysisSummary is one analysis record as returned by the query API
type AnalysisSummary struct {
	ID            int64  `json:"id"`
	Suite         string `json:"suite"`
	FilePath      string `json:"file_path"`
	TestName      string `json:"test_name"`
	FocalMethod   string `json:"focal_method"`
	IssueType     string `json:"issue_type"`
	Reasoning     string `json:"reasoning"`
	VerdictPassed bool   `json:"verdict_passed"`
	Tolerated     bool   `json:"tolerated"`
	ErrorMessage  string `json:"error_message"`
	CreatedAt     string `json:"created_at"`
}

// Option configures a Client
type Option func(*Client)

// WithTimeout sets the request timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// New creates a client for the analysis server at baseURL.
// An empty baseURL falls back to DefaultBaseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Ping checks server reachability and returns the greeting
func (c *Client) Ping(ctx context.Context) (*ServerInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("server unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected server status: %s", resp.Status)
	}

	var info ServerInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("malformed server response: %w", err)
	}

	return &info, nil
}

// CheckCompatibility verifies the server's major version matches this client's
func (c *Client) CheckCompatibility(ctx context.Context) (*ServerInfo, error) {
	info, err := c.Ping(ctx)
	if err != nil {
		return nil, err
	}

	// Older servers don't report a version, accept them
	if info.Version == "" {
		return info, nil
	}

	compatible, err := version.Compatible(version.Version, info.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to compare versions: %w", err)
	}
	if !compatible {
		return nil, fmt.Errorf("server version %s is incompatible with client version %s", info.Version, version.Version)
	}

	return info, nil
}

// AnalyzeCode submits a code snippet for analysis and returns the raw report.
// The request body is a JSON object with a single "code" key carrying the
// snippet verbatim.
func (c *Client) AnalyzeCode(ctx context.Context, code string) (string, error) {
	body, err := json.Marshal(map[string]string{"code": code})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("server unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	var result AnalyzeResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("malformed server response: %w", err)
	}

	return result.AnalysisResult, nil
}

// ListAnalyses queries analysis records, optionally filtered by suite
func (c *Client) ListAnalyses(ctx context.Context, suite string, limit int) ([]AnalysisSummary, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("latest_only", "true")
	if suite != "" {
		params.Set("suite", suite)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/analyses?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("server unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected server status: %s", resp.Status)
	}

	var analyses []AnalysisSummary
	if err := json.NewDecoder(resp.Body).Decode(&analyses); err != nil {
		return nil, fmt.Errorf("malformed server response: %w", err)
	}

	return analyses, nil
}
