// Package analyzer sends Python test snippets to an LLM backend for
// Arrange-Act-Assert structure analysis.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/daimoniac/aaalint/internal/config"
	"github.com/daimoniac/aaalint/internal/errors"
)

// systemPrompt instructs the model how to classify AAA structure in pytest
// code. The issue vocabulary here must stay aligned with types.IssueType.
const systemPrompt = `You are an expert software testing analyzer specializing in detecting AAA (Arrange-Act-Assert) pattern issues in Python (pytest) unit test code.

## AAA Pattern Definition
The correct AAA pattern follows this sequence: Arrange → Act → Assert
- **Arrange**: Set up test data, mocks, and preconditions.
- **Act**: Execute the function being tested.
- **Assert**: Verify the expected outcome using 'assert'.

## Special AAA Cases (Acceptable Deviations)
1. **No Arrange for Pure Functions**:
   Example:
   ` + "```python" + `
   def test_add():
       result = add(5, 3)  # Act
       assert result == 8  # Assert
   ` + "```" + `
2. **Shared Setup (Fixtures)**: Arrange happens in a pytest fixture.
   Example:
   ` + "```python" + `
   @pytest.fixture
   def db():
       return Database() # Arrange in fixture

   def test_query(db):
       result = db.query("SELECT *") # Act
       assert result is not None     # Assert
   ` + "```" + `
3. **Expected Exception**: Using ` + "`pytest.raises`" + ` serves as implicit assertion.
   Example:
   ` + "```python" + `
   def test_invalid_input():
       with pytest.raises(ValueError): # Assert (Implicit)
           calculator.divide(10, 0)    # Act
   ` + "```" + `

## AAA Issues to Detect

### Deviation Patterns (Structure Issues):
1. **Multiple AAA**: Test contains multiple <arrange,act,assert> sequences.
   Example:
   ` + "```python" + `
   def test_multiple_scenarios():
       # Seq 1
       calc = Calculator()
       assert calc.add(1, 1) == 2

       # Seq 2 - VIOLATION
       calc.clear()
       assert calc.sub(2, 1) == 1
   ` + "```" + `
   Issue: Violates Single Responsibility. Split into ` + "`test_add`" + ` and ` + "`test_sub`" + `.

2. **Missing Assert**: <arrange,act> without assertion.
   Example:
   ` + "```python" + `
   def test_save_user():
       user = User("John")       # Arrange
       repo.save(user)           # Act
       # VIOLATION: No assert!
   ` + "```" + `
   Issue: Test passes even if save fails silently.

3. **Assert Pre-condition**: Asserts before the Act.
   Example:
   ` + "```python" + `
   def test_update():
       user = repo.get(1)
       assert user.name == "John" # VIOLATION: This is a pre-condition

       user.name = "Jane"         # Act
       assert user.name == "Jane" # Assert
   ` + "```" + `
   Issue: Use assertions only for the final result. Trust your Arrange phase.

### Design Issues:
4. **Obscure Assert**: Complex logic (loops/ifs) inside the test.
   Example:
   ` + "```python" + `
   def test_process():
       results = process(data)
       # VIOLATION: Complex logic
       found = False
       for r in results:
           if r.status == "OK":
               found = True
       assert found
   ` + "```" + `
   Issue: Tests should be linear. Use ` + "`assert any(r.status == \"OK\" for r in results)`" + `.

## Input Format
<test_code>Python code</test_code>
<ast>AST dump</ast>

## Output Format
<analysis>
  <focal_method>Name of function being tested</focal_method>
  <issueType>Good AAA | [Issue Name]</issueType>
  <reasoning>
    Explain why it deviates.
    If it is a "Valid Multiple Acts" (rare), explain why.
  </reasoning>
</analysis>`

// Backend is the interface the analysis pipeline depends on
type Backend interface {
	// Analyze submits a snippet and its AST dump, returning the raw
	// analysis envelope produced by the model
	Analyze(ctx context.Context, testCode, astDump string) (string, error)

	// HealthCheck verifies the backend is reachable with the configured credentials
	HealthCheck(ctx context.Context) error
}

// Client talks to a Gemini (or any OpenAI-compatible) chat completion endpoint
type Client struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	logger      *slog.Logger
}

// NewClient creates a new analyzer client from configuration
func NewClient(cfg config.AnalyzerConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.NewPermanentf("analyzer API key is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		logger:      logger,
	}, nil
}

// FormatInput renders a snippet and its AST dump into the XML shape the
// system prompt describes
func FormatInput(testCode, astDump string) string {
	return fmt.Sprintf("<test_code>\n%s\n</test_code>\n\n<ast>\n%s\n</ast>\n", testCode, astDump)
}

// Analyze submits the snippet for analysis and returns the raw model output.
// Errors are classified as transient or permanent for the retry logic.
func (c *Client) Analyze(ctx context.Context, testCode, astDump string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: FormatInput(testCode, astDump)},
		},
		Temperature: c.temperature,
	}
	if c.maxTokens > 0 {
		req.MaxTokens = c.maxTokens
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		c.logger.Error("analyzer backend call failed",
			"model", c.model,
			"error", err.Error())
		return "", errors.ClassifyAnalyzerError(err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.NewTransientf("analyzer backend returned no choices")
	}

	c.logger.Debug("analyzer backend responded",
		"model", c.model,
		"finish_reason", string(resp.Choices[0].FinishReason))

	return resp.Choices[0].Message.Content, nil
}

// HealthCheck lists models to verify connectivity and credentials
func (c *Client) HealthCheck(ctx context.Context) error {
	if _, err := c.client.ListModels(ctx); err != nil {
		return errors.ClassifyAnalyzerError(err)
	}
	return nil
}
