// Package pyast parses Python test code with tree-sitter and produces the
// AST rendering that accompanies each snippet sent to the analyzer backend.
package pyast

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/daimoniac/aaalint/internal/errors"
)

// DefaultMaxSnippetSize bounds the source size accepted by Parse.
// Test snippets are small; anything larger is a caller mistake.
const DefaultMaxSnippetSize = 1 << 20 // 1 MiB

// ParseResult holds the outcome of parsing a Python snippet
type ParseResult struct {
	// AST is the s-expression rendering of the parse tree
	AST string

	// Hash is the hex-encoded SHA-256 of the source
	Hash string
}

// Parser parses Python source code. Each Parse call creates its own
// tree-sitter parser instance, so a Parser is safe for concurrent use.
type Parser struct {
	maxSnippetSize int64
}

// NewParser creates a new Python parser
func NewParser() *Parser {
	return &Parser{maxSnippetSize: DefaultMaxSnippetSize}
}

// Parse parses the given Python source and returns its AST rendering.
// Returns an error wrapping errors.ErrSyntax when the source is not valid
// Python, and errors.ErrInvalidInput for content the parser cannot accept.
func (p *Parser) Parse(ctx context.Context, source []byte) (*ParseResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewTransientf("parse canceled: %w", err)
	}

	if len(source) == 0 {
		return nil, fmt.Errorf("%w: empty source", errors.ErrInvalidInput)
	}

	if int64(len(source)) > p.maxSnippetSize {
		return nil, fmt.Errorf("%w: source size %d exceeds limit %d", errors.ErrInvalidInput, len(source), p.maxSnippetSize)
	}

	if !utf8.Valid(source) {
		return nil, fmt.Errorf("%w: source is not valid UTF-8", errors.ErrInvalidInput)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, errors.NewTransientf("tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return nil, errors.NewTransientf("tree-sitter returned nil root node")
	}

	if root.HasError() {
		return nil, fmt.Errorf("%w: source contains syntax errors", errors.ErrSyntax)
	}

	return &ParseResult{
		AST:  root.String(),
		Hash: SnippetHash(source),
	}, nil
}

// SnippetHash returns the hex-encoded SHA-256 of a source snippet
func SnippetHash(source []byte) string {
	hash := sha256.Sum256(source)
	return hex.EncodeToString(hash[:])
}
