package pyast

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/daimoniac/aaalint/internal/errors"
)

// TestSnippet is a single test function extracted from a Python source file
type TestSnippet struct {
	// Name is the test function name, prefixed with the class name
	// for methods (e.g. "TestCart.test_checkout")
	Name string

	// Source is the exact source text of the function definition,
	// including decorators
	Source string

	// Hash is the hex-encoded SHA-256 of Source
	Hash string

	// StartLine and EndLine are 1-based line numbers in the file
	StartLine int
	EndLine   int
}

// ExtractTests finds all pytest-style test functions in a Python source file.
// Top-level functions named test_* are extracted, as are test_* methods of
// classes named Test*. Decorated definitions keep their decorators in the
// extracted source.
func (p *Parser) ExtractTests(ctx context.Context, source []byte) ([]TestSnippet, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewTransientf("extraction canceled: %w", err)
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

	var snippets []TestSnippet
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		switch child.Type() {
		case "function_definition", "decorated_definition":
			if snippet, ok := extractTestFunction(child, source, ""); ok {
				snippets = append(snippets, snippet)
			}
		case "class_definition":
			snippets = append(snippets, extractClassTests(child, source)...)
		}
	}

	return snippets, nil
}

// extractClassTests extracts test methods from a Test* class body
func extractClassTests(classNode *sitter.Node, source []byte) []TestSnippet {
	nameNode := classNode.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	className := nameNode.Content(source)
	if !strings.HasPrefix(className, "Test") {
		return nil
	}

	body := classNode.ChildByFieldName("body")
	if body == nil {
		return nil
	}

	var snippets []TestSnippet
	for i := 0; i < int(body.ChildCount()); i++ {
		child := body.Child(i)
		if child.Type() == "function_definition" || child.Type() == "decorated_definition" {
			if snippet, ok := extractTestFunction(child, source, className); ok {
				snippets = append(snippets, snippet)
			}
		}
	}

	return snippets
}

// extractTestFunction builds a TestSnippet from a function_definition or a
// decorated_definition wrapping one. Returns false when the node is not a
// test function.
func extractTestFunction(node *sitter.Node, source []byte, className string) (TestSnippet, bool) {
	funcNode := node
	if node.Type() == "decorated_definition" {
		funcNode = node.ChildByFieldName("definition")
		if funcNode == nil || funcNode.Type() != "function_definition" {
			return TestSnippet{}, false
		}
	}

	nameNode := funcNode.ChildByFieldName("name")
	if nameNode == nil {
		return TestSnippet{}, false
	}

	name := nameNode.Content(source)
	if !strings.HasPrefix(name, "test") {
		return TestSnippet{}, false
	}

	if className != "" {
		name = className + "." + name
	}

	// Use the outer node so decorators stay part of the snippet
	snippetSource := node.Content(source)

	return TestSnippet{
		Name:      name,
		Source:    snippetSource,
		Hash:      SnippetHash([]byte(snippetSource)),
		StartLine: int(node.StartPoint().Row + 1),
		EndLine:   int(node.EndPoint().Row + 1),
	}, true
}
