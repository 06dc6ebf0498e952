//go:build cgo

package analysis

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/csharp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/kotlin"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// maxDiagnostics caps the diagnostics reported per document.
const maxDiagnostics = 100

// SyntaxChecker reports syntax errors found by tree-sitter.
type SyntaxChecker struct{}

// NewSyntaxChecker creates a tree-sitter backed checker.
func NewSyntaxChecker() *SyntaxChecker {
	return &SyntaxChecker{}
}

// IsAvailable returns whether syntax checking is available.
func IsAvailable() bool {
	return true
}

func getLanguage(lang Language) (*sitter.Language, error) {
	switch lang {
	case LangCSharp:
		return csharp.GetLanguage(), nil
	case LangGo:
		return golang.GetLanguage(), nil
	case LangJava:
		return java.GetLanguage(), nil
	case LangJavaScript:
		return javascript.GetLanguage(), nil
	case LangTypeScript:
		return typescript.GetLanguage(), nil
	case LangPython:
		return python.GetLanguage(), nil
	case LangRust:
		return rust.GetLanguage(), nil
	case LangKotlin:
		return kotlin.GetLanguage(), nil
	default:
		return nil, fmt.Errorf("unsupported language: %s", lang)
	}
}

// Check parses source and returns a diagnostic for every error or missing
// node. Parsers are not safe for concurrent use, so each call gets its own.
func (c *SyntaxChecker) Check(ctx context.Context, path string, lang Language, source []byte) ([]Diagnostic, error) {
	tsLang, err := getLanguage(lang)
	if err != nil {
		return nil, err
	}
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(tsLang)

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if !root.HasError() {
		return nil, nil
	}
	var diags []Diagnostic
	collectErrors(root, path, &diags)
	return diags, nil
}

func collectErrors(n *sitter.Node, path string, out *[]Diagnostic) {
	if len(*out) >= maxDiagnostics {
		return
	}
	switch {
	case n.IsMissing():
		*out = append(*out, diagnosticAt(n, path, "missing "+n.Type()))
		return
	case n.IsError():
		*out = append(*out, diagnosticAt(n, path, "syntax error"))
		return
	case !n.HasError():
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if child := n.Child(i); child != nil {
			collectErrors(child, path, out)
		}
	}
}

func diagnosticAt(n *sitter.Node, path, msg string) Diagnostic {
	pt := n.StartPoint()
	return Diagnostic{
		Path:     path,
		Line:     int(pt.Row) + 1,
		Column:   int(pt.Column) + 1,
		Severity: SeverityError,
		Message:  msg,
	}
}
