// Package analysis is the semantic analysis workspace: it keeps the text of
// every source document in the solution and the diagnostics computed for it.
package analysis

import (
	"fmt"
	"strings"
)

// Language represents a supported source language.
type Language string

const (
	LangCSharp     Language = "csharp"
	LangGo         Language = "go"
	LangJava       Language = "java"
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
	LangPython     Language = "python"
	LangRust       Language = "rust"
	LangKotlin     Language = "kotlin"
)

// LanguageFromExtension returns the Language for a file extension.
func LanguageFromExtension(ext string) (Language, bool) {
	switch strings.ToLower(ext) {
	case ".cs", ".csx":
		return LangCSharp, true
	case ".go":
		return LangGo, true
	case ".java":
		return LangJava, true
	case ".js", ".mjs", ".cjs", ".jsx":
		return LangJavaScript, true
	case ".ts", ".mts", ".cts":
		return LangTypeScript, true
	case ".py", ".pyw":
		return LangPython, true
	case ".rs":
		return LangRust, true
	case ".kt", ".kts":
		return LangKotlin, true
	default:
		return "", false
	}
}

// Severity of a diagnostic
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic is a problem found in a document. Line and Column are 1-based.
type Diagnostic struct {
	Path     string   `json:"path"`
	Line     int      `json:"line"`
	Column   int      `json:"column"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s:%d:%d: %s: %s", d.Path, d.Line, d.Column, d.Severity, d.Message)
}

// Document is the workspace's copy of a source file.
type Document struct {
	Path     string
	Project  string // descriptor path of the owning project
	Language Language
	Text     []byte
	Version  int
}
