//go:build !cgo

package analysis

import (
	"context"
)

// SyntaxChecker is a no-op in builds without cgo: documents are still
// tracked but never produce diagnostics.
type SyntaxChecker struct{}

// NewSyntaxChecker creates a checker that reports nothing
func NewSyntaxChecker() *SyntaxChecker {
	return &SyntaxChecker{}
}

// IsAvailable returns false when CGO is disabled
func IsAvailable() bool {
	return false
}

func (c *SyntaxChecker) Check(ctx context.Context, path string, lang Language, source []byte) ([]Diagnostic, error) {
	return nil, nil
}
