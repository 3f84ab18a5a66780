// Package parser adapts language parsers to the extractor's AST. The KCL
// parser is an external process; YAML is parsed in-process with tree-sitter.
package parser

import (
	"context"
	"errors"
	"fmt"

	"github.com/jward/kcltrap/internal/ast"
)

var (
	// ErrOutOfMemory reports that the parser ran out of memory. It is fatal
	// for the whole run.
	ErrOutOfMemory = errors.New("parser out of memory")

	// ErrNoSchema is returned by a SymbolTable when a node has no schema type.
	ErrNoSchema = errors.New("no schema type")
)

// ParseError is a syntax error. Line is 1-based, Column 0-based.
type ParseError struct {
	Message   string
	Line      int
	Column    int
	EndLine   int
	EndColumn int
}

func (e ParseError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message)
}

// SymbolTable answers the semantic questions the emitter asks.
type SymbolTable interface {
	// SchemaOf returns the fully qualified schema name ("pkg.Name") of the
	// value denoted by the node with the given structural ID.
	SchemaOf(nodeID string) (string, error)
}

// Result is one parsed file. Program may be nil when parsing failed outright;
// Errors then explains why.
type Result struct {
	Program *ast.Program
	Symbols SymbolTable
	Errors  []ParseError
}

// Service parses one file.
type Service interface {
	Parse(ctx context.Context, path string, src []byte) (*Result, error)
}

// SchemaTypes is a SymbolTable backed by a map from node ID to schema name.
type SchemaTypes map[string]string

func (s SchemaTypes) SchemaOf(nodeID string) (string, error) {
	fqn, ok := s[nodeID]
	if !ok || fqn == "" {
		return "", fmt.Errorf("%s: %w", nodeID, ErrNoSchema)
	}
	return fqn, nil
}
