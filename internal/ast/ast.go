// Package ast is the in-memory KCL syntax tree the extractor lowers into
// facts. The variant sets (statements, expressions, types) are sealed: only
// this package can add a variant, so the emitter's kind mapping can be
// checked against Variants.
package ast

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnmappedKind marks a syntax kind with no emission rule.
var ErrUnmappedKind = errors.New("unmapped syntax kind")

// Pos is a native position: 1-based line, 0-based column.
type Pos struct {
	Line   int
	Column int
}

// Span covers [Start, End); End.Column is exclusive.
type Span struct {
	Start Pos
	End   Pos
}

func (s Span) String() string {
	return fmt.Sprintf("%d:%d-%d:%d", s.Start.Line, s.Start.Column, s.End.Line, s.End.Column)
}

// Value is any payload a Node may carry.
type Value interface {
	isValue()
}

// Stmt is a statement variant.
type Stmt interface {
	Value
	isStmt()
}

// Expr is an expression variant.
type Expr interface {
	Value
	isExpr()
}

// Type is a type-annotation variant.
type Type interface {
	Value
	isType()
}

// Node wraps a payload with its structural identity and source span.
type Node[T Value] struct {
	ID    string
	Span  Span
	Value T
}

// AnyNode erases a Node's payload type.
type AnyNode interface {
	NodeID() string
	NodeSpan() Span
	Payload() Value
}

func (n *Node[T]) NodeID() string { return n.ID }
func (n *Node[T]) NodeSpan() Span { return n.Span }
func (n *Node[T]) Payload() Value { return n.Value }

// Nodes converts a typed slice for generic list handling.
func Nodes[T Value](in []*Node[T]) []AnyNode {
	out := make([]AnyNode, 0, len(in))
	for _, n := range in {
		out = append(out, n)
	}
	return out
}

// Program is the parser's view of one file: packages in a fixed order.
type Program struct {
	Pkgs []*Package
}

// Package groups the modules that belong to one package name.
type Package struct {
	Name    string
	Modules []*Module
}

// Module is one parsed unit (a KCL file or a YAML document).
type Module struct {
	Name     string
	Pkg      string
	Doc      string
	Body     []*Node[Stmt]
	Comments []*Node[*Comment]
}

// Comment is a source comment; Text includes the leading '#'.
type Comment struct {
	Text string
}

// String is a bare string node such as a schema name or import path.
type String string

// Identifier is a possibly dotted name.
type Identifier struct {
	Names   []string
	Pkgpath string
	Ctx     ExprContext
}

// Name joins the dotted parts.
func (i *Identifier) Name() string { return strings.Join(i.Names, ".") }

// Keyword is a name=value argument.
type Keyword struct {
	Arg   *Node[*Identifier]
	Value *Node[Expr]
}

// ConfigEntry is one key/value item of a config expression.
type ConfigEntry struct {
	Key       *Node[Expr]
	Value     *Node[Expr]
	Operation ConfigEntryOperation
}

func (*Comment) isValue()     {}
func (String) isValue()       {}
func (*Identifier) isValue()  {}
func (*Keyword) isValue()     {}
func (*ConfigEntry) isValue() {}
