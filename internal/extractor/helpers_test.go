package extractor

import (
	"bytes"
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jward/kcltrap/internal/ast"
	"github.com/jward/kcltrap/internal/parser"
	"github.com/jward/kcltrap/internal/trap"
	"github.com/jward/kcltrap/internal/trap/traptest"
)

func span(l1, c1, l2, c2 int) ast.Span {
	return ast.Span{Start: ast.Pos{Line: l1, Column: c1}, End: ast.Pos{Line: l2, Column: c2}}
}

// tree builds nodes with structural IDs, the way the parser adapters do.
type tree struct{ ids *ast.IDs }

func newTree() *tree { return &tree{ids: ast.NewIDs()} }

func node[T ast.Value](tr *tree, kind string, s ast.Span, v T) *ast.Node[T] {
	return &ast.Node[T]{ID: tr.ids.Next(kind, s), Span: s, Value: v}
}

func (tr *tree) ident(name string, s ast.Span, ctx ast.ExprContext) *ast.Node[*ast.Identifier] {
	return node(tr, "Identifier", s, &ast.Identifier{Names: strings.Split(name, "."), Ctx: ctx})
}

func (tr *tree) identExpr(name string, s ast.Span) *ast.Node[ast.Expr] {
	return node[ast.Expr](tr, "IdentifierExpr", s, &ast.IdentifierExpr{Identifier: ast.Identifier{Names: strings.Split(name, ".")}})
}

func (tr *tree) intLit(v int64, s ast.Span) *ast.Node[ast.Expr] {
	return node[ast.Expr](tr, "NumberLit", s, &ast.NumberLit{Value: ast.IntValue(v)})
}

func program(body []*ast.Node[ast.Stmt], comments ...*ast.Node[*ast.Comment]) *ast.Program {
	return &ast.Program{Pkgs: []*ast.Package{{
		Name: "__main__",
		Modules: []*ast.Module{{
			Name:     "__main__",
			Pkg:      "__main__",
			Body:     body,
			Comments: comments,
		}},
	}}}
}

// assignProgram is the tree for "a = 1\n".
func assignProgram() *ast.Program {
	tr := newTree()
	stmt := node[ast.Stmt](tr, "AssignStmt", span(1, 0, 1, 5), &ast.AssignStmt{
		Targets: []*ast.Node[*ast.Identifier]{tr.ident("a", span(1, 0, 1, 1), ast.Store)},
		Value:   tr.intLit(1, span(1, 4, 1, 5)),
	})
	return program([]*ast.Node[ast.Stmt]{stmt})
}

// emitBody runs the emitter over prog and parses the body. The file label is
// predefined so references to it resolve.
func emitBody(t *testing.T, src string, prog *ast.Program, symbols parser.SymbolTable) *traptest.Stream {
	t.Helper()
	var buf bytes.Buffer
	w := trap.NewWriter(&buf, trap.BodyStart)
	loc := NewLocationManager(w, trap.FileStart)
	em := NewEmitter(w, loc, NewTextual(src), symbols)
	require.NoError(t, em.Program(prog))
	require.NoError(t, w.Flush())
	return traptest.Parse(t, "#10000=*\n"+buf.String())
}

// fakeParser returns a fixed result and counts its calls.
type fakeParser struct {
	calls  atomic.Int32
	result func(path string, src []byte) (*parser.Result, error)
}

func (f *fakeParser) Parse(_ context.Context, path string, src []byte) (*parser.Result, error) {
	f.calls.Add(1)
	return f.result(path, src)
}

func staticParser(prog func() *ast.Program) *fakeParser {
	return &fakeParser{result: func(string, []byte) (*parser.Result, error) {
		return &parser.Result{Program: prog()}, nil
	}}
}
