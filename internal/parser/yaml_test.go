package parser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/kcltrap/internal/ast"
)

const deployYAML = `name: web
replicas: 3
ports:
  - 80
  - 443
labels:
  app: web # inline
enabled: true
nothing:
`

func parseYAML(t *testing.T, src string) *Result {
	t.Helper()
	res, err := YAMLService{}.Parse(context.Background(), "/p/deploy.yaml", []byte(src))
	require.NoError(t, err)
	require.NotNil(t, res.Program)
	return res
}

func assignAt(t *testing.T, m *ast.Module, i int) (string, ast.Expr) {
	t.Helper()
	require.Greater(t, len(m.Body), i)
	a, ok := m.Body[i].Value.(*ast.AssignStmt)
	require.True(t, ok, "statement %d is %T", i, m.Body[i].Value)
	require.Len(t, a.Targets, 1)
	return a.Targets[0].Value.Name(), a.Value.Value
}

func TestYAMLService_TopLevelMapping(t *testing.T) {
	t.Parallel()
	res := parseYAML(t, deployYAML)
	assert.Empty(t, res.Errors)
	require.Len(t, res.Program.Pkgs, 1)
	require.Len(t, res.Program.Pkgs[0].Modules, 1)
	m := res.Program.Pkgs[0].Modules[0]
	assert.Equal(t, MainModule, m.Name)
	require.Len(t, m.Body, 6)

	name, v := assignAt(t, m, 0)
	assert.Equal(t, "name", name)
	assert.Equal(t, "web", v.(*ast.StringLit).Value)

	name, v = assignAt(t, m, 1)
	assert.Equal(t, "replicas", name)
	assert.Equal(t, ast.IntValue(3), v.(*ast.NumberLit).Value)

	_, v = assignAt(t, m, 2)
	list := v.(*ast.ListExpr)
	require.Len(t, list.Elts, 2)
	assert.Equal(t, ast.IntValue(443), list.Elts[1].Value.(*ast.NumberLit).Value)

	_, v = assignAt(t, m, 3)
	cfg := v.(*ast.ConfigExpr)
	require.Len(t, cfg.Items, 1)
	assert.Equal(t, ast.Union, cfg.Items[0].Value.Operation)
	assert.Equal(t, "app", cfg.Items[0].Value.Key.Value.(*ast.StringLit).Value)

	_, v = assignAt(t, m, 4)
	assert.Equal(t, ast.True, v.(*ast.NameConstantLit).Value)

	name, v = assignAt(t, m, 5)
	assert.Equal(t, "nothing", name)
	assert.Equal(t, ast.None, v.(*ast.NameConstantLit).Value)

	require.Len(t, m.Comments, 1)
	assert.Equal(t, "# inline", m.Comments[0].Value.Text)
	assert.Equal(t, 7, m.Comments[0].Span.Start.Line)
}

func TestYAMLService_Positions(t *testing.T) {
	t.Parallel()
	m := parseYAML(t, deployYAML).Program.Pkgs[0].Modules[0]
	replicas := m.Body[1]
	assert.Equal(t, ast.Pos{Line: 2, Column: 0}, replicas.Span.Start)
	value := replicas.Value.(*ast.AssignStmt).Value
	assert.Equal(t, ast.Span{Start: ast.Pos{Line: 2, Column: 10}, End: ast.Pos{Line: 2, Column: 11}}, value.Span)
}

func TestYAMLService_Deterministic(t *testing.T) {
	t.Parallel()
	a := parseYAML(t, deployYAML)
	b := parseYAML(t, deployYAML)
	assert.Equal(t, a.Program, b.Program)
}

func TestYAMLService_Documents(t *testing.T) {
	t.Parallel()
	res := parseYAML(t, "a: 1\n---\nb: 'it''s'\n")
	mods := res.Program.Pkgs[0].Modules
	require.Len(t, mods, 2)
	name, v := assignAt(t, mods[1], 0)
	assert.Equal(t, "b", name)
	assert.Equal(t, "it's", v.(*ast.StringLit).Value)
}

func TestYAMLService_NonMappingDocument(t *testing.T) {
	t.Parallel()
	m := parseYAML(t, "- x\n- y\n").Program.Pkgs[0].Modules[0]
	require.Len(t, m.Body, 1)
	stmt, ok := m.Body[0].Value.(*ast.ExprStmt)
	require.True(t, ok)
	assert.Len(t, stmt.Exprs[0].Value.(*ast.ListExpr).Elts, 2)
}

func TestYAMLService_SyntaxErrors(t *testing.T) {
	t.Parallel()
	res := parseYAML(t, "a: [1, 2\nb: {\n")
	assert.NotEmpty(t, res.Errors)
}

func TestBlockScalar(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "one\ntwo\n", blockScalar("|\n  one\n  two\n"))
	assert.Equal(t, "one two", blockScalar(">-\n  one\n  two"))
}
