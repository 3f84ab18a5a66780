package parser

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/yaml"

	"github.com/jward/kcltrap/internal/ast"
)

// MainModule names the package and module of every YAML document.
const MainModule = "__main__"

// YAMLService parses YAML files in-process with tree-sitter. Each document
// becomes a module: a top-level mapping becomes one assignment per key,
// nested mappings become config expressions and sequences become lists.
// YAML has no schemas, so the symbol table is always empty.
type YAMLService struct{}

var _ Service = YAMLService{}

func (YAMLService) Parse(ctx context.Context, path string, src []byte) (*Result, error) {
	p := sitter.NewParser()
	defer p.Close()
	p.SetLanguage(yaml.GetLanguage())

	tree, err := p.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse %s: %w", path, err)
	}
	defer tree.Close()

	l := &yamlLowering{src: src, ids: ast.NewIDs()}
	root := tree.RootNode()
	l.collectErrors(root)

	pkg := &ast.Package{Name: MainModule}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		doc := root.NamedChild(i)
		if doc.Type() != "document" {
			continue
		}
		pkg.Modules = append(pkg.Modules, l.document(doc))
	}
	// Comments outside any document still belong to the first module.
	if len(pkg.Modules) == 0 {
		pkg.Modules = append(pkg.Modules, &ast.Module{Name: MainModule, Pkg: MainModule})
	}
	l.comments(root, pkg.Modules[0], true)

	return &Result{
		Program: &ast.Program{Pkgs: []*ast.Package{pkg}},
		Symbols: SchemaTypes{},
		Errors:  l.errors,
	}, nil
}

type yamlLowering struct {
	src    []byte
	ids    *ast.IDs
	errors []ParseError
}

func yamlSpan(n *sitter.Node) ast.Span {
	s, e := n.StartPoint(), n.EndPoint()
	return ast.Span{
		Start: ast.Pos{Line: int(s.Row) + 1, Column: int(s.Column)},
		End:   ast.Pos{Line: int(e.Row) + 1, Column: int(e.Column)},
	}
}

func (l *yamlLowering) collectErrors(n *sitter.Node) {
	if n.IsError() || n.IsMissing() {
		sp := yamlSpan(n)
		msg := "syntax error"
		if n.IsMissing() {
			msg = "missing " + n.Type()
		}
		l.errors = append(l.errors, ParseError{
			Message:   msg,
			Line:      sp.Start.Line,
			Column:    sp.Start.Column,
			EndLine:   sp.End.Line,
			EndColumn: sp.End.Column,
		})
		return
	}
	if !n.HasError() {
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		l.collectErrors(n.Child(i))
	}
}

func (l *yamlLowering) document(doc *sitter.Node) *ast.Module {
	m := &ast.Module{Name: MainModule, Pkg: MainModule}
	content := l.content(doc)
	if content != nil && content.Type() == "block_mapping" {
		for i := 0; i < int(content.NamedChildCount()); i++ {
			pair := content.NamedChild(i)
			if pair.Type() != "block_mapping_pair" {
				continue
			}
			m.Body = append(m.Body, l.assign(pair))
		}
	} else if content != nil {
		id := l.ids.Next("ExprStmt", yamlSpan(content))
		m.Body = append(m.Body, &ast.Node[ast.Stmt]{
			ID:    id,
			Span:  yamlSpan(content),
			Value: &ast.ExprStmt{Exprs: []*ast.Node[ast.Expr]{l.expr(content)}},
		})
	}
	l.comments(doc, m, false)
	return m
}

// content unwraps block_node/flow_node wrappers, skipping tags, anchors and
// comments, down to the node that carries the value.
func (l *yamlLowering) content(n *sitter.Node) *sitter.Node {
	for n != nil {
		switch n.Type() {
		case "document", "block_node", "flow_node", "block_sequence_item":
		default:
			return n
		}
		var next *sitter.Node
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			switch c.Type() {
			case "tag", "anchor", "comment":
				continue
			}
			next = c
		}
		n = next
	}
	return nil
}

func (l *yamlLowering) assign(pair *sitter.Node) *ast.Node[ast.Stmt] {
	span := yamlSpan(pair)
	id := l.ids.Next("AssignStmt", span)
	key := pair.ChildByFieldName("key")
	stmt := &ast.AssignStmt{}
	if key != nil {
		ksp := yamlSpan(key)
		stmt.Targets = []*ast.Node[*ast.Identifier]{{
			ID:   l.ids.Next("Identifier", ksp),
			Span: ksp,
			Value: &ast.Identifier{
				Names: []string{l.scalarText(l.content(key))},
				Ctx:   ast.Store,
			},
		}}
	}
	stmt.Value = l.pairValue(pair)
	return &ast.Node[ast.Stmt]{ID: id, Span: span, Value: stmt}
}

// pairValue lowers a pair's value; an absent value is a null at the end of
// the pair.
func (l *yamlLowering) pairValue(pair *sitter.Node) *ast.Node[ast.Expr] {
	if v := pair.ChildByFieldName("value"); v != nil {
		if c := l.content(v); c != nil {
			return l.expr(c)
		}
	}
	end := yamlSpan(pair).End
	sp := ast.Span{Start: end, End: end}
	return &ast.Node[ast.Expr]{
		ID:    l.ids.Next("NameConstantLitExpr", sp),
		Span:  sp,
		Value: &ast.NameConstantLit{Value: ast.None},
	}
}

func (l *yamlLowering) expr(n *sitter.Node) *ast.Node[ast.Expr] {
	span := yamlSpan(n)
	var (
		kind string
		x    ast.Expr
	)
	switch n.Type() {
	case "block_mapping", "flow_mapping":
		kind = "ConfigExpr"
		cfg := &ast.ConfigExpr{}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			switch c.Type() {
			case "block_mapping_pair", "flow_pair":
				cfg.Items = append(cfg.Items, l.entry(c))
			}
		}
		x = cfg
	case "block_sequence", "flow_sequence":
		kind = "ListExpr"
		list := &ast.ListExpr{Ctx: ast.Load}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			if c.Type() == "comment" {
				continue
			}
			if v := l.content(c); v != nil {
				list.Elts = append(list.Elts, l.expr(v))
			}
		}
		x = list
	case "alias":
		kind = "IdentifierExpr"
		name := strings.TrimPrefix(n.Content(l.src), "*")
		x = &ast.IdentifierExpr{Identifier: ast.Identifier{Names: []string{name}, Ctx: ast.Load}}
	default:
		kind, x = l.scalar(n)
	}
	return &ast.Node[ast.Expr]{ID: l.ids.Next(kind, span), Span: span, Value: x}
}

func (l *yamlLowering) entry(pair *sitter.Node) *ast.Node[*ast.ConfigEntry] {
	span := yamlSpan(pair)
	id := l.ids.Next("ConfigEntry", span)
	entry := &ast.ConfigEntry{Operation: ast.Union}
	if key := pair.ChildByFieldName("key"); key != nil {
		if c := l.content(key); c != nil {
			entry.Key = l.expr(c)
		}
	}
	entry.Value = l.pairValue(pair)
	return &ast.Node[*ast.ConfigEntry]{ID: id, Span: span, Value: entry}
}

// scalar lowers a leaf. Typed plain scalars become number or constant
// literals; everything else is a string.
func (l *yamlLowering) scalar(n *sitter.Node) (string, ast.Expr) {
	raw := n.Content(l.src)
	typ := n.Type()
	if typ == "plain_scalar" && n.NamedChildCount() > 0 {
		typ = n.NamedChild(0).Type()
	}
	switch typ {
	case "integer_scalar":
		if v, err := strconv.ParseInt(strings.ReplaceAll(raw, "_", ""), 0, 64); err == nil {
			return "NumberLitExpr", &ast.NumberLit{Value: ast.IntValue(v)}
		}
	case "float_scalar":
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return "NumberLitExpr", &ast.NumberLit{Value: ast.FloatValue(v)}
		}
	case "boolean_scalar":
		c := ast.False
		if strings.EqualFold(raw, "true") {
			c = ast.True
		}
		return "NameConstantLitExpr", &ast.NameConstantLit{Value: c}
	case "null_scalar":
		return "NameConstantLitExpr", &ast.NameConstantLit{Value: ast.None}
	case "block_scalar":
		return "StringLitExpr", &ast.StringLit{IsLongString: true, RawValue: raw, Value: blockScalar(raw)}
	}
	return "StringLitExpr", &ast.StringLit{RawValue: raw, Value: l.scalarText(n)}
}

// scalarText returns a scalar's value with quoting removed.
func (l *yamlLowering) scalarText(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	raw := n.Content(l.src)
	switch n.Type() {
	case "double_quote_scalar":
		if s, err := strconv.Unquote(raw); err == nil {
			return s
		}
		return strings.Trim(raw, `"`)
	case "single_quote_scalar":
		return strings.ReplaceAll(strings.TrimSuffix(strings.TrimPrefix(raw, "'"), "'"), "''", "'")
	}
	return raw
}

// blockScalar strips the indicator line and common indentation. Folded
// scalars (">") join lines with spaces.
func blockScalar(raw string) string {
	header, body, _ := strings.Cut(raw, "\n")
	lines := strings.Split(body, "\n")
	indent := -1
	for _, ln := range lines {
		if strings.TrimSpace(ln) == "" {
			continue
		}
		n := len(ln) - len(strings.TrimLeft(ln, " "))
		if indent < 0 || n < indent {
			indent = n
		}
	}
	for i, ln := range lines {
		if len(ln) >= indent && indent > 0 {
			lines[i] = ln[indent:]
		} else {
			lines[i] = strings.TrimLeft(ln, " ")
		}
	}
	sep := "\n"
	if strings.HasPrefix(header, ">") {
		sep = " "
	}
	out := strings.Join(lines, sep)
	if !strings.Contains(header, "-") {
		out = strings.TrimRight(out, sep+" ") + "\n"
	}
	return out
}

// comments attaches comment nodes below n to m. At the stream level only
// direct children are taken; documents collect their whole subtree.
func (l *yamlLowering) comments(n *sitter.Node, m *ast.Module, shallow bool) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() == "comment" {
			sp := yamlSpan(c)
			m.Comments = append(m.Comments, &ast.Node[*ast.Comment]{
				ID:    l.ids.Next("Comment", sp),
				Span:  sp,
				Value: &ast.Comment{Text: c.Content(l.src)},
			})
			continue
		}
		if !shallow {
			l.comments(c, m, false)
		}
	}
}
