package parser

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jward/kcltrap/internal/ast"
)

type rawProgram struct {
	Root string                  `json:"root"`
	Pkgs map[string][]*rawModule `json:"pkgs"`
}

type rawModule struct {
	Name     string     `json:"name"`
	Pkg      string     `json:"pkg"`
	Doc      *rawNode   `json:"doc"`
	Body     []*rawNode `json:"body"`
	Comments []*rawNode `json:"comments"`
}

// rawNode is the KCL AST node envelope.
type rawNode struct {
	ID        string          `json:"id"`
	Line      int             `json:"line"`
	Column    int             `json:"column"`
	EndLine   int             `json:"end_line"`
	EndColumn int             `json:"end_column"`
	Node      json.RawMessage `json:"node"`
}

type tagged struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

type decoder struct {
	ids   *ast.IDs
	remap map[string]string
}

func newDecoder() *decoder {
	return &decoder{ids: ast.NewIDs(), remap: make(map[string]string)}
}

// wrap assigns a structural ID to raw and remembers the parser's ID for it.
func (d *decoder) wrap(raw *rawNode, kind string) (string, ast.Span) {
	span := ast.Span{
		Start: ast.Pos{Line: raw.Line, Column: raw.Column},
		End:   ast.Pos{Line: raw.EndLine, Column: raw.EndColumn},
	}
	id := d.ids.Next(kind, span)
	if raw.ID != "" {
		d.remap[raw.ID] = id
	}
	return id, span
}

func (d *decoder) program(raw *rawProgram) (*ast.Program, error) {
	names := make([]string, 0, len(raw.Pkgs))
	for name := range raw.Pkgs {
		names = append(names, name)
	}
	sort.Strings(names)

	prog := &ast.Program{}
	for _, name := range names {
		pkg := &ast.Package{Name: name}
		for _, rm := range raw.Pkgs[name] {
			m, err := d.module(rm, name)
			if err != nil {
				return nil, err
			}
			pkg.Modules = append(pkg.Modules, m)
		}
		prog.Pkgs = append(prog.Pkgs, pkg)
	}
	return prog, nil
}

func (d *decoder) module(raw *rawModule, pkg string) (*ast.Module, error) {
	m := &ast.Module{Name: raw.Name, Pkg: raw.Pkg}
	if m.Name == "" {
		m.Name = "__main__"
	}
	if m.Pkg == "" {
		m.Pkg = pkg
	}
	if raw.Doc != nil {
		if err := json.Unmarshal(raw.Doc.Node, &m.Doc); err != nil {
			return nil, fmt.Errorf("module doc: %w", err)
		}
	}
	for _, rs := range raw.Body {
		s, err := d.stmt(rs)
		if err != nil {
			return nil, err
		}
		m.Body = append(m.Body, s)
	}
	for _, rc := range raw.Comments {
		var c struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(rc.Node, &c); err != nil {
			return nil, fmt.Errorf("comment: %w", err)
		}
		id, span := d.wrap(rc, "Comment")
		m.Comments = append(m.Comments, &ast.Node[*ast.Comment]{ID: id, Span: span, Value: &ast.Comment{Text: c.Text}})
	}
	return m, nil
}

func (d *decoder) stmt(raw *rawNode) (*ast.Node[ast.Stmt], error) {
	var head tagged
	if err := json.Unmarshal(raw.Node, &head); err != nil {
		return nil, fmt.Errorf("statement at %d:%d: %w", raw.Line, raw.Column, err)
	}
	id, span := d.wrap(raw, head.Type+"Stmt")

	var (
		s   ast.Stmt
		err error
	)
	switch head.Type {
	case "Expr":
		var v struct {
			Exprs []*rawNode `json:"exprs"`
		}
		if err = json.Unmarshal(raw.Node, &v); err == nil {
			st := &ast.ExprStmt{}
			st.Exprs, err = d.exprs(v.Exprs)
			s = st
		}
	case "Unification":
		var v struct {
			Target *rawNode `json:"target"`
			Value  *rawNode `json:"value"`
		}
		if err = json.Unmarshal(raw.Node, &v); err == nil {
			st := &ast.UnificationStmt{}
			if st.Target, err = d.ident(v.Target); err == nil {
				st.Value, err = d.schemaExprNode(v.Value)
			}
			s = st
		}
	case "Assign":
		var v struct {
			Targets []*rawNode `json:"targets"`
			Value   *rawNode   `json:"value"`
			Ty      *rawNode   `json:"ty"`
		}
		if err = json.Unmarshal(raw.Node, &v); err == nil {
			st := &ast.AssignStmt{}
			if st.Targets, err = d.idents(v.Targets); err == nil {
				if st.Value, err = d.expr(v.Value); err == nil {
					st.Ty, err = d.typ(v.Ty)
				}
			}
			s = st
		}
	case "AugAssign":
		var v struct {
			Target *rawNode `json:"target"`
			Value  *rawNode `json:"value"`
			Op     string   `json:"op"`
		}
		if err = json.Unmarshal(raw.Node, &v); err == nil {
			st := &ast.AugAssignStmt{}
			if st.Op, err = augOp(v.Op); err == nil {
				if st.Target, err = d.ident(v.Target); err == nil {
					st.Value, err = d.expr(v.Value)
				}
			}
			s = st
		}
	case "Assert":
		var v struct {
			Test   *rawNode `json:"test"`
			IfCond *rawNode `json:"if_cond"`
			Msg    *rawNode `json:"msg"`
		}
		if err = json.Unmarshal(raw.Node, &v); err == nil {
			st := &ast.AssertStmt{}
			if st.Test, err = d.expr(v.Test); err == nil {
				if st.IfCond, err = d.expr(v.IfCond); err == nil {
					st.Msg, err = d.expr(v.Msg)
				}
			}
			s = st
		}
	case "If":
		var v struct {
			Cond   *rawNode   `json:"cond"`
			Body   []*rawNode `json:"body"`
			Orelse []*rawNode `json:"orelse"`
		}
		if err = json.Unmarshal(raw.Node, &v); err == nil {
			st := &ast.IfStmt{}
			if st.Cond, err = d.expr(v.Cond); err == nil {
				if st.Body, err = d.stmts(v.Body); err == nil {
					st.Orelse, err = d.stmts(v.Orelse)
				}
			}
			s = st
		}
	case "Import":
		var v struct {
			Path    *rawNode `json:"path"`
			Rawpath string   `json:"rawpath"`
			Name    string   `json:"name"`
			Asname  *rawNode `json:"asname"`
		}
		if err = json.Unmarshal(raw.Node, &v); err == nil {
			st := &ast.ImportStmt{Rawpath: v.Rawpath, Name: v.Name}
			if st.Path, err = d.str(v.Path); err == nil {
				st.Asname, err = d.str(v.Asname)
			}
			s = st
		}
	case "SchemaAttr":
		var v struct {
			Doc        string     `json:"doc"`
			Name       *rawNode   `json:"name"`
			Op         *string    `json:"op"`
			Value      *rawNode   `json:"value"`
			IsOptional bool       `json:"is_optional"`
			Decorators []*rawNode `json:"decorators"`
			Ty         *rawNode   `json:"ty"`
		}
		if err = json.Unmarshal(raw.Node, &v); err == nil && len(v.Decorators) > 0 {
			// Decorators are call expressions, which have no emission rule.
			dec := v.Decorators[0]
			return nil, fmt.Errorf("%w: decorator at %d:%d", ast.ErrUnmappedKind, dec.Line, dec.Column)
		}
		if err == nil {
			st := &ast.SchemaAttr{Doc: v.Doc, IsOptional: v.IsOptional}
			if v.Op != nil {
				var op ast.AugOp
				if op, err = augOp(*v.Op); err == nil {
					st.Op = &op
				}
			}
			if err == nil {
				if st.Name, err = d.str(v.Name); err == nil {
					if st.Value, err = d.expr(v.Value); err == nil {
						st.Ty, err = d.typ(v.Ty)
					}
				}
			}
			s = st
		}
	case "Schema":
		var v struct {
			Doc         *rawNode   `json:"doc"`
			Name        *rawNode   `json:"name"`
			ParentName  *rawNode   `json:"parent_name"`
			ForHostName *rawNode   `json:"for_host_name"`
			Mixins      []*rawNode `json:"mixins"`
			Body        []*rawNode `json:"body"`
		}
		if err = json.Unmarshal(raw.Node, &v); err == nil {
			st := &ast.SchemaStmt{}
			err = firstErr(
				func() (err error) { st.Doc, err = d.str(v.Doc); return },
				func() (err error) { st.Name, err = d.str(v.Name); return },
				func() (err error) { st.ParentName, err = d.ident(v.ParentName); return },
				func() (err error) { st.ForHostName, err = d.ident(v.ForHostName); return },
				func() (err error) { st.Mixins, err = d.idents(v.Mixins); return },
				func() (err error) { st.Body, err = d.stmts(v.Body); return },
			)
			s = st
		}
	default:
		return nil, fmt.Errorf("%w: statement %q at %d:%d", ast.ErrUnmappedKind, head.Type, raw.Line, raw.Column)
	}
	if err != nil {
		return nil, fmt.Errorf("%s statement at %d:%d: %w", head.Type, raw.Line, raw.Column, err)
	}
	return &ast.Node[ast.Stmt]{ID: id, Span: span, Value: s}, nil
}

func (d *decoder) stmts(raws []*rawNode) ([]*ast.Node[ast.Stmt], error) {
	var out []*ast.Node[ast.Stmt]
	for _, r := range raws {
		s, err := d.stmt(r)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (d *decoder) expr(raw *rawNode) (*ast.Node[ast.Expr], error) {
	if raw == nil {
		return nil, nil
	}
	var head tagged
	if err := json.Unmarshal(raw.Node, &head); err != nil {
		return nil, fmt.Errorf("expression at %d:%d: %w", raw.Line, raw.Column, err)
	}
	id, span := d.wrap(raw, head.Type+"Expr")

	var (
		x   ast.Expr
		err error
	)
	switch head.Type {
	case "Identifier":
		var ident *ast.Identifier
		if ident, err = decodeIdentifier(raw.Node); err == nil {
			x = &ast.IdentifierExpr{Identifier: *ident}
		}
	case "List":
		var v struct {
			Elts []*rawNode `json:"elts"`
			Ctx  string     `json:"ctx"`
		}
		if err = json.Unmarshal(raw.Node, &v); err == nil {
			e := &ast.ListExpr{}
			if e.Ctx, err = exprContext(v.Ctx); err == nil {
				e.Elts, err = d.exprs(v.Elts)
			}
			x = e
		}
	case "Schema":
		x, err = d.schemaExpr(raw.Node)
	case "Config":
		var v struct {
			Items []*rawNode `json:"items"`
		}
		if err = json.Unmarshal(raw.Node, &v); err == nil {
			e := &ast.ConfigExpr{}
			for _, item := range v.Items {
				var entry *ast.Node[*ast.ConfigEntry]
				if entry, err = d.configEntry(item); err != nil {
					break
				}
				e.Items = append(e.Items, entry)
			}
			x = e
		}
	case "NumberLit":
		var v struct {
			BinarySuffix *string `json:"binary_suffix"`
			Value        tagged  `json:"value"`
		}
		if err = json.Unmarshal(raw.Node, &v); err == nil {
			e := &ast.NumberLit{}
			if v.BinarySuffix != nil {
				suffix := ast.NumberBinarySuffix(*v.BinarySuffix)
				e.BinarySuffix = &suffix
			}
			switch v.Value.Type {
			case "Int":
				var n int64
				err = json.Unmarshal(v.Value.Value, &n)
				e.Value = ast.IntValue(n)
			case "Float":
				var f float64
				err = json.Unmarshal(v.Value.Value, &f)
				e.Value = ast.FloatValue(f)
			default:
				err = fmt.Errorf("%w: number value %q", ast.ErrUnmappedKind, v.Value.Type)
			}
			x = e
		}
	case "StringLit":
		var v struct {
			IsLongString bool   `json:"is_long_string"`
			RawValue     string `json:"raw_value"`
			Value        string `json:"value"`
		}
		if err = json.Unmarshal(raw.Node, &v); err == nil {
			x = &ast.StringLit{IsLongString: v.IsLongString, RawValue: v.RawValue, Value: v.Value}
		}
	case "NameConstantLit":
		var v struct {
			Value string `json:"value"`
		}
		if err = json.Unmarshal(raw.Node, &v); err == nil {
			var c ast.NameConstant
			if c, err = nameConstant(v.Value); err == nil {
				x = &ast.NameConstantLit{Value: c}
			}
		}
	default:
		return nil, fmt.Errorf("%w: expression %q at %d:%d", ast.ErrUnmappedKind, head.Type, raw.Line, raw.Column)
	}
	if err != nil {
		return nil, fmt.Errorf("%s expression at %d:%d: %w", head.Type, raw.Line, raw.Column, err)
	}
	return &ast.Node[ast.Expr]{ID: id, Span: span, Value: x}, nil
}

func (d *decoder) exprs(raws []*rawNode) ([]*ast.Node[ast.Expr], error) {
	var out []*ast.Node[ast.Expr]
	for _, r := range raws {
		x, err := d.expr(r)
		if err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	return out, nil
}

// schemaExprNode decodes a bare (untagged) schema expression, as found in
// unification statements.
func (d *decoder) schemaExprNode(raw *rawNode) (*ast.Node[ast.Expr], error) {
	if raw == nil {
		return nil, nil
	}
	id, span := d.wrap(raw, "SchemaExpr")
	x, err := d.schemaExpr(raw.Node)
	if err != nil {
		return nil, err
	}
	return &ast.Node[ast.Expr]{ID: id, Span: span, Value: x}, nil
}

func (d *decoder) schemaExpr(data json.RawMessage) (*ast.SchemaExpr, error) {
	var v struct {
		Name   *rawNode   `json:"name"`
		Args   []*rawNode `json:"args"`
		Kwargs []*rawNode `json:"kwargs"`
		Config *rawNode   `json:"config"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	e := &ast.SchemaExpr{}
	err := firstErr(
		func() (err error) { e.Name, err = d.ident(v.Name); return },
		func() (err error) { e.Args, err = d.exprs(v.Args); return },
		func() (err error) {
			for _, r := range v.Kwargs {
				var kw *ast.Node[*ast.Keyword]
				if kw, err = d.keyword(r); err != nil {
					return err
				}
				e.Kwargs = append(e.Kwargs, kw)
			}
			return nil
		},
		func() (err error) { e.Config, err = d.expr(v.Config); return },
	)
	return e, err
}

func (d *decoder) configEntry(raw *rawNode) (*ast.Node[*ast.ConfigEntry], error) {
	id, span := d.wrap(raw, "ConfigEntry")
	var v struct {
		Key       *rawNode `json:"key"`
		Value     *rawNode `json:"value"`
		Operation string   `json:"operation"`
	}
	if err := json.Unmarshal(raw.Node, &v); err != nil {
		return nil, err
	}
	entry := &ast.ConfigEntry{}
	var err error
	if entry.Operation, err = configOperation(v.Operation); err != nil {
		return nil, err
	}
	if entry.Key, err = d.expr(v.Key); err != nil {
		return nil, err
	}
	if entry.Value, err = d.expr(v.Value); err != nil {
		return nil, err
	}
	return &ast.Node[*ast.ConfigEntry]{ID: id, Span: span, Value: entry}, nil
}

func (d *decoder) keyword(raw *rawNode) (*ast.Node[*ast.Keyword], error) {
	id, span := d.wrap(raw, "Keyword")
	var v struct {
		Arg   *rawNode `json:"arg"`
		Value *rawNode `json:"value"`
	}
	if err := json.Unmarshal(raw.Node, &v); err != nil {
		return nil, err
	}
	kw := &ast.Keyword{}
	var err error
	if kw.Arg, err = d.ident(v.Arg); err != nil {
		return nil, err
	}
	if kw.Value, err = d.expr(v.Value); err != nil {
		return nil, err
	}
	return &ast.Node[*ast.Keyword]{ID: id, Span: span, Value: kw}, nil
}

func (d *decoder) ident(raw *rawNode) (*ast.Node[*ast.Identifier], error) {
	if raw == nil {
		return nil, nil
	}
	id, span := d.wrap(raw, "Identifier")
	ident, err := decodeIdentifier(raw.Node)
	if err != nil {
		return nil, fmt.Errorf("identifier at %d:%d: %w", raw.Line, raw.Column, err)
	}
	return &ast.Node[*ast.Identifier]{ID: id, Span: span, Value: ident}, nil
}

func (d *decoder) idents(raws []*rawNode) ([]*ast.Node[*ast.Identifier], error) {
	var out []*ast.Node[*ast.Identifier]
	for _, r := range raws {
		n, err := d.ident(r)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (d *decoder) str(raw *rawNode) (*ast.Node[ast.String], error) {
	if raw == nil {
		return nil, nil
	}
	id, span := d.wrap(raw, "String")
	var s string
	if err := json.Unmarshal(raw.Node, &s); err != nil {
		return nil, fmt.Errorf("string at %d:%d: %w", raw.Line, raw.Column, err)
	}
	return &ast.Node[ast.String]{ID: id, Span: span, Value: ast.String(s)}, nil
}

func (d *decoder) typ(raw *rawNode) (*ast.Node[ast.Type], error) {
	if raw == nil {
		return nil, nil
	}
	var head tagged
	if err := json.Unmarshal(raw.Node, &head); err != nil {
		return nil, fmt.Errorf("type at %d:%d: %w", raw.Line, raw.Column, err)
	}
	id, span := d.wrap(raw, head.Type+"Type")
	var t ast.Type
	switch head.Type {
	case "Any":
		t = &ast.AnyType{}
	case "Named":
		ident, err := decodeIdentifier(head.Value)
		if err != nil {
			return nil, err
		}
		t = &ast.NamedType{Identifier: *ident}
	case "Basic":
		var name string
		if err := json.Unmarshal(head.Value, &name); err != nil {
			return nil, err
		}
		kind, err := basicKind(name)
		if err != nil {
			return nil, err
		}
		t = &ast.BasicType{Kind: kind}
	default:
		return nil, fmt.Errorf("%w: type %q at %d:%d", ast.ErrUnmappedKind, head.Type, raw.Line, raw.Column)
	}
	return &ast.Node[ast.Type]{ID: id, Span: span, Value: t}, nil
}

// decodeIdentifier accepts both identifier shapes: dotted names (plain
// strings or string nodes) and assignment targets with a single name.
func decodeIdentifier(data json.RawMessage) (*ast.Identifier, error) {
	var v struct {
		Names   []json.RawMessage `json:"names"`
		Name    json.RawMessage   `json:"name"`
		Pkgpath string            `json:"pkgpath"`
		Ctx     string            `json:"ctx"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	ident := &ast.Identifier{Pkgpath: v.Pkgpath}
	parts := v.Names
	if len(parts) == 0 && len(v.Name) > 0 {
		parts = []json.RawMessage{v.Name}
	}
	for _, p := range parts {
		name, err := nameText(p)
		if err != nil {
			return nil, err
		}
		ident.Names = append(ident.Names, name)
	}
	ctx, err := exprContext(v.Ctx)
	if err != nil {
		return nil, err
	}
	ident.Ctx = ctx
	return ident, nil
}

func nameText(p json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(p, &s); err == nil {
		return s, nil
	}
	var n rawNode
	if err := json.Unmarshal(p, &n); err != nil {
		return "", err
	}
	if err := json.Unmarshal(n.Node, &s); err != nil {
		return "", err
	}
	return s, nil
}

func firstErr(steps ...func() error) error {
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

var augOpNames = map[string]ast.AugOp{
	"Assign":   ast.Assign,
	"Add":      ast.Add,
	"Sub":      ast.Sub,
	"Mul":      ast.Mul,
	"Div":      ast.Div,
	"Mod":      ast.Mod,
	"Pow":      ast.Pow,
	"FloorDiv": ast.FloorDiv,
	"LShift":   ast.LShift,
	"RShift":   ast.RShift,
	"BitXor":   ast.BitXor,
	"BitAnd":   ast.BitAnd,
	"BitOr":    ast.BitOr,
}

func augOp(name string) (ast.AugOp, error) {
	if op, ok := augOpNames[name]; ok {
		return op, nil
	}
	return 0, fmt.Errorf("%w: augmented operator %q", ast.ErrUnmappedKind, name)
}

func configOperation(name string) (ast.ConfigEntryOperation, error) {
	switch name {
	case "Union", "":
		return ast.Union, nil
	case "Override":
		return ast.Override, nil
	case "Insert":
		return ast.Insert, nil
	}
	return 0, fmt.Errorf("%w: config operation %q", ast.ErrUnmappedKind, name)
}

func exprContext(name string) (ast.ExprContext, error) {
	switch name {
	case "Load", "":
		return ast.Load, nil
	case "Store":
		return ast.Store, nil
	}
	return 0, fmt.Errorf("%w: expression context %q", ast.ErrUnmappedKind, name)
}

func basicKind(name string) (ast.BasicKind, error) {
	switch name {
	case "Bool":
		return ast.Bool, nil
	case "Int":
		return ast.Int, nil
	case "Float":
		return ast.Float, nil
	case "Str":
		return ast.Str, nil
	}
	return 0, fmt.Errorf("%w: basic type %q", ast.ErrUnmappedKind, name)
}

func nameConstant(name string) (ast.NameConstant, error) {
	switch name {
	case "True":
		return ast.True, nil
	case "False":
		return ast.False, nil
	case "None":
		return ast.None, nil
	case "Undefined":
		return ast.Undefined, nil
	}
	return 0, fmt.Errorf("%w: name constant %q", ast.ErrUnmappedKind, name)
}
