package extractor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jward/kcltrap/internal/ast"
	"github.com/jward/kcltrap/internal/parser"
	"github.com/jward/kcltrap/internal/trap"
)

// Emitter lowers a Program into body facts. Nodes are visited depth-first in
// field order and each node's own facts precede its children's, so a tuple
// only ever references labels that are already defined.
type Emitter struct {
	w       *trap.Writer
	loc     *LocationManager
	text    *Textual
	symbols parser.SymbolTable
	pkg     string
}

// NewEmitter returns an Emitter writing to w. symbols may be nil.
func NewEmitter(w *trap.Writer, loc *LocationManager, text *Textual, symbols parser.SymbolTable) *Emitter {
	return &Emitter{w: w, loc: loc, text: text, symbols: symbols}
}

// key makes a node's content label key. The file placeholder and snippet
// origin keep identical subtrees of different files and snippets apart while
// leaving the text path-independent.
func (e *Emitter) key(nodeID string) string {
	return fmt.Sprintf("%s,%d,%d,%s", trap.FileKey, e.loc.StartLine(), e.loc.StartColumn(), nodeID)
}

// SchemaKey is the global key of the entity for a fully qualified schema.
func SchemaKey(fqn string) string { return "schema;" + fqn }

// Program emits packages, modules, their statements and comments.
func (e *Emitter) Program(p *ast.Program) error {
	file := e.loc.FileLabel()
	for _, pkg := range p.Pkgs {
		pkgLbl := e.w.Fresh()
		e.w.Emit("packages", pkgLbl, pkg.Name, file)
		for i, m := range pkg.Modules {
			if err := e.module(m, pkgLbl, i); err != nil {
				return fmt.Errorf("module %s: %w", m.Name, err)
			}
		}
	}
	return e.w.Err()
}

func (e *Emitter) module(m *ast.Module, pkgLbl trap.Label, idx int) error {
	e.pkg = m.Pkg
	modLbl := e.w.Fresh()
	e.w.Emit("modules", modLbl, m.Name, e.loc.FileLabel(), pkgLbl, idx)
	if err := e.list(ast.Nodes(m.Body), modLbl, 0); err != nil {
		return err
	}
	for i, c := range m.Comments {
		lbl := e.w.Global(e.key(c.ID))
		e.w.Emit("comments", lbl, modLbl, i, c.Value.Text, e.text.ToString(c.Span))
		e.loc.Emit(lbl, c.Span)
	}
	return nil
}

// list reifies a sequence as one wrapper fact, then visits the elements with
// the wrapper as their parent.
func (e *Emitter) list(nodes []ast.AnyNode, parent trap.Label, idx int) error {
	if len(nodes) == 0 {
		return nil
	}
	table, err := listTable(nodes[0].Payload())
	if err != nil {
		return err
	}
	for _, n := range nodes[1:] {
		other, err := listTable(n.Payload())
		if err != nil {
			return err
		}
		if other != table {
			return fmt.Errorf("%w: %s and %s in one list", ErrHeterogeneousList, table, other)
		}
	}
	lbl := e.w.Fresh()
	e.w.Emit(table, lbl, parent, idx)
	for i, n := range nodes {
		if _, err := e.node(n, lbl, i); err != nil {
			return err
		}
	}
	return nil
}

// visit emits an optional child.
func visit[T ast.Value](e *Emitter, n *ast.Node[T], parent trap.Label, idx int) error {
	if n == nil {
		return nil
	}
	_, err := e.node(n, parent, idx)
	return err
}

func (e *Emitter) node(n ast.AnyNode, parent trap.Label, idx int) (trap.Label, error) {
	span := n.NodeSpan()
	switch v := n.Payload().(type) {
	case ast.Stmt:
		kind, err := stmtKind(v)
		if err != nil {
			return 0, err
		}
		lbl := e.w.Global(e.key(n.NodeID()))
		e.w.Emit("stmts", lbl, kind, parent, idx, e.text.ToString(span))
		e.loc.Emit(lbl, span)
		return lbl, e.stmt(lbl, v)

	case ast.Expr:
		kind, err := exprKind(v)
		if err != nil {
			return 0, err
		}
		lbl := e.w.Global(e.key(n.NodeID()))
		e.w.Emit("exprs", lbl, kind, parent, idx, e.text.ToString(span))
		e.loc.Emit(lbl, span)
		return lbl, e.expr(lbl, n, v)

	case ast.Type:
		kind, text, err := typeKind(v)
		if err != nil {
			return 0, err
		}
		lbl := e.w.Global(e.key(n.NodeID()))
		e.w.Emit("types", lbl, kind, parent, idx, text)
		e.loc.Emit(lbl, span)
		return lbl, nil

	case ast.String:
		lbl := e.w.Global(e.key(n.NodeID()))
		e.w.Emit("strings", lbl, parent, idx, string(v))
		e.loc.Emit(lbl, span)
		return lbl, nil

	case *ast.Identifier:
		lbl := e.w.Global(e.key(n.NodeID()))
		e.w.Emit("identifiers", lbl, parent, idx, v.Name())
		e.loc.Emit(lbl, span)
		e.schemaRef(lbl, n.NodeID())
		return lbl, e.identifier(lbl, v)

	case *ast.Keyword:
		lbl := e.w.Global(e.key(n.NodeID()))
		e.w.Emit("keywords", lbl, parent, idx)
		e.loc.Emit(lbl, span)
		if err := visit(e, v.Arg, lbl, 0); err != nil {
			return lbl, err
		}
		return lbl, visit(e, v.Value, lbl, 1)

	case *ast.ConfigEntry:
		kind, err := configOpKind(v.Operation)
		if err != nil {
			return 0, err
		}
		lbl := e.w.Global(e.key(n.NodeID()))
		e.w.Emit("configentrys", lbl, parent, idx)
		e.loc.Emit(lbl, span)
		e.w.Emit("configentry_operation", e.w.Fresh(), kind, v.Operation.Symbol(), lbl)
		if err := visit(e, v.Key, lbl, 0); err != nil {
			return lbl, err
		}
		return lbl, visit(e, v.Value, lbl, 1)
	}
	return 0, fmt.Errorf("%w: node %s carries %T", ast.ErrUnmappedKind, n.NodeID(), n.Payload())
}

func (e *Emitter) stmt(lbl trap.Label, s ast.Stmt) error {
	switch v := s.(type) {
	case *ast.ExprStmt:
		return e.list(ast.Nodes(v.Exprs), lbl, 0)

	case *ast.UnificationStmt:
		if err := visit(e, v.Target, lbl, 0); err != nil {
			return err
		}
		return visit(e, v.Value, lbl, 1)

	case *ast.AssignStmt:
		if err := e.list(ast.Nodes(v.Targets), lbl, 0); err != nil {
			return err
		}
		if err := visit(e, v.Value, lbl, 1); err != nil {
			return err
		}
		return visit(e, v.Ty, lbl, 2)

	case *ast.AugAssignStmt:
		if err := e.augOp(lbl, v.Op); err != nil {
			return err
		}
		if err := visit(e, v.Target, lbl, 0); err != nil {
			return err
		}
		return visit(e, v.Value, lbl, 1)

	case *ast.AssertStmt:
		if err := visit(e, v.Test, lbl, 0); err != nil {
			return err
		}
		if err := visit(e, v.IfCond, lbl, 1); err != nil {
			return err
		}
		return visit(e, v.Msg, lbl, 2)

	case *ast.IfStmt:
		if err := visit(e, v.Cond, lbl, 0); err != nil {
			return err
		}
		if err := e.list(ast.Nodes(v.Body), lbl, 1); err != nil {
			return err
		}
		return e.list(ast.Nodes(v.Orelse), lbl, 2)

	case *ast.ImportStmt:
		if err := visit(e, v.Path, lbl, 0); err != nil {
			return err
		}
		return visit(e, v.Asname, lbl, 1)

	case *ast.SchemaAttr:
		if v.Op != nil {
			if err := e.augOp(lbl, *v.Op); err != nil {
				return err
			}
		}
		if err := visit(e, v.Name, lbl, 0); err != nil {
			return err
		}
		if err := visit(e, v.Value, lbl, 1); err != nil {
			return err
		}
		return visit(e, v.Ty, lbl, 2)

	case *ast.SchemaStmt:
		if v.Name != nil {
			e.w.Emit("schema_decls", lbl, e.w.Global(SchemaKey(e.pkg+"."+string(v.Name.Value))))
		}
		if err := visit(e, v.Doc, lbl, 0); err != nil {
			return err
		}
		if err := visit(e, v.Name, lbl, 1); err != nil {
			return err
		}
		if err := visit(e, v.ParentName, lbl, 2); err != nil {
			return err
		}
		if err := visit(e, v.ForHostName, lbl, 3); err != nil {
			return err
		}
		if err := e.list(ast.Nodes(v.Mixins), lbl, 4); err != nil {
			return err
		}
		return e.list(ast.Nodes(v.Body), lbl, 5)
	}
	return fmt.Errorf("%w: statement %T", ast.ErrUnmappedKind, s)
}

func (e *Emitter) expr(lbl trap.Label, n ast.AnyNode, x ast.Expr) error {
	switch v := x.(type) {
	case *ast.IdentifierExpr:
		id := e.w.Fresh()
		e.w.Emit("identifiers", id, lbl, 0, v.Name())
		e.loc.Emit(id, n.NodeSpan())
		e.schemaRef(id, n.NodeID())
		return e.identifier(id, &v.Identifier)

	case *ast.ListExpr:
		if err := e.exprContext(lbl, v.Ctx); err != nil {
			return err
		}
		return e.list(ast.Nodes(v.Elts), lbl, 0)

	case *ast.SchemaExpr:
		if err := visit(e, v.Name, lbl, 0); err != nil {
			return err
		}
		if err := e.list(ast.Nodes(v.Args), lbl, 1); err != nil {
			return err
		}
		if err := e.list(ast.Nodes(v.Kwargs), lbl, 2); err != nil {
			return err
		}
		return visit(e, v.Config, lbl, 3)

	case *ast.ConfigExpr:
		for i, item := range v.Items {
			if err := visit(e, item, lbl, i); err != nil {
				return err
			}
		}
		return nil

	case *ast.NumberLit:
		if v.BinarySuffix != nil {
			e.w.Emit("numberbinarysuffixs", e.w.Fresh(), string(*v.BinarySuffix), lbl)
		}
		switch num := v.Value.(type) {
		case ast.IntValue:
			e.w.Emit("literals", e.w.Fresh(), literalInt, lbl, fmt.Sprint(int64(num)))
		case ast.FloatValue:
			e.w.Emit("literals", e.w.Fresh(), literalFloat, lbl, formatFloat(float64(num)))
		default:
			return fmt.Errorf("%w: number value %T", ast.ErrUnmappedKind, v.Value)
		}
		return nil

	case *ast.StringLit:
		e.w.Emit("literals", e.w.Fresh(), literalString, lbl, v.Value)
		return nil

	case *ast.NameConstantLit:
		e.w.Emit("literals", e.w.Fresh(), literalNameConstant, lbl, v.Value.String())
		return nil
	}
	return fmt.Errorf("%w: expression %T", ast.ErrUnmappedKind, x)
}

// identifier emits the package path and load/store context of an identifier.
func (e *Emitter) identifier(lbl trap.Label, id *ast.Identifier) error {
	if id.Pkgpath != "" {
		e.w.Emit("strings", e.w.Fresh(), lbl, 0, id.Pkgpath)
	}
	return e.exprContext(lbl, id.Ctx)
}

func (e *Emitter) exprContext(parent trap.Label, c ast.ExprContext) error {
	kind, err := exprContextKind(c)
	if err != nil {
		return err
	}
	e.w.Emit("expr_contexts", e.w.Fresh(), kind, parent)
	return nil
}

func (e *Emitter) augOp(parent trap.Label, op ast.AugOp) error {
	kind, err := augOpKind(op)
	if err != nil {
		return err
	}
	e.w.Emit("augops", e.w.Fresh(), kind, parent, op.Symbol())
	return nil
}

// schemaRef links an identifier to the schema its value is typed as. Lookup
// failures are ignored: enrichment never aborts the surrounding tree.
func (e *Emitter) schemaRef(lbl trap.Label, nodeID string) {
	if e.symbols == nil {
		return
	}
	fqn, err := e.lookupSchema(nodeID)
	if err != nil {
		return
	}
	e.w.Emit("schemas", lbl, e.w.Global(SchemaKey(fqn)))
}

func (e *Emitter) lookupSchema(nodeID string) (fqn string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("symbol lookup %s: %v", nodeID, r)
		}
	}()
	return e.symbols.SchemaOf(nodeID)
}

// formatFloat renders a float so it always reads as one ("1.0", not "1").
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}
	return s
}
