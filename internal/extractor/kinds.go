package extractor

import (
	"errors"
	"fmt"

	"github.com/jward/kcltrap/internal/ast"
)

// ErrHeterogeneousList reports a list whose elements fall into different
// list tables.
var ErrHeterogeneousList = errors.New("heterogeneous list")

// Statement kind tags, in the order of the KCL statement enumeration. Type
// aliases (0) and rules (10) are rejected by the parser adapter.
const (
	stmtExpr        = 1
	stmtUnification = 2
	stmtAssign      = 3
	stmtAugAssign   = 4
	stmtAssert      = 5
	stmtIf          = 6
	stmtImport      = 7
	stmtSchemaAttr  = 8
	stmtSchema      = 9
)

// Expression kind tags, in the order of the KCL expression enumeration.
const (
	exprIdentifier   = 0
	exprList         = 8
	exprSchema       = 14
	exprConfig       = 15
	exprNumberLit    = 22
	exprStringLit    = 23
	exprNameConstant = 24
)

// literals.kind
const (
	literalInt          = 1
	literalFloat        = 2
	literalString       = 3
	literalNameConstant = 4
)

func stmtKind(s ast.Stmt) (int, error) {
	switch s.(type) {
	case *ast.ExprStmt:
		return stmtExpr, nil
	case *ast.UnificationStmt:
		return stmtUnification, nil
	case *ast.AssignStmt:
		return stmtAssign, nil
	case *ast.AugAssignStmt:
		return stmtAugAssign, nil
	case *ast.AssertStmt:
		return stmtAssert, nil
	case *ast.IfStmt:
		return stmtIf, nil
	case *ast.ImportStmt:
		return stmtImport, nil
	case *ast.SchemaAttr:
		return stmtSchemaAttr, nil
	case *ast.SchemaStmt:
		return stmtSchema, nil
	}
	return 0, fmt.Errorf("%w: statement %T", ast.ErrUnmappedKind, s)
}

func exprKind(e ast.Expr) (int, error) {
	switch e.(type) {
	case *ast.IdentifierExpr:
		return exprIdentifier, nil
	case *ast.ListExpr:
		return exprList, nil
	case *ast.SchemaExpr:
		return exprSchema, nil
	case *ast.ConfigExpr:
		return exprConfig, nil
	case *ast.NumberLit:
		return exprNumberLit, nil
	case *ast.StringLit:
		return exprStringLit, nil
	case *ast.NameConstantLit:
		return exprNameConstant, nil
	}
	return 0, fmt.Errorf("%w: expression %T", ast.ErrUnmappedKind, e)
}

// typeKind returns the types.kind tag and the rendered annotation.
func typeKind(t ast.Type) (int, string, error) {
	switch v := t.(type) {
	case *ast.AnyType:
		return 0, "any", nil
	case *ast.NamedType:
		return 1, v.Identifier.Name(), nil
	case *ast.BasicType:
		switch v.Kind {
		case ast.Bool:
			return 2, v.Kind.String(), nil
		case ast.Int:
			return 3, v.Kind.String(), nil
		case ast.Float:
			return 4, v.Kind.String(), nil
		case ast.Str:
			return 5, v.Kind.String(), nil
		}
		return 0, "", fmt.Errorf("%w: basic type %d", ast.ErrUnmappedKind, v.Kind)
	}
	return 0, "", fmt.Errorf("%w: type %T", ast.ErrUnmappedKind, t)
}

// augOpKind numbers assignment operators. Plain assignment shares 0 with +=.
func augOpKind(op ast.AugOp) (int, error) {
	switch op {
	case ast.Assign, ast.Add:
		return 0, nil
	case ast.Sub:
		return 1, nil
	case ast.Mul:
		return 2, nil
	case ast.Div:
		return 3, nil
	case ast.Mod:
		return 4, nil
	case ast.Pow:
		return 5, nil
	case ast.FloorDiv:
		return 6, nil
	case ast.LShift:
		return 7, nil
	case ast.RShift:
		return 8, nil
	case ast.BitXor:
		return 9, nil
	case ast.BitAnd:
		return 10, nil
	case ast.BitOr:
		return 11, nil
	}
	return 0, fmt.Errorf("%w: augmented operator %d", ast.ErrUnmappedKind, op)
}

func configOpKind(op ast.ConfigEntryOperation) (int, error) {
	switch op {
	case ast.Union:
		return 0, nil
	case ast.Override:
		return 1, nil
	case ast.Insert:
		return 2, nil
	}
	return 0, fmt.Errorf("%w: config operation %d", ast.ErrUnmappedKind, op)
}

func exprContextKind(c ast.ExprContext) (int, error) {
	switch c {
	case ast.Load:
		return 0, nil
	case ast.Store:
		return 1, nil
	}
	return 0, fmt.Errorf("%w: expression context %d", ast.ErrUnmappedKind, c)
}

// listTable picks the list-wrapper table from an element's payload.
func listTable(v ast.Value) (string, error) {
	switch v.(type) {
	case ast.String:
		return "string_lists", nil
	case *ast.Identifier:
		return "identifier_lists", nil
	case ast.Expr:
		return "expr_lists", nil
	case ast.Stmt:
		return "stmt_lists", nil
	case *ast.Keyword:
		return "keyword_lists", nil
	}
	return "", fmt.Errorf("%w: no list table for %T", ast.ErrUnmappedKind, v)
}
