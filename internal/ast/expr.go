package ast

// IdentifierExpr is an identifier in expression position.
type IdentifierExpr struct {
	Identifier
}

// ListExpr is `[a, b, c]`.
type ListExpr struct {
	Elts []*Node[Expr]
	Ctx  ExprContext
}

// SchemaExpr instantiates a schema: `Name(args, kw=v) {config}`.
type SchemaExpr struct {
	Name   *Node[*Identifier]
	Args   []*Node[Expr]
	Kwargs []*Node[*Keyword]
	Config *Node[Expr]
}

// ConfigExpr is `{k: v, ...}`.
type ConfigExpr struct {
	Items []*Node[*ConfigEntry]
}

// NumberLit is an int or float literal with an optional unit suffix.
type NumberLit struct {
	BinarySuffix *NumberBinarySuffix
	Value        NumberLitValue
}

// StringLit is a quoted string; Value is the decoded text.
type StringLit struct {
	IsLongString bool
	RawValue     string
	Value        string
}

// NameConstantLit is True, False, None or Undefined.
type NameConstantLit struct {
	Value NameConstant
}

func (*IdentifierExpr) isValue()  {}
func (*ListExpr) isValue()        {}
func (*SchemaExpr) isValue()      {}
func (*ConfigExpr) isValue()      {}
func (*NumberLit) isValue()       {}
func (*StringLit) isValue()       {}
func (*NameConstantLit) isValue() {}

func (*IdentifierExpr) isExpr()  {}
func (*ListExpr) isExpr()        {}
func (*SchemaExpr) isExpr()      {}
func (*ConfigExpr) isExpr()      {}
func (*NumberLit) isExpr()       {}
func (*StringLit) isExpr()       {}
func (*NameConstantLit) isExpr() {}
