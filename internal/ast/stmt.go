package ast

// ExprStmt is a bare expression statement.
type ExprStmt struct {
	Exprs []*Node[Expr]
}

// UnificationStmt is `target: Schema {...}`.
type UnificationStmt struct {
	Target *Node[*Identifier]
	Value  *Node[Expr]
}

// AssignStmt is `a = b = value` with an optional type annotation.
type AssignStmt struct {
	Targets []*Node[*Identifier]
	Value   *Node[Expr]
	Ty      *Node[Type]
}

// AugAssignStmt is `target op= value`.
type AugAssignStmt struct {
	Target *Node[*Identifier]
	Value  *Node[Expr]
	Op     AugOp
}

// AssertStmt is `assert test if cond, msg`.
type AssertStmt struct {
	Test   *Node[Expr]
	IfCond *Node[Expr]
	Msg    *Node[Expr]
}

// IfStmt is an if/elif/else chain; elif arms nest in Orelse.
type IfStmt struct {
	Cond   *Node[Expr]
	Body   []*Node[Stmt]
	Orelse []*Node[Stmt]
}

// ImportStmt is `import path as asname`.
type ImportStmt struct {
	Path    *Node[String]
	Rawpath string
	Name    string
	Asname  *Node[String]
}

// SchemaAttr declares an attribute inside a schema body.
type SchemaAttr struct {
	Doc        string
	Name       *Node[String]
	Op         *AugOp
	Value      *Node[Expr]
	IsOptional bool
	Ty         *Node[Type]
}

// SchemaStmt declares a schema.
type SchemaStmt struct {
	Doc         *Node[String]
	Name        *Node[String]
	ParentName  *Node[*Identifier]
	ForHostName *Node[*Identifier]
	Mixins      []*Node[*Identifier]
	Body        []*Node[Stmt]
}

func (*ExprStmt) isValue()        {}
func (*UnificationStmt) isValue() {}
func (*AssignStmt) isValue()      {}
func (*AugAssignStmt) isValue()   {}
func (*AssertStmt) isValue()      {}
func (*IfStmt) isValue()          {}
func (*ImportStmt) isValue()      {}
func (*SchemaAttr) isValue()      {}
func (*SchemaStmt) isValue()      {}

func (*ExprStmt) isStmt()        {}
func (*UnificationStmt) isStmt() {}
func (*AssignStmt) isStmt()      {}
func (*AugAssignStmt) isStmt()   {}
func (*AssertStmt) isStmt()      {}
func (*IfStmt) isStmt()          {}
func (*ImportStmt) isStmt()      {}
func (*SchemaAttr) isStmt()      {}
func (*SchemaStmt) isStmt()      {}
