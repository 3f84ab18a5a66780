package ast

// Variants returns a zero value of every statement, expression and type
// variant. Tests use it to prove that every variant has an emission rule.
func Variants() []Value {
	return []Value{
		&ExprStmt{},
		&UnificationStmt{},
		&AssignStmt{},
		&AugAssignStmt{},
		&AssertStmt{},
		&IfStmt{},
		&ImportStmt{},
		&SchemaAttr{},
		&SchemaStmt{},

		&IdentifierExpr{},
		&ListExpr{},
		&SchemaExpr{},
		&ConfigExpr{},
		&NumberLit{Value: IntValue(0)},
		&StringLit{},
		&NameConstantLit{},

		&AnyType{},
		&NamedType{},
		&BasicType{},
	}
}
