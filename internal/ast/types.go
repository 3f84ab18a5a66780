package ast

import "strconv"

// AnyType is the `any` annotation.
type AnyType struct{}

// NamedType references a schema or alias by name.
type NamedType struct {
	Identifier Identifier
}

// BasicType is one of the builtin scalar types.
type BasicType struct {
	Kind BasicKind
}

func (*AnyType) isValue()   {}
func (*NamedType) isValue() {}
func (*BasicType) isValue() {}

func (*AnyType) isType()   {}
func (*NamedType) isType() {}
func (*BasicType) isType() {}

// BasicKind enumerates builtin scalar types.
type BasicKind int

const (
	Bool BasicKind = iota
	Int
	Float
	Str
)

func (k BasicKind) String() string {
	switch k {
	case Bool:
		return "bool"
	case Int:
		return "int"
	case Float:
		return "float"
	case Str:
		return "str"
	}
	return "BasicKind(" + strconv.Itoa(int(k)) + ")"
}

// ExprContext says whether an identifier is read or written.
type ExprContext int

const (
	Load ExprContext = iota
	Store
)

// AugOp is an assignment operator.
type AugOp int

const (
	Assign AugOp = iota
	Add
	Sub
	Mul
	Div
	Mod
	Pow
	FloorDiv
	LShift
	RShift
	BitXor
	BitAnd
	BitOr
)

var augOpSymbols = [...]string{
	Assign:   "=",
	Add:      "+=",
	Sub:      "-=",
	Mul:      "*=",
	Div:      "/=",
	Mod:      "%=",
	Pow:      "**=",
	FloorDiv: "//=",
	LShift:   "<<=",
	RShift:   ">>=",
	BitXor:   "^=",
	BitAnd:   "&=",
	BitOr:    "|=",
}

// Symbol returns the operator's source spelling.
func (op AugOp) Symbol() string {
	if op < 0 || int(op) >= len(augOpSymbols) {
		return ""
	}
	return augOpSymbols[op]
}

// AugOpFromSymbol is the inverse of Symbol.
func AugOpFromSymbol(s string) (AugOp, bool) {
	for i, sym := range augOpSymbols {
		if sym == s {
			return AugOp(i), true
		}
	}
	return 0, false
}

// ConfigEntryOperation is how a config entry merges into its target.
type ConfigEntryOperation int

const (
	Union ConfigEntryOperation = iota
	Override
	Insert
)

// Symbol returns the operator's source spelling.
func (op ConfigEntryOperation) Symbol() string {
	switch op {
	case Union:
		return ":"
	case Override:
		return "="
	case Insert:
		return "+="
	}
	return ""
}

// NumberBinarySuffix is a unit suffix such as "Ki" or "M".
type NumberBinarySuffix string

// NumberLitValue is an IntValue or FloatValue.
type NumberLitValue interface {
	isNumber()
}

type IntValue int64

type FloatValue float64

func (IntValue) isNumber()   {}
func (FloatValue) isNumber() {}

// NameConstant is a builtin constant literal.
type NameConstant int

const (
	True NameConstant = iota
	False
	None
	Undefined
)

func (c NameConstant) String() string {
	switch c {
	case True:
		return "True"
	case False:
		return "False"
	case None:
		return "None"
	case Undefined:
		return "Undefined"
	}
	return "NameConstant(" + strconv.Itoa(int(c)) + ")"
}
