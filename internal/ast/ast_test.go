package ast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDs_StructuralAndDeduplicated(t *testing.T) {
	t.Parallel()
	span := Span{Start: Pos{Line: 1, Column: 0}, End: Pos{Line: 1, Column: 5}}

	ids := NewIDs()
	first := ids.Next("Identifier", span)
	second := ids.Next("Identifier", span)
	other := ids.Next("StringLit", span)

	assert.Equal(t, "Identifier@1:0-1:5", first)
	assert.Equal(t, "Identifier@1:0-1:5#1", second)
	assert.Equal(t, "StringLit@1:0-1:5", other)

	// A fresh allocator over the same tree yields the same identities.
	again := NewIDs()
	assert.Equal(t, first, again.Next("Identifier", span))
}

func TestAugOp_SymbolRoundTrip(t *testing.T) {
	t.Parallel()
	for op := Assign; op <= BitOr; op++ {
		sym := op.Symbol()
		require.NotEmpty(t, sym, "op %d", op)
		back, ok := AugOpFromSymbol(sym)
		require.True(t, ok)
		assert.Equal(t, op, back)
	}
	_, ok := AugOpFromSymbol("<>")
	assert.False(t, ok)
	assert.Empty(t, AugOp(99).Symbol())
}

func TestConfigEntryOperation_Symbol(t *testing.T) {
	t.Parallel()
	assert.Equal(t, ":", Union.Symbol())
	assert.Equal(t, "=", Override.Symbol())
	assert.Equal(t, "+=", Insert.Symbol())
}

func TestNodes_PreservesOrderAndPayload(t *testing.T) {
	t.Parallel()
	a := &Node[*Identifier]{ID: "a", Value: &Identifier{Names: []string{"a"}}}
	b := &Node[*Identifier]{ID: "b", Value: &Identifier{Names: []string{"pkg", "b"}}}

	got := Nodes([]*Node[*Identifier]{a, b})
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].NodeID())
	assert.Equal(t, "pkg.b", got[1].Payload().(*Identifier).Name())
}

func TestVariants_CoverEveryCategory(t *testing.T) {
	t.Parallel()
	var stmts, exprs, types int
	for _, v := range Variants() {
		switch v.(type) {
		case Stmt:
			stmts++
		case Expr:
			exprs++
		case Type:
			types++
		default:
			t.Fatalf("variant %T is neither statement, expression nor type", v)
		}
	}
	assert.Equal(t, 9, stmts)
	assert.Equal(t, 7, exprs)
	assert.Equal(t, 3, types)
}
