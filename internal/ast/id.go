package ast

import "strconv"

// IDs hands out structural node identities: the node kind plus its span,
// with a numeric suffix when two nodes of the same kind share a span. The
// result depends only on the tree, never on the file path or parser state.
type IDs struct {
	seen map[string]int
}

// NewIDs returns an empty allocator. Use one per parsed file.
func NewIDs() *IDs {
	return &IDs{seen: make(map[string]int)}
}

// Next returns the identity for a node of kind at span.
func (a *IDs) Next(kind string, span Span) string {
	base := kind + "@" + span.String()
	n := a.seen[base]
	a.seen[base] = n + 1
	if n == 0 {
		return base
	}
	return base + "#" + strconv.Itoa(n)
}
