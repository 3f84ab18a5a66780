// Package traptest parses TRAP output back into tuples for assertions.
package traptest

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Tuple is one parsed fact. Args keep their TRAP spelling: labels as "#n",
// strings unquoted.
type Tuple struct {
	Table string
	Args  []string
}

// Stream is a parsed TRAP file.
type Stream struct {
	// Defs maps a label to its definition ("*" or the global key) in order.
	Defs    map[string]string
	Order   []string
	Tuples  []Tuple
	Content string
}

var (
	defRe   = regexp.MustCompile(`^(#\d+)=(\*|@"((?:[^"]|"")*)")$`)
	labelRe = regexp.MustCompile(`^#\d+$`)
)

// Parse splits data into label definitions and tuples. Every label a tuple
// references must already be defined; a violation fails the test.
func Parse(t testing.TB, data string) *Stream {
	t.Helper()
	s := &Stream{Defs: make(map[string]string), Content: data}
	for n, line := range statements(data) {
		if line == "" {
			continue
		}
		if m := defRe.FindStringSubmatch(line); m != nil {
			_, dup := s.Defs[m[1]]
			require.False(t, dup, "statement %d: label %s defined twice", n, m[1])
			def := "*"
			if m[2] != "*" {
				def = strings.ReplaceAll(m[3], `""`, `"`)
			}
			s.Defs[m[1]] = def
			s.Order = append(s.Order, m[1])
			continue
		}
		tup := parseTuple(t, n, line)
		for _, a := range tup.Args {
			if labelRe.MatchString(a) {
				_, ok := s.Defs[a]
				require.True(t, ok, "statement %d: %s references undefined label %s", n, tup.Table, a)
			}
		}
		s.Tuples = append(s.Tuples, tup)
	}
	return s
}

// statements splits on newlines outside string literals; strings may span
// lines.
func statements(data string) []string {
	var out []string
	inQuote := false
	start := 0
	for i := 0; i < len(data); i++ {
		switch data[i] {
		case '"':
			inQuote = !inQuote
		case '\n':
			if !inQuote {
				out = append(out, data[start:i])
				start = i + 1
			}
		}
	}
	if start < len(data) {
		out = append(out, data[start:])
	}
	return out
}

func parseTuple(t testing.TB, n int, line string) Tuple {
	t.Helper()
	open := strings.IndexByte(line, '(')
	require.True(t, open > 0 && strings.HasSuffix(line, ")"), "line %d: malformed tuple %q", n, line)
	tup := Tuple{Table: line[:open]}
	body := line[open+1 : len(line)-1]
	for i := 0; i < len(body); {
		if body[i] == '"' {
			var b strings.Builder
			i++
			for i < len(body) {
				if body[i] == '"' {
					if i+1 < len(body) && body[i+1] == '"' {
						b.WriteByte('"')
						i += 2
						continue
					}
					i++
					break
				}
				b.WriteByte(body[i])
				i++
			}
			tup.Args = append(tup.Args, b.String())
		} else {
			j := strings.IndexByte(body[i:], ',')
			if j < 0 {
				j = len(body) - i
			}
			tup.Args = append(tup.Args, body[i:i+j])
			i += j
		}
		if i < len(body) && body[i] == ',' {
			i++
		}
	}
	return tup
}

// Table returns every tuple of the named table in stream order.
func (s *Stream) Table(name string) []Tuple {
	var out []Tuple
	for _, tup := range s.Tuples {
		if tup.Table == name {
			out = append(out, tup)
		}
	}
	return out
}

// Key returns the global key a label was defined with, or "*".
func (s *Stream) Key(label string) string {
	return s.Defs[label]
}

// Children returns the tuples of table whose parent argument (at position
// parentArg) is label.
func (s *Stream) Children(table string, parentArg int, label string) []Tuple {
	var out []Tuple
	for _, tup := range s.Table(table) {
		if parentArg < len(tup.Args) && tup.Args[parentArg] == label {
			out = append(out, tup)
		}
	}
	return out
}
