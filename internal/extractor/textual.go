package extractor

import (
	"strings"
	"unicode/utf8"

	"github.com/jward/kcltrap/internal/ast"
	"github.com/jward/kcltrap/internal/trap"
)

// maxToString is the longest rendered snippet before it is elided.
const maxToString = 20

// Textual gives line-oriented access to a file's source text.
type Textual struct {
	lines []lineInfo
}

type lineInfo struct {
	text       string
	terminator string
}

// NewTextual splits src into lines, keeping each line's terminator.
func NewTextual(src string) *Textual {
	t := &Textual{}
	rest := src
	for rest != "" {
		i := strings.IndexByte(rest, '\n')
		if i < 0 {
			t.lines = append(t.lines, lineInfo{text: rest})
			break
		}
		text, term := rest[:i], "\n"
		if strings.HasSuffix(text, "\r") {
			text, term = text[:len(text)-1], "\r\n"
		}
		t.lines = append(t.lines, lineInfo{text: text, terminator: term})
		rest = rest[i+1:]
	}
	return t
}

// NumLines returns the number of lines.
func (t *Textual) NumLines() int { return len(t.lines) }

// Line returns the text of a 1-based native line, or "" out of range.
func (t *Textual) Line(n int) string {
	if n < 1 || n > len(t.lines) {
		return ""
	}
	return t.lines[n-1].text
}

// ToString renders the line a span starts on as a one-line label.
func (t *Textual) ToString(span ast.Span) string {
	return MkToString(t.Line(span.Start.Line))
}

// MkToString trims s, collapses runs of whitespace and elides the middle of
// long strings.
func MkToString(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= maxToString {
		return s
	}
	r := []rune(s)
	return string(r[:7]) + " ... " + string(r[len(r)-7:])
}

// Metrics counts lines containing code and lines containing comments. A line
// with both counts towards both.
func (t *Textual) Metrics(comments []ast.Span) (code, comment int) {
	masked := make([][]bool, len(t.lines))
	hasComment := make([]bool, len(t.lines))
	for _, c := range comments {
		for line := c.Start.Line; line <= c.End.Line; line++ {
			if line < 1 || line > len(t.lines) {
				continue
			}
			text := t.lines[line-1].text
			from, to := 0, len(text)
			if line == c.Start.Line {
				from = clamp(c.Start.Column, 0, len(text))
			}
			if line == c.End.Line {
				to = clamp(c.End.Column, from, len(text))
			}
			if masked[line-1] == nil {
				masked[line-1] = make([]bool, len(text))
			}
			for i := from; i < to; i++ {
				masked[line-1][i] = true
			}
			hasComment[line-1] = true
		}
	}
	for i, l := range t.lines {
		if hasComment[i] {
			comment++
		}
		for j := 0; j < len(l.text); j++ {
			if masked[i] != nil && masked[i][j] {
				continue
			}
			if c := l.text[j]; c != ' ' && c != '\t' && c != '\f' && c != '\v' {
				code++
				break
			}
		}
	}
	return code, comment
}

// EmitLines writes one lines tuple, with its location, per source line.
func (t *Textual) EmitLines(w *trap.Writer, loc *LocationManager) {
	for i, l := range t.lines {
		lbl := w.Fresh()
		w.Emit("lines", lbl, loc.FileLabel(), l.text, l.terminator)
		span := ast.Span{
			Start: ast.Pos{Line: i + 1, Column: 0},
			End:   ast.Pos{Line: i + 1, Column: len(l.text)},
		}
		loc.Emit(lbl, span)
	}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
