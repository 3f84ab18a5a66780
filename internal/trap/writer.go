// Package trap writes TRAP fact streams: label definitions and relational
// tuples in the textual format consumed by the database importer.
package trap

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Label is an integer row key, written #n.
type Label int64

const (
	// FileStart is the first label handed out in every file. The prelude's
	// first definition (the file entity) therefore always gets #10000.
	FileStart Label = 10000
	// BodyStart is where the cacheable body's numbering begins.
	BodyStart Label = 20000
)

// FileKey is the placeholder importers substitute with the key of the file
// entity, making global keys file-relative without embedding the path.
const FileKey = "{#10000}"

func (l Label) String() string {
	return "#" + strconv.FormatInt(int64(l), 10)
}

// Writer emits labels and tuples to an underlying stream. Errors are sticky:
// once a write fails every later call is a no-op and Err reports the failure.
type Writer struct {
	w       *bufio.Writer
	next    Label
	globals map[string]Label
	err     error
}

// NewWriter returns a Writer whose first allocated label is start.
func NewWriter(w io.Writer, start Label) *Writer {
	return &Writer{
		w:       bufio.NewWriter(w),
		next:    start,
		globals: make(map[string]Label),
	}
}

// Next reports the label the next allocation would return.
func (t *Writer) Next() Label { return t.next }

// Bump advances the counter to l. It returns false, leaving the counter
// untouched, if labels at or beyond l have already been handed out.
func (t *Writer) Bump(l Label) bool {
	if t.next > l {
		return false
	}
	t.next = l
	return true
}

// Fresh defines an anonymous label (#n=*).
func (t *Writer) Fresh() Label {
	l := t.alloc()
	t.printf("%s=*\n", l)
	return l
}

// Global defines (or returns the already defined) label for key (#n=@"key").
func (t *Writer) Global(key string) Label {
	l, _ := t.Define(key)
	return l
}

// Define is Global that also reports whether this call wrote the definition.
func (t *Writer) Define(key string) (Label, bool) {
	if l, ok := t.globals[key]; ok {
		return l, false
	}
	l := t.alloc()
	t.globals[key] = l
	t.printf("%s=@%s\n", l, Quote(key))
	return l, true
}

// Emit writes one tuple. Arguments may be Labels, integers, booleans or
// strings.
func (t *Writer) Emit(table string, args ...any) {
	if t.err != nil {
		return
	}
	var b strings.Builder
	b.WriteString(table)
	b.WriteByte('(')
	for i, a := range args {
		if i > 0 {
			b.WriteByte(',')
		}
		switch v := a.(type) {
		case Label:
			b.WriteString(v.String())
		case int:
			b.WriteString(strconv.Itoa(v))
		case int64:
			b.WriteString(strconv.FormatInt(v, 10))
		case bool:
			if v {
				b.WriteString("true")
			} else {
				b.WriteString("false")
			}
		case string:
			b.WriteString(Quote(v))
		default:
			t.err = fmt.Errorf("trap: %s: unsupported argument type %T", table, a)
			return
		}
	}
	b.WriteString(")\n")
	t.printf("%s", b.String())
}

// Raw copies pre-rendered TRAP text, such as a cached body, into the stream.
func (t *Writer) Raw(r io.Reader) error {
	if t.err != nil {
		return t.err
	}
	if _, err := io.Copy(t.w, r); err != nil {
		t.err = fmt.Errorf("trap: copy: %w", err)
	}
	return t.err
}

// Flush writes buffered output and returns the first error seen.
func (t *Writer) Flush() error {
	if t.err != nil {
		return t.err
	}
	if err := t.w.Flush(); err != nil {
		t.err = fmt.Errorf("trap: flush: %w", err)
	}
	return t.err
}

// Err returns the first error encountered.
func (t *Writer) Err() error { return t.err }

func (t *Writer) alloc() Label {
	l := t.next
	t.next++
	return l
}

func (t *Writer) printf(format string, args ...any) {
	if t.err != nil {
		return
	}
	if _, err := fmt.Fprintf(t.w, format, args...); err != nil {
		t.err = fmt.Errorf("trap: write: %w", err)
	}
}

// Quote renders s as a TRAP string literal: double-quoted, with embedded
// quotes doubled.
func Quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
