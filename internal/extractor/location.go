package extractor

import (
	"fmt"

	"github.com/jward/kcltrap/internal/ast"
	"github.com/jward/kcltrap/internal/trap"
)

// Location is an external source range: 1-based lines and columns, end
// column inclusive.
type Location struct {
	StartLine, StartColumn int
	EndLine, EndColumn     int
}

// LocationManager turns native spans into location facts for one file. For
// a snippet the start is the snippet's position inside its original file.
type LocationManager struct {
	w           *trap.Writer
	file        trap.Label
	startLine   int
	startColumn int
}

// NewLocationManager returns a manager for file with the default start (1, 1).
func NewLocationManager(w *trap.Writer, file trap.Label) *LocationManager {
	return &LocationManager{w: w, file: file, startLine: 1, startColumn: 1}
}

// SetStart moves the origin for snippet extraction.
func (m *LocationManager) SetStart(line, column int) {
	m.startLine = line
	m.startColumn = column
}

// SetWriter redirects location facts, e.g. from the prelude to the body.
func (m *LocationManager) SetWriter(w *trap.Writer) { m.w = w }

// FileLabel returns the label of the file entity.
func (m *LocationManager) FileLabel() trap.Label { return m.file }

// StartLine returns the snippet start line (1 for whole files).
func (m *LocationManager) StartLine() int { return m.startLine }

// StartColumn returns the snippet start column (1 for whole files).
func (m *LocationManager) StartColumn() int { return m.startColumn }

// Translate maps a native span to an external location.
func (m *LocationManager) Translate(span ast.Span) Location {
	sl, sc := m.translate(span.Start.Line, span.Start.Column+1)
	el, ec := m.translate(span.End.Line, span.End.Column)
	return Location{StartLine: sl, StartColumn: sc, EndLine: el, EndColumn: ec}
}

// translate shifts a 1-based (line, column) pair by the snippet origin.
// Only the first native line is shifted horizontally.
func (m *LocationManager) translate(line, column int) (int, int) {
	if line == 1 {
		column += m.startColumn - 1
	}
	return line + m.startLine - 1, column
}

// Emit writes the location of entity.
func (m *LocationManager) Emit(entity trap.Label, span ast.Span) {
	m.EmitLocation(entity, m.Translate(span))
}

// EmitLocation writes an already translated location of entity.
func (m *LocationManager) EmitLocation(entity trap.Label, l Location) {
	key := fmt.Sprintf("loc,%s,%d,%d,%d,%d", trap.FileKey, l.StartLine, l.StartColumn, l.EndLine, l.EndColumn)
	loc, isNew := m.w.Define(key)
	if isNew {
		m.w.Emit("locations_default", loc, m.file, l.StartLine, l.StartColumn, l.EndLine, l.EndColumn)
	}
	m.w.Emit("hasLocation", entity, loc)
}

// EmitFileLocation writes the whole-file pseudo location (0,0,0,0).
func (m *LocationManager) EmitFileLocation() {
	m.EmitLocation(m.file, Location{})
}
