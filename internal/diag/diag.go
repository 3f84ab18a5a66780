// Package diag records user-facing diagnostics as JSON lines, one file per
// extraction worker.
package diag

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ExtractorName identifies this extractor in every diagnostic.
const ExtractorName = "kcl"

// Severity of a diagnostic.
type Severity string

const (
	SeverityNote    Severity = "note"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Kind is a stable diagnostic category.
type Kind struct {
	ID       string
	Name     string
	Severity Severity
}

var (
	ParseError    = Kind{ID: "parse-error", Name: "Could not process some files due to syntax errors", Severity: SeverityWarning}
	InternalError = Kind{ID: "internal-error", Name: "Internal error", Severity: SeverityError}
)

type Source struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ExtractorName string `json:"extractorName"`
}

type Visibility struct {
	StatusPage      bool `json:"statusPage"`
	CLISummaryTable bool `json:"cliSummaryTable"`
	Telemetry       bool `json:"telemetry"`
}

// Location is 1-based on both axes; File is relative to the source root.
type Location struct {
	File        string `json:"file"`
	StartLine   int    `json:"startLine"`
	StartColumn int    `json:"startColumn"`
	EndLine     int    `json:"endLine"`
	EndColumn   int    `json:"endColumn"`
}

type Diagnostic struct {
	Timestamp       time.Time  `json:"timestamp"`
	Source          Source     `json:"source"`
	MarkdownMessage string     `json:"markdownMessage"`
	Severity        Severity   `json:"severity"`
	Visibility      Visibility `json:"visibility"`
	Location        *Location  `json:"location,omitempty"`
}

// New builds a diagnostic of kind. loc may be nil.
func New(kind Kind, markdown string, loc *Location) Diagnostic {
	return Diagnostic{
		Timestamp: time.Now().UTC(),
		Source: Source{
			ID:            ExtractorName + "/" + kind.ID,
			Name:          kind.Name,
			ExtractorName: ExtractorName,
		},
		MarkdownMessage: markdown,
		Severity:        kind.Severity,
		Visibility:      Visibility{StatusPage: true, CLISummaryTable: true, Telemetry: true},
		Location:        loc,
	}
}

// Buffer collects the diagnostics of one task.
type Buffer struct {
	items []Diagnostic
}

func (b *Buffer) Add(d Diagnostic) { b.items = append(b.items, d) }

// Items returns the collected diagnostics in insertion order.
func (b *Buffer) Items() []Diagnostic { return b.items }

func (b *Buffer) Len() int { return len(b.items) }

// Writer appends diagnostics to a JSON lines file created on first use.
type Writer struct {
	path string

	mu   sync.Mutex
	f    *os.File
	buf  *bufio.Writer
	err  error
	done bool
}

// NewWriter returns a writer for dir/extractor-<n>.jsonl. Nothing is created
// until the first diagnostic is written.
func NewWriter(dir string, n int) *Writer {
	return &Writer{path: filepath.Join(dir, fmt.Sprintf("extractor-%d.jsonl", n))}
}

// Path returns the file the writer appends to.
func (w *Writer) Path() string { return w.path }

// Drain writes every diagnostic in b.
func (w *Writer) Drain(b *Buffer) error {
	for _, d := range b.Items() {
		if err := w.Write(d); err != nil {
			return err
		}
	}
	return nil
}

// Write appends one diagnostic. An open failure is sticky.
func (w *Writer) Write(d Diagnostic) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return fmt.Errorf("diagnostics %s: writer closed", w.path)
	}
	if w.err != nil {
		return w.err
	}
	if w.f == nil {
		if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
			w.err = fmt.Errorf("open diagnostics: %w", err)
			return w.err
		}
		f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			w.err = fmt.Errorf("open diagnostics: %w", err)
			return w.err
		}
		w.f = f
		w.buf = bufio.NewWriter(f)
	}
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode diagnostic: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.buf.Write(data); err != nil {
		return fmt.Errorf("write diagnostic: %w", err)
	}
	return nil
}

// Close flushes and closes the file if one was opened.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.done = true
	if w.f == nil {
		return nil
	}
	err := w.buf.Flush()
	if cerr := w.f.Close(); err == nil {
		err = cerr
	}
	w.f = nil
	return err
}

// ReadFile parses a diagnostics file.
func ReadFile(path string) ([]Diagnostic, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []Diagnostic
	dec := json.NewDecoder(f)
	for dec.More() {
		var d Diagnostic
		if err := dec.Decode(&d); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		out = append(out, d)
	}
	return out, nil
}
