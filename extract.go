package kcltrap

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/jward/kcltrap/internal/diag"
	"github.com/jward/kcltrap/internal/extractor"
	"github.com/jward/kcltrap/internal/parser"
	"github.com/jward/kcltrap/internal/store"
)

// extractTask extracts one file: it archives the source, writes the TRAP
// file and collects the file's diagnostics. Failures confined to the file
// are reported in the outcome's row; failures that must end the run set
// fatal.
func (e *Engine) extractTask(ctx context.Context, runID, path string) (o outcome) {
	start := time.Now()
	o.path = path
	o.diags = &diag.Buffer{}
	o.row = store.Extraction{RunID: runID, Path: path, Status: store.FileExtracted}
	if e.verbose {
		log.Printf("Extracting %s", path)
	}

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			log.Printf("error: extracting %s: %v\n%s", path, r, debug.Stack())
			o.diags.Add(diag.New(diag.InternalError, internalMessage(err), nil))
			o.row.Status = store.FileFailed
			o.row.Error = err.Error()
			o.fatal = &FatalError{Status: StatusInternalError, Path: path, Err: err}
		}
		o.row.DurationMS = time.Since(start).Milliseconds()
		if e.verbose {
			log.Printf("Done extracting %s (%d ms)", path, o.row.DurationMS)
		}
	}()

	fail := func(err error) outcome {
		log.Printf("error: extracting %s: %v", path, err)
		o.diags.Add(diag.New(diag.InternalError, internalMessage(err), nil))
		o.row.Status = store.FileFailed
		o.row.Error = err.Error()
		return o
	}

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		log.Printf("warning: %s does not exist", path)
		o.row.Status = store.FileMissing
		return o
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fail(fmt.Errorf("read: %w", err))
	}
	o.row.ContentHash = fmt.Sprintf("%x", sha256.Sum256(raw))

	ft, ok := e.registry.ForPath(path)
	if !ok {
		return fail(fmt.Errorf("no file type handles %s", filepath.Ext(path)))
	}
	o.row.FileType = ft.Name

	if _, isSnippet := e.state.Snippet(path); !isSnippet {
		if err := e.layout.Archive(path, raw); err != nil {
			return fail(err)
		}
	}

	res, err := e.writeTrap(ctx, path, raw, ft)
	if err != nil {
		if errors.Is(err, parser.ErrOutOfMemory) {
			log.Printf("error: extracting %s: %v", path, err)
			o.row.Status = store.FileFailed
			o.row.Error = err.Error()
			o.fatal = &FatalError{Status: StatusOutOfMemory, Path: path, Err: err}
			return o
		}
		return fail(err)
	}

	o.res = res
	o.row.CacheStatus = string(res.CacheStatus)
	o.row.Lines = res.NumLines
	o.row.Code = res.Code
	o.row.Comments = res.Comments
	o.row.ParseErrors = len(res.ParseErrors)
	for _, pe := range res.ParseErrors {
		o.diags.Add(e.parseDiagnostic(path, pe))
	}
	return o
}

// writeTrap extracts into a temporary file beside the TRAP path and renames
// it into place, so a failed extraction never leaves a partial TRAP file.
func (e *Engine) writeTrap(ctx context.Context, path string, raw []byte, ft *extractor.FileType) (*extractor.Result, error) {
	dst := e.layout.TrapPath(path)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nil, fmt.Errorf("create trap dir: %w", err)
	}
	f, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create trap file: %w", err)
	}
	tmp := f.Name()
	committed := false
	defer func() {
		if !committed {
			f.Close()
			os.Remove(tmp)
		}
	}()

	res, err := e.files.Extract(ctx, f, path, raw, ft)
	if err != nil {
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close trap file: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return nil, fmt.Errorf("rename trap file: %w", err)
	}
	committed = true
	return res, nil
}

// parseDiagnostic locates a syntax error relative to the source root.
// Files outside the source root get no location.
func (e *Engine) parseDiagnostic(path string, pe parser.ParseError) diag.Diagnostic {
	msg := fmt.Sprintf("A parse error occurred: `%s`.", pe.Message)
	rel, err := filepath.Rel(e.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		msg += " The affected file is not located within the code being analyzed."
		return diag.New(diag.ParseError, msg, nil)
	}
	loc := &diag.Location{
		File:        filepath.ToSlash(rel),
		StartLine:   pe.Line,
		StartColumn: pe.Column + 1,
		EndLine:     pe.EndLine,
		EndColumn:   pe.EndColumn,
	}
	if loc.EndLine == 0 {
		loc.EndLine = loc.StartLine
		loc.EndColumn = loc.StartColumn
	}
	msg += " Check the syntax of the file. If the file is invalid, correct the error or exclude the file from analysis."
	return diag.New(diag.ParseError, msg, loc)
}

func internalMessage(err error) string {
	return fmt.Sprintf("Internal error: %v", err)
}
