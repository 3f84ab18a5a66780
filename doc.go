// Package kcltrap extracts TRAP facts from KCL configuration projects.
//
// # Pipeline
//
// A run resolves the source set (include and exclude roots, glob filters,
// supported file types), then hands every file to a bounded pool of
// workers. Each worker:
//
//  1. Archives the raw source into the database's source archive.
//  2. Parses it with the file type's parser service (an external KCL
//     helper, or tree-sitter for YAML).
//  3. Writes the file's facts: a prelude describing where the file lives,
//     then a body describing what it contains. Bodies never mention the
//     path, so identical content is served from the TRAP cache.
//  4. Turns parser syntax errors into diagnostics.
//
// Results are committed serially to the run ledger, a SQLite database that
// records every run and file.
//
// # Usage
//
//	cfg, err := config.LoadFromDir("path/to/project")
//	if err != nil { ... }
//	e, err := kcltrap.New(cfg)
//	if err != nil { ... }
//	defer e.Close()
//
//	summary, err := e.Run(ctx)
//
// # Failures
//
// A file whose syntax has no emission rule fails on its own: its partial
// output is removed, an internal-error diagnostic is written, and Run
// finishes with an error wrapping [ErrIncomplete]. A parser running out of
// memory or a panic inside a worker stops the run with a [*FatalError]
// carrying the exit status (137 and 1).
package kcltrap
