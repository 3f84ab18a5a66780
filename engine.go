package kcltrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/jward/kcltrap/internal/config"
	"github.com/jward/kcltrap/internal/discovery"
	"github.com/jward/kcltrap/internal/extractor"
	"github.com/jward/kcltrap/internal/layout"
	"github.com/jward/kcltrap/internal/parser"
	"github.com/jward/kcltrap/internal/store"
	"github.com/jward/kcltrap/internal/trapcache"
)

// memoryCacheEntries bounds the in-process cache backend.
const memoryCacheEntries = 4096

// Engine runs extractions for one configuration into one database.
type Engine struct {
	cfg      *config.Config
	root     string
	layout   *layout.Layout
	ledger   *store.Store
	registry *extractor.Registry
	state    *extractor.State
	files    *extractor.FileExtractor

	cache       trapcache.Store
	cacheCloser io.Closer

	snippets map[string]extractor.FileSnippet
	parsers  map[string]parser.Service
	progress func(Progress)
	verbose  bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithSnippets registers snippet files: each key is a file to extract whose
// facts are located inside another file.
func WithSnippets(snippets map[string]extractor.FileSnippet) Option {
	return func(e *Engine) {
		for path, s := range snippets {
			if abs, err := filepath.Abs(path); err == nil {
				path = abs
			}
			e.snippets[path] = s
		}
	}
}

// WithParser replaces the parser service of a file type ("kcl" or "yaml").
func WithParser(fileType string, svc parser.Service) Option {
	return func(e *Engine) {
		e.parsers[fileType] = svc
	}
}

// WithCache uses store as the TRAP cache instead of the configured one.
func WithCache(cache trapcache.Store) Option {
	return func(e *Engine) {
		e.cache = cache
	}
}

// WithProgress registers a callback invoked after each file is committed.
func WithProgress(fn func(Progress)) Option {
	return func(e *Engine) {
		e.progress = fn
	}
}

// WithVerbose logs the start and end of every file.
func WithVerbose(verbose bool) Option {
	return func(e *Engine) {
		e.verbose = verbose
	}
}

// New creates an Engine writing into cfg.OutputDir. Configuration problems
// are returned as *config.Error.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	root, err := filepath.Abs(cfg.SourceRoot)
	if err != nil {
		return nil, fmt.Errorf("kcltrap: source root: %w", err)
	}
	// Resolved paths are real paths; the root must be one too.
	if real, err := filepath.EvalSymlinks(root); err == nil {
		root = real
	}

	e := &Engine{
		cfg:      cfg,
		root:     root,
		snippets: make(map[string]extractor.FileSnippet),
		parsers:  make(map[string]parser.Service),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.registry, err = e.buildRegistry()
	if err != nil {
		return nil, &config.Error{Err: err}
	}

	e.layout, err = layout.New(cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("kcltrap: %w", err)
	}
	e.ledger, err = store.Open(e.layout.LedgerPath())
	if err != nil {
		return nil, fmt.Errorf("kcltrap: create store: %w", err)
	}
	if e.cache == nil {
		if err := e.openCache(); err != nil {
			e.ledger.Close()
			return nil, fmt.Errorf("kcltrap: open trap cache: %w", err)
		}
	}
	e.state, err = extractor.NewState(e.snippets)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("kcltrap: %w", err)
	}
	e.files = extractor.NewFileExtractor(extractor.Config{
		ExtractLines: cfg.ExtractLines,
		Encoding:     cfg.Encoding,
	}, e.cache, e.state)
	return e, nil
}

func (e *Engine) buildRegistry() (*extractor.Registry, error) {
	kcl := e.parsers["kcl"]
	if kcl == nil {
		kcl = parser.NewKCLService(e.cfg.Parser.KCLCommand)
	}
	yaml := e.parsers["yaml"]
	if yaml == nil {
		yaml = parser.YAMLService{}
	}
	r := extractor.NewRegistry(
		&extractor.FileType{Name: "kcl", Extensions: []string{".k"}, Parser: kcl, Cacheable: true},
		&extractor.FileType{Name: "yaml", Extensions: []string{".yaml", ".yml"}, Parser: yaml, Cacheable: true},
	)
	exts := make([]string, 0, len(e.cfg.FileTypes))
	for ext := range e.cfg.FileTypes {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	var errs []error
	if err := r.SetDefault(e.cfg.SourceType); err != nil {
		errs = append(errs, err)
	}
	for _, ext := range exts {
		if err := r.Override(ext, e.cfg.FileTypes[ext]); err != nil {
			errs = append(errs, err)
		}
	}
	return r, errors.Join(errs...)
}

func (e *Engine) openCache() error {
	tc := e.cfg.TrapCache
	if tc.Dir == "" {
		return nil
	}
	switch strings.ToLower(tc.Backend) {
	case config.BackendBolt:
		s, err := trapcache.OpenBolt(filepath.Join(tc.Dir, "cache.bolt"), !tc.Write)
		if err != nil {
			return err
		}
		e.cache, e.cacheCloser = s, s
	case config.BackendMemory:
		s, err := trapcache.NewMemory(memoryCacheEntries, !tc.Write)
		if err != nil {
			return err
		}
		e.cache = s
	default:
		bound, err := trapcache.ParseSize(tc.Bound)
		if err != nil {
			return err
		}
		s, err := trapcache.OpenDir(tc.Dir, trapcache.WithBound(bound), trapcache.WithReadOnly(!tc.Write))
		if err != nil {
			return err
		}
		e.cache = s
	}
	return nil
}

// Close releases the Engine's database and cache resources. It is safe to
// call more than once.
func (e *Engine) Close() error {
	var errs []error
	if e.state != nil {
		e.state.Close()
		e.state = nil
	}
	if e.cacheCloser != nil {
		errs = append(errs, e.cacheCloser.Close())
		e.cacheCloser = nil
	}
	if e.ledger != nil {
		errs = append(errs, e.ledger.Close())
		e.ledger = nil
	}
	return errors.Join(errs...)
}

// Store returns the run ledger.
func (e *Engine) Store() *store.Store {
	return e.ledger
}

// Layout returns the database layout.
func (e *Engine) Layout() *layout.Layout {
	return e.layout
}

// SourceFiles resolves the source set without extracting it. Snippet files
// are appended after the resolved files.
func (e *Engine) SourceFiles(ctx context.Context) ([]string, error) {
	files, err := discovery.Resolve(ctx, discovery.Options{
		SourceRoot: e.root,
		Include:    e.cfg.Include,
		Exclude:    append(slices.Clone(e.cfg.Exclude), e.layout.Root),
		Filters:    e.cfg.Filters,
		Extensions: e.registry.Extensions(),
		SkipBinary: extractor.IsUTF8(e.cfg.Encoding),
		Threads:    e.cfg.Workers(),
	})
	if err != nil {
		return nil, fmt.Errorf("resolve source set: %w", err)
	}
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		seen[f] = true
	}
	var extra []string
	for path := range e.snippets {
		if !seen[path] {
			extra = append(extra, path)
		}
	}
	sort.Strings(extra)
	return append(files, extra...), nil
}

// Run extracts the source set. It returns a *FatalError when the run was
// aborted and an error wrapping ErrIncomplete when some files failed; the
// summary is returned in both cases.
func (e *Engine) Run(ctx context.Context) (*Summary, error) {
	files, err := e.SourceFiles(ctx)
	if err != nil {
		return nil, err
	}

	if err := e.layout.ResetDiagnostics(); err != nil {
		return nil, fmt.Errorf("kcltrap: %w", err)
	}

	started := time.Now().UTC()
	runID, err := e.ledger.InsertRun(&store.Run{SourceRoot: e.root, StartedAt: started})
	if err != nil {
		return nil, fmt.Errorf("kcltrap: %w", err)
	}

	sum, runErr := e.extractAll(ctx, runID, files)

	status := store.RunSucceeded
	switch {
	case runErr != nil:
		status = store.RunFailed
	case sum.Failed > 0:
		status = store.RunIncomplete
	}
	// Aborted runs leave no manifest.
	if runErr == nil {
		runErr = e.layout.WriteManifest(layout.Manifest{
			SourceLocationPrefix: e.root,
			PrimaryLanguage:      e.registry.Default().Name,
			BaselineLinesOfCode:  sum.Code,
			CreationMetadata: layout.CreationMetadata{
				RunID:        runID,
				CreationTime: started,
				Files:        sum.Files,
				FailedFiles:  sum.Failed,
			},
		})
		if runErr != nil {
			status = store.RunFailed
			runErr = fmt.Errorf("kcltrap: %w", runErr)
		}
	}
	if err := e.ledger.FinishRun(runID, status, sum.Files, sum.Failed, time.Now().UTC()); err != nil {
		log.Printf("warning: %v", err)
	}
	if runErr != nil {
		return sum, runErr
	}
	if sum.Failed > 0 {
		return sum, fmt.Errorf("%w: %d of %d file(s) failed", ErrIncomplete, sum.Failed, sum.Files)
	}
	return sum, nil
}
