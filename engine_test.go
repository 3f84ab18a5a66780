package kcltrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/kcltrap/internal/ast"
	"github.com/jward/kcltrap/internal/config"
	"github.com/jward/kcltrap/internal/diag"
	"github.com/jward/kcltrap/internal/extractor"
	"github.com/jward/kcltrap/internal/layout"
	"github.com/jward/kcltrap/internal/parser"
	"github.com/jward/kcltrap/internal/store"
	"github.com/jward/kcltrap/internal/trapcache"
)

// parseFunc adapts a function to parser.Service.
type parseFunc func(ctx context.Context, path string, src []byte) (*parser.Result, error)

func (f parseFunc) Parse(ctx context.Context, path string, src []byte) (*parser.Result, error) {
	return f(ctx, path, src)
}

// assignResult is the parse of "a = 1\n".
func assignResult() *parser.Result {
	ids := ast.NewIDs()
	sp := func(c1, c2 int) ast.Span {
		return ast.Span{Start: ast.Pos{Line: 1, Column: c1}, End: ast.Pos{Line: 1, Column: c2}}
	}
	target := &ast.Node[*ast.Identifier]{
		ID:    ids.Next("Identifier", sp(0, 1)),
		Span:  sp(0, 1),
		Value: &ast.Identifier{Names: []string{"a"}, Ctx: ast.Store},
	}
	value := &ast.Node[ast.Expr]{
		ID:    ids.Next("NumberLitExpr", sp(4, 5)),
		Span:  sp(4, 5),
		Value: &ast.NumberLit{Value: ast.IntValue(1)},
	}
	stmt := &ast.Node[ast.Stmt]{
		ID:    ids.Next("AssignStmt", sp(0, 5)),
		Span:  sp(0, 5),
		Value: &ast.AssignStmt{Targets: []*ast.Node[*ast.Identifier]{target}, Value: value},
	}
	return &parser.Result{
		Program: &ast.Program{Pkgs: []*ast.Package{{
			Name:    "__main__",
			Modules: []*ast.Module{{Name: "__main__", Pkg: "__main__", Body: []*ast.Node[ast.Stmt]{stmt}}},
		}}},
		Symbols: parser.SchemaTypes{},
	}
}

// scriptedParser dispatches on the file's base name.
type scriptedParser struct {
	mu    sync.Mutex
	calls []string
	by    map[string]func() (*parser.Result, error)
}

func (p *scriptedParser) Parse(_ context.Context, path string, _ []byte) (*parser.Result, error) {
	name := filepath.Base(path)
	p.mu.Lock()
	p.calls = append(p.calls, name)
	p.mu.Unlock()
	if fn, ok := p.by[name]; ok {
		return fn()
	}
	return assignResult(), nil
}

func (p *scriptedParser) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func testConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.SourceRoot = root
	cfg.OutputDir = filepath.Join(t.TempDir(), "db")
	return cfg, root
}

func newTestEngine(t *testing.T, cfg *config.Config, opts ...Option) *Engine {
	t.Helper()
	e, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func readDiagnostics(t *testing.T, e *Engine) []diag.Diagnostic {
	t.Helper()
	paths, err := filepath.Glob(filepath.Join(e.Layout().DiagnosticDir(), "*.jsonl"))
	require.NoError(t, err)
	var out []diag.Diagnostic
	for _, p := range paths {
		ds, err := diag.ReadFile(p)
		require.NoError(t, err)
		out = append(out, ds...)
	}
	return out
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()
	cfg, _ := testConfig(t)
	cfg.Threads = -1
	_, err := New(cfg)
	var cerr *config.Error
	require.ErrorAs(t, err, &cerr)
	assert.ErrorIs(t, err, config.ErrInvalidThreads)
}

func TestNew_CreatesLayout(t *testing.T) {
	t.Parallel()
	cfg, _ := testConfig(t)
	e := newTestEngine(t, cfg)

	for _, dir := range []string{e.Layout().TrapDir(), e.Layout().SrcDir(), e.Layout().DiagnosticDir()} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
	_, err := os.Stat(e.Layout().LedgerPath())
	require.NoError(t, err)
	assert.Equal(t, config.SourceKCL, e.registry.Default().Name)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close(), "second close is a no-op")
}

func TestRun_ExtractsSourceSet(t *testing.T) {
	t.Parallel()
	cfg, root := testConfig(t)
	writeFile(t, filepath.Join(root, "main.k"), "a = 1\n")
	writeFile(t, filepath.Join(root, "app", "deploy.yaml"), "name: web\nreplicas: 3\n")
	writeFile(t, filepath.Join(root, "README.md"), "# docs\n")

	var progress []Progress
	e := newTestEngine(t, cfg,
		WithParser("kcl", parseFunc(func(context.Context, string, []byte) (*parser.Result, error) {
			return assignResult(), nil
		})),
		WithProgress(func(p Progress) { progress = append(progress, p) }),
	)

	sum, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Files)
	assert.Equal(t, 2, sum.Extracted)
	assert.Zero(t, sum.Failed)

	main := filepath.Join(root, "main.k")
	deploy := filepath.Join(root, "app", "deploy.yaml")
	for _, f := range []string{main, deploy} {
		trap, err := os.ReadFile(e.Layout().TrapPath(f))
		require.NoError(t, err, f)
		assert.Contains(t, string(trap), "files(#10000,")
		archived, err := os.ReadFile(e.Layout().ArchivePath(f))
		require.NoError(t, err)
		src, _ := os.ReadFile(f)
		assert.Equal(t, src, archived)
	}

	require.Len(t, progress, 2)
	assert.Equal(t, 2, progress[1].Done)
	assert.Equal(t, 2, progress[1].Total)

	m, err := layout.ReadManifest(e.Layout().Root)
	require.NoError(t, err)
	assert.Equal(t, sum.RunID, m.CreationMetadata.RunID)
	assert.Equal(t, config.SourceKCL, m.PrimaryLanguage)
	assert.Equal(t, 2, m.CreationMetadata.Files)

	run, err := e.Store().RunByID(sum.RunID)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, store.RunSucceeded, run.Status)
	assert.Equal(t, 2, run.Files)

	rows, err := e.Store().ExtractionsByRun(sum.RunID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	types := map[string]string{}
	for _, r := range rows {
		assert.Equal(t, store.FileExtracted, r.Status)
		assert.NotEmpty(t, r.ContentHash)
		types[filepath.Base(r.Path)] = r.FileType
	}
	assert.Equal(t, map[string]string{"main.k": "kcl", "deploy.yaml": "yaml"}, types)
}

func TestRun_EmptySourceSet(t *testing.T) {
	t.Parallel()
	cfg, _ := testConfig(t)
	e := newTestEngine(t, cfg)

	sum, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sum.Files)
	_, err = os.Stat(e.Layout().ManifestPath())
	require.NoError(t, err)
}

func TestRun_OutputInsideSourceRootIsSkipped(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	cfg := config.Default()
	cfg.SourceRoot = root
	cfg.OutputDir = filepath.Join(root, "db")
	writeFile(t, filepath.Join(root, "main.k"), "a = 1\n")

	p := &scriptedParser{}
	e := newTestEngine(t, cfg, WithParser("kcl", p))

	_, err := e.Run(context.Background())
	require.NoError(t, err)
	sum, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Files)
	assert.Equal(t, []string{"main.k", "main.k"}, p.Calls())
}

func TestRun_UnmappedKindFailsOnlyThatFile(t *testing.T) {
	t.Parallel()
	cfg, root := testConfig(t)
	writeFile(t, filepath.Join(root, "bad.k"), "rule R: True\n")
	writeFile(t, filepath.Join(root, "good.k"), "a = 1\n")

	p := &scriptedParser{by: map[string]func() (*parser.Result, error){
		"bad.k": func() (*parser.Result, error) {
			return nil, fmt.Errorf("%w: statement %q", ast.ErrUnmappedKind, "Rule")
		},
	}}
	e := newTestEngine(t, cfg, WithParser("kcl", p))

	sum, err := e.Run(context.Background())
	require.ErrorIs(t, err, ErrIncomplete)
	var fatal *FatalError
	assert.False(t, errors.As(err, &fatal))
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.Extracted)

	bad := filepath.Join(root, "bad.k")
	_, err = os.Stat(e.Layout().TrapPath(bad))
	assert.True(t, os.IsNotExist(err), "no trap file for a failed extraction")
	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(e.Layout().TrapPath(bad)), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
	_, err = os.Stat(e.Layout().TrapPath(filepath.Join(root, "good.k")))
	require.NoError(t, err)

	ds := readDiagnostics(t, e)
	require.Len(t, ds, 1)
	assert.Equal(t, "kcl/internal-error", ds[0].Source.ID)
	assert.Contains(t, ds[0].MarkdownMessage, "Rule")

	run, err := e.Store().RunByID(sum.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.RunIncomplete, run.Status)
	assert.Equal(t, 1, run.Failed)

	m, err := layout.ReadManifest(e.Layout().Root)
	require.NoError(t, err)
	assert.Equal(t, 1, m.CreationMetadata.FailedFiles)
}

func TestRun_OutOfMemoryStopsDispatch(t *testing.T) {
	t.Parallel()
	cfg, root := testConfig(t)
	writeFile(t, filepath.Join(root, "a.k"), "a = 1\n")
	writeFile(t, filepath.Join(root, "b.k"), "b = 1\n")
	writeFile(t, filepath.Join(root, "c.k"), "c = 1\n")

	p := &scriptedParser{by: map[string]func() (*parser.Result, error){
		"a.k": func() (*parser.Result, error) {
			return nil, fmt.Errorf("a.k: %w", parser.ErrOutOfMemory)
		},
	}}
	e := newTestEngine(t, cfg, WithParser("kcl", p))

	sum, err := e.Run(context.Background())
	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, StatusOutOfMemory, fatal.Status)
	assert.Equal(t, filepath.Join(root, "a.k"), fatal.Path)
	assert.ErrorIs(t, err, parser.ErrOutOfMemory)

	assert.Equal(t, []string{"a.k"}, p.Calls())
	assert.Equal(t, 2, sum.Skipped)
	assert.Equal(t, 1, sum.Failed)

	run, err := e.Store().RunByID(sum.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.RunFailed, run.Status)
	_, err = os.Stat(e.Layout().ManifestPath())
	assert.True(t, os.IsNotExist(err))
}

func TestRun_PanicIsFatal(t *testing.T) {
	t.Parallel()
	cfg, root := testConfig(t)
	writeFile(t, filepath.Join(root, "a.k"), "a = 1\n")

	e := newTestEngine(t, cfg, WithParser("kcl", parseFunc(func(context.Context, string, []byte) (*parser.Result, error) {
		panic("boom")
	})))

	_, err := e.Run(context.Background())
	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, StatusInternalError, fatal.Status)
	assert.Contains(t, err.Error(), "boom")

	ds := readDiagnostics(t, e)
	require.Len(t, ds, 1)
	assert.Equal(t, diag.SeverityError, ds[0].Severity)
	assert.Equal(t, "Internal error: panic: boom", ds[0].MarkdownMessage)
}

func TestRun_ParseErrorDiagnostics(t *testing.T) {
	t.Parallel()
	cfg, root := testConfig(t)
	writeFile(t, filepath.Join(root, "sub", "broken.k"), "a = \n")

	e := newTestEngine(t, cfg, WithParser("kcl", parseFunc(func(context.Context, string, []byte) (*parser.Result, error) {
		return &parser.Result{
			Symbols: parser.SchemaTypes{},
			Errors: []parser.ParseError{
				{Message: "expected expression", Line: 1, Column: 3},
				{Message: "unexpected EOF", Line: 1, Column: 4, EndLine: 2, EndColumn: 1},
			},
		}, nil
	})))

	sum, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Extracted)

	ds := readDiagnostics(t, e)
	require.Len(t, ds, 2)
	assert.Equal(t, "kcl/parse-error", ds[0].Source.ID)
	assert.Equal(t, diag.SeverityWarning, ds[0].Severity)
	assert.True(t, strings.HasPrefix(ds[0].MarkdownMessage, "A parse error occurred: `expected expression`."))
	assert.Equal(t, &diag.Location{File: "sub/broken.k", StartLine: 1, StartColumn: 4, EndLine: 1, EndColumn: 4}, ds[0].Location)
	assert.Equal(t, &diag.Location{File: "sub/broken.k", StartLine: 1, StartColumn: 5, EndLine: 2, EndColumn: 1}, ds[1].Location)

	rows, err := e.Store().ExtractionsByRun(sum.RunID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].ParseErrors)
}

func TestRun_DiagnosticsDescribeLatestRun(t *testing.T) {
	t.Parallel()
	cfg, root := testConfig(t)
	path := filepath.Join(root, "a.k")
	writeFile(t, path, "a = \n")

	broken := true
	p := &scriptedParser{by: map[string]func() (*parser.Result, error){
		"a.k": func() (*parser.Result, error) {
			if broken {
				return &parser.Result{Errors: []parser.ParseError{{Message: "expected expression", Line: 1, Column: 3}}}, nil
			}
			return assignResult(), nil
		},
	}}
	e := newTestEngine(t, cfg, WithParser("kcl", p))

	_, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, readDiagnostics(t, e), 1)

	// The file is fixed; its old diagnostic must not survive.
	broken = false
	writeFile(t, path, "a = 1\n")
	_, err = e.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, readDiagnostics(t, e))
}

func TestRun_ReadOnlyMemoryCacheFromConfig(t *testing.T) {
	t.Parallel()
	cfg, root := testConfig(t)
	cfg.TrapCache.Dir = t.TempDir()
	cfg.TrapCache.Backend = config.BackendMemory
	cfg.TrapCache.Write = false
	writeFile(t, filepath.Join(root, "a.k"), "a = 1\n")
	writeFile(t, filepath.Join(root, "b.k"), "a = 1\n")

	p := &scriptedParser{}
	e := newTestEngine(t, cfg, WithParser("kcl", p))
	sum, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sum.CacheHits)
	assert.Len(t, p.Calls(), 2)
	mem, ok := e.cache.(*trapcache.MemoryStore)
	require.True(t, ok)
	assert.Equal(t, 0, mem.Len())
}

func TestParseDiagnostic_OutsideSourceRoot(t *testing.T) {
	t.Parallel()
	cfg, _ := testConfig(t)
	e := newTestEngine(t, cfg)

	d := e.parseDiagnostic(filepath.Join(t.TempDir(), "x.k"), parser.ParseError{Message: "oops", Line: 2, Column: 0})
	assert.Nil(t, d.Location)
	assert.Contains(t, d.MarkdownMessage, "not located within the code being analyzed")
}

func TestRun_CacheHitSkipsParser(t *testing.T) {
	t.Parallel()
	cfg, root := testConfig(t)
	writeFile(t, filepath.Join(root, "one", "a.k"), "a = 1\n")
	writeFile(t, filepath.Join(root, "two", "a.k"), "a = 1\n")
	cfg.Threads = 1

	cache, err := trapcache.NewMemory(16, false)
	require.NoError(t, err)
	p := &scriptedParser{}
	e := newTestEngine(t, cfg, WithParser("kcl", p), WithCache(cache))

	sum, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Extracted)
	assert.Equal(t, 1, sum.CacheHits)
	assert.Len(t, p.Calls(), 1)
	assert.Equal(t, 2, sum.Code, "a cached file still counts its code")

	one, err := os.ReadFile(e.Layout().TrapPath(filepath.Join(root, "one", "a.k")))
	require.NoError(t, err)
	two, err := os.ReadFile(e.Layout().TrapPath(filepath.Join(root, "two", "a.k")))
	require.NoError(t, err)
	_, bodyOne, ok := strings.Cut(string(one), "#20000=")
	require.True(t, ok)
	_, bodyTwo, ok := strings.Cut(string(two), "#20000=")
	require.True(t, ok)
	assert.Equal(t, bodyOne, bodyTwo)

	rows, err := e.Store().ExtractionsByRun(sum.RunID)
	require.NoError(t, err)
	statuses := map[string]int{}
	for _, r := range rows {
		statuses[r.CacheStatus]++
	}
	assert.Equal(t, map[string]int{"hit": 1, "miss": 1}, statuses)
}

func TestRun_DirCacheFromConfig(t *testing.T) {
	t.Parallel()
	cfg, root := testConfig(t)
	cfg.TrapCache.Dir = filepath.Join(t.TempDir(), "cache")
	writeFile(t, filepath.Join(root, "a.k"), "a = 1\n")

	p := &scriptedParser{}
	e := newTestEngine(t, cfg, WithParser("kcl", p))
	_, err := e.Run(context.Background())
	require.NoError(t, err)
	sum, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.CacheHits)
	assert.Len(t, p.Calls(), 1)
}

func TestRun_BoltCacheFromConfig(t *testing.T) {
	t.Parallel()
	cfg, root := testConfig(t)
	cfg.TrapCache.Dir = t.TempDir()
	cfg.TrapCache.Backend = config.BackendBolt
	writeFile(t, filepath.Join(root, "a.k"), "a = 1\n")

	p := &scriptedParser{}
	e := newTestEngine(t, cfg, WithParser("kcl", p))
	_, err := e.Run(context.Background())
	require.NoError(t, err)
	sum, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.CacheHits)
	_, err = os.Stat(filepath.Join(cfg.TrapCache.Dir, "cache.bolt"))
	require.NoError(t, err)
}

func TestRun_FileTypeOverride(t *testing.T) {
	t.Parallel()
	cfg, root := testConfig(t)
	cfg.FileTypes = map[string]string{"kcl2": "kcl"}
	writeFile(t, filepath.Join(root, "a.kcl2"), "a = 1\n")

	p := &scriptedParser{}
	e := newTestEngine(t, cfg, WithParser("kcl", p))
	sum, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Extracted)
	assert.Equal(t, []string{"a.kcl2"}, p.Calls())
}

func TestRun_Snippet(t *testing.T) {
	t.Parallel()
	cfg, root := testConfig(t)
	snippet := filepath.Join(t.TempDir(), "snippet.k")
	writeFile(t, snippet, "a = 1\n")
	host := filepath.Join(root, "doc.md")

	e := newTestEngine(t, cfg,
		WithParser("kcl", &scriptedParser{}),
		WithSnippets(map[string]extractor.FileSnippet{snippet: {OriginalFile: host, Line: 10, Column: 4}}),
	)
	sum, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Extracted)

	trap, err := os.ReadFile(e.Layout().TrapPath(snippet))
	require.NoError(t, err)
	assert.Contains(t, string(trap), filepath.ToSlash(host))
	_, err = os.Stat(e.Layout().ArchivePath(snippet))
	assert.True(t, os.IsNotExist(err), "snippets are not archived")
}

func TestRun_ParallelWorkers(t *testing.T) {
	t.Parallel()
	cfg, root := testConfig(t)
	cfg.Threads = 4
	for i := range 20 {
		writeFile(t, filepath.Join(root, fmt.Sprintf("d%d", i%3), fmt.Sprintf("f%02d.k", i)), "a = 1\n")
	}

	p := &scriptedParser{}
	e := newTestEngine(t, cfg, WithParser("kcl", p))
	sum, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20, sum.Extracted)
	assert.Len(t, p.Calls(), 20)

	rows, err := e.Store().ExtractionsByRun(sum.RunID)
	require.NoError(t, err)
	assert.Len(t, rows, 20)
}

func TestRun_CanceledContext(t *testing.T) {
	t.Parallel()
	cfg, root := testConfig(t)
	writeFile(t, filepath.Join(root, "a.k"), "a = 1\n")
	e := newTestEngine(t, cfg, WithParser("kcl", &scriptedParser{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestFatalError(t *testing.T) {
	t.Parallel()
	err := &FatalError{Status: StatusOutOfMemory, Path: "/src/a.k", Err: parser.ErrOutOfMemory}
	assert.Equal(t, "fatal (status 137) extracting /src/a.k: parser out of memory", err.Error())
	assert.ErrorIs(t, err, parser.ErrOutOfMemory)
}
