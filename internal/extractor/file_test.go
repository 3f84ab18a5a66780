package extractor

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/kcltrap/internal/ast"
	"github.com/jward/kcltrap/internal/parser"
	"github.com/jward/kcltrap/internal/trap/traptest"
	"github.com/jward/kcltrap/internal/trapcache"
)

func newState(t *testing.T, snippets map[string]FileSnippet) *State {
	t.Helper()
	st, err := NewState(snippets)
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return st
}

func kclType(p parser.Service) *FileType {
	return &FileType{Name: "kcl", Extensions: []string{".k"}, Parser: p, Cacheable: true}
}

func extract(t *testing.T, x *FileExtractor, path, src string, ft *FileType) (string, *Result) {
	t.Helper()
	var buf bytes.Buffer
	res, err := x.Extract(context.Background(), &buf, path, []byte(src), ft)
	require.NoError(t, err)
	return buf.String(), res
}

// body returns everything from the first body label on.
func body(t *testing.T, stream string) string {
	t.Helper()
	i := strings.Index(stream, "#20000=")
	require.GreaterOrEqual(t, i, 0, "no body in stream")
	return stream[i:]
}

func TestFileExtractor_PreludeThenBody(t *testing.T) {
	t.Parallel()
	x := NewFileExtractor(Config{}, nil, newState(t, nil))
	out, res := extract(t, x, "/proj/app/main.k", "a = 1\n", kclType(staticParser(assignProgram)))

	s := traptest.Parse(t, out)
	assert.Equal(t, "#10000", s.Order[0], "file is the first label")
	assert.Equal(t, "/proj/app/main.k;sourcefile", s.Key("#10000"))
	files := s.Table("files")
	require.Len(t, files, 1)
	assert.Equal(t, []string{"#10000", "/proj/app/main.k"}, files[0].Args)
	assert.Len(t, s.Table("folders"), 3, "/proj/app, /proj and /")
	assert.Equal(t, "/proj/app", s.Table("roots")[0].Args[1])

	// Body labels start at the fixed mark.
	pkgs := s.Table("packages")
	require.Len(t, pkgs, 1)
	assert.Equal(t, "#20000", pkgs[0].Args[0])

	num := s.Table("numlines")
	require.Len(t, num, 1)
	assert.Equal(t, []string{"#10000", "1", "1", "0"}, num[0].Args)
	assert.Equal(t, CacheSkipped, res.CacheStatus)
	assert.Equal(t, 1, res.NumLines)
}

func TestFileExtractor_BodyIsPathIndependent(t *testing.T) {
	t.Parallel()
	x := NewFileExtractor(Config{}, nil, newState(t, nil))
	ft := kclType(staticParser(assignProgram))
	a, _ := extract(t, x, "/one/a.k", "a = 1\n", ft)
	b, _ := extract(t, x, "/two/deeper/b.k", "a = 1\n", ft)

	assert.NotEqual(t, a, b)
	assert.Equal(t, body(t, a), body(t, b))
}

func TestFileExtractor_CacheHitSkipsParser(t *testing.T) {
	t.Parallel()
	cache, err := trapcache.NewMemory(8, false)
	require.NoError(t, err)
	p := staticParser(assignProgram)
	ft := kclType(p)
	x := NewFileExtractor(Config{}, cache, newState(t, nil))

	first, res1 := extract(t, x, "/src/x/a.k", "a = 1\n", ft)
	second, res2 := extract(t, x, "/src/y/b.k", "a = 1\n", ft)

	assert.Equal(t, int32(1), p.calls.Load(), "second file served from the cache")
	assert.Equal(t, CacheMiss, res1.CacheStatus)
	assert.Equal(t, CacheHit, res2.CacheStatus)
	assert.Equal(t, res1.CacheKey, res2.CacheKey)
	assert.Equal(t, body(t, first), body(t, second))

	// A hit is byte-identical to what an uncached run produces.
	plain := NewFileExtractor(Config{}, nil, newState(t, nil))
	direct, _ := extract(t, plain, "/src/y/b.k", "a = 1\n", kclType(staticParser(assignProgram)))
	assert.Equal(t, direct, second)

	traptest.Parse(t, second)
}

func TestFileExtractor_FailedExtractionLeavesNoEntry(t *testing.T) {
	t.Parallel()
	cache, err := trapcache.NewMemory(8, false)
	require.NoError(t, err)
	broken := func() *ast.Program {
		// A statement node with no payload has no emission rule.
		return program([]*ast.Node[ast.Stmt]{{ID: "bad", Span: span(1, 0, 1, 5)}})
	}
	x := NewFileExtractor(Config{}, cache, newState(t, nil))

	_, err = x.Extract(context.Background(), &bytes.Buffer{}, "/src/a.k", []byte("a = 1\n"), kclType(staticParser(broken)))
	require.ErrorIs(t, err, ast.ErrUnmappedKind)
	assert.Equal(t, 0, cache.Len())

	// The next extraction of the same content is a miss, not a truncated hit.
	_, res := extract(t, x, "/src/b.k", "a = 1\n", kclType(staticParser(assignProgram)))
	assert.Equal(t, CacheMiss, res.CacheStatus)
	assert.Equal(t, 1, cache.Len())
}

func TestFileExtractor_ParseErrorsAreNotCached(t *testing.T) {
	t.Parallel()
	cache, err := trapcache.NewMemory(8, false)
	require.NoError(t, err)
	p := &fakeParser{result: func(string, []byte) (*parser.Result, error) {
		return &parser.Result{
			Program: assignProgram(),
			Errors:  []parser.ParseError{{Message: "unexpected token", Line: 1, Column: 3}},
		}, nil
	}}
	x := NewFileExtractor(Config{}, cache, newState(t, nil))

	_, res := extract(t, x, "/src/a.k", "a = 1\n", kclType(p))
	require.Len(t, res.ParseErrors, 1)
	_, res = extract(t, x, "/src/a.k", "a = 1\n", kclType(p))
	assert.Equal(t, CacheMiss, res.CacheStatus)
	assert.Equal(t, int32(2), p.calls.Load())
}

func TestFileExtractor_ConfigChangesKey(t *testing.T) {
	t.Parallel()
	cache, err := trapcache.NewMemory(8, false)
	require.NoError(t, err)
	st := newState(t, nil)
	ft := kclType(staticParser(assignProgram))

	_, plain := extract(t, NewFileExtractor(Config{}, cache, st), "/a.k", "a = 1\n", ft)
	out, lines := extract(t, NewFileExtractor(Config{ExtractLines: true}, cache, st), "/a.k", "a = 1\n", ft)

	assert.NotEqual(t, plain.CacheKey, lines.CacheKey)
	assert.Equal(t, CacheMiss, lines.CacheStatus)
	assert.Len(t, traptest.Parse(t, out).Table("lines"), 1)
}

func TestFileExtractor_Snippet(t *testing.T) {
	t.Parallel()
	st := newState(t, map[string]FileSnippet{
		"/tmp/snippet.k": {OriginalFile: "/proj/README.md", Line: 10, Column: 3},
	})
	x := NewFileExtractor(Config{}, nil, st)
	out, _ := extract(t, x, "/tmp/snippet.k", "a = 1\n", kclType(staticParser(assignProgram)))

	s := traptest.Parse(t, out)
	assert.Equal(t, "/proj/README.md", s.Table("files")[0].Args[1])
	assert.Equal(t, "0", s.Table("numlines")[0].Args[1], "snippets report no line count")

	stmt := s.Table("stmts")[0].Args[0]
	assert.True(t, strings.HasPrefix(s.Key(stmt), "{#10000},10,3,"), s.Key(stmt))
	var loc string
	for _, h := range s.Table("hasLocation") {
		if h.Args[0] == stmt {
			loc = h.Args[1]
		}
	}
	assert.Equal(t, "loc,{#10000},10,3,10,7", s.Key(loc))
}

func TestFileExtractor_ProgramRootFromModFile(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ProgramMarker), nil, 0o644))
	sub := filepath.Join(root, "pkg", "sub")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	st := newState(t, nil)
	assert.Equal(t, root, st.ProgramRoot(filepath.Join(sub, "main.k")))
	// Memoised answers are stable.
	assert.Equal(t, root, st.ProgramRoot(filepath.Join(sub, "other.k")))

	lone := t.TempDir()
	assert.Equal(t, lone, st.ProgramRoot(filepath.Join(lone, "main.k")))
}

func TestFileExtractor_ParserFailure(t *testing.T) {
	t.Parallel()
	p := &fakeParser{result: func(string, []byte) (*parser.Result, error) {
		return nil, parser.ErrOutOfMemory
	}}
	x := NewFileExtractor(Config{}, nil, newState(t, nil))
	_, err := x.Extract(context.Background(), &bytes.Buffer{}, "/a.k", []byte("a = 1\n"), kclType(p))
	assert.ErrorIs(t, err, parser.ErrOutOfMemory)
}

func TestFileExtractor_DecodesConfiguredEncoding(t *testing.T) {
	t.Parallel()
	var seen []byte
	p := &fakeParser{result: func(_ string, src []byte) (*parser.Result, error) {
		seen = src
		return &parser.Result{Program: assignProgram()}, nil
	}}
	x := NewFileExtractor(Config{Encoding: "iso-8859-1"}, nil, newState(t, nil))
	_, err := x.Extract(context.Background(), &bytes.Buffer{}, "/a.k", []byte("a = \"\xe9\"\n"), kclType(p))
	require.NoError(t, err)
	assert.Equal(t, "a = \"é\"\n", string(seen))
}

func TestFileExtractor_CacheHitKeepsMetrics(t *testing.T) {
	t.Parallel()
	cache, err := trapcache.NewMemory(8, false)
	require.NoError(t, err)
	commented := func() *ast.Program {
		p := assignProgram()
		p.Pkgs[0].Modules[0].Comments = []*ast.Node[*ast.Comment]{
			{ID: "c", Span: span(2, 0, 2, 6), Value: &ast.Comment{Text: "# note"}},
		}
		return p
	}
	ft := kclType(staticParser(commented))
	x := NewFileExtractor(Config{}, cache, newState(t, nil))
	src := "a = 1\n# note\n"

	_, miss := extract(t, x, "/src/x/a.k", src, ft)
	_, hit := extract(t, x, "/src/y/b.k", src, ft)

	require.Equal(t, CacheMiss, miss.CacheStatus)
	require.Equal(t, CacheHit, hit.CacheStatus)
	assert.Equal(t, 1, miss.Code)
	assert.Equal(t, 1, miss.Comments)
	assert.Equal(t, miss.NumLines, hit.NumLines)
	assert.Equal(t, miss.Code, hit.Code)
	assert.Equal(t, miss.Comments, hit.Comments)
}

func TestFileExtractor_PreludeOverflowSkipsCache(t *testing.T) {
	t.Parallel()
	cache, err := trapcache.NewMemory(8, false)
	require.NoError(t, err)
	x := NewFileExtractor(Config{}, cache, newState(t, nil))
	// One folder label per level pushes the prelude past the body mark.
	path := "/" + strings.Repeat("d/", 11000) + "a.k"

	out, res := extract(t, x, path, "a = 1\n", kclType(staticParser(assignProgram)))

	assert.Equal(t, CacheSkipped, res.CacheStatus)
	assert.Empty(t, res.CacheKey)
	assert.Equal(t, 0, cache.Len())
	assert.Equal(t, 1, res.Code)

	s := traptest.Parse(t, out)
	assert.Len(t, s.Table("stmts"), 1)
	assert.Len(t, s.Table("numlines"), 1)
}
