// Package extractor lowers parsed files into TRAP facts: the per-file
// prelude, the cacheable body and the location facts tying them together.
package extractor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strconv"

	"github.com/jward/kcltrap/internal/ast"
	"github.com/jward/kcltrap/internal/parser"
	"github.com/jward/kcltrap/internal/trap"
	"github.com/jward/kcltrap/internal/trapcache"
)

// Config holds the settings that change emitted facts.
type Config struct {
	ExtractLines bool
	Encoding     string
}

// Fingerprint summarises the settings for the cache key.
func (c Config) Fingerprint() string {
	return fmt.Sprintf("lines=%t;encoding=%s", c.ExtractLines, c.Encoding)
}

// CacheStatus records how the trap cache took part in one extraction.
type CacheStatus string

const (
	CacheHit     CacheStatus = "hit"
	CacheMiss    CacheStatus = "miss"
	CacheSkipped CacheStatus = "skipped"
)

// Result summarises one extracted file.
type Result struct {
	CacheStatus CacheStatus
	CacheKey    string
	NumLines    int
	Code        int
	Comments    int
	ParseErrors []parser.ParseError
}

// FileExtractor writes the complete fact stream for one file at a time. It
// holds no per-file state and may be shared between goroutines.
type FileExtractor struct {
	cfg   Config
	cache trapcache.Store
	state *State
}

// NewFileExtractor returns an extractor. A nil cache disables caching.
func NewFileExtractor(cfg Config, cache trapcache.Store, state *State) *FileExtractor {
	return &FileExtractor{cfg: cfg, cache: cache, state: state}
}

// Extract writes the facts for path to out. raw is the file content in the
// configured encoding.
//
// The stream is a prelude describing where the file lives, followed by a
// body describing what it contains. Body labels start at trap.BodyStart and
// never mention the path, so a body can be stored in the cache under the
// content's hash and replayed after the prelude of any other file with the
// same content.
func (x *FileExtractor) Extract(ctx context.Context, out io.Writer, path string, raw []byte, ft *FileType) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, err := Decode(raw, x.cfg.Encoding)
	if err != nil {
		return nil, err
	}

	origin := path
	snippet, isSnippet := x.state.Snippet(path)
	if isSnippet {
		origin = snippet.OriginalFile
	}

	w := trap.NewWriter(out, trap.FileStart)
	fileLbl := w.Global(filepath.ToSlash(origin) + ";sourcefile")
	loc := NewLocationManager(w, fileLbl)
	if isSnippet {
		loc.SetStart(snippet.Line, snippet.Column)
	}
	x.prelude(w, loc, origin)

	res := &Result{CacheStatus: CacheSkipped}
	text := NewTextual(string(src))
	// A prelude that overflowed into the body range cannot be separated
	// from the body; such a file is extracted uncached with one writer.
	bumped := w.Bump(trap.BodyStart)
	cacheable := bumped && x.cache != nil && ft.Cacheable

	var key trapcache.Key
	if cacheable {
		fp := x.cfg.Fingerprint()
		if isSnippet {
			fp += fmt.Sprintf(";snippet=%d,%d", snippet.Line, snippet.Column)
		}
		key = trapcache.NewKey(ft.Name, fp, raw)
		res.CacheKey = key.String()

		body, ok, err := x.cache.Lookup(key)
		if err != nil {
			log.Printf("warning: %s: %v", path, err)
		}
		if ok {
			cached, err := io.ReadAll(body)
			body.Close()
			if err != nil {
				return nil, fmt.Errorf("read cached body: %w", err)
			}
			if err := w.Raw(bytes.NewReader(cached)); err != nil {
				return nil, err
			}
			if err := w.Flush(); err != nil {
				return nil, err
			}
			res.CacheStatus = CacheHit
			res.NumLines = text.NumLines()
			res.Code, res.Comments = cachedMetrics(cached, fileLbl)
			return res, nil
		}
		res.CacheStatus = CacheMiss
	}

	bw := w
	var pending trapcache.Pending
	if bumped {
		if err := w.Flush(); err != nil {
			return nil, err
		}
		bodyOut := out
		if cacheable {
			pending, err = x.cache.Create(key)
			if err != nil {
				log.Printf("warning: %s: %v", path, err)
				pending = nil
			} else {
				bodyOut = io.MultiWriter(out, pending)
				defer pending.Discard()
			}
		}
		bw = trap.NewWriter(bodyOut, trap.BodyStart)
		loc.SetWriter(bw)
	}

	parsed, err := ft.Parser.Parse(ctx, path, src)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	res.ParseErrors = parsed.Errors

	if parsed.Program != nil {
		em := NewEmitter(bw, loc, text, parsed.Symbols)
		if err := em.Program(parsed.Program); err != nil {
			return nil, fmt.Errorf("emit: %w", err)
		}
	}

	res.NumLines = text.NumLines()
	res.Code, res.Comments = text.Metrics(commentSpans(parsed.Program))
	lines := res.NumLines
	if isSnippet {
		lines = 0
	}
	bw.Emit("numlines", fileLbl, lines, res.Code, res.Comments)
	if x.cfg.ExtractLines {
		text.EmitLines(bw, loc)
	}
	if err := bw.Flush(); err != nil {
		return nil, err
	}

	// A file with syntax errors is re-parsed next time so its diagnostics
	// are reported again.
	if pending != nil && len(parsed.Errors) == 0 {
		if err := pending.Commit(); err != nil {
			log.Printf("warning: %s: %v", path, err)
		}
	}
	return res, nil
}

// prelude describes the file, its folders and its program root. The file
// entity is the first label defined, so it is always trap.FileStart.
func (x *FileExtractor) prelude(w *trap.Writer, loc *LocationManager, file string) {
	fileLbl := loc.FileLabel()
	w.Emit("files", fileLbl, filepath.ToSlash(file))

	child := fileLbl
	dir := filepath.Dir(file)
	for {
		dirLbl := w.Global(filepath.ToSlash(dir) + ";folder")
		w.Emit("folders", dirLbl, filepath.ToSlash(dir))
		w.Emit("containerparent", dirLbl, child)
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		child, dir = dirLbl, parent
	}
	loc.EmitFileLocation()

	root := filepath.ToSlash(x.state.ProgramRoot(file))
	rootLbl := w.Global(root + ";kclroot")
	w.Emit("roots", rootLbl, root)
	w.Emit("file_roots", fileLbl, rootLbl)
}

// cachedMetrics reads the code and comment counts back from the numlines
// tuple of a cached body. The tuple follows every program fact, and line
// facts never start a line, so the last match is the real one.
func cachedMetrics(body []byte, file trap.Label) (code, comments int) {
	prefix := []byte("\nnumlines(" + file.String() + ",")
	i := bytes.LastIndex(body, prefix)
	if i < 0 {
		return 0, 0
	}
	rest := body[i+len(prefix):]
	if end := bytes.IndexByte(rest, ')'); end >= 0 {
		rest = rest[:end]
	}
	fields := bytes.Split(rest, []byte(","))
	if len(fields) != 3 {
		return 0, 0
	}
	code, _ = strconv.Atoi(string(fields[1]))
	comments, _ = strconv.Atoi(string(fields[2]))
	return code, comments
}

func commentSpans(p *ast.Program) []ast.Span {
	if p == nil {
		return nil
	}
	var spans []ast.Span
	for _, pkg := range p.Pkgs {
		for _, m := range pkg.Modules {
			for _, c := range m.Comments {
				spans = append(spans, c.Span)
			}
		}
	}
	return spans
}
