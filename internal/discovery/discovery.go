// Package discovery resolves the set of source files to extract from the
// include and exclude roots, the pattern filters and the supported file
// types.
package discovery

import (
	"context"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
)

// DatabaseMarker marks a directory holding an extraction database; it is
// never descended into.
const DatabaseMarker = "codeql-database.yml"

// sniffSize is how much of a file is inspected for binary content.
const sniffSize = 128

// allowedHidden lists hidden directories that are still walked.
var allowedHidden = map[string]bool{".github": true}

// Options configures a resolution.
type Options struct {
	SourceRoot string
	// Include and Exclude are relative to SourceRoot. An empty Include
	// means the source root itself.
	Include []string
	Exclude []string
	// Filters are "include:PATTERN" / "exclude:PATTERN" rules.
	Filters []string
	// Extensions are every extension a file type handles, overrides
	// included.
	Extensions []string
	// SkipBinary rejects files whose head is not printable UTF-8.
	SkipBinary bool
	// Threads bounds the number of concurrent walks.
	Threads int
}

// Resolve returns the deduplicated absolute paths of the source set, deepest
// directories first and lexicographic within a depth.
func Resolve(ctx context.Context, opts Options) ([]string, error) {
	root, err := filepath.Abs(opts.SourceRoot)
	if err != nil {
		return nil, err
	}
	if real, err := filepath.EvalSymlinks(root); err == nil {
		root = real
	}
	filter, err := NewFilter(opts.Filters, opts.Extensions)
	if err != nil {
		return nil, err
	}

	includes := opts.Include
	if len(includes) == 0 {
		includes = []string{"."}
	}
	r := &resolver{
		root:     root,
		filter:   filter,
		exts:     make(map[string]bool),
		excludes: make(map[string]bool),
		binary:   opts.SkipBinary,
		found:    make(map[string]struct{}),
	}
	for _, ext := range opts.Extensions {
		r.exts[strings.ToLower(ext)] = true
	}
	for _, p := range opts.Exclude {
		if real, ok := resolvePath(root, p); ok {
			r.excludes[real] = true
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	if opts.Threads > 0 {
		g.SetLimit(opts.Threads)
	}
	for _, p := range includes {
		real, ok := resolvePath(root, p)
		if !ok {
			continue
		}
		g.Go(func() error { return r.walk(ctx, real) })
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	files := make([]string, 0, len(r.found))
	for f := range r.found {
		files = append(files, f)
	}
	SortFiles(files)
	return files, nil
}

// SortFiles orders paths by directory depth descending, then
// lexicographically.
func SortFiles(files []string) {
	sort.Slice(files, func(i, j int) bool {
		di, dj := depth(files[i]), depth(files[j])
		if di != dj {
			return di > dj
		}
		return files[i] < files[j]
	})
}

func depth(path string) int {
	return strings.Count(filepath.ToSlash(filepath.Dir(path)), "/")
}

func resolvePath(root, rel string) (string, bool) {
	p := rel
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, rel)
	}
	real, err := filepath.EvalSymlinks(p)
	if err != nil {
		log.Printf("warning: skipping %s: %v", rel, err)
		return "", false
	}
	abs, err := filepath.Abs(real)
	if err != nil {
		log.Printf("warning: skipping %s: %v", rel, err)
		return "", false
	}
	return abs, true
}

type resolver struct {
	root     string
	filter   *Filter
	exts     map[string]bool
	excludes map[string]bool
	binary   bool

	mu    sync.Mutex
	found map[string]struct{}
}

func (r *resolver) walk(ctx context.Context, start string) error {
	return filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Printf("warning: %v", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		// Inclusion wins when the walk root is itself excluded.
		if path != start && r.excludes[path] {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != start {
				name := d.Name()
				if strings.HasPrefix(name, ".") && !allowedHidden[name] {
					return fs.SkipDir
				}
			}
			if _, err := os.Stat(filepath.Join(path, DatabaseMarker)); err == nil {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if r.accept(path) {
			r.mu.Lock()
			r.found[path] = struct{}{}
			r.mu.Unlock()
		}
		return nil
	})
}

func (r *resolver) accept(path string) bool {
	if !r.exts[strings.ToLower(filepath.Ext(path))] {
		return false
	}
	if !r.filter.Match(r.matchPath(path)) {
		return false
	}
	if r.binary && isBinary(path) {
		return false
	}
	return true
}

// matchPath is path relative to the source root as a "/"-rooted slash path,
// or the absolute path for files outside it.
func (r *resolver) matchPath(path string) string {
	rel, err := filepath.Rel(r.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(path)
	}
	return "/" + filepath.ToSlash(rel)
}

func isBinary(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	head := make([]byte, sniffSize)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return false
	}
	return IsBinary(head[:n])
}

// IsBinary reports whether head contains malformed UTF-8 or unprintable
// control characters. A UTF-16 byte order mark is skipped, and a code point
// cut off at the end of head is not held against it.
func IsBinary(head []byte) bool {
	if len(head) >= 2 && (head[0] == 0xfe && head[1] == 0xff || head[0] == 0xff && head[1] == 0xfe) {
		head = head[2:]
	}
	for len(head) > 0 {
		r, size := utf8.DecodeRune(head)
		if r == utf8.RuneError && size <= 1 {
			return utf8.FullRune(head)
		}
		if r < 0x80 && (r <= 8 || (r >= 14 && r <= 31) || r == 127) {
			return true
		}
		head = head[size:]
	}
	return false
}
