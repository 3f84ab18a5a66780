package extractor

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/maypok86/otter"
)

// ProgramMarker is the file that marks the root of a KCL program.
const ProgramMarker = "kcl.mod"

// FileSnippet places a file's content inside another file: the snippet is
// parsed from its own path but located at (Line, Column) of OriginalFile.
type FileSnippet struct {
	OriginalFile string
	Line         int
	Column       int
}

// State is shared by every extraction of a run. It is safe for concurrent
// use.
type State struct {
	roots    otter.Cache[string, string]
	snippets map[string]FileSnippet
}

// NewState returns a State knowing about the given snippets, keyed by the
// snippet's own path.
func NewState(snippets map[string]FileSnippet) (*State, error) {
	roots, err := otter.MustBuilder[string, string](10_000).Build()
	if err != nil {
		return nil, fmt.Errorf("program root cache: %w", err)
	}
	if snippets == nil {
		snippets = map[string]FileSnippet{}
	}
	return &State{roots: roots, snippets: snippets}, nil
}

// Close releases the root cache.
func (s *State) Close() {
	s.roots.Close()
}

// Snippet returns the snippet registration for path, if any.
func (s *State) Snippet(path string) (FileSnippet, bool) {
	sn, ok := s.snippets[path]
	return sn, ok
}

// ProgramRoot returns the directory of the nearest kcl.mod above file, or
// the file's own directory when there is none. Answers are memoised per
// directory; racing computations agree, so last write wins harmlessly.
func (s *State) ProgramRoot(file string) string {
	dir := filepath.Dir(file)
	if root := s.rootOf(dir); root != "" {
		return root
	}
	return dir
}

// rootOf returns the program root containing dir, or "" for none.
func (s *State) rootOf(dir string) string {
	if root, ok := s.roots.Get(dir); ok {
		return root
	}
	var root string
	if _, err := os.Stat(filepath.Join(dir, ProgramMarker)); err == nil {
		root = dir
	} else if parent := filepath.Dir(dir); parent != dir {
		root = s.rootOf(parent)
	}
	s.roots.Set(dir, root)
	return root
}
