package extractor

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jward/kcltrap/internal/parser"
)

// ErrUnknownFileType is returned for an override naming no registered type.
var ErrUnknownFileType = errors.New("unknown file type")

// FileType describes one kind of source file the extractor understands.
type FileType struct {
	Name       string
	Extensions []string
	Parser     parser.Service
	// Cacheable types may have their bodies served from the trap cache.
	Cacheable bool
}

// Registry maps file extensions to file types. Explicit overrides beat the
// built-in extension table.
type Registry struct {
	byName      map[string]*FileType
	byExt       map[string]*FileType
	overrides   map[string]*FileType
	defaultType *FileType
}

// NewRegistry registers types in order; the first one is the default type
// for the source-type selector.
func NewRegistry(types ...*FileType) *Registry {
	r := &Registry{
		byName:    make(map[string]*FileType),
		byExt:     make(map[string]*FileType),
		overrides: make(map[string]*FileType),
	}
	for _, ft := range types {
		if r.defaultType == nil {
			r.defaultType = ft
		}
		r.byName[ft.Name] = ft
		for _, ext := range ft.Extensions {
			r.byExt[strings.ToLower(ext)] = ft
		}
	}
	return r
}

// Lookup returns the type registered under name.
func (r *Registry) Lookup(name string) (*FileType, bool) {
	ft, ok := r.byName[name]
	return ft, ok
}

// Default returns the type the source-type selector resolves to.
func (r *Registry) Default() *FileType { return r.defaultType }

// SetDefault selects the default type by name.
func (r *Registry) SetDefault(name string) error {
	ft, ok := r.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFileType, name)
	}
	r.defaultType = ft
	return nil
}

// Override maps ext (with or without the leading dot) to the named type.
func (r *Registry) Override(ext, name string) error {
	ft, ok := r.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %q for extension %q", ErrUnknownFileType, name, ext)
	}
	r.overrides[normalizeExt(ext)] = ft
	return nil
}

// ForPath returns the type for a file, consulting overrides first.
func (r *Registry) ForPath(path string) (*FileType, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return nil, false
	}
	if ft, ok := r.overrides[ext]; ok {
		return ft, true
	}
	ft, ok := r.byExt[ext]
	return ft, ok
}

// Extensions returns every supported or overridden extension, sorted.
func (r *Registry) Extensions() []string {
	seen := make(map[string]bool)
	for ext := range r.byExt {
		seen[ext] = true
	}
	for ext := range r.overrides {
		seen[ext] = true
	}
	out := make([]string, 0, len(seen))
	for ext := range seen {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
