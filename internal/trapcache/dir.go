package trapcache

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const entrySuffix = ".trap"

// DirStore keeps one file per entry under a directory. Entries are written
// to a temporary file and renamed into place on commit, so a reader never
// sees a partial body.
type DirStore struct {
	dir      string
	readOnly bool
}

var _ Store = (*DirStore)(nil)

// DirOption configures a DirStore.
type DirOption func(*dirOptions)

type dirOptions struct {
	bound    int64
	readOnly bool
}

// WithBound limits the cache to roughly bound bytes. Entries are evicted,
// least recently used first, when the store is opened.
func WithBound(bound int64) DirOption {
	return func(o *dirOptions) { o.bound = bound }
}

// WithReadOnly serves hits but never populates the cache.
func WithReadOnly(readOnly bool) DirOption {
	return func(o *dirOptions) { o.readOnly = readOnly }
}

// OpenDir opens (creating if needed) a cache directory.
func OpenDir(dir string, opts ...DirOption) (*DirStore, error) {
	var o dirOptions
	for _, opt := range opts {
		opt(&o)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("trap cache: create %s: %w", dir, err)
	}
	s := &DirStore{dir: dir, readOnly: o.readOnly}
	if o.bound > 0 {
		if err := s.trim(o.bound); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *DirStore) path(key Key) string {
	hex := key.String()
	return filepath.Join(s.dir, hex[:2], hex+entrySuffix)
}

// Lookup opens the entry for key.
func (s *DirStore) Lookup(key Key) (io.ReadCloser, bool, error) {
	p := s.path(key)
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("trap cache: open %s: %w", p, err)
	}
	if !s.readOnly {
		// Refresh the access time used for eviction; failure only skews it.
		now := time.Now()
		_ = os.Chtimes(p, now, now)
	}
	return f, true, nil
}

// Create starts a new entry in a temporary file next to its final location.
func (s *DirStore) Create(key Key) (Pending, error) {
	if s.readOnly {
		return discard{}, nil
	}
	final := s.path(key)
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return nil, fmt.Errorf("trap cache: %w", err)
	}
	f, err := os.CreateTemp(filepath.Dir(final), key.String()+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("trap cache: %w", err)
	}
	return &dirPending{f: f, final: final}, nil
}

type dirPending struct {
	f     *os.File
	final string
	done  bool
}

func (p *dirPending) Write(b []byte) (int, error) { return p.f.Write(b) }

func (p *dirPending) Commit() error {
	if p.done {
		return nil
	}
	p.done = true
	if err := p.f.Close(); err != nil {
		os.Remove(p.f.Name())
		return fmt.Errorf("trap cache: close: %w", err)
	}
	if err := os.Rename(p.f.Name(), p.final); err != nil {
		os.Remove(p.f.Name())
		return fmt.Errorf("trap cache: commit: %w", err)
	}
	return nil
}

func (p *dirPending) Discard() {
	if p.done {
		return
	}
	p.done = true
	p.f.Close()
	os.Remove(p.f.Name())
}

type dirEntry struct {
	path  string
	size  int64
	mtime time.Time
}

// trim removes stale temporaries, then the least recently used entries until
// the total size is within bound.
func (s *DirStore) trim(bound int64) error {
	var entries []dirEntry
	var total int64
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".tmp") {
			os.Remove(path)
			return nil
		}
		if !strings.HasSuffix(path, entrySuffix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		entries = append(entries, dirEntry{path: path, size: info.Size(), mtime: info.ModTime()})
		total += info.Size()
		return nil
	})
	if err != nil {
		return fmt.Errorf("trap cache: scan %s: %w", s.dir, err)
	}
	if total <= bound {
		return nil
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].mtime.Equal(entries[j].mtime) {
			return entries[i].mtime.Before(entries[j].mtime)
		}
		return entries[i].path < entries[j].path
	})
	removed := 0
	for _, e := range entries {
		if total <= bound {
			break
		}
		if err := os.Remove(e.path); err != nil {
			log.Printf("warning: trap cache: evict %s: %v", e.path, err)
			continue
		}
		total -= e.size
		removed++
	}
	log.Printf("trap cache: evicted %d entries to stay within %d bytes", removed, bound)
	return nil
}

// ParseSize parses a size such as "500m", "2g", "64k" or a plain byte count.
// Suffixes are binary (k = 1024).
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, nil
	}
	mult := int64(1)
	switch s[len(s)-1] {
	case 'k':
		mult = 1 << 10
	case 'm':
		mult = 1 << 20
	case 'g':
		mult = 1 << 30
	case 't':
		mult = 1 << 40
	}
	if mult != 1 {
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return n * mult, nil
}
