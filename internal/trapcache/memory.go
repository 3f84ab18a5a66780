package trapcache

import (
	"bytes"
	"fmt"
	"io"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoryStore is an in-process LRU of bodies, useful for a single run over
// a tree with many duplicated files.
type MemoryStore struct {
	entries  *lru.Cache[Key, []byte]
	readOnly bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemory returns a store holding at most size entries. A read-only store
// serves hits but never populates.
func NewMemory(size int, readOnly bool) (*MemoryStore, error) {
	c, err := lru.New[Key, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("trap cache: %w", err)
	}
	return &MemoryStore{entries: c, readOnly: readOnly}, nil
}

func (s *MemoryStore) Lookup(key Key) (io.ReadCloser, bool, error) {
	body, ok := s.entries.Get(key)
	if !ok {
		return nil, false, nil
	}
	return io.NopCloser(bytes.NewReader(body)), true, nil
}

func (s *MemoryStore) Create(key Key) (Pending, error) {
	if s.readOnly {
		return discard{}, nil
	}
	return &memoryPending{store: s, key: key}, nil
}

// Len reports the number of committed entries.
func (s *MemoryStore) Len() int { return s.entries.Len() }

type memoryPending struct {
	store *MemoryStore
	key   Key
	buf   bytes.Buffer
	done  bool
}

func (p *memoryPending) Write(b []byte) (int, error) { return p.buf.Write(b) }

func (p *memoryPending) Commit() error {
	if !p.done {
		p.done = true
		p.store.entries.Add(p.key, bytes.Clone(p.buf.Bytes()))
	}
	return nil
}

func (p *memoryPending) Discard() {
	p.done = true
	p.buf.Reset()
}
