package store

import (
	"fmt"
	"sync"
)

// BatchedStore buffers extraction rows in memory and writes them in one
// transaction on Flush, so a run's file rows cost a single commit.
type BatchedStore struct {
	store *Store
	mu    sync.Mutex

	Extractions []Extraction
}

// NewBatchedStore creates a BatchedStore that flushes into s.
func NewBatchedStore(s *Store) *BatchedStore {
	return &BatchedStore{store: s}
}

func (b *BatchedStore) Add(e Extraction) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Extractions = append(b.Extractions, e)
}

func (b *BatchedStore) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Extractions)
}

// Flush writes every buffered row and empties the buffer. On error nothing
// is written and the buffer is kept.
func (b *BatchedStore) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.Extractions) == 0 {
		return nil
	}
	tx, err := b.store.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i := range b.Extractions {
		if _, err := insertExtractionRow(tx, &b.Extractions[i]); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit extractions: %w", err)
	}
	b.Extractions = nil
	return nil
}
