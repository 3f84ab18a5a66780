package trapcache

import (
	"bytes"
	"fmt"
	"io"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketBodies = []byte("bodies")

// BoltStore keeps entries in a single bbolt file. A pending entry is
// buffered in memory and stored in one update transaction on commit.
type BoltStore struct {
	db       *bolt.DB
	readOnly bool
}

var _ Store = (*BoltStore)(nil)

// OpenBolt opens (or creates) a bbolt cache at path.
func OpenBolt(path string, readOnly bool) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("trap cache: bbolt open: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketBodies)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("trap cache: bbolt init: %w", err)
	}
	return &BoltStore{db: db, readOnly: readOnly}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Lookup copies the stored body out of the read transaction.
func (s *BoltStore) Lookup(key Key) (io.ReadCloser, bool, error) {
	var body []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketBodies).Get(key[:]); v != nil {
			body = bytes.Clone(v)
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("trap cache: bbolt lookup: %w", err)
	}
	if body == nil {
		return nil, false, nil
	}
	return io.NopCloser(bytes.NewReader(body)), true, nil
}

// Create buffers a new entry.
func (s *BoltStore) Create(key Key) (Pending, error) {
	if s.readOnly {
		return discard{}, nil
	}
	return &boltPending{db: s.db, key: key}, nil
}

type boltPending struct {
	db   *bolt.DB
	key  Key
	buf  bytes.Buffer
	done bool
}

func (p *boltPending) Write(b []byte) (int, error) { return p.buf.Write(b) }

func (p *boltPending) Commit() error {
	if p.done {
		return nil
	}
	p.done = true
	err := p.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBodies).Put(p.key[:], p.buf.Bytes())
	})
	if err != nil {
		return fmt.Errorf("trap cache: bbolt commit: %w", err)
	}
	return nil
}

func (p *boltPending) Discard() {
	p.done = true
	p.buf.Reset()
}
