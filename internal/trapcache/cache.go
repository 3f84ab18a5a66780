// Package trapcache stores TRAP bodies keyed by a hash of everything that
// determines them, so identical content extracted under the same
// configuration is emitted only once regardless of its path.
package trapcache

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strconv"
)

// FormatVersion is mixed into every key. Bump it whenever the emitted body
// changes for unchanged input.
const FormatVersion = "kcltrap-1"

// Key identifies one cache entry.
type Key [sha256.Size]byte

// NewKey hashes the file type, the configuration fingerprint and the file
// content together with the format version.
func NewKey(fileType, fingerprint string, content []byte) Key {
	h := sha256.New()
	for _, part := range []string{FormatVersion, fileType, fingerprint} {
		// Length prefixes keep ("ab","c") and ("a","bc") apart.
		io.WriteString(h, strconv.Itoa(len(part)))
		io.WriteString(h, ":")
		io.WriteString(h, part)
	}
	h.Write(content)
	var k Key
	h.Sum(k[:0])
	return k
}

func (k Key) String() string { return hex.EncodeToString(k[:]) }

// Store is a content-addressed cache of TRAP bodies. Implementations must
// tolerate concurrent Lookup and Create calls for the same key.
type Store interface {
	// Lookup returns the committed body for key. ok is false on a miss.
	Lookup(key Key) (body io.ReadCloser, ok bool, err error)
	// Create starts a new entry. Nothing is visible to Lookup until the
	// returned Pending is committed.
	Create(key Key) (Pending, error)
}

// Pending is an entry being written.
type Pending interface {
	io.Writer
	// Commit publishes the entry atomically.
	Commit() error
	// Discard drops the entry. It is safe to call after Commit.
	Discard()
}

// Dummy never hits and drops everything written to it.
type Dummy struct{}

var _ Store = Dummy{}

func (Dummy) Lookup(Key) (io.ReadCloser, bool, error) { return nil, false, nil }

func (Dummy) Create(Key) (Pending, error) { return discard{}, nil }

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
func (discard) Commit() error               { return nil }
func (discard) Discard()                    {}

