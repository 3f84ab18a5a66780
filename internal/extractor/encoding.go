package extractor

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

// ErrUnknownEncoding is returned for an encoding name with no decoder.
var ErrUnknownEncoding = errors.New("unknown encoding")

// CheckEncoding reports whether name is a known encoding label.
func CheckEncoding(name string) error {
	if IsUTF8(name) {
		return nil
	}
	if _, err := htmlindex.Get(name); err != nil {
		return fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
	}
	return nil
}

// Decode converts raw file bytes in the named encoding to UTF-8. UTF-8 input
// is returned unchanged.
func Decode(raw []byte, name string) ([]byte, error) {
	if IsUTF8(name) {
		return raw, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
	}
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return out, nil
}

// IsUTF8 reports whether name denotes UTF-8, the default.
func IsUTF8(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return true
	}
	return false
}
