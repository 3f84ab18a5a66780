package kcltrap

import (
	"errors"
	"fmt"
)

// ErrIncomplete is returned by Run when some files failed to extract but the
// run otherwise completed.
var ErrIncomplete = errors.New("extraction incomplete")

// Exit statuses of fatal run failures.
const (
	StatusInternalError = 1
	StatusOutOfMemory   = 137
)

// FatalError aborts a run. Status is the process exit status the caller
// should use.
type FatalError struct {
	Status int
	Path   string
	Err    error
}

func (e *FatalError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("fatal (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("fatal (status %d) extracting %s: %v", e.Status, e.Path, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Summary describes a finished run.
type Summary struct {
	RunID     string
	Files     int // files in the source set
	Extracted int
	Failed    int
	Missing   int
	Skipped   int // not processed because the run aborted
	CacheHits int
	Lines     int
	Code      int
}

// Progress is reported after each file is committed.
type Progress struct {
	Done  int
	Total int
	Path  string
}
