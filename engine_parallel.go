package kcltrap

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/jward/kcltrap/internal/diag"
	"github.com/jward/kcltrap/internal/extractor"
	"github.com/jward/kcltrap/internal/store"
)

// ledgerBatch is how many extraction rows are committed per transaction.
const ledgerBatch = 64

// outcome is what a worker reports for one file.
type outcome struct {
	path    string
	row     store.Extraction
	res     *extractor.Result
	diags   *diag.Buffer
	fatal   *FatalError
	skipped bool
}

// extractAll extracts files with a worker pool:
//
//	Workers (parallel): extract one file each, writing its TRAP file and
//	                    its diagnostics to the worker's own file.
//	Commit (serial):    record outcomes in the ledger, tally the summary
//	                    and report progress.
//
// A fatal outcome stops dispatch: files not yet started are skipped. The
// returned error is the first fatal error, or the context's error.
func (e *Engine) extractAll(ctx context.Context, runID string, files []string) (*Summary, error) {
	sum := &Summary{RunID: runID, Files: len(files)}
	if len(files) == 0 {
		return sum, nil
	}

	numWorkers := min(e.cfg.Workers(), len(files))
	if numWorkers < 1 {
		numWorkers = 1
	}

	workCh := make(chan string, len(files))
	for _, path := range files {
		workCh <- path
	}
	close(workCh)

	resultCh := make(chan outcome, len(files))
	var aborted atomic.Bool

	var wg sync.WaitGroup
	for n := range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Each worker owns its diagnostics file, so no two goroutines
			// ever append to the same one.
			dw := diag.NewWriter(e.layout.DiagnosticDir(), n+1)
			defer func() {
				if err := dw.Close(); err != nil {
					log.Printf("warning: %v", err)
				}
			}()
			for path := range workCh {
				if aborted.Load() || ctx.Err() != nil {
					resultCh <- outcome{path: path, skipped: true}
					continue
				}
				o := e.extractTask(ctx, runID, path)
				if err := dw.Drain(o.diags); err != nil {
					log.Printf("warning: %v", err)
				}
				if o.fatal != nil {
					aborted.Store(true)
				}
				resultCh <- o
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	batch := store.NewBatchedStore(e.ledger)
	flush := func() {
		if err := batch.Flush(); err != nil {
			log.Printf("warning: record extractions: %v", err)
		}
	}

	var (
		fatal *FatalError
		done  int
	)
	for o := range resultCh {
		done++
		if o.skipped {
			sum.Skipped++
		} else {
			batch.Add(o.row)
			if batch.Len() >= ledgerBatch {
				flush()
			}
			sum.tally(o)
			if o.fatal != nil && fatal == nil {
				fatal = o.fatal
			}
		}
		if e.progress != nil {
			e.progress(Progress{Done: done, Total: len(files), Path: o.path})
		}
	}
	flush()

	if fatal != nil {
		return sum, fatal
	}
	if err := ctx.Err(); err != nil {
		return sum, err
	}
	return sum, nil
}

func (s *Summary) tally(o outcome) {
	switch o.row.Status {
	case store.FileExtracted:
		s.Extracted++
	case store.FileMissing:
		s.Missing++
	default:
		s.Failed++
	}
	if o.res == nil {
		return
	}
	if o.res.CacheStatus == extractor.CacheHit {
		s.CacheHits++
	}
	s.Lines += o.res.NumLines
	s.Code += o.res.Code
}
