package main

import (
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/jward/kcltrap"
)

// progressReporter draws a file progress bar on stderr. The bar is created
// on the first update, once the size of the source set is known.
type progressReporter struct {
	quiet bool
	bar   *progressbar.ProgressBar
}

func newProgressReporter(quiet bool) *progressReporter {
	return &progressReporter{quiet: quiet}
}

// Update is called by the engine after each file is committed.
func (r *progressReporter) Update(p kcltrap.Progress) {
	if r.quiet {
		return
	}
	if r.bar == nil {
		r.bar = progressbar.NewOptions(p.Total,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("Extracting files"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("files/s"),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprintln(os.Stderr)
			}),
		)
	}
	r.bar.Set(p.Done)
}

// Finish completes the bar if one was drawn.
func (r *progressReporter) Finish() {
	if r.bar != nil && !r.bar.IsFinished() {
		r.bar.Finish()
	}
}
