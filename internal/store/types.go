package store

import "time"

// Run statuses.
const (
	RunRunning    = "running"
	RunSucceeded  = "succeeded"
	RunIncomplete = "incomplete"
	RunFailed     = "failed"
)

// Extraction statuses.
const (
	FileExtracted = "extracted"
	FileFailed    = "failed"
	FileMissing   = "missing"
)

type Run struct {
	ID         string
	SourceRoot string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string
	Files      int
	Failed     int
}

type Extraction struct {
	ID          int64
	RunID       string
	Path        string
	FileType    string
	ContentHash string
	CacheStatus string
	Lines       int
	Code        int
	Comments    int
	ParseErrors int
	DurationMS  int64
	Status      string
	Error       string
}
