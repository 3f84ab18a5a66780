package main

import "time"

// CLIResult is the top-level JSON envelope for all ledger commands.
type CLIResult struct {
	Command string `json:"command"`
	Results any    `json:"results"`
	Error   string `json:"error,omitempty"`
}

// CLIRun is a JSON-friendly run.
type CLIRun struct {
	ID         string     `json:"id"`
	SourceRoot string     `json:"source_root"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Files      int        `json:"files"`
	Failed     int        `json:"failed"`
}

// CLIExtraction is a JSON-friendly per-file extraction record.
type CLIExtraction struct {
	Path        string `json:"path"`
	FileType    string `json:"file_type,omitempty"`
	Status      string `json:"status"`
	CacheStatus string `json:"cache_status,omitempty"`
	Lines       int    `json:"lines"`
	Code        int    `json:"code"`
	Comments    int    `json:"comments"`
	ParseErrors int    `json:"parse_errors"`
	DurationMS  int64  `json:"duration_ms"`
	Error       string `json:"error,omitempty"`
}

// CLIRunDetail is a run with its files.
type CLIRunDetail struct {
	Run   CLIRun          `json:"run"`
	Files []CLIExtraction `json:"files"`
}
