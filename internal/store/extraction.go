package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// --- Run operations ---

// InsertRun records a new run. An empty ID gets a fresh UUID.
func (s *Store) InsertRun(r *Run) (string, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = RunRunning
	}
	_, err := s.db.Exec(
		"INSERT INTO runs (id, source_root, started_at, status) VALUES (?, ?, ?, ?)",
		r.ID, r.SourceRoot, r.StartedAt, r.Status,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return r.ID, nil
}

// FinishRun stores the outcome of a run.
func (s *Store) FinishRun(id, status string, files, failed int, finishedAt time.Time) error {
	res, err := s.db.Exec(
		"UPDATE runs SET status = ?, files = ?, failed = ?, finished_at = ? WHERE id = ?",
		status, files, failed, finishedAt, id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: no such run", id)
	}
	return nil
}

func (s *Store) RunByID(id string) (*Run, error) {
	r := &Run{}
	err := s.db.QueryRow(
		"SELECT id, source_root, started_at, finished_at, status, files, failed FROM runs WHERE id = ?", id,
	).Scan(&r.ID, &r.SourceRoot, &r.StartedAt, &r.FinishedAt, &r.Status, &r.Files, &r.Failed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("run by id: %w", err)
	}
	return r, nil
}

// Runs returns the most recent runs first. limit <= 0 means all.
func (s *Store) Runs(limit int) ([]*Run, error) {
	q := "SELECT id, source_root, started_at, finished_at, status, files, failed FROM runs ORDER BY started_at DESC, rowid DESC"
	args := []any{}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("runs: %w", err)
	}
	defer rows.Close()
	var runs []*Run
	for rows.Next() {
		r := &Run{}
		if err := rows.Scan(&r.ID, &r.SourceRoot, &r.StartedAt, &r.FinishedAt, &r.Status, &r.Files, &r.Failed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// --- Extraction operations ---

const insertExtraction = `INSERT INTO extractions (run_id, path, file_type, content_hash, cache_status,
	lines, code, comments, parse_errors, duration_ms, status, error)
 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertExtractionRow(db execer, e *Extraction) (int64, error) {
	res, err := db.Exec(insertExtraction,
		e.RunID, e.Path, e.FileType, e.ContentHash, e.CacheStatus,
		e.Lines, e.Code, e.Comments, e.ParseErrors, e.DurationMS, e.Status, e.Error,
	)
	if err != nil {
		return 0, fmt.Errorf("insert extraction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	e.ID = id
	return id, nil
}

func (s *Store) InsertExtraction(e *Extraction) (int64, error) {
	return insertExtractionRow(s.db, e)
}

// ExtractionsByRun returns a run's file rows in insertion order.
func (s *Store) ExtractionsByRun(runID string) ([]*Extraction, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, path, file_type, content_hash, cache_status, lines, code, comments,
			parse_errors, duration_ms, status, error
		 FROM extractions WHERE run_id = ? ORDER BY id`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("extractions by run: %w", err)
	}
	defer rows.Close()
	var out []*Extraction
	for rows.Next() {
		e := &Extraction{}
		var hash, cache, msg sql.NullString
		if err := rows.Scan(&e.ID, &e.RunID, &e.Path, &e.FileType, &hash, &cache,
			&e.Lines, &e.Code, &e.Comments, &e.ParseErrors, &e.DurationMS, &e.Status, &msg); err != nil {
			return nil, fmt.Errorf("scan extraction: %w", err)
		}
		e.ContentHash, e.CacheStatus, e.Error = hash.String, cache.String, msg.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// LatestExtraction returns the most recent row recorded for path, or nil.
func (s *Store) LatestExtraction(path string) (*Extraction, error) {
	e := &Extraction{}
	var hash, cache, msg sql.NullString
	err := s.db.QueryRow(
		`SELECT id, run_id, path, file_type, content_hash, cache_status, lines, code, comments,
			parse_errors, duration_ms, status, error
		 FROM extractions WHERE path = ? ORDER BY id DESC LIMIT 1`, path,
	).Scan(&e.ID, &e.RunID, &e.Path, &e.FileType, &hash, &cache,
		&e.Lines, &e.Code, &e.Comments, &e.ParseErrors, &e.DurationMS, &e.Status, &msg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest extraction: %w", err)
	}
	e.ContentHash, e.CacheStatus, e.Error = hash.String, cache.String, msg.String
	return e, nil
}
