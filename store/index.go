package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Index catalogues finished episodes and the parquet batches that hold their
// transitions.
type Index struct {
	db *sql.DB
}

// BatchEntry is one finalized parquet batch.
type BatchEntry struct {
	Path      string
	Rows      int
	Episodes  int
	CreatedAt time.Time
}

func OpenIndex(path string) (*Index, error) {
	if path == "" {
		return nil, fmt.Errorf("store: empty index path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		`CREATE TABLE IF NOT EXISTS episodes (
			episode_id TEXT PRIMARY KEY,
			seed INTEGER NOT NULL,
			mode TEXT NOT NULL,
			agents INTEGER NOT NULL,
			steps INTEGER NOT NULL,
			done INTEGER NOT NULL,
			cancelled INTEGER NOT NULL,
			reward_total REAL NOT NULL,
			reward_mean REAL NOT NULL,
			reward_std REAL NOT NULL,
			trace_path TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS batches (
			path TEXT PRIMARY KEY,
			rows INTEGER NOT NULL,
			episodes INTEGER NOT NULL,
			created_at TEXT NOT NULL
		);`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init index: %w", err)
		}
	}
	return &Index{db: db}, nil
}

func (x *Index) Close() error {
	return x.db.Close()
}

// RecordEpisode inserts or replaces an episode row.
func (x *Index) RecordEpisode(ctx context.Context, s EpisodeSummary) error {
	_, err := x.db.ExecContext(ctx, `INSERT OR REPLACE INTO episodes
		(episode_id, seed, mode, agents, steps, done, cancelled, reward_total, reward_mean, reward_std, trace_path, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.EpisodeID, s.Seed, s.Mode, s.Agents, s.Steps, s.Done, s.Cancelled,
		s.Total, s.Mean, s.Std, s.TracePath,
		s.StartedAt.UTC().Format(time.RFC3339Nano), s.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record episode %s: %w", s.EpisodeID, err)
	}
	return nil
}

func (x *Index) RecordBatch(ctx context.Context, b BatchEntry) error {
	_, err := x.db.ExecContext(ctx, `INSERT OR REPLACE INTO batches (path, rows, episodes, created_at) VALUES (?, ?, ?, ?)`,
		b.Path, b.Rows, b.Episodes, b.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record batch %s: %w", filepath.Base(b.Path), err)
	}
	return nil
}

// Episode returns the stored summary for id, or sql.ErrNoRows.
func (x *Index) Episode(ctx context.Context, id string) (EpisodeSummary, error) {
	var (
		s                 EpisodeSummary
		started, finished string
	)
	err := x.db.QueryRowContext(ctx, `SELECT episode_id, seed, mode, agents, steps, done, cancelled,
		reward_total, reward_mean, reward_std, trace_path, started_at, finished_at
		FROM episodes WHERE episode_id = ?`, id).Scan(
		&s.EpisodeID, &s.Seed, &s.Mode, &s.Agents, &s.Steps, &s.Done, &s.Cancelled,
		&s.Total, &s.Mean, &s.Std, &s.TracePath, &started, &finished,
	)
	if err != nil {
		return EpisodeSummary{}, err
	}
	s.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	s.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
	return s, nil
}

// Episodes lists episode ids, newest first.
func (x *Index) Episodes(ctx context.Context, limit int) ([]string, error) {
	rows, err := x.db.QueryContext(ctx, `SELECT episode_id FROM episodes ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Batches lists every recorded batch in creation order.
func (x *Index) Batches(ctx context.Context) ([]BatchEntry, error) {
	rows, err := x.db.QueryContext(ctx, `SELECT path, rows, episodes, created_at FROM batches ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BatchEntry
	for rows.Next() {
		var (
			b       BatchEntry
			created string
		)
		if err := rows.Scan(&b.Path, &b.Rows, &b.Episodes, &created); err != nil {
			return nil, err
		}
		b.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, b)
	}
	return out, rows.Err()
}
