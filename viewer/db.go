package main

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
)

// openDuckDB creates an in-memory DuckDB with a transitions view over every
// finalized parquet batch under the roots. Batches still staged in a root's
// tmp/ directory are skipped.
func openDuckDB(roots []string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, err
	}
	_, _ = db.Exec("PRAGMA threads=4")

	globs := make([]string, 0, len(roots))
	staging := make([]string, 0, len(roots))
	for _, root := range roots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		globs = append(globs, "'"+escapeSQLString(filepath.Join(root, "**", "*.parquet"))+"'")
		staging = append(staging, "NOT starts_with(filename, '"+escapeSQLString(filepath.Join(root, "tmp")+"/")+"')")
	}

	if len(globs) == 0 {
		_, err := db.Exec(`CREATE OR REPLACE VIEW transitions AS
			SELECT * FROM (
				SELECT
					NULL::VARCHAR AS episode_id,
					NULL::INTEGER AS step,
					NULL::INTEGER AS agent,
					NULL::INTEGER AS agent_type,
					NULL::VARCHAR AS mode,
					NULL::INTEGER AS action_type,
					NULL::VARCHAR AS outcome,
					NULL::REAL AS reward,
					NULL::BOOLEAN AS done,
					NULL::BOOLEAN AS dead,
					NULL::VARCHAR AS filename
			) WHERE 1=0`)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}

	sqlText := `CREATE OR REPLACE VIEW transitions AS
		SELECT * EXCLUDE (obs, shape, scaled) FROM read_parquet([` + strings.Join(globs, ",") + `], filename=true, union_by_name=true)
		WHERE ` + strings.Join(staging, " AND ")
	if _, err := db.Exec(sqlText); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func escapeSQLString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// ActionStat aggregates transitions by action type and outcome.
type ActionStat struct {
	ActionType int     `json:"action_type"`
	Action     string  `json:"action"`
	Outcome    string  `json:"outcome"`
	Count      int64   `json:"count"`
	MeanReward float64 `json:"mean_reward"`
}

func queryActionStats(ctx context.Context, db *sql.DB) ([]ActionStat, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT action_type, outcome, COUNT(*) AS n, AVG(reward) AS mean_reward
		FROM transitions
		GROUP BY action_type, outcome
		ORDER BY action_type, n DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ActionStat, 0, 32)
	for rows.Next() {
		var s ActionStat
		if err := rows.Scan(&s.ActionType, &s.Outcome, &s.Count, &s.MeanReward); err != nil {
			return nil, err
		}
		s.Action = actionName(s.ActionType)
		out = append(out, s)
	}
	return out, rows.Err()
}

// EpisodeRewards is one episode's reward totals as recorded in parquet.
type EpisodeRewards struct {
	EpisodeID string  `json:"episode_id"`
	Steps     int64   `json:"steps"`
	Rows      int64   `json:"rows"`
	Total     float64 `json:"reward_total"`
	Deaths    int64   `json:"deaths"`
}

func queryEpisodeRewards(ctx context.Context, db *sql.DB, episodeID string) (EpisodeRewards, error) {
	r := EpisodeRewards{EpisodeID: episodeID}
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT step), COUNT(*), COALESCE(SUM(reward), 0), COUNT(*) FILTER (WHERE dead)
		FROM transitions
		WHERE episode_id = ?`, episodeID).Scan(&r.Steps, &r.Rows, &r.Total, &r.Deaths)
	if err != nil {
		return EpisodeRewards{}, err
	}
	if r.Rows == 0 {
		return EpisodeRewards{}, sql.ErrNoRows
	}
	return r, nil
}
