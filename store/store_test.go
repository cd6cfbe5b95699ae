package store

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func sampleRows(episode string, n int) []TransitionRow {
	rows := make([]TransitionRow, n)
	for i := range rows {
		rows[i] = TransitionRow{
			EpisodeID:  episode,
			Step:       int32(i),
			Agent:      int32(i % 2),
			Mode:       "matrix",
			Shape:      []int32{1, 2, 2},
			Obs:        []float32{float32(i), -1, 3, 4},
			ActionType: 8,
			Param1:     1,
			Param2:     2,
			Outcome:    "Success",
			Reward:     0.5,
			Done:       i == n-1,
		}
	}
	return rows
}

func TestBatchWriter_Finalize(t *testing.T) {
	dir := t.TempDir()
	w, err := NewBatchWriter(dir)
	if err != nil {
		t.Fatalf("NewBatchWriter: %v", err)
	}
	if err := w.WriteRows(sampleRows("a", 3)); err != nil {
		t.Fatalf("WriteRows: %v", err)
	}
	if err := w.WriteRows(sampleRows("b", 2)); err != nil {
		t.Fatalf("WriteRows: %v", err)
	}
	if w.Episodes() != 2 {
		t.Fatalf("episodes=%d want=2", w.Episodes())
	}
	path, rows, err := w.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if rows != 5 || filepath.Dir(path) != dir {
		t.Fatalf("rows=%d path=%s", rows, path)
	}
	if err := w.WriteRows(sampleRows("c", 1)); !errors.Is(err, ErrClosed) {
		t.Fatalf("err=%v want=ErrClosed", err)
	}

	got, err := ReadTransitions(path)
	if err != nil {
		t.Fatalf("ReadTransitions: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("len=%d want=5", len(got))
	}
	if got[2].Obs[0] != 2 || !got[2].Done || got[3].EpisodeID != "b" {
		t.Fatalf("row mismatch: %+v %+v", got[2], got[3])
	}
}

func TestBatchWriter_EmptyRemoved(t *testing.T) {
	dir := t.TempDir()
	w, err := NewBatchWriter(dir)
	if err != nil {
		t.Fatalf("NewBatchWriter: %v", err)
	}
	path, rows, err := w.Finalize()
	if err != nil || path != "" || rows != 0 {
		t.Fatalf("path=%q rows=%d err=%v", path, rows, err)
	}
	entries, _ := os.ReadDir(filepath.Join(dir, "tmp"))
	if len(entries) != 0 {
		t.Fatalf("tmp not cleaned: %v", entries)
	}
}

func TestWriteTransitions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "one.parquet")
	if err := WriteTransitions(path, sampleRows("x", 4)); err != nil {
		t.Fatalf("WriteTransitions: %v", err)
	}
	got, err := ReadTransitions(path)
	if err != nil {
		t.Fatalf("ReadTransitions: %v", err)
	}
	if len(got) != 4 || got[3].Shape[2] != 2 {
		t.Fatalf("got=%+v", got)
	}
}

func TestTrace_RoundTrip(t *testing.T) {
	path := TracePath(t.TempDir(), "ep1")
	w, err := NewTraceWriter(path)
	if err != nil {
		t.Fatalf("NewTraceWriter: %v", err)
	}
	steps := []TraceStep{
		{Episode: "ep1", Step: 0, Seed: 7, Observations: [][]float32{{1, 2}, {}}, UI: []float32{0, 1}, Actions: [][3]float32{{8, 1, 1}, {0, 0, 0}}, Results: [][]float32{{8, 6, 0, 1, 0}}},
		{Episode: "ep1", Step: 1, Observations: [][]float32{{3}}, Actions: [][3]float32{{0, 0, 0}}},
	}
	for _, s := range steps {
		if err := w.Write(s); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Write(steps[0]); !errors.Is(err, ErrClosed) {
		t.Fatalf("err=%v want=ErrClosed", err)
	}

	got, err := ReadTrace(path)
	if err != nil {
		t.Fatalf("ReadTrace: %v", err)
	}
	if len(got) != 2 || got[0].Seed != 7 || got[0].Actions[0] != [3]float32{8, 1, 1} || got[1].Observations[0][0] != 3 {
		t.Fatalf("got=%+v", got)
	}
	if len(got[0].Observations[1]) != 0 {
		t.Fatalf("absent record=%v want empty", got[0].Observations[1])
	}
}

func TestEpisodeSummary_Summarize(t *testing.T) {
	var s EpisodeSummary
	s.Summarize([]float64{1, 2, 3, 6})
	if s.Agents != 4 || s.Total != 12 || s.Mean != 3 || s.Min != 1 || s.Max != 6 {
		t.Fatalf("summary=%+v", s)
	}
	if math.Abs(s.Std-math.Sqrt(14.0/3.0)) > 1e-9 {
		t.Fatalf("std=%v", s.Std)
	}
	var one EpisodeSummary
	one.Summarize([]float64{5})
	if one.Std != 0 || one.Mean != 5 {
		t.Fatalf("single=%+v", one)
	}
}

func TestSummaryWriter_Append(t *testing.T) {
	path := filepath.Join(t.TempDir(), "episodes.csv")
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i, id := range []string{"a", "b"} {
		w, err := OpenSummaryWriter(path)
		if err != nil {
			t.Fatalf("OpenSummaryWriter: %v", err)
		}
		if err := w.Write(EpisodeSummary{EpisodeID: id, Steps: 10 * (i + 1), StartedAt: now, FinishedAt: now}); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
	got, err := ReadSummaries(path)
	if err != nil {
		t.Fatalf("ReadSummaries: %v", err)
	}
	if len(got) != 2 || got[1].EpisodeID != "b" || got[1].Steps != 20 || !got[0].StartedAt.Equal(now) {
		t.Fatalf("got=%+v", got)
	}
}

func TestIndex_Records(t *testing.T) {
	ctx := context.Background()
	idx, err := OpenIndex(filepath.Join(t.TempDir(), "db", "index.sqlite"))
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	defer idx.Close()

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "new"} {
		s := EpisodeSummary{
			EpisodeID:  id,
			Seed:       int64(i),
			Mode:       "compact",
			Agents:     2,
			Steps:      40,
			Done:       i == 1,
			Total:      3.5,
			TracePath:  "traces/" + id,
			StartedAt:  start,
			FinishedAt: start.Add(time.Duration(i) * time.Minute),
		}
		if err := idx.RecordEpisode(ctx, s); err != nil {
			t.Fatalf("RecordEpisode: %v", err)
		}
	}
	got, err := idx.Episode(ctx, "new")
	if err != nil {
		t.Fatalf("Episode: %v", err)
	}
	if !got.Done || got.Seed != 1 || got.Total != 3.5 || !got.FinishedAt.Equal(start.Add(time.Minute)) {
		t.Fatalf("episode=%+v", got)
	}
	if _, err := idx.Episode(ctx, "missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("err=%v want=ErrNoRows", err)
	}
	ids, err := idx.Episodes(ctx, 10)
	if err != nil || len(ids) != 2 || ids[0] != "new" {
		t.Fatalf("ids=%v err=%v", ids, err)
	}

	if err := idx.RecordBatch(ctx, BatchEntry{Path: "/data/b1.parquet", Rows: 9, Episodes: 2, CreatedAt: start}); err != nil {
		t.Fatalf("RecordBatch: %v", err)
	}
	batches, err := idx.Batches(ctx)
	if err != nil || len(batches) != 1 || batches[0].Rows != 9 {
		t.Fatalf("batches=%v err=%v", batches, err)
	}
}
