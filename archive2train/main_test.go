package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/brensch/eden/config"
	"github.com/brensch/eden/executor/rollout"
	"github.com/brensch/eden/game"
	"github.com/brensch/eden/protocol"
	"github.com/brensch/eden/store"
)

func record(x, y int) *game.Record {
	return &game.Record{
		Env:        game.EnvInfo{Daytime: true},
		Position:   game.Point{X: x, Y: y},
		Attributes: []float32{100, 100, 100, 10, 5, 0.9, 0.1, 1, 3, 1, 36},
		Backpack:   []game.Slot{{Item: 1, Quantity: 2}},
		Equipment:  []int{-1, -1, -1},
	}
}

func TestConvertOne_WritesParquet(t *testing.T) {
	tables, err := config.LoadTables("../config/testdata/defs")
	if err != nil {
		t.Fatalf("LoadTables: %v", err)
	}
	cfg := &config.Config{Mode: config.ModeCompact}
	codec, err := rollout.NewCodec(cfg, tables, nil)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	env := rollout.Env{Codec: codec, Vocab: tables, Size: tables.MapSize}

	dir := t.TempDir()
	inPath := store.TracePath(dir, "ep1")
	tw, err := store.NewTraceWriter(inPath)
	if err != nil {
		t.Fatalf("NewTraceWriter: %v", err)
	}
	for step := 0; step < 3; step++ {
		err := tw.Write(store.TraceStep{
			Episode:      "ep1",
			Step:         step,
			Observations: [][]float32{protocol.Encode(record(1, step))},
			Actions:      [][3]float32{game.NewAction(game.ActionMove, 1, step+1)},
			Results:      [][]float32{nil},
		})
		if err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	outPath := filepath.Join(dir, "out", "ep1.parquet")
	n, err := convertOne(context.Background(), env, 1, tables, "ignored", inPath, outPath)
	if err != nil {
		t.Fatalf("convertOne: %v", err)
	}
	if n != 3 {
		t.Fatalf("rows=%d want=3", n)
	}

	rows, err := store.ReadTransitions(outPath)
	if err != nil {
		t.Fatalf("ReadTransitions: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("read rows=%d want=3", len(rows))
	}
	for i, r := range rows {
		if r.EpisodeID != "ep1" || r.Mode != config.ModeCompact {
			t.Fatalf("row %d episode=%q mode=%q", i, r.EpisodeID, r.Mode)
		}
		if game.ActionType(r.ActionType) != game.ActionMove || r.Param2 != float32(i+1) {
			t.Fatalf("row %d action=%d param2=%v", i, r.ActionType, r.Param2)
		}
	}
	if !rows[2].Done {
		t.Fatalf("last row not done")
	}
}
