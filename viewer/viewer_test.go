package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/brensch/eden/config"
	"github.com/brensch/eden/game"
	"github.com/brensch/eden/protocol"
	"github.com/brensch/eden/store"
)

func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	dir := t.TempDir()
	tables, err := config.LoadTables("../config/testdata/defs")
	if err != nil {
		t.Fatalf("LoadTables: %v", err)
	}
	index, err := store.OpenIndex(filepath.Join(dir, "index.sqlite"))
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	t.Cleanup(func() { index.Close() })

	ui := &protocol.UI{Size: tables.MapSize, Cells: make([]protocol.UICell, tables.MapSize.Cells())}
	for i := range ui.Cells {
		ui.Cells[i] = protocol.UICell{Occupant: -1, OccupantID: -1}
	}
	tracePath := store.TracePath(dir, "ep1")
	tw, err := store.NewTraceWriter(tracePath)
	if err != nil {
		t.Fatalf("NewTraceWriter: %v", err)
	}
	for step := 0; step < 3; step++ {
		err := tw.Write(store.TraceStep{
			Episode:      "ep1",
			Step:         step,
			Observations: [][]float32{{1}, {}},
			UI:           protocol.EncodeUI(ui),
			Actions:      [][3]float32{{8, 1, float32(step)}, {}},
		})
		if err != nil {
			t.Fatalf("trace write: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("trace close: %v", err)
	}

	now := time.Now()
	err = index.RecordEpisode(context.Background(), store.EpisodeSummary{
		EpisodeID: "ep1", Mode: config.ModeMatrix, Agents: 2, Steps: 3, Total: -4,
		TracePath: tracePath, StartedAt: now, FinishedAt: now,
	})
	if err != nil {
		t.Fatalf("RecordEpisode: %v", err)
	}

	rows := []store.TransitionRow{
		{EpisodeID: "ep1", Step: 0, ActionType: int32(game.ActionMove), Outcome: "success", Reward: 1},
		{EpisodeID: "ep1", Step: 1, ActionType: int32(game.ActionMove), Outcome: "fail", Reward: -1},
		{EpisodeID: "ep1", Step: 1, Agent: 1, ActionType: int32(game.ActionIdle), Outcome: "fail", Reward: -4, Dead: true},
	}
	batch := filepath.Join(dir, "data", "transitions_1.parquet")
	if err := store.WriteTransitions(batch, rows); err != nil {
		t.Fatalf("WriteTransitions: %v", err)
	}

	s := &server{index: index, roots: []string{filepath.Join(dir, "data")}, tables: tables, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	srv := httptest.NewServer(s.routes())
	t.Cleanup(srv.Close)
	return srv, dir
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK && v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestEpisodes_ListsIndex(t *testing.T) {
	srv, _ := newTestServer(t)
	var out []store.EpisodeSummary
	if code := getJSON(t, srv.URL+"/api/episodes", &out); code != http.StatusOK {
		t.Fatalf("status=%d", code)
	}
	if len(out) != 1 || out[0].EpisodeID != "ep1" || out[0].Steps != 3 {
		t.Fatalf("episodes=%+v", out)
	}
}

func TestEpisode_RewardsFromParquet(t *testing.T) {
	srv, _ := newTestServer(t)
	var out EpisodeResponse
	if code := getJSON(t, srv.URL+"/api/episodes/ep1", &out); code != http.StatusOK {
		t.Fatalf("status=%d", code)
	}
	if out.Rewards == nil {
		t.Fatalf("rewards missing")
	}
	r := out.Rewards
	if r.Rows != 3 || r.Steps != 2 || r.Total != -4 || r.Deaths != 1 {
		t.Fatalf("rewards=%+v", r)
	}
}

func TestEpisodeSteps_RendersTrace(t *testing.T) {
	srv, _ := newTestServer(t)
	var out []StepView
	if code := getJSON(t, srv.URL+"/api/episodes/ep1/steps?from=1&limit=1", &out); code != http.StatusOK {
		t.Fatalf("status=%d", code)
	}
	if len(out) != 1 || out[0].Step != 1 {
		t.Fatalf("steps=%+v", out)
	}
	if out[0].Present != 1 || out[0].Actions[0] != "Move(1,1)" {
		t.Fatalf("step=%+v", out[0])
	}
	if !strings.Contains(out[0].Board, "@") {
		t.Fatalf("board missing observer:\n%s", out[0].Board)
	}
}

func TestEpisode_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	for _, path := range []string{"/api/episodes/nope", "/api/episodes/ep1/turns", "/api/episodes/"} {
		if code := getJSON(t, srv.URL+path, nil); code != http.StatusNotFound {
			t.Fatalf("%s status=%d want=404", path, code)
		}
	}
}

func TestStats_GroupsByActionAndOutcome(t *testing.T) {
	srv, _ := newTestServer(t)
	var out []ActionStat
	if code := getJSON(t, srv.URL+"/api/stats", &out); code != http.StatusOK {
		t.Fatalf("status=%d", code)
	}
	if len(out) != 3 {
		t.Fatalf("stats=%+v", out)
	}
	if out[0].Action != "Idle" || out[0].Count != 1 {
		t.Fatalf("first stat=%+v want Idle x1", out[0])
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Post(srv.URL+"/api/batches", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d want=405", resp.StatusCode)
	}
}
