package rollout

import (
	"context"
	"errors"
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/brensch/eden/backend"
	"github.com/brensch/eden/config"
	"github.com/brensch/eden/executor/convert"
	"github.com/brensch/eden/executor/inference"
	"github.com/brensch/eden/game"
	"github.com/brensch/eden/namespace"
	"github.com/brensch/eden/protocol"
	"github.com/brensch/eden/rules"
	"github.com/brensch/eden/store"
)

func loadTables(t *testing.T) *config.Tables {
	t.Helper()
	tables, err := config.LoadTables("../../config/testdata/defs")
	if err != nil {
		t.Fatalf("LoadTables: %v", err)
	}
	return tables
}

func braveRecord(x, y int, health float32) *game.Record {
	return &game.Record{
		Env:        game.EnvInfo{Daytime: true},
		Position:   game.Point{X: x, Y: y},
		Attributes: []float32{health, 100, 100, 10, 5, 0.9, 0.1, 1, 3, 1, 36},
		Backpack:   []game.Slot{{Item: 1, Quantity: 2}},
		Equipment:  []int{-1, -1, -1},
		Resources:  []game.Sighting{{ID: 0, X: x + 1, Y: y}},
	}
}

func testUI(size game.MapSize, pos game.Point) []float32 {
	u := &protocol.UI{Size: size, Daytime: true, Position: pos, Cells: make([]protocol.UICell, size.Cells())}
	for i := range u.Cells {
		u.Cells[i] = protocol.UICell{Landform: i % 3, Occupant: -1, OccupantID: -1}
	}
	return protocol.EncodeUI(u)
}

// twoStepTrace has two agents. Agent 1 disappears after the first step.
func twoStepTrace(size game.MapSize) []store.TraceStep {
	return []store.TraceStep{
		{
			Observations: [][]float32{
				protocol.Encode(braveRecord(2, 2, 100)),
				protocol.Encode(braveRecord(5, 5, 100)),
			},
			UI:      testUI(size, game.Point{X: 2, Y: 2}),
			Results: [][]float32{nil, nil},
		},
		{
			Observations: [][]float32{
				protocol.Encode(braveRecord(2, 3, 90)),
				{},
			},
			UI:      testUI(size, game.Point{X: 2, Y: 3}),
			Results: [][]float32{nil, nil},
		},
	}
}

func testEnv(t *testing.T, mode string, b backend.Backend) Env {
	t.Helper()
	tables := loadTables(t)
	cfg := &config.Config{Mode: mode, Multiplier: 20}
	codec, err := NewCodec(cfg, tables, nil)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return Env{
		Backend:    b,
		Codec:      codec,
		Policy:     inference.NewRandomPolicy(codec.Space, 7),
		Vocab:      tables,
		AgentTypes: tables.AgentTypes(2),
		Size:       tables.MapSize,
		Scaler:     NewScaler(tables, nil),
	}
}

func TestRun_ReplayToEnd(t *testing.T) {
	for _, mode := range []string{config.ModeMatrix, config.ModeCompact} {
		t.Run(mode, func(t *testing.T) {
			tables := loadTables(t)
			replay := backend.NewReplay(twoStepTrace(tables.MapSize), nil)
			env := testEnv(t, mode, replay)
			env.Score = &rules.ScoreTable{Dead: -10}

			var steps int
			env.OnStep = func(StepReport) { steps++ }

			out, err := Run(context.Background(), env, Options{EpisodeID: "ep", MaxSteps: 10})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if !out.Completed || !out.AllDone || out.Checkpoint != nil {
				t.Fatalf("completed=%v alldone=%v checkpoint=%v", out.Completed, out.AllDone, out.Checkpoint)
			}
			if out.Steps != 2 || steps != 2 {
				t.Fatalf("steps=%d reported=%d want=2", out.Steps, steps)
			}
			// agent 0 twice, agent 1 only while present
			if len(out.Rows) != 3 {
				t.Fatalf("rows=%d want=3", len(out.Rows))
			}
			scaledWidth := env.Scaler.Width(11, 1, 3)
			for _, r := range out.Rows {
				if r.Mode != mode || r.EpisodeID != "ep" {
					t.Fatalf("row mode=%q episode=%q", r.Mode, r.EpisodeID)
				}
				if len(r.Obs) == 0 {
					t.Fatalf("row for agent %d has empty obs", r.Agent)
				}
				if len(r.Scaled) != scaledWidth {
					t.Fatalf("scaled len=%d want=%d", len(r.Scaled), scaledWidth)
				}
			}
			dead := out.Rows[1]
			if dead.Agent != 1 || !dead.Dead || !dead.Done || dead.Reward != -10 {
				t.Fatalf("agent 1 row=%+v", dead)
			}
			if out.Returns[1] != -10 {
				t.Fatalf("returns[1]=%v want=-10", out.Returns[1])
			}
			if got := len(replay.Sent()); got != 2 {
				t.Fatalf("sent steps=%d want=2", got)
			}
			if a := replay.Sent()[1][1]; !a.IsNoop() {
				t.Fatalf("absent agent action=%v want noop", a)
			}

			s := out.Summary("ep", 0, mode)
			if s.Cancelled || !s.Done || s.Agents != 2 || s.Total != -10 {
				t.Fatalf("summary=%+v", s)
			}
		})
	}
}

func TestRun_MaxStepsTruncates(t *testing.T) {
	tables := loadTables(t)
	replay := backend.NewReplay(twoStepTrace(tables.MapSize), nil)
	env := testEnv(t, config.ModeMatrix, replay)

	out, err := Run(context.Background(), env, Options{EpisodeID: "ep", MaxSteps: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !out.Completed || out.Steps != 1 {
		t.Fatalf("completed=%v steps=%d", out.Completed, out.Steps)
	}
	if out.AllDone {
		t.Fatalf("agent 0 is still alive, want AllDone=false")
	}
}

func TestRun_CancelCheckpoints(t *testing.T) {
	tables := loadTables(t)
	replay := backend.NewReplay(twoStepTrace(tables.MapSize), nil)
	env := testEnv(t, config.ModeMatrix, replay)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.OnStep = func(StepReport) { cancel() }

	out, err := Run(ctx, env, Options{EpisodeID: "ep", Seed: 3, MaxSteps: 10})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Completed || out.Checkpoint == nil {
		t.Fatalf("completed=%v checkpoint=%v", out.Completed, out.Checkpoint)
	}
	cp := out.Checkpoint
	if cp.PausedAt != 1 || cp.Seed != 3 || len(cp.Rows) != 2 {
		t.Fatalf("checkpoint paused=%d seed=%d rows=%d", cp.PausedAt, cp.Seed, len(cp.Rows))
	}
	if !out.Summary("ep", 3, config.ModeMatrix).Cancelled {
		t.Fatalf("summary not marked cancelled")
	}
}

func TestRun_StopRequested(t *testing.T) {
	tables := loadTables(t)
	replay := backend.NewReplay(twoStepTrace(tables.MapSize), nil)
	env := testEnv(t, config.ModeCompact, replay)

	out, err := Run(context.Background(), env, Options{StopRequested: func() bool { return true }})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Checkpoint == nil || out.Checkpoint.PausedAt != 0 || len(out.Rows) != 0 {
		t.Fatalf("outcome=%+v", out)
	}
}

func TestRun_EmptyTraceFails(t *testing.T) {
	env := testEnv(t, config.ModeMatrix, backend.NewReplay(nil, nil))
	_, err := Run(context.Background(), env, Options{MaxSteps: 1})
	if !errors.Is(err, backend.ErrEndOfTrace) {
		t.Fatalf("err=%v want ErrEndOfTrace", err)
	}
}

func TestNewCodec_UnknownMode(t *testing.T) {
	_, err := NewCodec(&config.Config{Mode: "bogus"}, loadTables(t), nil)
	if err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestCompactCategories_LandformFollowsAgent(t *testing.T) {
	tables := loadTables(t)
	cats := compactCategories(true)
	ns, err := namespace.NewDense(tables.Lists(cats...), convert.CompactBase, cats)
	if err != nil {
		t.Fatalf("namespace: %v", err)
	}
	agents := len(tables.IDs(game.CategoryAgent))
	landforms := tables.IDs(game.CategoryLandform)
	if idx, ok := ns.Compact(game.CategoryLandform, landforms[0]); !ok || idx != convert.CompactBase+agents {
		t.Fatalf("first landform=%d,%v want=%d", idx, ok, convert.CompactBase+agents)
	}
	beings := tables.IDs(game.CategoryBeing)
	if idx, _ := ns.Compact(game.CategoryBeing, beings[0]); idx != convert.CompactBase+agents+len(landforms) {
		t.Fatalf("first being=%d want=%d", idx, convert.CompactBase+agents+len(landforms))
	}

	if got := compactCategories(false); len(got) != len(game.OverlayOrder) {
		t.Fatalf("without landform=%v", got)
	}
}

func TestRenderBoard_MarksObserver(t *testing.T) {
	tables := loadTables(t)
	raw := testUI(tables.MapSize, game.Point{X: 0, Y: 1})
	ui, err := protocol.DecodeUI(raw, tables.MapSize)
	if err != nil {
		t.Fatalf("DecodeUI: %v", err)
	}
	ui.Cells[0].Occupant = 1

	out := RenderBoard(ui, tables)
	lines := strings.Split(out, "\n")
	if !strings.HasPrefix(lines[1], "B @ ") {
		t.Fatalf("first row=%q want prefix %q", lines[1], "B @ ")
	}
	if !strings.Contains(out, "p=Plain") || !strings.Contains(out, "w=Water") {
		t.Fatalf("legend missing landforms:\n%s", out)
	}
}

func TestRenderObservation_VectorRows(t *testing.T) {
	obs := &convert.Observation{Agent: 2, Vector: mat.NewVecDense(5, []float64{0, 1, 2, 3, 4})}
	out := RenderObservation(obs, 2)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("lines=%d want=4:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "agent=2") {
		t.Fatalf("header=%q", lines[0])
	}
}

func TestReencode_UsesRecordedActions(t *testing.T) {
	tables := loadTables(t)
	steps := twoStepTrace(tables.MapSize)
	steps[0].Actions = [][3]float32{{8, 2, 3}, {2, 6, 5}}
	steps[1].Actions = [][3]float32{{1, 3, 3}, {}}
	steps[1].Step = 1

	env := testEnv(t, config.ModeCompact, nil)
	env.Score = &rules.ScoreTable{Dead: -10}
	rows, err := Reencode(context.Background(), env, "re", steps, 1)
	if err != nil {
		t.Fatalf("Reencode: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows=%d want=3", len(rows))
	}
	want := []struct {
		step, agent int32
		action      game.ActionType
	}{
		{0, 0, game.ActionMove},
		{0, 1, game.ActionCollect},
		{1, 0, game.ActionAttack},
	}
	for i, w := range want {
		r := rows[i]
		if r.Step != w.step || r.Agent != w.agent || game.ActionType(r.ActionType) != w.action {
			t.Fatalf("row %d step=%d agent=%d action=%d want=%+v", i, r.Step, r.Agent, r.ActionType, w)
		}
		if r.Mode != config.ModeCompact || r.EpisodeID != "re" {
			t.Fatalf("row %d mode=%q episode=%q", i, r.Mode, r.EpisodeID)
		}
	}
	if !rows[1].Dead || rows[1].Reward != -10 {
		t.Fatalf("agent 1 row=%+v", rows[1])
	}
	if !rows[2].Done {
		t.Fatalf("last step not done")
	}
}
