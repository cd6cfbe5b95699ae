package rollout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/brensch/eden/backend"
	"github.com/brensch/eden/executor/convert"
	"github.com/brensch/eden/executor/inference"
	"github.com/brensch/eden/game"
	"github.com/brensch/eden/nearest"
	"github.com/brensch/eden/protocol"
	"github.com/brensch/eden/rules"
	"github.com/brensch/eden/store"
)

// Env is everything an episode needs besides its options.
type Env struct {
	Backend backend.Backend
	Codec   Codec
	Policy  inference.Policy
	Vocab   protocol.Vocabulary
	// AgentTypes gives each agent's type; agents past its end take the type
	// the backend reports in their result.
	AgentTypes []int
	// Size is the map size used to decode UI records.
	Size game.MapSize
	// Scaler, if set, fills each row's scaled record.
	Scaler *nearest.Scaler

	Done  *rules.DoneTable
	Score *rules.ScoreTable

	Logger *slog.Logger
	// OnStep, if set, is called after every completed step.
	OnStep func(StepReport)
}

type Options struct {
	EpisodeID string
	Seed      int64
	MaxSteps  int
	Workers   int
	// Verbose renders agent 0's board through the logger each step.
	Verbose bool
	// ProgressEvery logs an info line every that many steps; 0 disables it.
	ProgressEvery int
	// StopRequested is polled between steps; returning true checkpoints the
	// episode like a cancelled context does.
	StopRequested func() bool
}

// StepReport describes one completed step.
type StepReport struct {
	Episode string
	Step    int
	Actions []game.Action
	Infos   []rules.Info
	Rewards []float64
	Dones   []bool
	UI      *protocol.UI
}

// Checkpoint is the state of an episode that was stopped early. The backend
// cannot be restored, so a checkpoint only carries what was already
// produced.
type Checkpoint struct {
	EpisodeID string
	Seed      int64
	PausedAt  int
	Rows      []store.TransitionRow
	Returns   []float64
}

// Outcome is the result of Run. Rows holds every recorded transition;
// Returns holds per-agent reward sums.
type Outcome struct {
	Completed bool
	// AllDone is true when every agent reached a terminal condition, as
	// opposed to the episode running out of steps.
	AllDone    bool
	Steps      int
	Rows       []store.TransitionRow
	Returns    []float64
	Checkpoint *Checkpoint
}

// Summary builds the episode summary line for the outcome.
func (o *Outcome) Summary(id string, seed int64, mode string) store.EpisodeSummary {
	s := store.EpisodeSummary{
		EpisodeID: id,
		Seed:      seed,
		Mode:      mode,
		Steps:     o.Steps,
		Done:      o.AllDone,
		Cancelled: !o.Completed,
	}
	s.Summarize(o.Returns)
	return s
}

// Run plays one episode. A cancelled context, or a backend call failing
// because of it, ends the episode early with a checkpoint and a nil error.
func Run(ctx context.Context, env Env, opts Options) (*Outcome, error) {
	logger := env.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("episode", opts.EpisodeID))
	stop := opts.StopRequested
	if stop == nil {
		stop = func() bool { return false }
	}

	if err := env.Backend.Reset(ctx, opts.Seed); err != nil {
		return nil, fmt.Errorf("reset: %w", err)
	}
	n, err := env.Backend.AgentCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("agent count: %w", err)
	}

	snaps := convert.NewSnapshotStore(n)
	decoder := env.Codec.Decoder(snaps)
	shape := shape32(env.Codec.Encoder.Shape())

	out := &Outcome{
		Rows:    make([]store.TransitionRow, 0, n*64),
		Returns: make([]float64, n),
	}
	checkpoint := func(step int) (*Outcome, error) {
		out.Steps = step
		out.Checkpoint = &Checkpoint{
			EpisodeID: opts.EpisodeID,
			Seed:      opts.Seed,
			PausedAt:  step,
			Rows:      append([]store.TransitionRow(nil), out.Rows...),
			Returns:   append([]float64(nil), out.Returns...),
		}
		logger.Info("episode checkpointed", slog.Int("step", step), slog.Int("rows", len(out.Rows)))
		return out, nil
	}
	stopped := func(err error) bool {
		return ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
	}

	raws, err := env.Backend.Observe(ctx)
	if err != nil {
		if stopped(err) {
			return checkpoint(0)
		}
		return nil, fmt.Errorf("observe: %w", err)
	}
	recs, err := protocol.DecodeAll(raws)
	if err != nil {
		return nil, fmt.Errorf("step 0: %w", err)
	}

	step := 0
	for ; opts.MaxSteps <= 0 || step < opts.MaxSteps; step++ {
		if ctx.Err() != nil || stop() {
			return checkpoint(step)
		}

		rawUI, err := env.Backend.UI(ctx, 0)
		if err != nil {
			if stopped(err) {
				return checkpoint(step)
			}
			return nil, fmt.Errorf("step %d: ui: %w", step, err)
		}
		ui, err := protocol.DecodeUI(rawUI, env.Size)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", step, err)
		}

		obs, err := convert.EncodeBatch(ctx, env.Codec.Encoder, recs, ui.Terrain(), opts.Workers)
		if err != nil {
			if stopped(err) {
				return checkpoint(step)
			}
			return nil, fmt.Errorf("step %d: encode: %w", step, err)
		}
		snaps.PublishAll(step, obs)
		if opts.Verbose {
			logger.Debug("board\n"+RenderBoard(ui, env.Vocab), slog.Int("step", step))
			if len(obs) > 0 {
				logger.Debug("observation\n"+RenderObservation(obs[0], env.Size.Y), slog.Int("step", step))
			}
		}

		choices, err := env.Policy.Act(ctx, obs)
		if err != nil {
			if stopped(err) {
				return checkpoint(step)
			}
			return nil, fmt.Errorf("step %d: policy: %w", step, err)
		}

		actions := make([]game.Action, n)
		for i := range actions {
			actions[i] = game.Noop
			if recAt(recs, i).Absent {
				continue
			}
			a, err := decoder.Decode(i, choices[i])
			if err != nil {
				return nil, fmt.Errorf("step %d agent %d: decode: %w", step, i, err)
			}
			actions[i] = a
		}

		if err := env.Backend.Update(ctx, actions); err != nil {
			if stopped(err) {
				return checkpoint(step)
			}
			return nil, fmt.Errorf("step %d: update: %w", step, err)
		}
		rawResults, err := env.Backend.Result(ctx)
		if err != nil {
			if stopped(err) {
				return checkpoint(step)
			}
			return nil, fmt.Errorf("step %d: result: %w", step, err)
		}
		results, err := rules.ParseResults(rawResults)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", step, err)
		}

		next, last, err := observeNext(ctx, env.Backend, recs)
		if err != nil {
			if stopped(err) {
				return checkpoint(step)
			}
			return nil, fmt.Errorf("step %d: %w", step, err)
		}

		ev := env.evaluate(stepInput{
			episode: opts.EpisodeID,
			step:    step,
			recs:    recs,
			next:    next,
			last:    last,
			obs:     obs,
			actions: actions,
			results: results,
			shape:   shape,
		})
		for _, r := range ev.rows {
			out.Returns[r.Agent] += ev.rewards[r.Agent]
		}
		out.Rows = append(out.Rows, ev.rows...)

		if env.OnStep != nil {
			env.OnStep(StepReport{
				Episode: opts.EpisodeID,
				Step:    step,
				Actions: actions,
				Infos:   ev.infos,
				Rewards: ev.rewards,
				Dones:   ev.dones,
				UI:      ui,
			})
		}
		if opts.ProgressEvery > 0 && (step+1)%opts.ProgressEvery == 0 {
			logger.Info("episode progress", slog.Int("step", step+1), slog.Int("rows", len(out.Rows)))
		} else {
			logger.Debug("step complete", slog.Int("step", step), slog.Int("rows", len(out.Rows)))
		}

		recs = next
		if ev.allDone {
			out.AllDone = true
			step++
			break
		}
	}

	out.Completed = true
	out.Steps = step
	logger.Info("episode complete",
		slog.Int("step", step),
		slog.Bool("all_done", out.AllDone),
		slog.Int("rows", len(out.Rows)),
	)
	return out, nil
}

type stepInput struct {
	episode string
	step    int
	recs    []*game.Record
	next    []*game.Record
	// last marks the final step of a trace; every agent is done after it.
	last    bool
	obs     []*convert.Observation
	actions []game.Action
	results []rules.Result
	shape   []int32
}

type stepEval struct {
	infos   []rules.Info
	rewards []float64
	dones   []bool
	allDone bool
	// rows holds one transition per agent that was present at the step.
	rows []store.TransitionRow
}

// evaluate scores a step from the records before and after it.
func (e Env) evaluate(in stepInput) stepEval {
	n := len(in.actions)
	ev := stepEval{
		infos:   make([]rules.Info, n),
		dones:   make([]bool, n),
		allDone: true,
	}
	for i := 0; i < n; i++ {
		res := resultAt(in.results, i)
		ev.infos[i] = rules.BuildInfo(i, recAt(in.recs, i), recAt(in.next, i), res, in.actions[i], e.Vocab)
		ev.dones[i] = in.last || rules.Done(recAt(in.next, i), e.agentType(i, res), e.Done, e.Vocab)
		if !ev.dones[i] {
			ev.allDone = false
		}
	}
	ev.rewards = rules.Rewards(ev.infos, e.Score)

	for i := 0; i < n; i++ {
		if recAt(in.recs, i).Absent || i >= len(in.obs) {
			continue
		}
		a := in.actions[i]
		var scaled []float32
		if e.Scaler != nil {
			scaled = e.Scaler.Scale(in.recs[i])
		}
		ev.rows = append(ev.rows, store.TransitionRow{
			EpisodeID:  in.episode,
			Step:       int32(in.step),
			Agent:      int32(i),
			AgentType:  int32(e.agentType(i, resultAt(in.results, i))),
			Mode:       e.Codec.Mode,
			Shape:      in.shape,
			Obs:        in.obs[i].Float32(make([]float32, 0, in.obs[i].Len())),
			Scaled:     scaled,
			ActionType: int32(a.Type()),
			Param1:     a[1],
			Param2:     a[2],
			Outcome:    ev.infos[i].Outcome.String(),
			Reward:     float32(ev.rewards[i]),
			Done:       ev.dones[i],
			Dead:       ev.infos[i].Dead,
		})
	}
	return ev
}

// observeNext reads the records that follow a step. When a replay runs out,
// the previous records stand in and last is true.
func observeNext(ctx context.Context, b backend.Backend, prev []*game.Record) (recs []*game.Record, last bool, err error) {
	raws, err := b.Observe(ctx)
	if errors.Is(err, backend.ErrEndOfTrace) {
		return prev, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("observe: %w", err)
	}
	recs, err = protocol.DecodeAll(raws)
	if err != nil {
		return nil, false, err
	}
	return recs, false, nil
}

func (e Env) agentType(agent int, res rules.Result) int {
	if agent < len(e.AgentTypes) && e.AgentTypes[agent] >= 0 {
		return e.AgentTypes[agent]
	}
	return res.AgentType
}

var absent = &game.Record{Absent: true}

func recAt(recs []*game.Record, i int) *game.Record {
	if i < len(recs) && recs[i] != nil {
		return recs[i]
	}
	return absent
}

func resultAt(results []rules.Result, i int) rules.Result {
	if i < len(results) {
		return results[i]
	}
	return rules.Result{}
}

func shape32(s []int64) []int32 {
	out := make([]int32, len(s))
	for i, v := range s {
		out[i] = int32(v)
	}
	return out
}
