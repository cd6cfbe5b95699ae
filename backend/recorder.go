package backend

import (
	"context"

	"github.com/brensch/eden/game"
	"github.com/brensch/eden/store"
)

// Recorder wraps a Backend and writes each completed step to a trace. A step
// is complete when Result returns.
type Recorder struct {
	Backend
	trace   *store.TraceWriter
	episode string

	seed    int64
	step    int
	pending store.TraceStep
}

func NewRecorder(b Backend, trace *store.TraceWriter, episode string) *Recorder {
	return &Recorder{Backend: b, trace: trace, episode: episode}
}

func (r *Recorder) Reset(ctx context.Context, seed int64) error {
	if err := r.Backend.Reset(ctx, seed); err != nil {
		return err
	}
	r.seed = seed
	r.step = 0
	r.pending = store.TraceStep{}
	return nil
}

func (r *Recorder) Observe(ctx context.Context) ([][]float32, error) {
	obs, err := r.Backend.Observe(ctx)
	if err == nil {
		r.pending.Observations = obs
	}
	return obs, err
}

func (r *Recorder) UI(ctx context.Context, agent int) ([]float32, error) {
	ui, err := r.Backend.UI(ctx, agent)
	if err == nil && agent == 0 {
		r.pending.UI = ui
	}
	return ui, err
}

func (r *Recorder) Update(ctx context.Context, actions []game.Action) error {
	if err := r.Backend.Update(ctx, actions); err != nil {
		return err
	}
	r.pending.Actions = actionRows(actions)
	return nil
}

func (r *Recorder) Result(ctx context.Context) ([][]float32, error) {
	res, err := r.Backend.Result(ctx)
	if err != nil {
		return nil, err
	}
	step := r.pending
	step.Episode = r.episode
	step.Step = r.step
	step.Results = res
	if r.step == 0 {
		step.Seed = r.seed
	}
	r.step++
	r.pending = store.TraceStep{}
	if err := r.trace.Write(step); err != nil {
		return res, err
	}
	return res, nil
}
