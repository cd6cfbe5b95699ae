package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/brensch/eden/game"
	"github.com/brensch/eden/script"
	"github.com/brensch/eden/store"
)

// Replay serves a recorded trace. Observe, UI and Result answer from the
// current step; Update records the actions and moves to the next step once
// Result has been read. Actions sent during replay are not checked against
// the recorded ones, so a replay can drive a different policy over the same
// observations.
type Replay struct {
	mu     sync.Mutex
	steps  []store.TraceStep
	pos    int
	sent   [][]game.Action
	script script.Runner
}

// NewReplay serves steps. Scripts go to runner, which may be nil.
func NewReplay(steps []store.TraceStep, runner script.Runner) *Replay {
	return &Replay{steps: steps, script: runner}
}

// OpenReplay loads the trace at path.
func OpenReplay(path string, runner script.Runner) (*Replay, error) {
	steps, err := store.ReadTrace(path)
	if err != nil {
		return nil, fmt.Errorf("backend: open replay: %w", err)
	}
	return NewReplay(steps, runner), nil
}

func (r *Replay) Len() int { return len(r.steps) }

// Sent returns the actions passed to Update, one slice per step.
func (r *Replay) Sent() [][]game.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]game.Action(nil), r.sent...)
}

func (r *Replay) current() (*store.TraceStep, error) {
	if r.pos >= len(r.steps) {
		return nil, ErrEndOfTrace
	}
	return &r.steps[r.pos], nil
}

func (r *Replay) Reset(ctx context.Context, _ int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pos = 0
	r.sent = nil
	return ctx.Err()
}

func (r *Replay) Update(ctx context.Context, actions []game.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.current(); err != nil {
		return err
	}
	r.sent = append(r.sent, append([]game.Action(nil), actions...))
	return nil
}

func (r *Replay) Observe(ctx context.Context) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, err := r.current()
	if err != nil {
		return nil, err
	}
	return s.Observations, nil
}

// Result returns the current step's results and advances the trace.
func (r *Replay) Result(ctx context.Context) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, err := r.current()
	if err != nil {
		return nil, err
	}
	r.pos++
	return s.Results, nil
}

// UI is only recorded for agent 0.
func (r *Replay) UI(ctx context.Context, agent int) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, err := r.current()
	if err != nil {
		return nil, err
	}
	if agent != 0 || s.UI == nil {
		return nil, fmt.Errorf("backend: replay has no ui record for agent %d", agent)
	}
	return s.UI, nil
}

func (r *Replay) RunScript(ctx context.Context, src string) (string, error) {
	if r.script == nil {
		return "", fmt.Errorf("%w: replay has no script runner", script.ErrUnsupported)
	}
	return r.script.RunScript(ctx, src)
}

func (r *Replay) AgentCount(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.steps) == 0 {
		return 0, ErrEndOfTrace
	}
	return len(r.steps[0].Observations), nil
}

func (r *Replay) Close() error { return nil }
