package rollout

import (
	"context"
	"fmt"

	"github.com/brensch/eden/executor/convert"
	"github.com/brensch/eden/game"
	"github.com/brensch/eden/protocol"
	"github.com/brensch/eden/rules"
	"github.com/brensch/eden/store"
)

// Reencode turns a recorded trace into transition rows under env's codec,
// replaying the recorded actions instead of asking a policy. Only the codec,
// vocabulary, agent types, map size and tables of env are used.
func Reencode(ctx context.Context, env Env, episode string, steps []store.TraceStep, workers int) ([]store.TransitionRow, error) {
	if len(steps) == 0 {
		return nil, nil
	}
	shape := shape32(env.Codec.Encoder.Shape())

	recs, err := protocol.DecodeAll(steps[0].Observations)
	if err != nil {
		return nil, fmt.Errorf("step 0: %w", err)
	}
	var rows []store.TransitionRow
	for i, st := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var terrain game.Terrain
		if ui, err := protocol.DecodeUI(st.UI, env.Size); err == nil {
			terrain = ui.Terrain()
		}
		obs, err := convert.EncodeBatch(ctx, env.Codec.Encoder, recs, terrain, workers)
		if err != nil {
			return nil, fmt.Errorf("step %d: encode: %w", st.Step, err)
		}

		actions := make([]game.Action, len(recs))
		for j := range actions {
			if j < len(st.Actions) {
				actions[j] = game.Action(st.Actions[j])
			}
		}
		results, err := rules.ParseResults(st.Results)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", st.Step, err)
		}

		next, last := recs, i+1 == len(steps)
		if !last {
			next, err = protocol.DecodeAll(steps[i+1].Observations)
			if err != nil {
				return nil, fmt.Errorf("step %d: %w", steps[i+1].Step, err)
			}
		}

		ev := env.evaluate(stepInput{
			episode: episode,
			step:    st.Step,
			recs:    recs,
			next:    next,
			last:    last,
			obs:     obs,
			actions: actions,
			results: results,
			shape:   shape,
		})
		rows = append(rows, ev.rows...)
		recs = next
	}
	return rows, nil
}
