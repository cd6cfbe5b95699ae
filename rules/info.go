package rules

import (
	"fmt"
	"math"

	"github.com/brensch/eden/game"
	"github.com/brensch/eden/protocol"
)

const (
	none             = "None"
	incrementEpsilon = 1e-4
)

// Info summarises what happened to one agent in a step.
type Info struct {
	Agent int
	Dead  bool
	// Position is "x-y", or "None" for dead agents.
	Position string
	Action   game.ActionType
	// Target is the target's name, "(x,y)" for moves, or "None".
	Target     string
	Outcome    Outcome
	Increments map[string]float32
}

func positionKey(p game.Point) string { return fmt.Sprintf("%d-%d", p.X, p.Y) }

// BuildInfo derives an agent's step info. prev may be nil on the first step.
// sent is the action that was submitted, used to name move targets.
func BuildInfo(agent int, prev, curr *game.Record, res Result, sent game.Action, vocab protocol.Vocabulary) Info {
	if curr == nil || curr.Absent {
		return Info{
			Agent:      agent,
			Dead:       true,
			Position:   none,
			Target:     none,
			Increments: map[string]float32{},
		}
	}

	info := Info{
		Agent:      agent,
		Position:   positionKey(curr.Position),
		Action:     res.Action,
		Target:     none,
		Outcome:    OutcomeOf(res.Action, res.Code),
		Increments: make(map[string]float32),
	}

	switch res.Action {
	case game.ActionIdle:
	case game.ActionMove:
		info.Target = fmt.Sprintf("(%d,%d)", int(sent[1]), int(sent[2]))
	default:
		if cat, ok := game.CategoryFromBackendType(res.TargetType); ok {
			if name, ok := vocab.Name(cat, res.TargetID); ok {
				info.Target = name
			}
		}
	}

	if prev != nil && !prev.Absent {
		names := vocab.AttributeNames(res.AgentType)
		for i, v := range curr.Attributes {
			if i >= len(prev.Attributes) || i >= len(names) {
				break
			}
			if d := v - prev.Attributes[i]; math.Abs(float64(d)) > incrementEpsilon {
				info.Increments[names[i]] = d
			}
		}
	}
	return info
}
