package rules

import (
	"github.com/brensch/eden/game"
)

// Reward scores one agent's step from its info.
func Reward(info Info, t *ScoreTable) float64 {
	if t == nil {
		return 0
	}
	var r float64
	if !info.Dead {
		r += actionReward(info, t.Actions[info.Action])
	}
	for name, d := range info.Increments {
		w, ok := t.Attribute[name]
		if !ok {
			w = t.Attribute["default"]
		}
		r += float64(d) * w
	}
	if info.Dead {
		r += t.Dead
	}
	r += t.ScorePoint[info.Position]
	return r
}

// Rewards scores a batch of infos.
func Rewards(infos []Info, t *ScoreTable) []float64 {
	out := make([]float64, len(infos))
	for i, info := range infos {
		out[i] = Reward(info, t)
	}
	return out
}

func actionReward(info Info, w map[string]float64) float64 {
	if w == nil {
		return 0
	}
	if info.Action == game.ActionIdle {
		return w["default"]
	}
	if info.Outcome.Failed() {
		return w["fail"]
	}
	switch info.Action {
	case game.ActionMove:
		return w["default"]
	case game.ActionAttack, game.ActionEquip:
		if v, ok := w[info.Target+"_"+info.Outcome.String()]; ok {
			return v
		}
		return w["default_"+info.Outcome.String()]
	case game.ActionCollect, game.ActionConsume:
		return lookup(w, info.Target)
	case game.ActionPickup, game.ActionDiscard, game.ActionSynthesize:
		return lookup(w, info.Target) * float64(info.Outcome.Count)
	}
	return 0
}

func lookup(w map[string]float64, target string) float64 {
	if v, ok := w[target]; ok {
		return v
	}
	return w["default"]
}
