// Package rules evaluates termination, step info and reward for each agent
// from its decoded record and the backend's result record.
package rules

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/brensch/eden/game"
)

// ErrResult reports a malformed backend result record.
var ErrResult = errors.New("malformed result record")

const resultWidth = 5

// Result is the backend's report on the action an agent took last step.
type Result struct {
	Action game.ActionType
	// TargetType is the backend type number of the target.
	TargetType int
	TargetID   int
	Code       int
	AgentType  int
}

// ParseResult reads [action, target type, target id, result code, agent type].
func ParseResult(raw []float32) (Result, error) {
	if len(raw) < resultWidth {
		return Result{}, fmt.Errorf("%w: %d values, need %d", ErrResult, len(raw), resultWidth)
	}
	r := Result{
		Action:     game.ActionType(int(raw[0])),
		TargetType: int(raw[1]),
		TargetID:   int(raw[2]),
		Code:       int(raw[3]),
		AgentType:  int(raw[4]),
	}
	if !r.Action.Valid() {
		return Result{}, fmt.Errorf("%w: action %d", ErrResult, r.Action)
	}
	return r, nil
}

// ParseResults parses one result per agent. Dead agents may report an empty
// record, which parses to an idle result.
func ParseResults(raws [][]float32) ([]Result, error) {
	out := make([]Result, len(raws))
	for i, raw := range raws {
		if len(raw) == 0 {
			continue
		}
		r, err := ParseResult(raw)
		if err != nil {
			return nil, fmt.Errorf("agent %d: %w", i, err)
		}
		out[i] = r
	}
	return out, nil
}

// OutcomeKind classifies a result code.
type OutcomeKind int

const (
	OutcomeFail OutcomeKind = iota
	OutcomeSuccess
	OutcomeHit
	OutcomeKill
	OutcomeEquip
	OutcomeUndress
	OutcomeCount
)

// Outcome is a result code interpreted for its action.
type Outcome struct {
	Kind OutcomeKind
	// Count is the number of items moved for OutcomeCount.
	Count int
}

func (o Outcome) Failed() bool { return o.Kind == OutcomeFail }

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeSuccess:
		return "success"
	case OutcomeHit:
		return "hit"
	case OutcomeKill:
		return "kill"
	case OutcomeEquip:
		return "equip"
	case OutcomeUndress:
		return "undress"
	case OutcomeCount:
		return strconv.Itoa(o.Count)
	}
	return "fail"
}

// OutcomeOf interprets a result code for action a.
func OutcomeOf(a game.ActionType, code int) Outcome {
	switch a {
	case game.ActionAttack:
		switch code {
		case 1:
			return Outcome{Kind: OutcomeHit}
		case 2:
			return Outcome{Kind: OutcomeKill}
		}
		return Outcome{Kind: OutcomeFail}
	case game.ActionEquip:
		switch code {
		case 1:
			return Outcome{Kind: OutcomeEquip}
		case 2:
			return Outcome{Kind: OutcomeUndress}
		}
		return Outcome{Kind: OutcomeFail}
	case game.ActionPickup, game.ActionDiscard, game.ActionSynthesize:
		if code > 0 {
			return Outcome{Kind: OutcomeCount, Count: code}
		}
		return Outcome{Kind: OutcomeFail}
	case game.ActionIdle, game.ActionCollect, game.ActionConsume, game.ActionMove:
		if code > 0 {
			return Outcome{Kind: OutcomeSuccess}
		}
		return Outcome{Kind: OutcomeFail}
	}
	return Outcome{Kind: OutcomeFail}
}
