package game

import "fmt"

// ActionType is the first field of an action record.
type ActionType int

const (
	ActionIdle ActionType = iota
	ActionAttack
	ActionCollect
	ActionPickup
	ActionConsume
	ActionEquip
	ActionSynthesize
	ActionDiscard
	ActionMove
	NumActionTypes
)

var actionNames = [NumActionTypes]string{
	"Idle", "Attack", "Collect", "Pickup", "Consume", "Equip", "Synthesize", "Discard", "Move",
}

func (a ActionType) String() string {
	if !a.Valid() {
		return fmt.Sprintf("ActionType(%d)", int(a))
	}
	return actionNames[a]
}

func (a ActionType) Valid() bool { return a >= 0 && a < NumActionTypes }

// ParseActionType matches an action name exactly.
func ParseActionType(s string) (ActionType, bool) {
	for i, n := range actionNames {
		if n == s {
			return ActionType(i), true
		}
	}
	return 0, false
}

// Inventory reports whether the action targets an item the agent holds
// rather than a map cell.
func (a ActionType) Inventory() bool {
	switch a {
	case ActionConsume, ActionEquip, ActionSynthesize, ActionDiscard:
		return true
	}
	return false
}

// Spatial reports whether the action targets a map cell.
func (a ActionType) Spatial() bool {
	switch a {
	case ActionAttack, ActionCollect, ActionPickup, ActionMove:
		return true
	}
	return false
}

// Action is the three-value record the backend consumes:
// [action_type, param1, param2].
type Action [3]float32

// Noop is the idle action with zeroed parameters.
var Noop = Action{}

func NewAction(t ActionType, p1, p2 int) Action {
	return Action{float32(t), float32(p1), float32(p2)}
}

func (a Action) Type() ActionType { return ActionType(int(a[0])) }

func (a Action) IsNoop() bool { return a == Noop }

func (a Action) String() string {
	return fmt.Sprintf("%s(%g,%g)", a.Type(), a[1], a[2])
}

// Intent is the binary button used by grid-indexed selection.
type Intent int

const (
	IntentPrimary   Intent = 0
	IntentSecondary Intent = 1
)
