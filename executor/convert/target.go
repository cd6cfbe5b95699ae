package convert

import (
	"fmt"

	"github.com/brensch/eden/game"
	"github.com/brensch/eden/namespace"
)

// Equippable reports whether an item occupies an equipment slot.
type Equippable func(item int) bool

// MatrixDecoder turns a (row, col) grid selection into an action, reading the
// agent's last published matrix snapshot.
type MatrixDecoder struct {
	enc        *MatrixEncoder
	snaps      *SnapshotStore
	equippable Equippable
}

func NewMatrixDecoder(enc *MatrixEncoder, snaps *SnapshotStore, equippable Equippable) *MatrixDecoder {
	if equippable == nil {
		equippable = func(int) bool { return false }
	}
	return &MatrixDecoder{enc: enc, snaps: snaps, equippable: equippable}
}

// Decode maps a selection to an action. Selections that do not name a target
// resolve to game.Noop; only a compact index with no raw id behind it is an
// error.
func (d *MatrixDecoder) Decode(agent int, intent game.Intent, row, col int) (game.Action, error) {
	snap := d.snaps.Latest(agent)
	if snap == nil || snap.Absent || snap.Grid == nil {
		return game.Noop, nil
	}
	layout := d.enc.layout
	rows, cols := snap.Grid.Dims()
	if row < 0 || row >= rows || col < 0 || col >= cols {
		return game.Noop, nil
	}
	h, w := layout.Size.X, layout.Size.Y

	if row < h {
		return game.NewAction(game.ActionMove, row, col), nil
	}

	v := snap.Grid.At(row, col)
	if v == MatrixSentinel {
		return game.Noop, nil
	}

	if row < 2*h {
		if v == d.enc.self {
			return game.Noop, nil
		}
		cat, ok := d.enc.ns.CategoryOf(int(v))
		if !ok {
			return game.Noop, nil
		}
		x, y := row-h, col
		switch cat {
		case game.CategoryAgent, game.CategoryBeing:
			if intent == game.IntentPrimary {
				return game.NewAction(game.ActionCollect, x, y), nil
			}
			return game.NewAction(game.ActionAttack, x, y), nil
		case game.CategoryResource:
			return game.NewAction(game.ActionCollect, x, y), nil
		case game.CategoryItem:
			return game.NewAction(game.ActionPickup, x, y), nil
		}
		return game.Noop, nil
	}

	i := (row-2*h)*w + col
	region := layout.Region(i)
	if region == RegionNone || region == RegionAttribute {
		return game.Noop, nil
	}
	item, err := itemFor(d.enc.ns, v)
	if err != nil {
		return game.Noop, fmt.Errorf("agent %d %s cell %d: %w", agent, region, i, err)
	}
	switch region {
	case RegionBackpack:
		switch {
		case intent == game.IntentSecondary:
			return game.NewAction(game.ActionDiscard, item, 1), nil
		case d.equippable(item):
			return game.NewAction(game.ActionEquip, item, 1), nil
		default:
			return game.NewAction(game.ActionConsume, item, 1), nil
		}
	case RegionEquipment:
		return game.NewAction(game.ActionEquip, item, 1), nil
	case RegionSynthesis:
		return game.NewAction(game.ActionSynthesize, item, 1), nil
	}
	return game.Noop, nil
}

// CompactDecoder turns an (action type, vector index) selection into an
// action, reading the agent's last published compact snapshot.
type CompactDecoder struct {
	enc   *CompactEncoder
	snaps *SnapshotStore
}

func NewCompactDecoder(enc *CompactEncoder, snaps *SnapshotStore) *CompactDecoder {
	return &CompactDecoder{enc: enc, snaps: snaps}
}

// Decode maps a selection to an action. Map cells accept spatial action types
// and function bar cells accept inventory action types; any other pairing is
// game.Noop.
func (d *CompactDecoder) Decode(agent int, t game.ActionType, index int) (game.Action, error) {
	snap := d.snaps.Latest(agent)
	if snap == nil || snap.Absent || snap.Vector == nil {
		return game.Noop, nil
	}
	if !t.Valid() || index < 0 || index >= d.enc.UnitLen() || index >= snap.Vector.Len() {
		return game.Noop, nil
	}

	size := d.enc.layout.Size
	if index < size.Cells() {
		if !t.Spatial() {
			return game.Noop, nil
		}
		// only Move may target a cell without an entity
		if v := snap.Vector.AtVec(index); t != game.ActionMove && (v == CompactSentinel || v == CompactSelf) {
			return game.Noop, nil
		}
		return game.NewAction(t, index/size.Y, index%size.Y), nil
	}

	v := snap.Vector.AtVec(index)
	if v == CompactSentinel || v == CompactSelf || !t.Inventory() {
		return game.Noop, nil
	}
	item, err := itemFor(d.enc.ns, v)
	if err != nil {
		return game.Noop, fmt.Errorf("agent %d index %d: %w", agent, index, err)
	}
	return game.NewAction(t, item, 1), nil
}

func itemFor(ns *namespace.Map, v float64) (int, error) {
	cat, raw, err := ns.Raw(int(v))
	if err != nil {
		return 0, err
	}
	if cat != game.CategoryItem {
		return 0, fmt.Errorf("%w: index %d is %s, not item", namespace.ErrLookupMiss, int(v), cat)
	}
	return raw, nil
}
