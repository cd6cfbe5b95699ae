package rules

import (
	"github.com/brensch/eden/game"
	"github.com/brensch/eden/protocol"
)

// Done reports whether an agent's episode has ended: it is absent, stands on
// a listed position, has an attribute at or below its threshold, carries at
// least a listed number of an item, or wears a listed item.
func Done(rec *game.Record, agentType int, t *DoneTable, vocab protocol.Vocabulary) bool {
	if rec == nil || rec.Absent {
		return true
	}
	if t == nil {
		return false
	}

	for _, p := range t.Position {
		if rec.Position == (game.Point{X: p[0], Y: p[1]}) {
			return true
		}
	}

	for i, name := range vocab.AttributeNames(agentType) {
		limit, ok := t.Attribute[name]
		if !ok || i >= len(rec.Attributes) {
			continue
		}
		if float64(rec.Attributes[i]) <= limit {
			return true
		}
	}

	if len(t.Backpack) > 0 {
		counts := make(map[int]float32, len(rec.Backpack))
		for _, s := range rec.Backpack {
			if !s.Empty() {
				counts[s.Item] += s.Quantity
			}
		}
		for item, n := range counts {
			name, ok := vocab.Name(game.CategoryItem, item)
			if !ok {
				continue
			}
			if limit, ok := t.Backpack[name]; ok && float64(n) >= limit {
				return true
			}
		}
	}

	for _, item := range rec.Equipment {
		if item < 0 {
			continue
		}
		name, ok := vocab.Name(game.CategoryItem, item)
		if !ok {
			continue
		}
		for _, e := range t.Equipment {
			if e == name {
				return true
			}
		}
	}
	return false
}
