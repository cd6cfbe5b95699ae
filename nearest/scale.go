package nearest

import (
	"log/slog"

	"github.com/brensch/eden/game"
)

// Scaler flattens a record into a fixed layout: env, position, attributes,
// raw backpack pairs, equipment, the nearest agent triple, then one nearest
// triple per known being, resource and item id.
type Scaler struct {
	beings    *Selector
	resources *Selector
	items     *Selector
}

func NewScaler(beings, resources, items []int, logger *slog.Logger) *Scaler {
	return &Scaler{
		beings:    NewSelector(beings, logger),
		resources: NewSelector(resources, logger),
		items:     NewSelector(items, logger),
	}
}

// Width is the vector length for a record with the given segment sizes.
func (s *Scaler) Width(attributes, backpack, equipment int) int {
	return 6 + attributes + 2*backpack + equipment +
		3*(1+len(s.beings.ids)+len(s.resources.ids)+len(s.items.ids))
}

// Scale returns the flattened vector, or nil for an absent record.
func (s *Scaler) Scale(rec *game.Record) []float32 {
	if rec == nil || rec.Absent {
		return nil
	}
	out := make([]float32, 0, s.Width(len(rec.Attributes), len(rec.Backpack), len(rec.Equipment)))

	var day float32
	if rec.Env.Daytime {
		day = 1
	}
	out = append(out,
		float32(rec.Env.Season), day, float32(rec.Env.Weather), float32(rec.Env.Landform),
		float32(rec.Position.X), float32(rec.Position.Y),
	)
	out = append(out, rec.Attributes...)
	for _, slot := range rec.Backpack {
		out = append(out, float32(slot.Item), slot.Quantity)
	}
	for _, e := range rec.Equipment {
		out = append(out, float32(e))
	}

	out = appendTriple(out, Single(rec.Position, rec.Agents))
	for _, sel := range []struct {
		s    *Selector
		list []game.Sighting
	}{
		{s.beings, rec.Beings},
		{s.resources, rec.Resources},
		{s.items, rec.Items},
	} {
		for _, n := range sel.s.Nearest(rec.Position, sel.list) {
			if n.X < 0 {
				n = game.NoSighting
			}
			out = appendTriple(out, n)
		}
	}
	return out
}

func appendTriple(out []float32, s game.Sighting) []float32 {
	return append(out, float32(s.ID), float32(s.X), float32(s.Y))
}
