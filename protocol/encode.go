package protocol

import "github.com/brensch/eden/game"

// Encode writes a record back into the flat layout Decode reads. Absent
// records encode to an empty slice. It is used for fixtures and by the replay
// backend.
func Encode(rec *game.Record) []float32 {
	if rec == nil || rec.Absent {
		return []float32{}
	}

	size := envWidth + positionWidth + 5 + len(rec.Attributes) +
		slotWidth*len(rec.Backpack) + len(rec.Equipment) +
		sightingWidth*(len(rec.Agents)+len(rec.Beings)+len(rec.Resources)+len(rec.Items))
	out := make([]float32, 0, size)

	var day float32
	if rec.Env.Daytime {
		day = 1
	}
	out = append(out,
		float32(rec.Env.Season), day, float32(rec.Env.Weather), float32(rec.Env.Landform),
		float32(rec.Position.X), float32(rec.Position.Y),
	)

	out = append(out, float32(len(rec.Attributes)))
	out = append(out, rec.Attributes...)

	out = append(out, float32(len(rec.Backpack)))
	for _, s := range rec.Backpack {
		out = append(out, float32(s.Item), s.Quantity)
	}

	out = append(out, float32(len(rec.Equipment)))
	for _, e := range rec.Equipment {
		out = append(out, float32(e))
	}

	for _, list := range [][]game.Sighting{rec.Agents, rec.Beings, rec.Resources, rec.Items} {
		out = append(out, float32(len(list)))
		for _, s := range list {
			out = append(out, float32(s.ID), float32(s.X), float32(s.Y))
		}
	}
	return out
}
