// Package protocol decodes the flat float records the simulation backend
// returns for each agent every step.
package protocol

import (
	"fmt"

	"github.com/brensch/eden/game"
)

const (
	envWidth      = 4
	positionWidth = 2
	slotWidth     = 2
	sightingWidth = 3
)

// Decode parses one agent's raw record into segments.
//
// An empty record is a dead or absent agent and decodes to Record{Absent: true}.
// Any mismatch between declared segment sizes and the record length is
// reported as ErrIntegrity.
func Decode(raw []float32) (*game.Record, error) {
	rec := &game.Record{Length: len(raw)}
	if len(raw) == 0 {
		rec.Absent = true
		return rec, nil
	}

	c := &cursor{data: raw}

	rec.Offsets[game.SegmentEnv] = c.pos
	env, err := c.take(game.SegmentEnv, envWidth)
	if err != nil {
		return nil, err
	}
	rec.Env = game.EnvInfo{
		Season:   toInt(env[0]),
		Daytime:  env[1] >= 0.5,
		Weather:  toInt(env[2]),
		Landform: toInt(env[3]),
	}

	rec.Offsets[game.SegmentPosition] = c.pos
	pos, err := c.take(game.SegmentPosition, positionWidth)
	if err != nil {
		return nil, err
	}
	rec.Position = game.Point{X: toInt(pos[0]), Y: toInt(pos[1])}

	rec.Offsets[game.SegmentAttribute] = c.pos
	_, vals, err := c.segment(game.SegmentAttribute, 1)
	if err != nil {
		return nil, err
	}
	if len(vals) > 0 {
		rec.Attributes = append([]float32(nil), vals...)
	}

	rec.Offsets[game.SegmentBackpack] = c.pos
	n, vals, err := c.segment(game.SegmentBackpack, slotWidth)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		rec.Backpack = make([]game.Slot, n)
		for i := range rec.Backpack {
			rec.Backpack[i] = game.Slot{Item: toInt(vals[2*i]), Quantity: vals[2*i+1]}
		}
	}

	rec.Offsets[game.SegmentEquipment] = c.pos
	n, vals, err = c.segment(game.SegmentEquipment, 1)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		rec.Equipment = make([]int, n)
		for i, v := range vals {
			rec.Equipment[i] = toInt(v)
		}
	}

	for _, seg := range [...]struct {
		seg game.Segment
		dst *[]game.Sighting
	}{
		{game.SegmentAgents, &rec.Agents},
		{game.SegmentBeings, &rec.Beings},
		{game.SegmentResources, &rec.Resources},
		{game.SegmentItems, &rec.Items},
	} {
		rec.Offsets[seg.seg] = c.pos
		if *seg.dst, err = sightings(c, seg.seg); err != nil {
			return nil, err
		}
	}

	if c.pos != len(raw) {
		return nil, fmt.Errorf("%w: cursor %d after last segment, record length %d",
			ErrIntegrity, c.pos, len(raw))
	}
	return rec, nil
}

func sightings(c *cursor, seg game.Segment) ([]game.Sighting, error) {
	n, vals, err := c.segment(seg, sightingWidth)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]game.Sighting, n)
	for i := range out {
		out[i] = game.Sighting{
			ID: toInt(vals[3*i]),
			X:  toInt(vals[3*i+1]),
			Y:  toInt(vals[3*i+2]),
		}
	}
	return out, nil
}

// DecodeAll decodes one record per agent. The first integrity failure aborts
// the batch and names the offending agent.
func DecodeAll(raws [][]float32) ([]*game.Record, error) {
	out := make([]*game.Record, len(raws))
	for i, raw := range raws {
		rec, err := Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("agent %d: %w", i, err)
		}
		out[i] = rec
	}
	return out, nil
}
