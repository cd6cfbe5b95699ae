// Package convert turns decoded agent records into model-ready observations
// and turns selections on those observations back into backend actions.
//
// Two observation shapes are supported:
//
//	matrix:  (2H + tailRows) x W grid. Rows 0..H hold vision-masked landform,
//	         rows H..2H the entity overlay, then the function bar row-major.
//	compact: flat vector of the entity overlay, the function bar, attributes,
//	         backpack quantities and optionally a landform layer.
//
// H and W are the map's X and Y extents.
package convert

import (
	"fmt"
	"slices"

	"github.com/brensch/eden/game"
	"github.com/brensch/eden/namespace"
)

const (
	VisionAttribute      = "Vision"
	NightVisionAttribute = "NightVision"
)

// Layout fixes the sizes of every observation region.
type Layout struct {
	Size           game.MapSize
	BackpackSlots  int
	EquipmentSlots int
	// Synthesis lists raw item ids of the synthesis bar, in display order.
	Synthesis []int
	// Attributes names the attribute values in record order.
	Attributes []string
}

func (l Layout) Validate() error {
	if l.Size.X <= 0 || l.Size.Y <= 0 {
		return fmt.Errorf("%w: map size %dx%d", namespace.ErrConfig, l.Size.X, l.Size.Y)
	}
	if l.BackpackSlots < 0 || l.EquipmentSlots < 0 {
		return fmt.Errorf("%w: negative slot count", namespace.ErrConfig)
	}
	return nil
}

// TailLen is the number of function bar cells in the matrix grid.
func (l Layout) TailLen() int {
	return l.BackpackSlots + l.EquipmentSlots + len(l.Synthesis) + len(l.Attributes)
}

// TailRows is the number of grid rows needed to hold the function bar.
func (l Layout) TailRows() int {
	return (l.TailLen() + l.Size.Y - 1) / l.Size.Y
}

// Rows is the matrix grid height.
func (l Layout) Rows() int { return 2*l.Size.X + l.TailRows() }

// Cols is the matrix grid width.
func (l Layout) Cols() int { return l.Size.Y }

// Region names a span of the function bar.
type Region int

const (
	RegionNone Region = iota
	RegionBackpack
	RegionEquipment
	RegionSynthesis
	RegionAttribute
)

func (r Region) String() string {
	switch r {
	case RegionBackpack:
		return "backpack"
	case RegionEquipment:
		return "equipment"
	case RegionSynthesis:
		return "synthesis"
	case RegionAttribute:
		return "attribute"
	}
	return "none"
}

// Region returns the function bar region holding tail index i.
func (l Layout) Region(i int) Region {
	switch {
	case i < 0:
		return RegionNone
	case i < l.BackpackSlots:
		return RegionBackpack
	case i < l.BackpackSlots+l.EquipmentSlots:
		return RegionEquipment
	case i < l.BackpackSlots+l.EquipmentSlots+len(l.Synthesis):
		return RegionSynthesis
	case i < l.TailLen():
		return RegionAttribute
	}
	return RegionNone
}

// requireVision checks that both reveal radius attributes are named, since
// the landform layer cannot be masked without them.
func (l Layout) requireVision() error {
	for _, name := range []string{VisionAttribute, NightVisionAttribute} {
		if !slices.Contains(l.Attributes, name) {
			return fmt.Errorf("%w: landform layer needs the %s attribute", namespace.ErrConfig, name)
		}
	}
	return nil
}

// vision returns the reveal radius for rec, or -1 when the record is too
// short to hold the attribute.
func (l Layout) vision(rec *game.Record) int {
	name := VisionAttribute
	if !rec.Env.Daytime {
		name = NightVisionAttribute
	}
	v, ok := rec.Attribute(l.Attributes, name)
	if !ok {
		return -1
	}
	return int(v)
}

// functionBar lays out backpack, equipment and synthesis compact indices into
// fixed-width regions. empty is written for empty or missing slots. The
// returned count is the number of record entries that did not fit.
func (l Layout) functionBar(rec *game.Record, ns *namespace.Map, empty float64) ([]float64, int, error) {
	out := make([]float64, 0, l.BackpackSlots+l.EquipmentSlots+len(l.Synthesis))
	overflow := 0

	item := func(raw int) (float64, error) {
		if raw < 0 {
			return empty, nil
		}
		idx, ok := ns.Compact(game.CategoryItem, raw)
		if !ok {
			return 0, fmt.Errorf("%w: item %d", namespace.ErrLookupMiss, raw)
		}
		return float64(idx), nil
	}

	for i := 0; i < l.BackpackSlots; i++ {
		if i >= len(rec.Backpack) {
			out = append(out, empty)
			continue
		}
		v, err := item(rec.Backpack[i].Item)
		if err != nil {
			return nil, 0, fmt.Errorf("backpack slot %d: %w", i, err)
		}
		out = append(out, v)
	}
	overflow += max(0, len(rec.Backpack)-l.BackpackSlots)

	for i := 0; i < l.EquipmentSlots; i++ {
		if i >= len(rec.Equipment) {
			out = append(out, empty)
			continue
		}
		v, err := item(rec.Equipment[i])
		if err != nil {
			return nil, 0, fmt.Errorf("equipment slot %d: %w", i, err)
		}
		out = append(out, v)
	}
	overflow += max(0, len(rec.Equipment)-l.EquipmentSlots)

	for i, raw := range l.Synthesis {
		v, err := item(raw)
		if err != nil {
			return nil, 0, fmt.Errorf("synthesis entry %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, overflow, nil
}
