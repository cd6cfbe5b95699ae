package convert

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/brensch/eden/game"
	"github.com/brensch/eden/namespace"
)

const (
	// CompactSentinel marks unseen or empty cells in the compact vector.
	CompactSentinel = 0
	// CompactSelf marks the observer's own cell.
	CompactSelf = 1
	// CompactBase is the first compact index handed to entities.
	CompactBase = 2
)

// CompactEncoder builds the flat vector observation over a dense namespace
// based at CompactBase.
type CompactEncoder struct {
	layout   Layout
	ns       *namespace.Map
	landform bool
}

// NewCompactEncoder builds the encoder. The landform layer is appended when
// ns includes the landform category.
func NewCompactEncoder(layout Layout, ns *namespace.Map) (*CompactEncoder, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	if ns.Mode() != namespace.Dense || ns.Base() != CompactBase {
		return nil, fmt.Errorf("%w: compact encoder needs a dense namespace based at %d", namespace.ErrConfig, CompactBase)
	}
	for _, c := range game.OverlayOrder {
		if !ns.Includes(c) {
			return nil, fmt.Errorf("%w: compact namespace lacks %s", namespace.ErrConfig, c)
		}
	}
	landform := ns.Includes(game.CategoryLandform)
	if landform {
		if err := layout.requireVision(); err != nil {
			return nil, err
		}
	}
	return &CompactEncoder{layout: layout, ns: ns, landform: landform}, nil
}

func (e *CompactEncoder) Layout() Layout { return e.layout }

// UnitLen is the length of the selectable prefix: object map plus function
// bar.
func (e *CompactEncoder) UnitLen() int {
	return e.layout.Size.Cells() + e.layout.BackpackSlots + e.layout.EquipmentSlots + len(e.layout.Synthesis)
}

// AttributeLen is the attribute plus backpack quantity section length.
func (e *CompactEncoder) AttributeLen() int {
	return len(e.layout.Attributes) + e.layout.BackpackSlots
}

// LandformLen is the appended landform layer length, zero when disabled.
func (e *CompactEncoder) LandformLen() int {
	if !e.landform {
		return 0
	}
	return e.layout.Size.Cells()
}

func (e *CompactEncoder) Len() int { return e.UnitLen() + e.AttributeLen() + e.LandformLen() }

func (e *CompactEncoder) Shape() []int64 { return []int64{int64(e.Len())} }

func (e *CompactEncoder) Encode(agent int, rec *game.Record, terrain game.Terrain) (*Observation, error) {
	vec := mat.NewVecDense(e.Len(), nil)
	obs := &Observation{Agent: agent, Vector: vec}
	if rec == nil || rec.Absent {
		obs.Absent = true
		return obs, nil
	}
	size := e.layout.Size

	dropped, err := overlay(rec, e.ns, size, CompactSelf, func(p game.Point, v float64) {
		vec.SetVec(size.Index(p), v)
	})
	if err != nil {
		return nil, fmt.Errorf("agent %d overlay: %w", agent, err)
	}
	obs.Overflow += dropped

	bar, overflow, err := e.layout.functionBar(rec, e.ns, CompactSentinel)
	if err != nil {
		return nil, fmt.Errorf("agent %d function bar: %w", agent, err)
	}
	obs.Overflow += overflow

	i := size.Cells()
	for _, v := range bar {
		vec.SetVec(i, v)
		i++
	}

	for j := range e.layout.Attributes {
		if j < len(rec.Attributes) {
			vec.SetVec(i, float64(rec.Attributes[j]))
		}
		i++
	}
	obs.Overflow += max(0, len(rec.Attributes)-len(e.layout.Attributes))

	for j := 0; j < e.layout.BackpackSlots; j++ {
		if j < len(rec.Backpack) && !rec.Backpack[j].Empty() && rec.Backpack[j].Quantity != -1 {
			vec.SetVec(i, float64(rec.Backpack[j].Quantity))
		}
		i++
	}

	if e.landform {
		base := i
		err := landforms(rec, e.ns, e.layout, terrain, func(p game.Point, v float64) {
			vec.SetVec(base+size.Index(p), v)
		})
		if err != nil {
			return nil, fmt.Errorf("agent %d landform layer: %w", agent, err)
		}
	}
	return obs, nil
}
