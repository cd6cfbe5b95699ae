package convert

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/brensch/eden/game"
	"github.com/brensch/eden/namespace"
)

// Observation is one agent's encoded observation for one step. Exactly one of
// Grid and Vector is set. Observations are never mutated after they are
// published to a SnapshotStore.
type Observation struct {
	Agent  int
	Absent bool
	// Overflow counts record entries that did not fit their region, plus
	// sightings outside the map.
	Overflow int

	Grid   *mat.Dense
	Vector *mat.VecDense
}

// Len is the number of values in the observation.
func (o *Observation) Len() int {
	if o.Grid != nil {
		r, c := o.Grid.Dims()
		return r * c
	}
	if o.Vector != nil {
		return o.Vector.Len()
	}
	return 0
}

// Float32 appends the observation to dst in row-major order.
func (o *Observation) Float32(dst []float32) []float32 {
	if o.Grid != nil {
		r, c := o.Grid.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				dst = append(dst, float32(o.Grid.At(i, j)))
			}
		}
		return dst
	}
	if o.Vector != nil {
		for i := 0; i < o.Vector.Len(); i++ {
			dst = append(dst, float32(o.Vector.AtVec(i)))
		}
	}
	return dst
}

// Encoder builds observations from decoded records. terrain may be nil, in
// which case only the observer's own cell has a known landform.
type Encoder interface {
	Encode(agent int, rec *game.Record, terrain game.Terrain) (*Observation, error)
	// Shape is the per-agent tensor shape.
	Shape() []int64
}

// overlay writes the observer marker then every sighting in
// game.OverlayOrder through set. Later writes win on shared cells. It returns
// the number of sightings outside the map.
func overlay(rec *game.Record, ns *namespace.Map, size game.MapSize, self float64, set func(p game.Point, v float64)) (int, error) {
	dropped := 0
	if size.Contains(rec.Position) {
		set(rec.Position, self)
	}
	for _, cat := range game.OverlayOrder {
		for _, s := range rec.Sightings(cat) {
			idx, ok := ns.Compact(cat, s.ID)
			if !ok {
				return 0, fmt.Errorf("%w: %s %d sighted at (%d,%d)", namespace.ErrLookupMiss, cat, s.ID, s.X, s.Y)
			}
			p := s.Pos()
			if !size.Contains(p) {
				dropped++
				continue
			}
			set(p, float64(idx))
		}
	}
	return dropped, nil
}

// landforms calls set for every cell within the observer's vision with that
// cell's landform compact index.
func landforms(rec *game.Record, ns *namespace.Map, layout Layout, terrain game.Terrain, set func(p game.Point, v float64)) error {
	vision := layout.vision(rec)
	if vision < 0 {
		return fmt.Errorf("%w: record has %d attributes, reveal radius not present",
			namespace.ErrConfig, len(rec.Attributes))
	}
	size := layout.Size
	for x := 0; x < size.X; x++ {
		for y := 0; y < size.Y; y++ {
			p := game.Point{X: x, Y: y}
			if p.Manhattan(rec.Position) > vision {
				continue
			}
			raw, ok := landformAt(rec, terrain, p)
			if !ok {
				continue
			}
			idx, ok := ns.Compact(game.CategoryLandform, raw)
			if !ok {
				return fmt.Errorf("%w: landform %d at (%d,%d)", namespace.ErrLookupMiss, raw, x, y)
			}
			set(p, float64(idx))
		}
	}
	return nil
}

func landformAt(rec *game.Record, terrain game.Terrain, p game.Point) (int, bool) {
	if terrain != nil {
		return terrain.LandformAt(p)
	}
	if p == rec.Position {
		return rec.Env.Landform, true
	}
	return 0, false
}
