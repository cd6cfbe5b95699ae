package convert

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/brensch/eden/game"
	"github.com/brensch/eden/namespace"
)

// MatrixSentinel marks unseen or empty grid cells.
const MatrixSentinel = -1

// MatrixEncoder builds the 2D grid observation over a strided namespace.
type MatrixEncoder struct {
	layout Layout
	ns     *namespace.Map
	self   float64
}

// NewMatrixEncoder checks that ns is strided and covers the categories the
// grid writes.
func NewMatrixEncoder(layout Layout, ns *namespace.Map) (*MatrixEncoder, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	if err := layout.requireVision(); err != nil {
		return nil, err
	}
	if ns.Mode() != namespace.Strided {
		return nil, fmt.Errorf("%w: matrix encoder needs a strided namespace, got %s", namespace.ErrConfig, ns.Mode())
	}
	for _, c := range []game.Category{game.CategoryAgent, game.CategoryLandform, game.CategoryBeing, game.CategoryItem, game.CategoryResource} {
		if !ns.Includes(c) {
			return nil, fmt.Errorf("%w: matrix namespace lacks %s", namespace.ErrConfig, c)
		}
	}
	return &MatrixEncoder{
		layout: layout,
		ns:     ns,
		// one past every category range, so it never decodes to an entity
		self: float64(ns.Span()),
	}, nil
}

func (e *MatrixEncoder) Layout() Layout { return e.layout }

// SelfMarker is the value written on the observer's own overlay cell.
func (e *MatrixEncoder) SelfMarker() float64 { return e.self }

func (e *MatrixEncoder) Shape() []int64 {
	return []int64{1, int64(e.layout.Rows()), int64(e.layout.Cols())}
}

func (e *MatrixEncoder) blank() *mat.Dense {
	rows, cols := e.layout.Rows(), e.layout.Cols()
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = MatrixSentinel
	}
	return mat.NewDense(rows, cols, data)
}

func (e *MatrixEncoder) Encode(agent int, rec *game.Record, terrain game.Terrain) (*Observation, error) {
	obs := &Observation{Agent: agent, Grid: e.blank()}
	if rec == nil || rec.Absent {
		obs.Absent = true
		return obs, nil
	}

	h, w := e.layout.Size.X, e.layout.Size.Y
	grid := obs.Grid

	err := landforms(rec, e.ns, e.layout, terrain, func(p game.Point, v float64) {
		grid.Set(p.X, p.Y, v)
	})
	if err != nil {
		return nil, fmt.Errorf("agent %d landform layer: %w", agent, err)
	}

	dropped, err := overlay(rec, e.ns, e.layout.Size, e.self, func(p game.Point, v float64) {
		grid.Set(h+p.X, p.Y, v)
	})
	if err != nil {
		return nil, fmt.Errorf("agent %d overlay: %w", agent, err)
	}
	obs.Overflow += dropped

	bar, overflow, err := e.layout.functionBar(rec, e.ns, MatrixSentinel)
	if err != nil {
		return nil, fmt.Errorf("agent %d function bar: %w", agent, err)
	}
	obs.Overflow += overflow

	for i := range e.layout.Attributes {
		if i < len(rec.Attributes) {
			bar = append(bar, float64(rec.Attributes[i]))
		} else {
			bar = append(bar, MatrixSentinel)
		}
	}
	obs.Overflow += max(0, len(rec.Attributes)-len(e.layout.Attributes))

	for i, v := range bar {
		grid.Set(2*h+i/w, i%w, v)
	}
	return obs, nil
}
