// Package inference picks targets for encoded observations, either with an
// ONNX model or at random.
package inference

import (
	"context"
	"fmt"
	"math"

	"github.com/brensch/eden/executor/convert"
	"github.com/brensch/eden/game"
)

// Space describes what a policy chooses from for one observation layout.
//
// In matrix mode a target is a flat grid index row*Cols+col and the kind is
// an Intent. In compact mode a target is a vector index and the kind is an
// ActionType; indices below Cells are map cells. Compact targets stop at the
// end of the function bar: attribute, quantity and landform values are not
// selectable.
type Space struct {
	Compact bool
	Targets int
	Cols    int
	Cells   int
	Shape   []int64
}

func MatrixSpace(enc *convert.MatrixEncoder) Space {
	l := enc.Layout()
	return Space{Targets: l.Rows() * l.Cols(), Cols: l.Cols(), Cells: l.Size.Cells(), Shape: enc.Shape()}
}

func CompactSpace(enc *convert.CompactEncoder) Space {
	return Space{Compact: true, Targets: enc.UnitLen(), Cells: enc.Layout().Size.Cells(), Shape: enc.Shape()}
}

// Kinds is the width of the kind head.
func (s Space) Kinds() int {
	if s.Compact {
		return int(game.NumActionTypes)
	}
	return 2
}

// InputLen is the number of float32 values in one observation.
func (s Space) InputLen() int {
	n := 1
	for _, d := range s.Shape {
		n *= int(d)
	}
	return n
}

// KindAllowed reports whether kind can act on target. Matrix intents are
// always allowed; compact map cells take spatial actions and tail entries
// take inventory actions.
func (s Space) KindAllowed(kind, target int) bool {
	if !s.Compact {
		return kind == int(game.IntentPrimary) || kind == int(game.IntentSecondary)
	}
	t := game.ActionType(kind)
	if target < s.Cells {
		return t.Spatial()
	}
	return t.Inventory()
}

// Choice is a policy's pick for one agent.
type Choice struct {
	Kind   int
	Target int
}

func (c Choice) Intent() game.Intent         { return game.Intent(c.Kind) }
func (c Choice) ActionType() game.ActionType { return game.ActionType(c.Kind) }

// RowCol splits a matrix target into grid coordinates.
func (c Choice) RowCol(cols int) (int, int) {
	return c.Target / cols, c.Target % cols
}

// Policy picks one Choice per observation.
type Policy interface {
	Act(ctx context.Context, obs []*convert.Observation) ([]Choice, error)
	Close() error
}

// Decide turns target and kind scores into a Choice: the best-scoring
// target, then the best kind allowed on it.
func (s Space) Decide(target, kind []float32) (Choice, error) {
	if len(target) != s.Targets || len(kind) != s.Kinds() {
		return Choice{}, fmt.Errorf("inference: head sizes %d/%d, want %d/%d", len(target), len(kind), s.Targets, s.Kinds())
	}
	best := argmax(target, func(int) bool { return true })
	k := argmax(kind, func(i int) bool { return s.KindAllowed(i, best) })
	if k < 0 {
		k = 0
	}
	return Choice{Kind: k, Target: best}, nil
}

func argmax(v []float32, allowed func(int) bool) int {
	idx := -1
	best := float32(math.Inf(-1))
	for i, x := range v {
		if !allowed(i) {
			continue
		}
		if idx < 0 || x > best {
			idx, best = i, x
		}
	}
	return idx
}
