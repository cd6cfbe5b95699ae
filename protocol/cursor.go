package protocol

import (
	"fmt"
	"math"

	"github.com/brensch/eden/game"
)

// countTolerance is how far a count value may sit from an integer before it
// is rejected.
const countTolerance = 1e-3

// cursor walks a flat record. Every advance is bounds-checked and returns a
// sub-slice of the record, so offsets are never re-derived by scanning.
type cursor struct {
	data []float32
	pos  int
}

func (c *cursor) remaining() int { return len(c.data) - c.pos }

func (c *cursor) take(seg game.Segment, n int) ([]float32, error) {
	if n < 0 || n > c.remaining() {
		return nil, fmt.Errorf("%w: %s segment needs %d values at cursor %d, record length %d",
			ErrIntegrity, seg, n, c.pos, len(c.data))
	}
	out := c.data[c.pos : c.pos+n]
	c.pos += n
	return out, nil
}

// segment reads a count value and the count*stride values that follow it.
// The count is checked against what remains before it is converted, so huge
// or infinite counts fail as integrity errors.
func (c *cursor) segment(seg game.Segment, stride int) (int, []float32, error) {
	v, err := c.take(seg, 1)
	if err != nil {
		return 0, nil, err
	}
	f := float64(v[0])
	n := math.Round(f)
	if math.IsNaN(f) || math.IsInf(f, 0) || n < 0 || math.Abs(f-n) > countTolerance {
		return 0, nil, fmt.Errorf("%w: %s count %v at cursor %d is not a non-negative integer",
			ErrIntegrity, seg, v[0], c.pos-1)
	}
	if n*float64(stride) > float64(c.remaining()) {
		return 0, nil, fmt.Errorf("%w: %s segment declares %v entries at cursor %d, only %d values remain",
			ErrIntegrity, seg, n, c.pos, c.remaining())
	}
	vals, err := c.take(seg, int(n)*stride)
	if err != nil {
		return 0, nil, err
	}
	return int(n), vals, nil
}

func toInt(v float32) int {
	return int(math.Round(float64(v)))
}
