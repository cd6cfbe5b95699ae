package protocol

import (
	"fmt"

	"github.com/brensch/eden/game"
)

const (
	cellWidth  = 6
	dayEpsilon = 1e-4
)

// UICell is one map cell of the UI record.
type UICell struct {
	Landform int
	// Occupant is the backend type number of the entity standing here, -1
	// when the cell is free.
	Occupant   int
	OccupantID int
	Stats      [3]float32
}

func (c UICell) Occupied() bool { return c.Occupant >= 0 }

// UI is the decoded full-map record the backend returns for one agent.
type UI struct {
	Size       game.MapSize
	Weather    int
	Cells      []UICell
	Daytime    bool
	Position   game.Point
	Attributes []float32
	Backpack   []game.Slot
	Equipment  []int
	// Trailing counts values after the equipment segment. The backend may
	// append fields that this decoder does not know.
	Trailing int
}

// Cell returns the cell at p.
func (u *UI) Cell(p game.Point) (UICell, bool) {
	if !u.Size.Contains(p) {
		return UICell{}, false
	}
	return u.Cells[u.Size.Index(p)], true
}

// Terrain extracts the landform layer.
func (u *UI) Terrain() *game.LandformGrid {
	g := &game.LandformGrid{Size: u.Size, Landform: make([]int, len(u.Cells))}
	for i, c := range u.Cells {
		g.Landform[i] = c.Landform
	}
	return g
}

// DecodeUI parses a UI record for a map of the given size. Cells are laid out
// row-major, x outer.
func DecodeUI(raw []float32, size game.MapSize) (*UI, error) {
	if size.X <= 0 || size.Y <= 0 {
		return nil, fmt.Errorf("%w: map size %dx%d", ErrIntegrity, size.X, size.Y)
	}
	c := &cursor{data: raw}
	u := &UI{Size: size}

	w, err := c.take(game.SegmentEnv, 1)
	if err != nil {
		return nil, fmt.Errorf("ui weather: %w", err)
	}
	u.Weather = toInt(w[0])

	cells, err := c.take(game.SegmentEnv, size.Cells()*cellWidth)
	if err != nil {
		return nil, fmt.Errorf("ui cells: %w", err)
	}
	u.Cells = make([]UICell, size.Cells())
	for i := range u.Cells {
		v := cells[i*cellWidth : (i+1)*cellWidth]
		u.Cells[i] = UICell{
			Landform:   toInt(v[0]),
			Occupant:   toInt(v[1]),
			OccupantID: toInt(v[2]),
			Stats:      [3]float32{v[3], v[4], v[5]},
		}
	}

	d, err := c.take(game.SegmentEnv, 1)
	if err != nil {
		return nil, fmt.Errorf("ui daytime: %w", err)
	}
	u.Daytime = d[0] > dayEpsilon

	pos, err := c.take(game.SegmentPosition, positionWidth)
	if err != nil {
		return nil, fmt.Errorf("ui position: %w", err)
	}
	u.Position = game.Point{X: toInt(pos[0]), Y: toInt(pos[1])}

	_, vals, err := c.segment(game.SegmentAttribute, 1)
	if err != nil {
		return nil, fmt.Errorf("ui: %w", err)
	}
	u.Attributes = append([]float32(nil), vals...)

	n, vals, err := c.segment(game.SegmentBackpack, slotWidth)
	if err != nil {
		return nil, fmt.Errorf("ui: %w", err)
	}
	u.Backpack = make([]game.Slot, n)
	for i := range u.Backpack {
		u.Backpack[i] = game.Slot{Item: toInt(vals[2*i]), Quantity: vals[2*i+1]}
	}

	n, vals, err = c.segment(game.SegmentEquipment, 1)
	if err != nil {
		return nil, fmt.Errorf("ui: %w", err)
	}
	u.Equipment = make([]int, n)
	for i, v := range vals {
		u.Equipment[i] = toInt(v)
	}

	u.Trailing = c.remaining()
	return u, nil
}

// EncodeUI writes u back into the flat UI layout.
func EncodeUI(u *UI) []float32 {
	out := make([]float32, 0, 1+len(u.Cells)*cellWidth+1+positionWidth+3+
		len(u.Attributes)+slotWidth*len(u.Backpack)+len(u.Equipment))
	out = append(out, float32(u.Weather))
	for _, c := range u.Cells {
		out = append(out, float32(c.Landform), float32(c.Occupant), float32(c.OccupantID),
			c.Stats[0], c.Stats[1], c.Stats[2])
	}
	var day float32
	if u.Daytime {
		day = 1
	}
	out = append(out, day, float32(u.Position.X), float32(u.Position.Y))
	out = append(out, float32(len(u.Attributes)))
	out = append(out, u.Attributes...)
	out = append(out, float32(len(u.Backpack)))
	for _, s := range u.Backpack {
		out = append(out, float32(s.Item), s.Quantity)
	}
	out = append(out, float32(len(u.Equipment)))
	for _, e := range u.Equipment {
		out = append(out, float32(e))
	}
	return out
}
