package game

// MapSize is the map extent: X rows by Y columns.
type MapSize struct {
	X int
	Y int
}

func (m MapSize) Cells() int { return m.X * m.Y }

func (m MapSize) Contains(p Point) bool {
	return p.X >= 0 && p.X < m.X && p.Y >= 0 && p.Y < m.Y
}

// Index returns the row-major cell index of p.
func (m MapSize) Index(p Point) int { return p.X*m.Y + p.Y }

// Terrain answers landform lookups for map cells.
type Terrain interface {
	LandformAt(p Point) (int, bool)
}

// LandformGrid is a row-major landform id per cell.
type LandformGrid struct {
	Size     MapSize
	Landform []int
}

func (g *LandformGrid) LandformAt(p Point) (int, bool) {
	if g == nil || !g.Size.Contains(p) {
		return 0, false
	}
	i := g.Size.Index(p)
	if i >= len(g.Landform) {
		return 0, false
	}
	return g.Landform[i], true
}
