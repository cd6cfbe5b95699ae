// Package game defines the core types exchanged with the simulation backend.
//
// A Record is the decoded form of one agent's flat observation for one step.
// Records are rebuilt every step and are designed to be cheaply clonable so a
// step loop can keep the previous step around for attribute deltas.
package game

// Point is a map coordinate. X indexes map rows (MapSizeX), Y indexes map
// columns (MapSizeY).
type Point struct {
	X int
	Y int
}

// NoPoint marks an entity that was not observed.
var NoPoint = Point{X: -1, Y: -1}

// Manhattan returns |dx|+|dy|.
func (p Point) Manhattan(q Point) int {
	return abs(p.X-q.X) + abs(p.Y-q.Y)
}

// Sighting is one (id, x, y) triple from a nearby-entity segment.
type Sighting struct {
	ID int
	X  int
	Y  int
}

// NoSighting is returned when a sighting list is empty.
var NoSighting = Sighting{ID: -1, X: -1, Y: -1}

func (s Sighting) Pos() Point { return Point{X: s.X, Y: s.Y} }

// EnvInfo is the fixed four-value environment header.
type EnvInfo struct {
	Season   int
	Daytime  bool
	Weather  int
	Landform int
}

// Slot is one backpack slot. Item is -1 when the slot is empty.
type Slot struct {
	Item     int
	Quantity float32
}

func (s Slot) Empty() bool { return s.Item < 0 }

// Segment names a region of the raw record.
type Segment int

const (
	SegmentEnv Segment = iota
	SegmentPosition
	SegmentAttribute
	SegmentBackpack
	SegmentEquipment
	SegmentAgents
	SegmentBeings
	SegmentResources
	SegmentItems
	NumSegments
)

var segmentNames = [NumSegments]string{
	"env", "position", "attribute", "backpack", "equipment",
	"agents", "beings", "resources", "items",
}

func (s Segment) String() string {
	if s < 0 || s >= NumSegments {
		return "unknown"
	}
	return segmentNames[s]
}

// Record is one agent's decoded observation.
//
// Offsets holds the cursor position at which each segment starts in the raw
// record (for variable segments, the position of the count value).
type Record struct {
	Absent bool

	Env        EnvInfo
	Position   Point
	Attributes []float32
	Backpack   []Slot
	Equipment  []int

	Agents    []Sighting
	Beings    []Sighting
	Resources []Sighting
	Items     []Sighting

	Offsets [NumSegments]int
	Length  int
}

// Sightings returns the sighting list for a nearby-entity category.
func (r *Record) Sightings(c Category) []Sighting {
	switch c {
	case CategoryAgent:
		return r.Agents
	case CategoryBeing:
		return r.Beings
	case CategoryResource:
		return r.Resources
	case CategoryItem:
		return r.Items
	}
	return nil
}

// Attribute looks up a named attribute using the agent type's name order.
func (r *Record) Attribute(names []string, name string) (float32, bool) {
	for i, n := range names {
		if n == name {
			if i < len(r.Attributes) {
				return r.Attributes[i], true
			}
			return 0, false
		}
	}
	return 0, false
}

// ItemCount sums the quantity of an item across backpack slots.
func (r *Record) ItemCount(item int) float32 {
	var n float32
	for _, s := range r.Backpack {
		if s.Item == item {
			n += s.Quantity
		}
	}
	return n
}

// Clone performs a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}

	out := &Record{
		Absent:   r.Absent,
		Env:      r.Env,
		Position: r.Position,
		Offsets:  r.Offsets,
		Length:   r.Length,
	}
	out.Attributes = cloneSlice(r.Attributes)
	out.Backpack = cloneSlice(r.Backpack)
	out.Equipment = cloneSlice(r.Equipment)
	out.Agents = cloneSlice(r.Agents)
	out.Beings = cloneSlice(r.Beings)
	out.Resources = cloneSlice(r.Resources)
	out.Items = cloneSlice(r.Items)
	return out
}

func cloneSlice[T any](in []T) []T {
	if len(in) == 0 {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
