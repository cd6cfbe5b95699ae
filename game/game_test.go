package game

import "testing"

func TestActionType_NamesRoundTrip(t *testing.T) {
	for a := ActionIdle; a < NumActionTypes; a++ {
		got, ok := ParseActionType(a.String())
		if !ok || got != a {
			t.Fatalf("ParseActionType(%q)=%v,%v want=%v", a.String(), got, ok, a)
		}
	}
	if _, ok := ParseActionType("move"); ok {
		t.Fatalf("lower-case name should not parse")
	}
	if s := ActionType(42).String(); s != "ActionType(42)" {
		t.Fatalf("invalid name=%q", s)
	}
}

func TestActionType_TargetKinds(t *testing.T) {
	for a := ActionIdle; a < NumActionTypes; a++ {
		if a.Inventory() && a.Spatial() {
			t.Fatalf("%v is both inventory and spatial", a)
		}
	}
	if ActionIdle.Inventory() || ActionIdle.Spatial() {
		t.Fatalf("idle has no target")
	}
	if !ActionMove.Spatial() || !ActionSynthesize.Inventory() {
		t.Fatalf("move spatial=%v synthesize inventory=%v", ActionMove.Spatial(), ActionSynthesize.Inventory())
	}
}

func TestAction_StringAndNoop(t *testing.T) {
	a := NewAction(ActionMove, 3, -1)
	if a.Type() != ActionMove || a.IsNoop() {
		t.Fatalf("type=%v noop=%v", a.Type(), a.IsNoop())
	}
	if s := a.String(); s != "Move(3,-1)" {
		t.Fatalf("String=%q want=%q", s, "Move(3,-1)")
	}
	if !NewAction(ActionIdle, 0, 0).IsNoop() {
		t.Fatalf("idle(0,0) should be noop")
	}
}

func TestCategory_BackendTypes(t *testing.T) {
	cases := []struct {
		typ  int
		want Category
		ok   bool
	}{
		{0, CategoryAgent, true},
		{1, CategoryBeing, true},
		{3, CategoryResource, true},
		{6, CategoryLandform, true},
		{7, 0, false}, // attribute
		{8, 0, false},
		{-1, 0, false},
	}
	for _, c := range cases {
		got, ok := CategoryFromBackendType(c.typ)
		if ok != c.ok || (ok && got != c.want) {
			t.Fatalf("type %d: got=%v,%v want=%v,%v", c.typ, got, ok, c.want, c.ok)
		}
	}
}

func TestCategory_ParseAll(t *testing.T) {
	for _, c := range AllCategories() {
		got, ok := ParseCategory(c.String())
		if !ok || got != c {
			t.Fatalf("ParseCategory(%q)=%v,%v", c.String(), got, ok)
		}
	}
	if Category(200).String() != "unknown" {
		t.Fatalf("out of range category name=%q", Category(200).String())
	}
}

func TestRecord_CloneIsDeep(t *testing.T) {
	r := &Record{
		Position:   Point{X: 1, Y: 2},
		Attributes: []float32{10, 20},
		Backpack:   []Slot{{Item: 4, Quantity: 1}, {Item: 4, Quantity: 2}, {Item: -1}},
		Agents:     []Sighting{{ID: 1, X: 2, Y: 3}},
	}
	c := r.Clone()
	c.Attributes[0] = 99
	c.Backpack[0].Quantity = 50
	c.Agents[0].X = 7
	if r.Attributes[0] != 10 || r.Backpack[0].Quantity != 1 || r.Agents[0].X != 2 {
		t.Fatalf("clone shares storage with original: %+v", r)
	}
	if c.Beings != nil {
		t.Fatalf("empty list should clone to nil")
	}
	if (*Record)(nil).Clone() != nil {
		t.Fatalf("nil clone should be nil")
	}
}

func TestRecord_Lookups(t *testing.T) {
	r := &Record{
		Attributes: []float32{80, 5},
		Backpack:   []Slot{{Item: 4, Quantity: 1}, {Item: 2, Quantity: 3}, {Item: 4, Quantity: 2}},
		Resources:  []Sighting{{ID: 0, X: 1, Y: 1}},
	}
	if n := r.ItemCount(4); n != 3 {
		t.Fatalf("ItemCount=%v want=3", n)
	}
	v, ok := r.Attribute([]string{"Health", "Hunger", "Thirst"}, "Hunger")
	if !ok || v != 5 {
		t.Fatalf("Hunger=%v,%v want=5,true", v, ok)
	}
	if _, ok := r.Attribute([]string{"Health", "Hunger", "Thirst"}, "Thirst"); ok {
		t.Fatalf("attribute past record end should miss")
	}
	if got := r.Sightings(CategoryResource); len(got) != 1 {
		t.Fatalf("resources=%v", got)
	}
	if r.Sightings(CategoryWeather) != nil {
		t.Fatalf("weather has no sightings")
	}
}

func TestLandformGrid_Bounds(t *testing.T) {
	size := MapSize{X: 2, Y: 3}
	g := &LandformGrid{Size: size, Landform: []int{0, 1, 2, 3, 4, 5}}
	if id, ok := g.LandformAt(Point{X: 1, Y: 2}); !ok || id != 5 {
		t.Fatalf("LandformAt(1,2)=%v,%v want=5,true", id, ok)
	}
	if _, ok := g.LandformAt(Point{X: 2, Y: 0}); ok {
		t.Fatalf("out of map lookup should miss")
	}
	var nilGrid *LandformGrid
	if _, ok := nilGrid.LandformAt(Point{}); ok {
		t.Fatalf("nil grid should miss")
	}
	if d := (Point{X: 0, Y: 3}).Manhattan(Point{X: 2, Y: 1}); d != 4 {
		t.Fatalf("Manhattan=%d want=4", d)
	}
}
