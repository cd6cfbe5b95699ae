package script

import (
	"context"
	"errors"
	"testing"

	"github.com/brensch/eden/game"
)

func TestBuilders_String(t *testing.T) {
	tests := []struct {
		q    Query
		want string
	}{
		{Landform(game.Point{X: 3, Y: 4}), "get.landform.3-4"},
		{Occupant(game.Point{X: 0, Y: 9}), "get.map.0-9|get.info.$0"},
		{BackpackSlot(2, 5), "get.agent.2|get.backpack.$0.5"},
		{EquipmentSlot(1, 0), "get.agent.1|get.equipment.$0.0"},
		{SynthesizeTable("Torch"), "get.synthesize_table.Torch"},
		{Info("item:3"), "get.info.item:3"},
	}
	for _, tt := range tests {
		if got := tt.q.String(); got != tt.want {
			t.Fatalf("got=%q want=%q", got, tt.want)
		}
		back, err := Parse(tt.want)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tt.want, err)
		}
		if back.String() != tt.want {
			t.Fatalf("reparse=%q want=%q", back.String(), tt.want)
		}
	}
}

func TestParse_Errors(t *testing.T) {
	for _, src := range []string{
		"",
		"get",
		"get.map.1-1|",
		"get.info.$0",
		"get.map.1-1|get.info.$1",
		"get.map.1-1|get.info.$x",
		"get.map..1",
	} {
		if _, err := Parse(src); !errors.Is(err, ErrSyntax) {
			t.Fatalf("Parse(%q) err=%v want=ErrSyntax", src, err)
		}
	}
}

func TestParseCell(t *testing.T) {
	p, err := ParseCell("7-2")
	if err != nil || p != (game.Point{X: 7, Y: 2}) {
		t.Fatalf("p=%v err=%v", p, err)
	}
	if _, err := ParseCell("7"); !errors.Is(err, ErrSyntax) {
		t.Fatalf("err=%v want=ErrSyntax", err)
	}
}

func newLocal() *Local {
	grid := &game.LandformGrid{Size: game.MapSize{X: 2, Y: 2}, Landform: []int{0, 1, 1, 0}}
	return &Local{
		Terrain:   grid,
		Landforms: []string{"Plain", "Water"},
		Recipes: func(item string) (map[string]int, bool) {
			if item == "Spear" {
				return map[string]int{"Stone": 1, "Branch": 3}, true
			}
			return nil, false
		},
	}
}

func TestLocal_RunScript(t *testing.T) {
	ctx := context.Background()
	l := newLocal()

	got, err := Run(ctx, l, Landform(game.Point{X: 0, Y: 1}))
	if err != nil || got != "Water" {
		t.Fatalf("landform=%q err=%v", got, err)
	}
	got, err = Run(ctx, l, Landform(game.Point{X: 5, Y: 5}))
	if err != nil || got != "" {
		t.Fatalf("outside=%q err=%v", got, err)
	}
	got, err = Run(ctx, l, SynthesizeTable("Spear"))
	if err != nil || got != "Branch:3;Stone:1" {
		t.Fatalf("recipe=%q err=%v", got, err)
	}
	if _, err := Run(ctx, l, Occupant(game.Point{X: 1, Y: 1})); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("err=%v want=ErrUnsupported", err)
	}
}

type fakeRunner map[string]string

func (f fakeRunner) RunScript(_ context.Context, src string) (string, error) {
	return f[src], nil
}

func TestDescribe(t *testing.T) {
	r := fakeRunner{
		"get.agent.0|get.backpack.$0.1": "item:2",
		"get.info.item:2":               "Torch x1",
	}
	got, err := Describe(context.Background(), r, BackpackSlot(0, 1))
	if err != nil || got != "Torch x1" {
		t.Fatalf("got=%q err=%v", got, err)
	}
	got, err = Describe(context.Background(), r, BackpackSlot(0, 3))
	if err != nil || got != "" {
		t.Fatalf("empty slot=%q err=%v", got, err)
	}
}

func TestLocal_DescribesInventory(t *testing.T) {
	ctx := context.Background()
	l := newLocal()
	l.Agents = []*game.Record{
		{Backpack: []game.Slot{{Item: 2, Quantity: 1}, {Item: -1}}, Equipment: []int{-1, 4}},
		{Absent: true},
	}
	l.Names = func(c game.Category, id int) (string, bool) {
		names := map[int]string{2: "Stone", 4: "Spear"}
		if c != game.CategoryItem {
			return "", false
		}
		n, ok := names[id]
		return n, ok
	}

	cases := []struct {
		q    Query
		want string
	}{
		{BackpackSlot(0, 0), "Stone"},
		{BackpackSlot(0, 1), ""},
		{BackpackSlot(0, 9), ""},
		{EquipmentSlot(0, 1), "Spear"},
		{EquipmentSlot(0, 0), ""},
		{BackpackSlot(1, 0), ""},
		{BackpackSlot(5, 0), ""},
	}
	for _, tc := range cases {
		got, err := Describe(ctx, l, tc.q)
		if err != nil || got != tc.want {
			t.Fatalf("%s=%q err=%v want=%q", tc.q, got, err, tc.want)
		}
	}

	got, err := Run(ctx, l, BackpackSlot(0, 0))
	if err != nil || got != "item:2" {
		t.Fatalf("name id=%q err=%v", got, err)
	}
	if _, err := Run(ctx, l, Info("nothing")); !errors.Is(err, ErrSyntax) {
		t.Fatalf("err=%v want=ErrSyntax", err)
	}
}
