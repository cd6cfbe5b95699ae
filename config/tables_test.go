package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/brensch/eden/game"
)

func loadTestTables(t *testing.T) *Tables {
	t.Helper()
	tables, err := LoadTables("testdata/defs")
	if err != nil {
		t.Fatalf("LoadTables: %v", err)
	}
	return tables
}

func TestLoadTables_General(t *testing.T) {
	tables := loadTestTables(t)
	if tables.MapSize != (game.MapSize{X: 10, Y: 12}) {
		t.Fatalf("map=%v want={10 12}", tables.MapSize)
	}
	if got := tables.General["DayLength"]; got != "50" {
		t.Fatalf("DayLength=%q want=50", got)
	}
}

func TestLoadTables_Names(t *testing.T) {
	tables := loadTestTables(t)
	tests := []struct {
		cat  game.Category
		id   int
		name string
	}{
		{game.CategoryLandform, 1, "Water"},
		{game.CategoryAgent, 1, "Scout"},
		{game.CategoryBeing, 0, "Pig"},
		{game.CategoryItem, 3, "Spear"},
		{game.CategoryResource, 2, "Pool"},
		{game.CategoryBuff, 1, "Warm"},
		{game.CategoryWeather, 0, "Sunny"},
		{game.CategoryWeather, 2, "Snow"},
	}
	for _, tt := range tests {
		got, ok := tables.Name(tt.cat, tt.id)
		if !ok || got != tt.name {
			t.Fatalf("Name(%v,%d)=%q,%v want=%q", tt.cat, tt.id, got, ok, tt.name)
		}
		c, id, ok := tables.Lookup(tt.name)
		if !ok || c != tt.cat || id != tt.id {
			t.Fatalf("Lookup(%q)=%v,%d,%v want=%v,%d", tt.name, c, id, ok, tt.cat, tt.id)
		}
	}
	if _, ok := tables.Name(game.CategoryItem, 5); ok {
		t.Fatalf("Name(item,5) should miss")
	}
	if got := tables.IDs(game.CategoryItem); !slices.Equal(got, []int{0, 1, 2, 3, 4}) {
		t.Fatalf("item ids=%v", got)
	}
}

func TestLoadTables_Agents(t *testing.T) {
	tables := loadTestTables(t)
	brave := tables.Agents[0]
	if brave.Count != 3 || brave.BackpackSize != 6 {
		t.Fatalf("brave count=%d backpack=%d want=3,6", brave.Count, brave.BackpackSize)
	}
	if len(brave.Attributes) != 11 || brave.Attributes[0] != "Health" || brave.Attributes[10] != "Temperature" {
		t.Fatalf("attributes=%v", brave.Attributes)
	}
	if brave.Initial[8] != 3 {
		t.Fatalf("vision=%v want=3", brave.Initial[8])
	}
	if got := tables.Slots(0); !slices.Equal(got, []string{"Weapon", "Armor", "Other"}) {
		t.Fatalf("slots=%v", got)
	}
	if tables.Agents[1].Count != 0 {
		t.Fatalf("scout count=%d want=0", tables.Agents[1].Count)
	}
	if got := tables.AgentTypes(5); !slices.Equal(got, []int{0, 0, 0, -1, -1}) {
		t.Fatalf("agent types=%v", got)
	}
	if tables.TotalAgents() != 3 {
		t.Fatalf("total=%d want=3", tables.TotalAgents())
	}
	if tables.AttributeNames(7) != nil {
		t.Fatalf("unknown agent type should have no attributes")
	}
}

func TestLoadTables_ItemLists(t *testing.T) {
	tables := loadTestTables(t)
	if !tables.Equippable(2) || !tables.Equippable(3) || tables.Equippable(0) {
		t.Fatalf("equippable mismatch")
	}
	if got := tables.SynthesisList(); !slices.Equal(got, []int{2, 3}) {
		t.Fatalf("synthesis=%v want=[2 3]", got)
	}
	if got := tables.ConsumeList(); !slices.Equal(got, []int{0}) {
		t.Fatalf("consume=%v want=[0]", got)
	}
	if got := tables.Items[3].Synthesize; got["Branch"] != 3 || got["Stone"] != 1 {
		t.Fatalf("spear recipe=%v", got)
	}
	collect := tables.CollectList()
	if !slices.Equal(collect[game.CategoryBeing], []int{0}) || !slices.Equal(collect[game.CategoryResource], []int{0, 1}) {
		t.Fatalf("collect=%v", collect)
	}
	tree := tables.Resources[0].Collect
	if len(tree) != 2 || tree[0] != (Drop{Item: "Branch", Weight: 10, Count: 3}) {
		t.Fatalf("tree drops=%v", tree)
	}
	if rock := tables.Resources[1].Collect; rock[0] != (Drop{Item: "Stone", Weight: 1, Count: 1}) {
		t.Fatalf("rock drops=%v", rock)
	}
	if tables.Buffs[0].Enhance["Satiety"] != 20 {
		t.Fatalf("buff=%v", tables.Buffs[0])
	}
}

func TestLoadTables_Weather(t *testing.T) {
	tables := loadTestTables(t)
	if !slices.Equal(tables.Weathers, []string{"Sunny", "Rain", "Snow"}) {
		t.Fatalf("weathers=%v", tables.Weathers)
	}
	if tables.Seasons["Winter"]["Snow"] != "0.6" {
		t.Fatalf("winter=%v", tables.Seasons["Winter"])
	}
}

func TestLoadTables_Lists(t *testing.T) {
	tables := loadTestTables(t)
	lists := tables.Lists(game.CategoryAgent, game.CategoryLandform)
	if len(lists) != 2 || len(lists[game.CategoryLandform]) != 3 || len(lists[game.CategoryAgent]) != 2 {
		t.Fatalf("lists=%v", lists)
	}
}

func TestLoadTables_Errors(t *testing.T) {
	if _, err := LoadTables(t.TempDir()); err == nil {
		t.Fatalf("expected error for missing files")
	}

	dir := t.TempDir()
	entries, err := os.ReadDir("testdata/defs")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join("testdata/defs", e.Name()))
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if err := os.WriteFile(filepath.Join(dir, e.Name()), data, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	bad := []byte("MapSizeX,MapSizeY\n0,4\n")
	if err := os.WriteFile(filepath.Join(dir, GeneralFile), bad, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadTables(dir); !errors.Is(err, ErrDefinition) {
		t.Fatalf("err=%v want=ErrDefinition", err)
	}
}

func TestTables_Recipe(t *testing.T) {
	tables := loadTestTables(t)
	got, ok := tables.Recipe("Torch")
	if !ok || got["Branch"] != 2 {
		t.Fatalf("torch=%v,%v", got, ok)
	}
	if _, ok := tables.Recipe("Stone"); ok {
		t.Fatalf("stone has no recipe")
	}
	if _, ok := tables.Recipe("Pig"); ok {
		t.Fatalf("pig is not an item")
	}
}
